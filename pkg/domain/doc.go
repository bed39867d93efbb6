// Package domain defines the core business types and interfaces for the
// InsightBridge authorization gateway.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. All types in this package are:
//
// - Independent of infrastructure (no database, HTTP, Redis, etc.)
// - Technology-agnostic (no framework coupling)
// - Testable in isolation without mocks
// - Stable and unlikely to change frequently
//
// Other packages (token, governance, replay, score, engine) implement the
// interfaces defined here and depend on these types. The dependency direction
// is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
//
// One deliberate structural constraint lives here: Claims carries no field that
// could represent a trust score. A score can only enter the pipeline through a
// ScoreSource, never through anything parsed out of a presented token.
package domain
