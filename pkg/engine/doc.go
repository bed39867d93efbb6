// Package engine orchestrates the decision pipeline: admission limiting,
// token verification, replay detection, and trust score classification,
// composed with strict fail-closed semantics.
//
// The engine owns no long-lived state. Every collaborator is injected behind
// a narrow domain interface, so the in-memory rate bucket and replay ledger
// can be swapped for distributed stores without touching the pipeline. The
// engine is also the only place a component failure is translated into a deny
// reason; no component decides ALLOW on its own.
package engine
