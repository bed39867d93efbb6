// Package telemetry wires event emission, Prometheus metrics, and
// OpenTelemetry exporters for the gateway.
//
// It centralises trace provider setup and the structured decision/error event
// stream so operators can correlate enforcement decisions with upstream
// behaviour. Nothing in this package ever carries a raw token or a clear-text
// subject identifier; subjects appear only as one-way hashes.
package telemetry
