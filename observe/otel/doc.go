// Package otel reserves a home for an OpenTelemetry-backed observer.
// It currently ships only a no-op implementation so that callers can
// wire the dependency boundary without pulling in an exporter.
package otel
