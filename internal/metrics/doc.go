// Package metrics defines the livedesk Prometheus instrumentation: lifecycle
// transition counters, message and change-feed event counters, request
// durations, and the SSE client gauge. A nil *Metrics is a no-op receiver so
// tests can wire components without touching the global registry.
package metrics
