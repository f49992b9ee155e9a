// Package server exposes the conversation routing core over HTTP.
//
// # Routes
//
// The workspace API lives under /api: attendant registry operations,
// visitor registration, room lifecycle transitions, messages, and the
// pending-work view. GET /api/events is an SSE stream of table
// invalidations driven by the change feed. Health probes sit at /health
// and /health/ready, and the Prometheus endpoint is registered when
// metrics are enabled in configuration.
//
// # Listeners
//
// The server binds a plain TCP listener by default. With Tailscale
// enabled it joins the tailnet via tsnet instead, listening on port 80
// of the node; server.http_addr is ignored in that mode.
//
// # Error Mapping
//
// Handlers translate domain errors into HTTP statuses: ErrNotFound is a
// 404, capacity and transition races are 409s, invalid lifecycle
// transitions are 422s, and malformed input is a 400. Anything outside
// the taxonomy is logged and returned as a 500.
package server
