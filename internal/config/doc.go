// Package config handles configuration loading for livedesk.
//
// # Overview
//
// Configuration is loaded from YAML files with ${VAR} environment variable
// expansion. Duration fields are written as strings ("10s", "1m") and parsed
// after unmarshalling. Validate enforces the conditional requirements: an
// HTTP address unless Tailscale is enabled, a hostname when it is, and AMQP
// connection details only when the feed relay is on.
package config
