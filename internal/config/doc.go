// Package config handles configuration loading for courier.
//
// # Overview
//
// Configuration is loaded from YAML with environment variable expansion,
// duration parsing, defaults, and validation.
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}:
//
//	api:
//	  token: "${COURIER_API_TOKEN}"
//
// Unset variables expand to empty strings and fail validation where the
// field is required.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	polling:
//	  timeout: "50s"
//	  backoff_base: "1s"
//	  backoff_cap: "30s"
//
// # Configuration Sections
//
// Platform API and acquisition mode:
//
//	api:
//	  base_url: "https://api.example.com"
//	  token: "${COURIER_API_TOKEN}"
//	  mode: "polling"              # polling (default) or webhook
//
// Webhook listener (webhook mode):
//
//	webhook:
//	  addr: ":8443"
//	  secret: "${COURIER_WEBHOOK_SECRET}"
//
// Dispatch engine:
//
//	dispatch:
//	  workers: 4
//	  shutdown_grace: "5s"
//
// Conversation tracking:
//
//	conversation:
//	  default_timeout: "5m"
//	  timed_out_state: "timed_out"
//	  idle_eviction: "30m"
//	  flow_file: "/etc/courier/flow.toml"
//
// Persistence (empty path disables):
//
//	database:
//	  path: "/var/lib/courier/courier.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() requires api.base_url and api.token in polling mode, webhook.addr
// in webhook mode, and rejects unknown modes and negative worker counts.
package config
