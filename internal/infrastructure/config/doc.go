// Package config provides 12-factor configuration for the forum applet.
//
// Configuration is loaded from environment variables with sensible
// defaults. CLI flags of cmd/harness can override the agent index.
//
// Configuration Sections:
//   - Conductor: runtime host, the two agents' port pairs, request timeout
//   - Applet: installed app id, primary role, config document path
//   - Neighbourhood: sensemaker role, neighbourhood name, join grace,
//     authorization policy
//   - Server: harness HTTP address
//   - Logging: level and output format
//   - RateLimit: harness per-IP rate limiting
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	admin, app, _ := cfg.Conductor.Ports()
//
// Environment Variables:
//   - AGENT (1 or 2), HC_HOST, HC_PORT, HC_PORT_2, ADMIN_PORT, ADMIN_PORT_2
//   - INSTALLED_APP_ID, PRIMARY_ROLE, APPLET_CONFIG
//   - SENSEMAKER_ROLE, NH_NAME, NH_WIZARD_VERSION, NH_JOIN_GRACE, AUTH_POLICY
//   - PORT, HOST, LOG_LEVEL, LOG_DEV, RATE_LIMIT_RPS, RATE_LIMIT_BURST
package config
