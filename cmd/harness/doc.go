// Package main is the forum applet harness.
//
// The harness stands in for the launcher during development: it connects to
// a local conductor, authorizes signing for every cell of the installed
// forum app and drives the neighbourhood lifecycle, either one-shot from the
// command line or through an HTTP control API.
//
// Two agents can share one machine. AGENT (or --agent) selects the
// HC_PORT/ADMIN_PORT pair (1) or the HC_PORT_2/ADMIN_PORT_2 pair (2).
//
// Usage:
//
//	harness serve --port 8000
//	harness status --agent 2
//	harness create
//	harness join uhCAk...
package main
