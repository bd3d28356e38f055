// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON lines on stderr
//   - Development: colored console output with caller info
//
// Each bootstrap component logs through a named child logger
// ("conductor", "signing", "neighbourhood", ...), so a single session's
// output can be filtered by component.
//
// Example Usage:
//
//	logger := logging.NewFromLevel("debug", true)
//	log := logger.Component("neighbourhood")
//	log.Info("state changed", zap.String("from", "unprovisioned"), zap.String("to", "provisioning"))
package logging
