/*
Package monitoring provides Prometheus metrics for the applet bootstrap.

# Overview

Each session owns a Metrics value backed by its own registry. It tracks
conductor requests, breaker state, signing authorizations, provisioning
transitions and pipeline stage durations, plus the harness HTTP API.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "admin", "create_clone_cell")
	// ... perform request ...
	timer.Stop("success")
*/
package monitoring
