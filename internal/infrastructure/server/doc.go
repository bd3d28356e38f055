// Package server assembles the harness HTTP server.
//
// Server lifecycle:
//  1. Build logger, metrics registry and tracer
//  2. Bootstrap the applet session (connect, authorize, resume)
//  3. Install middleware: recovery, tracing, metrics, CORS, rate limiting
//  4. Register the control routes and /metrics
//  5. Serve until the context is cancelled, then shut down gracefully
//
// Routes:
//
//	GET  /health
//	GET  /status
//	GET  /applet
//	POST /neighbourhood/create
//	POST /neighbourhood/join
//	POST /neighbourhood/configuration/retry
//	GET  /metrics
//
// Example:
//
//	srv, err := server.NewServer(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer srv.Close()
//	return srv.Run(ctx)
package server
