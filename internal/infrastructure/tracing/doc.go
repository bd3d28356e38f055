/*
Package tracing provides lightweight request tracing for the harness.

Each harness request gets a span; handlers that drive the provisioning
pipeline open child spans for the action they run. Finished spans are
buffered and written to the structured log by a single collector
goroutine, so tracing never blocks a request.

# Usage

	tracer := tracing.New("harness", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "neighbourhood.create")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Propagation

Callers may pass X-Trace-ID and X-Span-ID headers; the request span joins
that trace and the response echoes the IDs it used. IDs are prefixed
ULIDs from the id package (trace_*, span_*), so they sort by start time.
*/
package tracing
