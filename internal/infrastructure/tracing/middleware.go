package tracing

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/neighbourhoods/forum-applet/internal/shared/id"
)

// HTTPMiddleware creates Gin middleware that opens one span per request.
// Incoming X-Trace-ID / X-Span-ID headers make the span a child of the
// caller's; the new IDs are echoed in the response headers.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithRemoteParent(c.Request.Context(),
			id.TraceID(c.GetHeader(HeaderTraceID)),
			id.SpanID(c.GetHeader(HeaderSpanID)),
		)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.url", c.Request.URL.String())

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, span.TraceID.String())
		c.Header(HeaderSpanID, span.SpanID.String())

		c.Next()

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}

		span.Finish()
		tracer.Submit(span)
	}
}
