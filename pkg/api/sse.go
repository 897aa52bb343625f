package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parley-ai/parley/pkg/events"
)

// writeSSE drains the event stream into the response as server-sent events.
// Each frame gets its own write deadline; a stalled or disconnected client
// triggers cancel, which stops the publishing debate. Returns when the
// stream closes or the connection dies.
func (s *Server) writeSSE(c *gin.Context, stream *events.Stream, cancel func()) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	rc := http.NewResponseController(c.Writer)
	keepalive := time.NewTicker(s.opts.KeepAlive)
	defer keepalive.Stop()

	writeFrame := func(payload string) bool {
		if err := rc.SetWriteDeadline(time.Now().Add(s.opts.SSEWriteBudget)); err != nil {
			slog.Warn("SSE write deadline unsupported", "error", err)
		}
		if _, err := fmt.Fprint(c.Writer, payload); err != nil {
			slog.Warn("SSE write failed, cancelling debate", "error", err, "request_id", requestIDFrom(c))
			cancel()
			return false
		}
		c.Writer.Flush()
		return true
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			frame := fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			if !writeFrame(frame) {
				drainStream(stream)
				return
			}
		case <-keepalive.C:
			if !writeFrame(":keepalive\n\n") {
				drainStream(stream)
				return
			}
		case <-clientGone:
			slog.Info("SSE client disconnected, cancelling debate", "request_id", requestIDFrom(c))
			cancel()
			drainStream(stream)
			return
		}
	}
}

// drainStream unblocks the publisher so the debate goroutine can finish
// emitting its terminal events and close the stream.
func drainStream(stream *events.Stream) {
	for range stream.Events() {
	}
}
