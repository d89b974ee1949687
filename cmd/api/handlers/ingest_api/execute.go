package ingest_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"ingesthub.systems/ingesthub/internal/ingest"
)

// HandleExecute runs a reviewed ingest request, streaming progress as
// server-sent events. The run itself is detached from the request context:
// a client that disconnects mid-stream does not abort a half-written
// package.
func HandleExecute(orchestrator *ingest.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ingest.Request
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if err := orchestrator.Validate(&req); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ingest.ErrPathNotFound) {
				status = http.StatusNotFound
			}
			return c.JSON(status, map[string]string{"error": err.Error()})
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
		c.Response().WriteHeader(http.StatusOK)

		w := c.Response().Writer
		flusher, ok := w.(http.Flusher)
		if !ok {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		}

		em := ingest.NewEmitter(256)
		go orchestrator.Execute(context.WithoutCancel(c.Request().Context()), req, em)

		clientGone := c.Request().Context().Done()
		writable := true
		for ev := range em.Events() {
			if !writable {
				// Keep draining so the pipeline never blocks on a dead
				// stream.
				continue
			}
			select {
			case <-clientGone:
				writable = false
				continue
			default:
			}

			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				writable = false
				continue
			}
			flusher.Flush()
		}
		return nil
	}
}
