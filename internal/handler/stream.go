package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/genresorter/api/internal/model"
	"github.com/genresorter/api/internal/service"
	ws "github.com/genresorter/api/internal/websocket"
	"github.com/genresorter/api/pkg/response"
)

// StreamHandler pushes job progress to clients over SSE and WebSocket.
// Both transports subscribe first and then read the record, so an event
// published in between is never missed and a finished job still yields its
// final state.
type StreamHandler struct {
	service   *service.JobService
	hub       *ws.Hub
	keepAlive time.Duration
	log       logr.Logger
}

func NewStreamHandler(svc *service.JobService, hub *ws.Hub, keepAlive time.Duration, log logr.Logger) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &StreamHandler{
		service:   svc,
		hub:       hub,
		keepAlive: keepAlive,
		log:       log.WithName("stream"),
	}
}

// Events handles GET /api/jobs/:jobId/events
func (h *StreamHandler) Events(c *fiber.Ctx) error {
	id, ok := jobIDParam(c)
	if !ok {
		return response.ValidationError(c, "Invalid job ID", nil)
	}

	client := h.hub.Subscribe(id)
	rec, err := h.service.Record(c.UserContext(), id)
	if err != nil {
		h.hub.Unsubscribe(client)
		return handleServiceError(c, err)
	}
	first := model.EventFromRecord(rec)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(client)

		client.Accept(first)
		if err := writeSSE(w, first); err != nil || first.Terminal() {
			return
		}

		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-client.Events():
				if !ok {
					return
				}
				if !client.Accept(ev) {
					continue
				}
				if err := writeSSE(w, ev); err != nil {
					h.log.V(1).Info("sse client gone", "jobId", id)
					return
				}
				if ev.Terminal() {
					return
				}

			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				if err := w.Flush(); err != nil {
					h.log.V(1).Info("sse client gone", "jobId", id)
					return
				}
			}
		}
	}))

	return nil
}

func writeSSE(w *bufio.Writer, ev model.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: progress\n")
	fmt.Fprintf(w, "data: %s\n\n", data)
	return w.Flush()
}

// RequireUpgrade rejects plain HTTP requests on WebSocket routes.
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// WebSocket handles GET /ws/jobs/:jobId
func (h *StreamHandler) WebSocket() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		id, err := model.ParseJobID(c.Params("jobId"))
		if err != nil {
			h.writeWSError(c, "", "VALIDATION_ERROR", "Invalid job ID")
			return
		}

		client := h.hub.Subscribe(id)
		defer h.hub.Unsubscribe(client)

		rec, err := h.service.Record(context.Background(), id)
		if err != nil {
			h.writeWSError(c, id, "NOT_FOUND", "Job not found")
			return
		}

		h.hub.ServeConn(c, client, model.EventFromRecord(rec))
	})
}

func (h *StreamHandler) writeWSError(c *websocket.Conn, id model.JobID, code, message string) {
	_ = c.WriteJSON(model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: id,
		Error: model.WSError{Code: code, Message: message},
	})
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
