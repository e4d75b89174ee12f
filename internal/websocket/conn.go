package websocket

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/genresorter/api/internal/model"
)

const pingInterval = 30 * time.Second

// ServeConn streams a subscription over a WebSocket connection. first is the
// job state read after subscribing; a terminal first event ends the stream
// right away. The caller owns the subscription and must Unsubscribe it.
func (h *Hub) ServeConn(c *websocket.Conn, client *Client, first model.ProgressEvent) {
	client.Accept(first)
	if err := writeEvent(c, first); err != nil || first.Terminal() {
		closeConn(c)
		return
	}

	pongs := make(chan struct{}, 1)
	done := make(chan struct{})

	// Reader loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.V(1).Info("websocket read failed", "jobId", client.JobID, "error", err.Error())
				}
				return
			}

			var msg model.WSMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				continue
			}
			if msg.Type == model.WSMessageTypePing {
				select {
				case pongs <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				closeConn(c)
				return
			}
			if !client.Accept(ev) {
				continue
			}
			if err := writeEvent(c, ev); err != nil {
				return
			}
			if ev.Terminal() {
				closeConn(c)
				return
			}

		case <-pongs:
			if err := c.WriteJSON(model.WSMessage{Type: model.WSMessageTypePong}); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func writeEvent(c *websocket.Conn, ev model.ProgressEvent) error {
	return c.WriteJSON(model.NewWSMessage(ev))
}

func closeConn(c *websocket.Conn) {
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
