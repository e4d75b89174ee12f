// Package websocket fans job progress out to live subscribers.
package websocket

import (
	"sync"

	"github.com/go-logr/logr"

	"github.com/genresorter/api/internal/model"
)

// Client is one subscription to a job's progress.
type Client struct {
	JobID model.JobID
	send  chan model.ProgressEvent

	// closed is guarded by the hub mutex.
	closed bool

	// last* are only touched by the consumer through Accept.
	lastPercent int
	lastRank    int
}

// Events is closed after a terminal event or on Unsubscribe.
func (c *Client) Events() <-chan model.ProgressEvent {
	return c.send
}

// Accept filters out events that would move the consumer's view backwards.
// Terminal events always pass.
func (c *Client) Accept(ev model.ProgressEvent) bool {
	rank := ev.Status.Rank()
	if !ev.Terminal() && (rank < c.lastRank || ev.Percent < c.lastPercent) {
		return false
	}
	c.lastRank = rank
	if ev.Percent > c.lastPercent {
		c.lastPercent = ev.Percent
	}
	return true
}

// Hub maintains active subscriptions grouped by job.
type Hub struct {
	mu         sync.Mutex
	clients    map[model.JobID]map[*Client]struct{}
	bufferSize int
	closed     bool
	log        logr.Logger
}

// NewHub creates a new Hub. Each subscriber gets a buffer of bufferSize events.
func NewHub(bufferSize int, log logr.Logger) *Hub {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Hub{
		clients:    make(map[model.JobID]map[*Client]struct{}),
		bufferSize: bufferSize,
		log:        log.WithName("hub"),
	}
}

// Subscribe registers a new subscriber for jobID. Events published before
// this call are not replayed.
func (h *Hub) Subscribe(jobID model.JobID) *Client {
	client := &Client{
		JobID: jobID,
		send:  make(chan model.ProgressEvent, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		client.closed = true
		close(client.send)
		return client
	}
	if h.clients[jobID] == nil {
		h.clients[jobID] = make(map[*Client]struct{})
	}
	h.clients[jobID][client] = struct{}{}
	h.log.V(1).Info("client subscribed", "jobId", jobID)
	return client
}

// Unsubscribe removes a client. Safe to call more than once and after the
// hub already closed the subscription.
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(client)
}

// Publish delivers ev to every subscriber of its job without blocking. A
// subscriber with a full buffer misses non-terminal events; a terminal event
// replaces the oldest buffered one so it is never lost. Subscriptions end
// after a terminal event.
func (h *Hub) Publish(ev model.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[ev.JobID]
	for client := range clients {
		h.deliver(client, ev)
	}
	if ev.Terminal() {
		for client := range clients {
			h.remove(client)
		}
	}
}

// Subscribers returns the number of live subscriptions for jobID.
func (h *Hub) Subscribers(jobID model.JobID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[jobID])
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, clients := range h.clients {
		for client := range clients {
			h.remove(client)
		}
	}
}

func (h *Hub) deliver(client *Client, ev model.ProgressEvent) {
	select {
	case client.send <- ev:
		return
	default:
	}

	if !ev.Terminal() {
		h.log.V(1).Info("dropped event for slow subscriber", "jobId", ev.JobID, "percent", ev.Percent)
		return
	}

	// Only Publish sends, under h.mu, so one receive frees a slot.
	select {
	case <-client.send:
	default:
	}
	select {
	case client.send <- ev:
	default:
		h.log.Info("terminal event lost", "jobId", ev.JobID)
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *Client) {
	if client.closed {
		return
	}
	client.closed = true
	close(client.send)

	if clients, ok := h.clients[client.JobID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.JobID)
		}
	}
	h.log.V(1).Info("client unsubscribed", "jobId", client.JobID)
}
