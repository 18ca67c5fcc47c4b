package notifications

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"studyhub/internal/observability"
)

const (
	sseHeartbeat  = 25 * time.Second
	sseBufferSize = 64
)

// SSEClient is one subscriber of the admin live feed.
type SSEClient struct {
	events chan []byte
	done   chan struct{}
	once   sync.Once
}

// Events yields formatted SSE frames.
func (c *SSEClient) Events() <-chan []byte { return c.events }

func (c *SSEClient) close() {
	c.once.Do(func() { close(c.done) })
}

// SSEBroker fans audit and analytics events out to admin dashboards over
// Server-Sent Events. Slow subscribers lose events instead of blocking
// publishers.
type SSEBroker struct {
	mu        sync.RWMutex
	clients   map[*SSEClient]struct{}
	heartbeat time.Duration
}

func NewSSEBroker() *SSEBroker {
	return &SSEBroker{
		clients:   make(map[*SSEClient]struct{}),
		heartbeat: sseHeartbeat,
	}
}

func (b *SSEBroker) Subscribe() *SSEClient {
	c := &SSEClient{
		events: make(chan []byte, sseBufferSize),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	n := len(b.clients)
	b.mu.Unlock()
	observability.SSEClients.Set(float64(n))
	return c
}

func (b *SSEBroker) Unsubscribe(c *SSEClient) {
	b.mu.Lock()
	delete(b.clients, c)
	n := len(b.clients)
	b.mu.Unlock()
	c.close()
	observability.SSEClients.Set(float64(n))
}

func (b *SSEBroker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish formats data as an SSE event and offers it to every subscriber.
func (b *SSEBroker) Publish(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	frame := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, raw))

	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		select {
		case c.events <- frame:
		default:
			observability.WebSocketBackpressureDrops.WithLabelValues("admin_live", "buffer_full").Inc()
		}
	}
}

// Stream writes c's events to w until ctx ends, the client is closed, or a
// write fails. A comment line keeps idle connections open.
func (b *SSEBroker) Stream(ctx context.Context, c *SSEClient, w *bufio.Writer) error {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	if _, err := w.WriteString(": connected\n\n"); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case frame := <-c.events:
			if _, err := w.Write(frame); err != nil {
				return err
			}
		case <-ticker.C:
			if _, err := w.WriteString(": heartbeat\n\n"); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
}

// Close disconnects every subscriber.
func (b *SSEBroker) Close() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[*SSEClient]struct{})
	b.mu.Unlock()
	for c := range clients {
		c.close()
	}
	observability.SSEClients.Set(0)
}
