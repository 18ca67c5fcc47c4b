package notifications

import (
	"context"
	"encoding/json"
	"time"

	"studyhub/internal/observability"
)

// Event is the frame pushed to notification sockets.
type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher pushes user events through Redis when available so every
// instance sees them, and straight to the local hub otherwise.
type Dispatcher struct {
	hub      *Hub
	notifier *Notifier
}

func NewDispatcher(hub *Hub, notifier *Notifier) *Dispatcher {
	return &Dispatcher{hub: hub, notifier: notifier}
}

// NotifyUser delivers an event to every socket of userID.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID uint, eventType string, payload any) {
	frame, err := json.Marshal(Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		observability.LogAsyncOperationError(ctx, "notify_user.marshal", err, map[string]any{"user_id": userID, "type": eventType})
		return
	}
	if d.notifier.Enabled() {
		err := d.notifier.PublishUser(ctx, userID, string(frame))
		if err == nil {
			return
		}
		observability.LogAsyncOperationError(ctx, "notify_user.publish", err, map[string]any{"user_id": userID, "type": eventType})
	}
	if d.hub != nil {
		d.hub.Broadcast(userID, frame)
	}
}

// Announce sends an event to every connected user.
func (d *Dispatcher) Announce(ctx context.Context, eventType string, payload any) {
	frame, err := json.Marshal(Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}
	if d.notifier.Enabled() {
		if err := d.notifier.PublishBroadcast(ctx, string(frame)); err == nil {
			return
		}
	}
	if d.hub != nil {
		d.hub.BroadcastAll(frame)
	}
}
