package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is an in-process domain event. Nothing is persisted; subscribers that
// need durability enqueue their own work.
type Event struct {
	ID         uuid.UUID
	Topic      string
	SessionID  uuid.UUID
	Payload    json.RawMessage
	OccurredAt time.Time
}

// Notifier reacts to emitted events (metrics, logs, task enqueues).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus fans emitted events out to the configured notifiers.
type Bus struct {
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit validates and dispatches the event to all notifiers. Notifier errors
// are joined and returned but never abort the remaining notifiers.
func (b *Bus) Emit(ctx context.Context, topic string, sessionID uuid.UUID, payload any) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:         uuid.New(),
		Topic:      topic,
		SessionID:  sessionID,
		Payload:    encoded,
		OccurredAt: now(),
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
