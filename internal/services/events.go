package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/postmod/apiserver/types"
)

const defaultPublishTimeout = 3 * time.Second

// Publisher is the subset of the message queue used to emit events.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// EventPublisher announces stored and removed entities on a broker
// channel. A nil *EventPublisher drops every event.
type EventPublisher struct {
	pub     Publisher
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

func NewEventPublisher(pub Publisher, channel string, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{
		pub:     pub,
		channel: channel,
		timeout: defaultPublishTimeout,
		logger:  logger.With("component", "events"),
	}
}

// Emit publishes event. Broker failures are logged and swallowed.
func (p *EventPublisher) Emit(ctx context.Context, event types.Event) {
	if p == nil || p.pub == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode event", "type", event.Type, "error", err)
		return
	}

	// The request may already be finishing; publishing gets its own budget.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	attrs := map[string]string{"type": string(event.Type)}
	if _, err := p.pub.Publish(ctx, p.channel, data, attrs); err != nil {
		p.logger.Warn("publish event", "type", event.Type, "id", event.ID, "error", err)
		return
	}
	p.logger.Debug("event published", "type", event.Type, "id", event.ID)
}
