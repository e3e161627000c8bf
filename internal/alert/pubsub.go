package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger
}

// PubSubPublisher forwards alert events to a GCP Pub/Sub topic so downstream
// consumers (notification fan-out, analytics) can react to them.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topicName string
	logger    zerolog.Logger
}

// eventEnvelope is the wire format for published events.
type eventEnvelope struct {
	ID           string         `json:"id"`
	LocationID   string         `json:"location_id"`
	LocationName string         `json:"location_name"`
	UserID       string         `json:"user_id"`
	Alerts       []alertPayload `json:"alerts"`
	EmittedAt    time.Time      `json:"emitted_at"`
}

type alertPayload struct {
	Category string    `json:"category"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	IssuedAt time.Time `json:"issued_at"`
}

// NewPubSubPublisher creates a publisher bound to a topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.TopicName),
		topicName: cfg.TopicName,
		logger:    cfg.Logger,
	}, nil
}

// Publish sends one event to the topic and waits for the server ack.
func (p *PubSubPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(toEnvelope(event))
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"location_id": event.LocationID,
			"user_id":     event.UserID,
		},
	})

	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("topic", p.topicName).
		Str("event_id", event.ID.String()).
		Msg("alert event published")

	return nil
}

// Close flushes pending messages and releases the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

func toEnvelope(event Event) eventEnvelope {
	alerts := make([]alertPayload, 0, len(event.Alerts))
	for _, a := range event.Alerts {
		alerts = append(alerts, alertPayload{
			Category: string(a.Category),
			Severity: string(a.Severity),
			Message:  a.Message,
			IssuedAt: a.IssuedAt,
		})
	}

	return eventEnvelope{
		ID:           event.ID.String(),
		LocationID:   event.LocationID,
		LocationName: event.LocationName,
		UserID:       event.UserID,
		Alerts:       alerts,
		EmittedAt:    event.EmittedAt,
	}
}

var _ Publisher = (*PubSubPublisher)(nil)
