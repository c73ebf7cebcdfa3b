package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishPersistMessage hands a message to the ingest consumer.
func (p *Publisher) PublishPersistMessage(ctx context.Context, msg PersistMessage) error {
	return p.publish(ctx, SubjectPersistMessage, msg)
}

// PublishMessageStored announces a committed message.
func (p *Publisher) PublishMessageStored(ctx context.Context, event MessageStored) error {
	return p.publish(ctx, SubjectMessageStored, event)
}

// PublishSessionCleared announces a session reset.
func (p *Publisher) PublishSessionCleared(ctx context.Context, event SessionCleared) error {
	return p.publish(ctx, SubjectSessionCleared, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
