package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/jiwon-platform/chatmemory/internal/metrics"
	inats "github.com/jiwon-platform/chatmemory/internal/nats"
)

// errMalformedEvent marks payloads that will never succeed on redelivery.
var errMalformedEvent = errors.New("malformed event")

// ConsumerSource creates durable consumers. *nats.Client satisfies it.
type ConsumerSource interface {
	EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error)
}

// Consumer feeds JetStream messages into the Service: persist requests from
// the chat layer and session-cleared events.
type Consumer struct {
	svc    *Service
	source ConsumerSource
}

// NewConsumer creates a new conversation Consumer.
func NewConsumer(svc *Service, source ConsumerSource) *Consumer {
	return &Consumer{svc: svc, source: source}
}

// Start runs both consume loops. Blocks until ctx is cancelled or a loop fails to start.
func (c *Consumer) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.run(ctx, inats.StreamMessages, "chat-persister", inats.SubjectPersistMessage, c.handlePersist)
	})
	g.Go(func() error {
		return c.run(ctx, inats.StreamEvents, "session-clearer", inats.SubjectSessionCleared, c.handleSessionCleared)
	})
	return g.Wait()
}

func (c *Consumer) run(ctx context.Context, stream, name, subject string, handle func(context.Context, []byte) error) error {
	consumer, err := c.source.EnsureConsumer(ctx, stream, name, subject)
	if err != nil {
		return err
	}

	slog.Info("conversation consumer started", "consumer", name)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("fetching messages", "consumer", name, "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			settle(msg, name, handle(ctx, msg.Data()))
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func settle(msg jetstream.Msg, consumer string, err error) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, errMalformedEvent):
		slog.Error("dropping event", "consumer", consumer, "subject", msg.Subject(), "error", err)
		_ = msg.Term()
	default:
		slog.Error("handling event", "consumer", consumer, "subject", msg.Subject(), "error", err)
		_ = msg.Nak()
	}
}

func (c *Consumer) handlePersist(ctx context.Context, data []byte) error {
	var in inats.PersistMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %w", errMalformedEvent, err)
	}
	if in.SessionID == "" || in.Content == "" {
		return fmt.Errorf("%w: session_id and content are required", errMalformedEvent)
	}

	msg, err := c.svc.Record(ctx, RecordRequest{
		SessionID: in.SessionID,
		UserID:    in.UserID,
		Role:      in.Role,
		Content:   in.Content,
	})
	if errors.Is(err, ErrInvalidRole) {
		return fmt.Errorf("%w: %w", errMalformedEvent, err)
	}
	if err != nil {
		return err
	}

	lag, ok := ingestLag(in.SentAt, msg.CreatedAt)
	if ok {
		metrics.IngestLag.Observe(lag.Seconds())
	}
	slog.Debug("persisted chat message",
		"id", msg.ID, "session_id", msg.SessionID, "embedded", msg.HasEmbedding(), "lag", lag)
	return nil
}

// ingestLag is the delay between the chat layer sending a message and its
// row being stored. Events without a send time, or with a clock ahead of the
// database, report no lag.
func ingestLag(sentAt, storedAt time.Time) (time.Duration, bool) {
	if sentAt.IsZero() || storedAt.Before(sentAt) {
		return 0, false
	}
	return storedAt.Sub(sentAt), true
}

func (c *Consumer) handleSessionCleared(ctx context.Context, data []byte) error {
	var event inats.SessionCleared
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %w", errMalformedEvent, err)
	}
	if event.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", errMalformedEvent)
	}

	_, err := c.svc.ClearSession(ctx, event.SessionID)
	return err
}
