package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// StreamName is the JetStream stream holding invite lifecycle events.
const StreamName = "INVITES"

// Subjects published on the invite stream
const (
	SubjectGenerated   = "invite.generated"
	SubjectRegenerated = "invite.regenerated"
	SubjectViewed      = "invite.viewed"
	SubjectDeleted     = "invite.deleted"
	SubjectExpired     = "invite.expired"
)

// Event wraps the payload with metadata
type Event struct {
	ID         string         `json:"id"`
	Subject    string         `json:"subject"`
	InviteID   string         `json:"invite_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(subject, inviteID string, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Subject:    subject,
		InviteID:   inviteID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers invite lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// JetStreamPublisher appends events to the INVITES stream
type JetStreamPublisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewJetStreamPublisher makes sure the stream exists and returns a publisher on it.
func NewJetStreamPublisher(nc *nats.Conn, logger *zap.Logger) (*JetStreamPublisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.StreamInfo(StreamName)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamName,
			Subjects: []string{"invite.>"},
			MaxAge:   30 * 24 * time.Hour,
		})
		if err == nil {
			logger.Info("Created event stream", zap.String("stream", StreamName))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}

	return &JetStreamPublisher{js: js, logger: logger}, nil
}

// Publish appends the event. The event id doubles as the JetStream message id
// so retried publishes are de-duplicated.
func (p *JetStreamPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := p.js.Publish(ev.Subject, payload, nats.MsgId(ev.ID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Subject, err)
	}
	return nil
}

// Nop drops every event. Used when NATS is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Subjects lists the subjects of the recorded events in publish order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	subjects := make([]string, len(r.events))
	for i, ev := range r.events {
		subjects[i] = ev.Subject
	}
	return subjects
}
