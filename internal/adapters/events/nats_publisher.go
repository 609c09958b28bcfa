package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// MsgPublisher is the subset of *nats.Conn used for publishing.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Envelope wraps every published payload.
type Envelope struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NATSPublisher publishes events as JSON envelopes. Each message carries a
// ULID in the Nats-Msg-Id header so JetStream can de-duplicate retries.
type NATSPublisher struct {
	conn    MsgPublisher
	prefix  string
	marshal func(any) ([]byte, error)
	now     func() time.Time
}

func NewNATSPublisher(conn MsgPublisher, subjectPrefix string) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.New("nats publisher: connection is required")
	}
	prefix := strings.Trim(strings.TrimSpace(subjectPrefix), ".")
	return &NATSPublisher{
		conn:    conn,
		prefix:  prefix,
		marshal: json.Marshal,
		now:     time.Now,
	}, nil
}

func (p *NATSPublisher) subject(topic string) string {
	if p.prefix == "" {
		return topic
	}
	return p.prefix + "." + topic
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return errors.New("nats publisher: topic is required")
	}

	body, err := p.marshal(payload)
	if err != nil {
		return fmt.Errorf("nats publisher: encode payload: %w", err)
	}

	env := Envelope{
		ID:         ulid.Make().String(),
		Topic:      topic,
		OccurredAt: p.now().UTC(),
		Payload:    body,
	}
	data, err := p.marshal(env)
	if err != nil {
		return fmt.Errorf("nats publisher: encode envelope: %w", err)
	}

	msg := nats.NewMsg(p.subject(topic))
	msg.Header.Set(nats.MsgIdHdr, env.ID)
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = data

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publisher: publish %s: %w", msg.Subject, err)
	}
	return nil
}
