package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/fpmake/internal/eventstore"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "fpmake.builds"

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes each event as JSON to "<subject>.<event type>".
type NATSPublisher struct {
	conn    *nats.Conn
	pub     publisher
	subject string
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("fpmake"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p := newPublisher(conn, subject)
	p.conn = conn

	slog.Info("NATS build notifications enabled", "url", url, "subject", p.subject)
	return p, nil
}

func newPublisher(pub publisher, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{pub: pub, subject: subject}
}

// Emit implements Emitter.
func (p *NATSPublisher) Emit(_ context.Context, e eventstore.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := p.subject + "." + e.Type
	if err := p.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Drain()
	if err != nil {
		p.conn.Close()
	}
	return err
}
