// Package publish fans accepted satellite positions out over NATS.
package publish

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/star/starglobe/internal/tracker"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "starglobe.satellite.position"

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher sends each position as a JSON message.
type Publisher struct {
	conn    conn
	subject string
	logger  *slog.Logger
}

// Connect dials url and returns a Publisher for subject. The connection keeps
// retrying in the background, so a broker that is down at startup is not
// fatal.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("starglobe"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(nc, subject, logger), nil
}

func newPublisher(c conn, subject string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: c, subject: subject, logger: logger}
}

// message is the wire form of a position.
type message struct {
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	Timestamp string  `json:"timestamp"`
	Source    string  `json:"source"`
}

// Publish sends pos.
func (p *Publisher) Publish(pos tracker.Position) error {
	data, err := json.Marshal(message{
		Lon:       pos.Lon,
		Lat:       pos.Lat,
		Timestamp: pos.Timestamp.UTC().Format(time.RFC3339),
		Source:    pos.Source,
	})
	if err != nil {
		return fmt.Errorf("encoding position: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.subject, err)
	}
	return nil
}

// Listener adapts Publish to tracker.Poller.OnUpdate; errors are logged.
func (p *Publisher) Listener() func(tracker.Position) {
	return func(pos tracker.Position) {
		if err := p.Publish(pos); err != nil {
			p.logger.Warn("position publish failed", "error", err)
		}
	}
}

// Close drains the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
