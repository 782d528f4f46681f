package natssink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/rayjudge/api"
)

type publisher interface {
	Publish(subj string, data []byte) error
}

// Sink streams judge results as JSON to a NATS subject.
type Sink struct {
	pub     publisher
	subject string
	nc      *nats.Conn
}

// New publishes to subject over an existing connection.
func New(nc *nats.Conn, subject string) *Sink {
	return &Sink{pub: nc, subject: subject, nc: nc}
}

func Connect(url, subject string) (*Sink, error) {
	nc, err := nats.Connect(url, nats.Name("rayjudge"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return New(nc, subject), nil
}

func (s *Sink) Publish(ctx context.Context, res api.JudgeResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := s.pub.Publish(s.subject, b); err != nil {
		return fmt.Errorf("failed to publish result to nats: %w", err)
	}
	return nil
}

// Close flushes pending results and closes the connection.
func (s *Sink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
