package broker

import (
	"context"
	"errors"

	"github.com/programme-lv/rayjudge/internal/pipeline"
)

var (
	ErrConnect = errors.New("failed to connect to broker")
	ErrDeclare = errors.New("failed to declare broker topology")
)

// Broker is a message broker judge requests arrive through. Terminal
// resolution happens through each delivery's Acknowledger.
type Broker interface {
	Connect(ctx context.Context) error
	DeclareTopology(ctx context.Context) error
	Publish(ctx context.Context, body []byte) error
	// Consume calls handler once per inbound message on the caller's
	// goroutine until ctx is cancelled or the subscription breaks.
	Consume(ctx context.Context, handler func(pipeline.Delivery)) error
	Close() error
}
