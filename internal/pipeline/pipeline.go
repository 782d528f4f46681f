package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
)

var ErrAlreadyResolved = errors.New("delivery already resolved")

// Action is the terminal broker call issued for a delivery.
type Action int

const (
	Ack Action = iota
	Nack
	Reject
	DeadLetter
)

func (a Action) String() string {
	switch a {
	case Ack:
		return "ack"
	case Nack:
		return "nack"
	case Reject:
		return "reject"
	case DeadLetter:
		return "dead-letter"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Pipeline owns the state shared by the delivery router and the workers.
type Pipeline struct {
	queue  *Queue
	signal *Signal
	ledger *ledger
	stats  *Stats
	logger *slog.Logger
}

func New(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		queue:  NewQueue(),
		signal: NewSignal(),
		ledger: newLedger(),
		stats:  newStats(),
		logger: logger,
	}
}

func (p *Pipeline) Queue() *Queue   { return p.queue }
func (p *Pipeline) Signal() *Signal { return p.signal }
func (p *Pipeline) Stats() *Stats   { return p.stats }

// Pending returns the number of enqueued deliveries still awaiting resolution,
// including the ones a worker is executing.
func (p *Pipeline) Pending() int { return p.ledger.size() }

func (p *Pipeline) enqueue(item WorkItem) bool {
	if !p.ledger.register(item.Acknowledger, item.Tag) {
		return false
	}
	p.queue.Push(item)
	p.signal.Release()
	return true
}

// Resolve issues the terminal broker call for an enqueued item. A second
// resolution of the same tag returns ErrAlreadyResolved without touching
// the broker.
func (p *Pipeline) Resolve(item WorkItem, action Action) error {
	if !p.ledger.settle(item.Acknowledger, item.Tag) {
		return fmt.Errorf("failed to %s tag %d: %w", action, item.Tag, ErrAlreadyResolved)
	}

	var err error
	switch action {
	case Ack:
		err = item.Acknowledger.Ack(item.Tag, false)
		p.stats.acked.Inc()
	case Nack:
		err = item.Acknowledger.Nack(item.Tag, false, true)
		p.stats.nacked.Inc()
	case Reject:
		err = item.Acknowledger.Reject(item.Tag, false)
		p.stats.rejected.Inc()
	case DeadLetter:
		err = item.Acknowledger.Reject(item.Tag, false)
		p.stats.deadLettered.Inc()
	default:
		return fmt.Errorf("unknown action %d", int(action))
	}
	if err != nil {
		p.stats.ackFailures.Inc()
		return fmt.Errorf("failed to %s tag %d: %w", action, item.Tag, err)
	}
	return nil
}

// Drain nacks, with requeue, every item nobody has claimed yet. It is
// meant for shutdown after the workers have stopped.
func (p *Pipeline) Drain() int {
	n := 0
	for {
		item, ok := p.queue.Pop()
		if !ok {
			return n
		}
		if err := p.Resolve(item, Nack); err != nil {
			p.logger.Error("failed to return unclaimed delivery",
				slog.Uint64("tag", item.Tag), slog.String("error", err.Error()))
			continue
		}
		n++
	}
}
