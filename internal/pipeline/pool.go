package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/programme-lv/rayjudge/internal/judge"
	"golang.org/x/sync/errgroup"
)

// Pool is the fixed set of workers. Its size is the only bound on how many
// requests are judged at the same time.
type Pool struct {
	p             *Pipeline
	workers       []*Worker
	sink          ResultSink
	maxDeliveries int64
	busy          mapset.Set[int]
	logger        *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithResultSink publishes the result of every acknowledged request.
func WithResultSink(sink ResultSink) PoolOption {
	return func(pl *Pool) { pl.sink = sink }
}

// WithMaxDeliveries dead-letters a failing request once the broker has
// delivered it n times. Zero requeues forever.
func WithMaxDeliveries(n int64) PoolOption {
	return func(pl *Pool) { pl.maxDeliveries = n }
}

// WithPoolLogger sets the logger workers derive theirs from.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(pl *Pool) { pl.logger = logger }
}

func NewPool(p *Pipeline, size int, newExecutor judge.Factory, opts ...PoolOption) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", size)
	}
	if newExecutor == nil {
		return nil, fmt.Errorf("no judge executor configured")
	}

	pl := &Pool{
		p:      p,
		busy:   mapset.NewSet[int](),
		logger: p.logger,
	}
	for _, opt := range opts {
		opt(pl)
	}

	pl.workers = make([]*Worker, size)
	for i := range size {
		pl.workers[i] = &Worker{
			id:            i,
			p:             p,
			executor:      newExecutor(i),
			sink:          pl.sink,
			maxDeliveries: pl.maxDeliveries,
			busy:          pl.busy,
			logger:        pl.logger.With(slog.Int("worker", i)),
		}
	}
	return pl, nil
}

func (pl *Pool) Size() int { return len(pl.workers) }

// Busy returns how many workers are judging right now.
func (pl *Pool) Busy() int { return pl.busy.Cardinality() }

// Run starts one goroutine per worker and blocks until all of them have
// stopped after ctx is cancelled.
func (pl *Pool) Run(ctx context.Context) error {
	pl.logger.Info("starting judge workers", slog.Int("workers", len(pl.workers)))

	var g errgroup.Group
	for _, w := range pl.workers {
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}
	return g.Wait()
}
