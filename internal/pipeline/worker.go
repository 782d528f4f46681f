package pipeline

import (
	"context"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/programme-lv/rayjudge/api"
	"github.com/programme-lv/rayjudge/internal/judge"
)

// ResultSink receives the results of acknowledged judge requests.
type ResultSink interface {
	Publish(ctx context.Context, res api.JudgeResult) error
}

// Worker waits on the signal, drains the queue, judges and resolves.
type Worker struct {
	id            int
	p             *Pipeline
	executor      judge.Executor
	sink          ResultSink
	maxDeliveries int64
	busy          mapset.Set[int]
	logger        *slog.Logger
}

func (w *Worker) ID() int { return w.id }

// Run loops until ctx is cancelled. An item that is already being judged is
// finished and resolved before Run returns.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")

	for {
		if err := w.p.signal.Acquire(ctx); err != nil {
			return
		}
		for ctx.Err() == nil {
			item, ok := w.p.queue.Pop()
			if !ok {
				break
			}
			w.process(context.WithoutCancel(ctx), item)
		}
	}
}

func (w *Worker) process(ctx context.Context, item WorkItem) {
	w.busy.Add(w.id)
	defer w.busy.Remove(w.id)

	logger := w.logger.With(slog.Int64("job_id", item.Config.ID), slog.Uint64("tag", item.Tag))

	res, err := w.executor.Judge(ctx, item.Config)
	if err != nil {
		action := Nack
		if w.maxDeliveries > 0 && item.DeliveryCount >= w.maxDeliveries {
			action = DeadLetter
		}
		logger.Error("failed to judge request",
			slog.String("error", err.Error()),
			slog.Int64("delivery", item.DeliveryCount),
			slog.String("action", action.String()))
		w.resolve(logger, item, action)
		return
	}

	logger.Info("judged request", slog.String("status", res.Status))
	if !w.resolve(logger, item, Ack) {
		return
	}
	if w.sink != nil {
		if err := w.sink.Publish(ctx, *res); err != nil {
			logger.Error("failed to publish judge result", slog.String("error", err.Error()))
		}
	}
}

// resolve never stops the worker: a failed broker call is only logged.
func (w *Worker) resolve(logger *slog.Logger, item WorkItem, action Action) bool {
	if err := w.p.Resolve(item, action); err != nil {
		logger.Error("failed to resolve delivery", slog.String("error", err.Error()))
		return false
	}
	return true
}
