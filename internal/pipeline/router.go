package pipeline

import (
	"log/slog"
)

// Router is the per-message broker callback. It only decodes, enqueues and
// signals; it never waits for judging.
type Router struct {
	p      *Pipeline
	logger *slog.Logger
}

func NewRouter(p *Pipeline, logger *slog.Logger) *Router {
	if logger == nil {
		logger = p.logger
	}
	return &Router{p: p, logger: logger}
}

// Route handles one delivery. Malformed payloads are rejected without
// requeue; everything else is left for a worker to resolve.
func (r *Router) Route(d Delivery) {
	r.p.stats.delivered.Inc()

	cfg, err := DecodePayload(d.Body, d.ContentEncoding)
	if err != nil {
		r.logger.Error("rejecting judge request",
			slog.Uint64("tag", d.Tag), slog.String("error", err.Error()))
		r.p.stats.rejected.Inc()
		if err := d.Acknowledger.Reject(d.Tag, false); err != nil {
			r.p.stats.ackFailures.Inc()
			r.logger.Error("failed to reject delivery",
				slog.Uint64("tag", d.Tag), slog.String("error", err.Error()))
		}
		return
	}

	item := WorkItem{
		Acknowledger:  d.Acknowledger,
		Tag:           d.Tag,
		Config:        cfg,
		DeliveryCount: d.DeliveryCount,
	}
	if !r.p.enqueue(item) {
		r.logger.Warn("delivery tag is already awaiting resolution",
			slog.Uint64("tag", d.Tag), slog.Int64("job_id", cfg.ID))
		return
	}
	r.logger.Info("accepted judge request",
		slog.Uint64("tag", d.Tag), slog.Int64("job_id", cfg.ID),
		slog.Int64("delivery", d.DeliveryCount))
}
