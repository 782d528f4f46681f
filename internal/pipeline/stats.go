package pipeline

import (
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"
)

type Stats struct {
	delivered    *xsync.Counter
	rejected     *xsync.Counter
	acked        *xsync.Counter
	nacked       *xsync.Counter
	deadLettered *xsync.Counter
	ackFailures  *xsync.Counter
}

func newStats() *Stats {
	return &Stats{
		delivered:    xsync.NewCounter(),
		rejected:     xsync.NewCounter(),
		acked:        xsync.NewCounter(),
		nacked:       xsync.NewCounter(),
		deadLettered: xsync.NewCounter(),
		ackFailures:  xsync.NewCounter(),
	}
}

type StatsSnapshot struct {
	Delivered    int64
	Rejected     int64
	Acked        int64
	Nacked       int64
	DeadLettered int64
	AckFailures  int64
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Delivered:    s.delivered.Value(),
		Rejected:     s.rejected.Value(),
		Acked:        s.acked.Value(),
		Nacked:       s.nacked.Value(),
		DeadLettered: s.deadLettered.Value(),
		AckFailures:  s.ackFailures.Value(),
	}
}

func (s StatsSnapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("delivered", s.Delivered),
		slog.Int64("rejected", s.Rejected),
		slog.Int64("acked", s.Acked),
		slog.Int64("nacked", s.Nacked),
		slog.Int64("dead_lettered", s.DeadLettered),
		slog.Int64("ack_failures", s.AckFailures),
	)
}
