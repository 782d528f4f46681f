package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/programme-lv/rayjudge/api"
)

const scenarioA = `{"id":1,"type":"programming","program":{"language":"csharp","compile_args":[],"sources":[]},"stages":[],"testcases":[]}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jobPayload(id int) []byte {
	return []byte(`{"id":` + strconv.Itoa(id) + `,"type":"programming","program":{"language":"cpp","compile_args":[],"sources":[]},"stages":[],"testcases":[]}`)
}

// recordingAcker records every terminal call per delivery tag.
type recordingAcker struct {
	mu      sync.Mutex
	calls   map[uint64][]string
	failAck bool
}

func newRecordingAcker() *recordingAcker {
	return &recordingAcker{calls: make(map[uint64][]string)}
}

func (r *recordingAcker) record(tag uint64, call string) {
	r.mu.Lock()
	r.calls[tag] = append(r.calls[tag], call)
	r.mu.Unlock()
}

func (r *recordingAcker) Ack(tag uint64, _ bool) error {
	r.record(tag, "ack")
	if r.failAck {
		return errors.New("channel closed")
	}
	return nil
}

func (r *recordingAcker) Nack(tag uint64, _ bool, requeue bool) error {
	if requeue {
		r.record(tag, "nack")
	} else {
		r.record(tag, "nack-drop")
	}
	return nil
}

func (r *recordingAcker) Reject(tag uint64, requeue bool) error {
	if requeue {
		r.record(tag, "reject-requeue")
	} else {
		r.record(tag, "reject")
	}
	return nil
}

func (r *recordingAcker) resolved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingAcker) snapshot() map[uint64][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint64][]string, len(r.calls))
	for k, v := range r.calls {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// gaugeExecutor records how many judge calls overlap.
type gaugeExecutor struct {
	cur   *atomic.Int64
	peak  *atomic.Int64
	calls *atomic.Int64
	delay time.Duration
	err   error
}

func newGauge(delay time.Duration, err error) *gaugeExecutor {
	return &gaugeExecutor{
		cur:   &atomic.Int64{},
		peak:  &atomic.Int64{},
		calls: &atomic.Int64{},
		delay: delay,
		err:   err,
	}
}

func (g *gaugeExecutor) Judge(_ context.Context, cfg *api.JudgeConfig) (*api.JudgeResult, error) {
	g.calls.Add(1)
	n := g.cur.Add(1)
	defer g.cur.Add(-1)
	for {
		m := g.peak.Load()
		if n <= m || g.peak.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(g.delay)
	if g.err != nil {
		return nil, g.err
	}
	return &api.JudgeResult{ID: cfg.ID, Status: api.StatusAccepted}, nil
}

type memorySink struct {
	mu      sync.Mutex
	results []api.JudgeResult
}

func (m *memorySink) Publish(_ context.Context, res api.JudgeResult) error {
	m.mu.Lock()
	m.results = append(m.results, res)
	m.mu.Unlock()
	return nil
}

func (m *memorySink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}
