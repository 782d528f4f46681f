package judge

import (
	"context"
	"fmt"

	"github.com/programme-lv/rayjudge/api"
)

// The sandboxed compile/run/compare pipeline lives outside this service;
// the platform executors only mark where it plugs in.

type linuxExecutor struct {
	workerID int
}

func (e *linuxExecutor) Judge(_ context.Context, cfg *api.JudgeConfig) (*api.JudgeResult, error) {
	return nil, fmt.Errorf("executor %d: not implemented (linux, job %d)", e.workerID, cfg.ID)
}

type windowsExecutor struct {
	workerID int
}

func (e *windowsExecutor) Judge(_ context.Context, cfg *api.JudgeConfig) (*api.JudgeResult, error) {
	return nil, fmt.Errorf("executor %d: not implemented (windows, job %d)", e.workerID, cfg.ID)
}
