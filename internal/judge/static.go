package judge

import (
	"context"

	"github.com/programme-lv/rayjudge/api"
)

// Static answers every request with the same status or error.
type Static struct {
	Status string
	Err    error
}

func (s Static) Judge(_ context.Context, cfg *api.JudgeConfig) (*api.JudgeResult, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &api.JudgeResult{ID: cfg.ID, Status: s.Status}, nil
}

// DryRun accepts every request without judging it.
type DryRun struct{}

func (DryRun) Judge(_ context.Context, cfg *api.JudgeConfig) (*api.JudgeResult, error) {
	return &api.JudgeResult{ID: cfg.ID, Status: api.StatusSkipped}, nil
}
