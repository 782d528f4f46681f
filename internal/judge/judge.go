package judge

import (
	"context"
	"fmt"
	"runtime"

	"github.com/programme-lv/rayjudge/api"
)

// Executor judges a single request. Implementations must be safe to call
// from the worker they are bound to.
type Executor interface {
	Judge(ctx context.Context, cfg *api.JudgeConfig) (*api.JudgeResult, error)
}

// Factory builds the executor bound to a worker.
type Factory func(workerID int) Executor

// Executor kinds accepted by New.
const (
	KindHost   = "host"
	KindDryRun = "dryrun"
)

// New returns the executor factory for kind.
func New(kind string) (Factory, error) {
	switch kind {
	case "", KindHost:
		return ForPlatform(runtime.GOOS)
	case KindDryRun:
		return func(int) Executor { return DryRun{} }, nil
	}
	return nil, fmt.Errorf("unknown executor kind %q", kind)
}

// ForPlatform picks the platform executor for goos.
func ForPlatform(goos string) (Factory, error) {
	switch goos {
	case "linux":
		return func(id int) Executor { return &linuxExecutor{workerID: id} }, nil
	case "windows":
		return func(id int) Executor { return &windowsExecutor{workerID: id} }, nil
	}
	return nil, fmt.Errorf("no judge executor for platform %q", goos)
}

// Describe names the executor selected by kind on this host.
func Describe(kind string) string {
	if kind == KindDryRun {
		return "dry run (acks every request)"
	}
	return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
}
