package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck makes a liveness Check that fails once the process
// runs more than limit goroutines. A steadily climbing count usually
// means a leak.
func GoroutineCountCheck(limit int) Check {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines running, limit is %d", n, limit)
		}
		return nil
	}
}

// GCPauseCheck makes a liveness Check that fails when the most recent
// stop-the-world GC pause exceeded limit.
func GCPauseCheck(limit time.Duration) Check {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		if len(stats.Pause) == 0 {
			return nil
		}
		if pause := stats.Pause[0]; pause > limit {
			return errors.Errorf("last GC pause %s exceeded limit %s", pause, limit)
		}
		return nil
	}
}
