package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the process holds more goroutines than
// limit. Registered as a liveness check it catches goroutine leaks before
// they exhaust memory.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds limit %d", n, limit)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when any recorded stop-the-world GC pause exceeded
// limit, which usually means the heap has grown past what the pod can serve
// from.
func GCMaxPauseCheck(limit time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		for _, pause := range stats.Pause {
			if pause > limit {
				return errors.Errorf("GC pause %s exceeds limit %s", pause, limit)
			}
		}
		return nil
	}
}
