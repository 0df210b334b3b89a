package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is a dependency that can be probed, such as a database pool, a
// Redis client or a Kafka client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes p.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// GoroutineCountCheck fails when more than limit goroutines are running,
// which usually means a leak.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when the most recent stop-the-world pause exceeded
// limit.
func GCMaxPauseCheck(limit time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		if len(stats.Pause) > 0 && stats.Pause[0] > limit {
			return errors.Errorf("last GC pause %s, limit %s", stats.Pause[0], limit)
		}
		return nil
	}
}
