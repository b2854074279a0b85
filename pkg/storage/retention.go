package storage

import (
	"context"
	"log/slog"
	"time"
)

// Purger removes items whose activity predates the cutoff and reports how
// many were removed. The memory store and both aggregators implement this.
type Purger interface {
	PurgeOlderThan(cutoff time.Time) int
}

// RetentionLoop periodically purges aged-out telemetry from a set of purgers.
// The ClickHouse backend handles its own retention through engine TTLs and
// is not registered here.
type RetentionLoop struct {
	maxAge   time.Duration
	interval time.Duration
	purgers  map[string]Purger
	logger   *slog.Logger
}

// NewRetentionLoop creates a loop purging the named targets every interval.
func NewRetentionLoop(maxAge, interval time.Duration, logger *slog.Logger) *RetentionLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionLoop{
		maxAge:   maxAge,
		interval: interval,
		purgers:  make(map[string]Purger),
		logger:   logger,
	}
}

// Register adds a purge target under a name used in logs.
func (l *RetentionLoop) Register(name string, p Purger) {
	l.purgers[name] = p
}

// Run blocks until ctx is cancelled, purging on every tick. A purge pass also
// runs immediately on start so restarts do not extend retention.
func (l *RetentionLoop) Run(ctx context.Context) {
	if l.maxAge <= 0 {
		l.logger.Info("retention disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.purge()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.purge()
		}
	}
}

func (l *RetentionLoop) purge() {
	cutoff := time.Now().Add(-l.maxAge)
	for name, p := range l.purgers {
		if removed := p.PurgeOlderThan(cutoff); removed > 0 {
			l.logger.Info("purged aged telemetry", "target", name, "removed", removed, "cutoff", cutoff)
		}
	}
}
