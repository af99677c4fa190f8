package report

import (
	"context"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/sampler"
	"codeberg.org/mutker/jetpwmon/internal/stats"
)

// Store persists one summary per sampling session.
type Store interface {
	Save(ctx context.Context, session *Session) (int64, error)
	Close() error
}

// Repository is the storage backend behind a Store.
type Repository interface {
	Save(ctx context.Context, session *Session) (int64, error)
	Close() error
}

// Session is the summary of one run: when it ran, at what rate, and the
// final statistics. Individual samples are never stored.
type Session struct {
	StartedAt   time.Time
	EndedAt     time.Time
	FrequencyHz float64
	Health      sampler.Health
	Stats       stats.Snapshot
}
