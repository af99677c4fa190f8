// Package report stores per-session statistics summaries in SQLite.
package report

import (
	"context"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"codeberg.org/mutker/jetpwmon/internal/logger"
)

type service struct {
	repo Repository
	log  logger.Logger
}

type noopStore struct{}

// NewService returns a Store backed by SQLite, or a store that discards
// everything when reports are disabled.
func NewService(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Session reports disabled, using no-op store")
		return noopStore{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return newService(repo, log), nil
}

func newService(repo Repository, log logger.Logger) *service {
	return &service{repo: repo, log: log}
}

func (s *service) Save(ctx context.Context, session *Session) (int64, error) {
	errFactory := errors.New()

	if session == nil || session.FrequencyHz <= 0 {
		return 0, errFactory.New(ErrInvalidSession)
	}
	if session.EndedAt.Before(session.StartedAt) {
		return 0, errFactory.WithData(ErrInvalidSession, "session ends before it starts")
	}

	select {
	case <-ctx.Done():
		return 0, errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	id, err := s.repo.Save(ctx, session)
	if err != nil {
		return 0, errFactory.Wrap(ErrSaveFailed, err)
	}

	s.log.Info().
		Int64("session_id", id).
		Uint64("ticks", session.Stats.Ticks).
		Msg("Session report stored")

	return id, nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (noopStore) Save(context.Context, *Session) (int64, error) {
	return 0, nil
}

func (noopStore) Close() error {
	return nil
}
