package report

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"codeberg.org/mutker/jetpwmon/internal/logger"
	"codeberg.org/mutker/jetpwmon/internal/stats"
	_ "github.com/mattn/go-sqlite3"
)

const timeFormat = time.RFC3339Nano

type repository struct {
	db     *sql.DB
	logger logger.Logger
}

// NewRepository opens (or creates) the SQLite database at cfg.DBPath and
// brings its schema up to date.
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_foreign_keys=1"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	backupDir := cfg.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(cfg.DBPath), "backups")
	}

	if err := ValidateAndUpdateSchema(db, backupDir, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Report repository initialized")

	return newRepository(db, log), nil
}

func newRepository(db *sql.DB, log logger.Logger) *repository {
	return &repository{db: db, logger: log}
}

// Save writes the session row and one row per sensor in one transaction
// and returns the new session id.
func (r *repository) Save(ctx context.Context, s *Session) (int64, error) {
	errFactory := errors.New()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.logger.Debug().Err(err).Msg("Failed to roll back session insert")
			}
		}
	}()

	total := s.Stats.Total.Power
	minP, maxP, avgP := bounds(total)
	res, err := tx.ExecContext(ctx, insertSessionSQL,
		s.StartedAt.UTC().Format(timeFormat),
		s.EndedAt.UTC().Format(timeFormat),
		s.FrequencyHz,
		int64(s.Stats.Ticks),
		int64(s.Health.Overruns),
		int64(s.Health.ReadFailures),
		minP, maxP, avgP,
		total.Total,
		int64(total.Count),
	)
	if err != nil {
		return 0, errFactory.WithData(ErrTransactionFailed, struct {
			Phase string
			Error string
		}{
			Phase: "insert_session",
			Error: err.Error(),
		})
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSensorSQL)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, row := range s.Stats.Sensors {
		pMin, pMax, pAvg := bounds(row.Power)
		vMin, vMax, vAvg := bounds(row.Voltage)
		cMin, cMax, cAvg := bounds(row.Current)

		if _, err := stmt.ExecContext(ctx,
			id,
			int64(row.Sensor.Index),
			row.Sensor.Name,
			string(row.Sensor.Kind),
			pMin, pMax, pAvg, row.Power.Total,
			vMin, vMax, vAvg,
			cMin, cMax, cAvg, row.Current.Total,
			int64(row.Power.Count),
			int64(row.Failures),
		); err != nil {
			return 0, errFactory.WithData(ErrTransactionFailed, struct {
				Phase  string
				Sensor string
				Error  string
			}{
				Phase:  "insert_sensor",
				Sensor: row.Sensor.String(),
				Error:  err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	r.logger.Debug().
		Int64("session_id", id).
		Int("sensors", len(s.Stats.Sensors)).
		Msg("Session report saved")

	return id, nil
}

func (r *repository) Close() error {
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	return nil
}

// bounds maps an empty view to SQL NULLs.
func bounds(v stats.View) (minV, maxV, avgV any) {
	if v.Empty() {
		return nil, nil, nil
	}
	return v.Min, v.Max, v.Avg
}
