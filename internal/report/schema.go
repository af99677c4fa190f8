package report

import (
	"database/sql"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"codeberg.org/mutker/jetpwmon/internal/logger"
)

const (
	SchemaVersion = 1

	// children first
	dropTablesSQL = `
	   DROP TABLE IF EXISTS session_sensors;
	   DROP TABLE IF EXISTS sessions;
	   DROP TABLE IF EXISTS schema_versions;`

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS sessions (
	       id            INTEGER PRIMARY KEY AUTOINCREMENT,
	       started_at    TEXT NOT NULL,
	       ended_at      TEXT NOT NULL,
	       frequency_hz  REAL NOT NULL CHECK (frequency_hz > 0),
	       ticks         INTEGER NOT NULL,
	       overruns      INTEGER NOT NULL,
	       read_failures INTEGER NOT NULL,
	       power_min     REAL,
	       power_max     REAL,
	       power_avg     REAL,
	       energy_j      REAL NOT NULL,
	       power_count   INTEGER NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS session_sensors (
	       session_id    INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	       sensor_index  INTEGER NOT NULL,
	       name          TEXT NOT NULL,
	       kind          TEXT NOT NULL,
	       power_min     REAL,
	       power_max     REAL,
	       power_avg     REAL,
	       energy_j      REAL NOT NULL,
	       voltage_min   REAL,
	       voltage_max   REAL,
	       voltage_avg   REAL,
	       current_min   REAL,
	       current_max   REAL,
	       current_avg   REAL,
	       charge_c      REAL NOT NULL,
	       sample_count  INTEGER NOT NULL,
	       failures      INTEGER NOT NULL,
	       PRIMARY KEY (session_id, sensor_index)
	   );`

	insertSessionSQL = `
    INSERT INTO sessions (
        started_at, ended_at, frequency_hz,
        ticks, overruns, read_failures,
        power_min, power_max, power_avg, energy_j, power_count
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertSensorSQL = `
    INSERT INTO session_sensors (
        session_id, sensor_index, name, kind,
        power_min, power_max, power_avg, energy_j,
        voltage_min, voltage_max, voltage_avg,
        current_min, current_max, current_avg, charge_c,
        sample_count, failures
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema replaces any session tables with the current schema and records
// its version. Nothing changes unless the whole rebuild commits.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(dropTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "drop_tables",
			Error: err.Error(),
		})
	}

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "create_tables",
			Error: err.Error(),
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "record_version",
			Error: err.Error(),
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized")

	return nil
}

// GetSchemaVersion returns the newest recorded schema version, or 0 for an
// empty database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
