package report

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"codeberg.org/mutker/jetpwmon/internal/logger"
)

// migrationStep is attached to ErrSchemaMigrationFailed.
type migrationStep struct {
	Phase string
	Path  string
	Error string
}

// ValidateAndUpdateSchema makes sure db carries the current session schema.
// Sessions written under another version are copied to backupDir before the
// tables are rebuilt; they are not converted.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return errors.New().Wrap(ErrSchemaValidationFailed, err)
	}
	if version == SchemaVersion {
		return nil
	}

	if version != 0 {
		path, err := backupSessions(db, backupDir, version)
		if err != nil {
			return err
		}
		log.Warn().
			Int("found", version).
			Int("want", SchemaVersion).
			Str("backup", path).
			Msg("Session schema changed, previous reports backed up")
	}

	return InitSchema(db, log)
}

// backupSessions copies the whole database next to the other backups and
// returns the copy's path.
func backupSessions(db *sql.DB, dir string, version int) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed,
			migrationStep{Phase: "create_backup_dir", Path: dir, Error: err.Error()})
	}

	name := fmt.Sprintf("sessions_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)

	// VACUUM INTO takes a literal, not a bind parameter, and cannot run in a transaction
	if _, err := db.Exec("VACUUM INTO '" + strings.ReplaceAll(path, "'", "''") + "'"); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed,
			migrationStep{Phase: "backup", Path: path, Error: err.Error()})
	}

	return path, nil
}
