package report

import "codeberg.org/mutker/jetpwmon/internal/errors"

const (
	defaultDirPerm   = 0o755
	defaultDBPath    = "/var/lib/jetpwmon/sessions.db"
	defaultBackupDir = "/var/lib/jetpwmon/backups"
)

type Config struct {
	DBPath    string
	BackupDir string
	Enabled   bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:    defaultDBPath,
		BackupDir: defaultBackupDir,
		Enabled:   false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// paths only matter when reports are written
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}
