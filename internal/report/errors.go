package report

import "codeberg.org/mutker/jetpwmon/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("report_invalid_db_path")

	ErrSchemaInitFailed       = errors.ErrorCode("report_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("report_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("report_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("report_transaction_failed")

	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	ErrInvalidSession = errors.ErrorCode("report_invalid_session")
	ErrSaveFailed     = errors.ErrorCode("report_save_failed")

	ErrOperationTimeout = errors.ErrTimeout
)
