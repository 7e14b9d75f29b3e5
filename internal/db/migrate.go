package db

import (
	"fmt"

	"github.com/PremBamrung/tempy/internal/models"
	"gorm.io/gorm"
)

// Migrate brings the schema up to date for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.File{},
		&models.FileHistory{},
		&models.UserActivityLog{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_files_owner_id_filename",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_files_owner_id_filename
				ON files (owner_id, filename)
			`,
		},
		{
			name: "idx_file_histories_file_id_timestamp",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_file_histories_file_id_timestamp
				ON file_histories (file_id, timestamp ASC, id ASC)
			`,
		},
		{
			name: "idx_user_activity_logs_user_id_timestamp",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_user_activity_logs_user_id_timestamp
				ON user_activity_logs (user_id, timestamp ASC, id ASC)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}
