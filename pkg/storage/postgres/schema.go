package postgres

import (
	"database/sql"
	"fmt"
)

// EnsureSchema creates the service tables when they do not exist.
// Cascade rules implement the deletion policy: removing a user or unit
// removes its association edges; removing a unit keeps the reports it
// referenced; removing a step detaches reports rather than deleting them.
func EnsureSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(80) NOT NULL UNIQUE,
		name VARCHAR(120),
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS units (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		description TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS user_units (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
		rls_filter_param VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, unit_id)
	);

	CREATE TABLE IF NOT EXISTS steps (
		id BIGSERIAL PRIMARY KEY,
		step_number INTEGER NOT NULL UNIQUE,
		name VARCHAR(120) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS reports (
		id BIGSERIAL PRIMARY KEY,
		report_id VARCHAR(120) NOT NULL UNIQUE,
		workspace_id VARCHAR(120) NOT NULL,
		dataset_id VARCHAR(120),
		name VARCHAR(200) NOT NULL,
		code VARCHAR(120),
		embed_url VARCHAR(500),
		step_id BIGINT REFERENCES steps(id) ON DELETE SET NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS report_units (
		report_id BIGINT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
		unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		PRIMARY KEY (report_id, unit_id)
	);

	CREATE TABLE IF NOT EXISTS links (
		id BIGSERIAL PRIMARY KEY,
		unit_id BIGINT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
		name VARCHAR(120) NOT NULL,
		url VARCHAR(500) NOT NULL,
		description TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS access_logs (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		report_id BIGINT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
		action VARCHAR(40) NOT NULL,
		ip VARCHAR(45),
		user_agent TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_user_units_unit ON user_units(unit_id);
	CREATE INDEX IF NOT EXISTS idx_report_units_unit ON report_units(unit_id);
	CREATE INDEX IF NOT EXISTS idx_reports_step ON reports(step_id);
	CREATE INDEX IF NOT EXISTS idx_access_logs_user ON access_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_access_logs_report ON access_logs(report_id);
	CREATE INDEX IF NOT EXISTS idx_access_logs_created ON access_logs(created_at DESC);
	`

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
