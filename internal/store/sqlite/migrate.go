package sqlite

// migrate creates the schema. Statements are idempotent so opening an
// existing database is safe.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_id INTEGER NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0,
		utc_offset_minutes INTEGER NOT NULL DEFAULT 0,
		max_work_hours REAL,
		max_commute_hours REAL,
		max_lunch_hours REAL,
		lunch_reminder_hour INTEGER,
		lunch_reminder_minute INTEGER,
		target_work_hours REAL,
		target_office_hours REAL,
		forgot_shutdown_threshold_percent REAL,
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_external_id ON users(external_id);

	CREATE TABLE IF NOT EXISTS tracking_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		state TEXT NOT NULL CHECK(state IN ('commuting', 'working', 'lunch')),
		started_at TEXT NOT NULL,
		ended_at TEXT,
		commute_direction TEXT CHECK(commute_direction IN ('to_work', 'to_home')),
		note TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON tracking_sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_active ON tracking_sessions(user_id) WHERE ended_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_sessions_user_started ON tracking_sessions(user_id, started_at);

	CREATE TABLE IF NOT EXISTS pending_mnemonics (
		id TEXT PRIMARY KEY,
		user_id TEXT REFERENCES users(id) ON DELETE CASCADE,
		phrase TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		is_consumed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_mnemonics_phrase ON pending_mnemonics(phrase);
	CREATE INDEX IF NOT EXISTS idx_mnemonics_expires ON pending_mnemonics(expires_at);

	CREATE TABLE IF NOT EXISTS employer_attendance_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		clock_in TEXT,
		clock_out TEXT,
		working_hours REAL NOT NULL DEFAULT 0,
		has_conflict INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_employer_user_date ON employer_attendance_records(user_id, date);

	CREATE TABLE IF NOT EXISTS employer_import_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		source TEXT NOT NULL,
		rows_imported INTEGER NOT NULL,
		conflicts INTEGER NOT NULL,
		imported_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_compliance_rules (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		rule_type TEXT NOT NULL,
		is_enabled INTEGER NOT NULL DEFAULT 1,
		threshold_hours REAL NOT NULL,
		clock_in_def TEXT NOT NULL,
		clock_out_def TEXT NOT NULL,
		fixed_clock_in TEXT NOT NULL DEFAULT '',
		fixed_clock_out TEXT NOT NULL DEFAULT ''
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_user_type ON user_compliance_rules(user_id, rule_type);

	CREATE TABLE IF NOT EXISTS lunch_reminders (
		user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		reminded_on TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_holidays_user ON holidays(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}
