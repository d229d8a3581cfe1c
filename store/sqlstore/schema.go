package sqlstore

// schema is portable between SQLite and PostgreSQL: TEXT for identifiers,
// dates, timestamps and decimals, INTEGER for counters and flags.
var schema = []string{
	// Reference data
	`CREATE TABLE IF NOT EXISTS company_settings (
		company_id TEXT PRIMARY KEY,
		work_days TEXT NOT NULL,
		fiscal_year_start_month INTEGER NOT NULL DEFAULT 1,
		require_manager_approval INTEGER NOT NULL DEFAULT 1,
		require_hr_approval INTEGER NOT NULL DEFAULT 0,
		allow_negative_balance INTEGER NOT NULL DEFAULT 0,
		max_days_in_advance INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		manager_id TEXT,
		min_staff_required INTEGER NOT NULL DEFAULT 0,
		max_absent_same_day INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS team_blocked_periods (
		team_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_blocked_periods_team ON team_blocked_periods(team_id)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		team_id TEXT,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		hire_date TEXT,
		is_active INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_team ON users(team_id)`,
	`CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		default_days_per_year TEXT NOT NULL,
		requires_approval INTEGER NOT NULL DEFAULT 1,
		requires_justification INTEGER NOT NULL DEFAULT 0,
		color TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		UNIQUE (company_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		date TEXT NOT NULL,
		is_recurring INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_holidays_company_date ON holidays(company_id, date)`,

	// Transactional data
	`CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		is_half_day INTEGER NOT NULL DEFAULT 0,
		half_day_period TEXT NOT NULL DEFAULT '',
		days_count TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		cancelled_at TEXT
	)`,
	// Hot path: overlap and staffing checks
	`CREATE INDEX IF NOT EXISTS idx_requests_user_dates ON leave_requests(user_id, start_date, end_date)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_company_status ON leave_requests(company_id, status)`,
	`CREATE TABLE IF NOT EXISTS request_approvals (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		level TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		approver_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		decided_at TEXT,
		UNIQUE (request_id, level)
	)`,
	`CREATE TABLE IF NOT EXISTS leave_balances (
		user_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		initial_balance TEXT NOT NULL,
		used_days TEXT NOT NULL,
		pending_days TEXT NOT NULL,
		remaining_days TEXT NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (user_id, leave_type_id, year)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		days TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL,
		finalized_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		at TEXT NOT NULL,
		payload TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_request ON audit_log(request_id, at)`,
}
