package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// DIRECTORY READS
// =============================================================================

const userColumns = `id, company_id, team_id, email, full_name, role, hire_date, is_active`

func (x *queries) GetUser(ctx context.Context, id string) (leave.User, error) {
	u, err := scanUser(x.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return leave.User{}, fmt.Errorf("user %s: %w", id, leave.ErrNotFound)
	}
	return u, err
}

// ListTeamMembers returns the active users of a team ordered by ID.
func (x *queries) ListTeamMembers(ctx context.Context, teamID string) ([]leave.User, error) {
	rows, err := x.query(ctx, `SELECT `+userColumns+` FROM users
		WHERE team_id = ? AND is_active = 1 ORDER BY id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	var out []leave.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(sc scanner) (leave.User, error) {
	var (
		u             leave.User
		teamID, hired sql.NullString
		role          string
		active        int
	)
	if err := sc.Scan(&u.ID, &u.CompanyID, &teamID, &u.Email, &u.FullName, &role, &hired, &active); err != nil {
		return leave.User{}, err
	}
	r, err := leave.ParseRole(role)
	if err != nil {
		return leave.User{}, fmt.Errorf("decode user %s: %w", u.ID, err)
	}
	u.Role = r
	u.TeamID = teamID.String
	u.IsActive = active != 0
	if hired.Valid && hired.String != "" {
		if u.HireDate, err = leave.ParseDate(hired.String); err != nil {
			return leave.User{}, fmt.Errorf("decode user %s: %w", u.ID, err)
		}
	}
	return u, nil
}

func (x *queries) GetTeam(ctx context.Context, id string) (leave.Team, error) {
	var (
		t       leave.Team
		manager sql.NullString
		maxAbs  int
	)
	err := x.queryRow(ctx, `SELECT id, company_id, name, manager_id, min_staff_required, max_absent_same_day
		FROM teams WHERE id = ?`, id).
		Scan(&t.ID, &t.CompanyID, &t.Name, &manager, &t.MinStaffRequired, &maxAbs)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Team{}, fmt.Errorf("team %s: %w", id, leave.ErrNotFound)
	}
	if err != nil {
		return leave.Team{}, err
	}
	t.ManagerID = manager.String

	blocked, err := x.listBlockedPeriods(ctx, id)
	if err != nil {
		return leave.Team{}, err
	}
	if maxAbs > 0 || len(blocked) > 0 {
		t.Rule = &leave.TeamRule{MaxAbsentSameDay: maxAbs, BlockedPeriods: blocked}
	}
	return t, nil
}

func (x *queries) listBlockedPeriods(ctx context.Context, teamID string) ([]leave.BlockedPeriod, error) {
	rows, err := x.query(ctx, `SELECT start_date, end_date, reason FROM team_blocked_periods
		WHERE team_id = ? ORDER BY start_date`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list blocked periods: %w", err)
	}
	defer rows.Close()

	var out []leave.BlockedPeriod
	for rows.Next() {
		var (
			b          leave.BlockedPeriod
			start, end string
		)
		if err := rows.Scan(&start, &end, &b.Reason); err != nil {
			return nil, err
		}
		if b.Start, err = leave.ParseDate(start); err != nil {
			return nil, fmt.Errorf("decode blocked period: %w", err)
		}
		if b.End, err = leave.ParseDate(end); err != nil {
			return nil, fmt.Errorf("decode blocked period: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (x *queries) GetCompanySettings(ctx context.Context, companyID string) (leave.CompanySettings, error) {
	var (
		s                           leave.CompanySettings
		workDays                    string
		startMonth                  int
		managerOK, hrOK, negativeOK int
	)
	err := x.queryRow(ctx, `
		SELECT company_id, work_days, fiscal_year_start_month, require_manager_approval,
			require_hr_approval, allow_negative_balance, max_days_in_advance
		FROM company_settings WHERE company_id = ?`, companyID).
		Scan(&s.CompanyID, &workDays, &startMonth, &managerOK, &hrOK, &negativeOK, &s.MaxDaysInAdvance)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.CompanySettings{}, fmt.Errorf("company %s: %w", companyID, leave.ErrNotFound)
	}
	if err != nil {
		return leave.CompanySettings{}, err
	}
	if s.DefaultWorkDays, err = parseWorkDays(workDays); err != nil {
		return leave.CompanySettings{}, fmt.Errorf("decode settings %s: %w", companyID, err)
	}
	s.FiscalYearStartMonth = time.Month(startMonth)
	s.RequireManagerApproval = managerOK != 0
	s.RequireHRApproval = hrOK != 0
	s.AllowNegativeBalance = negativeOK != 0
	return s, nil
}

// ListHolidays returns recurring holidays and the one-off holidays whose year
// falls in [fromYear, toYear].
func (x *queries) ListHolidays(ctx context.Context, companyID string, fromYear, toYear int) ([]leave.Holiday, error) {
	rows, err := x.query(ctx, `
		SELECT id, company_id, name, date, is_recurring FROM holidays
		WHERE company_id = ? AND (is_recurring = 1 OR (date >= ? AND date <= ?))
		ORDER BY date, id`,
		companyID, leave.StartOfYear(fromYear).String(), leave.EndOfYear(toYear).String())
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	defer rows.Close()

	var out []leave.Holiday
	for rows.Next() {
		var (
			h         leave.Holiday
			date      string
			recurring int
		)
		if err := rows.Scan(&h.ID, &h.CompanyID, &h.Name, &date, &recurring); err != nil {
			return nil, err
		}
		if h.Date, err = leave.ParseDate(date); err != nil {
			return nil, fmt.Errorf("decode holiday %s: %w", h.ID, err)
		}
		h.IsRecurring = recurring != 0
		out = append(out, h)
	}
	return out, rows.Err()
}

const leaveTypeColumns = `id, company_id, code, name, default_days_per_year, requires_approval,
	requires_justification, color, is_active`

func (x *queries) GetLeaveType(ctx context.Context, id string) (leave.LeaveType, error) {
	lt, err := scanLeaveType(x.queryRow(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveType{}, fmt.Errorf("leave type %s: %w", id, leave.ErrNotFound)
	}
	return lt, err
}

func (x *queries) ListLeaveTypes(ctx context.Context, companyID string) ([]leave.LeaveType, error) {
	rows, err := x.query(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types
		WHERE company_id = ? ORDER BY code`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list leave types: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

func scanLeaveType(sc scanner) (leave.LeaveType, error) {
	var (
		lt                              leave.LeaveType
		days                            string
		approval, justification, active int
	)
	if err := sc.Scan(&lt.ID, &lt.CompanyID, &lt.Code, &lt.Name, &days, &approval,
		&justification, &lt.Color, &active); err != nil {
		return leave.LeaveType{}, err
	}
	var err error
	if lt.DefaultDaysPerYear, err = decimal.NewFromString(days); err != nil {
		return leave.LeaveType{}, fmt.Errorf("decode leave type %s: %w", lt.ID, err)
	}
	lt.RequiresApproval = approval != 0
	lt.RequiresJustification = justification != 0
	lt.IsActive = active != 0
	return lt, nil
}

// =============================================================================
// DIRECTORY WRITES - Administration and seeding
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u leave.User) error {
	var hired sql.NullString
	if !u.HireDate.IsZero() {
		hired = sql.NullString{String: u.HireDate.String(), Valid: true}
	}
	_, err := s.exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			company_id = excluded.company_id,
			team_id = excluded.team_id,
			email = excluded.email,
			full_name = excluded.full_name,
			role = excluded.role,
			hire_date = excluded.hire_date,
			is_active = excluded.is_active`,
		u.ID, u.CompanyID, nullString(u.TeamID), u.Email, u.FullName, string(u.Role), hired, boolInt(u.IsActive))
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

// SaveTeam upserts the team and replaces its blocked periods.
func (s *Store) SaveTeam(ctx context.Context, t leave.Team) error {
	maxAbs := 0
	var blocked []leave.BlockedPeriod
	if t.Rule != nil {
		maxAbs = t.Rule.MaxAbsentSameDay
		blocked = t.Rule.BlockedPeriods
	}

	return s.WithTx(ctx, func(tx leave.Store) error {
		x := tx.(*queries)
		_, err := x.exec(ctx, `
			INSERT INTO teams (id, company_id, name, manager_id, min_staff_required, max_absent_same_day)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				company_id = excluded.company_id,
				name = excluded.name,
				manager_id = excluded.manager_id,
				min_staff_required = excluded.min_staff_required,
				max_absent_same_day = excluded.max_absent_same_day`,
			t.ID, t.CompanyID, t.Name, nullString(t.ManagerID), t.MinStaffRequired, maxAbs)
		if err != nil {
			return fmt.Errorf("save team %s: %w", t.ID, err)
		}
		if _, err := x.exec(ctx, `DELETE FROM team_blocked_periods WHERE team_id = ?`, t.ID); err != nil {
			return fmt.Errorf("save team %s: %w", t.ID, err)
		}
		for _, b := range blocked {
			_, err := x.exec(ctx, `INSERT INTO team_blocked_periods (team_id, start_date, end_date, reason) VALUES (?, ?, ?, ?)`,
				t.ID, b.Start.String(), b.End.String(), b.Reason)
			if err != nil {
				return fmt.Errorf("save team %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) SaveCompanySettings(ctx context.Context, cs leave.CompanySettings) error {
	_, err := s.exec(ctx, `
		INSERT INTO company_settings (company_id, work_days, fiscal_year_start_month, require_manager_approval,
			require_hr_approval, allow_negative_balance, max_days_in_advance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id) DO UPDATE SET
			work_days = excluded.work_days,
			fiscal_year_start_month = excluded.fiscal_year_start_month,
			require_manager_approval = excluded.require_manager_approval,
			require_hr_approval = excluded.require_hr_approval,
			allow_negative_balance = excluded.allow_negative_balance,
			max_days_in_advance = excluded.max_days_in_advance`,
		cs.CompanyID, formatWorkDays(cs.DefaultWorkDays), int(cs.FiscalYearStartMonth), boolInt(cs.RequireManagerApproval),
		boolInt(cs.RequireHRApproval), boolInt(cs.AllowNegativeBalance), cs.MaxDaysInAdvance)
	if err != nil {
		return fmt.Errorf("save settings %s: %w", cs.CompanyID, err)
	}
	return nil
}

func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	_, err := s.exec(ctx, `
		INSERT INTO leave_types (`+leaveTypeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			default_days_per_year = excluded.default_days_per_year,
			requires_approval = excluded.requires_approval,
			requires_justification = excluded.requires_justification,
			color = excluded.color,
			is_active = excluded.is_active`,
		lt.ID, lt.CompanyID, lt.Code, lt.Name, lt.DefaultDaysPerYear.String(), boolInt(lt.RequiresApproval),
		boolInt(lt.RequiresJustification), lt.Color, boolInt(lt.IsActive))
	if isUniqueViolation(err) {
		return fmt.Errorf("leave type code %s already used in %s", lt.Code, lt.CompanyID)
	}
	if err != nil {
		return fmt.Errorf("save leave type %s: %w", lt.ID, err)
	}
	return nil
}

func (s *Store) SaveHoliday(ctx context.Context, h leave.Holiday) error {
	_, err := s.exec(ctx, `
		INSERT INTO holidays (id, company_id, name, date, is_recurring) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			date = excluded.date,
			is_recurring = excluded.is_recurring`,
		h.ID, h.CompanyID, h.Name, h.Date.String(), boolInt(h.IsRecurring))
	if err != nil {
		return fmt.Errorf("save holiday %s: %w", h.ID, err)
	}
	return nil
}

// SeedDefaults provisions a company with default settings, the default leave
// type catalog and French public holidays for the given years. Existing
// settings are kept; leave types and holidays are upserted.
func (s *Store) SeedDefaults(ctx context.Context, companyID string, years ...int) error {
	if _, err := s.GetCompanySettings(ctx, companyID); errors.Is(err, leave.ErrNotFound) {
		if err := s.SaveCompanySettings(ctx, leave.DefaultCompanySettings(companyID)); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	for _, lt := range leave.DefaultLeaveTypes(companyID) {
		if err := s.SaveLeaveType(ctx, lt); err != nil {
			return err
		}
	}
	for _, year := range years {
		for _, h := range calendar.FrenchPublicHolidays(companyID, year) {
			if err := s.SaveHoliday(ctx, h); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// formatWorkDays encodes weekdays as "1,2,3,4,5" (Sunday = 0).
func formatWorkDays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func parseWorkDays(s string) ([]time.Weekday, error) {
	if s == "" {
		return nil, nil
	}
	var out []time.Weekday
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid weekday %q", part)
		}
		out = append(out, time.Weekday(n))
	}
	return out, nil
}
