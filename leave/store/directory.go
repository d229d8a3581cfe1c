package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY DIRECTORY - Reference data held in maps
// =============================================================================

// Directory is an in-memory leave.Directory. Put methods replace by ID.
type Directory struct {
	mu         sync.RWMutex
	users      map[string]leave.User
	teams      map[string]leave.Team
	companies  map[string]leave.CompanySettings
	leaveTypes map[string]leave.LeaveType
	holidays   []leave.Holiday
}

func NewDirectory() *Directory {
	return &Directory{
		users:      make(map[string]leave.User),
		teams:      make(map[string]leave.Team),
		companies:  make(map[string]leave.CompanySettings),
		leaveTypes: make(map[string]leave.LeaveType),
	}
}

func (d *Directory) PutUser(u leave.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *Directory) PutTeam(t leave.Team) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.teams[t.ID] = t
}

func (d *Directory) PutCompanySettings(s leave.CompanySettings) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.companies[s.CompanyID] = s
}

func (d *Directory) PutLeaveType(lt leave.LeaveType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaveTypes[lt.ID] = lt
}

func (d *Directory) PutHoliday(h leave.Holiday) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.holidays = append(d.holidays, h)
}

func (d *Directory) GetUser(_ context.Context, id string) (leave.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return leave.User{}, fmt.Errorf("user %s: %w", id, leave.ErrNotFound)
	}
	return u, nil
}

func (d *Directory) GetTeam(_ context.Context, id string) (leave.Team, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.teams[id]
	if !ok {
		return leave.Team{}, fmt.Errorf("team %s: %w", id, leave.ErrNotFound)
	}
	return t, nil
}

// ListTeamMembers returns the active users of a team ordered by ID.
func (d *Directory) ListTeamMembers(_ context.Context, teamID string) ([]leave.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var members []leave.User
	for _, u := range d.users {
		if u.TeamID == teamID && u.IsActive {
			members = append(members, u)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (d *Directory) GetCompanySettings(_ context.Context, companyID string) (leave.CompanySettings, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.companies[companyID]
	if !ok {
		return leave.CompanySettings{}, fmt.Errorf("company %s: %w", companyID, leave.ErrNotFound)
	}
	return s, nil
}

// ListHolidays returns recurring holidays and the one-off holidays whose year
// falls in [fromYear, toYear].
func (d *Directory) ListHolidays(_ context.Context, companyID string, fromYear, toYear int) ([]leave.Holiday, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []leave.Holiday
	for _, h := range d.holidays {
		if h.CompanyID != companyID {
			continue
		}
		if h.IsRecurring || (h.Date.Year() >= fromYear && h.Date.Year() <= toYear) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (d *Directory) GetLeaveType(_ context.Context, id string) (leave.LeaveType, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	lt, ok := d.leaveTypes[id]
	if !ok {
		return leave.LeaveType{}, fmt.Errorf("leave type %s: %w", id, leave.ErrNotFound)
	}
	return lt, nil
}

func (d *Directory) ListLeaveTypes(_ context.Context, companyID string) ([]leave.LeaveType, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []leave.LeaveType
	for _, lt := range d.leaveTypes {
		if lt.CompanyID == companyID {
			out = append(out, lt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
