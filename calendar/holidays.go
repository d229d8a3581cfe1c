package calendar

import (
	"fmt"
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HOLIDAY SET - Expanded holiday lookup
// =============================================================================

// HolidaySet answers IsHoliday for concrete dates. Recurring holidays match on
// month and day in any year; one-off holidays match their exact date.
type HolidaySet struct {
	dates     map[leave.Date]string
	recurring map[monthDay]string
}

type monthDay struct {
	month time.Month
	day   int
}

// NewHolidaySet indexes holidays. One-off holidays outside [fromYear, toYear]
// are dropped; pass 0, 0 to keep them all.
func NewHolidaySet(holidays []leave.Holiday, fromYear, toYear int) HolidaySet {
	hs := HolidaySet{
		dates:     make(map[leave.Date]string),
		recurring: make(map[monthDay]string),
	}
	for _, h := range holidays {
		if h.IsRecurring {
			hs.recurring[monthDay{h.Date.Month(), h.Date.Day()}] = h.Name
			continue
		}
		if fromYear != 0 && (h.Date.Year() < fromYear || h.Date.Year() > toYear) {
			continue
		}
		hs.dates[h.Date] = h.Name
	}
	return hs
}

// Contains reports whether d is a holiday.
func (hs HolidaySet) Contains(d leave.Date) bool {
	_, ok := hs.Name(d)
	return ok
}

// Name returns the holiday's name on d, if any.
func (hs HolidaySet) Name(d leave.Date) (string, bool) {
	if name, ok := hs.dates[d]; ok {
		return name, true
	}
	name, ok := hs.recurring[monthDay{d.Month(), d.Day()}]
	return name, ok
}

// =============================================================================
// DEFAULT CALENDAR - French public holidays
// =============================================================================

// EasterSunday returns the Gregorian Easter date (anonymous Gregorian
// algorithm, Meeus/Jones/Butcher).
func EasterSunday(year int) leave.Date {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return leave.NewDate(year, time.Month(month), day)
}

// FrenchPublicHolidays returns the fixed-date holidays as recurring entries
// and the movable feasts of year as one-off entries. IDs are deterministic so
// seeding twice is an upsert.
func FrenchPublicHolidays(companyID string, year int) []leave.Holiday {
	fixed := []struct {
		month time.Month
		day   int
		name  string
	}{
		{time.January, 1, "Jour de l'an"},
		{time.May, 1, "Fête du Travail"},
		{time.May, 8, "Victoire 1945"},
		{time.July, 14, "Fête nationale"},
		{time.August, 15, "Assomption"},
		{time.November, 1, "Toussaint"},
		{time.November, 11, "Armistice 1918"},
		{time.December, 25, "Noël"},
	}
	var out []leave.Holiday
	for _, f := range fixed {
		date := leave.NewDate(year, f.month, f.day)
		out = append(out, leave.Holiday{
			ID:          fmt.Sprintf("%s-%02d-%02d", companyID, f.month, f.day),
			CompanyID:   companyID,
			Name:        f.name,
			Date:        date,
			IsRecurring: true,
		})
	}

	easter := EasterSunday(year)
	movable := []struct {
		offset int
		name   string
	}{
		{1, "Lundi de Pâques"},
		{39, "Ascension"},
		{50, "Lundi de Pentecôte"},
	}
	for _, m := range movable {
		date := easter.AddDays(m.offset)
		out = append(out, leave.Holiday{
			ID:        fmt.Sprintf("%s-%s", companyID, date),
			CompanyID: companyID,
			Name:      m.name,
			Date:      date,
		})
	}
	return out
}
