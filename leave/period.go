package leave

import "time"

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive [Start, End] date range.
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if the date is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Overlaps reports whether two inclusive ranges share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// FISCAL YEAR
// =============================================================================

// FiscalYear returns the fiscal year containing date for a fiscal year that
// starts on the first day of startMonth. The year label is the calendar year
// in which that fiscal year starts. A zero startMonth means January.
func FiscalYear(date Date, startMonth time.Month) (int, Period) {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.January
	}
	start := NewDate(date.Year(), startMonth, 1)
	if date.Before(start) {
		start = NewDate(date.Year()-1, startMonth, 1)
	}
	return start.Year(), Period{Start: start, End: start.AddYears(1).AddDays(-1)}
}

// FiscalYearPeriod returns the bounds of the fiscal year labelled year.
func FiscalYearPeriod(year int, startMonth time.Month) Period {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.January
	}
	start := NewDate(year, startMonth, 1)
	return Period{Start: start, End: start.AddYears(1).AddDays(-1)}
}
