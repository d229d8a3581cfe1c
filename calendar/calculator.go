/*
calculator.go - Chargeable leave day computation

PURPOSE:
  Sizes a leave request: how many days it takes off the balance given the
  company's work week and holiday calendar. Everything here is a pure
  function of its inputs, safe to call concurrently.

RULES:
  - Every date of the inclusive range counts 1 if it is a working day and
    not a holiday, 0 otherwise
  - A half-day request covers exactly one date and names its period; it
    counts 0.5 if that date is chargeable, 0 otherwise
  - end < start, a multi-date half-day, or a half-day without a period is
    leave.ErrInvalidRange

EXAMPLE:
  ww := calendar.NewWorkWeek(settings.DefaultWorkDays)
  hs := calendar.NewHolidaySet(holidays, 2025, 2025)
  days, err := calendar.ComputeDays(start, end, false, leave.HalfDayNone, ww, hs)

SEE ALSO:
  - holidays.go: HolidaySet and the default French calendar
  - staffing/validator.go: rejects half-days on non-working days upstream
*/
package calendar

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
)

var half = decimal.NewFromFloat(0.5)

// =============================================================================
// WORK WEEK
// =============================================================================

// WorkWeek is the set of weekdays a company works.
type WorkWeek struct {
	days [7]bool
}

// NewWorkWeek builds a work week from weekday indices (0 = Sunday).
func NewWorkWeek(days []time.Weekday) WorkWeek {
	var ww WorkWeek
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			ww.days[d] = true
		}
	}
	return ww
}

// MondayToFriday is the work week of a company with no configuration.
func MondayToFriday() WorkWeek {
	return NewWorkWeek([]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday})
}

func (ww WorkWeek) Works(d time.Weekday) bool { return ww.days[d] }

// Empty reports whether no weekday is worked.
func (ww WorkWeek) Empty() bool {
	for _, w := range ww.days {
		if w {
			return false
		}
	}
	return true
}

// =============================================================================
// CALCULATOR
// =============================================================================

// IsChargeable reports whether d is a working day that is not a holiday.
func IsChargeable(d leave.Date, ww WorkWeek, hs HolidaySet) bool {
	return ww.Works(d.Weekday()) && !hs.Contains(d)
}

// ComputeDays returns the number of chargeable days of the range.
func ComputeDays(start, end leave.Date, isHalfDay bool, period leave.HalfDayPeriod, ww WorkWeek, hs HolidaySet) (decimal.Decimal, error) {
	if err := CheckRange(start, end, isHalfDay, period); err != nil {
		return decimal.Zero, err
	}
	if isHalfDay {
		if IsChargeable(start, ww, hs) {
			return half, nil
		}
		return decimal.Zero, nil
	}
	return decimal.NewFromInt(int64(len(ChargeableDates(start, end, ww, hs)))), nil
}

// CheckRange validates the shape of a range independently of any calendar.
func CheckRange(start, end leave.Date, isHalfDay bool, period leave.HalfDayPeriod) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", leave.ErrInvalidRange)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end date %s is before start date %s", leave.ErrInvalidRange, end, start)
	}
	if !isHalfDay {
		return nil
	}
	if !start.Equal(end) {
		return fmt.Errorf("%w: a half-day request must start and end on the same date", leave.ErrInvalidRange)
	}
	if !period.Valid() {
		return fmt.Errorf("%w: a half-day request needs a morning or afternoon period", leave.ErrInvalidRange)
	}
	return nil
}

// ChargeableDates lists the chargeable dates of [start, end] in order.
func ChargeableDates(start, end leave.Date, ww WorkWeek, hs HolidaySet) []leave.Date {
	var dates []leave.Date
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if IsChargeable(d, ww, hs) {
			dates = append(dates, d)
		}
	}
	return dates
}
