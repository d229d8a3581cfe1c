package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// ALLOTMENT POLICY - Opening balance of a lazily created row
// =============================================================================

// Allotment is what a policy sees when a balance row is opened.
type Allotment struct {
	LeaveType leave.LeaveType
	User      leave.User
	Period    leave.Period // the fiscal year the row covers
}

// AllotmentPolicy decides initial_balance for a new balance row. There is no
// implicit default: a Ledger cannot be built without one.
type AllotmentPolicy interface {
	Name() string
	Initial(a Allotment) decimal.Decimal
}

const (
	PolicyFull    = "full"
	PolicyProRata = "pro_rata"
)

// ParseAllotmentPolicy maps a configuration value to a policy.
func ParseAllotmentPolicy(name string) (AllotmentPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyFull:
		return FullAllotment{}, nil
	case PolicyProRata:
		return ProRataAllotment{}, nil
	case "":
		return nil, fmt.Errorf("allotment policy is required (%q or %q)", PolicyFull, PolicyProRata)
	default:
		return nil, fmt.Errorf("unknown allotment policy %q", name)
	}
}

// FullAllotment grants the leave type's whole yearly allotment.
type FullAllotment struct{}

func (FullAllotment) Name() string { return PolicyFull }

func (FullAllotment) Initial(a Allotment) decimal.Decimal {
	return a.LeaveType.DefaultDaysPerYear
}

// ProRataAllotment grants users hired during the fiscal year the share of the
// allotment matching the days left after their hire date, rounded to the
// nearest half-day. Users hired before the year get the full allotment.
type ProRataAllotment struct{}

func (ProRataAllotment) Name() string { return PolicyProRata }

func (ProRataAllotment) Initial(a Allotment) decimal.Decimal {
	full := a.LeaveType.DefaultDaysPerYear
	hire := a.User.HireDate
	if hire.IsZero() || hire.BeforeOrEqual(a.Period.Start) {
		return full
	}
	if hire.After(a.Period.End) {
		return decimal.Zero
	}
	remaining := decimal.NewFromInt(int64(leave.DaysBetween(hire, a.Period.End) + 1))
	total := decimal.NewFromInt(int64(leave.DaysBetween(a.Period.Start, a.Period.End) + 1))
	two := decimal.NewFromInt(2)
	return full.Mul(remaining).Div(total).Mul(two).Round(0).Div(two)
}
