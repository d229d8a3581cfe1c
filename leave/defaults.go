package leave

import "github.com/shopspring/decimal"

// DefaultLeaveTypes is the catalog a new company starts with. IDs are derived
// from the company and code so seeding twice is an upsert.
func DefaultLeaveTypes(companyID string) []LeaveType {
	mk := func(code, name string, days int64, approval, justification bool, color string) LeaveType {
		return LeaveType{
			ID:                    companyID + "-" + code,
			CompanyID:             companyID,
			Code:                  code,
			Name:                  name,
			DefaultDaysPerYear:    decimal.NewFromInt(days),
			RequiresApproval:      approval,
			RequiresJustification: justification,
			Color:                 color,
			IsActive:              true,
		}
	}
	return []LeaveType{
		mk("CP", "Congés Payés", 25, true, false, "#6366f1"),
		mk("RTT", "RTT", 10, true, false, "#10b981"),
		mk("MALADIE", "Arrêt Maladie", 0, false, true, "#ef4444"),
		mk("SANS_SOLDE", "Sans Solde", 0, true, true, "#64748b"),
		mk("FAMILLE", "Événement Familial", 0, true, true, "#f59e0b"),
		mk("FORMATION", "Formation", 0, true, false, "#3b82f6"),
	}
}
