package services

import "github.com/paceline/paceline/models"

// TierLimits are the entitlement knobs that vary by subscription tier. They
// are re-read on every grant and consume rather than cached, so a tier change
// takes effect on the next shield operation.
type TierLimits struct {
	BankMax             int
	RecurringGrant      int
	RepairLookbackDays  int
	ReconcileWindowDays int
}

// TierProvider resolves the limits in effect for a user.
type TierProvider interface {
	TierFor(u *models.User) TierLimits
}

// StaticTiers maps tier names to limits, with a fallback for unknown tiers.
type StaticTiers struct {
	tiers    map[string]TierLimits
	fallback TierLimits
}

// NewStaticTiers returns the built-in tier table.
func NewStaticTiers() *StaticTiers {
	free := TierLimits{
		BankMax:             2,
		RecurringGrant:      1,
		RepairLookbackDays:  7,
		ReconcileWindowDays: 30,
	}
	return &StaticTiers{
		tiers: map[string]TierLimits{
			"free": free,
			"plus": {
				BankMax:             5,
				RecurringGrant:      3,
				RepairLookbackDays:  7,
				ReconcileWindowDays: 365,
			},
		},
		fallback: free,
	}
}

// TierFor resolves limits by the user's tier name.
func (s *StaticTiers) TierFor(u *models.User) TierLimits {
	if u != nil {
		if t, ok := s.tiers[u.Tier]; ok {
			return t
		}
	}
	return s.fallback
}
