package models

import "time"

// ShieldInventory is the singleton repair-token aggregate for one user.
// Recurring tokens are granted once per period (YYYY-MM) and banked up to the
// tier cap; purchased tokens never expire and have no cap.
type ShieldInventory struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	RecurringAvailable int       `gorm:"not null;default:0" json:"recurring_available"`
	PurchasedAvailable int       `gorm:"not null;default:0" json:"purchased_available"`
	LastRefillPeriod   string    `gorm:"size:7" json:"last_refill_period"`
	UsedThisPeriod     int       `gorm:"not null;default:0" json:"used_this_period"`
	TotalUsedLifetime  int       `gorm:"not null;default:0" json:"total_used_lifetime"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TotalAvailable is the spendable token count across both buckets.
func (s *ShieldInventory) TotalAvailable() int {
	return s.RecurringAvailable + s.PurchasedAvailable
}

// Valid reports whether the persisted state satisfies the aggregate invariants.
func (s *ShieldInventory) Valid() bool {
	return s.RecurringAvailable >= 0 &&
		s.PurchasedAvailable >= 0 &&
		s.UsedThisPeriod >= 0 &&
		s.TotalUsedLifetime >= s.UsedThisPeriod
}
