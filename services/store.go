package services

import (
	"context"

	"github.com/paceline/paceline/models"
)

// Store serializes access to one user's aggregates. Implementations run fn
// against a consistent snapshot and apply every write atomically: either all
// mutations made through the UserTx commit, or none do.
type Store interface {
	WithUser(ctx context.Context, userID uint, fn func(UserTx) error) error
}

// UserTx is the per-aggregate read-modify-write surface available inside a
// Store transaction. Loads of a mutable aggregate take a write lock so the
// live path and the reconciliation path never race on the same row.
type UserTx interface {
	User() (*models.User, error)
	SaveUser(*models.User) error

	// DailyLog returns nil (not an error) when no record exists for the day.
	DailyLog(day string) (*models.DailyLog, error)
	DailyLogRange(from, to string) ([]models.DailyLog, error)
	SaveDailyLog(*models.DailyLog) error

	Streak() (*models.StreakState, error)
	SaveStreak(*models.StreakState) error

	Shields() (*models.ShieldInventory, error)
	SaveShields(*models.ShieldInventory) error
}
