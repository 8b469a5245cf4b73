package models

import "time"

// StreakState is the singleton streak aggregate for one user.
// LastReachedMilestone tracks the highest milestone of the current run and is
// never shown to clients directly; PendingMilestone is the exactly-once
// notification slot, cleared when a collaborator acknowledges it.
type StreakState struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UserID               uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	CurrentStreak        int       `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak        int       `gorm:"not null;default:0" json:"longest_streak"`
	StreakStartDate      string    `gorm:"type:date" json:"streak_start_date,omitempty"`
	LastGoalMetDate      string    `gorm:"type:date" json:"last_goal_met_date,omitempty"`
	LastReachedMilestone int       `gorm:"not null;default:0" json:"-"`
	PendingMilestone     int       `gorm:"not null;default:0" json:"pending_milestone,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Valid reports whether the persisted state satisfies the aggregate invariants.
func (s *StreakState) Valid() bool {
	if s.CurrentStreak < 0 || s.LongestStreak < 0 {
		return false
	}
	if s.CurrentStreak > s.LongestStreak {
		return false
	}
	if s.CurrentStreak == 0 && s.StreakStartDate != "" {
		return false
	}
	return true
}
