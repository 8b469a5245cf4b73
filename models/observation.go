package models

import "time"

// Observation journals one raw provider sample as it was ingested. The journal
// is the source of truth that reconciliation replays; rows are append-only and
// re-posted duplicates are harmless because the merge pass deduplicates by
// time coverage, not by row count.
type Observation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_observations_user_day;not null" json:"user_id"`
	Day       string    `gorm:"index:idx_observations_user_day;type:date;not null" json:"day"`
	Provider  string    `gorm:"size:32;not null" json:"provider"`
	StartAt   time.Time `gorm:"not null" json:"start_at"`
	EndAt     time.Time `gorm:"not null" json:"end_at"`
	Steps     int       `gorm:"not null" json:"steps"`
	SessionID string    `gorm:"size:64" json:"session_id"`
	BatchID   string    `gorm:"size:64;index" json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
}
