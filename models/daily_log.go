package models

import (
	"encoding/json"
	"time"
)

// DailyLog is the reconciled record for one user and one local calendar day.
// Date is the day key in YYYY-MM-DD form, normalized to the user's timezone.
// GoalTarget and GoalMet are frozen once the day is finalized; Steps may only
// rise afterwards, and only through the reconciliation pass.
type DailyLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index:idx_daily_logs_user_date,unique;not null" json:"user_id"`
	Date       string    `gorm:"index:idx_daily_logs_user_date,unique;type:date;not null" json:"date"`
	Steps      int       `gorm:"not null;default:0" json:"steps"`
	GoalTarget int       `gorm:"not null;default:0" json:"goal_target"`
	GoalMet    bool      `gorm:"not null;default:false" json:"goal_met"`
	ShieldUsed bool      `gorm:"not null;default:false" json:"shield_used"`
	Finalized  bool      `gorm:"not null;default:false" json:"finalized"`
	SessionIDs string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Sessions decodes the contributing walk-session references.
func (d *DailyLog) Sessions() []string {
	if d.SessionIDs == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(d.SessionIDs), &ids); err != nil {
		return nil
	}
	return ids
}

// SetSessions stores the contributing walk-session references, dropping duplicates.
func (d *DailyLog) SetSessions(ids []string) {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		d.SessionIDs = ""
		return
	}
	b, err := json.Marshal(unique)
	if err != nil {
		return
	}
	d.SessionIDs = string(b)
}

// Qualifies reports whether the day keeps a streak alive.
func (d *DailyLog) Qualifies() bool {
	return d.GoalMet || d.ShieldUsed
}
