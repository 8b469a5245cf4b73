package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/paceline/paceline/models"
)

// ObservationSource is the only ground truth for daily totals. Fetch results
// are not assumed consistent between calls; reconciliation re-derives from
// whatever the source currently reports and lets the ratchet absorb transient
// undercounts.
type ObservationSource interface {
	FetchDay(ctx context.Context, userID uint, day string) ([]StepObservation, error)
	FetchRange(ctx context.Context, userID uint, from, to string) (map[string][]StepObservation, error)
	Append(ctx context.Context, userID uint, batchID string, byDay map[string][]StepObservation) error
}

// ObservationJournal is the production source: an append-only table of every
// ingested provider sample. The live path appends, reconciliation replays.
type ObservationJournal struct {
	db *gorm.DB
}

// NewObservationJournal wraps an initialized gorm handle.
func NewObservationJournal(db *gorm.DB) *ObservationJournal {
	return &ObservationJournal{db: db}
}

// Append journals a batch of observations grouped by local day.
func (j *ObservationJournal) Append(ctx context.Context, userID uint, batchID string, byDay map[string][]StepObservation) error {
	var rows []models.Observation
	for day, obs := range byDay {
		for _, o := range obs {
			rows = append(rows, models.Observation{
				UserID:    userID,
				Day:       day,
				Provider:  o.Provider,
				StartAt:   o.Start,
				EndAt:     o.End,
				Steps:     o.Steps,
				SessionID: o.SessionID,
				BatchID:   batchID,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return j.db.WithContext(ctx).CreateInBatches(rows, 200).Error
}

// FetchDay replays every journaled observation for one day.
func (j *ObservationJournal) FetchDay(ctx context.Context, userID uint, day string) ([]StepObservation, error) {
	var rows []models.Observation
	err := j.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		Order("start_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toStepObservations(rows), nil
}

// FetchRange replays the journal for a closed day range, grouped by day.
func (j *ObservationJournal) FetchRange(ctx context.Context, userID uint, from, to string) (map[string][]StepObservation, error) {
	var rows []models.Observation
	err := j.db.WithContext(ctx).
		Where("user_id = ? AND day >= ? AND day <= ?", userID, from, to).
		Order("day ASC, start_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	byDay := make(map[string][]StepObservation)
	for _, r := range rows {
		byDay[r.Day] = append(byDay[r.Day], toStepObservation(r))
	}
	return byDay, nil
}

func toStepObservations(rows []models.Observation) []StepObservation {
	obs := make([]StepObservation, 0, len(rows))
	for _, r := range rows {
		obs = append(obs, toStepObservation(r))
	}
	return obs
}

func toStepObservation(r models.Observation) StepObservation {
	return StepObservation{
		Provider:  r.Provider,
		Start:     r.StartAt,
		End:       r.EndAt,
		Steps:     r.Steps,
		SessionID: r.SessionID,
	}
}

var _ ObservationSource = (*ObservationJournal)(nil)

// journalRetention is how far back journal rows stay replayable before they
// age out alongside the immutable-history boundary.
const journalRetention = 400 * 24 * time.Hour

// PruneBefore drops journal rows older than the retention horizon.
func (j *ObservationJournal) PruneBefore(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-journalRetention).Format(dayLayout)
	return j.db.WithContext(ctx).
		Where("day < ?", cutoff).
		Delete(&models.Observation{}).Error
}
