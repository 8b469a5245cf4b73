package services

import (
	"context"
	"fmt"

	"github.com/paceline/paceline/models"
)

// Fixed early milestones; past 365 every multiple of 100 counts.
var milestones = []int{7, 14, 21, 30, 60, 90, 180, 365}

// maxStreakWalkDays bounds how far back a recompute walks. Five years of
// daily rows is far beyond any plausible run length.
const maxStreakWalkDays = 1830

// milestoneFor returns the highest milestone at or below streak, 0 if none.
func milestoneFor(streak int) int {
	if streak >= 400 {
		return streak - streak%100
	}
	m := 0
	for _, v := range milestones {
		if streak >= v {
			m = v
		}
	}
	return m
}

// applyStreakWalk recomputes st from the daily logs, walking backward from
// today while each day is goal-met or shield-protected. Today is lenient: an
// unmet day that has not yet ended neither extends nor breaks the run. A day
// with no record breaks exactly like a measured miss.
//
// Milestone firing is edge-triggered against LastReachedMilestone, so a
// redundant recompute at the same streak never re-fires one that was already
// raised, acknowledged or not.
func applyStreakWalk(st *models.StreakState, logs []models.DailyLog, today string) {
	byDay := make(map[string]*models.DailyLog, len(logs))
	for i := range logs {
		byDay[logs[i].Date] = &logs[i]
	}
	qualifies := func(day string) bool {
		l := byDay[day]
		return l != nil && l.Qualifies()
	}

	anchor := today
	if !qualifies(today) {
		anchor = PrevDay(today)
	}

	count := 0
	day := anchor
	for count < maxStreakWalkDays && qualifies(day) {
		count++
		day = PrevDay(day)
	}

	st.CurrentStreak = count
	if count > 0 {
		st.StreakStartDate = AddDays(day, 1)
		st.LastGoalMetDate = anchor
	} else {
		st.StreakStartDate = ""
		st.LastGoalMetDate = ""
	}
	if count > st.LongestStreak {
		st.LongestStreak = count
	}

	m := milestoneFor(count)
	switch {
	case m > st.LastReachedMilestone:
		st.LastReachedMilestone = m
		st.PendingMilestone = m
	case m < st.LastReachedMilestone:
		// the run shrank; drop the baseline so a future climb fires again
		st.LastReachedMilestone = m
		if st.PendingMilestone > m {
			st.PendingMilestone = 0
		}
	}
}

// recomputeStreak reloads the trailing window of logs, re-derives the streak
// state and persists it. Safe to call redundantly.
func recomputeStreak(tx UserTx, today string) (*models.StreakState, error) {
	st, err := tx.Streak()
	if err != nil {
		return nil, err
	}
	if !st.Valid() {
		return nil, fmt.Errorf("%w: streak state for user %d", ErrCorruptedAggregate, st.UserID)
	}
	from := AddDays(today, -(maxStreakWalkDays - 1))
	logs, err := tx.DailyLogRange(from, today)
	if err != nil {
		return nil, err
	}
	applyStreakWalk(st, logs, today)
	if err := tx.SaveStreak(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Streak recomputes and returns the user's streak snapshot. Recomputing on
// read keeps the counter honest after days of inactivity without waiting for
// a write trigger.
func (t *Tracker) Streak(ctx context.Context, userID uint) (*models.StreakState, error) {
	var out *models.StreakState
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		user, err := tx.User()
		if err != nil {
			return err
		}
		st, err := recomputeStreak(tx, t.today(t.location(user)))
		if err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

// AckMilestone consumes the pending milestone so it is delivered exactly once.
func (t *Tracker) AckMilestone(ctx context.Context, userID uint) (int, error) {
	acked := 0
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		st, err := tx.Streak()
		if err != nil {
			return err
		}
		if st.PendingMilestone == 0 {
			return nil
		}
		acked = st.PendingMilestone
		st.PendingMilestone = 0
		return tx.SaveStreak(st)
	})
	return acked, err
}

// DeclineRepair explicitly breaks the streak when the user passes on
// repairing a missed day instead of waiting for natural recomputation.
func (t *Tracker) DeclineRepair(ctx context.Context, userID uint) error {
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		st, err := tx.Streak()
		if err != nil {
			return err
		}
		st.CurrentStreak = 0
		st.StreakStartDate = ""
		st.LastGoalMetDate = ""
		st.LastReachedMilestone = 0
		st.PendingMilestone = 0
		return tx.SaveStreak(st)
	})
	if err != nil {
		return err
	}
	t.publish("streak.changed", map[string]any{"user_id": userID})
	return nil
}
