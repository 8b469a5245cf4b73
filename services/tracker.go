package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/paceline/paceline/models"
	"github.com/paceline/paceline/utils"
)

var (
	// ErrInsufficientShields is an expected outcome, not a fault: the caller
	// offers a purchase path instead of logging it as an error.
	ErrInsufficientShields = errors.New("no shields available")
	// ErrRepairIneligible covers out-of-window, already-met and
	// already-shielded repair requests.
	ErrRepairIneligible = errors.New("day not eligible for repair")
	// ErrCorruptedAggregate means persistence handed back state violating an
	// invariant. The operation is rejected and the previous state retained.
	ErrCorruptedAggregate = errors.New("aggregate state violates invariants")
)

// EngineConfig carries the policy knobs of the reconciliation engine.
type EngineConfig struct {
	// Precedence orders providers from highest to lowest fidelity.
	Precedence []string
	// ShieldOrder selects which token bucket consume() drains first.
	ShieldOrder ConsumeOrder
	// DefaultTimezone applies when a user has no usable timezone.
	DefaultTimezone string
}

// EventPublisher receives aggregate-changed notifications for UI
// collaborators. Publishing is best-effort and never blocks a commit.
type EventPublisher interface {
	Publish(event string, payload any)
}

// Tracker is the engine facade: it owns the merge → ratchet → commit →
// streak-recompute pipeline and the shield economy for every user.
type Tracker struct {
	store  Store
	source ObservationSource
	clock  Clock
	tiers  TierProvider
	cfg    EngineConfig
	events EventPublisher
}

// NewTracker wires the engine from its collaborators. events may be nil.
func NewTracker(store Store, source ObservationSource, clock Clock, tiers TierProvider, cfg EngineConfig, events EventPublisher) *Tracker {
	if len(cfg.Precedence) == 0 {
		cfg.Precedence = []string{"device_motion", "health_store", "cloud_sync"}
	}
	if cfg.ShieldOrder != PurchasedFirst && cfg.ShieldOrder != RecurringFirst {
		cfg.ShieldOrder = PurchasedFirst
	}
	return &Tracker{store: store, source: source, clock: clock, tiers: tiers, cfg: cfg, events: events}
}

// TodaySnapshot is the live view exposed to UI collaborators.
type TodaySnapshot struct {
	Date    string `json:"date"`
	Steps   int    `json:"steps"`
	Goal    int    `json:"goal"`
	GoalMet bool   `json:"goal_met"`
}

func (t *Tracker) publish(event string, payload any) {
	if t.events != nil {
		t.events.Publish(event, payload)
	}
}

func (t *Tracker) location(u *models.User) *time.Location {
	name := u.Timezone
	if name == "" {
		name = t.cfg.DefaultTimezone
	}
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
		if utils.Sugar != nil {
			utils.Sugar.Warnw("unknown timezone, falling back to UTC", "user_id", u.ID, "timezone", name)
		}
	}
	return time.UTC
}

func (t *Tracker) today(loc *time.Location) string {
	return DayKey(t.clock.Now(), loc)
}

// Ingest journals an observation batch and drives the live pipeline for every
// affected day. It returns the day keys whose recorded steps changed.
func (t *Tracker) Ingest(ctx context.Context, userID uint, obs []StepObservation) ([]string, error) {
	var changed []string
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		user, err := tx.User()
		if err != nil {
			return err
		}
		loc := t.location(user)
		today := t.today(loc)

		byDay := make(map[string][]StepObservation)
		for _, o := range obs {
			if !o.End.After(o.Start) {
				// merge would drop it anyway; keep garbage out of the journal
				if utils.Sugar != nil {
					utils.Sugar.Debugw("skipping malformed observation at ingest",
						"user_id", userID, "provider", o.Provider)
				}
				continue
			}
			byDay[DayKey(o.Start, loc)] = append(byDay[DayKey(o.Start, loc)], o)
		}
		if len(byDay) == 0 {
			return nil
		}

		if err := t.source.Append(ctx, userID, uuid.NewString(), byDay); err != nil {
			return fmt.Errorf("journal append: %w", err)
		}

		days := make([]string, 0, len(byDay))
		for day := range byDay {
			days = append(days, day)
		}
		sort.Strings(days)

		for _, day := range days {
			dayObs, err := t.source.FetchDay(ctx, userID, day)
			if err != nil {
				return fmt.Errorf("fetch day %s: %w", day, err)
			}
			c, err := t.commitDay(tx, user, day, today, dayObs)
			if err != nil {
				return err
			}
			if c {
				changed = append(changed, day)
			}
		}

		if _, err := recomputeStreak(tx, today); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, day := range changed {
		t.publish("daily_log.changed", map[string]any{"user_id": userID, "date": day})
	}
	if len(changed) > 0 {
		t.publish("streak.changed", map[string]any{"user_id": userID})
		utils.InvalidateByPrefix(fmt.Sprintf("today:%d:", userID))
	}
	return changed, nil
}

// commitDay applies merge → ratchet → commit for one day inside a
// transaction. Steps never decrease; GoalMet on a finalized day may only flip
// from false to true when an upward correction crosses the frozen goal.
func (t *Tracker) commitDay(tx UserTx, user *models.User, day, today string, obs []StepObservation) (bool, error) {
	loc := t.location(user)
	dayStart, dayEnd := DayBounds(day, loc)
	steps := MergeObservations(obs, dayStart, dayEnd, t.cfg.Precedence)

	log, err := tx.DailyLog(day)
	if err != nil {
		return false, err
	}
	created := false
	if log == nil {
		refs := SessionRefs(obs)
		if steps == 0 && len(refs) == 0 {
			// nothing to record; a gap day stays a gap
			return false, nil
		}
		log = &models.DailyLog{
			UserID:     user.ID,
			Date:       day,
			GoalTarget: user.GoalTarget,
		}
		created = true
	}
	if log.Steps < 0 || log.GoalTarget < 0 {
		return false, fmt.Errorf("%w: daily log %s for user %d", ErrCorruptedAggregate, day, user.ID)
	}

	accepted := Ratchet(log.Steps, steps)
	changed := created || accepted != log.Steps
	log.Steps = accepted

	if !log.Finalized {
		log.GoalMet = log.Steps >= log.GoalTarget
		if day < today {
			// rollover: the day closes on first touch after local midnight
			log.Finalized = true
			changed = true
		}
	} else if !log.GoalMet && log.Steps >= log.GoalTarget {
		log.GoalMet = true
		changed = true
	}

	if refs := SessionRefs(obs); len(refs) > 0 {
		before := log.SessionIDs
		log.SetSessions(append(log.Sessions(), refs...))
		if log.SessionIDs != before {
			changed = true
		}
	}

	if !changed {
		return false, nil
	}
	if err := tx.SaveDailyLog(log); err != nil {
		return false, err
	}
	return true, nil
}

// Ratchet is the per-day high-water mark: the accepted value never regresses
// below a previously computed total, absorbing races against an eventually
// consistent upstream.
func Ratchet(existing, candidate int) int {
	if candidate > existing {
		return candidate
	}
	return existing
}

// Today returns the live snapshot for the user's current local day.
func (t *Tracker) Today(ctx context.Context, userID uint) (TodaySnapshot, error) {
	var snap TodaySnapshot
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		user, err := tx.User()
		if err != nil {
			return err
		}
		today := t.today(t.location(user))
		snap = TodaySnapshot{Date: today, Goal: user.GoalTarget}
		log, err := tx.DailyLog(today)
		if err != nil {
			return err
		}
		if log != nil {
			snap.Steps = log.Steps
			snap.Goal = log.GoalTarget
			snap.GoalMet = log.GoalMet
		}
		return nil
	})
	return snap, err
}

// Log returns one daily record, or nil when the day has no data.
func (t *Tracker) Log(ctx context.Context, userID uint, day string) (*models.DailyLog, error) {
	var out *models.DailyLog
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		log, err := tx.DailyLog(day)
		if err != nil {
			return err
		}
		out = log
		return nil
	})
	return out, err
}

// Logs returns the daily records inside a closed day range, oldest first.
func (t *Tracker) Logs(ctx context.Context, userID uint, from, to string) ([]models.DailyLog, error) {
	var out []models.DailyLog
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		rows, err := tx.DailyLogRange(from, to)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	return out, err
}

// Goal returns the user's current step goal.
func (t *Tracker) Goal(ctx context.Context, userID uint) (int, error) {
	var goal int
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		user, err := tx.User()
		if err != nil {
			return err
		}
		goal = user.GoalTarget
		return nil
	})
	return goal, err
}

// SetGoal changes the current goal. The new goal applies to today's still-open
// record and all future days; historical GoalTarget values stay frozen.
func (t *Tracker) SetGoal(ctx context.Context, userID uint, goal int) error {
	if goal <= 0 {
		return fmt.Errorf("goal must be positive, got %d", goal)
	}
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		user, err := tx.User()
		if err != nil {
			return err
		}
		user.GoalTarget = goal
		if err := tx.SaveUser(user); err != nil {
			return err
		}
		today := t.today(t.location(user))
		log, err := tx.DailyLog(today)
		if err != nil {
			return err
		}
		if log != nil && !log.Finalized {
			log.GoalTarget = goal
			log.GoalMet = log.Steps >= goal
			if err := tx.SaveDailyLog(log); err != nil {
				return err
			}
		}
		_, err = recomputeStreak(tx, today)
		return err
	})
	if err != nil {
		return err
	}
	t.publish("goal.changed", map[string]any{"user_id": userID, "goal": goal})
	utils.InvalidateByPrefix(fmt.Sprintf("today:%d:", userID))
	return nil
}
