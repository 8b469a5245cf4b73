package services

import (
	"context"
	"fmt"
	"time"

	"github.com/paceline/paceline/models"
	"github.com/paceline/paceline/utils"
)

// Throttle grants reconciliation slots. Acquire returns false while a slot
// for the key is still held, deferring the cycle to the next trigger.
type Throttle interface {
	Acquire(key string, ttl time.Duration) bool
}

// UserLister enumerates users for the background sweep.
type UserLister interface {
	ActiveUserIDs(ctx context.Context) ([]uint, error)
}

// Reconciler periodically re-derives a trailing window of days from the
// observation source so late-arriving or corrected data heals the daily logs.
// Every day commits independently; a failed or cancelled cycle never unwinds
// corrections already applied.
type Reconciler struct {
	tracker     *Tracker
	store       Store
	source      ObservationSource
	clock       Clock
	tiers       TierProvider
	throttle    Throttle
	minInterval time.Duration
}

// NewReconciler wires the scheduler. throttle may be nil to disable throttling.
func NewReconciler(tracker *Tracker, store Store, source ObservationSource, clock Clock, tiers TierProvider, throttle Throttle, minInterval time.Duration) *Reconciler {
	if minInterval <= 0 {
		minInterval = 4 * time.Hour
	}
	return &Reconciler{
		tracker:     tracker,
		store:       store,
		source:      source,
		clock:       clock,
		tiers:       tiers,
		throttle:    throttle,
		minInterval: minInterval,
	}
}

// ReconcileUser re-runs merge and ratchet over the user's tier-bounded
// trailing window and returns the days whose recorded steps changed. A nil
// slice with a nil error means the cycle was throttled away.
func (r *Reconciler) ReconcileUser(ctx context.Context, userID uint) ([]string, error) {
	if r.throttle != nil && !r.throttle.Acquire(fmt.Sprintf("reconcile:user:%d", userID), r.minInterval) {
		return nil, nil
	}

	var (
		user  *models.User
		today string
		from  string
	)
	err := r.store.WithUser(ctx, userID, func(tx UserTx) error {
		u, err := tx.User()
		if err != nil {
			return err
		}
		user = u
		loc := r.tracker.location(u)
		today = DayKey(r.clock.Now(), loc)
		window := r.tiers.TierFor(u).ReconcileWindowDays
		if window <= 0 {
			window = 30
		}
		from = AddDays(today, -(window - 1))
		return nil
	})
	if err != nil {
		return nil, err
	}

	var changed []string
	for day := from; day <= today; day = AddDays(day, 1) {
		if err := ctx.Err(); err != nil {
			// interrupted mid-window: committed days stand, the rest waits
			// for the next cycle
			return changed, err
		}

		obs, err := r.source.FetchDay(ctx, userID, day)
		if err != nil {
			// upstream unavailability is non-fatal; skip the day this cycle
			if utils.Sugar != nil {
				utils.Sugar.Warnw("reconcile fetch failed", "user_id", userID, "date", day, "err", err)
			}
			continue
		}

		dayChanged := false
		err = r.store.WithUser(ctx, userID, func(tx UserTx) error {
			c, err := r.tracker.commitDay(tx, user, day, today, obs)
			dayChanged = c
			return err
		})
		if err != nil {
			if utils.Sugar != nil {
				utils.Sugar.Warnw("reconcile commit failed", "user_id", userID, "date", day, "err", err)
			}
			continue
		}
		if dayChanged {
			changed = append(changed, day)
		}
	}

	if len(changed) > 0 {
		// a correction to a past day can resurrect a streak that looked broken
		err = r.store.WithUser(ctx, userID, func(tx UserTx) error {
			_, err := recomputeStreak(tx, today)
			return err
		})
		if err != nil {
			return changed, err
		}
		for _, day := range changed {
			r.tracker.publish("daily_log.changed", map[string]any{"user_id": userID, "date": day})
		}
		r.tracker.publish("streak.changed", map[string]any{"user_id": userID})
		utils.InvalidateByPrefix(fmt.Sprintf("today:%d:", userID))
		if utils.Sugar != nil {
			utils.Sugar.Infow("reconciliation applied corrections", "user_id", userID, "days", len(changed))
		}
	}
	return changed, nil
}

type journalPruner interface {
	PruneBefore(ctx context.Context, now time.Time) error
}

// Start launches the background sweep. Best-effort, like the rest of the
// scheduler: failures are logged and retried on the next tick.
func (r *Reconciler) Start(users UserLister, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		for {
			// sleep first to avoid racing app startup
			time.Sleep(interval)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			ids, err := users.ActiveUserIDs(ctx)
			if err != nil {
				if utils.Sugar != nil {
					utils.Sugar.Warnw("reconcile sweep: listing users failed", "err", err)
				}
				cancel()
				continue
			}
			for _, id := range ids {
				if _, err := r.ReconcileUser(ctx, id); err != nil && ctx.Err() == nil {
					if utils.Sugar != nil {
						utils.Sugar.Warnw("reconcile sweep: user cycle failed", "user_id", id, "err", err)
					}
				}
			}
			if p, ok := r.source.(journalPruner); ok {
				if err := p.PruneBefore(ctx, r.clock.Now()); err != nil && utils.Sugar != nil {
					utils.Sugar.Debugw("journal prune failed", "err", err)
				}
			}
			cancel()
		}
	}()
}
