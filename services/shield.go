package services

import (
	"context"
	"fmt"

	"github.com/paceline/paceline/models"
	"github.com/paceline/paceline/utils"
)

// ConsumeOrder selects which token bucket consume() drains first. The order
// is product policy, not a derived invariant, so it stays configurable.
type ConsumeOrder string

const (
	PurchasedFirst ConsumeOrder = "purchased_first"
	RecurringFirst ConsumeOrder = "recurring_first"
)

// grantRecurring issues the recurring tokens for period (YYYY-MM) unless they
// were already granted. Unused recurring tokens bank up to the tier cap; the
// per-period usage counter resets with each new period.
func grantRecurring(inv *models.ShieldInventory, period string, limits TierLimits) bool {
	if inv.LastRefillPeriod == period {
		return false
	}
	inv.RecurringAvailable += limits.RecurringGrant
	if inv.RecurringAvailable > limits.BankMax {
		inv.RecurringAvailable = limits.BankMax
	}
	inv.LastRefillPeriod = period
	inv.UsedThisPeriod = 0
	return true
}

// consumeShield spends one token per the configured order. Counters never go
// negative; an empty inventory is an expected outcome, not a fault.
func consumeShield(inv *models.ShieldInventory, order ConsumeOrder) error {
	if inv.TotalAvailable() == 0 {
		return ErrInsufficientShields
	}
	switch {
	case order == RecurringFirst && inv.RecurringAvailable > 0:
		inv.RecurringAvailable--
	case inv.PurchasedAvailable > 0:
		inv.PurchasedAvailable--
	default:
		inv.RecurringAvailable--
	}
	inv.UsedThisPeriod++
	inv.TotalUsedLifetime++
	return nil
}

// refillPeriod is the recurring-grant period key for a day key.
func refillPeriod(day string) string {
	if len(day) < 7 {
		return day
	}
	return day[:7]
}

// loadShields reads the inventory, validates it, and applies any due
// recurring grant. The tier limits are re-read on every call.
func (t *Tracker) loadShields(tx UserTx, user *models.User, today string) (*models.ShieldInventory, error) {
	inv, err := tx.Shields()
	if err != nil {
		return nil, err
	}
	if !inv.Valid() {
		return nil, fmt.Errorf("%w: shield inventory for user %d", ErrCorruptedAggregate, user.ID)
	}
	if grantRecurring(inv, refillPeriod(today), t.tiers.TierFor(user)) {
		if err := tx.SaveShields(inv); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// Shields returns the current inventory, issuing any due recurring grant.
func (t *Tracker) Shields(ctx context.Context, userID uint) (*models.ShieldInventory, error) {
	var out *models.ShieldInventory
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		user, err := tx.User()
		if err != nil {
			return err
		}
		inv, err := t.loadShields(tx, user, t.today(t.location(user)))
		if err != nil {
			return err
		}
		out = inv
		return nil
	})
	return out, err
}

// PurchaseShields credits n purchased tokens. Purchased tokens never expire
// and have no cap.
func (t *Tracker) PurchaseShields(ctx context.Context, userID uint, n int) (*models.ShieldInventory, error) {
	if n <= 0 {
		return nil, fmt.Errorf("purchase count must be positive, got %d", n)
	}
	var out *models.ShieldInventory
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		user, err := tx.User()
		if err != nil {
			return err
		}
		inv, err := t.loadShields(tx, user, t.today(t.location(user)))
		if err != nil {
			return err
		}
		inv.PurchasedAvailable += n
		if err := tx.SaveShields(inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.publish("shields.changed", map[string]any{"user_id": userID})
	return out, nil
}

// RepairDay spends a shield to retroactively protect a missed day and
// recomputes the streak across the repaired range. Token consumption, the
// daily-log mutation, and the recompute commit atomically: a failure of any
// step rolls all of them back.
func (t *Tracker) RepairDay(ctx context.Context, userID uint, day string) error {
	err := t.store.WithUser(ctx, userID, func(tx UserTx) error {
		user, err := tx.User()
		if err != nil {
			return err
		}
		loc := t.location(user)
		today := t.today(loc)

		age := DaysBetween(day, today)
		limits := t.tiers.TierFor(user)
		if age < 0 || age >= limits.RepairLookbackDays {
			return fmt.Errorf("%w: %s outside lookback window", ErrRepairIneligible, day)
		}

		log, err := tx.DailyLog(day)
		if err != nil {
			return err
		}
		if log == nil {
			// a true no-data day is repairable too: materialize the gap as an
			// explicit zero-step record before shielding it
			log = &models.DailyLog{
				UserID:     userID,
				Date:       day,
				GoalTarget: user.GoalTarget,
				Finalized:  day < today,
			}
		}
		if log.GoalMet {
			return fmt.Errorf("%w: %s already goal-met", ErrRepairIneligible, day)
		}
		if log.ShieldUsed {
			return fmt.Errorf("%w: %s already shielded", ErrRepairIneligible, day)
		}

		inv, err := t.loadShields(tx, user, today)
		if err != nil {
			return err
		}
		if err := consumeShield(inv, t.cfg.ShieldOrder); err != nil {
			return err
		}
		if err := tx.SaveShields(inv); err != nil {
			return err
		}

		log.ShieldUsed = true
		if err := tx.SaveDailyLog(log); err != nil {
			return err
		}

		_, err = recomputeStreak(tx, today)
		return err
	})
	if err != nil {
		return err
	}
	if utils.Sugar != nil {
		utils.Sugar.Infow("shield repair applied", "user_id", userID, "date", day)
	}
	t.publish("shields.changed", map[string]any{"user_id": userID})
	t.publish("streak.changed", map[string]any{"user_id": userID})
	return nil
}
