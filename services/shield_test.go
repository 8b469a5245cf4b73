package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline/paceline/models"
)

func TestGrantRecurringBanksUpToCap(t *testing.T) {
	limits := TierLimits{BankMax: 2, RecurringGrant: 1}

	inv := &models.ShieldInventory{}
	assert.True(t, grantRecurring(inv, "2025-05", limits))
	assert.Equal(t, 1, inv.RecurringAvailable)

	assert.True(t, grantRecurring(inv, "2025-06", limits))
	assert.Equal(t, 2, inv.RecurringAvailable)

	// the bank is full; the grant still advances the period
	assert.True(t, grantRecurring(inv, "2025-07", limits))
	assert.Equal(t, 2, inv.RecurringAvailable)
	assert.Equal(t, "2025-07", inv.LastRefillPeriod)
}

func TestGrantRecurringOncePerPeriod(t *testing.T) {
	limits := TierLimits{BankMax: 5, RecurringGrant: 3}
	inv := &models.ShieldInventory{UsedThisPeriod: 2}

	require.True(t, grantRecurring(inv, "2025-06", limits))
	assert.Equal(t, 3, inv.RecurringAvailable)
	assert.Zero(t, inv.UsedThisPeriod, "a new period resets the usage counter")

	assert.False(t, grantRecurring(inv, "2025-06", limits))
	assert.Equal(t, 3, inv.RecurringAvailable)
}

func TestConsumeShieldOrderPolicies(t *testing.T) {
	inv := &models.ShieldInventory{RecurringAvailable: 2, PurchasedAvailable: 1}
	require.NoError(t, consumeShield(inv, PurchasedFirst))
	assert.Equal(t, 2, inv.RecurringAvailable)
	assert.Zero(t, inv.PurchasedAvailable)

	// purchased is empty, falls through to recurring
	require.NoError(t, consumeShield(inv, PurchasedFirst))
	assert.Equal(t, 1, inv.RecurringAvailable)

	inv = &models.ShieldInventory{RecurringAvailable: 1, PurchasedAvailable: 2}
	require.NoError(t, consumeShield(inv, RecurringFirst))
	assert.Zero(t, inv.RecurringAvailable)
	assert.Equal(t, 2, inv.PurchasedAvailable)

	require.NoError(t, consumeShield(inv, RecurringFirst))
	assert.Equal(t, 1, inv.PurchasedAvailable)
}

func TestConsumeShieldEmptyInventory(t *testing.T) {
	inv := &models.ShieldInventory{}
	err := consumeShield(inv, PurchasedFirst)
	require.ErrorIs(t, err, ErrInsufficientShields)
	assert.Zero(t, inv.RecurringAvailable)
	assert.Zero(t, inv.PurchasedAvailable)
	assert.Zero(t, inv.TotalUsedLifetime)
}

func TestConsumeShieldTracksUsage(t *testing.T) {
	inv := &models.ShieldInventory{RecurringAvailable: 1, PurchasedAvailable: 1, TotalUsedLifetime: 4}
	require.NoError(t, consumeShield(inv, PurchasedFirst))
	require.NoError(t, consumeShield(inv, PurchasedFirst))
	assert.Equal(t, 2, inv.UsedThisPeriod)
	assert.Equal(t, 6, inv.TotalUsedLifetime)
}

func TestRefillPeriod(t *testing.T) {
	assert.Equal(t, "2025-06", refillPeriod("2025-06-07"))
	assert.Equal(t, "2024-12", refillPeriod("2024-12-31"))
}

func TestShieldsAppliesLazyGrant(t *testing.T) {
	e := newTestEngine()

	inv, err := e.tracker.Shields(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.RecurringAvailable, "first load of the period grants the recurring token")
	assert.Equal(t, "2025-06", inv.LastRefillPeriod)

	// the grant must have been persisted, not just returned
	stored := e.store.getShields(testUserID)
	assert.Equal(t, 1, stored.RecurringAvailable)

	inv, err = e.tracker.Shields(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.RecurringAvailable, "same period must not grant twice")
}

func TestPurchaseShields(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	inv, err := e.tracker.PurchaseShields(ctx, testUserID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.PurchasedAvailable)
	assert.Equal(t, 1, inv.RecurringAvailable)

	_, err = e.tracker.PurchaseShields(ctx, testUserID, 0)
	assert.Error(t, err)
	_, err = e.tracker.PurchaseShields(ctx, testUserID, -2)
	assert.Error(t, err)
}

func TestShieldsRejectsCorruptedInventory(t *testing.T) {
	e := newTestEngine()
	e.store.shields[testUserID] = &models.ShieldInventory{UserID: testUserID, RecurringAvailable: -1}

	_, err := e.tracker.Shields(context.Background(), testUserID)
	require.ErrorIs(t, err, ErrCorruptedAggregate)

	stored := e.store.getShields(testUserID)
	assert.Equal(t, -1, stored.RecurringAvailable, "corrupted state must be left untouched for inspection")
}

func TestRepairDayShieldsMissedDay(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// clock is 2025-06-07; 06-04 was a finalized miss
	e.store.putLog(testUserID, models.DailyLog{Date: "2025-06-04", Steps: 3000, GoalTarget: 10000, Finalized: true})

	require.NoError(t, e.tracker.RepairDay(ctx, testUserID, "2025-06-04"))

	log := e.store.getLog(testUserID, "2025-06-04")
	require.NotNil(t, log)
	assert.True(t, log.ShieldUsed)
	assert.False(t, log.GoalMet, "a shield protects the streak without faking the goal")
	assert.Equal(t, 3000, log.Steps)

	inv := e.store.getShields(testUserID)
	assert.Zero(t, inv.TotalAvailable(), "the monthly recurring token was spent")
	assert.Equal(t, 1, inv.TotalUsedLifetime)
}

func TestRepairDayMaterializesGapDay(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// no record at all for 06-05
	require.NoError(t, e.tracker.RepairDay(ctx, testUserID, "2025-06-05"))

	log := e.store.getLog(testUserID, "2025-06-05")
	require.NotNil(t, log)
	assert.Zero(t, log.Steps)
	assert.Equal(t, 10000, log.GoalTarget)
	assert.True(t, log.ShieldUsed)
	assert.True(t, log.Finalized)
}

func TestRepairDayIneligible(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// outside the free-tier lookback window
	err := e.tracker.RepairDay(ctx, testUserID, "2025-05-20")
	assert.ErrorIs(t, err, ErrRepairIneligible)

	// in the future
	err = e.tracker.RepairDay(ctx, testUserID, "2025-06-08")
	assert.ErrorIs(t, err, ErrRepairIneligible)

	// already goal-met
	e.store.putLog(testUserID, models.DailyLog{Date: "2025-06-03", Steps: 12000, GoalTarget: 10000, GoalMet: true, Finalized: true})
	err = e.tracker.RepairDay(ctx, testUserID, "2025-06-03")
	assert.ErrorIs(t, err, ErrRepairIneligible)

	// already shielded
	e.store.putLog(testUserID, models.DailyLog{Date: "2025-06-02", Steps: 1000, GoalTarget: 10000, ShieldUsed: true, Finalized: true})
	err = e.tracker.RepairDay(ctx, testUserID, "2025-06-02")
	assert.ErrorIs(t, err, ErrRepairIneligible)

	inv := e.store.getShields(testUserID)
	assert.Zero(t, inv.TotalUsedLifetime, "rejected repairs must not consume tokens")
}

func TestRepairDayInsufficientShields(t *testing.T) {
	e := newTestEngine(withTiers(TierLimits{BankMax: 2, RecurringGrant: 0, RepairLookbackDays: 7, ReconcileWindowDays: 30}))
	ctx := context.Background()

	e.store.putLog(testUserID, models.DailyLog{Date: "2025-06-04", Steps: 3000, GoalTarget: 10000, Finalized: true})

	err := e.tracker.RepairDay(ctx, testUserID, "2025-06-04")
	require.ErrorIs(t, err, ErrInsufficientShields)

	log := e.store.getLog(testUserID, "2025-06-04")
	require.NotNil(t, log)
	assert.False(t, log.ShieldUsed)
}

func TestRepairDayRollsBackOnFailure(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	e.store.putLog(testUserID, models.DailyLog{Date: "2025-06-04", Steps: 3000, GoalTarget: 10000, Finalized: true})
	e.store.failSaveStreak = true

	err := e.tracker.RepairDay(ctx, testUserID, "2025-06-04")
	require.Error(t, err)

	// consumption and the log mutation must both have rolled back
	log := e.store.getLog(testUserID, "2025-06-04")
	require.NotNil(t, log)
	assert.False(t, log.ShieldUsed)
	inv := e.store.getShields(testUserID)
	assert.Zero(t, inv.TotalUsedLifetime)
}

func TestRepairDayResurrectsStreak(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	for day := "2025-06-01"; day <= "2025-06-06"; day = AddDays(day, 1) {
		met := day != "2025-06-04"
		steps := 12000
		if !met {
			steps = 3000
		}
		e.store.putLog(testUserID, models.DailyLog{Date: day, Steps: steps, GoalTarget: 10000, GoalMet: met, Finalized: true})
	}

	st, err := e.tracker.Streak(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, 2, st.CurrentStreak, "the run should stop at the 06-04 miss")

	require.NoError(t, e.tracker.RepairDay(ctx, testUserID, "2025-06-04"))

	st, err = e.tracker.Streak(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, 6, st.CurrentStreak)
	assert.Equal(t, "2025-06-01", st.StreakStartDate)
}
