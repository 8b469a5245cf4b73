package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline/paceline/models"
)

func metDays(from string, n int) []models.DailyLog {
	logs := make([]models.DailyLog, 0, n)
	day := from
	for i := 0; i < n; i++ {
		logs = append(logs, models.DailyLog{Date: day, Steps: 12000, GoalTarget: 10000, GoalMet: true, Finalized: true})
		day = AddDays(day, 1)
	}
	return logs
}

func TestMilestoneForTable(t *testing.T) {
	cases := map[int]int{
		0:    0,
		6:    0,
		7:    7,
		13:   7,
		14:   14,
		29:   21,
		30:   30,
		90:   90,
		179:  90,
		365:  365,
		399:  365,
		400:  400,
		437:  400,
		500:  500,
		1234: 1200,
	}
	for streak, want := range cases {
		assert.Equal(t, want, milestoneFor(streak), "streak %d", streak)
	}
}

func TestStreakWalkCountsConsecutiveQualifyingDays(t *testing.T) {
	// six finalized met days; today exists but is not yet met
	logs := metDays("2025-06-01", 6)
	logs = append(logs, models.DailyLog{Date: "2025-06-07", Steps: 4000, GoalTarget: 10000})

	var st models.StreakState
	applyStreakWalk(&st, logs, "2025-06-07")

	assert.Equal(t, 6, st.CurrentStreak, "an unfinished today must not break the run")
	assert.Equal(t, 6, st.LongestStreak)
	assert.Equal(t, "2025-06-01", st.StreakStartDate)
	assert.Equal(t, "2025-06-06", st.LastGoalMetDate)
}

func TestStreakWalkTodayMetExtends(t *testing.T) {
	logs := metDays("2025-06-01", 7)

	var st models.StreakState
	applyStreakWalk(&st, logs, "2025-06-07")

	assert.Equal(t, 7, st.CurrentStreak)
	assert.Equal(t, "2025-06-07", st.LastGoalMetDate)
	assert.Equal(t, 7, st.PendingMilestone)
}

func TestStreakWalkShieldedDayCounts(t *testing.T) {
	logs := metDays("2025-06-01", 3)
	logs = append(logs, models.DailyLog{Date: "2025-06-04", Steps: 2000, GoalTarget: 10000, ShieldUsed: true, Finalized: true})
	logs = append(logs, metDays("2025-06-05", 3)...)

	var st models.StreakState
	applyStreakWalk(&st, logs, "2025-06-07")

	assert.Equal(t, 7, st.CurrentStreak)
	assert.Equal(t, "2025-06-01", st.StreakStartDate)
}

func TestStreakWalkMissBreaksAndPreservesLongest(t *testing.T) {
	logs := metDays("2025-06-01", 5)
	logs = append(logs, models.DailyLog{Date: "2025-06-06", Steps: 3000, GoalTarget: 10000, Finalized: true})

	var st models.StreakState
	applyStreakWalk(&st, metDays("2025-06-01", 5), "2025-06-05")
	require.Equal(t, 5, st.CurrentStreak)

	applyStreakWalk(&st, logs, "2025-06-07")
	assert.Equal(t, 0, st.CurrentStreak)
	assert.Equal(t, 5, st.LongestStreak)
	assert.Empty(t, st.StreakStartDate)
	assert.Empty(t, st.LastGoalMetDate)
}

func TestStreakWalkGapDayBreaksLikeMiss(t *testing.T) {
	// met days up to 06-04, nothing recorded for 06-05 or 06-06
	logs := metDays("2025-06-01", 4)

	var st models.StreakState
	applyStreakWalk(&st, logs, "2025-06-07")

	assert.Equal(t, 0, st.CurrentStreak)
	assert.Equal(t, 4, st.LongestStreak)
}

func TestStreakWalkMilestoneFiresExactlyOnce(t *testing.T) {
	logs := metDays("2025-06-01", 7)

	var st models.StreakState
	applyStreakWalk(&st, logs, "2025-06-07")
	require.Equal(t, 7, st.PendingMilestone)

	// acknowledged by the client
	st.PendingMilestone = 0

	// redundant recomputes at the same streak must not re-raise it
	applyStreakWalk(&st, logs, "2025-06-07")
	assert.Zero(t, st.PendingMilestone)

	// growing past the milestone without reaching the next one stays quiet
	logs = append(logs, metDays("2025-06-08", 3)...)
	applyStreakWalk(&st, logs, "2025-06-10")
	assert.Equal(t, 10, st.CurrentStreak)
	assert.Zero(t, st.PendingMilestone)
}

func TestStreakWalkMilestoneRefiresAfterBreak(t *testing.T) {
	var st models.StreakState
	applyStreakWalk(&st, metDays("2025-06-01", 7), "2025-06-07")
	require.Equal(t, 7, st.PendingMilestone)
	st.PendingMilestone = 0

	// the run breaks, the baseline drops
	applyStreakWalk(&st, nil, "2025-06-09")
	require.Zero(t, st.CurrentStreak)

	// a fresh climb to 7 is a new achievement
	applyStreakWalk(&st, metDays("2025-06-10", 7), "2025-06-16")
	assert.Equal(t, 7, st.CurrentStreak)
	assert.Equal(t, 7, st.PendingMilestone)
}

func TestStreakWalkBreakClearsUnackedPending(t *testing.T) {
	var st models.StreakState
	applyStreakWalk(&st, metDays("2025-06-01", 7), "2025-06-07")
	require.Equal(t, 7, st.PendingMilestone)

	// never acknowledged; the run breaks before the client saw it
	applyStreakWalk(&st, nil, "2025-06-09")
	assert.Zero(t, st.PendingMilestone)
	assert.Zero(t, st.LastReachedMilestone)
}

func TestTrackerStreakRecomputesOnRead(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	for day := "2025-06-01"; day <= "2025-06-05"; day = AddDays(day, 1) {
		e.store.putLog(testUserID, models.DailyLog{Date: day, Steps: 11000, GoalTarget: 10000, GoalMet: true, Finalized: true})
	}
	// stale persisted counter from before the 06-06 gap
	e.store.streaks[testUserID] = &models.StreakState{UserID: testUserID, CurrentStreak: 5, LongestStreak: 5, StreakStartDate: "2025-06-01", LastGoalMetDate: "2025-06-05"}

	st, err := e.tracker.Streak(ctx, testUserID)
	require.NoError(t, err)
	assert.Zero(t, st.CurrentStreak, "a day of inactivity must surface on read")
	assert.Equal(t, 5, st.LongestStreak)
}

func TestTrackerAckMilestone(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	e.store.streaks[testUserID] = &models.StreakState{UserID: testUserID, CurrentStreak: 7, LongestStreak: 7, LastReachedMilestone: 7, PendingMilestone: 7, StreakStartDate: "2025-06-01", LastGoalMetDate: "2025-06-07"}

	m, err := e.tracker.AckMilestone(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, 7, m)

	m, err = e.tracker.AckMilestone(ctx, testUserID)
	require.NoError(t, err)
	assert.Zero(t, m, "a second ack must find nothing pending")
}

func TestTrackerStreakRejectsCorruptedState(t *testing.T) {
	e := newTestEngine()
	e.store.streaks[testUserID] = &models.StreakState{UserID: testUserID, CurrentStreak: 9, LongestStreak: 3}

	_, err := e.tracker.Streak(context.Background(), testUserID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptedAggregate)

	// the corrupted row must not have been overwritten
	st := e.store.getStreak(testUserID)
	assert.Equal(t, 9, st.CurrentStreak)
}

func TestTrackerDeclineRepairBreaksStreak(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.store.streaks[testUserID] = &models.StreakState{UserID: testUserID, CurrentStreak: 12, LongestStreak: 12, LastReachedMilestone: 7, PendingMilestone: 7, StreakStartDate: "2025-05-26", LastGoalMetDate: "2025-06-06"}

	require.NoError(t, e.tracker.DeclineRepair(ctx, testUserID))

	st := e.store.getStreak(testUserID)
	assert.Zero(t, st.CurrentStreak)
	assert.Equal(t, 12, st.LongestStreak)
	assert.Zero(t, st.PendingMilestone)
	assert.Zero(t, st.LastReachedMilestone)
	assert.Empty(t, st.StreakStartDate)
}
