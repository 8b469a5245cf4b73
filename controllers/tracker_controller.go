package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paceline/paceline/services"
	"github.com/paceline/paceline/utils"
)

// TrackerController exposes the live engine surface: today's totals, the
// streak snapshot, daily logs, goal management and the observation ingest
// path.
type TrackerController struct {
	tracker    *services.Tracker
	reconciler *services.Reconciler
}

// NewTrackerController creates a new controller instance.
func NewTrackerController(tracker *services.Tracker, reconciler *services.Reconciler) *TrackerController {
	return &TrackerController{tracker: tracker, reconciler: reconciler}
}

// Today returns the live snapshot for the user's current local day.
func (t *TrackerController) Today(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	cacheKey := fmt.Sprintf("today:%d:snapshot", userID)
	var cached services.TodaySnapshot
	if utils.CacheGetJSON(cacheKey, &cached) {
		utils.Success(ctx, cached)
		return
	}

	snap, err := t.tracker.Today(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to load today")
		return
	}
	utils.CacheSetJSON(cacheKey, snap, 30*time.Second)
	utils.Success(ctx, snap)
}

// Streak returns the recomputed streak snapshot.
func (t *TrackerController) Streak(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	st, err := t.tracker.Streak(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to load streak")
		return
	}
	utils.Success(ctx, st)
}

// AckMilestone consumes the pending milestone notification.
func (t *TrackerController) AckMilestone(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	acked, err := t.tracker.AckMilestone(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to ack milestone")
		return
	}
	utils.Success(ctx, gin.H{"acknowledged": acked})
}

// GetLog returns one daily record.
func (t *TrackerController) GetLog(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	day := ctx.Param("date")
	if !services.ValidDay(day) {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid date, expected YYYY-MM-DD")
		return
	}
	log, err := t.tracker.Log(ctx.Request.Context(), userID, day)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to load daily log")
		return
	}
	if log == nil {
		utils.Error(ctx, http.StatusNotFound, 40402, "no record for date")
		return
	}
	utils.Success(ctx, gin.H{"log": log, "session_ids": log.Sessions()})
}

// ListLogs returns the daily records in a closed range, oldest first.
func (t *TrackerController) ListLogs(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	from := ctx.Query("from")
	to := ctx.Query("to")
	if !services.ValidDay(from) || !services.ValidDay(to) || from > to {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid range, expected from<=to as YYYY-MM-DD")
		return
	}
	if services.DaysBetween(from, to) > 366 {
		utils.Error(ctx, http.StatusBadRequest, 40012, "range too large")
		return
	}
	logs, err := t.tracker.Logs(ctx.Request.Context(), userID, from, to)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to load daily logs")
		return
	}
	utils.Success(ctx, logs)
}

// GetGoal returns the current step goal.
func (t *TrackerController) GetGoal(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	goal, err := t.tracker.Goal(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50014, "failed to load goal")
		return
	}
	utils.Success(ctx, gin.H{"goal_target": goal})
}

type goalRequest struct {
	GoalTarget int `json:"goal_target" binding:"required"`
}

// UpdateGoal changes the current goal; history keeps its frozen targets.
func (t *TrackerController) UpdateGoal(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req goalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.GoalTarget <= 0 {
		utils.Error(ctx, http.StatusBadRequest, 40013, "goal_target must be a positive integer")
		return
	}
	if err := t.tracker.SetGoal(ctx.Request.Context(), userID, req.GoalTarget); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50015, "failed to update goal")
		return
	}
	utils.Success(ctx, gin.H{"goal_target": req.GoalTarget})
}

type ingestRequest struct {
	Observations []services.StepObservation `json:"observations" binding:"required"`
}

// Ingest accepts an observation batch from a device and drives the live
// merge/ratchet/commit pipeline.
func (t *TrackerController) Ingest(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req ingestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40014, "invalid observation payload")
		return
	}
	if len(req.Observations) == 0 {
		utils.Success(ctx, gin.H{"changed_days": []string{}})
		return
	}
	if len(req.Observations) > 1000 {
		utils.Error(ctx, http.StatusBadRequest, 40015, "batch too large")
		return
	}
	changed, err := t.tracker.Ingest(ctx.Request.Context(), userID, req.Observations)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50016, "failed to ingest observations")
		return
	}
	if changed == nil {
		changed = []string{}
	}
	utils.Success(ctx, gin.H{"changed_days": changed})
}

// Reconcile triggers an on-demand reconciliation cycle, e.g. on app
// foregrounding. The cycle may be throttled away, which is a success.
func (t *TrackerController) Reconcile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	changed, err := t.reconciler.ReconcileUser(ctx.Request.Context(), userID)
	if err != nil {
		// upstream trouble defers reconciliation; the client's data is merely stale
		utils.Success(ctx, gin.H{"changed_days": []string{}, "deferred": true})
		return
	}
	if changed == nil {
		changed = []string{}
	}
	utils.Success(ctx, gin.H{"changed_days": changed, "deferred": false})
}
