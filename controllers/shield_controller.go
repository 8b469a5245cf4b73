package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paceline/paceline/services"
	"github.com/paceline/paceline/utils"
)

// ShieldController exposes the repair-token inventory and the repair flow.
type ShieldController struct {
	tracker *services.Tracker
}

// NewShieldController creates a new controller instance.
func NewShieldController(tracker *services.Tracker) *ShieldController {
	return &ShieldController{tracker: tracker}
}

// GetShields returns the inventory snapshot, issuing any due recurring grant.
func (s *ShieldController) GetShields(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	inv, err := s.tracker.Shields(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to load shields")
		return
	}
	utils.Success(ctx, gin.H{
		"recurring_available": inv.RecurringAvailable,
		"purchased_available": inv.PurchasedAvailable,
		"total_available":     inv.TotalAvailable(),
		"used_this_period":    inv.UsedThisPeriod,
		"total_used_lifetime": inv.TotalUsedLifetime,
	})
}

type purchaseRequest struct {
	Count int `json:"count" binding:"required"`
}

// Purchase credits purchased tokens after the payment collaborator settles.
func (s *ShieldController) Purchase(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req purchaseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Count <= 0 || req.Count > 100 {
		utils.Error(ctx, http.StatusBadRequest, 40020, "count must be between 1 and 100")
		return
	}
	inv, err := s.tracker.PurchaseShields(ctx.Request.Context(), userID, req.Count)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to credit shields")
		return
	}
	utils.Success(ctx, gin.H{
		"recurring_available": inv.RecurringAvailable,
		"purchased_available": inv.PurchasedAvailable,
	})
}

type repairRequest struct {
	Date string `json:"date" binding:"required"`
}

// Repair spends a shield to retroactively protect a missed day.
func (s *ShieldController) Repair(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req repairRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || !services.ValidDay(req.Date) {
		utils.Error(ctx, http.StatusBadRequest, 40021, "date must be YYYY-MM-DD")
		return
	}
	err := s.tracker.RepairDay(ctx.Request.Context(), userID, req.Date)
	switch {
	case err == nil:
		utils.Success(ctx, gin.H{"repaired": true, "date": req.Date})
	case errors.Is(err, services.ErrInsufficientShields):
		// expected outcome: the client offers the purchase path
		utils.Error(ctx, http.StatusConflict, 40910, "no shields available")
	case errors.Is(err, services.ErrRepairIneligible):
		utils.Error(ctx, http.StatusConflict, 40911, "day not eligible for repair")
	default:
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to repair day")
	}
}

// Decline explicitly breaks the streak instead of repairing a missed day.
func (s *ShieldController) Decline(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req repairRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || !services.ValidDay(req.Date) {
		utils.Error(ctx, http.StatusBadRequest, 40021, "date must be YYYY-MM-DD")
		return
	}
	if err := s.tracker.DeclineRepair(ctx.Request.Context(), userID); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to decline repair")
		return
	}
	utils.Success(ctx, gin.H{"repaired": false, "date": req.Date})
}
