package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/paceline/paceline/models"
	"github.com/paceline/paceline/utils"
)

// StatsController provides public aggregate statistics.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns service-wide counters for the landing surface.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var userCount int64
	var stepsToday int64
	var activeStreaks int64
	var shieldsSpent int64

	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		// Fallback to 0 instead of failing the whole endpoint
		userCount = 0
	}

	// Use string date equality to avoid timezone/type mismatches with the
	// DATE column; the global figure tolerates per-user timezone skew
	today := time.Now().In(time.Local).Format("2006-01-02")
	if err := s.db.Model(&models.DailyLog{}).
		Where("date = ?", today).
		Select("COALESCE(SUM(steps),0)").
		Scan(&stepsToday).Error; err != nil {
		stepsToday = 0
	}

	if err := s.db.Model(&models.StreakState{}).
		Where("current_streak > 0").
		Count(&activeStreaks).Error; err != nil {
		activeStreaks = 0
	}

	if err := s.db.Model(&models.ShieldInventory{}).
		Select("COALESCE(SUM(total_used_lifetime),0)").
		Scan(&shieldsSpent).Error; err != nil {
		shieldsSpent = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":     userCount,
		"steps_today":    stepsToday,
		"active_streaks": activeStreaks,
		"shields_spent":  shieldsSpent,
	})
}
