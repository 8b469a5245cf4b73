package services

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/paceline/paceline/models"
)

// GormStore is the MySQL-backed Store. Each WithUser call runs inside a
// database transaction; aggregate loads use SELECT ... FOR UPDATE so
// concurrent writers to the same user queue behind each other.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an initialized gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// WithUser runs fn inside a transaction scoped to one user's aggregates.
func (s *GormStore) WithUser(ctx context.Context, userID uint, fn func(UserTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormUserTx{tx: tx, userID: userID})
	})
}

// ActiveUserIDs lists users for the background reconciliation sweep.
func (s *GormStore) ActiveUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).Pluck("id", &ids).Error
	return ids, err
}

type gormUserTx struct {
	tx     *gorm.DB
	userID uint
}

func (t *gormUserTx) User() (*models.User, error) {
	var u models.User
	if err := t.tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, t.userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *gormUserTx) SaveUser(u *models.User) error {
	return t.tx.Save(u).Error
}

func (t *gormUserTx) DailyLog(day string) (*models.DailyLog, error) {
	var row models.DailyLog
	err := t.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND date = ?", t.userID, day).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (t *gormUserTx) DailyLogRange(from, to string) ([]models.DailyLog, error) {
	var rows []models.DailyLog
	err := t.tx.
		Where("user_id = ? AND date >= ? AND date <= ?", t.userID, from, to).
		Order("date ASC").
		Find(&rows).Error
	return rows, err
}

func (t *gormUserTx) SaveDailyLog(row *models.DailyLog) error {
	row.UserID = t.userID
	if row.ID == 0 {
		return t.tx.Create(row).Error
	}
	return t.tx.Save(row).Error
}

func (t *gormUserTx) Streak() (*models.StreakState, error) {
	var st models.StreakState
	err := t.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", t.userID).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.StreakState{UserID: t.userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (t *gormUserTx) SaveStreak(st *models.StreakState) error {
	st.UserID = t.userID
	if st.ID == 0 {
		return t.tx.Create(st).Error
	}
	return t.tx.Save(st).Error
}

func (t *gormUserTx) Shields() (*models.ShieldInventory, error) {
	var inv models.ShieldInventory
	err := t.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", t.userID).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.ShieldInventory{UserID: t.userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (t *gormUserTx) SaveShields(inv *models.ShieldInventory) error {
	inv.UserID = t.userID
	if inv.ID == 0 {
		return t.tx.Create(inv).Error
	}
	return t.tx.Save(inv).Error
}
