package models

import (
	"context"
	"time"

	"github.com/kev-hfmn/review-reply-app-sub003/config"
)

// ActivityLog is the immutable audit trail. Automation run results are persisted here
// (one automation_run entry per tenant per orchestration pass) and never mutated.
type ActivityLog struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	Type        string    `gorm:"index;size:50;not null" json:"type"`
	Success     bool      `gorm:"default:true;not null" json:"success"`
	Description string    `gorm:"type:text" json:"description"`
	DetailJSON  []byte    `gorm:"type:json" json:"detail"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateActivity(ctx context.Context, activity *ActivityLog) error {
	db := config.GetDB()
	return db.WithContext(ctx).Create(activity).Error
}

func ListRecentActivities(ctx context.Context, businessId string, limit int) ([]ActivityLog, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 20
	}
	var activities []ActivityLog
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("created_at DESC").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}

// ListRecentRuns returns the trailing automation_run entries, newest first. The health
// tracker derives the needs-attention state from these.
func ListRecentRuns(ctx context.Context, businessId string, limit int) ([]ActivityLog, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 7
	}
	var runs []ActivityLog
	err := db.WithContext(ctx).
		Where("business_id = ? AND type = ?", businessId, ActivityAutomationRun).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
