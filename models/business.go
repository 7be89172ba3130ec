package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"github.com/kev-hfmn/review-reply-app-sub003/utils"
	"gorm.io/gorm"
)

// Business is the unit of tenant isolation: one linked Google Business Profile location.
// The sync watermark (LastReviewSync + IsBackfillComplete) lives here; while backfill is
// incomplete, sync ignores caller-supplied window/count and requests full history.
type Business struct {
	ID                    uuid.UUID        `gorm:"primary_key" json:"id"`
	UserId                string           `gorm:"index;size:64;not null" json:"user_id"`
	Name                  string           `gorm:"size:255;not null" json:"name" binding:"required"`
	GoogleAccountId       string           `gorm:"size:128" json:"google_account_id"`
	GoogleLocationId      string           `gorm:"size:128" json:"google_location_id"`
	ConnectionStatus      ConnectionStatus `gorm:"type:enum('disconnected','connecting','connected','needs_reconnection','error');default:disconnected" json:"connection_status"`
	LastReviewSync        *time.Time       `json:"last_review_sync"`
	LastConnectionAttempt *time.Time       `json:"last_connection_attempt"`
	IsBackfillComplete    *bool            `gorm:"default:false;not null" json:"is_backfill_complete"`
	CreatedAt             time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Connected reports whether the tenant has a usable location reference.
func (b *Business) Connected() bool {
	return b.ConnectionStatus == ConnectionStatusConnected &&
		b.GoogleAccountId != "" && b.GoogleLocationId != ""
}

func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	db := config.GetDB()
	var business Business
	err := db.WithContext(ctx).Where("id = ?", businessId).Take(&business).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &business, nil
}

// MarkConnected sets the external-location reference. The reference is only ever set
// together with the connected status.
func MarkConnected(ctx context.Context, businessId string, accountId, locationId string) error {
	db := config.GetDB()
	now := time.Now()
	return db.WithContext(ctx).Model(&Business{}).
		Where("id = ?", businessId).
		Updates(map[string]interface{}{
			"google_account_id":       accountId,
			"google_location_id":      locationId,
			"connection_status":       ConnectionStatusConnected,
			"last_connection_attempt": now,
		}).Error
}

func SetConnectionStatus(ctx context.Context, businessId string, status ConnectionStatus) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Business{}).
		Where("id = ?", businessId).
		Update("connection_status", status).Error
}

// UpdateSyncWatermark advances last_review_sync; backfillComplete is latched true, never
// reset here (only a reconnect resets it).
func UpdateSyncWatermark(ctx context.Context, businessId string, at time.Time, backfillComplete bool) error {
	db := config.GetDB()
	updates := map[string]interface{}{
		"last_review_sync": at,
	}
	if backfillComplete {
		updates["is_backfill_complete"] = true
	}
	return db.WithContext(ctx).Model(&Business{}).
		Where("id = ?", businessId).
		Updates(updates).Error
}

// DeleteBusinessCascade removes a tenant and everything owned by it. Called when the
// owning user disconnects their account.
func DeleteBusinessCascade(ctx context.Context, businessId string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ?", businessId).Delete(&Review{}).Error; err != nil {
			return err
		}
		if err := tx.Where("business_id = ?", businessId).Delete(&BusinessSettings{}).Error; err != nil {
			return err
		}
		if err := tx.Where("business_id = ?", businessId).Delete(&GoogleCredential{}).Error; err != nil {
			return err
		}
		if err := tx.Where("business_id = ?", businessId).Delete(&ActivityLog{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", businessId).Delete(&Business{}).Error
	})
}
