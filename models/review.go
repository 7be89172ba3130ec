package models

import (
	"context"
	"errors"
	"time"

	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Review mirrors one external Google Business Profile review.
//
// Invariants:
//   - FinalReply is non-nil whenever Status is posted.
//   - AutomationFailed excludes the review from automatic processing until an
//     explicit retry resets it.
//
// Sync refreshes content fields only; it never clobbers Status/AiReply/FinalReply,
// so human or automation progress survives re-syncs.
type Review struct {
	ID               int          `gorm:"primary_key" json:"id"`
	BusinessId       string       `gorm:"uniqueIndex:idx_business_google_review,priority:1;not null" json:"business_id"`
	GoogleReviewId   *string      `gorm:"uniqueIndex:idx_business_google_review,priority:2;size:128" json:"google_review_id"`
	CustomerName     string       `gorm:"size:255" json:"customer_name"`
	Rating           int          `gorm:"not null" json:"rating"`
	ReviewText       string       `gorm:"type:text" json:"review_text"`
	ReviewDate       time.Time    `gorm:"index;not null" json:"review_date"`
	Status           ReviewStatus `gorm:"type:enum('pending','approved','posted','needs_edit','skipped');default:pending" json:"status"`
	AiReply          *string      `gorm:"type:text" json:"ai_reply"`
	FinalReply       *string      `gorm:"type:text" json:"final_reply"`
	PostedAt         *time.Time   `json:"posted_at"`
	AutomatedReply   bool         `gorm:"default:false;not null" json:"automated_reply"`
	AutomationFailed bool         `gorm:"default:false;not null" json:"automation_failed"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetReviewByGoogleId(ctx context.Context, businessId string, googleReviewId string) (*Review, error) {
	db := config.GetDB()
	var review Review
	err := db.WithContext(ctx).
		Where("business_id = ? AND google_review_id = ?", businessId, googleReviewId).
		Take(&review).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &review, nil
}

// ListPendingReviews returns automation-eligible pending reviews, oldest first, so a
// capped batch always prioritizes the oldest unaddressed reviews.
func ListPendingReviews(ctx context.Context, businessId string, limit int) ([]Review, error) {
	db := config.GetDB()
	var reviews []Review
	q := db.WithContext(ctx).
		Where("business_id = ? AND status = ? AND automated_reply = false AND automation_failed = false",
			businessId, ReviewStatusPending).
		Order("review_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}

func ListAutomationFailedReviews(ctx context.Context, businessId string) ([]Review, error) {
	db := config.GetDB()
	var reviews []Review
	err := db.WithContext(ctx).
		Where("business_id = ? AND automation_failed = true", businessId).
		Order("review_date ASC").
		Find(&reviews).Error
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

func ListReviews(ctx context.Context, businessId string) ([]Review, error) {
	db := config.GetDB()
	var reviews []Review
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("review_date DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

// ReviewStats summarizes a tenant's review base for the status endpoint.
type ReviewStats struct {
	TotalReviews  int64           `json:"total_reviews"`
	PendingCount  int64           `json:"pending_count"`
	PostedCount   int64           `json:"posted_count"`
	FailedCount   int64           `json:"failed_count"`
	AverageRating decimal.Decimal `json:"average_rating"`
}

func GetReviewStats(ctx context.Context, businessId string) (*ReviewStats, error) {
	db := config.GetDB()
	stats := &ReviewStats{AverageRating: decimal.Zero}

	if err := db.WithContext(ctx).Model(&Review{}).
		Where("business_id = ?", businessId).
		Count(&stats.TotalReviews).Error; err != nil {
		return nil, err
	}
	if stats.TotalReviews == 0 {
		return stats, nil
	}
	if err := db.WithContext(ctx).Model(&Review{}).
		Where("business_id = ? AND status = ?", businessId, ReviewStatusPending).
		Count(&stats.PendingCount).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&Review{}).
		Where("business_id = ? AND status = ?", businessId, ReviewStatusPosted).
		Count(&stats.PostedCount).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&Review{}).
		Where("business_id = ? AND automation_failed = true", businessId).
		Count(&stats.FailedCount).Error; err != nil {
		return nil, err
	}

	var avg *float64
	if err := db.WithContext(ctx).Model(&Review{}).
		Where("business_id = ?", businessId).
		Select("AVG(rating)").Scan(&avg).Error; err != nil {
		return nil, err
	}
	if avg != nil {
		stats.AverageRating = decimal.NewFromFloat(*avg).Round(2)
	}
	return stats, nil
}
