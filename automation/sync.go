package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"github.com/kev-hfmn/review-reply-app-sub003/gbp"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"github.com/sirupsen/logrus"
)

// SyncEngine reconciles the local reviews table against the external source for one
// tenant at a time.
type SyncEngine struct {
	reviews    ReviewStore
	businesses BusinessStore
	source     ReviewSource
	logg       *logrus.Logger
}

func NewSyncEngine(reviews ReviewStore, businesses BusinessStore, source ReviewSource, logg *logrus.Logger) *SyncEngine {
	return &SyncEngine{reviews: reviews, businesses: businesses, source: source, logg: logg}
}

// Sync fetches reviews for the window and reconciles them. While the tenant's initial
// backfill is incomplete, the caller's window and count are overridden with a
// full-history fetch; afterwards incremental windows apply.
//
// Per-review persistence failures are collected and do not abort the pass; only a
// wholesale fetch failure does. Any collected error clears Success.
func (e *SyncEngine) Sync(ctx context.Context, business *models.Business, opts SyncOptions) (*SyncResult, error) {
	result := &SyncResult{SyncedAt: time.Now()}

	if !business.Connected() {
		return result, fmt.Errorf("business %s is not connected (status=%s)", business.ID, business.ConnectionStatus)
	}

	window := opts.Window
	maxCount := opts.MaxCount
	backfilling := business.IsBackfillComplete == nil || !*business.IsBackfillComplete
	if backfilling {
		window = 0
		maxCount = BackfillMaxCount
	}

	loc := gbp.LocationRef{AccountId: business.GoogleAccountId, LocationId: business.GoogleLocationId}
	fetched, err := e.source.FetchReviews(ctx, business.ID.String(), loc, window, maxCount)
	if err != nil {
		var authErr *gbp.AuthError
		if errors.As(err, &authErr) {
			// The API rejected the token mid-session; the tenant must reconnect.
			if dErr := e.businesses.SetConnectionStatus(ctx, business.ID.String(), models.ConnectionStatusNeedsReconnection); dErr != nil {
				config.LogError(e.logg, "automation", "Sync", "downgrade connection status", business.ID.String(), dErr)
			}
		}
		return result, err
	}
	result.TotalFetched = len(fetched)

	for _, src := range fetched {
		if err := e.reconcileOne(ctx, business.ID.String(), src, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("review %s: %v", src.ReviewId, err))
			config.LogError(e.logg, "automation", "Sync", "reconcile review", map[string]string{
				"businessId": business.ID.String(),
				"reviewId":   src.ReviewId,
			}, err)
		}
	}

	// The watermark advances whenever the fetch succeeded, even under partial
	// persistence failures; the next window overlaps enough to retry them.
	if err := e.businesses.UpdateSyncWatermark(ctx, business.ID.String(), result.SyncedAt, backfilling); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("update sync watermark: %v", err))
	}
	result.Success = len(result.Errors) == 0

	e.logg.WithFields(logrus.Fields{
		"module":     "automation",
		"businessId": business.ID.String(),
		"fetched":    result.TotalFetched,
		"new":        result.NewReviews,
		"updated":    result.UpdatedReviews,
		"errors":     len(result.Errors),
		"backfill":   backfilling,
	}).Info("review sync finished")

	return result, nil
}

func (e *SyncEngine) reconcileOne(ctx context.Context, businessId string, src gbp.SourceReview, result *SyncResult) error {
	existing, err := e.reviews.GetByGoogleId(ctx, businessId, src.ReviewId)
	if err != nil {
		return err
	}

	reviewDate := src.CreateTime
	if reviewDate.IsZero() {
		reviewDate = src.UpdateTime
	}

	if existing == nil {
		googleId := src.ReviewId
		review := &models.Review{
			BusinessId:     businessId,
			GoogleReviewId: &googleId,
			CustomerName:   src.CustomerName,
			Rating:         src.Rating,
			ReviewText:     src.Text,
			ReviewDate:     reviewDate,
			Status:         models.ReviewStatusPending,
		}
		if err := e.reviews.Create(ctx, review); err != nil {
			return err
		}
		result.NewReviews++
		return nil
	}

	if existing.CustomerName == src.CustomerName &&
		existing.Rating == src.Rating &&
		existing.ReviewText == src.Text {
		return nil
	}

	// Content refresh only. Status, replies and automation flags stay untouched so a
	// re-sync never undoes human or automation progress.
	if err := e.reviews.UpdateContent(ctx, existing.ID, src.CustomerName, src.Rating, src.Text, reviewDate); err != nil {
		return err
	}
	result.UpdatedReviews++
	return nil
}
