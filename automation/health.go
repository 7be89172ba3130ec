package automation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"github.com/sirupsen/logrus"
)

const (
	healthRunWindow       = 7
	healthFailedThreshold = 3
)

// RunSummary is one automation run as seen by the health endpoint.
type RunSummary struct {
	At         time.Time `json:"at"`
	Success    bool      `json:"success"`
	Processed  int       `json:"processed"`
	ErrorCount int       `json:"error_count"`
}

// HealthStatus is the per-tenant automation health view. NeedsAttention means the
// latest run failed, or at least three of the trailing seven did.
type HealthStatus struct {
	Status         string                        `json:"status"`
	NeedsAttention bool                          `json:"needs_attention"`
	LastRun        *time.Time                    `json:"last_run"`
	RecentRuns     []RunSummary                  `json:"recent_runs"`
	ErrorLog       []models.AutomationErrorEntry `json:"error_log"`
	FailedReviews  int                           `json:"failed_reviews"`
}

// HealthTracker derives automation health from the audit trail and the bounded error
// log.
type HealthTracker struct {
	reviews    ReviewStore
	settings   SettingsStore
	activities ActivityStore
	logg       *logrus.Logger
}

func NewHealthTracker(reviews ReviewStore, settings SettingsStore, activities ActivityStore, logg *logrus.Logger) *HealthTracker {
	return &HealthTracker{reviews: reviews, settings: settings, activities: activities, logg: logg}
}

func (t *HealthTracker) GetHealth(ctx context.Context, businessId string) (*HealthStatus, error) {
	settings, err := t.settings.Get(ctx, businessId)
	if err != nil {
		return nil, err
	}
	runs, err := t.activities.RecentRuns(ctx, businessId, healthRunWindow)
	if err != nil {
		return nil, err
	}
	failed, err := t.reviews.ListAutomationFailed(ctx, businessId)
	if err != nil {
		return nil, err
	}

	status := &HealthStatus{
		LastRun:       settings.LastAutomationRun,
		ErrorLog:      models.DecodeAutomationErrors(settings.AutomationErrorsJSON),
		FailedReviews: len(failed),
	}

	failedRuns := 0
	for i, run := range runs {
		summary := RunSummary{At: run.CreatedAt, Success: run.Success}
		var detail TenantRunResult
		if len(run.DetailJSON) > 0 && json.Unmarshal(run.DetailJSON, &detail) == nil && detail.Automation != nil {
			summary.Processed = detail.Automation.ProcessedReviews
			summary.ErrorCount = len(detail.Automation.Errors)
		}
		status.RecentRuns = append(status.RecentRuns, summary)

		if !run.Success {
			failedRuns++
			if i == 0 {
				status.NeedsAttention = true
			}
		}
	}
	if failedRuns >= healthFailedThreshold {
		status.NeedsAttention = true
	}

	if status.NeedsAttention {
		status.Status = "needs_attention"
	} else {
		status.Status = "healthy"
	}
	return status, nil
}

// ClearErrors empties the tenant's bounded error log and records the action in the
// audit trail.
func (t *HealthTracker) ClearErrors(ctx context.Context, businessId string) error {
	if err := t.settings.ClearErrors(ctx, businessId); err != nil {
		return err
	}
	return t.activities.Record(ctx, &models.ActivityLog{
		BusinessId:  businessId,
		Type:        models.ActivityErrorsCleared,
		Success:     true,
		Description: "automation error log cleared",
	})
}
