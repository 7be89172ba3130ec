package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/kev-hfmn/review-reply-app-sub003/gbp"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
)

const (
	// MaxReviewsPerRun caps how many pending reviews one automation pass processes for a
	// tenant. The batch is oldest first; anything beyond the cap is deferred to the next
	// run, not failed.
	MaxReviewsPerRun = 50

	// BackfillMaxCount replaces the caller's count limit while a tenant's initial
	// backfill is incomplete.
	BackfillMaxCount = 1000

	// ScheduledSyncWindow is the lookback for scheduled runs. Manual runs choose their
	// own window.
	ScheduledSyncWindow = 24 * time.Hour
)

// SyncOptions controls one sync pass. A zero Window means full history.
type SyncOptions struct {
	Window   time.Duration
	MaxCount int
	Trigger  models.TriggerType
}

// SyncResult reports one sync pass. Success is false when the fetch failed or any
// per-review reconciliation did; the watermark still advances on partial failures.
type SyncResult struct {
	Success        bool      `json:"success"`
	TotalFetched   int       `json:"total_fetched"`
	NewReviews     int       `json:"new_reviews"`
	UpdatedReviews int       `json:"updated_reviews"`
	Errors         []string  `json:"errors,omitempty"`
	SyncedAt       time.Time `json:"synced_at"`
}

// StepError records one per-review failure inside an automation pass.
type StepError struct {
	Step     string    `json:"step"`
	ReviewId int       `json:"review_id,omitempty"`
	Error    string    `json:"error"`
	At       time.Time `json:"at"`
}

// AutomationResult is the outcome of one policy-engine pass over a tenant's pending
// reviews.
type AutomationResult struct {
	Success          bool        `json:"success"`
	ProcessedReviews int         `json:"processed_reviews"`
	GeneratedReplies int         `json:"generated_replies"`
	AutoApproved     int         `json:"auto_approved"`
	AutoPosted       int         `json:"auto_posted"`
	EmailsSent       int         `json:"emails_sent"`
	Deferred         int         `json:"deferred"`
	Errors           []StepError `json:"errors,omitempty"`
	DurationMs       int64       `json:"duration_ms"`
}

// TenantRunResult is one tenant's slice of a batch run.
type TenantRunResult struct {
	BusinessId string            `json:"business_id"`
	Skipped    bool              `json:"skipped,omitempty"`
	SkipReason string            `json:"skip_reason,omitempty"`
	Sync       *SyncResult       `json:"sync,omitempty"`
	Automation *AutomationResult `json:"automation,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// SlotResult summarizes one scheduled batch pass over a slot's tenants.
type SlotResult struct {
	Slot       models.ScheduleSlot `json:"slot"`
	Processed  int                 `json:"processed"`
	Successful int                 `json:"successful"`
	Errors     int                 `json:"errors"`
	Results    []TenantRunResult   `json:"results"`
	DurationMs int64               `json:"duration_ms"`
}

// ReviewSource is the external reviews API surface the engines depend on. One shared
// gbp.Client serves every tenant; auth is resolved per call from the business id.
type ReviewSource interface {
	FetchReviews(ctx context.Context, businessId string, loc gbp.LocationRef, window time.Duration, maxCount int) ([]gbp.SourceReview, error)
	PostReply(ctx context.Context, businessId string, loc gbp.LocationRef, reviewId string, text string) error
}

// ReviewStore persists review state transitions.
type ReviewStore interface {
	GetByGoogleId(ctx context.Context, businessId string, googleReviewId string) (*models.Review, error)
	Create(ctx context.Context, review *models.Review) error
	UpdateContent(ctx context.Context, reviewId int, customerName string, rating int, text string, reviewDate time.Time) error
	ListPending(ctx context.Context, businessId string, limit int) ([]models.Review, error)
	ListAutomationFailed(ctx context.Context, businessId string) ([]models.Review, error)
	SaveDraft(ctx context.Context, reviewId int, draft string) error
	Approve(ctx context.Context, reviewId int, finalReply string) error
	MarkPosted(ctx context.Context, reviewId int, at time.Time) error
	Quarantine(ctx context.Context, reviewId int) error
	ResetFailed(ctx context.Context, businessId string, reviewIds []int) ([]models.Review, error)
}

// BusinessStore reads tenant records and advances the sync watermark.
type BusinessStore interface {
	GetById(ctx context.Context, businessId string) (*models.Business, error)
	UpdateSyncWatermark(ctx context.Context, businessId string, at time.Time, backfillComplete bool) error
	SetConnectionStatus(ctx context.Context, businessId string, status models.ConnectionStatus) error
}

// SettingsStore reads and mutates per-tenant automation settings, including the bounded
// error log.
type SettingsStore interface {
	Get(ctx context.Context, businessId string) (*models.BusinessSettings, error)
	Save(ctx context.Context, settings *models.BusinessSettings) error
	AppendError(ctx context.Context, businessId string, entry models.AutomationErrorEntry) error
	ClearErrors(ctx context.Context, businessId string) error
	TouchLastRun(ctx context.Context, businessId string, at time.Time) error
}

// ActivityStore writes the immutable audit trail and reads trailing runs for health.
type ActivityStore interface {
	Record(ctx context.Context, activity *models.ActivityLog) error
	RecentRuns(ctx context.Context, businessId string, limit int) ([]models.ActivityLog, error)
	Recent(ctx context.Context, businessId string, limit int) ([]models.ActivityLog, error)
}

// TenantDirectory enumerates tenants for a scheduled slot: connected, automation
// enabled, and on a plan that allows it.
type TenantDirectory interface {
	EligibleForSlot(ctx context.Context, slot models.ScheduleSlot) ([]models.Business, error)
}

// CredentialGate lets the orchestrator skip tenants without stored credentials instead
// of burning a run on a guaranteed auth failure.
type CredentialGate interface {
	HasCredentials(ctx context.Context, businessId string) (bool, error)
}

// Notifier delivers the per-run digest to the tenant's notification address.
type Notifier interface {
	SendRunDigest(ctx context.Context, email string, businessName string, result *AutomationResult) error
}

// ParseTimePeriod maps the API's period strings to a lookback window. "all" maps to
// zero, which FetchReviews treats as full history.
func ParseTimePeriod(period string) (time.Duration, error) {
	switch period {
	case "", "30days":
		return 30 * 24 * time.Hour, nil
	case "24hours":
		return 24 * time.Hour, nil
	case "3days":
		return 3 * 24 * time.Hour, nil
	case "7days":
		return 7 * 24 * time.Hour, nil
	case "6months":
		return 183 * 24 * time.Hour, nil
	case "12months":
		return 365 * 24 * time.Hour, nil
	case "all":
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown time period %q", period)
	}
}
