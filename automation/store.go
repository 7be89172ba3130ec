package automation

import (
	"context"
	"time"

	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"gorm.io/gorm"
)

// conn resolves the handle per call: the injected one for tests, the global otherwise.
// The global is connected after the listener is up, so it cannot be captured at
// construction time.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if db == nil {
		db = config.GetDB()
	}
	return db.WithContext(ctx)
}

// GormStores bundles the gorm-backed implementations of the engine store interfaces.
type GormStores struct {
	Reviews    *GormReviewStore
	Businesses *GormBusinessStore
	Settings   *GormSettingsStore
	Activities *GormActivityStore
	Tenants    *GormTenantDirectory
}

func NewGormStores(db *gorm.DB) *GormStores {
	return &GormStores{
		Reviews:    &GormReviewStore{db: db},
		Businesses: &GormBusinessStore{db: db},
		Settings:   &GormSettingsStore{db: db},
		Activities: &GormActivityStore{db: db},
		Tenants:    &GormTenantDirectory{db: db},
	}
}

type GormReviewStore struct {
	db *gorm.DB
}

func (s *GormReviewStore) GetByGoogleId(ctx context.Context, businessId string, googleReviewId string) (*models.Review, error) {
	return models.GetReviewByGoogleId(ctx, businessId, googleReviewId)
}

func (s *GormReviewStore) Create(ctx context.Context, review *models.Review) error {
	return conn(ctx, s.db).Create(review).Error
}

// UpdateContent refreshes the fields the external source owns. Status, replies and the
// automation flags are deliberately untouched.
func (s *GormReviewStore) UpdateContent(ctx context.Context, reviewId int, customerName string, rating int, text string, reviewDate time.Time) error {
	return conn(ctx, s.db).Model(&models.Review{}).
		Where("id = ?", reviewId).
		Updates(map[string]interface{}{
			"customer_name": customerName,
			"rating":        rating,
			"review_text":   text,
			"review_date":   reviewDate,
		}).Error
}

func (s *GormReviewStore) ListPending(ctx context.Context, businessId string, limit int) ([]models.Review, error) {
	return models.ListPendingReviews(ctx, businessId, limit)
}

func (s *GormReviewStore) ListAutomationFailed(ctx context.Context, businessId string) ([]models.Review, error) {
	return models.ListAutomationFailedReviews(ctx, businessId)
}

func (s *GormReviewStore) SaveDraft(ctx context.Context, reviewId int, draft string) error {
	return conn(ctx, s.db).Model(&models.Review{}).
		Where("id = ?", reviewId).
		Updates(map[string]interface{}{
			"ai_reply":        draft,
			"automated_reply": true,
		}).Error
}

func (s *GormReviewStore) Approve(ctx context.Context, reviewId int, finalReply string) error {
	return conn(ctx, s.db).Model(&models.Review{}).
		Where("id = ?", reviewId).
		Updates(map[string]interface{}{
			"status":      models.ReviewStatusApproved,
			"final_reply": finalReply,
		}).Error
}

func (s *GormReviewStore) MarkPosted(ctx context.Context, reviewId int, at time.Time) error {
	return conn(ctx, s.db).Model(&models.Review{}).
		Where("id = ?", reviewId).
		Updates(map[string]interface{}{
			"status":    models.ReviewStatusPosted,
			"posted_at": at,
		}).Error
}

func (s *GormReviewStore) Quarantine(ctx context.Context, reviewId int) error {
	return conn(ctx, s.db).Model(&models.Review{}).
		Where("id = ?", reviewId).
		Update("automation_failed", true).Error
}

// ResetFailed clears the quarantine flags so the policy engine will pick the reviews up
// again, and returns the reset rows. An empty reviewIds resets every quarantined review
// for the tenant.
func (s *GormReviewStore) ResetFailed(ctx context.Context, businessId string, reviewIds []int) ([]models.Review, error) {
	q := conn(ctx, s.db).Model(&models.Review{}).
		Where("business_id = ? AND automation_failed = true", businessId)
	if len(reviewIds) > 0 {
		q = q.Where("id IN ?", reviewIds)
	}
	if err := q.Updates(map[string]interface{}{
		"automation_failed": false,
		"automated_reply":   false,
	}).Error; err != nil {
		return nil, err
	}

	var reviews []models.Review
	listQ := conn(ctx, s.db).
		Where("business_id = ? AND status = ? AND automated_reply = false AND automation_failed = false",
			businessId, models.ReviewStatusPending).
		Order("review_date ASC")
	if len(reviewIds) > 0 {
		listQ = listQ.Where("id IN ?", reviewIds)
	}
	if err := listQ.Find(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}

type GormBusinessStore struct {
	db *gorm.DB
}

func (s *GormBusinessStore) GetById(ctx context.Context, businessId string) (*models.Business, error) {
	return models.GetBusinessById(ctx, businessId)
}

func (s *GormBusinessStore) UpdateSyncWatermark(ctx context.Context, businessId string, at time.Time, backfillComplete bool) error {
	return models.UpdateSyncWatermark(ctx, businessId, at, backfillComplete)
}

func (s *GormBusinessStore) SetConnectionStatus(ctx context.Context, businessId string, status models.ConnectionStatus) error {
	return models.SetConnectionStatus(ctx, businessId, status)
}

type GormSettingsStore struct {
	db *gorm.DB
}

func (s *GormSettingsStore) Get(ctx context.Context, businessId string) (*models.BusinessSettings, error) {
	return models.GetBusinessSettings(ctx, businessId)
}

func (s *GormSettingsStore) Save(ctx context.Context, settings *models.BusinessSettings) error {
	return models.SaveBusinessSettings(ctx, settings)
}

// AppendError adds one entry to the tenant's bounded error log. Read-modify-write is
// fine here: the per-tenant lease means no two runs mutate the same row concurrently.
func (s *GormSettingsStore) AppendError(ctx context.Context, businessId string, entry models.AutomationErrorEntry) error {
	settings, err := models.GetBusinessSettings(ctx, businessId)
	if err != nil {
		return err
	}
	entries := models.DecodeAutomationErrors(settings.AutomationErrorsJSON)
	entries = models.AppendAutomationErrorEntry(entries, entry)
	settings.AutomationErrorsJSON = models.EncodeAutomationErrors(entries)
	return models.SaveBusinessSettings(ctx, settings)
}

func (s *GormSettingsStore) ClearErrors(ctx context.Context, businessId string) error {
	return conn(ctx, s.db).Model(&models.BusinessSettings{}).
		Where("business_id = ?", businessId).
		Update("automation_errors_json", nil).Error
}

func (s *GormSettingsStore) TouchLastRun(ctx context.Context, businessId string, at time.Time) error {
	return conn(ctx, s.db).Model(&models.BusinessSettings{}).
		Where("business_id = ?", businessId).
		Update("last_automation_run", at).Error
}

type GormActivityStore struct {
	db *gorm.DB
}

func (s *GormActivityStore) Record(ctx context.Context, activity *models.ActivityLog) error {
	return models.CreateActivity(ctx, activity)
}

func (s *GormActivityStore) RecentRuns(ctx context.Context, businessId string, limit int) ([]models.ActivityLog, error) {
	return models.ListRecentRuns(ctx, businessId, limit)
}

func (s *GormActivityStore) Recent(ctx context.Context, businessId string, limit int) ([]models.ActivityLog, error) {
	return models.ListRecentActivities(ctx, businessId, limit)
}

type GormTenantDirectory struct {
	db *gorm.DB
}

// EligibleForSlot selects connected tenants whose settings put them in the slot with
// automation switched on and a plan that includes it.
func (s *GormTenantDirectory) EligibleForSlot(ctx context.Context, slot models.ScheduleSlot) ([]models.Business, error) {
	var businesses []models.Business
	err := conn(ctx, s.db).Model(&models.Business{}).
		Joins("JOIN business_settings ON business_settings.business_id = businesses.id").
		Where("businesses.connection_status = ?", models.ConnectionStatusConnected).
		Where("business_settings.schedule_slot = ?", slot).
		Where("business_settings.auto_reply_enabled = true OR business_settings.auto_post_enabled = true").
		Where("business_settings.subscription_plan IN ?", []models.SubscriptionPlan{models.PlanStarter, models.PlanPro}).
		Order("businesses.created_at ASC").
		Find(&businesses).Error
	if err != nil {
		return nil, err
	}
	return businesses, nil
}
