package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kev-hfmn/review-reply-app-sub003/gbp"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"github.com/kev-hfmn/review-reply-app-sub003/replygen"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logg := logrus.New()
	logg.SetOutput(io.Discard)
	return logg
}

func testBusiness() *models.Business {
	return &models.Business{
		ID:                 uuid.New(),
		Name:               "Bluebird Cafe",
		GoogleAccountId:    "acct-1",
		GoogleLocationId:   "loc-1",
		ConnectionStatus:   models.ConnectionStatusConnected,
		IsBackfillComplete: boolPtr(true),
	}
}

func testSettings(businessId string) *models.BusinessSettings {
	return &models.BusinessSettings{
		BusinessId:       businessId,
		AutoReplyEnabled: boolPtr(true),
		AutoPostEnabled:  boolPtr(false),
		ApprovalMode:     models.ApprovalModeManual,
		ScheduleSlot:     models.ScheduleSlot1,
		SubscriptionPlan: models.PlanPro,
	}
}

func boolPtr(b bool) *bool { return &b }

type fakeReviewStore struct {
	mu        sync.Mutex
	nextId    int
	reviews   map[int]*models.Review
	failOnId  map[int]string
	createErr error
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{reviews: map[int]*models.Review{}, failOnId: map[int]string{}}
}

func (s *fakeReviewStore) add(review models.Review) *models.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	review.ID = s.nextId
	if review.Status == "" {
		review.Status = models.ReviewStatusPending
	}
	s.reviews[review.ID] = &review
	return s.reviews[review.ID]
}

func (s *fakeReviewStore) get(id int) models.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.reviews[id]
}

func (s *fakeReviewStore) GetByGoogleId(ctx context.Context, businessId string, googleReviewId string) (*models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.BusinessId == businessId && r.GoogleReviewId != nil && *r.GoogleReviewId == googleReviewId {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeReviewStore) Create(ctx context.Context, review *models.Review) error {
	if s.createErr != nil {
		return s.createErr
	}
	created := s.add(*review)
	review.ID = created.ID
	return nil
}

func (s *fakeReviewStore) UpdateContent(ctx context.Context, reviewId int, customerName string, rating int, text string, reviewDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[reviewId]
	if !ok {
		return errors.New("review not found")
	}
	r.CustomerName = customerName
	r.Rating = rating
	r.ReviewText = text
	r.ReviewDate = reviewDate
	return nil
}

func (s *fakeReviewStore) ListPending(ctx context.Context, businessId string, limit int) ([]models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Review
	for id := 1; id <= s.nextId; id++ {
		r, ok := s.reviews[id]
		if !ok {
			continue
		}
		if r.BusinessId == businessId && r.Status == models.ReviewStatusPending &&
			!r.AutomatedReply && !r.AutomationFailed {
			out = append(out, *r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeReviewStore) ListAutomationFailed(ctx context.Context, businessId string) ([]models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Review
	for id := 1; id <= s.nextId; id++ {
		if r, ok := s.reviews[id]; ok && r.BusinessId == businessId && r.AutomationFailed {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeReviewStore) SaveDraft(ctx context.Context, reviewId int, draft string) error {
	if step, ok := s.failOnId[reviewId]; ok && step == "persist_draft" {
		return errors.New("forced persist failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reviews[reviewId]
	r.AiReply = &draft
	r.AutomatedReply = true
	return nil
}

func (s *fakeReviewStore) Approve(ctx context.Context, reviewId int, finalReply string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reviews[reviewId]
	r.Status = models.ReviewStatusApproved
	r.FinalReply = &finalReply
	return nil
}

func (s *fakeReviewStore) MarkPosted(ctx context.Context, reviewId int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reviews[reviewId]
	r.Status = models.ReviewStatusPosted
	r.PostedAt = &at
	return nil
}

func (s *fakeReviewStore) Quarantine(ctx context.Context, reviewId int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[reviewId].AutomationFailed = true
	return nil
}

func (s *fakeReviewStore) ResetFailed(ctx context.Context, businessId string, reviewIds []int) ([]models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[int]bool{}
	for _, id := range reviewIds {
		wanted[id] = true
	}
	var out []models.Review
	for id := 1; id <= s.nextId; id++ {
		r, ok := s.reviews[id]
		if !ok || r.BusinessId != businessId || !r.AutomationFailed {
			continue
		}
		if len(reviewIds) > 0 && !wanted[id] {
			continue
		}
		r.AutomationFailed = false
		r.AutomatedReply = false
		if r.Status == models.ReviewStatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeSource struct {
	mu          sync.Mutex
	fetched     []gbp.SourceReview
	fetchErr    error
	fetchCalls  []fetchCall
	postErr     error
	postedIds   []string
	postedTexts []string
}

type fetchCall struct {
	businessId string
	window     time.Duration
	maxCount   int
}

func (f *fakeSource) FetchReviews(ctx context.Context, businessId string, loc gbp.LocationRef, window time.Duration, maxCount int) ([]gbp.SourceReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, fetchCall{businessId: businessId, window: window, maxCount: maxCount})
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.fetched, nil
}

func (f *fakeSource) PostReply(ctx context.Context, businessId string, loc gbp.LocationRef, reviewId string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.postedIds = append(f.postedIds, reviewId)
	f.postedTexts = append(f.postedTexts, text)
	return nil
}

type fakeBusinessStore struct {
	mu         sync.Mutex
	businesses map[string]*models.Business
	watermarks map[string]time.Time
	backfilled map[string]bool
}

func newFakeBusinessStore(businesses ...*models.Business) *fakeBusinessStore {
	s := &fakeBusinessStore{
		businesses: map[string]*models.Business{},
		watermarks: map[string]time.Time{},
		backfilled: map[string]bool{},
	}
	for _, b := range businesses {
		s.businesses[b.ID.String()] = b
	}
	return s
}

func (s *fakeBusinessStore) GetById(ctx context.Context, businessId string) (*models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[businessId]
	if !ok {
		return nil, errors.New("business not found")
	}
	cp := *b
	return &cp, nil
}

func (s *fakeBusinessStore) UpdateSyncWatermark(ctx context.Context, businessId string, at time.Time, backfillComplete bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[businessId] = at
	if backfillComplete {
		s.backfilled[businessId] = true
	}
	return nil
}

func (s *fakeBusinessStore) SetConnectionStatus(ctx context.Context, businessId string, status models.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.businesses[businessId]; ok {
		b.ConnectionStatus = status
	}
	return nil
}

type fakeSettingsStore struct {
	mu       sync.Mutex
	settings map[string]*models.BusinessSettings
	lastRuns map[string]time.Time
	appended []models.AutomationErrorEntry
}

func newFakeSettingsStore(settings ...*models.BusinessSettings) *fakeSettingsStore {
	s := &fakeSettingsStore{settings: map[string]*models.BusinessSettings{}, lastRuns: map[string]time.Time{}}
	for _, st := range settings {
		s.settings[st.BusinessId] = st
	}
	return s
}

func (s *fakeSettingsStore) Get(ctx context.Context, businessId string) (*models.BusinessSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.settings[businessId]; ok {
		cp := *st
		return &cp, nil
	}
	return &models.BusinessSettings{BusinessId: businessId, ApprovalMode: models.ApprovalModeManual,
		ScheduleSlot: models.ScheduleSlot1, SubscriptionPlan: models.PlanFree}, nil
}

func (s *fakeSettingsStore) Save(ctx context.Context, settings *models.BusinessSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *settings
	s.settings[settings.BusinessId] = &cp
	return nil
}

func (s *fakeSettingsStore) AppendError(ctx context.Context, businessId string, entry models.AutomationErrorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, entry)
	return nil
}

func (s *fakeSettingsStore) ClearErrors(ctx context.Context, businessId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.settings[businessId]; ok {
		st.AutomationErrorsJSON = nil
	}
	return nil
}

func (s *fakeSettingsStore) TouchLastRun(ctx context.Context, businessId string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRuns[businessId] = at
	return nil
}

type fakeActivityStore struct {
	mu      sync.Mutex
	entries []models.ActivityLog
}

func (s *fakeActivityStore) Record(ctx context.Context, activity *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, *activity)
	return nil
}

func (s *fakeActivityStore) RecentRuns(ctx context.Context, businessId string, limit int) ([]models.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ActivityLog
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.BusinessId == businessId && e.Type == models.ActivityAutomationRun {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeActivityStore) Recent(ctx context.Context, businessId string, limit int) ([]models.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ActivityLog
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].BusinessId == businessId {
			out = append(out, s.entries[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeActivityStore) byType(activityType string) []models.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ActivityLog
	for _, e := range s.entries {
		if e.Type == activityType {
			out = append(out, e)
		}
	}
	return out
}

type fakeDirectory struct {
	businesses []models.Business
	err        error
}

func (d *fakeDirectory) EligibleForSlot(ctx context.Context, slot models.ScheduleSlot) ([]models.Business, error) {
	return d.businesses, d.err
}

type fakeCredentialGate struct {
	missing map[string]bool
}

func (g *fakeCredentialGate) HasCredentials(ctx context.Context, businessId string) (bool, error) {
	if g.missing == nil {
		return true, nil
	}
	return !g.missing[businessId], nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	failText string
	err      error
}

func (g *fakeGenerator) Generate(ctx context.Context, req replygen.ReplyRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if g.failText != "" && req.ReviewText == g.failText {
		return "", errors.New("forced generation failure")
	}
	return fmt.Sprintf("Thank you %s!", req.CustomerName), nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  int
	err   error
	last  *AutomationResult
	email string
}

func (n *fakeNotifier) SendRunDigest(ctx context.Context, email string, businessName string, result *AutomationResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent++
	n.email = email
	n.last = result
	return nil
}

type noopLeaser struct{}

func (noopLeaser) Acquire(ctx context.Context, businessId string) (func(), error) {
	return func() {}, nil
}

type busyLeaser struct{}

func (busyLeaser) Acquire(ctx context.Context, businessId string) (func(), error) {
	return nil, ErrTenantBusy
}

func newTestPolicy(reviews *fakeReviewStore, settings *fakeSettingsStore, activities *fakeActivityStore, source *fakeSource, gen *fakeGenerator, notifier *fakeNotifier) *PolicyEngine {
	var n Notifier = NoopNotifier{}
	if notifier != nil {
		n = notifier
	}
	return NewPolicyEngine(reviews, settings, activities, source, gen, n, noopLeaser{}, testLogger())
}
