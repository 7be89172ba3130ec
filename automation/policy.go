package automation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"github.com/kev-hfmn/review-reply-app-sub003/gbp"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"github.com/kev-hfmn/review-reply-app-sub003/replygen"
	"github.com/sirupsen/logrus"
)

// ErrAutomationNotAllowed means the tenant's subscription plan does not include the
// automation pipeline.
var ErrAutomationNotAllowed = errors.New("subscription plan does not include automation")

// PolicyEngine runs the reply pipeline for one tenant: draft, approve, post. Each
// review moves through the steps independently, so one failure never stalls the batch.
type PolicyEngine struct {
	reviews    ReviewStore
	settings   SettingsStore
	activities ActivityStore
	source     ReviewSource
	generator  replygen.Generator
	notifier   Notifier
	leaser     TenantLeaser
	logg       *logrus.Logger
}

func NewPolicyEngine(
	reviews ReviewStore,
	settings SettingsStore,
	activities ActivityStore,
	source ReviewSource,
	generator replygen.Generator,
	notifier Notifier,
	leaser TenantLeaser,
	logg *logrus.Logger,
) *PolicyEngine {
	return &PolicyEngine{
		reviews:    reviews,
		settings:   settings,
		activities: activities,
		source:     source,
		generator:  generator,
		notifier:   notifier,
		leaser:     leaser,
		logg:       logg,
	}
}

// Process runs one automation pass over the tenant's pending reviews.
//
// Outcomes per review:
//   - generation failure quarantines the review (automation_failed) until an explicit
//     retry resets it;
//   - posting failure leaves the review approved, so the next pass or a human can post
//     it without regenerating.
//
// Both automation flags off is a valid no-op, not an error.
func (e *PolicyEngine) Process(ctx context.Context, business *models.Business, settings *models.BusinessSettings, trigger models.TriggerType) (*AutomationResult, error) {
	started := time.Now()
	result := &AutomationResult{}

	if !settings.SubscriptionPlan.AllowsAutomation() {
		return result, ErrAutomationNotAllowed
	}
	if !settings.AutomationEnabled() {
		result.Success = true
		result.DurationMs = time.Since(started).Milliseconds()
		return result, nil
	}

	release, err := e.leaser.Acquire(ctx, business.ID.String())
	if err != nil {
		return result, err
	}
	defer release()

	batch, err := e.reviews.ListPending(ctx, business.ID.String(), 0)
	if err != nil {
		return result, err
	}
	if len(batch) > MaxReviewsPerRun {
		result.Deferred = len(batch) - MaxReviewsPerRun
		batch = batch[:MaxReviewsPerRun]
	}

	runId := uuid.New().String()
	e.runBatch(ctx, business, settings, batch, runId, result)

	now := time.Now()
	if err := e.settings.TouchLastRun(ctx, business.ID.String(), now); err != nil {
		config.LogError(e.logg, "automation", "Process", "touch last automation run", business.ID.String(), err)
	}

	e.notify(ctx, business, settings, result)

	result.Success = len(result.Errors) == 0
	result.DurationMs = time.Since(started).Milliseconds()

	e.logg.WithFields(logrus.Fields{
		"module":     "automation",
		"businessId": business.ID.String(),
		"trigger":    string(trigger),
		"processed":  result.ProcessedReviews,
		"generated":  result.GeneratedReplies,
		"approved":   result.AutoApproved,
		"posted":     result.AutoPosted,
		"deferred":   result.Deferred,
		"errors":     len(result.Errors),
	}).Info("automation run finished")

	return result, nil
}

func (e *PolicyEngine) runBatch(ctx context.Context, business *models.Business, settings *models.BusinessSettings, batch []models.Review, runId string, result *AutomationResult) {
	voice := settings.BrandVoice()

	for i := range batch {
		review := &batch[i]
		result.ProcessedReviews++

		if !settings.AutoReply() {
			// auto_post without auto_reply is accepted but there is nothing to post:
			// pending reviews have no approved reply yet.
			continue
		}

		draft, err := e.generator.Generate(ctx, replygen.ReplyRequest{
			BusinessName: business.Name,
			CustomerName: review.CustomerName,
			Rating:       review.Rating,
			ReviewText:   review.ReviewText,
			Voice:        voice,
		})
		if err != nil {
			e.recordFailure(ctx, business.ID.String(), runId, "generate", review.ID, err, result)
			if qErr := e.reviews.Quarantine(ctx, review.ID); qErr != nil {
				config.LogError(e.logg, "automation", "runBatch", "quarantine review", review.ID, qErr)
			}
			continue
		}
		if err := e.reviews.SaveDraft(ctx, review.ID, draft); err != nil {
			e.recordFailure(ctx, business.ID.String(), runId, "persist_draft", review.ID, err, result)
			continue
		}
		result.GeneratedReplies++

		if !settings.ApprovalMode.Qualifies(review.Rating) {
			continue
		}
		if err := e.reviews.Approve(ctx, review.ID, draft); err != nil {
			e.recordFailure(ctx, business.ID.String(), runId, "approve", review.ID, err, result)
			continue
		}
		result.AutoApproved++

		if !settings.AutoPost() {
			continue
		}
		loc := gbp.LocationRef{AccountId: business.GoogleAccountId, LocationId: business.GoogleLocationId}
		if err := e.source.PostReply(ctx, business.ID.String(), loc, derefGoogleId(review), draft); err != nil {
			// The review stays approved: posting is retryable without regenerating.
			e.recordFailure(ctx, business.ID.String(), runId, "post", review.ID, err, result)
			continue
		}
		postedAt := time.Now()
		if err := e.reviews.MarkPosted(ctx, review.ID, postedAt); err != nil {
			e.recordFailure(ctx, business.ID.String(), runId, "persist_posted", review.ID, err, result)
			continue
		}
		result.AutoPosted++

		if err := e.activities.Record(ctx, &models.ActivityLog{
			BusinessId:  business.ID.String(),
			Type:        models.ActivityReplyPosted,
			Success:     true,
			Description: "reply posted automatically for " + review.CustomerName,
		}); err != nil {
			config.LogError(e.logg, "automation", "runBatch", "record posted activity", review.ID, err)
		}
	}
}

// RetryFailed resets the quarantine flags on the given reviews (all of them when the
// list is empty) and reruns the pipeline over just that subset.
func (e *PolicyEngine) RetryFailed(ctx context.Context, business *models.Business, settings *models.BusinessSettings, reviewIds []int) (*AutomationResult, error) {
	started := time.Now()
	result := &AutomationResult{}

	if !settings.SubscriptionPlan.AllowsAutomation() {
		return result, ErrAutomationNotAllowed
	}

	release, err := e.leaser.Acquire(ctx, business.ID.String())
	if err != nil {
		return result, err
	}
	defer release()

	batch, err := e.reviews.ResetFailed(ctx, business.ID.String(), reviewIds)
	if err != nil {
		return result, err
	}
	if len(batch) > MaxReviewsPerRun {
		result.Deferred = len(batch) - MaxReviewsPerRun
		batch = batch[:MaxReviewsPerRun]
	}

	runId := uuid.New().String()
	e.runBatch(ctx, business, settings, batch, runId, result)

	if err := e.settings.TouchLastRun(ctx, business.ID.String(), time.Now()); err != nil {
		config.LogError(e.logg, "automation", "RetryFailed", "touch last automation run", business.ID.String(), err)
	}

	if err := e.activities.Record(ctx, &models.ActivityLog{
		BusinessId:  business.ID.String(),
		Type:        models.ActivityRetryTriggered,
		Success:     len(result.Errors) == 0,
		Description: "automation retry triggered",
	}); err != nil {
		config.LogError(e.logg, "automation", "RetryFailed", "record retry activity", business.ID.String(), err)
	}

	result.Success = len(result.Errors) == 0
	result.DurationMs = time.Since(started).Milliseconds()
	return result, nil
}

func (e *PolicyEngine) recordFailure(ctx context.Context, businessId string, runId string, step string, reviewId int, err error, result *AutomationResult) {
	now := time.Now()
	result.Errors = append(result.Errors, StepError{Step: step, ReviewId: reviewId, Error: err.Error(), At: now})

	entry := models.AutomationErrorEntry{At: now, RunId: runId, Step: step, ReviewId: reviewId, Error: err.Error()}
	if aErr := e.settings.AppendError(ctx, businessId, entry); aErr != nil {
		config.LogError(e.logg, "automation", "recordFailure", "append automation error", businessId, aErr)
	}
	config.LogError(e.logg, "automation", "recordFailure", step, map[string]interface{}{
		"businessId": businessId,
		"reviewId":   reviewId,
		"runId":      runId,
	}, err)
}

func (e *PolicyEngine) notify(ctx context.Context, business *models.Business, settings *models.BusinessSettings, result *AutomationResult) {
	if e.notifier == nil || !settings.EmailNotifications() || settings.NotificationEmail == "" {
		return
	}
	if result.GeneratedReplies == 0 && len(result.Errors) == 0 {
		return
	}
	if err := e.notifier.SendRunDigest(ctx, settings.NotificationEmail, business.Name, result); err != nil {
		config.LogError(e.logg, "automation", "notify", "send run digest", business.ID.String(), err)
		return
	}
	result.EmailsSent++
}

func derefGoogleId(review *models.Review) string {
	if review.GoogleReviewId == nil {
		return ""
	}
	return *review.GoogleReviewId
}
