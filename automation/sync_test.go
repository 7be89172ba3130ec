package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kev-hfmn/review-reply-app-sub003/gbp"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
)

func TestSync_InsertsNewReviewsAsPending(t *testing.T) {
	business := testBusiness()
	reviews := newFakeReviewStore()
	businesses := newFakeBusinessStore(business)
	source := &fakeSource{fetched: []gbp.SourceReview{
		{ReviewId: "g-1", CustomerName: "Amy", Rating: 5, Text: "great", CreateTime: time.Now().Add(-time.Hour)},
		{ReviewId: "g-2", CustomerName: "Bob", Rating: 2, Text: "meh", CreateTime: time.Now().Add(-2 * time.Hour)},
	}}

	engine := NewSyncEngine(reviews, businesses, source, testLogger())
	result, err := engine.Sync(context.Background(), business, SyncOptions{Window: 24 * time.Hour, MaxCount: 50})
	if err != nil {
		t.Fatalf("Sync error: %v", err)
	}

	if result.NewReviews != 2 || result.UpdatedReviews != 0 {
		t.Fatalf("expected 2 new / 0 updated, got %d / %d", result.NewReviews, result.UpdatedReviews)
	}
	stored, _ := reviews.GetByGoogleId(context.Background(), business.ID.String(), "g-1")
	if stored == nil || stored.Status != models.ReviewStatusPending {
		t.Fatalf("new review should be stored as pending, got %+v", stored)
	}
}

func TestSync_IsIdempotentForUnchangedReviews(t *testing.T) {
	business := testBusiness()
	reviews := newFakeReviewStore()
	businesses := newFakeBusinessStore(business)
	source := &fakeSource{fetched: []gbp.SourceReview{
		{ReviewId: "g-1", CustomerName: "Amy", Rating: 5, Text: "great", CreateTime: time.Now()},
	}}

	engine := NewSyncEngine(reviews, businesses, source, testLogger())
	if _, err := engine.Sync(context.Background(), business, SyncOptions{Window: time.Hour, MaxCount: 50}); err != nil {
		t.Fatalf("first Sync error: %v", err)
	}
	second, err := engine.Sync(context.Background(), business, SyncOptions{Window: time.Hour, MaxCount: 50})
	if err != nil {
		t.Fatalf("second Sync error: %v", err)
	}
	if second.NewReviews != 0 || second.UpdatedReviews != 0 {
		t.Fatalf("unchanged review should be skipped, got new=%d updated=%d", second.NewReviews, second.UpdatedReviews)
	}
}

func TestSync_ContentUpdatePreservesReplyState(t *testing.T) {
	business := testBusiness()
	reviews := newFakeReviewStore()
	googleId := "g-1"
	reply := "thanks!"
	rv := reviews.add(models.Review{
		BusinessId:     business.ID.String(),
		GoogleReviewId: &googleId,
		CustomerName:   "Amy",
		Rating:         5,
		ReviewText:     "great",
		Status:         models.ReviewStatusPosted,
		AiReply:        &reply,
		FinalReply:     &reply,
		AutomatedReply: true,
	})

	businesses := newFakeBusinessStore(business)
	source := &fakeSource{fetched: []gbp.SourceReview{
		{ReviewId: "g-1", CustomerName: "Amy", Rating: 4, Text: "great, edited", CreateTime: time.Now()},
	}}

	engine := NewSyncEngine(reviews, businesses, source, testLogger())
	result, err := engine.Sync(context.Background(), business, SyncOptions{Window: time.Hour, MaxCount: 50})
	if err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if result.UpdatedReviews != 1 {
		t.Fatalf("expected one content update, got %d", result.UpdatedReviews)
	}

	got := reviews.get(rv.ID)
	if got.Rating != 4 || got.ReviewText != "great, edited" {
		t.Fatalf("content fields should refresh, got rating=%d text=%q", got.Rating, got.ReviewText)
	}
	if got.Status != models.ReviewStatusPosted || got.FinalReply == nil || !got.AutomatedReply {
		t.Fatalf("status and reply state must survive a re-sync, got %+v", got)
	}
}

func TestSync_BackfillOverridesWindowAndCount(t *testing.T) {
	business := testBusiness()
	business.IsBackfillComplete = boolPtr(false)

	reviews := newFakeReviewStore()
	businesses := newFakeBusinessStore(business)
	source := &fakeSource{}

	engine := NewSyncEngine(reviews, businesses, source, testLogger())
	if _, err := engine.Sync(context.Background(), business, SyncOptions{Window: 24 * time.Hour, MaxCount: 10}); err != nil {
		t.Fatalf("Sync error: %v", err)
	}

	if len(source.fetchCalls) != 1 {
		t.Fatalf("expected one fetch, got %d", len(source.fetchCalls))
	}
	call := source.fetchCalls[0]
	if call.window != 0 {
		t.Fatalf("backfill must request full history, got window=%s", call.window)
	}
	if call.maxCount != BackfillMaxCount {
		t.Fatalf("backfill must request %d reviews, got %d", BackfillMaxCount, call.maxCount)
	}
	if !businesses.backfilled[business.ID.String()] {
		t.Fatal("successful backfill should latch is_backfill_complete")
	}
}

func TestSync_ReconcileFailureClearsSuccess(t *testing.T) {
	business := testBusiness()
	reviews := newFakeReviewStore()
	reviews.createErr = errors.New("forced persistence failure")
	businesses := newFakeBusinessStore(business)
	source := &fakeSource{fetched: []gbp.SourceReview{
		{ReviewId: "g-1", CustomerName: "Amy", Rating: 5, Text: "great", CreateTime: time.Now()},
	}}

	engine := NewSyncEngine(reviews, businesses, source, testLogger())
	result, err := engine.Sync(context.Background(), business, SyncOptions{Window: time.Hour, MaxCount: 50})
	if err != nil {
		t.Fatalf("partial failures must not abort the pass: %v", err)
	}
	if result.Success {
		t.Fatal("a reconciliation error must clear the success flag")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one collected error, got %+v", result.Errors)
	}
	if _, ok := businesses.watermarks[business.ID.String()]; !ok {
		t.Fatal("the watermark still advances when the fetch succeeded")
	}
}

func TestSync_AuthFailureDowngradesConnection(t *testing.T) {
	business := testBusiness()
	businesses := newFakeBusinessStore(business)
	source := &fakeSource{fetchErr: &gbp.AuthError{StatusCode: 401, Body: "unauthorized"}}

	engine := NewSyncEngine(newFakeReviewStore(), businesses, source, testLogger())
	if _, err := engine.Sync(context.Background(), business, SyncOptions{Window: time.Hour}); err == nil {
		t.Fatal("expected the auth error to surface")
	}
	got, _ := businesses.GetById(context.Background(), business.ID.String())
	if got.ConnectionStatus != models.ConnectionStatusNeedsReconnection {
		t.Fatalf("API auth rejection should downgrade the tenant, got %s", got.ConnectionStatus)
	}
}

func TestSync_FetchFailureDoesNotAdvanceWatermark(t *testing.T) {
	business := testBusiness()
	reviews := newFakeReviewStore()
	businesses := newFakeBusinessStore(business)
	source := &fakeSource{fetchErr: errors.New("upstream down")}

	engine := NewSyncEngine(reviews, businesses, source, testLogger())
	result, err := engine.Sync(context.Background(), business, SyncOptions{Window: time.Hour, MaxCount: 50})
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if result.Success {
		t.Fatal("fetch failure must not report success")
	}
	if _, ok := businesses.watermarks[business.ID.String()]; ok {
		t.Fatal("watermark must not advance on fetch failure")
	}
}

func TestSync_RejectsDisconnectedBusiness(t *testing.T) {
	business := testBusiness()
	business.ConnectionStatus = models.ConnectionStatusNeedsReconnection

	engine := NewSyncEngine(newFakeReviewStore(), newFakeBusinessStore(business), &fakeSource{}, testLogger())
	if _, err := engine.Sync(context.Background(), business, SyncOptions{Window: time.Hour}); err == nil {
		t.Fatal("expected error for a disconnected business")
	}
}
