package automation

import (
	"context"
	"testing"

	"github.com/kev-hfmn/review-reply-app-sub003/models"
)

func recordRuns(t *testing.T, activities *fakeActivityStore, businessId string, outcomes ...bool) {
	t.Helper()
	for _, ok := range outcomes {
		if err := activities.Record(context.Background(), &models.ActivityLog{
			BusinessId: businessId,
			Type:       models.ActivityAutomationRun,
			Success:    ok,
		}); err != nil {
			t.Fatalf("record run: %v", err)
		}
	}
}

func newTestHealth(settings *fakeSettingsStore, activities *fakeActivityStore, reviews *fakeReviewStore) *HealthTracker {
	return NewHealthTracker(reviews, settings, activities, testLogger())
}

func TestGetHealth_HealthyWithCleanRuns(t *testing.T) {
	business := testBusiness()
	activities := &fakeActivityStore{}
	recordRuns(t, activities, business.ID.String(), true, true, true)

	tracker := newTestHealth(newFakeSettingsStore(testSettings(business.ID.String())), activities, newFakeReviewStore())
	health, err := tracker.GetHealth(context.Background(), business.ID.String())
	if err != nil {
		t.Fatalf("GetHealth error: %v", err)
	}
	if health.NeedsAttention || health.Status != "healthy" {
		t.Fatalf("expected healthy, got %+v", health)
	}
}

func TestGetHealth_LatestFailureNeedsAttention(t *testing.T) {
	business := testBusiness()
	activities := &fakeActivityStore{}
	// Oldest to newest; the latest run failed.
	recordRuns(t, activities, business.ID.String(), true, true, false)

	tracker := newTestHealth(newFakeSettingsStore(testSettings(business.ID.String())), activities, newFakeReviewStore())
	health, err := tracker.GetHealth(context.Background(), business.ID.String())
	if err != nil {
		t.Fatalf("GetHealth error: %v", err)
	}
	if !health.NeedsAttention || health.Status != "needs_attention" {
		t.Fatalf("latest failed run should need attention, got %+v", health)
	}
}

func TestGetHealth_RepeatedFailuresNeedAttention(t *testing.T) {
	business := testBusiness()
	activities := &fakeActivityStore{}
	// Three failures in the trailing window, but the latest run succeeded.
	recordRuns(t, activities, business.ID.String(), false, false, false, true)

	tracker := newTestHealth(newFakeSettingsStore(testSettings(business.ID.String())), activities, newFakeReviewStore())
	health, err := tracker.GetHealth(context.Background(), business.ID.String())
	if err != nil {
		t.Fatalf("GetHealth error: %v", err)
	}
	if !health.NeedsAttention {
		t.Fatalf("three failed runs in the window should need attention, got %+v", health)
	}
}

func TestGetHealth_TwoOldFailuresStayHealthy(t *testing.T) {
	business := testBusiness()
	activities := &fakeActivityStore{}
	recordRuns(t, activities, business.ID.String(), false, false, true)

	tracker := newTestHealth(newFakeSettingsStore(testSettings(business.ID.String())), activities, newFakeReviewStore())
	health, err := tracker.GetHealth(context.Background(), business.ID.String())
	if err != nil {
		t.Fatalf("GetHealth error: %v", err)
	}
	if health.NeedsAttention {
		t.Fatalf("two old failures with a clean latest run should stay healthy, got %+v", health)
	}
}

func TestGetHealth_CountsQuarantinedReviews(t *testing.T) {
	business := testBusiness()
	reviews := newFakeReviewStore()
	reviews.add(models.Review{BusinessId: business.ID.String(), AutomationFailed: true})
	reviews.add(models.Review{BusinessId: business.ID.String(), AutomationFailed: true})

	tracker := newTestHealth(newFakeSettingsStore(testSettings(business.ID.String())), &fakeActivityStore{}, reviews)
	health, err := tracker.GetHealth(context.Background(), business.ID.String())
	if err != nil {
		t.Fatalf("GetHealth error: %v", err)
	}
	if health.FailedReviews != 2 {
		t.Fatalf("expected 2 quarantined reviews, got %d", health.FailedReviews)
	}
}

func TestClearErrors_EmptiesLogAndAudits(t *testing.T) {
	business := testBusiness()
	settings := testSettings(business.ID.String())
	settings.AutomationErrorsJSON = models.EncodeAutomationErrors([]models.AutomationErrorEntry{
		{Step: "generate", Error: "boom"},
	})

	settingsStore := newFakeSettingsStore(settings)
	activities := &fakeActivityStore{}
	tracker := newTestHealth(settingsStore, activities, newFakeReviewStore())

	if err := tracker.ClearErrors(context.Background(), business.ID.String()); err != nil {
		t.Fatalf("ClearErrors error: %v", err)
	}

	got, _ := settingsStore.Get(context.Background(), business.ID.String())
	if len(models.DecodeAutomationErrors(got.AutomationErrorsJSON)) != 0 {
		t.Fatal("error log should be empty after clearing")
	}
	if len(activities.byType(models.ActivityErrorsCleared)) != 1 {
		t.Fatal("expected an audit entry for the clear")
	}
}
