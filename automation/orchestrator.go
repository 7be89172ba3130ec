package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"github.com/kev-hfmn/review-reply-app-sub003/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	scheduledSyncMaxCount = 200
	defaultTenantBudget   = 5 * time.Minute
)

// Orchestrator runs the scheduled batch: every eligible tenant in a slot, one at a
// time. Tenants are isolated; one tenant's failure never stops the loop.
type Orchestrator struct {
	tenants      TenantDirectory
	settings     SettingsStore
	activities   ActivityStore
	credentials  CredentialGate
	syncEngine   *SyncEngine
	policy       *PolicyEngine
	logg         *logrus.Logger
	tracer       trace.Tracer
	tenantBudget time.Duration
}

func NewOrchestrator(
	tenants TenantDirectory,
	settings SettingsStore,
	activities ActivityStore,
	credentials CredentialGate,
	syncEngine *SyncEngine,
	policy *PolicyEngine,
	logg *logrus.Logger,
) *Orchestrator {
	budget := time.Duration(utils.IntFromEnv("AUTOMATION_TENANT_BUDGET_SECONDS", 0)) * time.Second
	if budget <= 0 {
		budget = defaultTenantBudget
	}
	return &Orchestrator{
		tenants:      tenants,
		settings:     settings,
		activities:   activities,
		credentials:  credentials,
		syncEngine:   syncEngine,
		policy:       policy,
		logg:         logg,
		tracer:       otel.Tracer("automation"),
		tenantBudget: budget,
	}
}

// RunSlot processes every tenant scheduled into the slot: a 24h incremental sync, then
// the policy pipeline, then one automation_run audit entry per tenant.
func (o *Orchestrator) RunSlot(ctx context.Context, slot models.ScheduleSlot) (*SlotResult, error) {
	ctx, span := o.tracer.Start(ctx, "RunSlot")
	span.SetAttributes(attribute.String("slot", string(slot)))
	defer span.End()

	started := time.Now()
	result := &SlotResult{Slot: slot}

	businesses, err := o.tenants.EligibleForSlot(ctx, slot)
	if err != nil {
		return result, err
	}

	for i := range businesses {
		business := &businesses[i]
		tenantResult := o.runTenant(ctx, business)
		result.Results = append(result.Results, tenantResult)
		result.Processed++
		switch {
		case tenantResult.Skipped:
		case tenantResult.Error == "":
			result.Successful++
		default:
			result.Errors++
		}
	}

	result.DurationMs = time.Since(started).Milliseconds()
	span.SetAttributes(
		attribute.Int("tenants.processed", result.Processed),
		attribute.Int("tenants.errors", result.Errors),
	)

	fields := logrus.Fields{
		"module":     "automation",
		"slot":       string(slot),
		"processed":  result.Processed,
		"successful": result.Successful,
		"errors":     result.Errors,
		"durationMs": result.DurationMs,
	}
	if result.Processed > 0 && result.Errors*2 > result.Processed {
		o.logg.WithFields(fields).Warn("slot run finished with a high tenant error rate")
	} else {
		o.logg.WithFields(fields).Info("slot run finished")
	}

	return result, nil
}

func (o *Orchestrator) runTenant(parent context.Context, business *models.Business) TenantRunResult {
	businessId := business.ID.String()
	out := TenantRunResult{BusinessId: businessId}

	ctx, cancel := context.WithTimeout(parent, o.tenantBudget)
	defer cancel()

	ok, err := o.credentials.HasCredentials(ctx, businessId)
	if err != nil {
		out.Error = fmt.Sprintf("credential check: %v", err)
		o.recordRun(ctx, businessId, &out)
		return out
	}
	if !ok {
		out.Skipped = true
		out.SkipReason = "no stored credentials"
		o.logg.WithFields(logrus.Fields{
			"module":     "automation",
			"businessId": businessId,
		}).Warn("skipping tenant without credentials")
		return out
	}

	settings, err := o.settings.Get(ctx, businessId)
	if err != nil {
		out.Error = fmt.Sprintf("load settings: %v", err)
		o.recordRun(ctx, businessId, &out)
		return out
	}

	syncResult, err := o.syncEngine.Sync(ctx, business, SyncOptions{
		Window:   ScheduledSyncWindow,
		MaxCount: scheduledSyncMaxCount,
		Trigger:  models.TriggerScheduled,
	})
	out.Sync = syncResult
	if err != nil {
		// Sync failure ends this tenant's run but the settings and audit trail still
		// see it.
		out.Error = fmt.Sprintf("sync: %v", err)
		if errors.Is(err, utils.ErrorReauthRequired) {
			out.SkipReason = "reauthorization required"
		}
		o.recordRun(ctx, businessId, &out)
		return out
	}

	automationResult, err := o.policy.Process(ctx, business, settings, models.TriggerScheduled)
	out.Automation = automationResult
	if err != nil {
		if errors.Is(err, ErrTenantBusy) {
			out.Skipped = true
			out.SkipReason = "automation already running"
			return out
		}
		out.Error = fmt.Sprintf("automation: %v", err)
	}

	o.recordRun(ctx, businessId, &out)
	return out
}

func (o *Orchestrator) recordRun(ctx context.Context, businessId string, result *TenantRunResult) {
	detail, _ := json.Marshal(result)
	success := result.Error == "" &&
		(result.Sync == nil || len(result.Sync.Errors) == 0) &&
		(result.Automation == nil || len(result.Automation.Errors) == 0)

	description := "scheduled automation run"
	if result.Error != "" {
		description = "scheduled automation run failed: " + result.Error
	}

	if err := o.activities.Record(ctx, &models.ActivityLog{
		BusinessId:  businessId,
		Type:        models.ActivityAutomationRun,
		Success:     success,
		Description: description,
		DetailJSON:  detail,
	}); err != nil {
		config.LogError(o.logg, "automation", "recordRun", "record automation run", businessId, err)
	}
}
