package automation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"github.com/kev-hfmn/review-reply-app-sub003/gbp"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"github.com/kev-hfmn/review-reply-app-sub003/models/reports"
	"github.com/kev-hfmn/review-reply-app-sub003/utils"
)

// Handlers carries the HTTP surface over the engines. Everything is injected so the
// handlers can be exercised against fakes.
type Handlers struct {
	syncEngine   *SyncEngine
	policy       *PolicyEngine
	health       *HealthTracker
	orchestrator *Orchestrator
	businesses   BusinessStore
	settings     SettingsStore
	activities   ActivityStore
	reviews      ReviewStore
}

func NewHandlers(
	syncEngine *SyncEngine,
	policy *PolicyEngine,
	health *HealthTracker,
	orchestrator *Orchestrator,
	businesses BusinessStore,
	settings SettingsStore,
	activities ActivityStore,
	reviews ReviewStore,
) *Handlers {
	return &Handlers{
		syncEngine:   syncEngine,
		policy:       policy,
		health:       health,
		orchestrator: orchestrator,
		businesses:   businesses,
		settings:     settings,
		activities:   activities,
		reviews:      reviews,
	}
}

// RegisterRoutes mounts the automation API. The session middleware has already put the
// caller's business id into the request context.
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/automation/process", h.ProcessHandler())
		api.GET("/automation/process", h.StatusHandler())
		api.PATCH("/automation/process", h.RetryHandler())
		api.PUT("/automation/settings", h.UpdateSettingsHandler())
		api.DELETE("/automation/errors", h.ClearErrorsHandler())
		api.POST("/reviews/sync", h.SyncHandler())
		api.POST("/reviews/export", h.ExportHandler())
		api.GET("/activities", h.ActivitiesHandler())
	}
	r.POST("/pubsub/automation-slot", SlotPushHandler(h.orchestrator))
}

type ProcessRequest struct {
	TimePeriod  string `json:"timePeriod"`
	ReviewCount int    `json:"reviewCount" binding:"omitempty,min=1,max=1000"`
}

type RetryRequest struct {
	ReviewIds []int `json:"reviewIds"`
}

type SyncRequest struct {
	TimePeriod  string `json:"timePeriod"`
	ReviewCount int    `json:"reviewCount" binding:"omitempty,min=1,max=1000"`
}

// syncMaxCount resolves the caller's reviewCount, defaulting when absent. The backfill
// override inside the engine still wins while the initial backfill is incomplete.
func syncMaxCount(reviewCount int) int {
	if reviewCount > 0 {
		return reviewCount
	}
	return scheduledSyncMaxCount
}

type UpdateSettingsRequest struct {
	AutoReplyEnabled          *bool              `json:"autoReplyEnabled"`
	AutoPostEnabled           *bool              `json:"autoPostEnabled"`
	EmailNotificationsEnabled *bool              `json:"emailNotificationsEnabled"`
	ApprovalMode              *string            `json:"approvalMode" binding:"omitempty,oneof=manual auto_4_plus auto_except_low"`
	ScheduleSlot              *string            `json:"scheduleSlot" binding:"omitempty,oneof=slot_1 slot_2"`
	NotificationEmail         *string            `json:"notificationEmail" binding:"omitempty,email"`
	BrandVoice                *models.BrandVoice `json:"brandVoice"`
}

// ProcessHandler is the manual trigger: sync the requested window, then run the policy
// pipeline. 207 signals a completed run with partial per-review failures.
func (h *Handlers) ProcessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ProcessRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		window, err := ParseTimePeriod(req.TimePeriod)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		business, err := h.businesses.GetById(ctx, businessId)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		settings, err := h.settings.Get(ctx, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		syncResult, err := h.syncEngine.Sync(ctx, business, SyncOptions{
			Window:   window,
			MaxCount: syncMaxCount(req.ReviewCount),
			Trigger:  models.TriggerManual,
		})
		if err != nil {
			respondSyncFailure(c, businessId, err)
			return
		}

		automationResult, err := h.policy.Process(ctx, business, settings, models.TriggerManual)
		if err != nil {
			switch {
			case errors.Is(err, ErrAutomationNotAllowed):
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			case errors.Is(err, ErrTenantBusy):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		h.recordManualRun(c, businessId, syncResult, automationResult)

		status := http.StatusOK
		if len(syncResult.Errors) > 0 || len(automationResult.Errors) > 0 {
			status = http.StatusMultiStatus
		}
		c.JSON(status, gin.H{
			"sync":       syncResult,
			"automation": automationResult,
		})
	}
}

// StatusHandler reports the tenant's automation state: settings, review stats, health.
func (h *Handlers) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := c.Request.Context()

		business, err := h.businesses.GetById(ctx, businessId)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		settings, err := h.settings.Get(ctx, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		stats, err := models.GetReviewStats(ctx, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		healthStatus, err := h.health.GetHealth(ctx, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"connectionStatus": business.ConnectionStatus,
			"lastReviewSync":   business.LastReviewSync,
			"settings":         settings,
			"stats":            stats,
			"health":           healthStatus,
		})
	}
}

// RetryHandler resets quarantined reviews and reruns the pipeline over them.
func (h *Handlers) RetryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req RetryRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}

		ctx := c.Request.Context()
		business, err := h.businesses.GetById(ctx, businessId)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		settings, err := h.settings.Get(ctx, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		result, err := h.policy.RetryFailed(ctx, business, settings, req.ReviewIds)
		if err != nil {
			switch {
			case errors.Is(err, ErrAutomationNotAllowed):
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			case errors.Is(err, ErrTenantBusy):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		status := http.StatusOK
		if len(result.Errors) > 0 {
			status = http.StatusMultiStatus
		}
		c.JSON(status, gin.H{"automation": result})
	}
}

// SyncHandler runs a sync pass without the automation pipeline.
func (h *Handlers) SyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req SyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		window, err := ParseTimePeriod(req.TimePeriod)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		business, err := h.businesses.GetById(ctx, businessId)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}

		result, err := h.syncEngine.Sync(ctx, business, SyncOptions{
			Window:   window,
			MaxCount: syncMaxCount(req.ReviewCount),
			Trigger:  models.TriggerManual,
		})
		if err != nil {
			respondSyncFailure(c, businessId, err)
			return
		}

		if err := h.activities.Record(ctx, &models.ActivityLog{
			BusinessId:  businessId,
			Type:        models.ActivityReviewSynced,
			Success:     len(result.Errors) == 0,
			Description: "manual review sync",
		}); err != nil {
			config.LogError(config.GetLogger(), "automation", "SyncHandler", "record sync activity", businessId, err)
		}

		status := http.StatusOK
		if len(result.Errors) > 0 {
			status = http.StatusMultiStatus
		}
		c.JSON(status, result)
	}
}

// ExportHandler renders the tenant's reviews to a workbook in object storage.
func (h *Handlers) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := c.Request.Context()

		url, err := reports.ExportReviewsToGCS(ctx, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := h.activities.Record(ctx, &models.ActivityLog{
			BusinessId:  businessId,
			Type:        models.ActivityReviewsExported,
			Success:     true,
			Description: "reviews exported to " + url,
		}); err != nil {
			config.LogError(config.GetLogger(), "automation", "ExportHandler", "record export activity", businessId, err)
		}

		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}

// UpdateSettingsHandler applies a partial settings update. auto_post without auto_reply
// is accepted but flagged in the response, since the pipeline will no-op.
func (h *Handlers) UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		ctx := c.Request.Context()
		settings, err := h.settings.Get(ctx, businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if req.AutoReplyEnabled != nil {
			settings.AutoReplyEnabled = req.AutoReplyEnabled
		}
		if req.AutoPostEnabled != nil {
			settings.AutoPostEnabled = req.AutoPostEnabled
		}
		if req.EmailNotificationsEnabled != nil {
			settings.EmailNotificationsEnabled = req.EmailNotificationsEnabled
		}
		if req.ApprovalMode != nil {
			settings.ApprovalMode = models.ApprovalMode(*req.ApprovalMode)
		}
		if req.ScheduleSlot != nil {
			settings.ScheduleSlot = models.ScheduleSlot(*req.ScheduleSlot)
		}
		if req.NotificationEmail != nil {
			settings.NotificationEmail = strings.TrimSpace(*req.NotificationEmail)
		}
		if req.BrandVoice != nil {
			settings.BrandVoiceJSON = models.EncodeBrandVoice(*req.BrandVoice)
		}

		if err := h.settings.Save(ctx, settings); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := h.activities.Record(ctx, &models.ActivityLog{
			BusinessId:  businessId,
			Type:        models.ActivitySettingsUpdated,
			Success:     true,
			Description: "automation settings updated",
		}); err != nil {
			config.LogError(config.GetLogger(), "automation", "UpdateSettingsHandler", "record settings activity", businessId, err)
		}

		resp := gin.H{"success": true, "settings": settings}
		if settings.AutoPost() && !settings.AutoReply() {
			resp["warning"] = "auto-post is enabled without auto-reply; no replies will be drafted or posted"
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ClearErrorsHandler empties the bounded automation error log.
func (h *Handlers) ClearErrorsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := h.health.ClearErrors(c.Request.Context(), businessId); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// ActivitiesHandler lists the tenant's recent audit trail.
func (h *Handlers) ActivitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		activities, err := h.activities.Recent(c.Request.Context(), businessId, 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"activities": activities})
	}
}

func (h *Handlers) recordManualRun(c *gin.Context, businessId string, syncResult *SyncResult, automationResult *AutomationResult) {
	ctx := c.Request.Context()
	run := TenantRunResult{BusinessId: businessId, Sync: syncResult, Automation: automationResult}
	detail, _ := json.Marshal(run)
	if err := h.activities.Record(ctx, &models.ActivityLog{
		BusinessId:  businessId,
		Type:        models.ActivityAutomationRun,
		Success:     len(syncResult.Errors) == 0 && len(automationResult.Errors) == 0,
		Description: "manual automation run",
		DetailJSON:  detail,
	}); err != nil {
		config.LogError(config.GetLogger(), "automation", "recordManualRun", "record automation run", businessId, err)
	}
}

func respondSyncFailure(c *gin.Context, businessId string, err error) {
	var authErr *gbp.AuthError
	if errors.Is(err, utils.ErrorReauthRequired) || errors.As(err, &authErr) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":          "Google authorization has expired; please reconnect",
			"requiresReauth": true,
		})
		return
	}
	config.LogError(config.GetLogger(), "automation", "respondSyncFailure", "sync", businessId, err)
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func statusForError(err error) int {
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
