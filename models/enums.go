package models

// ReviewStatus is the review reply lifecycle. It is both the persisted value and the
// control-flow discriminant in the automation policy engine, so keep the set closed:
// every switch over it must handle all members.
type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "pending"
	ReviewStatusApproved  ReviewStatus = "approved"
	ReviewStatusPosted    ReviewStatus = "posted"
	ReviewStatusNeedsEdit ReviewStatus = "needs_edit"
	ReviewStatusSkipped   ReviewStatus = "skipped"
)

type ConnectionStatus string

const (
	ConnectionStatusDisconnected      ConnectionStatus = "disconnected"
	ConnectionStatusConnecting        ConnectionStatus = "connecting"
	ConnectionStatusConnected         ConnectionStatus = "connected"
	ConnectionStatusNeedsReconnection ConnectionStatus = "needs_reconnection"
	ConnectionStatusError             ConnectionStatus = "error"
)

// ApprovalMode decides whether a generated reply is auto-approved for a given rating.
type ApprovalMode string

const (
	ApprovalModeManual        ApprovalMode = "manual"
	ApprovalModeAutoFourPlus  ApprovalMode = "auto_4_plus"
	ApprovalModeAutoExceptLow ApprovalMode = "auto_except_low"
)

// Qualifies reports whether a review with the given rating auto-approves under this mode.
func (m ApprovalMode) Qualifies(rating int) bool {
	switch m {
	case ApprovalModeAutoFourPlus:
		return rating >= 4
	case ApprovalModeAutoExceptLow:
		return rating >= 3
	case ApprovalModeManual:
		return false
	default:
		return false
	}
}

// ScheduleSlot spreads scheduled automation across two daily windows.
type ScheduleSlot string

const (
	ScheduleSlot1 ScheduleSlot = "slot_1"
	ScheduleSlot2 ScheduleSlot = "slot_2"
)

func ValidScheduleSlot(s string) bool {
	return ScheduleSlot(s) == ScheduleSlot1 || ScheduleSlot(s) == ScheduleSlot2
}

type SubscriptionPlan string

const (
	PlanFree    SubscriptionPlan = "free"
	PlanStarter SubscriptionPlan = "starter"
	PlanPro     SubscriptionPlan = "pro"
)

// AllowsAutomation gates the automation pipeline on subscription entitlements.
func (p SubscriptionPlan) AllowsAutomation() bool {
	return p == PlanStarter || p == PlanPro
}

type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerRetry     TriggerType = "retry"
)

const (
	ActivityAutomationRun   = "automation_run"
	ActivityReviewSynced    = "review_synced"
	ActivityReplyPosted     = "reply_posted"
	ActivitySettingsUpdated = "settings_updated"
	ActivityReviewsExported = "reviews_exported"
	ActivityErrorsCleared   = "automation_errors_cleared"
	ActivityRetryTriggered  = "automation_retry_triggered"
)
