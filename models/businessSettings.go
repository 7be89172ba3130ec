package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"gorm.io/gorm"
)

var settingsValidator = validator.New()

// AutomationErrorLogCap bounds the per-tenant automation error log; oldest entries are
// evicted beyond the cap.
const AutomationErrorLogCap = 20

// AutomationErrorEntry is one timestamped failure in the tenant's bounded error log.
// RunId groups entries from the same orchestration pass.
type AutomationErrorEntry struct {
	At       time.Time `json:"at"`
	RunId    string    `json:"run_id"`
	Step     string    `json:"step"`
	ReviewId int       `json:"review_id,omitempty"`
	Error    string    `json:"error"`
}

// BrandVoice shapes generated replies for a tenant.
type BrandVoice struct {
	Tone      string `json:"tone"`      // friendly | professional | casual
	Signature string `json:"signature"` // e.g. "— The Bluebird Cafe Team"
	Language  string `json:"language"`
}

type BusinessSettings struct {
	ID                        int              `gorm:"primary_key" json:"id"`
	BusinessId                string           `gorm:"uniqueIndex;not null" json:"business_id"`
	AutoReplyEnabled          *bool            `gorm:"default:false;not null" json:"auto_reply_enabled"`
	AutoPostEnabled           *bool            `gorm:"default:false;not null" json:"auto_post_enabled"`
	EmailNotificationsEnabled *bool            `gorm:"default:true;not null" json:"email_notifications_enabled"`
	ApprovalMode              ApprovalMode     `gorm:"type:enum('manual','auto_4_plus','auto_except_low');default:manual" json:"approval_mode"`
	ScheduleSlot              ScheduleSlot     `gorm:"type:enum('slot_1','slot_2');default:slot_1" json:"schedule_slot"`
	SubscriptionPlan          SubscriptionPlan `gorm:"type:enum('free','starter','pro');default:free" json:"subscription_plan"`
	BrandVoiceJSON            []byte           `gorm:"type:json" json:"brand_voice"`
	AutomationErrorsJSON      []byte           `gorm:"type:json" json:"automation_errors"`
	LastAutomationRun         *time.Time       `json:"last_automation_run"`
	NotificationEmail         string           `gorm:"size:255" json:"notification_email" validate:"omitempty,email"`
	CreatedAt                 time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *BusinessSettings) AutoReply() bool {
	return s.AutoReplyEnabled != nil && *s.AutoReplyEnabled
}

func (s *BusinessSettings) AutoPost() bool {
	return s.AutoPostEnabled != nil && *s.AutoPostEnabled
}

func (s *BusinessSettings) EmailNotifications() bool {
	return s.EmailNotificationsEnabled != nil && *s.EmailNotificationsEnabled
}

// AutomationEnabled reports whether any automation work is configured at all.
// Both flags off is the disabled short-circuit: a valid, non-error outcome.
func (s *BusinessSettings) AutomationEnabled() bool {
	return s.AutoReply() || s.AutoPost()
}

func (s *BusinessSettings) BrandVoice() BrandVoice {
	voice := BrandVoice{Tone: "friendly"}
	if len(s.BrandVoiceJSON) == 0 {
		return voice
	}
	if err := json.Unmarshal(s.BrandVoiceJSON, &voice); err != nil {
		return BrandVoice{Tone: "friendly"}
	}
	return voice
}

func EncodeBrandVoice(voice BrandVoice) []byte {
	b, _ := json.Marshal(voice)
	return b
}

func DecodeAutomationErrors(raw []byte) []AutomationErrorEntry {
	if len(raw) == 0 {
		return nil
	}
	var entries []AutomationErrorEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

// AppendAutomationErrorEntry appends to the bounded log, evicting oldest beyond the cap.
func AppendAutomationErrorEntry(entries []AutomationErrorEntry, entry AutomationErrorEntry) []AutomationErrorEntry {
	entries = append(entries, entry)
	if len(entries) > AutomationErrorLogCap {
		entries = entries[len(entries)-AutomationErrorLogCap:]
	}
	return entries
}

func EncodeAutomationErrors(entries []AutomationErrorEntry) []byte {
	b, _ := json.Marshal(entries)
	return b
}

func GetBusinessSettings(ctx context.Context, businessId string) (*BusinessSettings, error) {
	db := config.GetDB()
	var settings BusinessSettings
	err := db.WithContext(ctx).Where("business_id = ?", businessId).Take(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Tenants without an explicit settings row run with defaults.
			return &BusinessSettings{BusinessId: businessId, ApprovalMode: ApprovalModeManual,
				ScheduleSlot: ScheduleSlot1, SubscriptionPlan: PlanFree}, nil
		}
		return nil, err
	}
	return &settings, nil
}

func SaveBusinessSettings(ctx context.Context, settings *BusinessSettings) error {
	if err := settingsValidator.Struct(settings); err != nil {
		return err
	}
	db := config.GetDB()
	if settings.ID == 0 {
		var existing BusinessSettings
		err := db.WithContext(ctx).Where("business_id = ?", settings.BusinessId).Take(&existing).Error
		if err == nil {
			settings.ID = existing.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return db.WithContext(ctx).Save(settings).Error
}
