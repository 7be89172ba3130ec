package models

import (
	"fmt"
	"testing"
	"time"
)

func TestAppendAutomationErrorEntry_BoundsTheLog(t *testing.T) {
	var entries []AutomationErrorEntry
	for i := 0; i < AutomationErrorLogCap+5; i++ {
		entries = AppendAutomationErrorEntry(entries, AutomationErrorEntry{
			At:    time.Now(),
			Step:  "generate",
			Error: fmt.Sprintf("failure %d", i),
		})
	}
	if len(entries) != AutomationErrorLogCap {
		t.Fatalf("expected the log capped at %d, got %d", AutomationErrorLogCap, len(entries))
	}
	if entries[0].Error != "failure 5" {
		t.Fatalf("oldest entries should be evicted first, got %q", entries[0].Error)
	}
	if entries[len(entries)-1].Error != fmt.Sprintf("failure %d", AutomationErrorLogCap+4) {
		t.Fatalf("newest entry should be kept, got %q", entries[len(entries)-1].Error)
	}
}

func TestAutomationErrors_EncodeDecodeRoundTrip(t *testing.T) {
	in := []AutomationErrorEntry{
		{RunId: "run-1", Step: "generate", ReviewId: 7, Error: "boom"},
		{RunId: "run-1", Step: "post", ReviewId: 8, Error: "bad gateway"},
	}
	out := DecodeAutomationErrors(EncodeAutomationErrors(in))
	if len(out) != 2 || out[1].Step != "post" || out[0].ReviewId != 7 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if DecodeAutomationErrors(nil) != nil {
		t.Fatal("empty input should decode to nil")
	}
	if DecodeAutomationErrors([]byte("not json")) != nil {
		t.Fatal("corrupt input should decode to nil, not panic")
	}
}

func TestApprovalModeQualifies(t *testing.T) {
	cases := []struct {
		mode     ApprovalMode
		rating   int
		expected bool
	}{
		{ApprovalModeManual, 5, false},
		{ApprovalModeManual, 1, false},
		{ApprovalModeAutoFourPlus, 4, true},
		{ApprovalModeAutoFourPlus, 3, false},
		{ApprovalModeAutoExceptLow, 3, true},
		{ApprovalModeAutoExceptLow, 2, false},
		{ApprovalMode("bogus"), 5, false},
	}
	for _, tc := range cases {
		if got := tc.mode.Qualifies(tc.rating); got != tc.expected {
			t.Fatalf("%s.Qualifies(%d) expected %v, got %v", tc.mode, tc.rating, tc.expected, got)
		}
	}
}

func TestSubscriptionPlanAllowsAutomation(t *testing.T) {
	if PlanFree.AllowsAutomation() {
		t.Fatal("free plan must not allow automation")
	}
	if !PlanStarter.AllowsAutomation() || !PlanPro.AllowsAutomation() {
		t.Fatal("starter and pro plans should allow automation")
	}
}

func TestValidScheduleSlot(t *testing.T) {
	if !ValidScheduleSlot("slot_1") || !ValidScheduleSlot("slot_2") {
		t.Fatal("known slots should validate")
	}
	if ValidScheduleSlot("slot_3") || ValidScheduleSlot("") {
		t.Fatal("unknown slots must not validate")
	}
}

func TestBusinessSettings_FlagHelpers(t *testing.T) {
	s := &BusinessSettings{}
	if s.AutoReply() || s.AutoPost() || s.AutomationEnabled() {
		t.Fatal("nil flags should read as disabled")
	}

	on := true
	s.AutoPostEnabled = &on
	if !s.AutomationEnabled() {
		t.Fatal("one enabled flag should enable automation")
	}
}

func TestBrandVoice_DefaultsWhenMissingOrCorrupt(t *testing.T) {
	s := &BusinessSettings{}
	if v := s.BrandVoice(); v.Tone != "friendly" {
		t.Fatalf("expected friendly default tone, got %q", v.Tone)
	}

	s.BrandVoiceJSON = []byte("not json")
	if v := s.BrandVoice(); v.Tone != "friendly" {
		t.Fatalf("corrupt voice should fall back to default, got %q", v.Tone)
	}

	s.BrandVoiceJSON = EncodeBrandVoice(BrandVoice{Tone: "professional", Signature: "— The Team"})
	v := s.BrandVoice()
	if v.Tone != "professional" || v.Signature != "— The Team" {
		t.Fatalf("stored voice should round trip, got %+v", v)
	}
}
