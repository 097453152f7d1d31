package dialog

import (
	"strings"
	"testing"
)

func TestContainsPII(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"my email is user@example.com", true},
		{"call me on +91 98765 43210", true},
		{"9876543210", true},
		{"my account is 12345", true},
		{"book me for tomorrow morning", false},
		{"option 1", false},
	}
	for _, tt := range tests {
		if got := ContainsPII(tt.text); got != tt.want {
			t.Errorf("ContainsPII(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsAdviceSeeking(t *testing.T) {
	if !IsAdviceSeeking("should I buy this stock?") {
		t.Error("expected advice detection")
	}
	if IsAdviceSeeking("book a KYC appointment") {
		t.Error("did not expect advice detection")
	}
}

func TestPromptPrepGuide(t *testing.T) {
	got := PromptPrepGuide("Statements/Tax Docs")
	if !strings.Contains(got, "Statements/Tax Docs") || !strings.Contains(got, "1.") {
		t.Errorf("expected numbered tips, got %q", got)
	}
	if !strings.Contains(PromptPrepGuide("unknown"), "which topic") {
		t.Error("expected topic re-ask for unknown topic")
	}
}

func TestPromptAvailabilityWithoutSlots(t *testing.T) {
	got := PromptAvailability("SIP/Mandates", nil)
	if !strings.Contains(got, "don’t see a matching slot") || !strings.Contains(got, "SIP/Mandates") {
		t.Errorf("expected a no-availability reply naming the topic, got %q", got)
	}
}
