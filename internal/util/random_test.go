package util

import (
	"strings"
	"testing"
)

func TestGenerateSessionID(t *testing.T) {
	id := GenerateSessionID()
	if !strings.HasPrefix(id, "s_") {
		t.Errorf("expected s_ prefix, got %q", id)
	}
	if len(id) != 34 { // "s_" + 32 hex chars
		t.Errorf("expected length 34, got %d (%q)", len(id), id)
	}
	if id == GenerateSessionID() {
		t.Error("expected consecutive session IDs to differ")
	}
}
