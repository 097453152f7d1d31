// Package util provides utility functions for the SlotLine application.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateSessionID generates a unique session identifier with "s_" prefix.
// Used when a transport does not supply its own conversation identifier.
func GenerateSessionID() string {
	return "s_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
