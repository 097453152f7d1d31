// Package dialog implements the appointment-booking dialogue: the slot
// catalog, the booking-code issuer, prompt texts, and the turn-by-turn
// state machine that drives a session from topic collection to dispatch.
package dialog

import (
	"strings"

	"github.com/NovaLine/SlotLine/internal/models"
)

// TimezoneLabel is appended to every slot time read out to the caller.
const TimezoneLabel = "IST"

// Topics lists the advisor topics a session can be booked for.
var Topics = []string{
	"KYC/Onboarding",
	"SIP/Mandates",
	"Statements/Tax Docs",
	"Withdrawals & Timelines",
	"Account Changes/Nominee",
}

// CanonicalTopic maps a candidate topic string onto the catalog entry it
// names. Matching is case-insensitive on the exact catalog string.
func CanonicalTopic(candidate string) (string, bool) {
	c := strings.TrimSpace(candidate)
	for _, t := range Topics {
		if strings.EqualFold(c, t) {
			return t, true
		}
	}
	return "", false
}

// slotCatalog is the fixed demo inventory of half-hour advisor slots.
var slotCatalog = []models.SlotOption{
	{SlotID: "SLOT-101", Start: "2026-01-02 10:00 AM", End: "10:30 AM"},
	{SlotID: "SLOT-102", Start: "2026-01-02 11:00 AM", End: "11:30 AM"},
	{SlotID: "SLOT-103", Start: "2026-01-02 03:00 PM", End: "03:30 PM"},
	{SlotID: "SLOT-104", Start: "2026-01-02 05:00 PM", End: "05:30 PM"},
}

// NormalizeTimeWindow reduces a free-text time preference to one of the
// coarse windows morning/afternoon/evening. Returns "" when unrecognized.
func NormalizeTimeWindow(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	switch {
	case t == "":
		return ""
	case strings.Contains(t, "morn"):
		return "morning"
	case strings.Contains(t, "after"):
		return "afternoon"
	case strings.Contains(t, "even"), strings.Contains(t, "night"):
		return "evening"
	default:
		return ""
	}
}

// OfferSlots returns exactly two candidate slots derived deterministically
// from the day and time-window preferences. The same inputs always yield
// the same two candidates, in the same order.
func OfferSlots(day, window string) []models.SlotOption {
	w := strings.ToLower(window)

	var candidates []models.SlotOption
	switch {
	case strings.Contains(w, "even"), strings.Contains(w, "5"), strings.Contains(w, "6"):
		candidates = []models.SlotOption{slotCatalog[3], slotCatalog[2]}
	case strings.Contains(w, "after"), strings.Contains(w, "3"), strings.Contains(w, "4"):
		candidates = []models.SlotOption{slotCatalog[2], slotCatalog[1]}
	default:
		candidates = []models.SlotOption{slotCatalog[0], slotCatalog[1]}
	}
	return candidates
}

// ParseSlotChoice resolves a raw utterance to one of the offered slots.
// It accepts ordinal references ("option 1", "the second one") and literal
// slot IDs. Returns the slot ID and true on a usable choice.
func ParseSlotChoice(raw string, offered []models.SlotOption) (string, bool) {
	if len(offered) == 0 {
		return "", false
	}
	lower := strings.ToLower(raw)

	for _, opt := range offered {
		if strings.Contains(strings.ToUpper(raw), opt.SlotID) {
			return opt.SlotID, true
		}
	}

	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
	}) {
		switch tok {
		case "1", "one", "first":
			return offered[0].SlotID, true
		case "2", "two", "second":
			if len(offered) > 1 {
				return offered[1].SlotID, true
			}
		}
	}
	return "", false
}

// ParseYesNo reads an affirmative or negative out of a raw utterance.
// The second return value is false when neither is present.
func ParseYesNo(raw string) (bool, bool) {
	lower := strings.ToLower(raw)
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
	}) {
		switch tok {
		case "yes", "yeah", "yep", "correct", "confirm", "sure", "ok", "okay":
			return true, true
		case "no", "nope", "nah", "wrong", "incorrect":
			return false, true
		}
	}
	return false, false
}
