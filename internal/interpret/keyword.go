package interpret

import (
	"context"
	"strings"

	"github.com/NovaLine/SlotLine/internal/dialog"
	"github.com/NovaLine/SlotLine/internal/models"
)

// KeywordInterpreter is the offline intent and preference parser. It backs
// the OpenAI interpreter when the API is unreachable and can run as the
// sole interpreter for air-gapped demos.
//
// If the caller supplies booking fields (topic, day or time) the intent
// defaults to book_new unless they explicitly asked to cancel, reschedule
// or prepare. This prevents loops like: "Which topic?" -> "KYC" ->
// intent=other -> menu again.
type KeywordInterpreter struct{}

var topicKeywords = []struct {
	words []string
	topic string
}{
	{[]string{"kyc", "onboard"}, "KYC/Onboarding"},
	{[]string{"sip", "mandate"}, "SIP/Mandates"},
	{[]string{"statement", "tax"}, "Statements/Tax Docs"},
	{[]string{"withdraw", "timeline", "redemption"}, "Withdrawals & Timelines"},
	{[]string{"nominee", "account change", "profile"}, "Account Changes/Nominee"},
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func containsAny(t string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

// Interpret parses one turn with keyword matching only. It never fails.
func (KeywordInterpreter) Interpret(_ context.Context, raw string, state models.SessionState) (models.InterpretedTurn, error) {
	t := strings.ToLower(raw)
	turn := models.InterpretedTurn{Raw: raw, Intent: models.IntentOther}

	for _, tk := range topicKeywords {
		if containsAny(t, tk.words...) {
			turn.Topic = tk.topic
			break
		}
	}

	switch {
	case strings.Contains(t, "tomorrow"):
		turn.Day = "tomorrow"
	case strings.Contains(t, "today"):
		turn.Day = "today"
	default:
		for _, d := range weekdays {
			if strings.Contains(t, d) {
				turn.Day = d
				break
			}
		}
	}

	turn.TimeWindow = dialog.NormalizeTimeWindow(t)
	turn.BookingCode = dialog.ExtractBookingCode(raw)

	switch {
	case containsAny(t, "reschedule", "move my", "change my time", "change slot"):
		turn.Intent = models.IntentReschedule
	case containsAny(t, "cancel", "call off", "delete booking"):
		turn.Intent = models.IntentCancel
	case containsAny(t, "prepare", "what should i bring", "what to prepare"):
		turn.Intent = models.IntentWhatToPrepare
	case containsAny(t, "availability", "available", "any slots"):
		turn.Intent = models.IntentCheckAvailability
	case containsAny(t, "book", "appointment", "schedule"):
		turn.Intent = models.IntentBookNew
	}

	gaveBookingFields := turn.Topic != "" || turn.Day != "" || turn.TimeWindow != ""
	if gaveBookingFields && (turn.Intent == models.IntentOther || turn.Intent == models.IntentCheckAvailability) {
		turn.Intent = models.IntentBookNew
	}
	return turn, nil
}
