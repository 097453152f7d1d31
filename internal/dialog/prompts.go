package dialog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/NovaLine/SlotLine/internal/models"
)

// Fixed prompt texts. Slot and topic details are filled in by the builder
// functions below.
const (
	PromptDidntCatch = "Sorry, I didn’t catch that. Please repeat."

	PromptGreeting = "Hi — this is the Advisor Appointment Scheduler. " +
		"This call is for informational support only and not investment advice. " +
		"Would you like to book a new slot, reschedule, cancel, check availability, or ask what to prepare?"

	PromptAdviceRefusal = "I can’t provide investment advice or recommendations. " +
		"I can help with account processes or book an informational advisor session. " +
		"Which topic is this for: KYC/Onboarding, SIP/Mandates, Statements/Tax Docs, Withdrawals & Timelines, or Account Changes/Nominee?"

	PromptAskDay = "What day works best for you? For example tomorrow, Friday, or next week."

	PromptAskCode = "Sure. Please tell me your booking code, for example NL-A742."

	PromptYesNo = "Is that correct? Say yes or no."

	PromptAlreadyBooked = "All set — your booking is complete. Do you need anything else?"

	PromptProcessing = "Thanks, we have your details. Your booking is being finalized."

	PromptMenu = "I can help you book, reschedule, cancel, check availability, or tell you what to prepare. What would you like to do?"
)

// PromptAskTopic asks for one of the catalog topics.
func PromptAskTopic() string {
	return "Which topic is this for: " + strings.Join(Topics, ", ") + "?"
}

// PromptAskTime asks for a coarse time-of-day preference.
func PromptAskTime() string {
	return fmt.Sprintf("Do you prefer morning, afternoon, or evening %s?", TimezoneLabel)
}

// PromptOfferSlots reads out the two offered slots. Re-prompting with the
// same offered slice yields byte-identical text.
func PromptOfferSlots(offered []models.SlotOption) string {
	if len(offered) < 2 {
		return PromptAskTime()
	}
	return fmt.Sprintf("I have two options in %s. Option 1: %s %s. Option 2: %s %s. Which option do you prefer, 1 or 2?",
		TimezoneLabel, offered[0].Start, TimezoneLabel, offered[1].Start, TimezoneLabel)
}

// PromptConfirm asks the caller to confirm the chosen slot.
func PromptConfirm(topic string, slot models.SlotOption) string {
	return fmt.Sprintf("Just to confirm in %s: %s on %s %s. Is that correct? Say yes or no.",
		TimezoneLabel, topic, slot.Start, TimezoneLabel)
}

// PromptSecureLink announces the booking code and hands off to the secure page.
func PromptSecureLink(code, link, topic string, slot models.SlotOption) string {
	return fmt.Sprintf("Great. Your booking code is %s. Your tentative slot is %s %s for %s. "+
		"For security, I can’t collect personal details on this call. Please use this secure link to finish details: %s.",
		code, slot.Start, TimezoneLabel, topic, link)
}

// PromptAwaitingDetails reminds the caller the booking waits on the secure page.
func PromptAwaitingDetails(link string) string {
	return fmt.Sprintf("Your slot is held. Please finish your contact details on the secure page: %s.", link)
}

// PromptCancelled acknowledges a cancellation.
func PromptCancelled(code string) string {
	if code == "" {
		return "No problem, I’ve cleared that booking. " + PromptAskTopic()
	}
	return fmt.Sprintf("Done. I’ve noted a cancellation request for booking code %s. %s", code, PromptAskTopic())
}

// PromptRescheduleAck acknowledges a reschedule request and restarts collection.
func PromptRescheduleAck(code string) string {
	return fmt.Sprintf("Got it. Booking code %s. What topic is this for, and what day and time preference in %s?", code, TimezoneLabel)
}

// PromptAvailability previews the two candidate slots without booking them.
func PromptAvailability(topic string, offered []models.SlotOption) string {
	if len(offered) < 2 {
		return fmt.Sprintf("I don’t see a matching slot right now for %s. You could try a different day or time window.", topic)
	}
	return fmt.Sprintf("For %s, I see two options in %s. Option 1: %s %s. Option 2: %s %s.",
		topic, TimezoneLabel, offered[0].Start, TimezoneLabel, offered[1].Start, TimezoneLabel)
}

// PromptWaitlist answers a fully specified request no slot pair matches and
// re-asks the time preference.
func PromptWaitlist(topic string) string {
	return fmt.Sprintf("I don’t see a matching slot right now. I’ve noted a waitlist request for %s. "+
		"You could also try a different time — do you prefer morning, afternoon, or evening %s?", topic, TimezoneLabel)
}

// PromptPIIDeflect redirects personal details to the secure page.
func PromptPIIDeflect(link string) string {
	return fmt.Sprintf("For security, please don’t share personal details on this call. "+
		"Use this secure link to add contact details: %s. Now, what topic is this about?", link)
}

// prepGuides maps each topic to what the caller should have ready.
var prepGuides = map[string][]string{
	"KYC/Onboarding": {
		"Have your PAN and address proof handy (as applicable).",
		"Be ready to confirm your onboarding status and any KYC error message you saw.",
	},
	"SIP/Mandates": {
		"Know your bank name and mandate status (created/pending/failed).",
		"Have approximate SIP amount and frequency you’re trying to set up.",
	},
	"Statements/Tax Docs": {
		"Mention which period you need (FY year range).",
		"Clarify whether you need statement, capital gains, or tax certificate.",
	},
	"Withdrawals & Timelines": {
		"Share the date you requested withdrawal and current status.",
		"Be ready to confirm the expected timeline you were told (if any).",
	},
	"Account Changes/Nominee": {
		"Know what change you want: address, bank, nominee, or other profile detail.",
		"Be ready to confirm whether you already attempted the change in-app.",
	},
}

// PromptPrepGuide returns the preparation tips for a topic, or a topic
// re-ask when the topic is unknown.
func PromptPrepGuide(topic string) string {
	canonical, ok := CanonicalTopic(topic)
	if !ok {
		return "Sure — which topic: " + strings.Join(Topics, ", ") + "?"
	}
	tips := prepGuides[canonical]
	var parts []string
	for i, tip := range tips {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, tip))
	}
	return fmt.Sprintf("For %s, here’s what to prepare: %s", canonical, strings.Join(parts, " "))
}

// piiPatterns match emails, phone-like digit runs, and account references.
// Utterances matching any of them are deflected before interpretation so
// PII never reaches session state or the interpreter.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`),
	regexp.MustCompile(`\b(?:\+?\d[\d\s-]{8,}\d)\b`),
	regexp.MustCompile(`\b\d{10}\b`),
	regexp.MustCompile(`\b\d{12}\b`),
	regexp.MustCompile(`(?i)\baccount\b.*\b\d+\b`),
}

// ContainsPII reports whether the raw utterance appears to carry personal
// contact or account details.
func ContainsPII(text string) bool {
	for _, p := range piiPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

var adviceKeywords = []string{"buy", "sell", "invest", "stock", "mutual fund", "recommend"}

// IsAdviceSeeking reports whether the utterance asks for investment advice,
// which the scheduler must refuse.
func IsAdviceSeeking(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range adviceKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
