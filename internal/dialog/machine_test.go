package dialog

import (
	"strings"
	"testing"
	"time"

	"github.com/NovaLine/SlotLine/internal/models"
)

type stubMinter struct {
	code  string
	calls int
}

func (m *stubMinter) Mint() (string, error) {
	m.calls++
	return m.code, nil
}

func newTestMachine() (*Machine, *stubMinter) {
	minter := &stubMinter{code: "NL-TESTCODE0000AAAA"}
	m := NewMachine(minter, WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	return m, minter
}

func freshSession() models.Session {
	return models.NewSession("s_test", time.Unix(1700000000, 0))
}

func TestAdvance_HappyPathToConfirmed(t *testing.T) {
	m, minter := newTestMachine()
	s := freshSession()

	turns := []models.InterpretedTurn{
		{Intent: models.IntentBookNew, Raw: "book an appointment"},
		{Intent: models.IntentBookNew, Topic: "KYC/Onboarding", Raw: "KYC onboarding"},
		{Intent: models.IntentBookNew, Day: "tomorrow", Raw: "tomorrow"},
		{Intent: models.IntentBookNew, TimeWindow: "morning", Raw: "morning"},
		{Intent: models.IntentOther, Raw: "option 1"},
		{Intent: models.IntentOther, Raw: "yes"},
	}
	wantStates := []models.SessionState{
		models.StateCollectTopic,
		models.StateCollectDay,
		models.StateCollectTime,
		models.StateAwaitSlotChoice,
		models.StateAwaitConfirm,
		models.StateDetailsPending,
	}

	for i, turn := range turns {
		var prompt string
		s, prompt = m.Advance(s, turn)
		if s.State != wantStates[i] {
			t.Fatalf("turn %d: state = %s, want %s (prompt %q)", i, s.State, wantStates[i], prompt)
		}
	}

	if s.BookingCode == "" {
		t.Error("expected a booking code after confirmation")
	}
	if minter.calls != 1 {
		t.Errorf("expected exactly one mint, got %d", minter.calls)
	}
	if len(s.Slots.Offered) != 2 {
		t.Errorf("expected exactly 2 offered slots, got %d", len(s.Slots.Offered))
	}
	if s.Slots.Chosen == nil || s.Slots.Chosen.SlotID != s.Slots.Offered[0].SlotID {
		t.Errorf("expected chosen slot to be option 1, got %+v", s.Slots.Chosen)
	}
}

func TestAdvance_OneShotPreferences(t *testing.T) {
	m, _ := newTestMachine()
	s := freshSession()

	s, prompt := m.Advance(s, models.InterpretedTurn{
		Intent:     models.IntentBookNew,
		Topic:      "SIP/Mandates",
		Day:        "friday",
		TimeWindow: "evening",
		Raw:        "book a SIP slot friday evening",
	})
	if s.State != models.StateAwaitSlotChoice {
		t.Fatalf("expected AWAIT_SLOT_CHOICE after one-shot turn, got %s", s.State)
	}
	if !strings.Contains(prompt, "Option 1") || !strings.Contains(prompt, "Option 2") {
		t.Errorf("expected two options in prompt, got %q", prompt)
	}
}

func TestAdvance_UnrecognizedChoiceReoffersVerbatim(t *testing.T) {
	m, _ := newTestMachine()
	s := freshSession()

	s, _ = m.Advance(s, models.InterpretedTurn{
		Intent: models.IntentBookNew, Topic: "KYC/Onboarding", Day: "tomorrow", TimeWindow: "morning",
	})
	offered := append([]models.SlotOption(nil), s.Slots.Offered...)
	firstOffer := PromptOfferSlots(s.Slots.Offered)

	s2, prompt := m.Advance(s, models.InterpretedTurn{Intent: models.IntentOther, Raw: "maybe"})
	if s2.State != models.StateAwaitSlotChoice {
		t.Errorf("state changed on unrecognized input: %s", s2.State)
	}
	if prompt != firstOffer {
		t.Errorf("re-offer not verbatim:\n first: %q\nsecond: %q", firstOffer, prompt)
	}
	for i := range offered {
		if s2.Slots.Offered[i] != offered[i] {
			t.Errorf("offered slot %d changed: %+v -> %+v", i, offered[i], s2.Slots.Offered[i])
		}
	}
}

func TestAdvance_NegativeConfirmReoffers(t *testing.T) {
	m, minter := newTestMachine()
	s := freshSession()

	s, _ = m.Advance(s, models.InterpretedTurn{
		Intent: models.IntentBookNew, Topic: "KYC/Onboarding", Day: "tomorrow", TimeWindow: "morning",
	})
	s, _ = m.Advance(s, models.InterpretedTurn{Raw: "option 2"})
	if s.State != models.StateAwaitConfirm {
		t.Fatalf("expected AWAIT_CONFIRM, got %s", s.State)
	}

	s, prompt := m.Advance(s, models.InterpretedTurn{Raw: "no"})
	if s.State != models.StateAwaitSlotChoice {
		t.Errorf("expected AWAIT_SLOT_CHOICE after negative confirm, got %s", s.State)
	}
	if s.Slots.Chosen != nil {
		t.Errorf("expected chosen slot cleared, got %+v", s.Slots.Chosen)
	}
	if minter.calls != 0 {
		t.Errorf("expected no mint on negative confirm, got %d", minter.calls)
	}
	if !strings.Contains(prompt, "Option 1") {
		t.Errorf("expected re-offer prompt, got %q", prompt)
	}
}

func TestAdvance_AmbiguousConfirmReasks(t *testing.T) {
	m, _ := newTestMachine()
	s := freshSession()
	s, _ = m.Advance(s, models.InterpretedTurn{
		Intent: models.IntentBookNew, Topic: "KYC/Onboarding", Day: "tomorrow", TimeWindow: "morning",
	})
	s, _ = m.Advance(s, models.InterpretedTurn{Raw: "option 1"})

	s2, prompt := m.Advance(s, models.InterpretedTurn{Raw: "hmm perhaps"})
	if s2.State != models.StateAwaitConfirm {
		t.Errorf("expected AWAIT_CONFIRM unchanged, got %s", s2.State)
	}
	if prompt != PromptYesNo {
		t.Errorf("expected yes/no re-ask, got %q", prompt)
	}
}

// Cancel must reset slots and state from every non-terminal state.
func TestAdvance_CancelResetsFromEveryNonTerminalState(t *testing.T) {
	m, _ := newTestMachine()

	builders := map[models.SessionState]func() models.Session{
		models.StateCollectTopic: freshSession,
		models.StateCollectDay: func() models.Session {
			s := freshSession()
			s, _ = m.Advance(s, models.InterpretedTurn{Topic: "KYC/Onboarding"})
			return s
		},
		models.StateCollectTime: func() models.Session {
			s := freshSession()
			s, _ = m.Advance(s, models.InterpretedTurn{Topic: "KYC/Onboarding", Day: "tomorrow"})
			return s
		},
		models.StateAwaitSlotChoice: func() models.Session {
			s := freshSession()
			s, _ = m.Advance(s, models.InterpretedTurn{Topic: "KYC/Onboarding", Day: "tomorrow", TimeWindow: "morning"})
			return s
		},
		models.StateAwaitConfirm: func() models.Session {
			s := freshSession()
			s, _ = m.Advance(s, models.InterpretedTurn{Topic: "KYC/Onboarding", Day: "tomorrow", TimeWindow: "morning"})
			s, _ = m.Advance(s, models.InterpretedTurn{Raw: "option 1"})
			return s
		},
		models.StateDetailsPending: func() models.Session {
			s := freshSession()
			s, _ = m.Advance(s, models.InterpretedTurn{Topic: "KYC/Onboarding", Day: "tomorrow", TimeWindow: "morning"})
			s, _ = m.Advance(s, models.InterpretedTurn{Raw: "option 1"})
			s, _ = m.Advance(s, models.InterpretedTurn{Raw: "yes"})
			return s
		},
	}

	for state, build := range builders {
		s := build()
		if s.State != state {
			t.Fatalf("setup for %s produced %s", state, s.State)
		}
		got, _ := m.Advance(s, models.InterpretedTurn{Intent: models.IntentCancel, Raw: "cancel that"})
		if got.State != models.StateCollectTopic {
			t.Errorf("cancel from %s: state = %s, want COLLECT_TOPIC", state, got.State)
		}
		if got.Slots.Topic != "" || got.Slots.Day != "" || got.Slots.TimeWindow != "" ||
			got.Slots.Offered != nil || got.Slots.Chosen != nil {
			t.Errorf("cancel from %s: slots not cleared: %+v", state, got.Slots)
		}
		if got.BookingCode != "" {
			t.Errorf("cancel from %s: booking code not cleared", state)
		}
	}
}

func TestAdvance_TerminalStateRepliesFixedMessage(t *testing.T) {
	m, _ := newTestMachine()
	s := freshSession()
	s.State = models.StateDispatched

	got, prompt := m.Advance(s, models.InterpretedTurn{Intent: models.IntentCancel, Raw: "cancel"})
	if got.State != models.StateDispatched {
		t.Errorf("terminal state changed to %s", got.State)
	}
	if prompt != PromptAlreadyBooked {
		t.Errorf("expected fixed already-booked message, got %q", prompt)
	}
}

func TestAdvance_RescheduleAsksForCodeThenRestarts(t *testing.T) {
	m, _ := newTestMachine()
	s := freshSession()

	s, prompt := m.Advance(s, models.InterpretedTurn{Intent: models.IntentReschedule, Raw: "reschedule my booking"})
	if prompt != PromptAskCode {
		t.Fatalf("expected code ask, got %q", prompt)
	}
	if s.PendingIntent != models.IntentReschedule {
		t.Fatalf("expected pending reschedule intent, got %q", s.PendingIntent)
	}

	s, prompt = m.Advance(s, models.InterpretedTurn{Intent: models.IntentOther, BookingCode: "NL-A742", Raw: "it is NL-A742"})
	if s.State != models.StateCollectTopic {
		t.Errorf("expected restart at COLLECT_TOPIC, got %s", s.State)
	}
	if s.PendingCode != "NL-A742" {
		t.Errorf("expected pending code recorded, got %q", s.PendingCode)
	}
	if !strings.Contains(prompt, "NL-A742") {
		t.Errorf("expected code acknowledged in prompt, got %q", prompt)
	}
}

func TestAdvance_WhatToPrepareKeepsState(t *testing.T) {
	m, _ := newTestMachine()
	s := freshSession()
	s, _ = m.Advance(s, models.InterpretedTurn{Topic: "KYC/Onboarding"})

	got, prompt := m.Advance(s, models.InterpretedTurn{Intent: models.IntentWhatToPrepare, Raw: "what should i bring"})
	if got.State != s.State {
		t.Errorf("prep guide changed state: %s -> %s", s.State, got.State)
	}
	if !strings.Contains(prompt, "KYC/Onboarding") {
		t.Errorf("expected topic guide, got %q", prompt)
	}
}

func TestAdvance_CheckAvailabilityDoesNotMutateSlots(t *testing.T) {
	m, _ := newTestMachine()
	s := freshSession()

	got, prompt := m.Advance(s, models.InterpretedTurn{
		Intent: models.IntentCheckAvailability, Topic: "SIP/Mandates", Day: "friday", TimeWindow: "evening",
	})
	if got.Slots.Offered != nil || got.Slots.Topic != "" {
		t.Errorf("availability check mutated slots: %+v", got.Slots)
	}
	if !strings.Contains(prompt, "Option 1") {
		t.Errorf("expected availability preview, got %q", prompt)
	}
}

func TestAdvance_UnknownTopicReasks(t *testing.T) {
	m, _ := newTestMachine()
	s := freshSession()
	got, prompt := m.Advance(s, models.InterpretedTurn{Intent: models.IntentBookNew, Topic: "Quantum Gardening", Raw: "quantum gardening"})
	if got.State != models.StateCollectTopic {
		t.Errorf("unknown topic advanced state to %s", got.State)
	}
	if prompt != PromptAskTopic() {
		t.Errorf("expected topic re-ask, got %q", prompt)
	}
}

func TestAdvance_NoMatchingSlotsNotesWaitlist(t *testing.T) {
	minter := &stubMinter{code: "NL-TESTCODE0000AAAA"}
	m := NewMachine(minter,
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		WithSlotSource(func(day, window string) []models.SlotOption { return nil }),
	)
	s := freshSession()

	s, prompt := m.Advance(s, models.InterpretedTurn{
		Intent: models.IntentBookNew, Topic: "KYC/Onboarding", Day: "tomorrow", TimeWindow: "evening",
		Raw: "book KYC tomorrow evening",
	})
	if !strings.Contains(prompt, "waitlist") || !strings.Contains(prompt, "KYC/Onboarding") {
		t.Errorf("expected waitlist reply naming the topic, got %q", prompt)
	}
	if s.State != models.StateCollectTime {
		t.Errorf("expected time re-collection, got %s", s.State)
	}
	if s.Slots.TimeWindow != "" {
		t.Error("expected time window cleared so an alternative can be tried")
	}
	if minter.calls != 0 {
		t.Errorf("expected no booking code for a waitlisted request, minted %d", minter.calls)
	}
}
