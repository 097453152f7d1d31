package dialog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/NovaLine/SlotLine/internal/models"
)

// DefaultSecureLinkBase is where the secure details page is served in the demo.
const DefaultSecureLinkBase = "http://localhost:5173/secure"

// Machine advances dialogue sessions. Advance is a pure function of
// (session, interpreted turn) apart from booking-code minting, which is
// injected via CodeMinter so the store can enforce uniqueness.
type Machine struct {
	codes      CodeMinter
	secureBase string
	now        func() time.Time
	slots      func(day, window string) []models.SlotOption
}

// Opts holds configuration options for the dialogue machine.
type Opts struct {
	SecureLinkBase string
	Clock          func() time.Time
	SlotSource     func(day, window string) []models.SlotOption
}

// Option defines a configuration option for the dialogue machine.
type Option func(*Opts)

// WithSecureLinkBase overrides the base URL embedded in secure-link prompts.
func WithSecureLinkBase(base string) Option {
	return func(o *Opts) { o.SecureLinkBase = base }
}

// WithClock overrides the machine's time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

// WithSlotSource overrides the slot inventory lookup (for tests).
func WithSlotSource(slots func(day, window string) []models.SlotOption) Option {
	return func(o *Opts) { o.SlotSource = slots }
}

// NewMachine creates a dialogue machine using the given booking-code minter.
func NewMachine(codes CodeMinter, opts ...Option) *Machine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SecureLinkBase == "" {
		cfg.SecureLinkBase = DefaultSecureLinkBase
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SlotSource == nil {
		cfg.SlotSource = OfferSlots
	}
	return &Machine{codes: codes, secureBase: cfg.SecureLinkBase, now: cfg.Clock, slots: cfg.SlotSource}
}

// SecureLink builds the secure details URL for a booking code.
func (m *Machine) SecureLink(code string) string {
	return fmt.Sprintf("%s?code=%s", m.secureBase, code)
}

// Advance applies one interpreted turn to a session and returns the updated
// session together with the prompt to speak. Unrecognized input never
// advances state; it re-prompts for the same value. An explicit cancel
// resets any non-terminal session to topic collection with slots cleared.
func (m *Machine) Advance(s models.Session, turn models.InterpretedTurn) (models.Session, string) {
	s.UpdatedAt = m.now()

	if s.State.Terminal() {
		return s, PromptAlreadyBooked
	}

	// Cross-cutting transitions first: they apply from every non-terminal state.
	switch turn.Intent {
	case models.IntentCancel:
		code := turn.BookingCode
		if code == "" {
			code = s.BookingCode
		}
		s = resetToTopic(s)
		return s, PromptCancelled(code)

	case models.IntentReschedule:
		if turn.BookingCode == "" {
			s.PendingIntent = models.IntentReschedule
			return s, PromptAskCode
		}
		s = resetToTopic(s)
		s.PendingCode = turn.BookingCode
		return s, PromptRescheduleAck(turn.BookingCode)

	case models.IntentWhatToPrepare:
		topic := turn.Topic
		if topic == "" {
			topic = s.Slots.Topic
		}
		return s, PromptPrepGuide(topic)

	case models.IntentCheckAvailability:
		if !bookingStarted(s) {
			return s, m.availabilityReply(turn)
		}
		// Mid-booking the caller is really continuing the flow.
	}

	// A quoted code resolves a pending reschedule even when the interpreter
	// classified the bare-code turn as something else.
	if s.PendingIntent == models.IntentReschedule && turn.BookingCode != "" {
		code := turn.BookingCode
		s = resetToTopic(s)
		s.PendingCode = code
		return s, PromptRescheduleAck(code)
	}

	switch s.State {
	case models.StateCollectTopic, models.StateCollectDay, models.StateCollectTime:
		return m.advanceCollect(s, turn)
	case models.StateAwaitSlotChoice:
		return m.advanceSlotChoice(s, turn)
	case models.StateAwaitConfirm:
		return m.advanceConfirm(s, turn)
	case models.StateConfirmed, models.StateDetailsPending:
		return s, PromptAwaitingDetails(m.SecureLink(s.BookingCode))
	case models.StateDetailsReceived:
		return s, PromptProcessing
	default:
		slog.Warn("Machine.Advance: unknown session state", "sessionID", s.ID, "state", s.State)
		return s, PromptMenu
	}
}

// advanceCollect merges any extracted preferences and asks for the next
// missing one. A single turn may fill several fields at once ("book KYC
// tomorrow morning"), jumping straight to the slot offer.
func (m *Machine) advanceCollect(s models.Session, turn models.InterpretedTurn) (models.Session, string) {
	update := models.SlotUpdate{Day: turn.Day}
	if canonical, ok := CanonicalTopic(turn.Topic); ok {
		update.Topic = canonical
	}
	update.TimeWindow = NormalizeTimeWindow(turn.TimeWindow)

	merged, err := s.Slots.Apply(update)
	if err != nil {
		// Apply cannot fail without a slot choice; keep the session intact regardless.
		slog.Error("Machine.advanceCollect: slot merge failed", "sessionID", s.ID, "error", err)
		return s, PromptAskTopic()
	}
	s.Slots = merged

	switch {
	case s.Slots.Topic == "":
		s.State = models.StateCollectTopic
		return s, PromptAskTopic()
	case s.Slots.Day == "":
		s.State = models.StateCollectDay
		return s, PromptAskDay
	case s.Slots.TimeWindow == "":
		s.State = models.StateCollectTime
		return s, PromptAskTime()
	}

	offered := m.slots(s.Slots.Day, s.Slots.TimeWindow)
	if len(offered) < 2 {
		// No matching slot pair: note a waitlist request and re-collect the
		// time preference so an alternative window can be tried.
		s.Slots.TimeWindow = ""
		s.State = models.StateCollectTime
		return s, PromptWaitlist(s.Slots.Topic)
	}
	s.Slots, err = s.Slots.Apply(models.SlotUpdate{Offered: offered})
	if err != nil {
		slog.Error("Machine.advanceCollect: offering slots failed", "sessionID", s.ID, "error", err)
		return s, PromptAskTime()
	}
	s.State = models.StateAwaitSlotChoice
	slog.Debug("Machine.advanceCollect: offering slots", "sessionID", s.ID,
		"topic", s.Slots.Topic, "day", s.Slots.Day, "window", s.Slots.TimeWindow)
	return s, PromptOfferSlots(s.Slots.Offered)
}

// advanceSlotChoice resolves the caller's pick of the two offered slots.
func (m *Machine) advanceSlotChoice(s models.Session, turn models.InterpretedTurn) (models.Session, string) {
	slotID, ok := ParseSlotChoice(turn.Raw, s.Slots.Offered)
	if !ok {
		// Unrecognized choice: re-offer the same two options verbatim.
		return s, PromptOfferSlots(s.Slots.Offered)
	}
	merged, err := s.Slots.Apply(models.SlotUpdate{ChooseSlotID: slotID})
	if err != nil {
		slog.Warn("Machine.advanceSlotChoice: invalid selection", "sessionID", s.ID, "slotID", slotID, "error", err)
		return s, PromptOfferSlots(s.Slots.Offered)
	}
	s.Slots = merged
	s.State = models.StateAwaitConfirm
	return s, PromptConfirm(s.Slots.Topic, *s.Slots.Chosen)
}

// advanceConfirm handles the final yes/no. An affirmative mints the booking
// code and issues the secure link; a negative re-offers the two slots.
func (m *Machine) advanceConfirm(s models.Session, turn models.InterpretedTurn) (models.Session, string) {
	yes, ok := ParseYesNo(turn.Raw)
	if !ok {
		return s, PromptYesNo
	}
	if !yes {
		s.Slots.Chosen = nil
		s.State = models.StateAwaitSlotChoice
		return s, "No problem. " + PromptOfferSlots(s.Slots.Offered)
	}

	code, err := m.codes.Mint()
	if err != nil {
		slog.Error("Machine.advanceConfirm: minting booking code failed", "sessionID", s.ID, "error", err)
		return s, "Something went wrong on my side. " + PromptYesNo
	}
	s.BookingCode = code
	s.State = models.StateDetailsPending
	slog.Info("Machine.advanceConfirm: booking confirmed", "sessionID", s.ID,
		"bookingCode", code, "slotID", s.Slots.Chosen.SlotID, "topic", s.Slots.Topic)
	return s, PromptSecureLink(code, m.SecureLink(code), s.Slots.Topic, *s.Slots.Chosen)
}

// availabilityReply previews slots for a fully specified query without
// touching the session's booking slots.
func (m *Machine) availabilityReply(turn models.InterpretedTurn) string {
	topic, ok := CanonicalTopic(turn.Topic)
	if !ok {
		return PromptAskTopic()
	}
	if turn.Day == "" {
		return "What day should I check for? For example tomorrow or Friday."
	}
	window := NormalizeTimeWindow(turn.TimeWindow)
	if window == "" {
		return PromptAskTime()
	}
	return PromptAvailability(topic, m.slots(turn.Day, window))
}

// bookingStarted reports whether the session has begun collecting booking fields.
func bookingStarted(s models.Session) bool {
	return s.State != models.StateCollectTopic || s.Slots.Topic != ""
}

// resetToTopic clears all collected slots and returns the session to the
// initial collection state. The booking-code index entry, if any, is
// released by the caller that owns the store.
func resetToTopic(s models.Session) models.Session {
	s.Slots = models.Slots{}
	s.BookingCode = ""
	s.PendingIntent = ""
	s.PendingCode = ""
	s.State = models.StateCollectTopic
	return s
}
