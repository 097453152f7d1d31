package booking

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NovaLine/SlotLine/internal/dialog"
	"github.com/NovaLine/SlotLine/internal/dispatch"
	"github.com/NovaLine/SlotLine/internal/interpret"
	"github.com/NovaLine/SlotLine/internal/models"
	"github.com/NovaLine/SlotLine/internal/notify"
	"github.com/NovaLine/SlotLine/internal/store"
)

// countingCaps implements the three dispatch capabilities with call counters.
type countingCaps struct {
	sheet    atomic.Int64
	calendar atomic.Int64
	email    atomic.Int64
}

func (c *countingCaps) AppendBooking(_ context.Context, _ models.BookingRecord) (string, error) {
	c.sheet.Add(1)
	return "Sheet1!A2", nil
}

func (c *countingCaps) HoldSlot(_ context.Context, _ models.BookingRecord) (string, error) {
	c.calendar.Add(1)
	return "hold-1", nil
}

func (c *countingCaps) DraftConfirmation(_ context.Context, _ models.BookingRecord) (string, error) {
	c.email.Add(1)
	return "draft-1", nil
}

func (c *countingCaps) total() int64 {
	return c.sheet.Load() + c.calendar.Load() + c.email.Load()
}

func newTestService(t *testing.T, opts ...Option) (*Service, *store.InMemoryStore, *countingCaps) {
	t.Helper()
	st := store.NewInMemoryStore()
	caps := &countingCaps{}
	d := dispatch.NewDispatcher(st, dispatch.Capabilities{Sheet: caps, Calendar: caps, Email: caps})
	svc := NewService(st, interpret.KeywordInterpreter{}, d, opts...)
	return svc, st, caps
}

// say runs one turn and fails the test on error.
func say(t *testing.T, svc *Service, sessionID, text string) TurnReply {
	t.Helper()
	reply, err := svc.Turn(context.Background(), sessionID, text)
	if err != nil {
		t.Fatalf("Turn(%q) failed: %v", text, err)
	}
	return reply
}

func TestTurnOpensWithDisclaimerGreeting(t *testing.T) {
	svc, _, _ := newTestService(t)
	reply := say(t, svc, "", "")
	if reply.SessionID == "" {
		t.Error("expected a generated session ID")
	}
	if reply.State != models.StateCollectTopic {
		t.Errorf("expected initial state, got %s", reply.State)
	}
	if !strings.Contains(reply.Reply, "not investment advice") {
		t.Errorf("expected the disclaimer greeting, got %q", reply.Reply)
	}

	// The greeting plays once; a later empty turn is just a re-ask.
	second := say(t, svc, reply.SessionID, "")
	if second.Reply != dialog.PromptDidntCatch {
		t.Errorf("expected re-ask on empty turn, got %q", second.Reply)
	}
}

func TestHappyPathBookingFlow(t *testing.T) {
	svc, _, caps := newTestService(t)

	r := say(t, svc, "", "I want to book an appointment")
	id := r.SessionID
	if r.State != models.StateCollectTopic {
		t.Fatalf("expected topic collection, got %s", r.State)
	}

	r = say(t, svc, id, "KYC")
	if r.State != models.StateCollectDay {
		t.Fatalf("expected day collection after topic, got %s", r.State)
	}

	r = say(t, svc, id, "tomorrow")
	if r.State != models.StateCollectTime {
		t.Fatalf("expected time collection after day, got %s", r.State)
	}

	r = say(t, svc, id, "evening works")
	if r.State != models.StateAwaitSlotChoice {
		t.Fatalf("expected slot offer after time, got %s", r.State)
	}
	if !strings.Contains(r.Reply, "Option 1") || !strings.Contains(r.Reply, "Option 2") {
		t.Fatalf("expected two offered options, got %q", r.Reply)
	}

	r = say(t, svc, id, "option 1")
	if r.State != models.StateAwaitConfirm {
		t.Fatalf("expected confirmation after choice, got %s", r.State)
	}

	r = say(t, svc, id, "yes")
	if r.State != models.StateDetailsPending {
		t.Fatalf("expected details pending after confirm, got %s", r.State)
	}
	code := dialog.ExtractBookingCode(r.Reply)
	if code == "" {
		t.Fatalf("expected a booking code in the reply, got %q", r.Reply)
	}
	if !strings.Contains(r.Reply, "?code="+code) {
		t.Errorf("expected secure link carrying the code, got %q", r.Reply)
	}

	rec, entries, err := svc.SubmitDetails(context.Background(), code, "lee@example.com", "+919800000000", "prefers Hindi")
	if err != nil {
		t.Fatalf("SubmitDetails failed: %v", err)
	}
	if rec.Topic != "KYC/Onboarding" {
		t.Errorf("booking topic = %q, want KYC/Onboarding", rec.Topic)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 action entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Status != models.ActionStatusOK {
			t.Errorf("action %s status = %s, want ok", e.Action, e.Status)
		}
	}
	if caps.total() != 3 {
		t.Errorf("expected each capability invoked once, got %d total calls", caps.total())
	}

	// The session is terminal now; further turns get the fixed closing line.
	r = say(t, svc, id, "hello again")
	if r.State != models.StateDispatched {
		t.Errorf("expected dispatched state, got %s", r.State)
	}
	if r.Reply != dialog.PromptAlreadyBooked {
		t.Errorf("expected the closing line, got %q", r.Reply)
	}
}

func TestOneShotPreferencesSkipCollection(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := say(t, svc, "", "book KYC tomorrow evening")
	if r.State != models.StateAwaitSlotChoice {
		t.Errorf("expected one-shot jump to slot offer, got %s", r.State)
	}
}

func TestPIIDeflection(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := say(t, svc, "", "start")
	id := r.SessionID

	r = say(t, svc, id, "my number is 9876543210")
	if !strings.Contains(r.Reply, "secure link") {
		t.Errorf("expected PII deflection, got %q", r.Reply)
	}
	if r.State != models.StateCollectTopic {
		t.Errorf("PII turn must not advance state, got %s", r.State)
	}
}

func TestAdviceRefusal(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := say(t, svc, "", "should I buy this stock?")
	if r.Reply != dialog.PromptAdviceRefusal {
		t.Errorf("expected advice refusal, got %q", r.Reply)
	}
	if r.State != models.StateCollectTopic {
		t.Errorf("advice turn must not advance state, got %s", r.State)
	}
}

func TestUnrecognizedSlotChoiceReoffersVerbatim(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := say(t, svc, "", "book KYC tomorrow morning")
	id := r.SessionID
	offer := r.Reply

	r = say(t, svc, id, "neither of those")
	if r.State != models.StateAwaitSlotChoice {
		t.Errorf("unrecognized choice must not advance, got %s", r.State)
	}
	if r.Reply != offer {
		t.Errorf("re-offer must be byte-identical.\n got: %q\nwant: %q", r.Reply, offer)
	}
}

func TestCancelMidFlowResets(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := say(t, svc, "", "book KYC tomorrow morning")
	id := r.SessionID

	r = say(t, svc, id, "actually cancel that")
	if r.State != models.StateCollectTopic {
		t.Errorf("expected reset to topic collection, got %s", r.State)
	}

	// The flow restarts cleanly afterwards.
	r = say(t, svc, id, "SIP on friday")
	if r.State != models.StateCollectTime {
		t.Errorf("expected fresh collection to proceed, got %s", r.State)
	}
}

func TestSubmitDetailsUnknownCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.SubmitDetails(context.Background(), "NL-0000000000000000", "lee@example.com", "", "")
	if err != models.ErrUnknownBookingCode {
		t.Errorf("expected ErrUnknownBookingCode, got %v", err)
	}
}

func TestSubmitDetailsValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	code := bookThrough(t, svc)

	if _, _, err := svc.SubmitDetails(context.Background(), code, "not-an-email", "", ""); err != models.ErrInvalidEmail {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
	longPhone := strings.Repeat("9", MaxPhoneLength+1)
	if _, _, err := svc.SubmitDetails(context.Background(), code, "lee@example.com", longPhone, ""); err != models.ErrPhoneTooLong {
		t.Errorf("expected ErrPhoneTooLong, got %v", err)
	}
	longNotes := strings.Repeat("x", MaxNotesLength+1)
	if _, _, err := svc.SubmitDetails(context.Background(), code, "lee@example.com", "", longNotes); err != models.ErrNotesTooLong {
		t.Errorf("expected ErrNotesTooLong, got %v", err)
	}

	// A failed validation leaves the booking submittable.
	if _, _, err := svc.SubmitDetails(context.Background(), code, "lee@example.com", "", "fine"); err != nil {
		t.Errorf("expected valid submission to succeed, got %v", err)
	}
}

func TestSubmitDetailsIdempotentReplay(t *testing.T) {
	svc, _, caps := newTestService(t)
	code := bookThrough(t, svc)

	_, first, err := svc.SubmitDetails(context.Background(), code, "lee@example.com", "", "")
	if err != nil {
		t.Fatalf("first SubmitDetails failed: %v", err)
	}
	_, second, err := svc.SubmitDetails(context.Background(), code, "other@example.com", "", "different notes")
	if err != nil {
		t.Fatalf("second SubmitDetails failed: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("replay length mismatch: %d vs %d", len(second), len(first))
	}
	for i := range first {
		if second[i] != first[i] {
			t.Errorf("entry %d changed on replay: got %+v, want %+v", i, second[i], first[i])
		}
	}
	if caps.total() != 3 {
		t.Errorf("replay must not re-invoke capabilities, got %d total calls", caps.total())
	}
}

func TestSubmitDetailsBeforeConfirmation(t *testing.T) {
	svc, st, _ := newTestService(t)
	// A session that is mid-collection but somehow carries a code must not
	// accept details yet.
	sess := models.NewSession("s_wip", time.Now())
	sess.State = models.StateCollectDay
	sess.BookingCode = "NL-AAAABBBBCCCCDDDD"
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}
	_, _, err := svc.SubmitDetails(context.Background(), "NL-AAAABBBBCCCCDDDD", "lee@example.com", "", "")
	if err != models.ErrStateConflict {
		t.Errorf("expected ErrStateConflict, got %v", err)
	}
}

func TestBookingLookup(t *testing.T) {
	svc, _, _ := newTestService(t)
	code := bookThrough(t, svc)

	if _, _, err := svc.Booking(code); err != models.ErrUnknownBookingCode {
		t.Errorf("expected unknown before details submitted, got %v", err)
	}

	if _, _, err := svc.SubmitDetails(context.Background(), code, "lee@example.com", "", ""); err != nil {
		t.Fatalf("SubmitDetails failed: %v", err)
	}
	rec, entries, err := svc.Booking(code)
	if err != nil {
		t.Fatalf("Booking failed: %v", err)
	}
	if rec.BookingCode != code || len(entries) != 3 {
		t.Errorf("unexpected lookup result: %+v, %d entries", rec, len(entries))
	}
}

func TestConfirmationNotificationSent(t *testing.T) {
	mock := notify.NewMockNotifier()
	svc, _, _ := newTestService(t, WithNotifier(mock))
	code := bookThrough(t, svc)

	if _, _, err := svc.SubmitDetails(context.Background(), code, "lee@example.com", "+919800000000", ""); err != nil {
		t.Fatalf("SubmitDetails failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(mock.Confirmed()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := mock.Confirmed()
	if len(got) != 1 || got[0].BookingCode != code {
		t.Errorf("expected one confirmation notification, got %+v", got)
	}
}

// bookThrough drives a session to DETAILS_PENDING and returns its code.
func bookThrough(t *testing.T, svc *Service) string {
	t.Helper()
	r := say(t, svc, "", "book KYC tomorrow evening")
	r = say(t, svc, r.SessionID, "option 1")
	r = say(t, svc, r.SessionID, "yes")
	code := dialog.ExtractBookingCode(r.Reply)
	if code == "" {
		t.Fatalf("no booking code in %q", r.Reply)
	}
	return code
}

func TestAcquireSessionSurvivesLockPrune(t *testing.T) {
	svc, _, _ := newTestService(t)

	// A turn looks up the mutex, then the janitor prunes the entry before
	// the turn manages to lock it.
	orphan := svc.lockFor("s_race")
	svc.mu.Lock()
	delete(svc.locks, "s_race")
	svc.mu.Unlock()

	got := svc.acquireSession("s_race")
	defer got.Unlock()
	if got == orphan {
		t.Fatal("acquired the pruned mutex; a concurrent turn would not serialize against it")
	}
	svc.mu.Lock()
	current := svc.locks["s_race"]
	svc.mu.Unlock()
	if got != current {
		t.Error("acquired mutex is not the registered one")
	}
}

func TestReleaseLocksKeepsHeldSessions(t *testing.T) {
	svc, _, _ := newTestService(t)

	held := svc.acquireSession("s_busy")
	defer held.Unlock()
	svc.releaseLocks()

	svc.mu.Lock()
	current, ok := svc.locks["s_busy"]
	svc.mu.Unlock()
	if !ok || current != held {
		t.Error("expected the held lock to survive the janitor sweep")
	}
}
