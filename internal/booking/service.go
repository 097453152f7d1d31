// Package booking orchestrates the appointment flow: it serializes turns
// per session, runs interpretation and the dialogue machine, accepts
// secure contact details, and triggers the one-time dispatch.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/NovaLine/SlotLine/internal/dialog"
	"github.com/NovaLine/SlotLine/internal/dispatch"
	"github.com/NovaLine/SlotLine/internal/interpret"
	"github.com/NovaLine/SlotLine/internal/models"
	"github.com/NovaLine/SlotLine/internal/notify"
	"github.com/NovaLine/SlotLine/internal/store"
	"github.com/NovaLine/SlotLine/internal/util"
)

// Contact detail bounds for the secure details form.
const (
	MaxPhoneLength = 20
	MaxNotesLength = 1000
)

// Session retention defaults for the TTL janitor.
const (
	DefaultSessionTTL      = 30 * time.Minute
	DefaultDispatchedTTL   = 24 * time.Hour
	DefaultJanitorInterval = 5 * time.Minute
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// TurnReply is the outcome of one dialogue turn.
type TurnReply struct {
	SessionID string              `json:"session_id"`
	State     models.SessionState `json:"state"`
	Reply     string              `json:"reply_text"`
}

// Opts holds configuration options for the booking service.
type Opts struct {
	SecureLinkBase  string
	SessionTTL      time.Duration
	DispatchedTTL   time.Duration
	JanitorInterval time.Duration
	Notifier        notify.Notifier
	Clock           func() time.Time
}

// Option defines a configuration option for the booking service.
type Option func(*Opts)

// WithSecureLinkBase overrides the secure details page base URL.
func WithSecureLinkBase(base string) Option {
	return func(o *Opts) { o.SecureLinkBase = base }
}

// WithSessionTTL sets how long an idle, undispatched session survives.
func WithSessionTTL(d time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = d }
}

// WithDispatchedTTL sets how long a dispatched session row is retained.
func WithDispatchedTTL(d time.Duration) Option {
	return func(o *Opts) { o.DispatchedTTL = d }
}

// WithJanitorInterval sets the sweep interval of the session janitor.
func WithJanitorInterval(d time.Duration) Option {
	return func(o *Opts) { o.JanitorInterval = d }
}

// WithNotifier sets the out-of-band confirmation notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithClock overrides the service's time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

// Service ties the interpreter, dialogue machine, store and dispatcher
// together. All session mutation goes through it.
type Service struct {
	store      store.Store
	interp     interpret.Interpreter
	machine    *dialog.Machine
	dispatcher *dispatch.Dispatcher
	notifier   notify.Notifier

	secureBase      string
	sessionTTL      time.Duration
	dispatchedTTL   time.Duration
	janitorInterval time.Duration
	now             func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates the booking service. Booking codes are minted against
// the store so a code can never collide with a live session or a past
// booking.
func NewService(st store.Store, interp interpret.Interpreter, dispatcher *dispatch.Dispatcher, opts ...Option) *Service {
	cfg := Opts{
		SecureLinkBase:  dialog.DefaultSecureLinkBase,
		SessionTTL:      DefaultSessionTTL,
		DispatchedTTL:   DefaultDispatchedTTL,
		JanitorInterval: DefaultJanitorInterval,
		Clock:           time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	taken := func(code string) bool {
		if s, _ := st.FindSessionByBookingCode(code); s != nil {
			return true
		}
		b, _ := st.GetBooking(code)
		return b != nil
	}
	machine := dialog.NewMachine(dialog.NewCodeIssuer(taken),
		dialog.WithSecureLinkBase(cfg.SecureLinkBase),
		dialog.WithClock(cfg.Clock),
	)

	return &Service{
		store:           st,
		interp:          interp,
		machine:         machine,
		dispatcher:      dispatcher,
		notifier:        cfg.Notifier,
		secureBase:      cfg.SecureLinkBase,
		sessionTTL:      cfg.SessionTTL,
		dispatchedTTL:   cfg.DispatchedTTL,
		janitorInterval: cfg.JanitorInterval,
		now:             cfg.Clock,
	}
}

// lockFor returns the per-session mutex, creating it on first use. Turns
// for one session are fully serialized; different sessions proceed in
// parallel.
func (s *Service) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// acquireSession locks the per-session mutex and returns it. The janitor
// may prune a registry entry between lookup and Lock; holding a mutex the
// registry no longer maps to would let a second caller proceed in parallel
// on a fresh one, so the acquisition is retried until the locked mutex is
// still the registered one.
func (s *Service) acquireSession(id string) *sync.Mutex {
	for {
		l := s.lockFor(id)
		l.Lock()
		s.mu.Lock()
		current := s.locks[id]
		s.mu.Unlock()
		if current == l {
			return l
		}
		l.Unlock()
	}
}

// Turn processes one utterance for a session. An empty sessionID starts a
// new conversation. Guard rails run before interpretation: PII is
// deflected to the secure page and advice requests are refused, neither
// touching dialogue state.
func (s *Service) Turn(ctx context.Context, sessionID, text string) (TurnReply, error) {
	if sessionID == "" {
		sessionID = util.GenerateSessionID()
	}
	lock := s.acquireSession(sessionID)
	defer lock.Unlock()

	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return TurnReply{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	current := models.NewSession(sessionID, s.now())
	if sess != nil {
		current = *sess
	}

	text = strings.TrimSpace(text)
	reply, err := s.replyFor(ctx, &current, text)
	if err != nil {
		return TurnReply{}, err
	}
	if err := s.store.SaveSession(current); err != nil {
		return TurnReply{}, fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return TurnReply{SessionID: current.ID, State: current.State, Reply: reply}, nil
}

func (s *Service) replyFor(ctx context.Context, current *models.Session, text string) (string, error) {
	current.UpdatedAt = s.now()

	// First contact: the disclaimer greeting always opens the call.
	if !current.Greeted {
		current.Greeted = true
		if text == "" {
			return dialog.PromptGreeting, nil
		}
	} else if text == "" {
		return dialog.PromptDidntCatch, nil
	}

	if dialog.ContainsPII(text) {
		link := s.secureBase
		if current.BookingCode != "" {
			link = s.machine.SecureLink(current.BookingCode)
		}
		slog.Info("Service.Turn: PII detected, deflecting", "sessionID", current.ID)
		return dialog.PromptPIIDeflect(link), nil
	}
	if dialog.IsAdviceSeeking(text) {
		slog.Info("Service.Turn: advice request refused", "sessionID", current.ID)
		return dialog.PromptAdviceRefusal, nil
	}

	turn, err := s.interp.Interpret(ctx, text, current.State)
	if err != nil {
		// The interpreter degrades internally; an error here means even the
		// fallback was unusable.
		slog.Error("Service.Turn: interpretation failed", "sessionID", current.ID, "error", err)
		return dialog.PromptDidntCatch, nil
	}

	next, reply := s.machine.Advance(*current, turn)
	*current = next
	return reply, nil
}

// SubmitDetails accepts contact details from the secure page, finalizes the
// booking and dispatches the downstream actions exactly once. Repeated
// submissions for an already dispatched booking replay the recorded action
// log without re-invoking anything.
func (s *Service) SubmitDetails(ctx context.Context, code, email, phone, notes string) (*models.BookingRecord, []models.ActionRecord, error) {
	sess, err := s.store.FindSessionByBookingCode(code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up booking code: %w", err)
	}
	if sess == nil {
		return nil, nil, models.ErrUnknownBookingCode
	}

	lock := s.acquireSession(sess.ID)
	defer lock.Unlock()

	// Re-read under the lock; a concurrent submission may have advanced it.
	sess, err = s.store.GetSession(sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil || sess.BookingCode != code {
		return nil, nil, models.ErrUnknownBookingCode
	}

	if sess.State == models.StateDetailsReceived || sess.State == models.StateDispatched {
		return s.replayDispatch(ctx, *sess)
	}
	if !sess.State.AcceptsDetails() {
		return nil, nil, models.ErrStateConflict
	}
	if sess.Slots.Chosen == nil {
		return nil, nil, models.ErrStateConflict
	}
	if !emailPattern.MatchString(email) {
		return nil, nil, models.ErrInvalidEmail
	}
	if len(phone) > MaxPhoneLength {
		return nil, nil, models.ErrPhoneTooLong
	}
	if len(notes) > MaxNotesLength {
		return nil, nil, models.ErrNotesTooLong
	}

	rec := models.BookingRecord{
		BookingCode: code,
		Topic:       sess.Slots.Topic,
		Slot:        *sess.Slots.Chosen,
		Email:       email,
		Phone:       strings.TrimSpace(phone),
		Notes:       strings.TrimSpace(notes),
		CreatedAt:   s.now(),
	}
	if err := s.store.SaveBooking(rec); err != nil {
		return nil, nil, fmt.Errorf("failed to save booking %s: %w", code, err)
	}
	sess.State = models.StateDetailsReceived
	sess.UpdatedAt = s.now()
	if err := s.store.SaveSession(*sess); err != nil {
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}

	entries, err := s.dispatcher.DispatchOnce(ctx, rec)
	if err != nil {
		// The session stays in DETAILS_RECEIVED; the next submission retries.
		return nil, nil, fmt.Errorf("failed to dispatch booking %s: %w", code, err)
	}

	sess.State = models.StateDispatched
	sess.UpdatedAt = s.now()
	if err := s.store.SaveSession(*sess); err != nil {
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}
	slog.Info("Service.SubmitDetails: booking dispatched", "bookingCode", code, "sessionID", sess.ID)

	if s.notifier != nil {
		go func(rec models.BookingRecord) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.notifier.BookingConfirmed(ctx, rec); err != nil {
				slog.Warn("Service.SubmitDetails: confirmation notification failed",
					"bookingCode", rec.BookingCode, "error", err)
			}
		}(rec)
	}
	return &rec, entries, nil
}

// replayDispatch serves repeat submissions. If the prior attempt saved the
// booking but crashed before dispatching, the dispatch is completed here;
// otherwise the recorded outcomes are returned untouched.
func (s *Service) replayDispatch(ctx context.Context, sess models.Session) (*models.BookingRecord, []models.ActionRecord, error) {
	rec, err := s.store.GetBooking(sess.BookingCode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load booking %s: %w", sess.BookingCode, err)
	}
	if rec == nil {
		return nil, nil, models.ErrUnknownBookingCode
	}
	entries, err := s.dispatcher.DispatchOnce(ctx, *rec)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dispatch booking %s: %w", sess.BookingCode, err)
	}
	if sess.State != models.StateDispatched {
		sess.State = models.StateDispatched
		sess.UpdatedAt = s.now()
		if err := s.store.SaveSession(sess); err != nil {
			return nil, nil, fmt.Errorf("failed to save session: %w", err)
		}
	}
	slog.Debug("Service.SubmitDetails: replayed dispatched booking", "bookingCode", sess.BookingCode)
	return rec, entries, nil
}

// Booking returns the stored booking and its action log for a code.
func (s *Service) Booking(code string) (*models.BookingRecord, []models.ActionRecord, error) {
	rec, err := s.store.GetBooking(code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load booking %s: %w", code, err)
	}
	if rec == nil {
		return nil, nil, models.ErrUnknownBookingCode
	}
	entries, err := s.store.GetActionLog(code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load action log %s: %w", code, err)
	}
	return rec, entries, nil
}

// RunJanitor sweeps idle sessions until the context is cancelled. Intended
// to run as a background goroutine.
func (s *Service) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()
	slog.Debug("Service.RunJanitor: janitor started",
		"interval", s.janitorInterval, "sessionTTL", s.sessionTTL, "dispatchedTTL", s.dispatchedTTL)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Service.RunJanitor: janitor stopped")
			return
		case <-ticker.C:
			now := s.now()
			purged, err := s.store.PurgeIdleSessions(now.Add(-s.sessionTTL), now.Add(-s.dispatchedTTL))
			if err != nil {
				slog.Error("Service.RunJanitor: purge failed", "error", err)
				continue
			}
			if purged > 0 {
				slog.Info("Service.RunJanitor: purged idle sessions", "count", purged)
				s.releaseLocks()
			}
		}
	}
}

// releaseLocks drops per-session mutexes whose sessions no longer exist,
// keeping the lock registry from growing unboundedly.
func (s *Service) releaseLocks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range s.locks {
		if !l.TryLock() {
			continue
		}
		sess, err := s.store.GetSession(id)
		l.Unlock()
		if err == nil && sess == nil {
			delete(s.locks, id)
		}
	}
}
