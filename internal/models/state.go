// Package models defines dialogue session state structures for SlotLine.
package models

import "time"

// SessionState enumerates the dialogue states. Sessions move through them
// monotonically; the only regression is an explicit cancel or restart.
type SessionState string

const (
	// StateCollectTopic is waiting for the appointment topic.
	StateCollectTopic SessionState = "COLLECT_TOPIC"
	// StateCollectDay is waiting for the requested day.
	StateCollectDay SessionState = "COLLECT_DAY"
	// StateCollectTime is waiting for a morning/afternoon/evening preference.
	StateCollectTime SessionState = "COLLECT_TIME"
	// StateAwaitSlotChoice is waiting for the caller to pick one of the two offered slots.
	StateAwaitSlotChoice SessionState = "AWAIT_SLOT_CHOICE"
	// StateAwaitConfirm is waiting for a yes/no on the chosen slot.
	StateAwaitConfirm SessionState = "AWAIT_CONFIRM"
	// StateConfirmed means a booking code has been minted. The state is
	// momentary: the secure link is issued in the same turn, moving the
	// session straight to StateDetailsPending.
	StateConfirmed SessionState = "CONFIRMED"
	// StateDetailsPending is waiting for out-of-band secure details.
	StateDetailsPending SessionState = "DETAILS_PENDING"
	// StateDetailsReceived means contact details arrived and dispatch may run.
	StateDetailsReceived SessionState = "DETAILS_RECEIVED"
	// StateDispatched is terminal: all side effects were attempted.
	StateDispatched SessionState = "DISPATCHED"
)

// Terminal reports whether no further dialogue transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateDispatched
}

// AcceptsDetails reports whether secure details may be submitted in this state.
func (s SessionState) AcceptsDetails() bool {
	return s == StateConfirmed || s == StateDetailsPending
}

// Session is one conversation's dialogue state. Records are owned by the
// session store and mutate only through state machine transition results.
type Session struct {
	ID            string       `json:"session_id"`
	State         SessionState `json:"state"`
	Slots         Slots        `json:"slots"`
	BookingCode   string       `json:"booking_code,omitempty"`
	PendingIntent Intent       `json:"pending_intent,omitempty"`
	PendingCode   string       `json:"pending_code,omitempty"`
	Greeted       bool         `json:"greeted"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NewSession creates a fresh session in the initial collection state.
func NewSession(id string, now time.Time) Session {
	return Session{
		ID:        id,
		State:     StateCollectTopic,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
