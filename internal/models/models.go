// Package models defines the core data structures for SlotLine.
//
// It includes the booking slot model, dialogue session types, booking
// records, and the per-action dispatch results shared across modules.
package models

import "time"

// SlotOption represents one concrete, offerable appointment slot.
type SlotOption struct {
	SlotID string `json:"slot_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// Slots holds the accumulating booking fields collected over the dialogue.
// Offered is populated only once Topic, Day and TimeWindow are all known;
// Chosen is always drawn from Offered.
type Slots struct {
	Topic      string       `json:"topic,omitempty"`
	Day        string       `json:"day,omitempty"`
	TimeWindow string       `json:"time_window,omitempty"`
	Offered    []SlotOption `json:"offered_slots,omitempty"`
	Chosen     *SlotOption  `json:"chosen_slot,omitempty"`
}

// SlotUpdate is a partial update merged into Slots. Empty fields are
// ignored; ChooseSlotID selects one of the currently offered slots by ID.
type SlotUpdate struct {
	Topic        string
	Day          string
	TimeWindow   string
	Offered      []SlotOption
	ChooseSlotID string
}

// Apply merges the non-empty fields of the update into a copy of the slot
// model. Choosing a slot that is not among the offered candidates fails
// with ErrInvalidSelection and leaves the model unchanged.
func (s Slots) Apply(u SlotUpdate) (Slots, error) {
	out := s
	if u.Topic != "" {
		out.Topic = u.Topic
	}
	if u.Day != "" {
		out.Day = u.Day
	}
	if u.TimeWindow != "" {
		out.TimeWindow = u.TimeWindow
	}
	if u.Offered != nil {
		out.Offered = u.Offered
	}
	if u.ChooseSlotID != "" {
		var match *SlotOption
		for i := range out.Offered {
			if out.Offered[i].SlotID == u.ChooseSlotID {
				match = &out.Offered[i]
				break
			}
		}
		if match == nil {
			return s, ErrInvalidSelection
		}
		chosen := *match
		out.Chosen = &chosen
	}
	return out, nil
}

// PreferencesComplete reports whether topic, day and time window are all set.
func (s Slots) PreferencesComplete() bool {
	return s.Topic != "" && s.Day != "" && s.TimeWindow != ""
}

// BookingRecord is the immutable, read-only view of a finished booking used
// for dispatch. It exists only once secure details have been received.
type BookingRecord struct {
	BookingCode string     `json:"booking_code"`
	Topic       string     `json:"topic"`
	Slot        SlotOption `json:"slot"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ActionType identifies one of the three external side effects.
type ActionType string

const (
	// ActionSheetAppend appends a tracking row to the pre-bookings sheet.
	ActionSheetAppend ActionType = "sheet_append"
	// ActionCalendarHold creates a tentative calendar hold.
	ActionCalendarHold ActionType = "calendar_hold"
	// ActionEmailDraft drafts the advisor notification email.
	ActionEmailDraft ActionType = "email_draft"
)

// ActionStatus represents the outcome of one side-effect attempt.
type ActionStatus string

const (
	// ActionStatusOK indicates the side effect succeeded.
	ActionStatusOK ActionStatus = "ok"
	// ActionStatusFailed indicates the side effect failed.
	ActionStatusFailed ActionStatus = "failed"
)

// ActionRecord captures the outcome of one side-effect attempt. Exactly one
// set of three records exists per booking code once dispatch has run.
type ActionRecord struct {
	Action ActionType   `json:"action"`
	Status ActionStatus `json:"status"`
	Result string       `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: "ok", Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
