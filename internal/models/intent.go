package models

// Intent classifies what the caller is trying to do on a given turn.
type Intent string

const (
	// IntentBookNew starts or continues booking a new appointment.
	IntentBookNew Intent = "book_new"
	// IntentReschedule moves an existing booking to a new slot.
	IntentReschedule Intent = "reschedule"
	// IntentCancel cancels the in-progress or an existing booking.
	IntentCancel Intent = "cancel"
	// IntentWhatToPrepare asks what to have ready for a topic.
	IntentWhatToPrepare Intent = "what_to_prepare"
	// IntentCheckAvailability previews candidate slots without booking.
	IntentCheckAvailability Intent = "check_availability"
	// IntentOther is anything the interpreter could not classify.
	IntentOther Intent = "other"
)

// InterpretedTurn is the interpreter adapter's best-effort reading of one
// raw utterance. Any field may be empty; the state machine must tolerate a
// turn that carries no usable value and degrade to a re-prompt.
type InterpretedTurn struct {
	Intent      Intent `json:"intent"`
	Topic       string `json:"topic,omitempty"`
	Day         string `json:"day_preference,omitempty"`
	TimeWindow  string `json:"time_preference,omitempty"`
	BookingCode string `json:"booking_code,omitempty"`
	Raw         string `json:"-"`
}
