package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/NovaLine/SlotLine/internal/models"
)

// maxVoiceUpload bounds the multipart voice-turn request body.
const maxVoiceUpload = 10 << 20 // 10 MiB

// turnRequest is the body of POST /api/turn.
type turnRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
}

// detailsRequest is the body of POST /api/secure-details.
type detailsRequest struct {
	BookingCode string `json:"booking_code"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// bookingResult is the response payload for details submission. It echoes
// the full record back to the submitter only.
type bookingResult struct {
	Booking *models.BookingRecord `json:"booking"`
	Actions []models.ActionRecord `json:"actions"`
}

// bookingSummary is the view served by the lookup endpoint. Phone and notes
// never leave the service; only the contact email is echoed.
type bookingSummary struct {
	BookingCode string                `json:"booking_code"`
	Topic       string                `json:"topic"`
	Slot        models.SlotOption     `json:"slot"`
	Email       string                `json:"email"`
	CreatedAt   time.Time             `json:"created_at"`
	Actions     []models.ActionRecord `json:"actions"`
}

// voiceTurnResult pairs the transcript with the resulting dialogue turn.
type voiceTurnResult struct {
	Transcript string      `json:"transcript"`
	Turn       interface{} `json:"turn"`
}

// turnHandler handles POST /api/turn.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	reply, err := s.svc.Turn(r.Context(), req.SessionID, req.Text)
	if err != nil {
		slog.Error("Server.turnHandler: turn failed", "sessionID", req.SessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

// voiceTurnHandler handles POST /api/voice-turn. The multipart form carries
// an "audio" file and an optional "session_id" field; the audio is
// transcribed and then processed as a regular turn.
func (s *Server) voiceTurnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.transcriber == nil {
		writeJSONResponse(w, http.StatusNotImplemented, models.Error("Voice turns are not enabled"))
		return
	}
	if err := r.ParseMultipartForm(maxVoiceUpload); err != nil {
		slog.Warn("Server.voiceTurnHandler: failed to parse multipart form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing audio file"))
		return
	}
	defer file.Close()

	text, err := s.transcriber.Transcribe(r.Context(), file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		slog.Error("Server.voiceTurnHandler: transcription failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to transcribe audio"))
		return
	}

	reply, err := s.svc.Turn(r.Context(), r.FormValue("session_id"), text)
	if err != nil {
		slog.Error("Server.voiceTurnHandler: turn failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(voiceTurnResult{Transcript: text, Turn: reply}))
}

// secureDetailsHandler handles POST /api/secure-details.
func (s *Server) secureDetailsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req detailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.secureDetailsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.BookingCode == "" || req.Email == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("booking_code and email are required"))
		return
	}

	rec, actions, err := s.svc.SubmitDetails(r.Context(), strings.ToUpper(strings.TrimSpace(req.BookingCode)), req.Email, req.Phone, req.Notes)
	if err != nil {
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(
		"Details received. Your booking is confirmed.",
		bookingResult{Booking: rec, Actions: actions},
	))
}

// bookingHandler handles GET /api/bookings/{code}.
func (s *Server) bookingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	code := strings.TrimPrefix(r.URL.Path, "/api/bookings/")
	if code == "" || strings.Contains(code, "/") {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Booking code required"))
		return
	}

	rec, actions, err := s.svc.Booking(strings.ToUpper(code))
	if err != nil {
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(bookingSummary{
		BookingCode: rec.BookingCode,
		Topic:       rec.Topic,
		Slot:        rec.Slot,
		Email:       rec.Email,
		CreatedAt:   rec.CreatedAt,
		Actions:     actions,
	}))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// statusForError maps service errors onto HTTP status codes. Validation
// failures are 400, unknown codes 404, wrong-state submissions 409.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrUnknownBookingCode):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidEmail),
		errors.Is(err, models.ErrPhoneTooLong),
		errors.Is(err, models.ErrNotesTooLong):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrStateConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
