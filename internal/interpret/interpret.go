// Package interpret turns raw visitor text into a structured intent and
// preference fields using the OpenAI API, with a keyword parser as an
// offline fallback.
package interpret

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/NovaLine/SlotLine/internal/dialog"
	"github.com/NovaLine/SlotLine/internal/models"
)

// Interpreter extracts an intent and preference fields from one visitor turn.
type Interpreter interface {
	Interpret(ctx context.Context, raw string, state models.SessionState) (models.InterpretedTurn, error)
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the OpenAI interpreter.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for the OpenAI interpreter.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly instead of reading the
// OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model used for interpretation.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// OpenAIInterpreter asks a chat model for strict-JSON intent extraction and
// degrades to the keyword parser when the API is unavailable or returns
// something unusable. Interpret never fails the turn.
type OpenAIInterpreter struct {
	chat     chatService
	model    openai.ChatModel
	fallback KeywordInterpreter
}

// NewOpenAIInterpreter creates an interpreter backed by the OpenAI API.
func NewOpenAIInterpreter(opts ...Option) (*OpenAIInterpreter, error) {
	cfg := Opts{Model: openai.ChatModelGPT4oMini}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &OpenAIInterpreter{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

const interpretSystemPrompt = `Return STRICT JSON only (no markdown, no code fences).

Allowed intents:
book_new, reschedule, cancel, what_to_prepare, check_availability, other

Keys (always include):
intent, topic, day_preference, time_preference, booking_code`

// Interpret extracts intent and preference fields from one turn of text.
func (i *OpenAIInterpreter) Interpret(ctx context.Context, raw string, state models.SessionState) (models.InterpretedTurn, error) {
	userPrompt := fmt.Sprintf("Allowed topics (must match exactly if present):\n%s\n\nUser said:\n%s",
		strings.Join(dialog.Topics, ", "), raw)

	resp, err := i.chat.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(interpretSystemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model: i.model,
	})
	if err != nil {
		slog.Warn("OpenAIInterpreter.Interpret: chat completion failed, using keyword fallback", "error", err)
		return i.fallback.Interpret(ctx, raw, state)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAIInterpreter.Interpret: no choices returned, using keyword fallback")
		return i.fallback.Interpret(ctx, raw, state)
	}

	turn, ok := decodeTurn(resp.Choices[0].Message.Content)
	if !ok {
		slog.Warn("OpenAIInterpreter.Interpret: unparseable model output, using keyword fallback")
		return i.fallback.Interpret(ctx, raw, state)
	}
	return normalizeTurn(turn, raw), nil
}

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// decodeTurn pulls the first {...} object out of the model output. Handles
// fenced output and surrounding prose.
func decodeTurn(text string) (models.InterpretedTurn, bool) {
	var turn models.InterpretedTurn
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return turn, false
	}
	if err := json.Unmarshal([]byte(match), &turn); err != nil {
		return turn, false
	}
	return turn, true
}

// normalizeTurn canonicalizes the extracted fields so downstream code only
// ever sees catalog topics, normalized time windows and well-formed codes.
func normalizeTurn(turn models.InterpretedTurn, raw string) models.InterpretedTurn {
	turn.Raw = raw
	if canonical, ok := dialog.CanonicalTopic(turn.Topic); ok {
		turn.Topic = canonical
	} else {
		turn.Topic = ""
	}
	turn.Day = strings.ToLower(strings.TrimSpace(turn.Day))
	turn.TimeWindow = dialog.NormalizeTimeWindow(turn.TimeWindow)
	if turn.BookingCode == "" {
		turn.BookingCode = dialog.ExtractBookingCode(raw)
	}
	switch turn.Intent {
	case models.IntentBookNew, models.IntentReschedule, models.IntentCancel,
		models.IntentWhatToPrepare, models.IntentCheckAvailability:
	default:
		turn.Intent = models.IntentOther
	}
	return turn
}
