package interpret

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/NovaLine/SlotLine/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp  openai.ChatCompletion
	err   error
	calls int
}

func (m *mockChatService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &m.resp, nil
}

func chatResponse(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestOpenAIInterpreterStrictJSON(t *testing.T) {
	mock := &mockChatService{resp: chatResponse(
		`{"intent":"book_new","topic":"KYC/Onboarding","day_preference":"tomorrow","time_preference":"evening","booking_code":""}`,
	)}
	interp := &OpenAIInterpreter{chat: mock, model: openai.ChatModelGPT4oMini}

	turn, err := interp.Interpret(context.Background(), "book KYC tomorrow evening", models.StateCollectTopic)
	if err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	if turn.Intent != models.IntentBookNew {
		t.Errorf("expected book_new, got %s", turn.Intent)
	}
	if turn.Topic != "KYC/Onboarding" || turn.Day != "tomorrow" || turn.TimeWindow != "evening" {
		t.Errorf("fields did not survive decoding: %+v", turn)
	}
	if turn.Raw != "book KYC tomorrow evening" {
		t.Errorf("expected raw text to be preserved, got %q", turn.Raw)
	}
}

func TestOpenAIInterpreterFencedOutput(t *testing.T) {
	mock := &mockChatService{resp: chatResponse(
		"```json\n{\"intent\":\"cancel\",\"topic\":\"\",\"day_preference\":\"\",\"time_preference\":\"\"}\n```",
	)}
	interp := &OpenAIInterpreter{chat: mock, model: openai.ChatModelGPT4oMini}

	turn, err := interp.Interpret(context.Background(), "cancel it", models.StateAwaitConfirm)
	if err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	if turn.Intent != models.IntentCancel {
		t.Errorf("expected cancel from fenced JSON, got %s", turn.Intent)
	}
}

func TestOpenAIInterpreterNonCatalogTopicDropped(t *testing.T) {
	mock := &mockChatService{resp: chatResponse(
		`{"intent":"book_new","topic":"Crypto Tips","day_preference":"","time_preference":""}`,
	)}
	interp := &OpenAIInterpreter{chat: mock, model: openai.ChatModelGPT4oMini}

	turn, err := interp.Interpret(context.Background(), "book crypto tips", models.StateCollectTopic)
	if err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	if turn.Topic != "" {
		t.Errorf("expected off-catalog topic to be dropped, got %q", turn.Topic)
	}
}

func TestOpenAIInterpreterUnknownIntentBecomesOther(t *testing.T) {
	mock := &mockChatService{resp: chatResponse(
		`{"intent":"smalltalk","topic":"","day_preference":"","time_preference":""}`,
	)}
	interp := &OpenAIInterpreter{chat: mock, model: openai.ChatModelGPT4oMini}

	turn, err := interp.Interpret(context.Background(), "nice weather", models.StateCollectTopic)
	if err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	if turn.Intent != models.IntentOther {
		t.Errorf("expected other, got %s", turn.Intent)
	}
}

func TestOpenAIInterpreterFallsBackOnServiceError(t *testing.T) {
	mock := &mockChatService{err: errors.New("quota exceeded")}
	interp := &OpenAIInterpreter{chat: mock, model: openai.ChatModelGPT4oMini}

	turn, err := interp.Interpret(context.Background(), "book KYC tomorrow evening", models.StateCollectTopic)
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if turn.Intent != models.IntentBookNew || turn.Topic != "KYC/Onboarding" {
		t.Errorf("keyword fallback did not engage: %+v", turn)
	}
}

func TestOpenAIInterpreterFallsBackOnGarbage(t *testing.T) {
	mock := &mockChatService{resp: chatResponse("I could not parse that, sorry!")}
	interp := &OpenAIInterpreter{chat: mock, model: openai.ChatModelGPT4oMini}

	turn, err := interp.Interpret(context.Background(), "reschedule please", models.StateCollectTopic)
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if turn.Intent != models.IntentReschedule {
		t.Errorf("keyword fallback did not engage: %+v", turn)
	}
}

func TestOpenAIInterpreterBookingCodeFromRawText(t *testing.T) {
	mock := &mockChatService{resp: chatResponse(
		`{"intent":"reschedule","topic":"","day_preference":"","time_preference":""}`,
	)}
	interp := &OpenAIInterpreter{chat: mock, model: openai.ChatModelGPT4oMini}

	turn, err := interp.Interpret(context.Background(), "reschedule NL-AAAABBBBCCCCDDDD", models.StateCollectTopic)
	if err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	if turn.BookingCode != "NL-AAAABBBBCCCCDDDD" {
		t.Errorf("expected code recovered from raw text, got %q", turn.BookingCode)
	}
}

func TestNewOpenAIInterpreterNoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIInterpreter(); err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewOpenAIInterpreterWithKey(t *testing.T) {
	interp, err := NewOpenAIInterpreter(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if interp == nil {
		t.Error("expected interpreter instance, got nil")
	}
}
