package interpret

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Transcriber converts a recorded voice turn into text for interpretation.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error)
}

// transcriptionService defines the minimal interface for audio transcriptions.
type transcriptionService interface {
	New(ctx context.Context, body openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error)
}

// WhisperTranscriber transcribes audio through the OpenAI Whisper API.
type WhisperTranscriber struct {
	transcriptions transcriptionService
}

// NewWhisperTranscriber creates a transcriber backed by the OpenAI API.
func NewWhisperTranscriber(opts ...Option) (*WhisperTranscriber, error) {
	var cfg Opts
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
	return &WhisperTranscriber{transcriptions: &cli.Audio.Transcriptions}, nil
}

// Transcribe converts one audio recording to text.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error) {
	resp, err := t.transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, contentType),
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		slog.Error("WhisperTranscriber.Transcribe: transcription failed", "error", err, "filename", filename)
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	slog.Debug("WhisperTranscriber.Transcribe: transcription complete", "chars", len(text))
	return text, nil
}
