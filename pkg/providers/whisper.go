package providers

import (
	"bytes"
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/troikatech/voice-core/pkg/audio"
)

// WhisperTranscriber converts buffered PCM audio to text through the
// OpenAI Whisper API. Batch-only: it returns one final transcript per
// utterance buffer.
type WhisperTranscriber struct {
	client          *openai.Client
	model           string
	defaultLanguage string
	timeout         time.Duration
	logger          *zap.Logger
}

// NewWhisperTranscriber creates a new Whisper STT provider
func NewWhisperTranscriber(apiKey, model, language string, timeout time.Duration, logger *zap.Logger) *WhisperTranscriber {
	if apiKey == "" {
		return &WhisperTranscriber{logger: logger}
	}

	return &WhisperTranscriber{
		client:          openai.NewClient(apiKey),
		model:           model,
		defaultLanguage: language,
		timeout:         timeout,
		logger:          logger,
	}
}

// IsAvailable checks if the transcriber is configured
func (w *WhisperTranscriber) IsAvailable() bool {
	return w.client != nil
}

// Name returns the provider name
func (w *WhisperTranscriber) Name() string {
	return "whisper"
}

// Transcribe converts speech audio to text. The raw PCM buffer is wrapped
// in a WAV header because the API rejects headerless uploads.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResult, error) {
	if !w.IsAvailable() {
		return nil, fmt.Errorf("Whisper transcriber not available. Set OPENAI_API_KEY environment variable")
	}
	if len(req.AudioData) == 0 {
		return nil, fmt.Errorf("audio data cannot be empty")
	}

	model := w.model
	if model == "" {
		model = openai.Whisper1
	}
	language := req.Language
	if language == "" {
		language = w.defaultLanguage
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	wavData := audio.WrapPCMInWAV(req.AudioData, req.SampleRate)
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wavData),
		Language: language,
	})
	if err != nil {
		return nil, fmt.Errorf("Whisper transcription failed: %w", err)
	}

	return &TranscribeResult{
		Text: resp.Text,
		// The JSON transcription response carries no confidence; treat a
		// non-empty result as fully confident.
		Confidence: 1.0,
		Language:   language,
	}, nil
}
