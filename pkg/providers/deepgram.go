package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DeepgramTranscriber converts buffered PCM audio to text through the
// Deepgram prerecorded API. Preferred over Whisper when configured since
// it accepts raw PCM and returns word-level confidence.
type DeepgramTranscriber struct {
	apiKey  string
	model   string
	timeout time.Duration
	logger  *zap.Logger
	baseURL string
}

// NewDeepgramTranscriber creates a new Deepgram STT provider
func NewDeepgramTranscriber(apiKey, model string, timeout time.Duration, logger *zap.Logger) *DeepgramTranscriber {
	if apiKey == "" {
		return &DeepgramTranscriber{logger: logger}
	}

	return &DeepgramTranscriber{
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		logger:  logger,
		baseURL: "https://api.deepgram.com/v1",
	}
}

// IsAvailable checks if the transcriber is configured
func (d *DeepgramTranscriber) IsAvailable() bool {
	return d.apiKey != ""
}

// Name returns the provider name
func (d *DeepgramTranscriber) Name() string {
	return "deepgram"
}

// Transcribe converts speech audio to text.
// Audio must be raw PCM16, mono, little-endian.
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResult, error) {
	if !d.IsAvailable() {
		return nil, fmt.Errorf("Deepgram transcriber not available. Set DEEPGRAM_API_KEY environment variable")
	}
	if len(req.AudioData) == 0 {
		return nil, fmt.Errorf("audio data cannot be empty")
	}

	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	model := d.model
	if model == "" {
		model = "nova-2"
	}

	url := fmt.Sprintf("%s/listen?model=%s&encoding=linear16&sample_rate=%d&punctuate=true",
		d.baseURL, model, sampleRate)
	if req.Language != "" {
		url += "&language=" + req.Language
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(req.AudioData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+d.apiKey)
	httpReq.Header.Set("Content-Type", "audio/raw")

	client := &http.Client{Timeout: d.timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Deepgram API error: %d - %s", resp.StatusCode, string(body))
	}

	var dgResp struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string  `json:"transcript"`
					Confidence float64 `json:"confidence"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&dgResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(dgResp.Results.Channels) == 0 || len(dgResp.Results.Channels[0].Alternatives) == 0 {
		return &TranscribeResult{}, nil
	}

	alt := dgResp.Results.Channels[0].Alternatives[0]
	return &TranscribeResult{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Language:   req.Language,
	}, nil
}
