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

// ElevenLabsSynthesizer converts text fragments to speech through the
// ElevenLabs API. Output format defaults to raw 16kHz PCM so fragments can
// be chunked onto the wire without transcoding.
type ElevenLabsSynthesizer struct {
	apiKey         string
	defaultVoiceID string
	modelID        string
	outputFormat   string
	timeout        time.Duration
	logger         *zap.Logger
	baseURL        string
}

// NewElevenLabsSynthesizer creates a new ElevenLabs TTS provider
func NewElevenLabsSynthesizer(apiKey, voiceID, modelID, outputFormat string, timeout time.Duration, logger *zap.Logger) *ElevenLabsSynthesizer {
	if apiKey == "" {
		return &ElevenLabsSynthesizer{logger: logger}
	}

	return &ElevenLabsSynthesizer{
		apiKey:         apiKey,
		defaultVoiceID: voiceID,
		modelID:        modelID,
		outputFormat:   outputFormat,
		timeout:        timeout,
		logger:         logger,
		baseURL:        "https://api.elevenlabs.io/v1",
	}
}

// IsAvailable checks if the synthesizer is configured
func (s *ElevenLabsSynthesizer) IsAvailable() bool {
	return s.apiKey != ""
}

// Name returns the provider name
func (s *ElevenLabsSynthesizer) Name() string {
	return "elevenlabs"
}

// Synthesize converts one text fragment to speech audio.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResult, error) {
	if !s.IsAvailable() {
		return nil, fmt.Errorf("ElevenLabs synthesizer not available. Set ELEVENLABS_API_KEY environment variable")
	}
	if req.Text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = s.defaultVoiceID
	}
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM"
	}

	modelID := s.modelID
	if modelID == "" {
		modelID = "eleven_multilingual_v2"
	}

	outputFormat := s.outputFormat
	if outputFormat == "" {
		outputFormat = "pcm_16000"
	}

	requestBody := map[string]interface{}{
		"text":     req.Text,
		"model_id": modelID,
		"voice_settings": map[string]interface{}{
			"stability":        0.5,
			"similarity_boost": 0.5,
		},
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", s.baseURL, voiceID, outputFormat)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", s.apiKey)

	client := &http.Client{Timeout: s.timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs API error: %d - %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned empty audio")
	}

	return &SynthesizeResult{
		Audio:       audioData,
		ContentType: contentTypeForFormat(outputFormat),
	}, nil
}

func contentTypeForFormat(format string) string {
	switch {
	case len(format) >= 3 && format[:3] == "pcm":
		return "audio/pcm"
	case len(format) >= 4 && format[:4] == "ulaw":
		return "audio/basic"
	default:
		return "audio/mpeg"
	}
}
