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

// EmotionLabels is the closed label set produced by the emotion service.
var EmotionLabels = []string{
	"happiness", "sadness", "neutral", "anger", "love", "fear",
	"disgust", "confusion", "surprise", "shame", "guilt", "sarcasm", "desire",
}

// EmotionClient talks to the platform's emotion detection service over
// HTTP. It classifies transcribed customer speech; the result rides along
// on the conversation turn and feeds the quality scorer.
type EmotionClient struct {
	timeout time.Duration
	logger  *zap.Logger
	baseURL string
}

// NewEmotionClient creates a client for the emotion detection service
func NewEmotionClient(baseURL string, timeout time.Duration, logger *zap.Logger) *EmotionClient {
	return &EmotionClient{
		timeout: timeout,
		logger:  logger,
		baseURL: baseURL,
	}
}

// IsAvailable checks if the emotion service is configured
func (e *EmotionClient) IsAvailable() bool {
	return e.baseURL != ""
}

// Name returns the provider name
func (e *EmotionClient) Name() string {
	return "emotion-service"
}

// DetectEmotion classifies the emotional tone of a piece of text.
func (e *EmotionClient) DetectEmotion(ctx context.Context, text string) (*EmotionResult, error) {
	if !e.IsAvailable() {
		return nil, fmt.Errorf("emotion service not available. Set EMOTION_SERVICE_URL environment variable")
	}
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/detect", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: e.timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("emotion service error: %d - %s", resp.StatusCode, string(body))
	}

	var result struct {
		Emotion    string             `json:"emotion"`
		Confidence float64            `json:"confidence"`
		AllScores  map[string]float64 `json:"all_scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Emotion == "" {
		result.Emotion = "neutral"
		result.Confidence = 0.5
	}

	return &EmotionResult{
		Emotion:    result.Emotion,
		Confidence: result.Confidence,
		AllScores:  result.AllScores,
	}, nil
}
