package providers

import (
	"context"
)

// Service names used for circuit breaker accounting. Every call to an
// external AI provider is recorded under one of these.
const (
	ServiceTranscription = "transcription"
	ServiceReasoning     = "reasoning"
	ServiceSynthesis     = "synthesis"
	ServiceEmotion       = "emotion"
)

// Message is one prior exchange in a conversation history snapshot.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// TranscribeRequest carries buffered audio for speech-to-text.
type TranscribeRequest struct {
	AudioData  []byte // raw PCM16 mono, little-endian
	SampleRate int
	Language   string
}

// TranscribeResult is the recognized text and the provider's confidence.
type TranscribeResult struct {
	Text       string
	Confidence float64
	Language   string
}

// Transcriber converts speech audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResult, error)
	IsAvailable() bool
	Name() string
}

// GenerateRequest asks the reasoning provider for a conversational reply.
type GenerateRequest struct {
	Input       string
	Personality string // system prompt describing the agent persona
	History     []Message
	MaxTokens   int
}

// Reasoner generates natural-language response text.
type Reasoner interface {
	// Generate returns the complete response text in one piece.
	Generate(ctx context.Context, req *GenerateRequest) (string, error)

	// GenerateStream delivers response text incrementally through onDelta
	// as the provider produces it. onDelta returning an error aborts the
	// stream and is propagated.
	GenerateStream(ctx context.Context, req *GenerateRequest, onDelta func(delta string) error) error

	IsAvailable() bool
	Name() string
}

// SynthesizeRequest asks for speech audio for one text fragment.
type SynthesizeRequest struct {
	Text       string
	VoiceID    string
	SampleRate int
}

// SynthesizeResult is the synthesized audio for one fragment.
type SynthesizeResult struct {
	Audio       []byte
	ContentType string
}

// Synthesizer converts text to speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResult, error)
	IsAvailable() bool
	Name() string
}

// EmotionResult is one emotion reading for a piece of customer speech.
type EmotionResult struct {
	Emotion    string
	Confidence float64
	AllScores  map[string]float64
}

// EmotionDetector classifies the emotional tone of transcribed speech.
// It runs off the latency-critical path; failures are absorbed.
type EmotionDetector interface {
	DetectEmotion(ctx context.Context, text string) (*EmotionResult, error)
	IsAvailable() bool
	Name() string
}
