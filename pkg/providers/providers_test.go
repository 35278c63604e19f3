package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestProviders_IsAvailable(t *testing.T) {
	logger := zap.NewNop()
	timeout := 5 * time.Second

	tests := []struct {
		name   string
		apiKey string
		want   bool
	}{
		{name: "available with api key", apiKey: "test-api-key", want: true},
		{name: "not available without api key", apiKey: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoner := NewOpenAIReasoner(tt.apiKey, "gpt-4o-mini", 400, timeout, logger)
			if got := reasoner.IsAvailable(); got != tt.want {
				t.Errorf("OpenAIReasoner.IsAvailable() = %v, want %v", got, tt.want)
			}

			whisper := NewWhisperTranscriber(tt.apiKey, "whisper-1", "", timeout, logger)
			if got := whisper.IsAvailable(); got != tt.want {
				t.Errorf("WhisperTranscriber.IsAvailable() = %v, want %v", got, tt.want)
			}

			deepgram := NewDeepgramTranscriber(tt.apiKey, "nova-2", timeout, logger)
			if got := deepgram.IsAvailable(); got != tt.want {
				t.Errorf("DeepgramTranscriber.IsAvailable() = %v, want %v", got, tt.want)
			}

			synth := NewElevenLabsSynthesizer(tt.apiKey, "voice-1", "", "", timeout, logger)
			if got := synth.IsAvailable(); got != tt.want {
				t.Errorf("ElevenLabsSynthesizer.IsAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviders_Name(t *testing.T) {
	logger := zap.NewNop()
	timeout := 5 * time.Second

	if got := NewOpenAIReasoner("k", "m", 0, timeout, logger).Name(); got != "openai" {
		t.Errorf("OpenAIReasoner.Name() = %v, want openai", got)
	}
	if got := NewWhisperTranscriber("k", "m", "", timeout, logger).Name(); got != "whisper" {
		t.Errorf("WhisperTranscriber.Name() = %v, want whisper", got)
	}
	if got := NewDeepgramTranscriber("k", "m", timeout, logger).Name(); got != "deepgram" {
		t.Errorf("DeepgramTranscriber.Name() = %v, want deepgram", got)
	}
	if got := NewElevenLabsSynthesizer("k", "v", "", "", timeout, logger).Name(); got != "elevenlabs" {
		t.Errorf("ElevenLabsSynthesizer.Name() = %v, want elevenlabs", got)
	}
	if got := NewEmotionClient("http://localhost:8000", timeout, logger).Name(); got != "emotion-service" {
		t.Errorf("EmotionClient.Name() = %v, want emotion-service", got)
	}
}

func TestDeepgramTranscriber_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token test-key" {
			t.Errorf("Authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hello there","confidence":0.97}]}]}}`))
	}))
	defer server.Close()

	d := NewDeepgramTranscriber("test-key", "nova-2", 5*time.Second, zap.NewNop())
	d.baseURL = server.URL

	result, err := d.Transcribe(context.Background(), &TranscribeRequest{
		AudioData:  make([]byte, 320),
		SampleRate: 16000,
	})
	if err != nil {
		t.Fatalf("Transcribe() err = %v", err)
	}
	if result.Text != "hello there" {
		t.Errorf("Text = %q, want %q", result.Text, "hello there")
	}
	if result.Confidence != 0.97 {
		t.Errorf("Confidence = %v, want 0.97", result.Confidence)
	}
}

func TestDeepgramTranscriber_EmptyAudio(t *testing.T) {
	d := NewDeepgramTranscriber("test-key", "nova-2", 5*time.Second, zap.NewNop())
	if _, err := d.Transcribe(context.Background(), &TranscribeRequest{}); err == nil {
		t.Error("Transcribe() with empty audio returned nil error")
	}
}

func TestElevenLabsSynthesizer_Synthesize(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key header = %q", got)
		}
		w.Write(pcm)
	}))
	defer server.Close()

	s := NewElevenLabsSynthesizer("test-key", "voice-1", "", "pcm_16000", 5*time.Second, zap.NewNop())
	s.baseURL = server.URL

	result, err := s.Synthesize(context.Background(), &SynthesizeRequest{Text: "Hello!"})
	if err != nil {
		t.Fatalf("Synthesize() err = %v", err)
	}
	if len(result.Audio) != len(pcm) {
		t.Errorf("Audio len = %d, want %d", len(result.Audio), len(pcm))
	}
	if result.ContentType != "audio/pcm" {
		t.Errorf("ContentType = %q, want audio/pcm", result.ContentType)
	}
}

func TestElevenLabsSynthesizer_EmptyText(t *testing.T) {
	s := NewElevenLabsSynthesizer("test-key", "voice-1", "", "", 5*time.Second, zap.NewNop())
	if _, err := s.Synthesize(context.Background(), &SynthesizeRequest{}); err == nil {
		t.Error("Synthesize() with empty text returned nil error")
	}
}

func TestEmotionClient_DetectEmotion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("path = %q, want /detect", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"emotion":"confusion","confidence":0.82,"all_scores":{"confusion":0.82,"neutral":0.1}}`))
	}))
	defer server.Close()

	e := NewEmotionClient(server.URL, 5*time.Second, zap.NewNop())

	result, err := e.DetectEmotion(context.Background(), "wait, what does that mean?")
	if err != nil {
		t.Fatalf("DetectEmotion() err = %v", err)
	}
	if result.Emotion != "confusion" {
		t.Errorf("Emotion = %q, want confusion", result.Emotion)
	}
	if result.Confidence != 0.82 {
		t.Errorf("Confidence = %v, want 0.82", result.Confidence)
	}
}

func TestEmotionClient_NotConfigured(t *testing.T) {
	e := NewEmotionClient("", 5*time.Second, zap.NewNop())
	if e.IsAvailable() {
		t.Error("IsAvailable() = true without base URL")
	}
	if _, err := e.DetectEmotion(context.Background(), "hello"); err == nil {
		t.Error("DetectEmotion() without base URL returned nil error")
	}
}

// Note: integration tests against the live OpenAI endpoints require API
// keys and are intentionally not part of this suite.
