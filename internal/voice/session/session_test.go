package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/troikatech/voice-core/internal/voice/events"
	"github.com/troikatech/voice-core/internal/voice/orchestrator"
	"github.com/troikatech/voice-core/pkg/audio"
	"github.com/troikatech/voice-core/pkg/breaker"
	"github.com/troikatech/voice-core/pkg/cache"
	"github.com/troikatech/voice-core/pkg/providers"
)

type fakeTransport struct {
	mu         sync.Mutex
	binary     [][]byte
	control    []map[string]interface{}
	closes     int
	closeCodes []int
}

func (t *fakeTransport) WriteBinary(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.binary = append(t.binary, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) WriteControl(v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := v.(map[string]interface{}); ok {
		t.control = append(t.control, m)
	}
	return nil
}

func (t *fakeTransport) WriteClose(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCodes = append(t.closeCodes, code)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *fakeTransport) eventNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.control))
	for _, c := range t.control {
		if name, ok := c["type"].(string); ok {
			names = append(names, name)
		}
	}
	return names
}

func (t *fakeTransport) eventsOfType(name string) []map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []map[string]interface{}
	for _, c := range t.control {
		if c["type"] == name {
			out = append(out, c)
		}
	}
	return out
}

func (t *fakeTransport) countEvent(name string) int {
	n := 0
	for _, e := range t.eventNames() {
		if e == name {
			n++
		}
	}
	return n
}

func (t *fakeTransport) binaryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.binary)
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

func (t *fakeTransport) lastCloseCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.closeCodes) == 0 {
		return 0
	}
	return t.closeCodes[len(t.closeCodes)-1]
}

type stubTranscriber struct{ text string }

func (s *stubTranscriber) Transcribe(ctx context.Context, req *providers.TranscribeRequest) (*providers.TranscribeResult, error) {
	return &providers.TranscribeResult{Text: s.text, Confidence: 0.95}, nil
}
func (s *stubTranscriber) IsAvailable() bool { return true }
func (s *stubTranscriber) Name() string      { return "stub-stt" }

type stubReasoner struct{ reply string }

func (s *stubReasoner) Generate(ctx context.Context, req *providers.GenerateRequest) (string, error) {
	return s.reply, nil
}

func (s *stubReasoner) GenerateStream(ctx context.Context, req *providers.GenerateRequest, onDelta func(string) error) error {
	return onDelta(s.reply)
}
func (s *stubReasoner) IsAvailable() bool { return true }
func (s *stubReasoner) Name() string      { return "stub-llm" }

type stubSynth struct{}

func (s *stubSynth) Synthesize(ctx context.Context, req *providers.SynthesizeRequest) (*providers.SynthesizeResult, error) {
	return &providers.SynthesizeResult{Audio: []byte(req.Text), ContentType: "audio/pcm"}, nil
}
func (s *stubSynth) IsAvailable() bool { return true }
func (s *stubSynth) Name() string      { return "stub-tts" }

func newTestSession(callSID, conversationID, voiceID, reply string) (*Session, *fakeTransport) {
	return newTestSessionWithConfig(callSID, conversationID, voiceID, reply, Config{
		BufferBytes: 64 * 1024,
		SilenceWait: time.Hour, // drains only by size in tests
		SampleRate:  16000,
	})
}

func newTestSessionWithConfig(callSID, conversationID, voiceID, reply string, cfg Config) (*Session, *fakeTransport) {
	logger := zap.NewNop()
	registry := breaker.NewRegistry(breaker.DefaultConfig(), logger)
	orch := orchestrator.New(registry, cache.New(64, logger), &stubReasoner{reply: reply}, &stubSynth{}, nil, logger)
	transport := &fakeTransport{}

	s := New(callSID, conversationID, voiceID, cfg, Deps{
		Transport:    transport,
		Orchestrator: orch,
		Transcriber:  &stubTranscriber{text: "hello from the caller"},
		Breakers:     registry,
		Records:      nil,
		Bus:          events.NewBus(nil, logger),
		Logger:       logger,
	})
	return s, transport
}

func indexOf(names []string, want string) int {
	for i, n := range names {
		if n == want {
			return i
		}
	}
	return -1
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// pcmFrame builds a PCM16 frame where every sample has the given value.
func pcmFrame(samples int, value int16) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(value))
	}
	return buf
}

func TestOpen_MissingParameters(t *testing.T) {
	s, transport := newTestSession("", "", "voice-1", "ok")

	err := s.Open(context.Background())
	if err == nil {
		t.Fatal("Open() with empty identifiers returned nil error")
	}
	if !strings.Contains(err.Error(), "missing required parameters") {
		t.Errorf("err = %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want CLOSED", s.State())
	}

	names := transport.eventNames()
	if indexOf(names, "connected") == -1 || indexOf(names, "error") == -1 {
		t.Errorf("events = %v, want connected and error", names)
	}
	if transport.closeCount() != 1 {
		t.Errorf("transport closed %d times, want 1", transport.closeCount())
	}
	if got := transport.lastCloseCode(); got != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", got, websocket.ClosePolicyViolation)
	}
}

func TestOpen_SpeaksGreetingAndListens(t *testing.T) {
	s, transport := newTestSession("call-1", "conv-1", "voice-1", "ok")

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	if s.State() != StateListening {
		t.Errorf("state after greeting = %s, want LISTENING", s.State())
	}

	waitFor(t, "greeting frames on the wire", func() bool {
		return transport.countEvent("listening") > 0 && transport.binaryCount() > 0
	})

	names := transport.eventNames()
	order := []string{"connected", "ready", "processing_start", "speaking", "listening"}
	last := -1
	for _, want := range order {
		idx := indexOf(names, want)
		if idx == -1 {
			t.Fatalf("missing event %q in %v", want, names)
		}
		if idx < last {
			t.Errorf("event %q out of order in %v", want, names)
		}
		last = idx
	}

	s.Close("normal")
	if transport.countEvent("quality") != 1 {
		t.Errorf("got %d quality events, want 1", transport.countEvent("quality"))
	}
}

func TestClose_Idempotent(t *testing.T) {
	s, transport := newTestSession("call-1", "conv-1", "voice-1", "ok")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}

	s.Close("normal")
	s.Close("normal")
	s.Close("some other reason")

	if s.State() != StateClosed {
		t.Errorf("state = %s, want CLOSED", s.State())
	}
	if transport.closeCount() != 1 {
		t.Errorf("transport closed %d times, want 1", transport.closeCount())
	}
	if got := transport.lastCloseCode(); got != websocket.CloseNormalClosure {
		t.Errorf("close code = %d, want %d", got, websocket.CloseNormalClosure)
	}
	if transport.countEvent("quality") != 1 {
		t.Errorf("got %d quality events, want 1", transport.countEvent("quality"))
	}
}

func TestOnInboundAudio_MalformedDropped(t *testing.T) {
	s, _ := newTestSession("call-1", "conv-1", "voice-1", "ok")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	defer s.Close("normal")

	s.OnInboundAudio([]byte{0x01, 0x02, 0x03}) // odd length
	s.OnInboundAudio(nil)

	if got := s.buffer.Size(); got != 0 {
		t.Errorf("buffer has %d bytes after malformed frames, want 0", got)
	}
}

func TestInterrupt_BargeInWhileSpeaking(t *testing.T) {
	s, transport := newTestSession("call-1", "conv-1", "voice-1", "ok")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	defer s.Close("normal")

	s.setState(StateSpeaking)
	s.OnInboundAudio(pcmFrame(160, 20000)) // loud caller audio

	if s.State() != StateListening {
		t.Errorf("state = %s, want LISTENING after barge-in", s.State())
	}
	waitFor(t, "interrupt events", func() bool {
		return transport.countEvent("interrupted") == 1 && transport.countEvent("listening") >= 2
	})

	s.statsMu.Lock()
	interrupts := s.customerInterrupts
	s.statsMu.Unlock()
	if interrupts != 1 {
		t.Errorf("customerInterrupts = %d, want 1", interrupts)
	}
}

func TestInterrupt_IgnoredWhileListening(t *testing.T) {
	s, transport := newTestSession("call-1", "conv-1", "voice-1", "ok")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	defer s.Close("normal")

	before := transport.countEvent("interrupted")
	s.Interrupt()
	if got := transport.countEvent("interrupted"); got != before {
		t.Errorf("interrupt while LISTENING emitted events")
	}
}

func TestInterrupt_QuietAudioDoesNotBargeIn(t *testing.T) {
	s, _ := newTestSession("call-1", "conv-1", "voice-1", "ok")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	defer s.Close("normal")

	s.setState(StateSpeaking)
	s.OnInboundAudio(pcmFrame(160, 50)) // background noise
	if s.State() != StateSpeaking {
		t.Errorf("state = %s, quiet audio must not interrupt", s.State())
	}
}

func TestEmitChunk_StaleTurnDropped(t *testing.T) {
	s, transport := newTestSession("call-1", "conv-1", "voice-1", "ok")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	defer s.Close("normal")

	waitFor(t, "greeting to finish", func() bool {
		return transport.countEvent("listening") >= 1
	})

	s.EmitChunk(orchestrator.AudioChunk{Turn: 5, Seq: 0, Data: []byte("part one")})
	if s.State() != StateSpeaking {
		t.Fatalf("state = %s, want SPEAKING", s.State())
	}

	s.Interrupt()
	if s.State() != StateListening {
		t.Fatalf("state after interrupt = %s, want LISTENING", s.State())
	}
	waitFor(t, "interrupt event", func() bool {
		return transport.countEvent("interrupted") == 1
	})
	speakingBefore := transport.countEvent("speaking")

	// A chunk from the interrupted turn raced the cancellation. It must
	// not restart speech.
	s.EmitChunk(orchestrator.AudioChunk{Turn: 5, Seq: 1, Data: []byte("part two")})
	if s.State() != StateListening {
		t.Errorf("state = %s after stale chunk, want LISTENING", s.State())
	}
	time.Sleep(20 * time.Millisecond)
	if got := transport.countEvent("speaking"); got != speakingBefore {
		t.Errorf("stale chunk emitted a speaking event (%d -> %d)", speakingBefore, got)
	}

	// The next turn proceeds normally.
	s.EmitChunk(orchestrator.AudioChunk{Turn: 6, Seq: 0, Data: []byte("next reply")})
	if s.State() != StateSpeaking {
		t.Errorf("state = %s for the next turn, want SPEAKING", s.State())
	}
	waitFor(t, "next turn speaking event", func() bool {
		return transport.countEvent("speaking") == speakingBefore+1
	})
}

func TestWireRate8k_ResamplesBothDirections(t *testing.T) {
	s, transport := newTestSessionWithConfig("call-1", "conv-1", "voice-1", "ok", Config{
		BufferBytes:    64 * 1024,
		SilenceWait:    time.Hour,
		SampleRate:     16000,
		WireSampleRate: 8000,
	})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	defer s.Close("normal")

	waitFor(t, "greeting frames on the wire", func() bool {
		return transport.binaryCount() > 0
	})

	transport.mu.Lock()
	first := append([]byte(nil), transport.binary[0]...)
	transport.mu.Unlock()
	want := audio.Resample16kTo8k([]byte(DefaultGreeting))
	if !bytes.Equal(first, want) {
		t.Errorf("outbound greeting not downsampled to the wire rate")
	}

	inbound := pcmFrame(160, 500)
	s.OnInboundAudio(inbound)
	if got := s.buffer.Size(); got != 2*len(inbound) {
		t.Errorf("buffered %d bytes for a %d byte 8kHz frame, want %d",
			got, len(inbound), 2*len(inbound))
	}
}

func TestMediaFrames_InAndOut(t *testing.T) {
	s, transport := newTestSession("call-1", "conv-1", "voice-1", "ok")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	defer s.Close("normal")

	waitFor(t, "greeting to finish", func() bool {
		return transport.countEvent("listening") >= 1
	})
	binBefore := transport.binaryCount()

	muLaw := make([]byte, 200)
	for i := range muLaw {
		muLaw[i] = byte(i)
	}
	s.OnControlMessage([]byte(`{"type":"media","payload":"` +
		audio.EncodePCMChunkToBase64(muLaw) + `","encoding":"mulaw"}`))

	if got := s.buffer.Size(); got != 2*len(muLaw) {
		t.Errorf("buffered %d bytes for %d mulaw samples, want %d",
			got, len(muLaw), 2*len(muLaw))
	}

	// A media frame switches outbound audio to the same encoding.
	reply := pcmFrame(500, 1234)
	s.EmitChunk(orchestrator.AudioChunk{Turn: 5, Seq: 0, Data: reply, Final: true})

	waitFor(t, "media frames out", func() bool {
		return len(transport.eventsOfType("media")) >= 2
	})
	if got := transport.binaryCount(); got != binBefore {
		t.Errorf("audio went out as binary frames after the media switch")
	}

	var echoed []byte
	for _, m := range transport.eventsOfType("media") {
		payload, _ := m["payload"].(string)
		data, err := audio.DecodeBase64PCM(payload)
		if err != nil {
			t.Fatalf("media payload not base64: %v", err)
		}
		echoed = append(echoed, data...)
	}
	if !bytes.Equal(echoed, reply) {
		t.Errorf("media frames carry %d bytes, want the %d byte reply intact",
			len(echoed), len(reply))
	}
}

func TestOnControlMessage_TextInput(t *testing.T) {
	reply := "Nice to meet you, thanks for calling in today."
	s, transport := newTestSession("call-1", "conv-1", "voice-1", reply)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	defer s.Close("normal")

	s.OnControlMessage([]byte(`{"type":"text","text":"hi, how are you?"}`))

	waitFor(t, "pipeline response", func() bool {
		return transport.countEvent("processing_complete") >= 2
	})

	conv, ok := s.deps.Orchestrator.Conversation("conv-1")
	if !ok {
		t.Fatal("conversation not registered")
	}
	turns := conv.History.Snapshot()
	if len(turns) != 3 {
		t.Fatalf("history has %d turns, want 3 (greeting, customer, reply)", len(turns))
	}
	if turns[1].Text != "hi, how are you?" {
		t.Errorf("customer turn = %q", turns[1].Text)
	}
	if turns[2].Text != reply {
		t.Errorf("agent turn = %q", turns[2].Text)
	}
}

func TestOnControlMessage_Malformed(t *testing.T) {
	s, transport := newTestSession("call-1", "conv-1", "voice-1", "ok")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	defer s.Close("normal")

	waitFor(t, "greeting to finish", func() bool {
		return transport.countEvent("processing_complete") >= 1
	})

	before := len(transport.eventNames())
	s.OnControlMessage([]byte(`{not json`))
	s.OnControlMessage([]byte(`{"type":"text","text":"   "}`))
	time.Sleep(20 * time.Millisecond)
	if got := len(transport.eventNames()); got != before {
		t.Errorf("malformed control frames produced %d new events", got-before)
	}
}

func TestAudioBuffer(t *testing.T) {
	t.Run("drains by size", func(t *testing.T) {
		ab := NewAudioBuffer(100, time.Hour)
		ab.Append(make([]byte, 60))
		if ab.Ready() {
			t.Error("buffer ready before reaching size threshold")
		}
		ab.Append(make([]byte, 60))
		if !ab.Ready() {
			t.Error("buffer not ready at size threshold")
		}
		data := ab.Drain()
		if len(data) != 120 {
			t.Errorf("drained %d bytes, want 120", len(data))
		}
		if ab.Size() != 0 || ab.Ready() {
			t.Error("buffer not reset after drain")
		}
	})

	t.Run("drains by silence window", func(t *testing.T) {
		ab := NewAudioBuffer(1<<20, 10*time.Millisecond)
		ab.Append(make([]byte, 8))
		waitFor(t, "silence window", ab.Ready)
	})

	t.Run("empty buffer never ready", func(t *testing.T) {
		ab := NewAudioBuffer(100, time.Millisecond)
		time.Sleep(5 * time.Millisecond)
		if ab.Ready() {
			t.Error("empty buffer reported ready")
		}
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s, _ := newTestSession("call-1", "conv-1", "voice-1", "ok")

	r.Add(s)
	if got, ok := r.Get("call-1"); !ok || got != s {
		t.Fatal("Get did not return the added session")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	r.Remove("call-1")
	if _, ok := r.Get("call-1"); ok {
		t.Error("session still present after Remove")
	}
}
