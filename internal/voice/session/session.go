// Package session owns one call's duplex audio channel: it buffers
// inbound caller audio, detects barge-in, drives the processing
// pipeline, and forwards ordered response audio and control events to
// the wire.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/troikatech/voice-core/internal/voice/events"
	"github.com/troikatech/voice-core/internal/voice/orchestrator"
	"github.com/troikatech/voice-core/internal/voice/quality"
	"github.com/troikatech/voice-core/pkg/audio"
	"github.com/troikatech/voice-core/pkg/breaker"
	"github.com/troikatech/voice-core/pkg/callrecord"
	"github.com/troikatech/voice-core/pkg/metrics"
	"github.com/troikatech/voice-core/pkg/providers"
)

// DefaultGreeting opens the call when no campaign greeting is set.
const DefaultGreeting = "Hello! Thank you for taking my call. How are you today?"

// Config carries per-session tunables. SampleRate is the pipeline rate
// the providers consume; WireSampleRate is what the transport delivers,
// resampled at the session boundary when the two differ.
type Config struct {
	BufferBytes    int
	SilenceWait    time.Duration
	BargeInEnergy  int
	SampleRate     int
	WireSampleRate int
	Language       string
	Greeting       string
	Personality    string
}

// Deps are the shared services a session talks to.
type Deps struct {
	Transport    Transport
	Orchestrator *orchestrator.Orchestrator
	Transcriber  providers.Transcriber
	Emotion      providers.EmotionDetector
	Breakers     *breaker.Registry
	Records      *callrecord.Store
	Bus          *events.Bus
	Logger       *zap.Logger
}

type frame struct {
	data    []byte
	control map[string]interface{}
	audio   bool
}

// Session is the state machine for one live call.
type Session struct {
	CallSID        string
	ConversationID string
	VoiceID        string

	cfg  Config
	deps Deps

	state State

	buffer *AudioBuffer

	out        chan frame
	quit       chan struct{}
	writerDone chan struct{}

	// one transcription-to-response run at a time
	processingMu sync.Mutex

	closeOnce sync.Once
	closeCode int32

	// set when the gateway speaks JSON media frames; replies then go
	// out the same way
	mediaWire atomic.Bool

	turnMu      sync.Mutex
	currentTurn int
	staleTurn   int

	statsMu            sync.Mutex
	customerInterrupts int
	agentInterrupts    int
	silenceGaps        []time.Duration
	agentSpeechEnd     time.Time
}

func New(callSID, conversationID, voiceID string, cfg Config, deps Deps) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.BargeInEnergy <= 0 {
		cfg.BargeInEnergy = 1000
	}
	if cfg.WireSampleRate <= 0 {
		cfg.WireSampleRate = cfg.SampleRate
	}
	return &Session{
		CallSID:        callSID,
		ConversationID: conversationID,
		VoiceID:        voiceID,
		cfg:            cfg,
		deps:           deps,
		state:          StateConnecting,
		buffer:         NewAudioBuffer(cfg.BufferBytes, cfg.SilenceWait),
		out:            make(chan frame, 64),
		quit:           make(chan struct{}),
		writerDone:     make(chan struct{}),
	}
}

// Open validates configuration, announces the session on the wire and
// speaks the opening turn. Configuration absence is fatal here and only
// here; the channel is closed with an explicit reason.
func (s *Session) Open(ctx context.Context) error {
	go s.writeLoop()

	s.sendEvent("connected", nil)

	if err := s.validate(); err != nil {
		s.sendEvent("error", map[string]interface{}{"message": err.Error()})
		atomic.StoreInt32(&s.closeCode, websocket.ClosePolicyViolation)
		s.Close(err.Error())
		return err
	}

	metrics.RecordSessionOpened()
	s.deps.Records.StartCall(s.CallSID, s.ConversationID)
	s.deps.Orchestrator.StartConversation(s.ConversationID, s.CallSID)

	s.setState(StateReady)
	s.sendEvent("ready", map[string]interface{}{"conversation_id": s.ConversationID})

	// Warm the cache so the greeting and degraded fallbacks play with
	// no synthesis latency later.
	s.deps.Orchestrator.Prime(ctx, s.VoiceID,
		append([]string{s.cfg.Greeting}, orchestrator.DefaultFallbackPhrases...))

	err := s.deps.Orchestrator.Speak(ctx, &orchestrator.Request{
		ConversationID: s.ConversationID,
		CallSID:        s.CallSID,
		Text:           s.cfg.Greeting,
		VoiceID:        s.VoiceID,
		Profile:        orchestrator.ProfileUltraLow,
	}, s)
	if err != nil {
		// Transient synthesis failure. The session stays up and listens.
		s.deps.Logger.Warn("failed to speak greeting",
			zap.String("call_sid", s.CallSID), zap.Error(err))
		s.setState(StateListening)
		s.sendEvent("listening", nil)
	}
	return nil
}

func (s *Session) validate() error {
	if s.CallSID == "" || s.ConversationID == "" {
		return fmt.Errorf("missing required parameters")
	}
	if s.VoiceID == "" {
		return fmt.Errorf("no synthesis voice configured")
	}
	if s.deps.Transcriber == nil || !s.deps.Transcriber.IsAvailable() {
		return fmt.Errorf("no transcription provider enabled")
	}
	return s.deps.Orchestrator.Ready()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(atomic.LoadInt32((*int32)(&s.state)))
}

func (s *Session) setState(st State) {
	atomic.StoreInt32((*int32)(&s.state), int32(st))
}

// OnInboundAudio accepts one inbound audio frame from the wire.
// Malformed frames are dropped with a warning; they are never fatal.
func (s *Session) OnInboundAudio(data []byte) {
	switch s.State() {
	case StateClosing, StateClosed, StateConnecting:
		return
	}

	if len(data) == 0 || len(data)%2 != 0 {
		s.deps.Logger.Warn("dropping malformed audio frame",
			zap.String("call_sid", s.CallSID),
			zap.Int("bytes", len(data)))
		return
	}

	// Telephony legs deliver 8kHz; the providers expect the pipeline rate.
	if s.cfg.WireSampleRate == 8000 && s.cfg.SampleRate == 16000 {
		data = audio.Resample8kTo16k(data)
	}

	if s.State() == StateSpeaking {
		if audio.RMSEnergy(data) >= s.cfg.BargeInEnergy {
			s.Interrupt()
		}
	}

	s.buffer.Append(data)
	if s.buffer.Ready() {
		utterance := s.buffer.Drain()
		go s.processUtterance(context.Background(), utterance)
	}
}

// OnControlMessage handles an inbound JSON frame. Text input is
// accepted as an alternative to audio (used by the test client), and
// "media" frames carry base64 audio for gateways that cannot send
// binary frames. A media frame switches outbound audio to the same
// encoding.
func (s *Session) OnControlMessage(raw []byte) {
	var msg struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Payload  string `json:"payload"`
		Encoding string `json:"encoding"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.deps.Logger.Warn("dropping malformed control frame",
			zap.String("call_sid", s.CallSID), zap.Error(err))
		return
	}
	switch msg.Type {
	case "text":
		if strings.TrimSpace(msg.Text) != "" {
			go s.processText(context.Background(), msg.Text)
		}
	case "media":
		data, err := audio.DecodeBase64PCM(msg.Payload)
		if err != nil {
			s.deps.Logger.Warn("dropping malformed media frame",
				zap.String("call_sid", s.CallSID), zap.Error(err))
			return
		}
		s.mediaWire.Store(true)
		if msg.Encoding == "mulaw" {
			data = audio.DecodeMuLawToPCM16(data)
		}
		s.OnInboundAudio(data)
	case "interrupt":
		s.Interrupt()
	}
}

// minUtteranceBytes filters out fragments too short to transcribe
// (under ~100ms of PCM16).
func (s *Session) minUtteranceBytes() int {
	return s.cfg.SampleRate / 10 * 2
}

func (s *Session) processUtterance(ctx context.Context, data []byte) {
	if len(data) < s.minUtteranceBytes() {
		return
	}

	s.processingMu.Lock()
	defer s.processingMu.Unlock()

	var result *providers.TranscribeResult
	started := time.Now()
	err := s.deps.Breakers.Call(ctx, providers.ServiceTranscription, func(ctx context.Context) error {
		r, err := s.deps.Transcriber.Transcribe(ctx, &providers.TranscribeRequest{
			AudioData:  data,
			SampleRate: s.cfg.SampleRate,
			Language:   s.cfg.Language,
		})
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if !breaker.IsOpen(err) {
		metrics.RecordProviderCall(providers.ServiceTranscription, err == nil, time.Since(started))
	}
	if err != nil {
		s.deps.Logger.Warn("transcription failed",
			zap.String("call_sid", s.CallSID), zap.Error(err))
		return
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return
	}
	s.respondTo(ctx, text)
}

func (s *Session) processText(ctx context.Context, text string) {
	s.processingMu.Lock()
	defer s.processingMu.Unlock()
	s.respondTo(ctx, strings.TrimSpace(text))
}

// respondTo runs emotion detection and the response pipeline for one
// piece of recognized customer input.
func (s *Session) respondTo(ctx context.Context, text string) {
	s.recordSilenceGap()

	var emotion *providers.EmotionResult
	if s.deps.Emotion != nil && s.deps.Emotion.IsAvailable() {
		err := s.deps.Breakers.Call(ctx, providers.ServiceEmotion, func(ctx context.Context) error {
			r, err := s.deps.Emotion.DetectEmotion(ctx, text)
			if err != nil {
				return err
			}
			emotion = r
			return nil
		})
		if err != nil {
			// Emotion detection is advisory. Absorb and continue.
			s.deps.Logger.Debug("emotion detection unavailable",
				zap.String("call_sid", s.CallSID), zap.Error(err))
		} else if emotion != nil {
			s.sendEvent("emotion", map[string]interface{}{
				"label":      emotion.Emotion,
				"confidence": emotion.Confidence,
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
			})
		}
	}

	err := s.deps.Orchestrator.ProcessInput(ctx, &orchestrator.Request{
		ConversationID: s.ConversationID,
		CallSID:        s.CallSID,
		Text:           text,
		Personality:    s.cfg.Personality,
		VoiceID:        s.VoiceID,
		Profile:        orchestrator.ProfileBalanced,
		Emotion:        emotion,
	}, s)
	if err != nil {
		s.deps.Logger.Warn("pipeline failed for input",
			zap.String("call_sid", s.CallSID), zap.Error(err))
	}
}

// Interrupt handles barge-in: cancel the in-flight request, flush
// queued outbound audio, and go back to listening. Chunks produced
// after the cancellation point are dropped before emission.
func (s *Session) Interrupt() {
	if s.State() != StateSpeaking {
		return
	}
	s.setState(StateInterrupted)

	// Everything emitted for the current turn from here on is stale.
	s.turnMu.Lock()
	s.staleTurn = s.currentTurn
	s.turnMu.Unlock()

	s.deps.Orchestrator.Interrupt(s.ConversationID)
	s.flushAudioQueue()

	s.statsMu.Lock()
	s.customerInterrupts++
	s.statsMu.Unlock()

	s.sendEvent("interrupted", nil)
	s.setState(StateListening)
	s.sendEvent("listening", nil)
}

// Close tears the session down exactly once. A non-empty reason is
// reported on the wire before the channel closes.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)

		if reason != "" && reason != "normal" {
			s.sendEvent("error", map[string]interface{}{"message": reason})
		}

		s.publishFinalQuality()
		s.deps.Orchestrator.EndConversation(s.ConversationID)

		close(s.quit)
		<-s.writerDone

		code := int(atomic.LoadInt32(&s.closeCode))
		if code == 0 {
			code = websocket.CloseNormalClosure
		}
		s.deps.Transport.WriteClose(code, reason)
		s.deps.Transport.Close()

		s.setState(StateClosed)
		metrics.RecordSessionClosed()
		s.deps.Logger.Info("session closed",
			zap.String("call_sid", s.CallSID),
			zap.String("reason", reason),
		)
	})
}

// Quality scores the conversation so far. ok is false when no turns
// have been recorded yet.
func (s *Session) Quality() (quality.Score, bool) {
	conv, found := s.deps.Orchestrator.Conversation(s.ConversationID)
	if !found {
		return quality.Score{}, false
	}
	turns := conv.History.Snapshot()
	if len(turns) == 0 {
		return quality.Score{}, false
	}

	s.statsMu.Lock()
	in := quality.Input{
		Turns:                 turns,
		CustomerInterruptions: s.customerInterrupts,
		AgentInterruptions:    s.agentInterrupts,
		SilenceGaps:           append([]time.Duration(nil), s.silenceGaps...),
	}
	s.statsMu.Unlock()

	return quality.Assess(in), true
}

// publishFinalQuality scores the finished conversation, reports it on
// the wire, fans it out to subscribers, and persists it.
func (s *Session) publishFinalQuality() {
	score, ok := s.Quality()
	if !ok {
		s.deps.Records.FinishCall(s.CallSID, nil)
		return
	}

	s.sendEvent("quality", map[string]interface{}{
		"overall_score": score.Overall,
		"breakdown":     score.SubScores,
	})
	s.deps.Bus.Publish(events.QualityUpdate{
		CallSID:        s.CallSID,
		ConversationID: s.ConversationID,
		Overall:        score.Overall,
		Breakdown:      score.SubScores,
		Flags:          score.Flags,
	})
	s.deps.Records.FinishCall(s.CallSID, &callrecord.QualitySnapshot{
		Overall:         score.Overall,
		SubScores:       score.SubScores,
		Flags:           score.Flags,
		Recommendations: score.Recommendations,
		Insights:        score.Insights,
		ScoredAt:        time.Now(),
	})
}

// EmitChunk implements orchestrator.Sink. Audio frames are queued in
// order for the wire; the state machine follows first chunk and final
// chunk of each turn. Chunks from a turn superseded by Interrupt are
// dropped here, so a straggler racing the cancellation cannot flip the
// session back to SPEAKING.
func (s *Session) EmitChunk(chunk orchestrator.AudioChunk) {
	s.turnMu.Lock()
	if chunk.Turn != 0 && chunk.Turn <= s.staleTurn {
		s.turnMu.Unlock()
		return
	}
	if chunk.Turn > s.currentTurn {
		s.currentTurn = chunk.Turn
	}
	s.turnMu.Unlock()

	if chunk.Thinking {
		s.send(frame{data: chunk.Data, audio: true})
		return
	}

	if s.State() != StateSpeaking {
		// Agent starting to talk over buffered customer speech counts
		// against conversational flow.
		if s.buffer.Size() >= s.minUtteranceBytes() {
			s.statsMu.Lock()
			s.agentInterrupts++
			s.statsMu.Unlock()
		}
		s.setState(StateSpeaking)
		s.sendEvent("speaking", nil)
	}

	if len(chunk.Data) > 0 {
		s.send(frame{data: chunk.Data, audio: true})
	}

	if chunk.Final {
		s.statsMu.Lock()
		s.agentSpeechEnd = time.Now()
		s.statsMu.Unlock()
		if s.State() == StateSpeaking {
			s.setState(StateListening)
			s.sendEvent("listening", nil)
		}
	}
}

// EmitEvent implements orchestrator.Sink.
func (s *Session) EmitEvent(name string, payload map[string]interface{}) {
	s.sendEvent(name, payload)
}

func (s *Session) recordSilenceGap() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if !s.agentSpeechEnd.IsZero() {
		s.silenceGaps = append(s.silenceGaps, time.Since(s.agentSpeechEnd))
		s.agentSpeechEnd = time.Time{}
	}
}

func (s *Session) sendEvent(name string, payload map[string]interface{}) {
	control := map[string]interface{}{"type": name}
	for k, v := range payload {
		control[k] = v
	}
	s.send(frame{control: control})
}

func (s *Session) send(f frame) {
	select {
	case <-s.quit:
	case s.out <- f:
	}
}

// flushAudioQueue discards queued-but-unsent audio frames while keeping
// control frames in order.
func (s *Session) flushAudioQueue() {
	var keep []frame
	for {
		select {
		case f := <-s.out:
			if !f.audio {
				keep = append(keep, f)
			}
		default:
			for _, f := range keep {
				select {
				case s.out <- f:
				default:
				}
			}
			return
		}
	}
}

// writeLoop is the single writer to the transport. It drains pending
// frames before honoring shutdown so closing control events still go
// out.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	broken := false
	for {
		select {
		case f := <-s.out:
			broken = s.write(f, broken)
		default:
			select {
			case f := <-s.out:
				broken = s.write(f, broken)
			case <-s.quit:
				return
			}
		}
	}
}

func (s *Session) write(f frame, broken bool) bool {
	if broken {
		return true
	}
	var err error
	if f.audio || f.data != nil {
		err = s.writeAudio(f.data)
	} else {
		err = s.deps.Transport.WriteControl(f.control)
	}
	if err != nil {
		s.deps.Logger.Debug("transport write failed",
			zap.String("call_sid", s.CallSID), zap.Error(err))
		return true
	}
	return false
}

// writeAudio converts pipeline-rate audio to the wire rate and, for
// media-frame gateways, chunks it into base64 control frames.
func (s *Session) writeAudio(data []byte) error {
	if s.cfg.WireSampleRate == 8000 && s.cfg.SampleRate == 16000 {
		data = audio.Resample16kTo8k(data)
	}
	if !s.mediaWire.Load() {
		return s.deps.Transport.WriteBinary(data)
	}
	// 20ms frames at the wire rate.
	for _, chunk := range audio.ChunkPCM(data, s.cfg.WireSampleRate/50*2) {
		err := s.deps.Transport.WriteControl(map[string]interface{}{
			"type":    "media",
			"payload": audio.EncodePCMChunkToBase64(chunk),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
