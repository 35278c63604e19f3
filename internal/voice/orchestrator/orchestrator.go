// Package orchestrator drives the transcription, reasoning and synthesis
// pipeline for one user input, with sentence-level pipelining to keep
// time-to-first-audio low. Provider calls go through the circuit breaker
// registry; synthesized phrases are cached by (voice, text).
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-core/internal/voice/convo"
	"github.com/troikatech/voice-core/pkg/breaker"
	"github.com/troikatech/voice-core/pkg/cache"
	"github.com/troikatech/voice-core/pkg/callrecord"
	"github.com/troikatech/voice-core/pkg/metrics"
	"github.com/troikatech/voice-core/pkg/otel"
	"github.com/troikatech/voice-core/pkg/providers"
)

// AudioChunk is one piece of synthesized response audio. Seq is
// contiguous within a turn; the last chunk of a turn carries Final.
// Turn is the conversation's request generation, so a sink can discard
// stragglers from a superseded request. Thinking chunks are filler
// audio outside the sequenced stream.
type AudioChunk struct {
	Turn        int
	Seq         int
	Data        []byte
	ContentType string
	Final       bool
	Thinking    bool
}

// Sink receives pipeline output as it is produced. Implementations must
// not block; the session side queues chunks for the wire.
type Sink interface {
	EmitChunk(chunk AudioChunk)
	EmitEvent(name string, payload map[string]interface{})
}

// Request is one pipeline invocation for a conversation.
type Request struct {
	ConversationID string
	CallSID        string
	Text           string
	Personality    string
	VoiceID        string
	Profile        Profile
	Options        *Options // nil takes the profile defaults
	Emotion        *providers.EmotionResult
}

// Conversation is the per-call pipeline context. At most one request is
// in flight per conversation; starting a new one cancels the previous.
type Conversation struct {
	ID      string
	CallSID string
	History *convo.History

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    int
}

// begin cancels any in-flight request and installs a fresh cancellation
// token for the new one.
func (c *Conversation) begin(parent context.Context) (context.Context, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.gen++
	return ctx, c.gen
}

func (c *Conversation) finish(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Conversation) interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// DefaultFallbackPhrases are spoken when the reasoning provider is
// unavailable. The first one is synthesized on demand if none are
// already cached for the session voice.
var DefaultFallbackPhrases = []string{
	"I understand. Could you tell me a bit more about that?",
	"I see. Please go on, I'm listening.",
}

// Orchestrator converts user input into a stream of response audio.
type Orchestrator struct {
	breakers *breaker.Registry
	cache    *cache.ResponseCache
	reasoner providers.Reasoner
	synth    providers.Synthesizer
	records  *callrecord.Store
	logger   *zap.Logger

	fallbackPhrases []string
	thinkingAudio   []byte

	mu    sync.RWMutex
	convs map[string]*Conversation
}

func New(
	breakers *breaker.Registry,
	responseCache *cache.ResponseCache,
	reasoner providers.Reasoner,
	synth providers.Synthesizer,
	records *callrecord.Store,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		breakers:        breakers,
		cache:           responseCache,
		reasoner:        reasoner,
		synth:           synth,
		records:         records,
		logger:          logger,
		fallbackPhrases: DefaultFallbackPhrases,
		thinkingAudio:   makeThinkingTone(),
		convs:           make(map[string]*Conversation),
	}
}

// StartConversation registers pipeline context for a new call.
func (o *Orchestrator) StartConversation(conversationID, callSID string) *Conversation {
	conv := &Conversation{
		ID:      conversationID,
		CallSID: callSID,
		History: convo.NewHistory(),
	}
	o.mu.Lock()
	o.convs[conversationID] = conv
	o.mu.Unlock()
	return conv
}

// Conversation returns the registered context for an id, if any.
func (o *Orchestrator) Conversation(conversationID string) (*Conversation, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	conv, ok := o.convs[conversationID]
	return conv, ok
}

// EndConversation cancels any in-flight request and drops the context.
func (o *Orchestrator) EndConversation(conversationID string) {
	o.mu.Lock()
	conv, ok := o.convs[conversationID]
	delete(o.convs, conversationID)
	o.mu.Unlock()
	if ok {
		conv.interrupt()
	}
}

// Interrupt cancels the in-flight request for a conversation. Any chunk
// produced after this point is dropped before emission.
func (o *Orchestrator) Interrupt(conversationID string) {
	if conv, ok := o.Conversation(conversationID); ok {
		conv.interrupt()
		metrics.RecordInterruption()
	}
}

// Ready reports whether the pipeline has the providers a session needs.
func (o *Orchestrator) Ready() error {
	if o.synth == nil || !o.synth.IsAvailable() {
		return fmt.Errorf("no synthesis voice configured")
	}
	if o.reasoner == nil || !o.reasoner.IsAvailable() {
		return fmt.Errorf("no reasoning provider enabled")
	}
	return nil
}

// Prime warms the response cache with pre-synthesized phrases so the
// opening turn and degraded fallbacks do not pay synthesis latency.
func (o *Orchestrator) Prime(ctx context.Context, voiceID string, phrases []string) {
	for _, phrase := range phrases {
		_, _, err := o.cache.GetOrSynthesize(ctx, voiceID, phrase, func(ctx context.Context) (cache.Entry, error) {
			return o.synthesize(ctx, phrase, voiceID)
		})
		if err != nil {
			o.logger.Warn("failed to prime phrase",
				zap.String("voice_id", voiceID), zap.Error(err))
		}
	}
}

// Speak synthesizes a known agent line (opening turn, scripted prompt)
// without involving the reasoning stage. Cache first.
func (o *Orchestrator) Speak(ctx context.Context, req *Request, sink Sink) error {
	conv, ok := o.Conversation(req.ConversationID)
	if !ok {
		return fmt.Errorf("unknown conversation %q", req.ConversationID)
	}
	ctx, gen := conv.begin(ctx)
	defer conv.finish(gen)

	sink.EmitEvent("processing_start", nil)

	entry, _, err := o.cache.GetOrSynthesize(ctx, req.VoiceID, req.Text, func(ctx context.Context) (cache.Entry, error) {
		return o.synthesize(ctx, req.Text, req.VoiceID)
	})
	if err != nil {
		return fmt.Errorf("failed to synthesize line: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}

	sink.EmitChunk(AudioChunk{Turn: gen, Seq: 0, Data: entry.Audio, ContentType: entry.ContentType, Final: true})
	o.completeTurn(conv, req, sink, req.Text, false)
	return nil
}

// ProcessInput runs the full pipeline for one piece of customer input.
func (o *Orchestrator) ProcessInput(ctx context.Context, req *Request, sink Sink) error {
	conv, ok := o.Conversation(req.ConversationID)
	if !ok {
		return fmt.Errorf("unknown conversation %q", req.ConversationID)
	}

	params := req.Profile.params()
	opts := params.options
	if req.Options != nil {
		opts = *req.Options
	}

	ctx, gen := conv.begin(ctx)
	defer conv.finish(gen)

	ctx, span := otel.StartSpan(ctx, "pipeline.process_input")
	defer span.End()

	// History snapshot is taken before recording the new input so the
	// reasoning request does not see it twice.
	history := conv.History.Messages()

	customer := convo.Turn{Role: convo.RoleCustomer, Text: req.Text}
	if req.Emotion != nil {
		customer.Emotion = req.Emotion.Emotion
		customer.EmotionConfidence = req.Emotion.Confidence
	}
	conv.History.Append(customer)
	o.records.AppendTurn(req.CallSID, callrecord.Turn{
		Role:              customer.Role,
		Text:              customer.Text,
		Emotion:           customer.Emotion,
		EmotionConfidence: customer.EmotionConfidence,
		Timestamp:         time.Now(),
	})

	sink.EmitEvent("processing_start", nil)

	// Full-phrase cache hit bypasses the reasoning stage entirely.
	if entry, ok := o.cache.Get(req.VoiceID, req.Text); ok {
		if ctx.Err() != nil {
			return nil
		}
		sink.EmitChunk(AudioChunk{Turn: gen, Seq: 0, Data: entry.Audio, ContentType: entry.ContentType, Final: true})
		o.completeTurn(conv, req, sink, req.Text, false)
		return nil
	}

	if opts.UseThinkingSounds && len(o.thinkingAudio) > 0 && ctx.Err() == nil {
		sink.EmitEvent("thinking", nil)
		sink.EmitChunk(AudioChunk{Turn: gen, Data: o.thinkingAudio, ContentType: "audio/pcm", Thinking: true})
	}

	frags := make(chan string, 8)
	var reasonErr error
	go func() {
		defer close(frags)
		reasonErr = o.generateFragments(ctx, req, history, opts, params.minFragmentLen, frags)
	}()

	var (
		seq         int
		parts       []string
		spoken      []string
		pending     string
		havePending bool
	)
	// One fragment of lookahead so the last one can carry Final.
	for frag := range frags {
		if havePending {
			if o.emitFragment(ctx, sink, req.VoiceID, pending, gen, &seq, false) {
				spoken = append(spoken, pending)
			}
		}
		pending, havePending = frag, true
		parts = append(parts, frag)
	}

	if ctx.Err() != nil {
		// Interrupted. Record the fragments that actually played, not
		// ones skipped by a synthesis failure.
		if len(spoken) > 0 {
			o.completeTurn(conv, req, sink, strings.Join(spoken, " "), false)
		}
		return nil
	}

	if reasonErr != nil {
		if !breaker.IsOpen(reasonErr) {
			o.logger.Warn("reasoning call failed, using fallback",
				zap.String("conversation_id", req.ConversationID),
				zap.Error(reasonErr))
		}
		if len(parts) == 0 {
			return o.fallbackResponse(ctx, conv, req, sink, gen, &seq)
		}
		// Partial response already spoken; close it out degraded.
		o.emitFragment(ctx, sink, req.VoiceID, pending, gen, &seq, true)
		o.completeTurn(conv, req, sink, strings.Join(parts, " "), true)
		return nil
	}

	if havePending {
		o.emitFragment(ctx, sink, req.VoiceID, pending, gen, &seq, true)
	}
	if ctx.Err() != nil {
		return nil
	}
	o.completeTurn(conv, req, sink, strings.Join(parts, " "), false)
	return nil
}

// generateFragments runs the breaker-wrapped reasoning call and feeds
// completed sentence fragments into out.
func (o *Orchestrator) generateFragments(
	ctx context.Context,
	req *Request,
	history []providers.Message,
	opts Options,
	minFragmentLen int,
	out chan<- string,
) error {
	started := time.Now()
	err := o.breakers.Call(ctx, providers.ServiceReasoning, func(ctx context.Context) error {
		greq := &providers.GenerateRequest{
			Input:       req.Text,
			Personality: req.Personality,
			History:     history,
		}
		f := newFragmenter(minFragmentLen)
		send := func(frag string) error {
			select {
			case out <- frag:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if opts.StreamPartialResponses {
			err := o.reasoner.GenerateStream(ctx, greq, func(delta string) error {
				for _, frag := range f.Feed(delta) {
					if err := send(frag); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		} else {
			text, err := o.reasoner.Generate(ctx, greq)
			if err != nil {
				return err
			}
			for _, frag := range f.Feed(text) {
				if err := send(frag); err != nil {
					return err
				}
			}
		}

		if tail := f.Flush(); tail != "" {
			return send(tail)
		}
		return nil
	})
	if !breaker.IsOpen(err) && ctx.Err() == nil {
		metrics.RecordProviderCall(providers.ServiceReasoning, err == nil, time.Since(started))
	}
	return err
}

// emitFragment synthesizes one fragment and pushes it to the sink,
// reporting whether the fragment's audio actually went out. A failed
// fragment is skipped so the rest of the response still plays.
func (o *Orchestrator) emitFragment(ctx context.Context, sink Sink, voiceID, text string, turn int, seq *int, final bool) bool {
	entry, _, err := o.cache.GetOrSynthesize(ctx, voiceID, text, func(ctx context.Context) (cache.Entry, error) {
		return o.synthesize(ctx, text, voiceID)
	})
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("fragment synthesis failed, skipping",
				zap.String("voice_id", voiceID),
				zap.Int("fragment_len", len(text)),
				zap.Error(err))
		}
		if final {
			// Close the stream even when the last fragment's audio is lost.
			if ctx.Err() == nil {
				sink.EmitChunk(AudioChunk{Turn: turn, Seq: *seq, Final: true})
				*seq++
			}
		}
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	sink.EmitChunk(AudioChunk{Turn: turn, Seq: *seq, Data: entry.Audio, ContentType: entry.ContentType, Final: final})
	*seq++
	return true
}

func (o *Orchestrator) synthesize(ctx context.Context, text, voiceID string) (cache.Entry, error) {
	var entry cache.Entry
	started := time.Now()
	err := o.breakers.Call(ctx, providers.ServiceSynthesis, func(ctx context.Context) error {
		result, err := o.synth.Synthesize(ctx, &providers.SynthesizeRequest{
			Text:    text,
			VoiceID: voiceID,
		})
		if err != nil {
			return err
		}
		entry = cache.Entry{Audio: result.Audio, ContentType: result.ContentType}
		return nil
	})
	if !breaker.IsOpen(err) && ctx.Err() == nil {
		metrics.RecordProviderCall(providers.ServiceSynthesis, err == nil, time.Since(started))
	}
	return entry, err
}

// fallbackResponse speaks a stock acknowledgment when reasoning is
// unavailable and marks the turn degraded.
func (o *Orchestrator) fallbackResponse(ctx context.Context, conv *Conversation, req *Request, sink Sink, turn int, seq *int) error {
	for _, phrase := range o.fallbackPhrases {
		if entry, ok := o.cache.Get(req.VoiceID, phrase); ok {
			if ctx.Err() != nil {
				return nil
			}
			sink.EmitChunk(AudioChunk{Turn: turn, Seq: *seq, Data: entry.Audio, ContentType: entry.ContentType, Final: true})
			*seq++
			o.completeTurn(conv, req, sink, phrase, true)
			return nil
		}
	}

	phrase := o.fallbackPhrases[0]
	entry, _, err := o.cache.GetOrSynthesize(ctx, req.VoiceID, phrase, func(ctx context.Context) (cache.Entry, error) {
		return o.synthesize(ctx, phrase, req.VoiceID)
	})
	if err != nil {
		// Both stages down. The turn is still recorded so the transcript
		// shows the gap.
		o.completeTurn(conv, req, sink, "", true)
		return fmt.Errorf("fallback synthesis failed: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}
	sink.EmitChunk(AudioChunk{Turn: turn, Seq: *seq, Data: entry.Audio, ContentType: entry.ContentType, Final: true})
	*seq++
	o.completeTurn(conv, req, sink, phrase, true)
	return nil
}

// completeTurn records the agent side of the exchange and signals the
// session that processing is done.
func (o *Orchestrator) completeTurn(conv *Conversation, req *Request, sink Sink, text string, degraded bool) {
	turn := convo.Turn{Role: convo.RoleAgent, Text: text, Degraded: degraded}
	conv.History.Append(turn)
	o.records.AppendTurn(req.CallSID, callrecord.Turn{
		Role:      turn.Role,
		Text:      turn.Text,
		Degraded:  degraded,
		Timestamp: time.Now(),
	})
	metrics.RecordTurn(degraded)
	sink.EmitEvent("processing_complete", map[string]interface{}{"text": text})
}

// makeThinkingTone builds a short, quiet 220 Hz cue played while the
// reasoning stage computes. PCM16 mono at 16 kHz.
func makeThinkingTone() []byte {
	const (
		sampleRate = 16000
		durationMs = 250
		amplitude  = 1200
	)
	samples := sampleRate * durationMs / 1000
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		// Fade in and out to avoid clicks.
		envelope := math.Sin(math.Pi * float64(i) / float64(samples))
		v := int16(amplitude * envelope * math.Sin(2*math.Pi*220*float64(i)/sampleRate))
		buf[2*i] = byte(v)
		buf[2*i+1] = byte(v >> 8)
	}
	return buf
}
