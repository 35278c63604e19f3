// Package voice wires the pipeline services together. The container is
// constructed once at startup and handed to each session by reference;
// there are no package-global singletons.
package voice

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/voice-core/internal/voice/events"
	"github.com/troikatech/voice-core/internal/voice/orchestrator"
	"github.com/troikatech/voice-core/internal/voice/session"
	"github.com/troikatech/voice-core/pkg/breaker"
	"github.com/troikatech/voice-core/pkg/cache"
	"github.com/troikatech/voice-core/pkg/callrecord"
	"github.com/troikatech/voice-core/pkg/env"
	"github.com/troikatech/voice-core/pkg/mongo"
	"github.com/troikatech/voice-core/pkg/providers"
)

// Container holds the shared services of the voice pipeline.
type Container struct {
	Breakers     *breaker.Registry
	Cache        *cache.ResponseCache
	Orchestrator *orchestrator.Orchestrator
	Sessions     *session.Registry
	Bus          *events.Bus
	Records      *callrecord.Store

	Transcriber providers.Transcriber
	Reasoner    providers.Reasoner
	Synthesizer providers.Synthesizer
	Emotion     providers.EmotionDetector

	cfg    *env.Config
	logger *zap.Logger
}

// NewContainer builds the full service graph from configuration.
// mongoClient and redisClient may be nil; persistence and pub/sub
// degrade to no-ops.
func NewContainer(cfg *env.Config, mongoClient *mongo.Client, redisClient *redis.Client, logger *zap.Logger) *Container {
	aiTimeout := time.Duration(cfg.AITimeoutMs) * time.Millisecond

	var transcriber providers.Transcriber
	if cfg.DeepgramApiKey != "" {
		transcriber = providers.NewDeepgramTranscriber(cfg.DeepgramApiKey, cfg.DeepgramModel, aiTimeout, logger)
	} else {
		transcriber = providers.NewWhisperTranscriber(cfg.OpenAIApiKey, cfg.WhisperModel, cfg.WhisperLanguage, aiTimeout, logger)
	}

	reasoner := providers.NewOpenAIReasoner(cfg.OpenAIApiKey, cfg.OpenAIModel, cfg.OpenAIMaxTokens, aiTimeout, logger)
	synthesizer := providers.NewElevenLabsSynthesizer(
		cfg.ElevenLabsApiKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModel, cfg.ElevenLabsOutputFormat,
		aiTimeout, logger)

	var emotion providers.EmotionDetector
	if cfg.EmotionServiceURL != "" {
		emotion = providers.NewEmotionClient(cfg.EmotionServiceURL,
			time.Duration(cfg.EmotionTimeoutMs)*time.Millisecond, logger)
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureRatePct: cfg.BreakerFailureRatePct,
		MinSamples:     cfg.BreakerMinSamples,
		Window:         time.Duration(cfg.BreakerWindowSec) * time.Second,
		ResetTimeout:   time.Duration(cfg.BreakerResetTimeoutMs) * time.Millisecond,
	}, logger)

	responseCache := cache.New(cfg.CacheCapacity, logger)
	records := callrecord.NewStore(mongoClient, logger)
	orch := orchestrator.New(breakers, responseCache, reasoner, synthesizer, records, logger)

	return &Container{
		Breakers:     breakers,
		Cache:        responseCache,
		Orchestrator: orch,
		Sessions:     session.NewRegistry(),
		Bus:          events.NewBus(redisClient, logger),
		Records:      records,
		Transcriber:  transcriber,
		Reasoner:     reasoner,
		Synthesizer:  synthesizer,
		Emotion:      emotion,
		cfg:          cfg,
		logger:       logger,
	}
}

// SessionConfig derives per-session tunables from the loaded config.
func (c *Container) SessionConfig() session.Config {
	return session.Config{
		BufferBytes:   c.cfg.AudioBufferBytes,
		SilenceWait:   time.Duration(c.cfg.AudioSilenceMs) * time.Millisecond,
		BargeInEnergy: c.cfg.BargeInEnergy,
		SampleRate:    c.cfg.SampleRateDefault,
		Language:      c.cfg.WhisperLanguage,
		Greeting:      c.cfg.AgentGreeting,
		Personality:   c.cfg.AgentPersonality,
	}
}

// NewSession builds a session bound to this container's services.
// voiceID and wireSampleRate are caller overrides; zero values fall
// back to the configured defaults.
func (c *Container) NewSession(callSID, conversationID, voiceID string, wireSampleRate int, transport session.Transport) *session.Session {
	if voiceID == "" {
		voiceID = c.cfg.ElevenLabsVoiceID
	}
	cfg := c.SessionConfig()
	if wireSampleRate > 0 {
		cfg.WireSampleRate = wireSampleRate
	}
	s := session.New(callSID, conversationID, voiceID, cfg, session.Deps{
		Transport:    transport,
		Orchestrator: c.Orchestrator,
		Transcriber:  c.Transcriber,
		Emotion:      c.Emotion,
		Breakers:     c.Breakers,
		Records:      c.Records,
		Bus:          c.Bus,
		Logger:       c.logger,
	})
	return s
}
