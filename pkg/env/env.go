package env

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string
	AppPort string
	TZ      string

	RedisURL string

	MongoURI string
	DBName   string

	// AI provider configuration
	FeatureAI   bool
	AITimeoutMs int

	OpenAIApiKey    string
	OpenAIModel     string
	OpenAIMaxTokens int

	DeepgramApiKey string
	DeepgramModel  string

	ElevenLabsApiKey       string
	ElevenLabsVoiceID      string
	ElevenLabsModel        string
	ElevenLabsOutputFormat string

	WhisperModel    string
	WhisperLanguage string

	// Emotion detection service
	EmotionServiceURL string
	EmotionTimeoutMs  int

	// Circuit breaker tuning
	BreakerFailureRatePct int
	BreakerMinSamples     int
	BreakerWindowSec      int
	BreakerResetTimeoutMs int

	// Response cache
	CacheCapacity int

	// Audio session
	AudioBufferBytes  int
	AudioSilenceMs    int
	BargeInEnergy     int
	SampleRateDefault int

	AgentGreeting    string
	AgentPersonality string

	VoiceBaseURL string

	APIRateLimitRPM int

	LogLevel           string
	CORSAllowedOrigins string

	OTELEndpoint string
	OTELEnabled  bool
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// Missing .env is fine - production containers configure through
		// the environment directly.
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", "8080"),
		TZ:      getEnv("TZ", "Asia/Kolkata"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "troika"),

		FeatureAI:   getEnvBool("FEATURE_AI", true),
		AITimeoutMs: getEnvInt("AI_TIMEOUT_MS", 3500),

		OpenAIApiKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIMaxTokens: getEnvInt("OPENAI_MAX_TOKENS", 400),

		DeepgramApiKey: getEnv("DEEPGRAM_API_KEY", ""),
		DeepgramModel:  getEnv("DEEPGRAM_MODEL", "nova-2"),

		ElevenLabsApiKey:       getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:      getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModel:        getEnv("ELEVENLABS_MODEL", "eleven_multilingual_v2"),
		ElevenLabsOutputFormat: getEnv("ELEVENLABS_OUTPUT_FORMAT", "pcm_16000"),

		WhisperModel:    getEnv("WHISPER_MODEL", "whisper-1"),
		WhisperLanguage: getEnv("WHISPER_LANGUAGE", ""),

		EmotionServiceURL: getEnv("EMOTION_SERVICE_URL", ""),
		EmotionTimeoutMs:  getEnvInt("EMOTION_TIMEOUT_MS", 800),

		BreakerFailureRatePct: getEnvInt("BREAKER_FAILURE_RATE_PCT", 50),
		BreakerMinSamples:     getEnvInt("BREAKER_MIN_SAMPLES", 10),
		BreakerWindowSec:      getEnvInt("BREAKER_WINDOW_SEC", 60),
		BreakerResetTimeoutMs: getEnvInt("BREAKER_RESET_TIMEOUT_MS", 30000),

		CacheCapacity: getEnvInt("RESPONSE_CACHE_CAPACITY", 256),

		AudioBufferBytes:  getEnvInt("AUDIO_BUFFER_BYTES", 32*1024),
		AudioSilenceMs:    getEnvInt("AUDIO_SILENCE_MS", 1500),
		BargeInEnergy:     getEnvInt("BARGE_IN_ENERGY", 1000),
		SampleRateDefault: getEnvInt("SAMPLE_RATE_DEFAULT", 16000),

		AgentGreeting:    getEnv("AGENT_GREETING", ""),
		AgentPersonality: getEnv("AGENT_PERSONALITY", ""),

		VoiceBaseURL: getEnv("VOICE_BASE_URL", ""),

		APIRateLimitRPM: getEnvInt("API_RATE_LIMIT_RPM", 180),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", cfg.TZ, err)
	}
	time.Local = loc

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}
