package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"go.uber.org/zap"

	"github.com/troikatech/voice-core/internal/api/handlers"
	"github.com/troikatech/voice-core/internal/voice"
	"github.com/troikatech/voice-core/pkg/env"
	"github.com/troikatech/voice-core/pkg/logger"
	"github.com/troikatech/voice-core/pkg/middleware"
	"github.com/troikatech/voice-core/pkg/mongo"
	"github.com/troikatech/voice-core/pkg/otel"
)

// Server wires the HTTP surface around the voice pipeline container.
type Server struct {
	cfg         *env.Config
	mongoClient *mongo.Client
	redisClient *redis.Client
	container   *voice.Container
	handler     *handlers.Handler
}

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing("voice-core", "1.0.0", cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdown()
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting voice-core server",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
	)

	// Redis backs the API rate limiter and the quality pub/sub channel.
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Log.Warn("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()

	container := voice.NewContainer(cfg, mongoClient, redisClient, logger.Log)

	if container.Reasoner.IsAvailable() {
		logger.Log.Info("Reasoning provider initialized", zap.String("provider", container.Reasoner.Name()))
	} else {
		logger.Log.Warn("No reasoning provider available - sessions will be rejected")
	}
	if container.Synthesizer.IsAvailable() {
		logger.Log.Info("Synthesis provider initialized", zap.String("provider", container.Synthesizer.Name()))
	}
	if container.Transcriber.IsAvailable() {
		logger.Log.Info("Transcription provider initialized", zap.String("provider", container.Transcriber.Name()))
	}
	if container.Emotion != nil {
		logger.Log.Info("Emotion detection enabled", zap.String("url", cfg.EmotionServiceURL))
	}

	apiHandler := handlers.NewHandler(cfg, redisClient, mongoClient, container)

	server := &Server{
		cfg:         cfg,
		mongoClient: mongoClient,
		redisClient: redisClient,
		container:   container,
		handler:     apiHandler,
	}

	router := server.setupRouter()

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	container.Sessions.CloseAll("server shutting down")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

func (s *Server) setupRouter() *gin.Engine {
	if s.cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20)) // 1 MB limit

	if s.cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	corsConfig := cors.DefaultConfig()
	if s.cfg.CORSAllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{s.cfg.CORSAllowedOrigins}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	rateLimiter := middleware.NewRateLimiter(s.redisClient, s.cfg.APIRateLimitRPM)

	// Operational endpoints
	router.GET("/health", s.handler.HealthCheck)
	router.GET("/metrics", s.handler.GetMetrics)
	router.GET("/metrics/prometheus", s.handler.GetPrometheusMetrics)

	// Pipeline administration
	api := router.Group("/api")
	api.Use(rateLimiter.Middleware())
	{
		api.GET("/breakers", s.handler.ListBreakers)
		api.POST("/breakers/:service/reset", s.handler.ResetBreaker)
		api.GET("/calls/:id/quality", s.handler.GetCallQuality)
	}

	// Duplex audio endpoint (public; telephony gateways connect directly).
	// Session establishment shares the fixed-window limiter so a
	// misbehaving gateway cannot reconnect-storm the pipeline.
	router.GET("/voice/ws", rateLimiter.Middleware(), s.handler.VoiceWebSocket)

	return router
}
