package handlers

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/voice-core/internal/voice"
	"github.com/troikatech/voice-core/pkg/env"
	"github.com/troikatech/voice-core/pkg/logger"
	"github.com/troikatech/voice-core/pkg/mongo"
)

type Handler struct {
	cfg         *env.Config
	redisClient *redis.Client
	mongoClient *mongo.Client
	container   *voice.Container
	logger      *zap.Logger
}

func NewHandler(
	cfg *env.Config,
	redisClient *redis.Client,
	mongoClient *mongo.Client,
	container *voice.Container,
) *Handler {
	return &Handler{
		cfg:         cfg,
		redisClient: redisClient,
		mongoClient: mongoClient,
		container:   container,
		logger:      logger.Log,
	}
}
