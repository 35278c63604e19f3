// Package callrecord persists per-call conversation history and quality
// reports to MongoDB. Writes are best effort with retry; the live audio
// path never reads from here.
package callrecord

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/troikatech/voice-core/pkg/mongo"
	"github.com/troikatech/voice-core/pkg/retry"
)

const collection = "calls"

// Turn is one utterance in the conversation, either side.
type Turn struct {
	Role              string    `bson:"role" json:"role"`
	Text              string    `bson:"text" json:"text"`
	Emotion           string    `bson:"emotion,omitempty" json:"emotion,omitempty"`
	EmotionConfidence float64   `bson:"emotion_confidence,omitempty" json:"emotion_confidence,omitempty"`
	Degraded          bool      `bson:"degraded,omitempty" json:"degraded,omitempty"`
	Timestamp         time.Time `bson:"timestamp" json:"timestamp"`
}

// QualitySnapshot is the final scored report for a call.
type QualitySnapshot struct {
	Overall         float64            `bson:"overall" json:"overall"`
	SubScores       map[string]float64 `bson:"sub_scores" json:"sub_scores"`
	Flags           []string           `bson:"flags,omitempty" json:"flags,omitempty"`
	Recommendations []string           `bson:"recommendations,omitempty" json:"recommendations,omitempty"`
	Insights        []string           `bson:"insights,omitempty" json:"insights,omitempty"`
	ScoredAt        time.Time          `bson:"scored_at" json:"scored_at"`
}

// Store writes call records to MongoDB. A nil Store is valid and drops
// all writes, so callers never have to branch on persistence being
// configured.
type Store struct {
	client *mongo.Client
	logger *zap.Logger
	retry  retry.Config
}

func NewStore(client *mongo.Client, logger *zap.Logger) *Store {
	if client == nil {
		return nil
	}
	return &Store{
		client: client,
		logger: logger,
		retry:  retry.DefaultConfig(),
	}
}

// StartCall upserts the call document when a session opens.
func (s *Store) StartCall(callSID, conversationID string) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"call_sid":        callSID,
			"conversation_id": conversationID,
			"status":          "in-progress",
			"started_at":      time.Now(),
		},
		"$setOnInsert": bson.M{
			"created_at": time.Now(),
		},
	}

	err := retry.Do(ctx, s.retry, func() error {
		_, err := s.client.Collection(collection).UpdateOne(ctx,
			bson.M{"call_sid": callSID}, update, options.Update().SetUpsert(true))
		return err
	})
	if err != nil {
		s.logger.Warn("failed to persist call start",
			zap.String("call_sid", callSID), zap.Error(err))
	}
}

// AppendTurn appends one conversation turn to the call document.
func (s *Store) AppendTurn(callSID string, turn Turn) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := retry.Do(ctx, s.retry, func() error {
		_, err := s.client.Collection(collection).UpdateOne(ctx,
			bson.M{"call_sid": callSID},
			bson.M{"$push": bson.M{"turns": turn}})
		return err
	})
	if err != nil {
		s.logger.Warn("failed to persist conversation turn",
			zap.String("call_sid", callSID), zap.Error(err))
	}
}

// FinishCall marks the call completed and stores the quality report.
func (s *Store) FinishCall(callSID string, quality *QualitySnapshot) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	set := bson.M{
		"status":   "completed",
		"ended_at": time.Now(),
	}
	if quality != nil {
		set["quality"] = quality
	}

	err := retry.Do(ctx, s.retry, func() error {
		_, err := s.client.Collection(collection).UpdateOne(ctx,
			bson.M{"call_sid": callSID}, bson.M{"$set": set})
		return err
	})
	if err != nil {
		s.logger.Warn("failed to persist call completion",
			zap.String("call_sid", callSID), zap.Error(err))
	}
}

// GetQuality loads the stored quality report for a call.
func (s *Store) GetQuality(ctx context.Context, callSID string) (*QualitySnapshot, error) {
	if s == nil {
		return nil, nil
	}
	var doc struct {
		Quality *QualitySnapshot `bson:"quality"`
	}
	err := s.client.Collection(collection).FindOne(ctx,
		bson.M{"call_sid": callSID},
		options.FindOne().SetProjection(bson.M{"quality": 1})).Decode(&doc)
	if err != nil {
		return nil, err
	}
	return doc.Quality, nil
}
