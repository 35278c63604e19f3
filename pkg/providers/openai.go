package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIReasoner generates conversational responses through the OpenAI
// chat completions API, with streaming delivery for sentence pipelining.
type OpenAIReasoner struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
}

// NewOpenAIReasoner creates a new OpenAI reasoning provider
func NewOpenAIReasoner(apiKey, model string, maxTokens int, timeout time.Duration, logger *zap.Logger) *OpenAIReasoner {
	if apiKey == "" {
		return &OpenAIReasoner{logger: logger}
	}

	return &OpenAIReasoner{
		client:    openai.NewClient(apiKey),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
	}
}

// IsAvailable checks if the reasoner is configured
func (r *OpenAIReasoner) IsAvailable() bool {
	return r.client != nil
}

// Name returns the provider name
func (r *OpenAIReasoner) Name() string {
	return "openai"
}

// Generate returns the complete response text in one piece.
func (r *OpenAIReasoner) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	if !r.IsAvailable() {
		return "", fmt.Errorf("OpenAI reasoner not available. Set OPENAI_API_KEY environment variable")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    r.buildMessages(req),
		MaxTokens:   r.resolveMaxTokens(req),
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// GenerateStream delivers response text incrementally as the model
// produces tokens.
func (r *OpenAIReasoner) GenerateStream(ctx context.Context, req *GenerateRequest, onDelta func(delta string) error) error {
	if !r.IsAvailable() {
		return fmt.Errorf("OpenAI reasoner not available. Set OPENAI_API_KEY environment variable")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stream, err := r.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    r.buildMessages(req),
		MaxTokens:   r.resolveMaxTokens(req),
		Temperature: 0.7,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("OpenAI chat completion stream failed: %w", err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("OpenAI stream receive failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := onDelta(delta); err != nil {
			return err
		}
	}
}

func (r *OpenAIReasoner) buildMessages(req *GenerateRequest) []openai.ChatCompletionMessage {
	system := req.Personality
	if system == "" {
		system = "You are a helpful AI calling assistant. Keep responses short and conversational - this is a phone call."
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" || m.Role == "agent" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Input,
	})
	return messages
}

func (r *OpenAIReasoner) resolveMaxTokens(req *GenerateRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if r.maxTokens > 0 {
		return r.maxTokens
	}
	return 400
}
