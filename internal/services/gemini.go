package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"gemini-chat/internal/config"
	"gemini-chat/internal/logging"
)

// ErrNoContent means the upstream call completed but produced no usable text
// (no candidates, blocked prompt, or only empty parts).
var ErrNoContent = errors.New("no usable text in Gemini response")

// contentGenerator is the slice of *genai.GenerativeModel the service needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type GeminiService struct {
	client      *genai.Client
	model       contentGenerator
	instruction string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewGeminiService(
	apiKey string,
	modelName string,
	persona config.Persona,
	timeout time.Duration,
	logger *zap.Logger,
) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(persona.Generation.Temperature)
	model.SetTopP(persona.Generation.TopP)
	model.SetTopK(persona.Generation.TopK)
	model.SetMaxOutputTokens(persona.Generation.MaxOutputTokens)

	return &GeminiService{
		client:      client,
		model:       model,
		instruction: persona.SystemInstruction,
		timeout:     timeout,
		logger:      logger,
	}, nil
}

func (s *GeminiService) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// Complete sends the fixed system instruction followed by the user's message
// and returns the generated Markdown.
func (s *GeminiService) Complete(ctx context.Context, message string) (string, error) {
	defer logging.LogDuration(s.logger, "gemini_complete")()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.model.GenerateContent(ctx, genai.Text(s.instruction), genai.Text(message))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			s.logger.Warn("Gemini blocked the request", zap.Error(err))
			return "", fmt.Errorf("%w: %v", ErrNoContent, err)
		}
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	if resp == nil {
		return "", ErrNoContent
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			s.logger.Warn("Gemini stopped early",
				zap.Int("candidate", i),
				zap.String("finish_reason", cand.FinishReason.String()),
				zap.Int32("token_count", cand.TokenCount),
			)
		}
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrNoContent
	}

	return text, nil
}

// Helper functions

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
