package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gemini-chat/internal/metrics"
	"gemini-chat/internal/middleware"
	"gemini-chat/internal/models"
	"gemini-chat/internal/services"
)

const maxRequestBytes = 1 << 20

// completer is satisfied by *services.GeminiService.
type completer interface {
	Complete(ctx context.Context, message string) (string, error)
}

type ChatHandler struct {
	gemini  completer
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewChatHandler(gemini completer, m *metrics.Metrics, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		gemini:  gemini,
		metrics: m,
		logger:  logger,
	}
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(zap.String("request_id", middleware.GetRequestID(r.Context())))

	var req models.ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.ObserveCompletion(metrics.OutcomeInvalid)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("Message too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("Invalid request body"))
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		h.metrics.ObserveCompletion(metrics.OutcomeInvalid)
		writeJSON(w, http.StatusBadRequest, errorResp("No message provided"))
		return
	}

	logger.Debug("Received message", zap.Int("length", len(req.Message)))

	start := time.Now()
	text, err := h.gemini.Complete(r.Context(), req.Message)
	h.metrics.ObserveUpstream(time.Since(start))

	if err != nil {
		if errors.Is(err, services.ErrNoContent) {
			logger.Warn("No valid response from Gemini", zap.Error(err))
			h.metrics.ObserveCompletion(metrics.OutcomeUpstream)
			writeJSON(w, http.StatusBadGateway, errorResp("Failed to generate response from Gemini"))
			return
		}

		// The client went away (cancel or supersede); nobody reads a reply.
		if errors.Is(err, context.Canceled) || r.Context().Err() != nil {
			logger.Debug("Chat request cancelled by client", zap.Error(err))
			h.metrics.ObserveCompletion(metrics.OutcomeCancelled)
			return
		}

		logger.Error("Chat completion failed", zap.Error(err))
		h.metrics.ObserveCompletion(metrics.OutcomeError)
		writeJSON(w, http.StatusInternalServerError, errorRespWithDetails("Failed to process request", err.Error()))
		return
	}

	h.metrics.ObserveCompletion(metrics.OutcomeOK)
	writeJSON(w, http.StatusOK, models.ChatResponse{Text: text})
}
