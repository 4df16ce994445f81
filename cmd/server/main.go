package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gemini-chat/internal/config"
	"gemini-chat/internal/handlers"
	"gemini-chat/internal/logging"
	"gemini-chat/internal/metrics"
	"gemini-chat/internal/router"
	"gemini-chat/internal/services"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	// Panics when GEMINI_API_KEY is missing, before anything listens.
	cfg := config.Load()

	// ──── Step 2: Logger ────
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Logger initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("Starting Gemini chat proxy", zap.String("env", cfg.Env))
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	// ──── Step 3: Persona ────
	persona, err := config.LoadPersona(cfg.PersonaFile)
	if err != nil {
		logger.Fatal("Persona load failed", zap.Error(err))
	}
	logger.Info("Persona loaded",
		zap.String("file", cfg.PersonaFile),
		zap.Float32("temperature", persona.Generation.Temperature),
		zap.Float32("top_p", persona.Generation.TopP),
		zap.Int32("top_k", persona.Generation.TopK),
		zap.Int32("max_output_tokens", persona.Generation.MaxOutputTokens),
	)

	// ──── Step 4: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(
		cfg.GeminiAPIKey,
		cfg.GeminiModel,
		persona,
		cfg.GeminiTimeout,
		logger,
	)
	if err != nil {
		logger.Fatal("Gemini client initialization failed", zap.Error(err))
	}
	defer geminiService.Close()
	logger.Info("Gemini client initialized", zap.String("model", cfg.GeminiModel))

	// ──── Step 5: Start HTTP Server ────
	m := metrics.New()
	chatHandler := handlers.NewChatHandler(geminiService, m, logger)
	r := router.New(chatHandler, m, logger, cfg.FrontendURL)

	// WriteTimeout must outlast the upstream timeout or slow completions get cut off mid-reply.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GeminiTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("Gemini chat proxy ready",
		zap.String("addr", "http://localhost:"+cfg.Port),
		zap.String("chat", "POST /api/chat"),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("Server error", zap.Error(err))
	}
	<-shutdownDone
}
