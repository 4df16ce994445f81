// Package commands provides the CLI for the Gemini chat client.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gemini-chat/internal/client"
	"gemini-chat/internal/config"
	"gemini-chat/internal/conversation"
	"gemini-chat/internal/logging"
	"gemini-chat/internal/render"
)

var (
	// Global flags
	serverFlag  string
	timeoutFlag time.Duration
	styleFlag   string

	// Version info (set at build time)
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Terminal client for the Gemini chat proxy",
	Long: `chat talks to a running Gemini chat proxy (POST /api/chat).

Examples:
  chat                                  Start interactive chat
  chat ask "What is Go?"                Send a single question
  echo "Summarize this" | chat ask      Read the question from stdin
  chat --server http://host:8080        Use a different proxy`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Fprintf(cmd.OutOrStdout(), "chat %s\n", Version)
			return nil
		}
		return runChat()
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "", "Chat proxy base URL (default $CHAT_SERVER_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().DurationVarP(&timeoutFlag, "timeout", "t", 0, "Per-request timeout, e.g. 90s (default $CHAT_TIMEOUT, none)")
	rootCmd.PersistentFlags().StringVar(&styleFlag, "style", render.StyleAuto, "Markdown style: auto, dark, light, notty or a JSON style file")
	rootCmd.Flags().BoolP("version", "v", false, "Show version and exit")

	rootCmd.AddCommand(askCmd)
}

// session bundles what every command needs to talk to the proxy.
type session struct {
	cfg     *config.ClientConfig
	manager *conversation.Manager
	logger  *zap.Logger
}

func (s *session) close() {
	s.manager.Cancel()
	s.logger.Sync()
}

// newSession loads client config, lets flags override it and wires the
// transport into a fresh conversation.
func newSession() (*session, error) {
	cfg := config.LoadClient()
	if serverFlag != "" {
		cfg.ServerURL = serverFlag
	}
	if timeoutFlag > 0 {
		cfg.Timeout = timeoutFlag
	}

	// The TUI owns the terminal, so the client only logs to a file.
	logger := zap.NewNop()
	if cfg.LogFile != "" {
		l, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
	}

	persona, err := config.LoadPersona(cfg.PersonaFile)
	if err != nil {
		return nil, err
	}

	transport := client.New(client.Config{BaseURL: cfg.ServerURL, Timeout: cfg.Timeout})
	mgr := conversation.New(transport, conversation.Options{
		Greeting:      persona.Greeting,
		ResetGreeting: persona.ResetGreeting,
		Logger:        logger,
	})

	logger.Info("Chat session started",
		zap.String("server", cfg.ServerURL),
		zap.Duration("timeout", cfg.Timeout),
	)
	return &session{cfg: cfg, manager: mgr, logger: logger}, nil
}

func renderOptions() render.Options {
	return render.DefaultOptions().WithStyle(styleFlag)
}
