package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"gemini-chat/internal/conversation"
	"gemini-chat/internal/render"
)

var rawFlag bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Send a single question and print the reply",
	Long: `Send one message through the chat proxy and print the assistant's reply.

The question is read from the argument, or from stdin when none is given.
Ctrl+C cancels the request.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		opts := renderOptions()
		if rawFlag {
			opts = render.Options{}
		}
		return runAsk(ctx, cmd.OutOrStdout(), s.manager, prompt, opts)
	},
}

func init() {
	askCmd.Flags().BoolVar(&rawFlag, "raw", false, "Print the reply as raw Markdown")
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if f, ok := stdin.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", errors.New("no question given: pass it as an argument or pipe it on stdin")
		}
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// runAsk submits prompt through mgr and writes the reply to out. A zero
// render.Options prints the raw Markdown.
func runAsk(ctx context.Context, out io.Writer, mgr *conversation.Manager, prompt string, opts render.Options) error {
	mgr.ChangeInput(prompt)
	pending, ok := mgr.Submit()
	if !ok {
		return errors.New("the question is empty")
	}

	select {
	case <-pending.Done():
	case <-ctx.Done():
		mgr.Cancel()
		return ctx.Err()
	}

	state := mgr.Snapshot()
	if pending.Outcome() != conversation.OutcomeSucceeded {
		return errors.New(state.Err)
	}

	reply := state.Messages[len(state.Messages)-1].Content
	if opts != (render.Options{}) {
		reply = render.MarkdownOrPlain(reply, opts)
	}
	_, err := fmt.Fprintln(out, strings.TrimRight(reply, "\n"))
	return err
}
