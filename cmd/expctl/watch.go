package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/causal-labs/internal/experiment"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var chatID, messageID, backendURL string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Approve a run against the backend and follow its progress",
		Long: `Start an experiment run directly against the analysis backend and print a
progress line for every state change until the run completes or aborts.
Interrupting the command cancels the run.

Examples:
  expctl watch --chat 7f1c --message 91ab
  expctl watch --chat 7f1c --message 91ab --backend http://analysis:8000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			backend := experiment.NewHTTPBackend(backendURL, &http.Client{}, logger)
			return runWatch(cmd.Context(), cmd.OutOrStdout(), backend, experiment.RunRequest{
				ChatID:    chatID,
				MessageID: messageID,
			}, logger)
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "", "Chat id (required)")
	cmd.Flags().StringVar(&messageID, "message", "", "Approved message id (required)")
	cmd.Flags().StringVar(&backendURL, "backend", envOr("BACKEND_URL", "http://localhost:8000"), "Analysis backend base URL")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log stream diagnostics to stderr")
	_ = cmd.MarkFlagRequired("chat")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func runWatch(ctx context.Context, out io.Writer, backend experiment.Backend, req experiment.RunRequest, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sessions := experiment.NewSessions(backend, experiment.NewRunner(logger), nil, logger)
	defer sessions.Shutdown()

	states, unsubscribe := sessions.Machine(req.ChatID).Subscribe(64)
	defer unsubscribe()

	if _, err := sessions.Approve(ctx, req); err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			if _, err := sessions.Cancel(req.ChatID); err != nil && !errors.Is(err, experiment.ErrNoSession) {
				return err
			}
			waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = sessions.Wait(waitCtx, req.ChatID)
			fmt.Fprintln(out, "cancelled")
			return ctx.Err()

		case st := <-states:
			if st.Phase == experiment.PhaseIdle {
				continue
			}
			fmt.Fprintf(out, "[%3.0f%%] %-10s %s\n", st.Progress, st.Phase, st.CurrentStep)

			switch st.Phase {
			case experiment.PhaseCompleted:
				fmt.Fprintf(out, "results: %s\n", st.ResultsPath)
				return nil
			case experiment.PhaseAborted:
				reason := "unknown"
				if st.Error != nil {
					reason = *st.Error
				}
				return fmt.Errorf("experiment aborted: %s", reason)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
