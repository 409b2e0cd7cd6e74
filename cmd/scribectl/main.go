package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"scribedesk/internal/bootstrap"
	"scribedesk/internal/config"
	"scribedesk/internal/platform/logging"
	"scribedesk/internal/ports"
	"scribedesk/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	apiBase string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "scribectl",
		Short:         "Headless client for ScribeDesk sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.apiBase, "api", "", "backend base URL (overrides SCRIBEDESK_API_BASE)")

	root.AddCommand(newWatchCmd(&flags))
	root.AddCommand(newGenerateCmd(&flags))
	root.AddCommand(newReorderCmd(&flags))
	root.AddCommand(newRevisionsCmd(&flags))
	return root
}

func loadServices(flags *globalFlags, sink ports.EventSink) (bootstrap.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return bootstrap.Services{}, err
	}
	if api := strings.TrimSpace(flags.apiBase); api != "" {
		cfg.Backend.APIBaseURL = strings.TrimRight(api, "/")
	}
	return bootstrap.Build(cfg, sink, logging.New(cfg.Log.File, cfg.Log.Level))
}

func requireFlag(name string, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "watch --session <id>",
		Short: "Follow a session's units and tasks until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("session", sessionID); err != nil {
				return err
			}
			sink := newConsoleSink(cmd.OutOrStdout())
			sink.showUnits = true
			sink.showTasks = true

			services, err := loadServices(flags, sink)
			if err != nil {
				return err
			}
			defer func() { _ = services.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			services.Start(ctx)
			if err := services.Sync.SelectSession(ctx, sessionID); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	return cmd
}

func newGenerateCmd(flags *globalFlags) *cobra.Command {
	var sessionID, prompt, system string
	cmd := &cobra.Command{
		Use:   "generate --session <id> --prompt <text>",
		Short: "Stream a response built from the session's checked units",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("session", sessionID); err != nil {
				return err
			}
			sink := newConsoleSink(cmd.OutOrStdout())
			services, err := loadServices(flags, sink)
			if err != nil {
				return err
			}
			defer func() { _ = services.Close() }()

			interrupt, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := services.Sync.SelectSession(interrupt, sessionID); err != nil {
				return err
			}
			if system == "" {
				system = services.Config.Generation.SystemPrompt
			}
			result, err := generateUntil(interrupt, services.Sync, system, prompt)
			sink.printf("\n")
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("%s, %d chunks, %d chars", result.Outcome, result.Chunks, len(result.Output))
			if result.Revision != nil {
				summary += ", saved as " + result.Revision.ID
			}
			sink.printf("%s\n", mutedStyle.Render(summary))
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&prompt, "prompt", "", "instruction placed before the checked units")
	cmd.Flags().StringVar(&system, "system", "", "system message (defaults to SCRIBEDESK_SYSTEM_PROMPT)")
	return cmd
}

type generationRunner interface {
	GenerateFromUnits(ctx context.Context, system string, instruction string) (usecase.GenerationResult, error)
	CancelGeneration() bool
}

// generateUntil runs a generation that an interrupt cancels rather than
// fails. The request context is never tied to the interrupt.
func generateUntil(interrupt context.Context, runner generationRunner, system string, prompt string) (usecase.GenerationResult, error) {
	done := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-interrupt.Done():
			runner.CancelGeneration()
		case <-done:
		}
	}()

	result, err := runner.GenerateFromUnits(context.Background(), system, prompt)
	close(done)
	<-watcher
	return result, err
}

func newReorderCmd(flags *globalFlags) *cobra.Command {
	var sessionID, unitID string
	var target int
	cmd := &cobra.Command{
		Use:   "reorder --session <id> --unit <id> --to <index>",
		Short: "Move a unit to a new position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("session", sessionID); err != nil {
				return err
			}
			if err := requireFlag("unit", unitID); err != nil {
				return err
			}
			sink := newConsoleSink(cmd.OutOrStdout())
			services, err := loadServices(flags, sink)
			if err != nil {
				return err
			}
			defer func() { _ = services.Close() }()

			ctx := context.Background()
			if err := services.Sync.SelectSession(ctx, sessionID); err != nil {
				return err
			}
			if err := services.Sync.Reorder(ctx, unitID, target); err != nil {
				return err
			}
			sink.printf("%s\n", renderUnits(services.Sync.LiveUnits()))
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&unitID, "unit", "", "unit id to move")
	cmd.Flags().IntVar(&target, "to", 0, "zero-based target index")
	return cmd
}

func newRevisionsCmd(flags *globalFlags) *cobra.Command {
	var sessionID string
	var at int
	cmd := &cobra.Command{
		Use:   "revisions --session <id> [--at <pos>]",
		Short: "List revisions, or print one with --at (0 is newest)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("session", sessionID); err != nil {
				return err
			}
			sink := newConsoleSink(cmd.OutOrStdout())
			services, err := loadServices(flags, sink)
			if err != nil {
				return err
			}
			defer func() { _ = services.Close() }()

			ctx := context.Background()
			if err := services.Sync.SelectSession(ctx, sessionID); err != nil {
				return err
			}

			if cmd.Flags().Changed("at") {
				rev, err := services.Sync.RevisionAt(at)
				if err != nil {
					return err
				}
				sink.printf("%s\n%s\n", renderRevision(at, rev), rev.Content)
				return nil
			}

			revs := services.Sync.Revisions()
			if len(revs) == 0 {
				sink.printf("%s\n", mutedStyle.Render("no revisions"))
				return nil
			}
			for pos, rev := range revs {
				sink.printf("%s\n", renderRevision(pos, rev))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().IntVar(&at, "at", 0, "revision position, 0 is newest")
	return cmd
}
