package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/lifequest/internal/notify"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the deadline clock and daily reset running",
		Long: `Run the engine in the foreground.

Deadline countdowns tick every second: quests due within the warning window
raise one warning, and quests whose deadline passes are penalized and reset.
At local midnight, repeatable dailies that were not completed are penalized
and every repeatable daily starts over. Notifications are printed as they
happen; changes are saved in the background.

Example:
  lifequest run --db ./lifequest.db
  LIFEQUEST_TIMEZONE=Europe/Berlin lifequest run -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(rootOpts, cmd)
		},
	}
}

func runEngine(opts *RootOptions, cmd *cobra.Command) error {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	w := cmd.OutOrStdout()
	sink := &printSink{w: w}

	s, err := openSession(ctx, opts, cmd, sink)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.gateway.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.engine.RunTicker(ctx)
	}()

	s.logger.Info("engine running", "db", s.cfg.DatabasePath, "tick", s.cfg.TickInterval)
	fmt.Fprintln(w, "lifequest running. Press Ctrl-C to stop.")

	<-ctx.Done()
	wg.Wait()

	if err := s.Close(context.WithoutCancel(ctx)); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	slog.Info("engine stopped gracefully")
	return nil
}

// printSink writes notifications as "[category] message" lines. The gateway
// reports from its own goroutine, so writes are serialized.
type printSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printSink) AddNotification(message string, category notify.Category) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s] %s\n", category, message)
}
