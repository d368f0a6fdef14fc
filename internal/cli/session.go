package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/lifequest/internal/catalog"
	"github.com/roach88/lifequest/internal/config"
	"github.com/roach88/lifequest/internal/deadline"
	"github.com/roach88/lifequest/internal/engine"
	"github.com/roach88/lifequest/internal/gateway"
	"github.com/roach88/lifequest/internal/notify"
	"github.com/roach88/lifequest/internal/store"
)

// session is one open profile: config, database, sync gateway and a running
// engine loaded with the persisted state.
type session struct {
	cfg     config.Config
	store   *store.Store
	gateway *gateway.Gateway
	engine  *engine.Engine
	clock   deadline.Clock
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan error
}

// loadConfig reads the config file and applies the --db override.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.DatabasePath = opts.Database
	}
	return cfg, nil
}

// newLogger builds the slog handler selected by the config. --verbose lowers
// the level to debug.
func newLogger(cfg config.Log, verbose bool, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	} else {
		handler = slog.NewTextHandler(w, hopts)
	}
	return slog.New(handler), nil
}

// openSession opens the database, starts the engine loop and reconciles it
// with the persisted state. The caller must close the session.
//
// A failed load degrades to a fresh local profile rather than refusing to
// play; the failure is logged and reported to sink.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, sink notify.Sink) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger, err := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid timezone", err)
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
		}
	}

	logger.Debug("opening database", "path", cfg.DatabasePath)
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	if sink == nil {
		sink = notify.LogSink{Logger: logger}
	}
	gw := gateway.New(st,
		gateway.WithSink(sink),
		gateway.WithRetry(cfg.Retry.Attempts, cfg.Retry.InitialInterval),
		gateway.WithLogger(logger),
	)

	clock := opts.Clock
	if clock == nil {
		clock = deadline.SystemClock{}
	}
	engOpts := []engine.EngineOption{
		engine.WithClock(clock),
		engine.WithLocation(loc),
		engine.WithCatalog(cat),
		engine.WithPersister(gw),
		engine.WithSink(sink),
		engine.WithLogger(logger),
		engine.WithDailyCap(cfg.DailyCap),
		engine.WithWarningWindow(cfg.WarningWindow),
		engine.WithPenaltyWindow(cfg.PenaltyWindow),
		engine.WithTickInterval(cfg.TickInterval),
	}
	if opts.IDs != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDs))
	}
	eng, err := engine.New(engOpts...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{
		cfg:     cfg,
		store:   st,
		gateway: gw,
		engine:  eng,
		clock:   clock,
		logger:  logger,
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() { s.done <- eng.Run(runCtx) }()

	snap, err := gw.Load(ctx)
	if err != nil {
		logger.Error("load failed, continuing with a fresh profile", "error", err)
		sink.AddNotification(fmt.Sprintf("Could not load saved progress: %v", err), notify.CategoryError)
		snap = gateway.Snapshot{}
	}
	if err := eng.Reconcile(ctx, snap); err != nil {
		s.Close(ctx)
		return nil, WrapExitError(ExitCommandError, "failed to reconcile state", err)
	}

	// Deadlines that passed while nothing was running expire now.
	eng.Tick(clock.Now())

	return s, nil
}

// Close stops the engine, flushes pending writes and closes the database.
func (s *session) Close(ctx context.Context) error {
	s.cancel()
	if err := <-s.done; err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("engine stopped with error", "error", err)
	}

	var errs []error
	if err := s.gateway.Flush(context.WithoutCancel(ctx)); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

// withSession runs fn against an open session and always closes it.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, opts, cmd, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(ctx); closeErr != nil {
			s.logger.Error("closing session", "error", closeErr)
			if err == nil {
				err = WrapExitError(ExitFailure, "changes may not have been saved", closeErr)
			}
		}
	}()

	return fn(ctx, s)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
