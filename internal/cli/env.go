package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/winterop-com/fhirkit-sub003/internal/catalog"
	"github.com/winterop-com/fhirkit-sub003/internal/config"
	"github.com/winterop-com/fhirkit-sub003/internal/persist"
	"github.com/winterop-com/fhirkit-sub003/internal/resolve"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/service"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// env is everything a command needs: configuration, the opened database
// and the store replayed from it.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	db     *persist.SQLite
	store  *store.Store
	ops    *service.Operations
	out    *OutputFormatter
}

// loadConfig reads the config file and applies flag overrides, then
// adjust when it is non-nil.
func loadConfig(opts *RootOptions, adjust func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return cfg, err
	}
	if opts.Database != "" {
		cfg.Storage.Path = opts.Database
	}
	if opts.Driver != "" {
		cfg.Storage.Driver = opts.Driver
	}
	if adjust != nil {
		adjust(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openEnv opens the database and replays it into a fresh store.
// Callers must Close the env.
func openEnv(ctx context.Context, opts *RootOptions, cmd *cobra.Command, adjust func(*config.Config)) (*env, error) {
	cfg, err := loadConfig(opts, adjust)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := cfg.NewLogger(cmd.ErrOrStderr(), opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	cat := catalog.Default()
	if cfg.Catalog.Path != "" {
		logger.Info("loading catalog overlay", "path", cfg.Catalog.Path)
		if cat, err = catalog.LoadFile(cfg.Catalog.Path); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
		}
	}
	reg, err := search.NewRegistry(cat)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build search registry", err)
	}

	logger.Debug("opening database", "path", cfg.Storage.Path, "driver", cfg.Storage.Driver)
	db, err := persist.Open(cfg.Storage.Path,
		persist.WithDriver(cfg.Storage.Driver),
		persist.WithLogger(logger),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	policy, _ := store.ParseDeletePolicy(cfg.Store.DeletePolicy)
	storeOpts := []store.Option{
		store.WithPersister(db),
		store.WithLogger(logger),
		store.WithDeletePolicy(policy),
	}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, store.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDs))
	}
	st := store.New(reg, storeOpts...)

	n, err := st.Recover(ctx)
	if err != nil {
		_ = db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to replay database", err)
	}
	logger.Debug("database replayed", "entries", n)

	svcOpts := []service.Option{
		service.WithBaseURL(cfg.BaseURL),
		service.WithSearchLimits(cfg.SearchLimits()),
		service.WithResolver(resolve.New(resolve.WithLimits(cfg.ResolveLimits()), resolve.WithLogger(logger))),
		service.WithDocumentPersistence(cfg.Document.Persist),
		service.WithLogger(logger),
	}
	if opts.Clock != nil {
		svcOpts = append(svcOpts, service.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		svcOpts = append(svcOpts, service.WithIDGenerator(opts.IDs))
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  st,
		ops:    service.New(st, svcOpts...),
		out:    formatter(opts, cmd),
	}, nil
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		e.logger.Error("error closing database", "error", err)
	}
}

// withEnv opens the env, runs fn and closes it.
func withEnv(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	return withAdjustedEnv(opts, cmd, nil, fn)
}

// withAdjustedEnv is withEnv with command-specific config overrides.
func withAdjustedEnv(opts *RootOptions, cmd *cobra.Command, adjust func(*config.Config), fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := openEnv(ctx, opts, cmd, adjust)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}
