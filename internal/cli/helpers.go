package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/adpilot/adpilot/internal/config"
	"github.com/adpilot/adpilot/internal/experiment"
	"github.com/adpilot/adpilot/internal/logging"
	"github.com/adpilot/adpilot/internal/meta"
	"github.com/adpilot/adpilot/internal/optimizer"
	"github.com/adpilot/adpilot/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
// For commands that only read local state and never touch the platform.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// app bundles everything a platform-touching command needs.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.SQLiteStore
	meta  *meta.Client
}

// withApp loads config, validates credentials, and wires the platform
// client plus the database for the duration of fn.
func withApp(fn func(*app) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.ValidateMeta(); err != nil {
		return fmt.Errorf("%w (run 'adpilot init' or set ADPILOT_ env vars)", err)
	}

	log, err := logging.New(cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	client := meta.NewClient(meta.Config{
		BaseURL:           cfg.Meta.BaseURL,
		APIVersion:        cfg.Meta.APIVersion,
		AccessToken:       cfg.Meta.AccessToken,
		AccountID:         cfg.Meta.AdAccountID,
		Timeout:           cfg.Meta.Timeout,
		RequestsPerSecond: cfg.Meta.RequestsPerSecond,
	}, log)

	return fn(&app{cfg: cfg, log: log, store: s, meta: client})
}

func (a *app) executor() *optimizer.Executor {
	return optimizer.NewExecutor(a.meta, a.log)
}

func (a *app) engine() *optimizer.Engine {
	return optimizer.NewEngine(a.meta, a.executor(), a.store, a.log)
}

func (a *app) evaluator() *experiment.Evaluator {
	return experiment.NewEvaluator(a.store, a.meta, a.executor(), a.log)
}
