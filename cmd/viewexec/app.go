package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/hanpama/viewexec/internal/access"
	"github.com/hanpama/viewexec/internal/cache"
	"github.com/hanpama/viewexec/internal/config"
	"github.com/hanpama/viewexec/internal/eventbus"
	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/logger"
	"github.com/hanpama/viewexec/internal/otel"
	"github.com/hanpama/viewexec/internal/query"
	"github.com/hanpama/viewexec/internal/registry"
	"github.com/hanpama/viewexec/internal/view"
	"github.com/hanpama/viewexec/internal/viewdef"
)

// app holds the components every command shares.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	bus      *eventbus.Bus
	env      view.Env
	store    *viewdef.FileStore
	enforcer *access.Enforcer
	shutdown func(context.Context) error
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, bus: eventbus.New()}
	a.logger = logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	schema, err := registry.LoadSchema(cfg.Views.Schema)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	a.db, err = sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store, err := cache.NewStore(cfg.Cache.Size)
	if err != nil {
		a.db.Close()
		return nil, err
	}
	a.enforcer, err = access.New(cfg.Access.Model, cfg.Access.Policy, a.logger)
	if err != nil {
		a.db.Close()
		return nil, err
	}
	a.shutdown, err = otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service, a.bus)
	if err != nil {
		a.db.Close()
		return nil, fmt.Errorf("otel setup: %w", err)
	}
	a.store = viewdef.NewFileStore(cfg.Views.Dir)
	a.env = view.Env{
		Registry: registry.New(schema),
		Runner:   a.db,
		Dialect:  query.DialectFor(cfg.Database.Driver),
		Cache:    store,
		Bus:      a.bus,
		Logger:   a.logger,
	}
	return a, nil
}

// account resolves the account named by the configured user header.
func (a *app) account(r *http.Request) handler.Account {
	return a.enforcer.Account(r.Header.Get(a.cfg.Server.UserHeader))
}

func (a *app) Close() error {
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Warn("otel shutdown", "error", err)
	}
	return a.db.Close()
}
