package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/config"
	"github.com/dmefax/faxdesk/internal/domain/apiconfig"
	"github.com/dmefax/faxdesk/internal/domain/bulk"
	"github.com/dmefax/faxdesk/internal/domain/dispatchlog"
	"github.com/dmefax/faxdesk/internal/domain/fax"
	"github.com/dmefax/faxdesk/internal/domain/render"
	"github.com/dmefax/faxdesk/internal/domain/sms"
	"github.com/dmefax/faxdesk/internal/platform/cache"
	"github.com/dmefax/faxdesk/internal/platform/db"
	"github.com/dmefax/faxdesk/internal/platform/notification"
	"github.com/dmefax/faxdesk/internal/platform/secrets"
)

// app holds the dependencies shared by the server and the CLI commands.
// Without a database the dispatch log and the configuration store are nil
// and provider credentials come from the environment only.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool      *pgxpool.Pool
	dispatch  *dispatchlog.Service
	configs   *apiconfig.Service
	resolver  *apiconfig.Resolver
	renderer  *render.Renderer
	carriers  cache.Store
	templates *notification.TemplateEngine
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func newApp(ctx context.Context, requireDB bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if requireDB {
		if err := cfg.RequireDatabase(); err != nil {
			return nil, err
		}
	}

	a := &app{cfg: cfg, logger: newLogger(cfg.Env), templates: notification.NewTemplateEngine()}

	a.renderer, err = render.NewRenderer(render.Options{
		TemplateRoot: cfg.TemplateDir,
		ScratchDir:   cfg.ScratchDir,
		Strategy:     cfg.RenderStrategy,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	a.carriers, err = cache.New(cfg.ValkeyURL, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect cache: %w", err)
	}

	var store apiconfig.ActiveLookup
	if cfg.DatabaseURL != "" {
		a.pool, err = db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.logger.Info().Msg("connected to database")

		key, err := cfg.EncryptionKey()
		if err != nil {
			a.Close()
			return nil, err
		}
		sealer, err := secrets.NewSealer(key)
		if err != nil {
			a.Close()
			return nil, err
		}

		a.dispatch = dispatchlog.NewService(dispatchlog.NewFaxRepoPG(a.pool), dispatchlog.NewSMSRepoPG(a.pool), a.logger)
		a.configs = apiconfig.NewService(apiconfig.NewRepoPG(a.pool), sealer, a.logger)
		store = a.configs
	}
	a.resolver = apiconfig.NewResolver(store, cfg, a.logger)
	return a, nil
}

func (a *app) Close() {
	if a.carriers != nil {
		a.carriers.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) faxClients() *fax.ResolvedClients {
	return fax.NewResolvedClients(a.resolver, a.logger)
}

func (a *app) faxService() *fax.Service {
	var rec fax.Recorder
	if a.dispatch != nil {
		rec = a.dispatch
	}
	return fax.NewService(a.faxClients(), rec, a.logger)
}

func (a *app) smsService() *sms.Service {
	var rec sms.Recorder
	if a.dispatch != nil {
		rec = a.dispatch
	}
	clients := sms.NewResolvedClients(a.resolver, a.carriers, a.templates, a.logger)
	return sms.NewService(clients, rec, a.logger)
}

// orchestrator is the bulk.Factory. Dispatch runs resolve HumbleFax
// credentials at call time.
func (a *app) orchestrator(ctx context.Context, mode bulk.Mode) (*bulk.Orchestrator, error) {
	var opts []bulk.Option
	if a.dispatch != nil {
		opts = append(opts, bulk.WithSink(a.dispatch))
	}
	if mode == bulk.ModeDispatch {
		client, err := a.faxClients().HumbleFaxClient(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bulk.WithFaxSender(client, client.Config().FromNumber))
	}
	return bulk.New(a.renderer, a.logger, opts...), nil
}
