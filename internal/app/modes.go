package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/bondd/internal/pipeline"
	"github.com/alanyoungcy/bondd/internal/server"
	"github.com/alanyoungcy/bondd/internal/server/handler"
	"github.com/alanyoungcy/bondd/internal/server/ws"
	"github.com/alanyoungcy/bondd/internal/service"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// services are the domain services shared by every mode. Quotes and
// Issuances are nil without an operator key.
type services struct {
	Catalog   *service.CatalogService
	Prices    *service.PriceService
	Accounts  *service.AccountService
	Quotes    *service.QuoteService
	Issuances *service.IssuanceService
}

func (a *App) buildServices(deps *Dependencies) services {
	catalog := service.NewCatalogService(deps.BondStore, deps.BondCache, deps.Reader, deps.SignalBus, deps.AuditStore, a.logger)
	prices := service.NewPriceService(deps.PriceSource, deps.PriceCache, deps.SignalBus, a.cfg.Price.MaxAge.Duration, a.logger)
	accounts := service.NewAccountService(deps.Reader, catalog, prices, a.logger)

	svcs := services{Catalog: catalog, Prices: prices, Accounts: accounts}
	if deps.Submitter != nil {
		svcs.Quotes = service.NewQuoteService(catalog, deps.Reader, deps.Submitter, deps.AuditStore, deps.Notifier, a.logger)
		svcs.Issuances = service.NewIssuanceService(
			catalog, accounts, deps.Submitter, deps.IssuanceStore,
			deps.LockManager, deps.SignalBus, deps.AuditStore, deps.Notifier,
			a.cfg.Issuance.ConfirmTimeout.Duration, a.logger,
		)
	}
	return svcs
}

// APIMode serves the HTTP API and the WebSocket hub.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, a.buildServices(deps))
	return g.Wait()
}

// WorkerMode runs catalog sync, price polling and archival without serving
// HTTP.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps, a.buildServices(deps))
	return g.Wait()
}

// FullMode runs the workers and the API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startPipeline(ctx, g, deps, svcs)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs services) {
	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.Retention(), a.logger)
	}
	orch := pipeline.NewOrchestrator(svcs.Catalog, svcs.Prices, archiver, pipeline.Config{
		CatalogInterval: a.cfg.Chain.CatalogInterval.Duration,
		PriceInterval:   a.cfg.Price.PollInterval.Duration,
		ArchiveInterval: a.cfg.Archive.Interval.Duration,
		ArchiveCron:     a.cfg.Archive.Cron,
	}, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server, its shutdown watcher and the
// WebSocket hub to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs services) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		StartedAt:      time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	checks := map[string]handler.Check{
		"postgres": deps.Postgres.Ping,
		"redis":    deps.Redis.Ping,
		"chain": func(ctx context.Context) error {
			_, err := deps.Chain.BlockNumber(ctx)
			return err
		},
	}
	if deps.S3 != nil {
		checks["s3"] = deps.S3.Health
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(checks, a.logger),
		Accounts: handler.NewAccountHandler(svcs.Accounts, a.logger),
		Prices:   handler.NewPriceHandler(svcs.Prices, a.logger),
		Audit:    handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if svcs.Quotes != nil {
		handlers.Bonds = handler.NewBondHandler(svcs.Catalog, svcs.Quotes, a.logger)
	}
	if svcs.Issuances != nil {
		handlers.Issuances = handler.NewIssuanceHandler(svcs.Issuances, a.logger)
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateLimitEvery.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
