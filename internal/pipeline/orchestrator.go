// Package pipeline runs the background workers of the bond desk: catalog
// sync, ETH price polling and issuance archival.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Poller is a service that refreshes itself on an interval until ctx ends.
type Poller interface {
	Run(ctx context.Context, interval time.Duration) error
}

// Config sets the worker schedules. An empty ArchiveCron archives every
// ArchiveInterval.
type Config struct {
	CatalogInterval time.Duration
	PriceInterval   time.Duration
	ArchiveInterval time.Duration
	ArchiveCron     string
}

// Orchestrator manages all worker goroutines.
type Orchestrator struct {
	catalog  Poller
	prices   Poller
	archiver *Archiver
	cfg      Config
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. Any worker may be nil to skip it.
func NewOrchestrator(catalog, prices Poller, archiver *Archiver, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		catalog:  catalog,
		prices:   prices,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "pipeline")),
	}
}

// Run starts all workers as concurrent goroutines using an errgroup. It
// returns nil on a clean shutdown and the first worker failure otherwise.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline orchestrator starting",
		slog.Duration("catalog_interval", o.cfg.CatalogInterval),
		slog.Duration("price_interval", o.cfg.PriceInterval),
		slog.Bool("archive", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.catalog != nil {
		g.Go(func() error {
			return o.supervise(ctx, "catalog sync", func() error {
				return o.catalog.Run(ctx, o.cfg.CatalogInterval)
			})
		})
	}
	if o.prices != nil {
		g.Go(func() error {
			return o.supervise(ctx, "price poller", func() error {
				return o.prices.Run(ctx, o.cfg.PriceInterval)
			})
		})
	}
	if o.archiver != nil {
		g.Go(func() error {
			return o.supervise(ctx, "archiver", func() error {
				if o.cfg.ArchiveCron != "" {
					return o.archiver.RunCron(ctx, o.cfg.ArchiveCron)
				}
				return o.archiver.RunEvery(ctx, o.cfg.ArchiveInterval)
			})
		})
	}

	err := g.Wait()
	o.logger.Info("pipeline orchestrator stopped")
	return err
}

// supervise runs fn and maps a cancellation-driven exit to nil.
func (o *Orchestrator) supervise(ctx context.Context, name string, fn func() error) error {
	o.logger.DebugContext(ctx, "starting worker", slog.String("worker", name))
	err := fn()
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
