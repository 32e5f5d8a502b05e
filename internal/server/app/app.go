package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ccheshirecat/jitsu/internal/server/activation"
	"github.com/ccheshirecat/jitsu/internal/server/config"
	"github.com/ccheshirecat/jitsu/internal/server/dnsserver"
	"github.com/ccheshirecat/jitsu/internal/server/dnszone"
	"github.com/ccheshirecat/jitsu/internal/server/eventbus"
	"github.com/ccheshirecat/jitsu/internal/server/garp"
	"github.com/ccheshirecat/jitsu/internal/server/hypervisor"
	"github.com/ccheshirecat/jitsu/internal/server/hypervisor/libvirt"
	"github.com/ccheshirecat/jitsu/internal/server/hypervisor/xenapi"
	"github.com/ccheshirecat/jitsu/internal/server/reaper"
	"github.com/ccheshirecat/jitsu/internal/server/registry"
	"github.com/ccheshirecat/jitsu/internal/server/resolver"
)

// App wires config, the hypervisor driver, the registry and zone, the
// activation engine, the reaper, and the DNS server loop.
type App struct {
	cfg      config.ServerConfig
	logger   *slog.Logger
	driver   hypervisor.Driver
	registry *registry.Registry
	zone     *dnszone.Zone
	notifier *garp.Client
	events   eventbus.Bus
	engine   *activation.Engine
	reaper   *reaper.Reaper
	dns      *dnsserver.Server
}

// New constructs the daemon application from cfg, selecting and connecting
// the hypervisor driver named by cfg.Backend. events may be nil.
func New(cfg config.ServerConfig, logger *slog.Logger, events eventbus.Bus) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	driver, err := newDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("construct hypervisor driver: %w", err)
	}

	reg := registry.New(cfg.VMCapacityHint)
	zone := dnszone.New()
	notifier := garp.New(cfg.GarpAddr)
	fallback := resolver.New(cfg.ForwardResolver)

	engine := activation.New(activation.Params{
		Zone:     zone,
		Registry: reg,
		Driver:   driver,
		Notifier: notifier,
		Fallback: fallback,
		Bus:      events,
		Logger:   logger,
	})

	reap := reaper.New(reaper.Params{
		Registry: reg,
		Driver:   driver,
		Bus:      events,
		Logger:   logger,
		Interval: cfg.ReapInterval,
	})

	dns := dnsserver.New(cfg.DNSListenAddr, engine, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		driver:   driver,
		registry: reg,
		zone:     zone,
		notifier: notifier,
		events:   events,
		engine:   engine,
		reaper:   reap,
		dns:      dns,
	}, nil
}

func newDriver(cfg config.ServerConfig) (hypervisor.Driver, error) {
	switch cfg.Backend {
	case config.BackendLibvirt:
		return libvirt.New(cfg.Connstr)
	case config.BackendXenAPI:
		return xenapi.New(cfg.Connstr, cfg.UseXMLRPC)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Engine exposes the activation engine so callers can register VMs via
// AddVm before or while Run is serving.
func (a *App) Engine() *activation.Engine {
	return a.engine
}

// Run starts the reaper and DNS server loops, blocking until ctx is
// cancelled or the DNS server fails. Shutdown order mirrors the teacher's
// app.Run: stop the DNS listeners first so no new query starts an
// activation, then let the reaper loop exit, then release the driver
// connection.
func (a *App) Run(ctx context.Context) error {
	reaperCtx, cancelReaper := context.WithCancel(ctx)
	defer cancelReaper()
	go a.reaper.Run(reaperCtx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("dns server listening", "addr", a.cfg.DNSListenAddr)
		errCh <- a.dns.ListenAndServe(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = err
	}

	if err := a.dns.Shutdown(); err != nil {
		a.logger.Error("dns shutdown", "error", err)
	}
	cancelReaper()
	if closer, ok := a.driver.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.Error("driver close", "error", err)
		}
	}
	if a.notifier != nil {
		_ = a.notifier.Close()
	}

	return runErr
}
