// Package reaper implements the periodic expiry sweep that drives the
// teardown side of the VM lifecycle (spec.md §4.5).
package reaper

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ccheshirecat/jitsu/internal/server/events"
	"github.com/ccheshirecat/jitsu/internal/server/eventbus"
	"github.com/ccheshirecat/jitsu/internal/server/hypervisor"
	"github.com/ccheshirecat/jitsu/internal/server/registry"
)

const defaultInterval = 10 * time.Second

// maxConcurrentStops bounds how many VMs this process will try to stop at
// once within a single sweep; ordering across VMs is unspecified per
// spec.md §4.5, so running them concurrently is a legal scheduling choice.
const maxConcurrentStops = 8

// Clock abstracts "now" so tests can drive expiry deterministically.
type Clock func() time.Time

// Reaper runs the periodic sweep described in spec.md §4.5.
type Reaper struct {
	registry *registry.Registry
	driver   hypervisor.Driver
	bus      eventbus.Bus
	logger   *slog.Logger
	interval time.Duration
	now      Clock
}

// Params wires the reaper's dependencies.
type Params struct {
	Registry *registry.Registry
	Driver   hypervisor.Driver
	Bus      eventbus.Bus
	Logger   *slog.Logger
	Interval time.Duration
	Now      Clock
}

// New constructs a Reaper. Bus may be nil.
func New(p Params) *Reaper {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Interval <= 0 {
		p.Interval = defaultInterval
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Reaper{
		registry: p.Registry,
		driver:   p.Driver,
		bus:      p.Bus,
		logger:   p.Logger.With("component", "reaper"),
		interval: p.Interval,
		now:      p.Now,
	}
}

// Run blocks, sweeping on a fixed cadence until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one pass: snapshot the registry, and for each VM past its
// reap TTL, stop it. Per-VM failures are logged and never abort the sweep
// (spec.md §7); the VM remains in the registry and is retried next pass.
func (r *Reaper) Sweep(ctx context.Context) {
	now := r.now().Unix()
	vms := r.registry.Snapshot()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentStops)

	for _, vm := range vms {
		vm := vm
		if now-vm.RequestedTS.Load() <= vm.TTL {
			continue
		}
		group.Go(func() error {
			r.stopVm(groupCtx, vm)
			return nil
		})
	}

	_ = group.Wait()
}

// stopVm implements spec.md §4.5's stop_vm: read power state; if — and only
// if — it's Running, dispatch by StopMode. Any other state (including
// Paused or Blocked) is a no-op: those states already consume no CPU but
// preserve cheap resumption on the next query.
func (r *Reaper) stopVm(ctx context.Context, vm *registry.VM) {
	state, err := r.driver.GetPowerState(ctx, vm.Handle)
	if err != nil {
		r.logger.Warn("get power state failed", "vm", vm.Name, "error", err)
		r.publish(events.KindReapFailed, vm, err.Error())
		return
	}
	if state != hypervisor.Running {
		return
	}

	var stopErr error
	switch vm.StopMode {
	case registry.StopShutdown:
		stopErr = r.driver.Shutdown(ctx, vm.Handle)
	case registry.StopSuspend:
		stopErr = r.driver.Suspend(ctx, vm.Handle)
	case registry.StopDestroy:
		stopErr = r.driver.Destroy(ctx, vm.Handle)
	}

	if stopErr != nil {
		r.logger.Warn("stop failed", "vm", vm.Name, "error", stopErr)
		r.publish(events.KindReapFailed, vm, stopErr.Error())
		return
	}
	r.logger.Info("vm reaped", "vm", vm.Name, "mode", vm.StopMode)
	r.publish(events.KindReaped, vm, "")
}

func (r *Reaper) publish(kind events.Kind, vm *registry.VM, message string) {
	if r.bus == nil {
		return
	}
	evt := events.VMEvent{
		Kind:      kind,
		Name:      vm.Name,
		Domain:    vm.Domain,
		Timestamp: r.now(),
		Message:   message,
	}
	if err := r.bus.Publish(context.Background(), events.TopicVMEvents, evt); err != nil {
		r.logger.Debug("publish event failed", "kind", kind, "vm", vm.Name, "error", err)
	}
}
