// Package activation ties the DNS query path to VM lifecycle control: it is
// the query-to-VM state machine spec.md §4.4 calls the core of the core.
package activation

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/ccheshirecat/jitsu/internal/server/dnszone"
	"github.com/ccheshirecat/jitsu/internal/server/events"
	"github.com/ccheshirecat/jitsu/internal/server/eventbus"
	"github.com/ccheshirecat/jitsu/internal/server/garp"
	"github.com/ccheshirecat/jitsu/internal/server/hypervisor"
	"github.com/ccheshirecat/jitsu/internal/server/registry"
	"github.com/ccheshirecat/jitsu/internal/server/resolver"
)

// Clock abstracts "now" so tests can advance time deterministically.
type Clock func() time.Time

// Sleeper abstracts the response-delay suspension so tests don't actually
// block for real wall-clock time.
type Sleeper func(ctx context.Context, d time.Duration)

// Engine is the query-path state machine described in spec.md §4.4.
type Engine struct {
	zone     *dnszone.Zone
	registry *registry.Registry
	driver   hypervisor.Driver
	notifier garp.Notifier
	fallback resolver.Resolver
	bus      eventbus.Bus
	logger   *slog.Logger

	now   Clock
	sleep Sleeper
}

// Params wires the activation engine's dependencies.
type Params struct {
	Zone     *dnszone.Zone
	Registry *registry.Registry
	Driver   hypervisor.Driver
	Notifier garp.Notifier
	Fallback resolver.Resolver
	Bus      eventbus.Bus
	Logger   *slog.Logger
	Now      Clock
	Sleep    Sleeper
}

// New constructs an Engine. Notifier, Fallback and Bus may be nil.
func New(p Params) *Engine {
	if p.Notifier == nil {
		p.Notifier = garp.Noop{}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Sleep == nil {
		p.Sleep = func(ctx context.Context, d time.Duration) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		}
	}
	return &Engine{
		zone:     p.Zone,
		registry: p.Registry,
		driver:   p.Driver,
		notifier: p.Notifier,
		fallback: p.Fallback,
		bus:      p.Bus,
		logger:   p.Logger.With("component", "activation"),
		now:      p.Now,
		sleep:    p.Sleep,
	}
}

// Process implements spec.md §4.4's Process(packet, src, dst) -> answer?.
// It never blocks the DNS answer beyond the per-VM response delay; any
// hypervisor failure is caught, logged, and the zone's answer is still
// returned.
func (e *Engine) Process(ctx context.Context, req *dns.Msg, src, dst net.Addr) *dns.Msg {
	if req == nil || len(req.Question) != 1 {
		// Malformed question: zero or multiple questions. Not an error
		// kind, a protocol choice (spec.md §7) — produce no answer.
		return nil
	}
	q := req.Question[0]

	zoneAnswer := e.zone.Answer(q.Name, q.Qtype)
	if zoneAnswer.Rcode != dnszone.NoError {
		return e.delegateToFallback(req, q)
	}

	vm, hit := e.registry.ByDomain(q.Name)
	if !hit {
		e.logger.Info("query miss in registry, delegating", "name", q.Name)
		return e.delegateToFallback(req, q)
	}

	e.activate(ctx, vm)

	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.Answer = zoneAnswer.Records
	return resp
}

// activate runs the activation sequence of spec.md §4.4 for a registry hit.
func (e *Engine) activate(ctx context.Context, vm *registry.VM) {
	now := e.now().Unix()
	vm.TotalRequests.Add(1)
	vm.RequestedTS.Store(now)

	e.publish(events.KindActivating, vm, "")

	state, err := e.driver.GetPowerState(ctx, vm.Handle)
	if err != nil {
		e.logger.Warn("get power state failed", "vm", vm.Name, "error", err)
		return
	}

	switch state {
	case hypervisor.Running:
		e.logger.Info("already running", "vm", vm.Name)
		return
	case hypervisor.Paused:
		if err := e.driver.Resume(ctx, vm.Handle); err != nil {
			e.logger.Warn("resume failed", "vm", vm.Name, "error", err)
			e.publish(events.KindStartFailed, vm, err.Error())
			return
		}
		e.publish(events.KindResumed, vm, "")
	case hypervisor.Shutdown, hypervisor.Shutoff, hypervisor.Halted:
		if err := e.driver.Start(ctx, vm.Handle); err != nil {
			e.logger.Warn("start failed", "vm", vm.Name, "error", err)
			e.publish(events.KindStartFailed, vm, err.Error())
			return
		}
		e.publish(events.KindStarted, vm, "")
	case hypervisor.Blocked, hypervisor.Crashed, hypervisor.NoState, hypervisor.Suspended:
		e.logger.Info("cannot be started from this state", "vm", vm.Name, "state", state)
		e.publish(events.KindSkipState, vm, string(state))
		return
	default:
		e.logger.Warn("unrecognized power state", "vm", vm.Name, "state", state)
		return
	}

	if vm.MAC != nil {
		if err := e.notifier.SendGarp(*vm.MAC, ipToBytes(vm.IP)); err != nil {
			e.logger.Debug("garp send failed", "vm", vm.Name, "error", err)
		}
	}

	// Reuse the timestamp captured at the top of activate rather than
	// sampling the clock again: a real driver RPC can cross a one-second
	// boundary, which would otherwise let StartedTS exceed RequestedTS and
	// violate spec.md §3's started_ts <= requested_ts invariant.
	vm.StartedTS.Store(now)
	vm.TotalStarts.Add(1)

	e.sleep(ctx, vm.ResponseDelay)
}

func (e *Engine) delegateToFallback(req *dns.Msg, q dns.Question) *dns.Msg {
	if e.fallback == nil {
		return nil
	}
	records, err := e.fallback.Resolve(q.Qclass, q.Qtype, q.Name)
	if err != nil || len(records) == 0 {
		return nil
	}
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Answer = records
	return resp
}

func (e *Engine) publish(kind events.Kind, vm *registry.VM, message string) {
	if e.bus == nil {
		return
	}
	evt := events.VMEvent{
		Kind:      kind,
		Name:      vm.Name,
		Domain:    vm.Domain,
		Timestamp: e.now(),
		Message:   message,
	}
	if err := e.bus.Publish(context.Background(), events.TopicVMEvents, evt); err != nil {
		e.logger.Debug("publish event failed", "kind", kind, "vm", vm.Name, "error", err)
	}
}

func ipToBytes(ip string) [4]byte {
	var out [4]byte
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return out
	}
	v4 := parsed.To4()
	if v4 == nil {
		return out
	}
	copy(out[:], v4)
	return out
}
