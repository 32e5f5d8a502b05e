// Package registry holds the dual-indexed, process-local store of VM
// metadata and per-VM statistics. It performs no I/O and never
// synchronizes with the hypervisor — consistency between the registry and
// the backend is the activation engine's concern, not this package's.
package registry

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ccheshirecat/jitsu/internal/server/hypervisor"
)

// StopMode is the policy the reaper applies when it decides to stop a VM.
type StopMode int

const (
	StopDestroy StopMode = iota
	StopSuspend
	StopShutdown
)

// VM is one managed VM's metadata plus its mutable runtime counters.
//
// The counters are written by the activation engine on the query path and
// read by the reaper's sweep concurrently with those writes, so they are
// atomic.Int64 rather than plain int64 — direct field access would race
// under the Go memory model, unlike the cooperative single-task model this
// engine's design was originally drawn from. There is no "last stopped"
// timestamp — StartedTS is the sole VM-side time reference.
type VM struct {
	Name          string
	Domain        string // the fully-qualified domain this record answers for
	Handle        hypervisor.Handle
	MAC           *[6]byte
	IP            string
	ResponseDelay time.Duration
	TTL           int64 // reap TTL in seconds, twice the DNS record TTL
	StopMode      StopMode

	StartedTS     atomic.Int64
	RequestedTS   atomic.Int64
	TotalRequests atomic.Int64
	TotalStarts   atomic.Int64
}

// Registry is the dual-indexed in-memory store. A VM is always present in
// both indexes or neither.
type Registry struct {
	mu       sync.Mutex
	byDomain map[string]*VM
	byName   map[string]*VM
}

// New constructs an empty registry with a capacity hint.
func New(capacityHint int) *Registry {
	if capacityHint <= 0 {
		capacityHint = 7
	}
	return &Registry{
		byDomain: make(map[string]*VM, capacityHint),
		byName:   make(map[string]*VM, capacityHint),
	}
}

func normalizeDomain(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// Insert adds or replaces the record for vm.Name, rebinding the domain index
// to vm.Domain and keeping both indexes consistent.
//
// Callers that reuse an existing *VM (as AddVm does for re-registration)
// typically mutate vm.Domain in place before calling Insert, so by the time
// Insert runs, vm.Domain already holds the new value and there is no way to
// recover the old one from vm itself. Insert therefore looks up the
// previous binding by identity in byDomain, not by reading vm.Domain.
func (r *Registry) Insert(vm *VM) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for domain, bound := range r.byDomain {
		if bound == vm && domain != normalizeDomain(vm.Domain) {
			delete(r.byDomain, domain)
			break
		}
	}

	r.byName[vm.Name] = vm
	r.byDomain[normalizeDomain(vm.Domain)] = vm
}

// ByDomain looks up a VM by its registered DNS name, case-insensitively.
func (r *Registry) ByDomain(name string) (*VM, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vm, ok := r.byDomain[normalizeDomain(name)]
	return vm, ok
}

// ByName looks up a VM by its exact hypervisor-level name.
func (r *Registry) ByName(name string) (*VM, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vm, ok := r.byName[name]
	return vm, ok
}

// IterateByName visits every record, keyed by VM name. visit must not call
// back into the registry — it is invoked while the registry's lock is held.
func (r *Registry) IterateByName(visit func(vm *VM)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vm := range r.byName {
		visit(vm)
	}
}

// Snapshot returns a shallow copy of the current VM set, suitable for the
// reaper to scan without holding the registry lock across driver calls.
func (r *Registry) Snapshot() []*VM {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*VM, 0, len(r.byName))
	for _, vm := range r.byName {
		out = append(out, vm)
	}
	return out
}
