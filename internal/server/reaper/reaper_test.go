package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ccheshirecat/jitsu/internal/server/hypervisor"
	"github.com/ccheshirecat/jitsu/internal/server/hypervisor/stub"
	"github.com/ccheshirecat/jitsu/internal/server/registry"
)

func TestSweepStopsExpiredRunningVM(t *testing.T) {
	driver := stub.New()
	handle := driver.Register("www", nil, hypervisor.Running)

	reg := registry.New(0)
	now := time.Unix(1000, 0)
	vm := &registry.VM{
		Name:     "www",
		Domain:   "mirage.io",
		Handle:   handle,
		TTL:      60,
		StopMode: registry.StopShutdown,
	}
	vm.RequestedTS.Store(now.Add(-2 * time.Minute).Unix())
	reg.Insert(vm)

	r := New(Params{
		Registry: reg,
		Driver:   driver,
		Now:      func() time.Time { return now },
	})

	r.Sweep(context.Background())

	var shutdowns int
	for _, c := range driver.Calls {
		if c.Op == "Shutdown" {
			shutdowns++
		}
	}
	if shutdowns != 1 {
		t.Fatalf("expected exactly 1 Shutdown call, got %d", shutdowns)
	}

	r.Sweep(context.Background())
	shutdowns = 0
	for _, c := range driver.Calls {
		if c.Op == "Shutdown" {
			shutdowns++
		}
	}
	if shutdowns != 1 {
		t.Fatalf("expected no further Shutdown calls on second pass, saw %d total", shutdowns)
	}
}

func TestSweepSkipsVMUnderTTL(t *testing.T) {
	driver := stub.New()
	handle := driver.Register("www", nil, hypervisor.Running)

	reg := registry.New(0)
	now := time.Unix(1000, 0)
	vm := &registry.VM{
		Name:     "www",
		Domain:   "mirage.io",
		Handle:   handle,
		TTL:      600,
		StopMode: registry.StopShutdown,
	}
	vm.RequestedTS.Store(now.Add(-10 * time.Second).Unix())
	reg.Insert(vm)

	r := New(Params{Registry: reg, Driver: driver, Now: func() time.Time { return now }})
	r.Sweep(context.Background())

	if len(driver.Calls) != 0 {
		t.Fatalf("expected no calls for a vm within its ttl, got %+v", driver.Calls)
	}
}

func TestSweepSkipsNonRunningExpiredVM(t *testing.T) {
	driver := stub.New()
	handle := driver.Register("www", nil, hypervisor.Paused)

	reg := registry.New(0)
	now := time.Unix(1000, 0)
	vm := &registry.VM{
		Name:     "www",
		Domain:   "mirage.io",
		Handle:   handle,
		TTL:      60,
		StopMode: registry.StopShutdown,
	}
	vm.RequestedTS.Store(now.Add(-2 * time.Minute).Unix())
	reg.Insert(vm)

	r := New(Params{Registry: reg, Driver: driver, Now: func() time.Time { return now }})
	r.Sweep(context.Background())

	for _, c := range driver.Calls {
		if c.Op == "Shutdown" || c.Op == "Destroy" || c.Op == "Suspend" {
			t.Fatalf("expected no stop call for a paused (not running) vm, got %+v", c)
		}
	}
}

func TestSweepHandlesManyExpiredVMsConcurrently(t *testing.T) {
	driver := stub.New()
	reg := registry.New(0)
	now := time.Unix(1000, 0)

	const n = 20
	for i := 0; i < n; i++ {
		name := "www" + string(rune('a'+i))
		handle := driver.Register(name, nil, hypervisor.Running)
		vm := &registry.VM{
			Name:     name,
			Domain:   name + ".mirage.io",
			Handle:   handle,
			TTL:      60,
			StopMode: registry.StopDestroy,
		}
		vm.RequestedTS.Store(now.Add(-2 * time.Minute).Unix())
		reg.Insert(vm)
	}

	r := New(Params{Registry: reg, Driver: driver, Now: func() time.Time { return now }})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Sweep(context.Background())
	}()
	wg.Wait()

	for i := 0; i < n; i++ {
		name := "www" + string(rune('a'+i))
		if driver.State(name) != hypervisor.Shutoff {
			t.Fatalf("expected %s to be destroyed (shutoff), got %v", name, driver.State(name))
		}
	}
}
