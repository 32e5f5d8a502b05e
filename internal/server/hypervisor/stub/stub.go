// Package stub provides a deterministic in-memory Driver double, grounded
// on the teacher's orchestrator/stub.Engine and orchestrator_test.go fakes.
// It is used by the activation and reaper test suites; the daemon's config
// does not offer it as a selectable backend.
package stub

import (
	"context"
	"fmt"
	"sync"

	"github.com/ccheshirecat/jitsu/internal/server/hypervisor"
)

type vm struct {
	name  string
	mac   *[6]byte
	state hypervisor.PowerState
}

// Driver is a fake hypervisor.Driver over an in-memory VM table.
type Driver struct {
	mu    sync.Mutex
	byRef map[*vm]struct{}
	named map[string]*vm

	// Calls records every mutating call, in order, for assertions.
	Calls []Call
}

// Call records one invocation against the stub for test assertions.
type Call struct {
	Op   string
	Name string
}

// New constructs an empty stub driver.
func New() *Driver {
	return &Driver{
		byRef: make(map[*vm]struct{}),
		named: make(map[string]*vm),
	}
}

// Register seeds the stub with a VM in the given initial state, as if it
// already existed on the backend.
func (d *Driver) Register(name string, mac *[6]byte, state hypervisor.PowerState) hypervisor.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := &vm{name: name, mac: mac, state: state}
	d.byRef[v] = struct{}{}
	d.named[name] = v
	return v
}

// State returns the current power state of the named VM, for assertions.
func (d *Driver) State(name string) hypervisor.PowerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.named[name]
	if v == nil {
		return hypervisor.NoState
	}
	return v.state
}

func (d *Driver) record(op, name string) {
	d.Calls = append(d.Calls, Call{Op: op, Name: name})
}

func (d *Driver) LookupByName(ctx context.Context, name string) (hypervisor.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.named[name]
	if !ok {
		return nil, hypervisor.Fail(fmt.Sprintf("lookup %s", name), fmt.Errorf("no such vm"))
	}
	return v, nil
}

func (d *Driver) GetMac(ctx context.Context, handle hypervisor.Handle) (*[6]byte, error) {
	v, err := asVM(handle)
	if err != nil {
		return nil, err
	}
	return v.mac, nil
}

func (d *Driver) GetPowerState(ctx context.Context, handle hypervisor.Handle) (hypervisor.PowerState, error) {
	v, err := asVM(handle)
	if err != nil {
		return hypervisor.NoState, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return v.state, nil
}

func (d *Driver) Start(ctx context.Context, handle hypervisor.Handle) error {
	v, err := asVM(handle)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Start", v.name)
	// A redundant Start on an already-running VM is a benign error, as
	// spec.md §5 describes backend L doing.
	if v.state == hypervisor.Running {
		return hypervisor.Fail(fmt.Sprintf("start %s", v.name), fmt.Errorf("domain is already running"))
	}
	v.state = hypervisor.Running
	return nil
}

func (d *Driver) Resume(ctx context.Context, handle hypervisor.Handle) error {
	v, err := asVM(handle)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Resume", v.name)
	v.state = hypervisor.Running
	return nil
}

func (d *Driver) Shutdown(ctx context.Context, handle hypervisor.Handle) error {
	v, err := asVM(handle)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Shutdown", v.name)
	v.state = hypervisor.Shutoff
	return nil
}

func (d *Driver) Destroy(ctx context.Context, handle hypervisor.Handle) error {
	v, err := asVM(handle)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Destroy", v.name)
	v.state = hypervisor.Shutoff
	return nil
}

func (d *Driver) Suspend(ctx context.Context, handle hypervisor.Handle) error {
	v, err := asVM(handle)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Suspend", v.name)
	v.state = hypervisor.Suspended
	return nil
}

func asVM(handle hypervisor.Handle) (*vm, error) {
	v, ok := handle.(*vm)
	if !ok || v == nil {
		return nil, hypervisor.Fail("handle", fmt.Errorf("not a stub handle"))
	}
	return v, nil
}

var _ hypervisor.Driver = (*Driver)(nil)
