// Package xenapi implements backend X: VM control over a remote XenAPI
// management host via HTTP-RPC. The connection string is "URI:PASSWORD";
// the username is always "root" (spec.md §4.1, §6). The caller selects
// JSON-RPC (github.com/terra-farm/go-xen-api-client) or XML-RPC
// (github.com/kolo/xmlrpc) with UseXMLRPC — XenAPI exposes the same method
// set over both transports.
package xenapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/ccheshirecat/jitsu/internal/server/hypervisor"
)

const rootUser = "root"

// session is the minimal XenAPI surface this driver needs, implemented
// once per transport below.
type session interface {
	GetByNameLabel(name string) (vmRef string, err error)
	GetPowerState(vmRef string) (string, error)
	Start(vmRef string) error
	CleanShutdown(vmRef string) error
	HardShutdown(vmRef string) error
	Suspend(vmRef string) error
	Resume(vmRef string) error
}

// Driver is a hypervisor.Driver backed by a logged-in XenAPI session,
// opened once at construction and shared across all callers.
type Driver struct {
	sess session
}

// New parses connstr ("URI:PASSWORD") and logs in as root, choosing the
// JSON-RPC or XML-RPC transport per useXMLRPC.
func New(connstr string, useXMLRPC bool) (*Driver, error) {
	uri, password, err := splitConnstr(connstr)
	if err != nil {
		return nil, hypervisor.Fail("xenapi: parse connstr", err)
	}

	var sess session
	if useXMLRPC {
		sess, err = newXMLSession(uri, rootUser, password)
	} else {
		sess, err = newJSONSession(uri, rootUser, password)
	}
	if err != nil {
		return nil, hypervisor.Fail("xenapi: login", err)
	}
	return &Driver{sess: sess}, nil
}

func splitConnstr(connstr string) (uri, password string, err error) {
	idx := strings.LastIndex(connstr, ":")
	if idx < 0 || idx == len(connstr)-1 {
		return "", "", fmt.Errorf("connstr must be URI:PASSWORD, got %q", connstr)
	}
	return connstr[:idx], connstr[idx+1:], nil
}

// vmHandle is backend X's Handle: an XenAPI VM object reference.
type vmHandle string

func (d *Driver) LookupByName(ctx context.Context, name string) (hypervisor.Handle, error) {
	ref, err := d.sess.GetByNameLabel(name)
	if err != nil {
		return nil, hypervisor.Fail(fmt.Sprintf("lookup vm %s", name), err)
	}
	return vmHandle(ref), nil
}

// GetMac is unsupported for backend X (spec.md §4.1).
func (d *Driver) GetMac(ctx context.Context, handle hypervisor.Handle) (*[6]byte, error) {
	return nil, nil
}

func (d *Driver) GetPowerState(ctx context.Context, handle hypervisor.Handle) (hypervisor.PowerState, error) {
	ref, err := asRef(handle)
	if err != nil {
		return hypervisor.NoState, err
	}
	raw, err := d.sess.GetPowerState(string(ref))
	if err != nil {
		return hypervisor.NoState, hypervisor.Fail(fmt.Sprintf("get power state %s", ref), err)
	}
	return mapState(raw), nil
}

// Start (cold-create from scratch) is unsupported for backend X.
func (d *Driver) Start(ctx context.Context, handle hypervisor.Handle) error {
	return hypervisor.Fail("start", fmt.Errorf("not supported for backend X"))
}

// Resume forces no-paused, force-true semantics, per spec.md §4.1.
func (d *Driver) Resume(ctx context.Context, handle hypervisor.Handle) error {
	ref, err := asRef(handle)
	if err != nil {
		return err
	}
	if err := d.sess.Resume(string(ref)); err != nil {
		return hypervisor.Fail(fmt.Sprintf("resume %s", ref), err)
	}
	return nil
}

func (d *Driver) Shutdown(ctx context.Context, handle hypervisor.Handle) error {
	ref, err := asRef(handle)
	if err != nil {
		return err
	}
	if err := d.sess.CleanShutdown(string(ref)); err != nil {
		return hypervisor.Fail(fmt.Sprintf("shutdown %s", ref), err)
	}
	return nil
}

func (d *Driver) Destroy(ctx context.Context, handle hypervisor.Handle) error {
	ref, err := asRef(handle)
	if err != nil {
		return err
	}
	if err := d.sess.HardShutdown(string(ref)); err != nil {
		return hypervisor.Fail(fmt.Sprintf("destroy %s", ref), err)
	}
	return nil
}

// Suspend is unsupported for backend X.
func (d *Driver) Suspend(ctx context.Context, handle hypervisor.Handle) error {
	return hypervisor.Fail("suspend", fmt.Errorf("not supported for backend X"))
}

func asRef(handle hypervisor.Handle) (vmHandle, error) {
	ref, ok := handle.(vmHandle)
	if !ok {
		return "", hypervisor.Fail("handle", fmt.Errorf("not a xenapi vm reference"))
	}
	return ref, nil
}

// mapState translates the XenAPI power_state string onto the shared union.
func mapState(raw string) hypervisor.PowerState {
	switch strings.ToLower(raw) {
	case "running":
		return hypervisor.Running
	case "paused":
		return hypervisor.Paused
	case "suspended":
		return hypervisor.Suspended
	case "halted":
		return hypervisor.Halted
	default:
		return hypervisor.NoState
	}
}

var _ hypervisor.Driver = (*Driver)(nil)
