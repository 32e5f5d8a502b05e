// Package libvirt implements backend L: VM control over libvirtd's local
// control socket via github.com/digitalocean/go-libvirt. Domain handles are
// libvirt.Domain values (carrying the VM's UUID); GetMac decodes the
// domain's XML description with github.com/libvirt/libvirt-go-xml rather
// than hand-rolling a libvirt XML schema.
package libvirt

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	goLibvirt "github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	libvirtxml "github.com/libvirt/libvirt-go-xml"

	"github.com/ccheshirecat/jitsu/internal/server/hypervisor"
)

// Driver is a hypervisor.Driver backed by a single long-lived libvirt
// connection, shared across all callers (spec.md §5).
type Driver struct {
	conn *goLibvirt.Libvirt
}

// New dials libvirtd using connstr, a libvirt connection URI (e.g.
// "qemu:///system" for the local socket, "qemu+tcp://host/system" for a
// remote one).
func New(connstr string) (*Driver, error) {
	dialer, err := dialerFor(connstr)
	if err != nil {
		return nil, hypervisor.Fail("libvirt: build dialer", err)
	}

	l := goLibvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, hypervisor.Fail("libvirt: connect", err)
	}
	return &Driver{conn: l}, nil
}

func dialerFor(connstr string) (goLibvirt.Dialer, error) {
	connstr = strings.TrimSpace(connstr)
	if connstr == "" || connstr == "qemu:///system" || connstr == "qemu:///session" {
		return dialers.NewLocal(), nil
	}
	u, err := url.Parse(connstr)
	if err != nil {
		return nil, fmt.Errorf("parse libvirt uri %q: %w", connstr, err)
	}
	if u.Host == "" {
		return dialers.NewLocal(), nil
	}
	return dialers.NewRemote(u.Hostname()), nil
}

// Close releases the libvirt connection.
func (d *Driver) Close() error {
	return d.conn.Disconnect()
}

func (d *Driver) LookupByName(ctx context.Context, name string) (hypervisor.Handle, error) {
	dom, err := d.conn.DomainLookupByName(name)
	if err != nil {
		return nil, hypervisor.Fail(fmt.Sprintf("lookup domain %s", name), err)
	}
	return dom, nil
}

// GetMac fetches the domain's XML description and extracts the first
// interface's MAC address. An absent interface or unparseable address
// yields (nil, nil), not an error (spec.md §4.1).
func (d *Driver) GetMac(ctx context.Context, handle hypervisor.Handle) (*[6]byte, error) {
	dom, err := asDomain(handle)
	if err != nil {
		return nil, err
	}

	xmlDesc, err := d.conn.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return nil, hypervisor.Fail(fmt.Sprintf("get xml desc %s", dom.Name), err)
	}

	var parsed libvirtxml.Domain
	if err := parsed.Unmarshal(xmlDesc); err != nil {
		return nil, nil
	}
	if parsed.Devices == nil || len(parsed.Devices.Interfaces) == 0 {
		return nil, nil
	}
	iface := parsed.Devices.Interfaces[0]
	if iface.MAC == nil || iface.MAC.Address == "" {
		return nil, nil
	}

	mac, err := parseMAC(iface.MAC.Address)
	if err != nil {
		return nil, nil
	}
	return mac, nil
}

func (d *Driver) GetPowerState(ctx context.Context, handle hypervisor.Handle) (hypervisor.PowerState, error) {
	dom, err := asDomain(handle)
	if err != nil {
		return hypervisor.NoState, err
	}
	state, _, err := d.conn.DomainGetState(dom, 0)
	if err != nil {
		return hypervisor.NoState, hypervisor.Fail(fmt.Sprintf("get state %s", dom.Name), err)
	}
	return mapState(state), nil
}

func (d *Driver) Start(ctx context.Context, handle hypervisor.Handle) error {
	dom, err := asDomain(handle)
	if err != nil {
		return err
	}
	if err := d.conn.DomainCreate(dom); err != nil {
		return hypervisor.Fail(fmt.Sprintf("start %s", dom.Name), err)
	}
	return nil
}

func (d *Driver) Resume(ctx context.Context, handle hypervisor.Handle) error {
	dom, err := asDomain(handle)
	if err != nil {
		return err
	}
	if err := d.conn.DomainResume(dom); err != nil {
		return hypervisor.Fail(fmt.Sprintf("resume %s", dom.Name), err)
	}
	return nil
}

func (d *Driver) Shutdown(ctx context.Context, handle hypervisor.Handle) error {
	dom, err := asDomain(handle)
	if err != nil {
		return err
	}
	if err := d.conn.DomainShutdown(dom); err != nil {
		return hypervisor.Fail(fmt.Sprintf("shutdown %s", dom.Name), err)
	}
	return nil
}

func (d *Driver) Destroy(ctx context.Context, handle hypervisor.Handle) error {
	dom, err := asDomain(handle)
	if err != nil {
		return err
	}
	if err := d.conn.DomainDestroy(dom); err != nil {
		return hypervisor.Fail(fmt.Sprintf("destroy %s", dom.Name), err)
	}
	return nil
}

func (d *Driver) Suspend(ctx context.Context, handle hypervisor.Handle) error {
	dom, err := asDomain(handle)
	if err != nil {
		return err
	}
	if err := d.conn.DomainSuspend(dom); err != nil {
		return hypervisor.Fail(fmt.Sprintf("suspend %s", dom.Name), err)
	}
	return nil
}

func asDomain(handle hypervisor.Handle) (goLibvirt.Domain, error) {
	dom, ok := handle.(goLibvirt.Domain)
	if !ok {
		return goLibvirt.Domain{}, hypervisor.Fail("handle", fmt.Errorf("not a libvirt domain handle"))
	}
	return dom, nil
}

func mapState(state int32) hypervisor.PowerState {
	switch goLibvirt.DomainState(state) {
	case goLibvirt.DomainNostate:
		return hypervisor.NoState
	case goLibvirt.DomainRunning:
		return hypervisor.Running
	case goLibvirt.DomainBlocked:
		return hypervisor.Blocked
	case goLibvirt.DomainPaused:
		return hypervisor.Paused
	case goLibvirt.DomainShutdown:
		return hypervisor.Shutdown
	case goLibvirt.DomainShutoff:
		return hypervisor.Shutoff
	case goLibvirt.DomainCrashed:
		return hypervisor.Crashed
	case goLibvirt.DomainPmsuspended:
		return hypervisor.Suspended
	default:
		return hypervisor.NoState
	}
}

func parseMAC(s string) (*[6]byte, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return nil, fmt.Errorf("malformed mac %q", s)
	}
	var out [6]byte
	for i, p := range parts {
		var b byte
		if _, err := fmt.Sscanf(p, "%02x", &b); err != nil {
			return nil, fmt.Errorf("malformed mac %q: %w", s, err)
		}
		out[i] = b
	}
	return &out, nil
}

var _ hypervisor.Driver = (*Driver)(nil)
