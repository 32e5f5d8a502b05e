package activation

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ccheshirecat/jitsu/internal/server/dnszone"
	"github.com/ccheshirecat/jitsu/internal/server/registry"
)

// AddVmRequest captures the inputs to AddVm (spec.md §4.6).
type AddVmRequest struct {
	Domain   string
	Name     string
	IP       string
	StopMode registry.StopMode
	Delay    time.Duration
	TTL      int64 // DNS record TTL in seconds; reap TTL is twice this
}

// AddVm registers (or re-registers) a VM: looks it up at the backend, reads
// its MAC, ensures the zone carries an SOA for its base domain (identity
// derivation, spec.md §9) and an A record for the queried domain, and
// inserts or reuses the registry record. Backend failure is fatal to the
// whole call; partial zone state left behind is acceptable because AddVm is
// caller-retriable (spec.md §7).
func (e *Engine) AddVm(ctx context.Context, req AddVmRequest) error {
	handle, err := e.driver.LookupByName(ctx, req.Name)
	if err != nil {
		return fmt.Errorf("activation: lookup %s: %w", req.Name, err)
	}

	mac, err := e.driver.GetMac(ctx, handle)
	if err != nil {
		return fmt.Errorf("activation: get mac for %s: %w", req.Name, err)
	}
	if mac != nil {
		e.logger.Info("mac address found", "vm", req.Name)
	} else {
		e.logger.Info("no mac address found, garp will be skipped", "vm", req.Name)
	}

	base := baseDomain(req.Domain)
	if !e.zone.HasSoa(base) {
		e.zone.AddSoa(base, uint32(req.TTL), 0, 0, 0, 0, 0, dnszone.NowSerial())
	}

	ipBytes, err := parseIPv4(req.IP)
	if err != nil {
		return fmt.Errorf("activation: parse ip %s: %w", req.IP, err)
	}
	e.zone.AddA(req.Domain, uint32(req.TTL), ipBytes)

	vm, existing := e.registry.ByName(req.Name)
	if !existing {
		vm = &registry.VM{}
	}
	vm.Name = req.Name
	vm.Domain = req.Domain
	if !existing {
		// Re-registration leaves the handle unchanged (spec.md §3's Lifecycle
		// invariant) even though LookupByName above re-resolved it: the
		// existing record already points at the handle this VM was activated
		// under, and that's the one the reaper and driver calls keep using.
		vm.Handle = handle
	}
	vm.MAC = mac
	vm.IP = req.IP
	vm.ResponseDelay = req.Delay
	vm.TTL = req.TTL * 2
	vm.StopMode = req.StopMode

	e.registry.Insert(vm)
	return nil
}

// baseDomain implements spec.md §9's identity derivation: the SOA owner is
// the registered domain itself, unchanged. A TLD-aware "drop the leftmost
// label" variant was considered and deliberately rejected — see DESIGN.md.
func baseDomain(domain string) string {
	return domain
}

func parseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	ip := net.ParseIP(s)
	if ip == nil {
		return out, fmt.Errorf("invalid ip address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return out, fmt.Errorf("not an ipv4 address: %q", s)
	}
	copy(out[:], v4)
	return out, nil
}
