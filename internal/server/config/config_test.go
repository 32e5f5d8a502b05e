package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"JITSU_BACKEND", "JITSU_CONNSTR", "JITSU_XMLRPC", "JITSU_DNS_LISTEN",
		"JITSU_FORWARD_RESOLVER", "JITSU_GARP_ADDR", "JITSU_REAP_INTERVAL",
		"JITSU_VM_CAPACITY_HINT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestFromEnvRequiresConnstr(t *testing.T) {
	clearEnv(t)
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error when JITSU_CONNSTR is unset")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("JITSU_CONNSTR", "qemu:///system")
	defer clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Backend != BackendLibvirt {
		t.Fatalf("expected default backend libvirt, got %v", cfg.Backend)
	}
	if cfg.DNSListenAddr != defaultDNSListen {
		t.Fatalf("expected default dns listen addr, got %v", cfg.DNSListenAddr)
	}
	if cfg.ReapInterval != defaultReapInterval {
		t.Fatalf("expected default reap interval, got %v", cfg.ReapInterval)
	}
	if cfg.VMCapacityHint != defaultVMCapacity {
		t.Fatalf("expected default vm capacity hint, got %v", cfg.VMCapacityHint)
	}
}

func TestFromEnvRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	os.Setenv("JITSU_CONNSTR", "uri:pw")
	os.Setenv("JITSU_BACKEND", "vmware")
	defer clearEnv(t)

	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestFromEnvParsesOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("JITSU_CONNSTR", "uri:pw")
	os.Setenv("JITSU_BACKEND", "xenapi")
	os.Setenv("JITSU_XMLRPC", "true")
	os.Setenv("JITSU_REAP_INTERVAL", "5s")
	os.Setenv("JITSU_VM_CAPACITY_HINT", "16")
	defer clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Backend != BackendXenAPI || !cfg.UseXMLRPC {
		t.Fatalf("expected xenapi+xmlrpc, got %+v", cfg)
	}
	if cfg.ReapInterval.String() != "5s" {
		t.Fatalf("expected 5s reap interval, got %v", cfg.ReapInterval)
	}
	if cfg.VMCapacityHint != 16 {
		t.Fatalf("expected capacity hint 16, got %d", cfg.VMCapacityHint)
	}
}
