package registry

import "testing"

func TestInsertAndLookup(t *testing.T) {
	r := New(0)
	vm := &VM{Name: "web-1", Domain: "web-1.example.com", TTL: 60}
	r.Insert(vm)

	got, ok := r.ByDomain("web-1.example.com")
	if !ok {
		t.Fatalf("expected domain hit")
	}
	if got != vm {
		t.Fatalf("expected same vm pointer")
	}

	got, ok = r.ByDomain("WEB-1.EXAMPLE.COM.")
	if !ok || got != vm {
		t.Fatalf("expected case/trailing-dot-insensitive hit")
	}

	got, ok = r.ByName("web-1")
	if !ok || got != vm {
		t.Fatalf("expected name hit")
	}
}

func TestInsertRebindsDomainIndex(t *testing.T) {
	r := New(0)
	vm := &VM{Name: "web-1", Domain: "old.example.com"}
	r.Insert(vm)

	vm.Domain = "new.example.com"
	r.Insert(vm)

	if _, ok := r.ByDomain("old.example.com"); ok {
		t.Fatalf("expected old domain to be unbound")
	}
	if _, ok := r.ByDomain("new.example.com"); !ok {
		t.Fatalf("expected new domain bound")
	}
}

func TestSnapshotIsIndependentOfRegistry(t *testing.T) {
	r := New(0)
	r.Insert(&VM{Name: "a", Domain: "a.example.com"})
	r.Insert(&VM{Name: "b", Domain: "b.example.com"})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 vms, got %d", len(snap))
	}

	r.Insert(&VM{Name: "c", Domain: "c.example.com"})
	if len(snap) != 2 {
		t.Fatalf("expected earlier snapshot to stay length 2, got %d", len(snap))
	}
}
