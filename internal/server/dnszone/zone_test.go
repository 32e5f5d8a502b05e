package dnszone

import (
	"testing"

	"github.com/miekg/dns"
)

func TestAddAAndAnswer(t *testing.T) {
	z := New()
	z.AddA("web-1.example.com", 30, [4]byte{10, 0, 0, 5})

	ans := z.Answer("web-1.example.com", dns.TypeA)
	if ans.Rcode != NoError {
		t.Fatalf("expected NoError, got %v", ans.Rcode)
	}
	if len(ans.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(ans.Records))
	}
	a, ok := ans.Records[0].(*dns.A)
	if !ok {
		t.Fatalf("expected *dns.A, got %T", ans.Records[0])
	}
	if !a.A.Equal([]byte{10, 0, 0, 5}) {
		t.Fatalf("unexpected ip %v", a.A)
	}
}

func TestAnswerNXDomainForUnknownName(t *testing.T) {
	z := New()
	ans := z.Answer("nowhere.example.com", dns.TypeA)
	if ans.Rcode != NXDomain {
		t.Fatalf("expected NXDomain, got %v", ans.Rcode)
	}
}

func TestAnswerUnsupportedTypeFallsThrough(t *testing.T) {
	z := New()
	z.AddA("web-1.example.com", 30, [4]byte{10, 0, 0, 5})

	ans := z.Answer("web-1.example.com", dns.TypeAAAA)
	if ans.Rcode == NoError {
		t.Fatalf("expected a non-NoError rcode for an unserved qtype so callers delegate to the fallback resolver")
	}
	if len(ans.Records) != 0 {
		t.Fatalf("expected no records for an unserved qtype")
	}
}

func TestAnswerNoErrorWithoutRecordsForAbsentServedType(t *testing.T) {
	z := New()
	z.AddA("web-1.example.com", 30, [4]byte{10, 0, 0, 5})

	ans := z.Answer("web-1.example.com", dns.TypeSOA)
	if ans.Rcode != NoError {
		t.Fatalf("expected NoError (name exists, SOA is a served type), got %v", ans.Rcode)
	}
	if len(ans.Records) != 0 {
		t.Fatalf("expected no records for a served type absent at this node")
	}
}

func TestAddSoaAndHasSoa(t *testing.T) {
	z := New()
	if z.HasSoa("example.com") {
		t.Fatalf("expected no soa yet")
	}
	z.AddSoa("example.com", 300, 0, 0, 0, 0, 0, 1)
	if !z.HasSoa("example.com") {
		t.Fatalf("expected soa present")
	}

	ans := z.Answer("example.com", dns.TypeNS)
	if ans.Rcode != NoError || len(ans.Records) != 1 {
		t.Fatalf("expected synthesized NS record, got %+v", ans)
	}
}

func TestHas(t *testing.T) {
	z := New()
	z.AddA("web-1.example.com", 30, [4]byte{10, 0, 0, 5})
	if !z.Has("web-1.example.com", dns.TypeA) {
		t.Fatalf("expected Has to report true")
	}
	if z.Has("web-1.example.com", dns.TypeAAAA) {
		t.Fatalf("expected Has to report false for unmatched qtype")
	}
}
