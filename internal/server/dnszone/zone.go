// Package dnszone implements a small in-memory authoritative DNS zone: a
// label trie supporting SOA and A record insertion and point lookup by
// (name, qtype). It is the only place in this repository that builds DNS
// resource records directly; everything downstream consumes miekg/dns
// types rather than reinventing them.
package dnszone

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Rcode mirrors the subset of DNS response codes this zone can produce.
type Rcode int

const (
	NoError  Rcode = dns.RcodeSuccess
	NXDomain Rcode = dns.RcodeNameError
)

// Answer is the zone's local-answer representation: a response code plus
// the records to return, if any.
type Answer struct {
	Rcode   Rcode
	Records []dns.RR
}

type node struct {
	children map[string]*node
	a        *dns.A
	soa      *dns.SOA
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Zone is a trie-backed authoritative zone. Safe for concurrent use.
type Zone struct {
	mu   sync.Mutex
	root *node
}

// New constructs an empty zone.
func New() *Zone {
	return &Zone{root: newNode()}
}

func labels(name string) []string {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	if name == "" {
		return nil
	}
	parts := dns.SplitDomainName(name)
	// Walk from the root label down, i.e. reverse order, so shared suffixes
	// (e.g. every name under the same base domain) share trie nodes.
	reversed := make([]string, len(parts))
	for i, p := range parts {
		reversed[len(parts)-1-i] = p
	}
	return reversed
}

func (z *Zone) walk(name string, create bool) *node {
	cur := z.root
	for _, label := range labels(name) {
		next, ok := cur.children[label]
		if !ok {
			if !create {
				return nil
			}
			next = newNode()
			cur.children[label] = next
		}
		cur = next
	}
	return cur
}

// AddSoa inserts an SOA record for domain. refresh/retry/expire/minimum/negTtl
// default per spec.md §4.3 when given as zero.
func (z *Zone) AddSoa(domain string, ttl uint32, refresh, retry, expire, minimum, negTTL uint32, serial uint32) {
	if refresh == 0 {
		refresh = ttl
	}
	if retry == 0 {
		retry = 3
	}
	if expire == 0 {
		expire = ttl * 2
	}
	if minimum == 0 {
		minimum = ttl * 2
	}
	if negTTL == 0 {
		negTTL = ttl
	}

	fqdn := dns.Fqdn(domain)
	soa := &dns.SOA{
		Hdr: dns.RR_Header{
			Name:   fqdn,
			Rrtype: dns.TypeSOA,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		Ns:      "ns." + fqdn,
		Mbox:    "hostmaster." + fqdn,
		Serial:  serial,
		Refresh: refresh,
		Retry:   retry,
		Expire:  expire,
		Minttl:  minimum,
	}
	_ = negTTL // dns.SOA has no separate negative-TTL field and Minttl carries minimum, so negTTL is not stored.

	z.mu.Lock()
	defer z.mu.Unlock()
	n := z.walk(domain, true)
	n.soa = soa
}

// HasSoa reports whether an SOA record already exists for domain.
func (z *Zone) HasSoa(domain string) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	n := z.walk(domain, false)
	return n != nil && n.soa != nil
}

// AddA inserts an A record for name.
func (z *Zone) AddA(name string, ttl uint32, ip [4]byte) {
	fqdn := dns.Fqdn(name)
	a := &dns.A{
		Hdr: dns.RR_Header{
			Name:   fqdn,
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		A: net.IP(dnsIP(ip)),
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	n := z.walk(name, true)
	n.a = a
}

// Answer looks up name for qtype and returns the local answer. Only A, SOA,
// and NS are ever served locally; any other qtype is reported as having no
// local answer regardless of whether name exists in the trie, so the caller
// delegates it to the fallback resolver instead of treating it as a zone hit.
func (z *Zone) Answer(name string, qtype uint16) Answer {
	switch qtype {
	case dns.TypeA, dns.TypeSOA, dns.TypeNS:
	default:
		return Answer{Rcode: NXDomain}
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	n := z.walk(name, false)
	if n == nil {
		return Answer{Rcode: NXDomain}
	}

	switch qtype {
	case dns.TypeA:
		if n.a != nil {
			return Answer{Rcode: NoError, Records: []dns.RR{n.a}}
		}
	case dns.TypeSOA:
		if n.soa != nil {
			return Answer{Rcode: NoError, Records: []dns.RR{n.soa}}
		}
	case dns.TypeNS:
		if n.soa != nil {
			ns := &dns.NS{
				Hdr: dns.RR_Header{Name: n.soa.Hdr.Name, Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: n.soa.Hdr.Ttl},
				Ns:  n.soa.Ns,
			}
			return Answer{Rcode: NoError, Records: []dns.RR{ns}}
		}
	}

	// The name exists in the trie (something was registered at or below
	// it) but not for the queried A/SOA/NS type.
	if n.a != nil || n.soa != nil {
		return Answer{Rcode: NoError}
	}
	return Answer{Rcode: NXDomain}
}

// Has is a convenience wrapper returning true iff Answer's rcode is NoError.
func (z *Zone) Has(name string, qtype uint16) bool {
	return z.Answer(name, qtype).Rcode == NoError
}

func dnsIP(ip [4]byte) []byte {
	return ip[:]
}

// NowSerial returns a serial number suitable for AddSoa, seconds since epoch.
func NowSerial() uint32 {
	return uint32(time.Now().Unix())
}
