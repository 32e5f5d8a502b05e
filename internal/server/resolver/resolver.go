// Package resolver wraps the upstream (forward) DNS resolver that the
// activation engine falls back to for names it doesn't manage. All upstream
// failures collapse to (nil, nil); the activation engine then produces no
// answer and the DNS server loop writes no response for that query.
package resolver

import (
	"strings"

	"github.com/miekg/dns"
)

// Resolver forwards a question to an upstream server and translates its
// answer into the local representation.
type Resolver interface {
	Resolve(class, qtype uint16, name string) ([]dns.RR, error)
}

// Forwarder is a Resolver backed by a single upstream nameserver.
type Forwarder struct {
	upstream string
	client   *dns.Client
}

// New constructs a Forwarder for upstream ("host:port"). upstream == ""
// yields a nil *Forwarder; Resolve on it checks Configured and returns (nil, nil).
func New(upstream string) *Forwarder {
	upstream = strings.TrimSpace(upstream)
	if upstream == "" {
		return nil
	}
	return &Forwarder{upstream: upstream, client: new(dns.Client)}
}

// Configured reports whether f is a usable forwarder (nil-safe).
func Configured(f *Forwarder) bool {
	return f != nil && f.upstream != ""
}

// Resolve issues the query upstream and returns its answer section,
// filtered to the requested class/type. Any failure yields (nil, nil).
func (f *Forwarder) Resolve(class, qtype uint16, name string) ([]dns.RR, error) {
	if !Configured(f) {
		return nil, nil
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	if len(msg.Question) > 0 {
		msg.Question[0].Qclass = class
	}

	resp, _, err := f.client.Exchange(msg, f.upstream)
	if err != nil || resp == nil || resp.Rcode != dns.RcodeSuccess {
		return nil, nil
	}
	var out []dns.RR
	for _, rr := range resp.Answer {
		if h := rr.Header(); h.Class == class && h.Rrtype == qtype {
			out = append(out, rr)
		}
	}
	return out, nil
}

var _ Resolver = (*Forwarder)(nil)
