package dnsserver

import (
	"context"
	"net"
	"testing"

	"github.com/miekg/dns"
)

type fakeEngine struct {
	resp *dns.Msg
}

func (f *fakeEngine) Process(ctx context.Context, req *dns.Msg, src, dst net.Addr) *dns.Msg {
	return f.resp
}

func TestNewBindsAddrToBothTransports(t *testing.T) {
	engine := &fakeEngine{}
	s := New("127.0.0.1:0", engine, nil)
	if s.udp.Addr != "127.0.0.1:0" || s.tcp.Addr != "127.0.0.1:0" {
		t.Fatalf("expected both listeners bound to the same address")
	}
	if s.udp.Net != "udp" || s.tcp.Net != "tcp" {
		t.Fatalf("expected udp/tcp net kinds, got %q/%q", s.udp.Net, s.tcp.Net)
	}
}
