package garp

import (
	"encoding/binary"
	"net"
	"testing"
)

func TestNoopSendGarp(t *testing.T) {
	var n Noop
	if err := n.SendGarp([6]byte{}, [4]byte{}); err != nil {
		t.Fatalf("expected noop to never fail, got %v", err)
	}
}

func TestDisabledClientReturnsErrDisabled(t *testing.T) {
	c := New("")
	if c.Enabled() {
		t.Fatalf("expected client with empty addr to be disabled")
	}
	if err := c.SendGarp([6]byte{}, [4]byte{}); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestClientSendsFramedPayload(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 14)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		received <- buf
	}()

	c := New(ln.Addr().String())
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}

	mac := [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	ip := [4]byte{192, 168, 1, 42}
	if err := c.SendGarp(mac, ip); err != nil {
		t.Fatalf("send garp: %v", err)
	}

	frame := <-received
	if binary.BigEndian.Uint32(frame[0:4]) != 10 {
		t.Fatalf("expected length prefix 10, got %d", binary.BigEndian.Uint32(frame[0:4]))
	}
	if [6]byte(frame[4:10]) != mac {
		t.Fatalf("mac mismatch")
	}
	if [4]byte(frame[10:14]) != ip {
		t.Fatalf("ip mismatch")
	}

	_ = c.Close()
}
