package redis

import (
	"context"
	"net"
	"testing"
	"time"
)

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestPingNilClient(t *testing.T) {
	if err := Ping(context.Background(), nil, time.Second); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestNewRedisConnectionUnreachable(t *testing.T) {
	c, err := NewRedisConnection(context.Background(), ConnectionInfo{
		Addr:        closedAddr(t),
		DialTimeout: 200 * time.Millisecond,
		Timeout:     500 * time.Millisecond,
	})
	if err == nil {
		Close(c)
		t.Fatal("expected connection error")
	}
}
