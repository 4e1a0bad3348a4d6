package main

import (
	"io"
	"net"
	"testing"

	"github.com/rexliu/credrelay/pkg/transport"
)

func TestRelayForwardsBothWays(t *testing.T) {
	browserIn, bridgeIn := io.Pipe()
	bridgeOut, browserOut := io.Pipe()
	daemonSide, bridgeSide := net.Pipe()
	defer daemonSide.Close()

	done := make(chan error, 1)
	go func() { done <- relay(browserIn, browserOut, bridgeSide) }()

	go transport.WriteFrame(bridgeIn, []byte(`{"from":"browser"}`))
	got, err := transport.ReadFrame(daemonSide)
	if err != nil || string(got) != `{"from":"browser"}` {
		t.Fatalf("daemon got %q, %v", got, err)
	}

	go transport.WriteFrame(daemonSide, []byte(`{"from":"daemon"}`))
	got, err = transport.ReadFrame(bridgeOut)
	if err != nil || string(got) != `{"from":"daemon"}` {
		t.Fatalf("browser got %q, %v", got, err)
	}

	bridgeIn.Close()
	if err := <-done; err != nil {
		t.Fatalf("relay ended with %v", err)
	}
}
