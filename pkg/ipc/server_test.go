package ipc

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rexliu/credrelay/pkg/transport"
)

func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ipc")
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func TestServerHandsConnectionsToHandler(t *testing.T) {
	path := shortSocketPath(t)
	srv := NewServer(func(ctx context.Context, conn net.Conn) {
		payload, err := transport.ReadFrame(conn)
		if err != nil {
			return
		}
		transport.WriteFrame(conn, bytes.ToUpper(payload))
	}, nil)
	if err := srv.Start(context.Background(), path); err != nil {
		t.Fatalf("start: %v", err)
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := transport.WriteFrame(conn, []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := transport.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "PING" {
		t.Fatalf("expected PING, got %q", got)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("socket file left behind: %v", err)
	}
}

func TestStopClosesOpenConnections(t *testing.T) {
	path := shortSocketPath(t)
	entered := make(chan struct{})
	srv := NewServer(func(ctx context.Context, conn net.Conn) {
		close(entered)
		transport.ReadFrame(conn)
	}, nil)
	if err := srv.Start(context.Background(), path); err != nil {
		t.Fatalf("start: %v", err)
	}
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	<-entered
	if err := srv.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStartReplacesStaleSocket(t *testing.T) {
	path := shortSocketPath(t)
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	// closing a unix listener unlinks its file, so recreate a dead one
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()

	srv := NewServer(func(ctx context.Context, conn net.Conn) {}, nil)
	if err := srv.Start(context.Background(), path); err != nil {
		t.Fatalf("start over stale socket: %v", err)
	}
	srv.Stop()
}
