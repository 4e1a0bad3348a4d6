// Command credrelay-bridge is the native messaging host a browser starts. It
// relays frames between its stdio and the daemon's unix socket without
// decoding them; the daemon's messenger validates everything.
package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/rexliu/credrelay/pkg/config"
	"github.com/rexliu/credrelay/pkg/logging"
	"github.com/rexliu/credrelay/pkg/transport"
)

func main() {
	profile := pflag.String("profile", "./_dev_profile", "Path to profile directory")
	socket := pflag.String("socket", "", "Override IPC socket path (optional)")
	pflag.Parse()

	// stdout carries frames
	logger := logging.NewTo(os.Stderr, "credrelay-bridge")
	if args := pflag.Args(); len(args) > 0 {
		logger.Printf("started by %s", args[0])
	}

	socketPath, err := resolveSocket(*profile, *socket)
	if err != nil {
		logger.Printf("bridge error: %v", err)
		os.Exit(1)
	}
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		logger.Printf("bridge error: dial %s: %v", socketPath, err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := relay(os.Stdin, os.Stdout, conn); err != nil {
		logger.Printf("bridge exiting: %v", err)
		return
	}
	logger.Printf("bridge exiting")
}

func resolveSocket(profile, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, err := config.LoadProfile(profile)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return config.ResolvePath(profile, cfg.IPC.SocketPath), nil
}

// relay copies frames both ways until either side closes and returns the
// first error that is not a clean end of stream.
func relay(in io.Reader, out io.Writer, daemon io.ReadWriter) error {
	errc := make(chan error, 2)
	pump := func(dst io.Writer, src io.Reader) {
		for {
			frame, err := transport.ReadFrame(src)
			if err != nil {
				errc <- err
				return
			}
			if err := transport.WriteFrame(dst, frame); err != nil {
				errc <- err
				return
			}
		}
	}
	go pump(daemon, in)
	go pump(out, daemon)
	err := <-errc
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
