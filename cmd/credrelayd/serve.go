package main

import (
	"context"
	"net"
	"net/http"

	"github.com/rcrowley/go-metrics"

	"github.com/rexliu/credrelay/pkg/messenger"
	"github.com/rexliu/credrelay/pkg/transport"
)

func (d *daemon) messengerConfig() messenger.Config {
	return messenger.Config{
		AllowedOrigins: d.cfg.Messenger.AllowedOrigins,
		Timeout:        d.cfg.Messenger.Timeout(),
		Codec:          d.codec,
		Logger:         d.logger,
		Metrics:        d.registry,
		InboundRate:    d.cfg.Messenger.InboundRate,
		InboundBurst:   d.cfg.Messenger.InboundBurst,
	}
}

// serveTransport answers the peer's requests until the transport closes or
// ctx ends.
func (d *daemon) serveTransport(ctx context.Context, t transport.Transport, label string) {
	m := messenger.New(t, d.messengerConfig())
	m.Handle(d.handle)
	d.logger.Printf("peer connected: %s", label)
	if err := m.Run(ctx); err != nil && ctx.Err() == nil {
		d.logger.Printf("peer %s: %v", label, err)
	}
	d.logger.Printf("peer disconnected: %s", label)
}

func (d *daemon) serveConn(ctx context.Context, conn net.Conn) {
	port := transport.NewPort(conn, d.cfg.IPC.PeerOrigin)
	d.serveTransport(ctx, port, "unix:"+d.cfg.IPC.PeerOrigin)
	if err := port.Err(); err != nil {
		d.logger.Printf("unix peer closed: %v", err)
	}
}

func (d *daemon) serveStdio(ctx context.Context) error {
	port := transport.Stdio(d.cfg.IPC.PeerOrigin)
	d.serveTransport(ctx, port, "stdio")
	return nil
}

func (d *daemon) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(d.cfg.IPC.WSPath, func(w http.ResponseWriter, r *http.Request) {
		ws, err := transport.Upgrade(w, r, d.codec.Name() == "cbor")
		if err != nil {
			d.logger.Printf("websocket upgrade: %v", err)
			return
		}
		go d.serveTransport(ctx, ws, "ws:"+ws.Origin())
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		ws, err := transport.Upgrade(w, r, false)
		if err != nil {
			d.logger.Printf("events upgrade: %v", err)
			return
		}
		go d.streamEvents(ctx, ws)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		metrics.WriteJSONOnce(d.registry, w)
	})
	return mux
}

// streamEvents forwards audit events to one watcher until it hangs up.
func (d *daemon) streamEvents(ctx context.Context, ws *transport.WebSocket) {
	defer ws.Close()
	feed, stop := d.eventHub.subscribe()
	defer stop()
	inbound := ws.Events()
	for {
		select {
		case payload := <-feed:
			if err := ws.Send(payload); err != nil {
				return
			}
		case _, ok := <-inbound:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
