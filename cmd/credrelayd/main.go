package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/spf13/pflag"

	"github.com/rexliu/credrelay/pkg/config"
	"github.com/rexliu/credrelay/pkg/ipc"
	"github.com/rexliu/credrelay/pkg/logging"
	"github.com/rexliu/credrelay/pkg/message"
	"github.com/rexliu/credrelay/pkg/storage/sqlite"
	gitvcs "github.com/rexliu/credrelay/pkg/vcs/git"
)

type options struct {
	profile string
	socket  string
	listen  string
	stdio   bool
}

func main() {
	var opts options
	pflag.StringVar(&opts.profile, "profile", "./_dev_profile", "Path to profile directory")
	pflag.StringVar(&opts.socket, "socket", "", "Override IPC socket path (optional)")
	pflag.StringVar(&opts.listen, "listen", "", "Override HTTP listen address (optional)")
	pflag.BoolVar(&opts.stdio, "stdio", false, "Serve a single native messaging peer on stdin/stdout")
	pflag.Parse()

	logger := logging.New("credrelayd")
	if opts.stdio {
		// stdout carries frames
		logger = logging.NewTo(os.Stderr, "credrelayd")
	}
	logger.Printf("starting daemon with profile %s", opts.profile)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.Printf("fatal error: %v", err)
		os.Exit(1)
	}
}

type daemon struct {
	cfg        *config.ProfileConfig
	profileDir string
	codec      message.Codec
	policy     *policy
	store      *sqlite.Store
	repo       *gitvcs.Repo
	eventHub   *eventHub
	registry   metrics.Registry
	logger     *logging.Logger

	snapshotMu sync.Mutex
}

func run(ctx context.Context, opts options, logger *logging.Logger) error {
	cfg, err := config.LoadProfile(opts.profile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.socket != "" {
		cfg.IPC.SocketPath = opts.socket
	}
	if opts.listen != "" {
		cfg.IPC.ListenAddr = opts.listen
	}
	if cfg.Logging.FilePath != "" {
		cfg.Logging.FilePath = config.ResolvePath(opts.profile, cfg.Logging.FilePath)
	}
	if err := logger.Configure(cfg.Logging); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	codec, err := message.LookupCodec(cfg.IPC.Codec)
	if err != nil {
		return err
	}

	dbPath := config.ResolvePath(opts.profile, cfg.Storage.DBPath)
	store, err := sqlite.Open(dbPath,
		sqlite.WithJournalMode(cfg.Storage.JournalMode),
		sqlite.WithSynchronous(cfg.Storage.Synchronous))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}

	registry := metrics.NewRegistry()
	d := &daemon{
		cfg:        cfg,
		profileDir: opts.profile,
		codec:      codec,
		policy:     newPolicy(cfg.Policy),
		store:      store,
		registry:   registry,
		logger:     logger,
	}
	d.eventHub = newEventHub(logger, registry)
	if cfg.VCS.Enabled {
		repo, err := gitvcs.Open(filepath.Join(opts.profile, historyDir), gitvcs.Options{
			Branch:      cfg.VCS.Branch,
			AuthorName:  cfg.VCS.AuthorName,
			AuthorEmail: cfg.VCS.AuthorEmail,
		})
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		d.repo = repo
	}
	if !d.allows(cfg.IPC.PeerOrigin) {
		logger.Printf("warning: ipc.peerOrigin %q is not in messenger.allowedOrigins; socket peers will be ignored", cfg.IPC.PeerOrigin)
	}
	go metrics.Log(d.registry, 5*time.Minute, logger)

	if opts.stdio {
		return d.serveStdio(ctx)
	}

	socketPath := config.ResolvePath(opts.profile, cfg.IPC.SocketPath)
	srv := ipc.NewServer(d.serveConn, logger)
	if err := srv.Start(ctx, socketPath); err != nil {
		return fmt.Errorf("start ipc: %w", err)
	}
	defer srv.Stop()

	var httpSrv *http.Server
	if cfg.IPC.ListenAddr != "" {
		ln, err := net.Listen("tcp", cfg.IPC.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.IPC.ListenAddr, err)
		}
		httpSrv = &http.Server{Handler: d.routes(ctx), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Printf("http server: %v", err)
			}
		}()
		logger.Printf("websocket relay at ws://%s%s", ln.Addr(), cfg.IPC.WSPath)
	}

	logger.Printf("daemon ready; socket at %s", socketPath)
	<-ctx.Done()
	logger.Println("shutting down")
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func (d *daemon) allows(origin string) bool {
	for _, o := range d.cfg.Messenger.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}
