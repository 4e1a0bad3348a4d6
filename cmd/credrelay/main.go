package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/rexliu/credrelay/pkg/config"
	"github.com/rexliu/credrelay/pkg/storage/sqlite"
	"github.com/rexliu/credrelay/pkg/transport"
)

const defaultProfile = "./_dev_profile"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "init":
		err = initCommand(os.Args[2:])
	case "diag":
		err = diagCommand(os.Args[2:])
	case "probe":
		err = probeCommand(os.Args[2:])
	case "audit":
		err = auditCommand(os.Args[2:])
	case "watch":
		err = watchCommand(os.Args[2:])
	case "version":
		fmt.Println("credrelay CLI")
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: credrelay <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init           Initialize a local profile (writes config.toml)")
	fmt.Println("  diag           Print profile configuration paths")
	fmt.Println("  probe create   Run a mediated credential creation against the daemon")
	fmt.Println("  probe get      Run a mediated credential get against the daemon")
	fmt.Println("  audit          List recent ceremonies from the audit store")
	fmt.Println("  watch          Stream audit events from the daemon")
	fmt.Println("  version        Print CLI version")
}

func initCommand(args []string) error {
	fs := pflag.NewFlagSet("init", pflag.ExitOnError)
	profile := fs.String("profile", defaultProfile, "Profile directory")
	name := fs.String("name", "dev", "Profile name")
	force := fs.Bool("force", false, "Overwrite existing config if present")
	_ = fs.Parse(args)

	if err := os.MkdirAll(*profile, 0o700); err != nil {
		return err
	}
	configPath := filepath.Join(*profile, config.FileName)
	if _, err := os.Stat(configPath); err == nil && !*force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}
	cfg := config.DefaultProfile(*name)
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("initialized profile %s at %s\n", cfg.ProfileName, *profile)
	return nil
}

func diagCommand(args []string) error {
	fs := pflag.NewFlagSet("diag", pflag.ExitOnError)
	profile := fs.String("profile", defaultProfile, "Profile directory")
	_ = fs.Parse(args)

	cfg, err := config.LoadProfile(*profile)
	if err != nil {
		return err
	}
	fmt.Printf("Profile: %s\n", cfg.ProfileName)
	fmt.Printf("Config: %s\n", filepath.Join(*profile, config.FileName))
	fmt.Printf("DB Path: %s\n", config.ResolvePath(*profile, cfg.Storage.DBPath))
	fmt.Printf("Socket: %s (peer origin %s)\n", config.ResolvePath(*profile, cfg.IPC.SocketPath), cfg.IPC.PeerOrigin)
	if cfg.IPC.ListenAddr != "" {
		fmt.Printf("WebSocket: %s\n", relayURL(cfg, cfg.IPC.WSPath))
	}
	fmt.Printf("Codec: %s\n", cfg.IPC.Codec)
	fmt.Printf("Allowed Origins: %v\n", cfg.Messenger.AllowedOrigins)
	fmt.Printf("Timeout: %s\n", cfg.Messenger.Timeout())
	fmt.Printf("Default Action: %s (%d rules)\n", cfg.Policy.DefaultAction, len(cfg.Policy.Rules))
	if cfg.Logging.FilePath != "" {
		fmt.Printf("Log File: %s\n", config.ResolvePath(*profile, cfg.Logging.FilePath))
	}
	fmt.Printf("VCS Branch: %s (enabled=%t)\n", cfg.VCS.Branch, cfg.VCS.Enabled)
	return nil
}

func auditCommand(args []string) error {
	fs := pflag.NewFlagSet("audit", pflag.ExitOnError)
	profile := fs.String("profile", defaultProfile, "Profile directory")
	limit := fs.Int("limit", 20, "Maximum ceremonies to list")
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	_ = fs.Parse(args)

	cfg, err := config.LoadProfile(*profile)
	if err != nil {
		return err
	}
	store, err := sqlite.Open(config.ResolvePath(*profile, cfg.Storage.DBPath))
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		return err
	}
	ceremonies, err := store.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		out, err := json.MarshalIndent(ceremonies, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIVED\tORIGIN\tTYPE\tRP ID\tDECISION\tERROR")
	for _, c := range ceremonies {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ReceivedAt.Format(time.RFC3339), c.Origin, c.Type, c.RPID, c.Decision, c.Error)
	}
	return tw.Flush()
}

func watchCommand(args []string) error {
	fs := pflag.NewFlagSet("watch", pflag.ExitOnError)
	profile := fs.String("profile", defaultProfile, "Profile directory")
	_ = fs.Parse(args)

	cfg, err := config.LoadProfile(*profile)
	if err != nil {
		return err
	}
	if cfg.IPC.ListenAddr == "" {
		return fmt.Errorf("ipc.listenAddr is not configured")
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ws, err := transport.Dial(ctx, relayURL(cfg, "/events"), "", false)
	if err != nil {
		return err
	}
	defer ws.Close()
	fmt.Println("Subscribed to audit events (Ctrl+C to exit)")
	events := ws.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Println(string(ev.Payload))
		case <-ctx.Done():
			return nil
		}
	}
}

func relayURL(cfg *config.ProfileConfig, path string) string {
	return "ws://" + cfg.IPC.ListenAddr + path
}
