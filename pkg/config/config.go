package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/rexliu/credrelay/pkg/message"
)

// FileName is the profile's config file inside the profile directory.
const FileName = "config.toml"

// Policy actions.
const (
	ActionApprove = "approve"
	ActionDeny    = "deny"
)

// MessengerConfig tunes every messenger the daemon creates.
type MessengerConfig struct {
	TimeoutMs      int      `toml:"timeoutMs"`
	AllowedOrigins []string `toml:"allowedOrigins"`
	InboundRate    float64  `toml:"inboundRate"`
	InboundBurst   int      `toml:"inboundBurst"`
}

// Timeout returns the request timeout as a duration.
func (m MessengerConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

// IPCConfig defines the unix socket and websocket listeners.
type IPCConfig struct {
	SocketPath string `toml:"socketPath"`
	Codec      string `toml:"codec"`
	PeerOrigin string `toml:"peerOrigin"`
	ListenAddr string `toml:"listenAddr"`
	WSPath     string `toml:"wsPath"`
}

// StorageConfig defines SQLite tuning options.
type StorageConfig struct {
	DBPath      string `toml:"dbPath"`
	JournalMode string `toml:"journalMode"`
	Synchronous string `toml:"synchronous"`
}

// VCSConfig defines Git options for audit snapshots.
type VCSConfig struct {
	Enabled     bool   `toml:"enabled"`
	Branch      string `toml:"branch"`
	AuthorName  string `toml:"authorName"`
	AuthorEmail string `toml:"authorEmail"`
}

// LoggingConfig defines basic logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level"`
	FilePath    string `toml:"filePath"`
	FileMaxSize int    `toml:"fileMaxSizeMB"`
}

// PolicyRule fixes the decision for one relying party.
type PolicyRule struct {
	RPID   string `toml:"rpId"`
	Action string `toml:"action"`
}

// PolicyConfig drives the daemon's approval handler.
type PolicyConfig struct {
	DefaultAction      string       `toml:"defaultAction"`
	RequireOriginMatch bool         `toml:"requireOriginMatch"`
	Rules              []PolicyRule `toml:"rules"`
}

// ProfileConfig aggregates service configuration for a profile.
type ProfileConfig struct {
	ProfileName string          `toml:"profileName"`
	Messenger   MessengerConfig `toml:"messenger"`
	IPC         IPCConfig       `toml:"ipc"`
	Storage     StorageConfig   `toml:"storage"`
	VCS         VCSConfig       `toml:"vcs"`
	Logging     LoggingConfig   `toml:"logging"`
	Policy      PolicyConfig    `toml:"policy"`
}

// envOverrides are applied on top of the file. Unset variables leave the
// file's values alone.
type envOverrides struct {
	SocketPath     string   `env:"CREDRELAY_SOCKET"`
	ListenAddr     string   `env:"CREDRELAY_LISTEN"`
	DBPath         string   `env:"CREDRELAY_DB"`
	LogLevel       string   `env:"CREDRELAY_LOG_LEVEL"`
	AllowedOrigins []string `env:"CREDRELAY_ALLOWED_ORIGINS" envSeparator:","`
	TimeoutMs      int      `env:"CREDRELAY_TIMEOUT_MS"`
	Codec          string   `env:"CREDRELAY_CODEC"`
}

// DefaultProfile returns a profile that denies every relying party not
// listed in policy.rules and accepts only the native bridge.
func DefaultProfile(name string) *ProfileConfig {
	return &ProfileConfig{
		ProfileName: name,
		Messenger: MessengerConfig{
			TimeoutMs:      300000,
			AllowedOrigins: []string{"native:bridge"},
			InboundRate:    20,
			InboundBurst:   40,
		},
		IPC: IPCConfig{
			SocketPath: "credrelay.sock",
			Codec:      "json",
			PeerOrigin: "native:bridge",
			ListenAddr: "127.0.0.1:7878",
			WSPath:     "/relay",
		},
		Storage: StorageConfig{
			DBPath:      "audit.db",
			JournalMode: "WAL",
			Synchronous: "NORMAL",
		},
		VCS: VCSConfig{
			Branch:      "main",
			AuthorName:  "credrelay",
			AuthorEmail: "credrelay@localhost",
		},
		Logging: LoggingConfig{Level: "info", FileMaxSize: 10},
		Policy: PolicyConfig{
			DefaultAction:      ActionDeny,
			RequireOriginMatch: true,
		},
	}
}

// Load reads config.toml from the provided path, applies environment
// overrides and validates the result.
func Load(path string) (*ProfileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ProfileConfig
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("parse %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadProfile loads the config file of the profile stored in dir.
func LoadProfile(dir string) (*ProfileConfig, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes cfg to path, creating its directory.
func Save(path string, cfg *ProfileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// ResolvePath interprets p relative to the profile directory.
func ResolvePath(profileDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(profileDir, p)
}

func (cfg *ProfileConfig) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if o.SocketPath != "" {
		cfg.IPC.SocketPath = o.SocketPath
	}
	if o.ListenAddr != "" {
		cfg.IPC.ListenAddr = o.ListenAddr
	}
	if o.DBPath != "" {
		cfg.Storage.DBPath = o.DBPath
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if len(o.AllowedOrigins) > 0 {
		cfg.Messenger.AllowedOrigins = o.AllowedOrigins
	}
	if o.TimeoutMs != 0 {
		cfg.Messenger.TimeoutMs = o.TimeoutMs
	}
	if o.Codec != "" {
		cfg.IPC.Codec = o.Codec
	}
	return nil
}

func (cfg *ProfileConfig) validate() error {
	if cfg.ProfileName == "" {
		return fmt.Errorf("profileName required")
	}
	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.dbPath required")
	}
	if cfg.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socketPath required")
	}
	if len(cfg.Messenger.AllowedOrigins) == 0 {
		return fmt.Errorf("messenger.allowedOrigins required")
	}
	if cfg.Messenger.TimeoutMs < 0 {
		return fmt.Errorf("messenger.timeoutMs must not be negative")
	}
	if cfg.Messenger.TimeoutMs == 0 {
		cfg.Messenger.TimeoutMs = 300000
	}
	if cfg.Messenger.InboundRate < 0 || cfg.Messenger.InboundBurst < 0 {
		return fmt.Errorf("messenger.inboundRate and inboundBurst must not be negative")
	}
	if _, err := message.LookupCodec(cfg.IPC.Codec); err != nil {
		return fmt.Errorf("ipc.codec: %w", err)
	}
	if cfg.IPC.PeerOrigin == "" {
		cfg.IPC.PeerOrigin = "native:bridge"
	}
	if cfg.IPC.WSPath == "" {
		cfg.IPC.WSPath = "/relay"
	}
	if !strings.HasPrefix(cfg.IPC.WSPath, "/") {
		return fmt.Errorf("ipc.wsPath must start with /")
	}
	if cfg.VCS.Branch == "" {
		cfg.VCS.Branch = "main"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	switch cfg.Policy.DefaultAction {
	case "":
		cfg.Policy.DefaultAction = ActionDeny
	case ActionApprove, ActionDeny:
	default:
		return fmt.Errorf("policy.defaultAction %q: want approve or deny", cfg.Policy.DefaultAction)
	}
	for i, rule := range cfg.Policy.Rules {
		if rule.RPID == "" {
			return fmt.Errorf("policy.rules[%d].rpId required", i)
		}
		if rule.Action != ActionApprove && rule.Action != ActionDeny {
			return fmt.Errorf("policy.rules[%d].action %q: want approve or deny", i, rule.Action)
		}
	}
	return nil
}
