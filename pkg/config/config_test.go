package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultProfile("dev")
	cfg.Messenger.AllowedOrigins = []string{"native:bridge", "https://example.com"}
	cfg.Policy.Rules = []PolicyRule{{RPID: "example.com", Action: ActionApprove}}
	if err := Save(filepath.Join(dir, FileName), cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadProfile(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, cfg)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
profileName = "dev"
[messenger]
allowedOrigins = ["native:bridge"]
[ipc]
socketPath = "s.sock"
[storage]
dbPath = "a.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Messenger.TimeoutMs != 300000 || cfg.IPC.WSPath != "/relay" || cfg.VCS.Branch != "main" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Policy.DefaultAction != ActionDeny {
		t.Fatalf("expected deny by default, got %q", cfg.Policy.DefaultAction)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := Save(filepath.Join(dir, FileName), DefaultProfile("dev")); err != nil {
		t.Fatalf("save: %v", err)
	}
	t.Setenv("CREDRELAY_SOCKET", "/run/relay.sock")
	t.Setenv("CREDRELAY_ALLOWED_ORIGINS", "native:bridge,https://a.example")
	t.Setenv("CREDRELAY_TIMEOUT_MS", "1500")
	t.Setenv("CREDRELAY_CODEC", "cbor")

	cfg, err := LoadProfile(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IPC.SocketPath != "/run/relay.sock" || cfg.IPC.Codec != "cbor" {
		t.Fatalf("ipc overrides not applied: %+v", cfg.IPC)
	}
	if want := []string{"native:bridge", "https://a.example"}; !reflect.DeepEqual(cfg.Messenger.AllowedOrigins, want) {
		t.Fatalf("expected origins %v, got %v", want, cfg.Messenger.AllowedOrigins)
	}
	if cfg.Messenger.Timeout().Milliseconds() != 1500 {
		t.Fatalf("expected 1500ms timeout, got %s", cfg.Messenger.Timeout())
	}
}

func TestLoadRejects(t *testing.T) {
	base := `
profileName = "dev"
[messenger]
allowedOrigins = ["native:bridge"]
[ipc]
socketPath = "s.sock"
[storage]
dbPath = "a.db"
`
	cases := map[string]string{
		"unknown key":     base + "[extra]\nvalue = 1\n",
		"bad codec":       strings.Replace(base, `socketPath = "s.sock"`, "socketPath = \"s.sock\"\ncodec = \"xml\"", 1),
		"no origins":      strings.Replace(base, `allowedOrigins = ["native:bridge"]`, "allowedOrigins = []", 1),
		"bad rule action": base + "[policy]\n[[policy.rules]]\nrpId = \"a.example\"\naction = \"maybe\"\n",
		"missing db":      strings.Replace(base, `dbPath = "a.db"`, "", 1),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/p", "audit.db"); got != filepath.Join("/p", "audit.db") {
		t.Fatalf("relative path resolved to %s", got)
	}
	if got := ResolvePath("/p", "/var/audit.db"); got != "/var/audit.db" {
		t.Fatalf("absolute path changed to %s", got)
	}
	if got := ResolvePath("/p", ""); got != "" {
		t.Fatalf("empty path resolved to %s", got)
	}
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}
