package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgutils "example.com/icmpping/pkg/utils"
	"github.com/alecthomas/kong"
)

func parse(t *testing.T, args ...string) (*CLI, error) {
	t.Helper()
	var cli CLI
	parser, err := NewParser(&cli, kong.Exit(func(code int) {
		t.Fatalf("parser exited with code %d", code)
	}))
	if err != nil {
		t.Fatalf("NewParser() failed: %v", err)
	}
	_, err = parser.Parse(args)
	return &cli, err
}

func TestParsePingIsDefaultCommand(t *testing.T) {
	cli, err := parse(t, "-c", "3", "-6", "-t", "12", "--timeout", "500ms", "example.com")
	if err != nil {
		t.Fatal(err)
	}
	ping := cli.Ping
	if ping.Target != "example.com" || ping.Count != 3 || !ping.IPv6 || ping.IPv4 || ping.TTL != 12 {
		t.Errorf("unexpected flags: %+v", ping)
	}
	if ping.Timeout != 500*time.Millisecond {
		t.Errorf("timeout = %v, want 500ms", ping.Timeout)
	}
}

func TestParseDefaults(t *testing.T) {
	cli, err := parse(t, "ping", "example.com")
	if err != nil {
		t.Fatal(err)
	}
	ping := cli.Ping
	if ping.Count != 5 || ping.TTL != 64 || ping.Timeout != time.Second || ping.Interval != time.Second {
		t.Errorf("unexpected defaults: %+v", ping)
	}
	if ping.MetricsPath != "/metrics" || ping.MetricsListenAddress != "" || ping.NoRDNS || ping.JSON {
		t.Errorf("unexpected defaults: %+v", ping)
	}
}

func TestParseFromEnvironment(t *testing.T) {
	t.Setenv("ICMPPING_COUNT", "9")
	t.Setenv("ICMPPING_INTERVAL", "250ms")
	t.Setenv("ICMPPING_INTERFACE", "eth1")

	cli, err := parse(t, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if cli.Ping.Count != 9 || cli.Ping.Interval != 250*time.Millisecond || cli.Ping.Interface != "eth1" {
		t.Errorf("environment not applied: %+v", cli.Ping)
	}

	// flags win over the environment
	cli, err = parse(t, "-c", "2", "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if cli.Ping.Count != 2 {
		t.Errorf("count = %d, want 2", cli.Ping.Count)
	}
}

func TestParseRejectsBothFamilies(t *testing.T) {
	if _, err := parse(t, "-4", "-6", "example.com"); err == nil {
		t.Error("-4 together with -6 should not parse")
	}
}

func TestParseRequiresTarget(t *testing.T) {
	if _, err := parse(t, "ping"); err == nil {
		t.Error("ping without target should not parse")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icmpping.env")
	content := "ICMPPING_DOTENV_LOADED=yes\nICMPPING_DOTENV_KEPT=theirs\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(envFileVariable, path)
	t.Setenv("ICMPPING_DOTENV_KEPT", "mine")
	t.Cleanup(func() { os.Unsetenv("ICMPPING_DOTENV_LOADED") })

	if err := LoadEnvFile(); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("ICMPPING_DOTENV_LOADED"); got != "yes" {
		t.Errorf("ICMPPING_DOTENV_LOADED = %q, want yes", got)
	}
	if got := os.Getenv("ICMPPING_DOTENV_KEPT"); got != "mine" {
		t.Errorf("ICMPPING_DOTENV_KEPT = %q, want mine", got)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	t.Setenv(envFileVariable, filepath.Join(t.TempDir(), "absent.env"))
	if err := LoadEnvFile(); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	bv, err := pkgutils.NewBuildVersion([]byte("HEAD: 0123456789abcdef\ntags: v1.0.0\n"))
	if err != nil {
		t.Fatal(err)
	}
	sharedCtx := &pkgutils.GlobalSharedContext{BuildVersion: bv}

	var buf bytes.Buffer
	if err := (&VersionCmd{}).write(&buf, sharedCtx); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "icmpping v1.0.0 (0123456)\n"; got != want {
		t.Errorf("version = %q, want %q", got, want)
	}

	buf.Reset()
	if err := (&VersionCmd{JSON: true}).write(&buf, sharedCtx); err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if doc["HEAD"] != "0123456789abcdef" {
		t.Errorf("HEAD = %v", doc["HEAD"])
	}
}
