package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/petal-labs/algoviz/core"
)

func TestDiscoverPathFrom_FirstMatchWins(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	projectConfig := filepath.Join(cwd, "algoviz.yaml")
	if err := os.WriteFile(projectConfig, []byte("grid: {rows: 10}"), 0o600); err != nil {
		t.Fatalf("WriteFile(project config) error = %v", err)
	}
	homeDir := filepath.Join(home, ".algoviz")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("MkdirAll error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(homeDir, "config.yaml"), []byte("{}"), 0o600); err != nil {
		t.Fatalf("WriteFile(home config) error = %v", err)
	}

	got, found, err := DiscoverPathFrom("", cwd, home)
	if err != nil {
		t.Fatalf("DiscoverPathFrom() error = %v", err)
	}
	if !found || got != projectConfig {
		t.Fatalf("path = %q found = %v, want %q", got, found, projectConfig)
	}
}

func TestDiscoverPathFrom_FallsBackToHome(t *testing.T) {
	home := t.TempDir()
	homeConfig := filepath.Join(home, ".algoviz", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(homeConfig), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(homeConfig, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, found, err := DiscoverPathFrom("", t.TempDir(), home)
	if err != nil || !found || got != homeConfig {
		t.Fatalf("got %q %v %v, want %q", got, found, err, homeConfig)
	}
}

func TestDiscoverPathFrom_NothingFound(t *testing.T) {
	got, found, err := DiscoverPathFrom("", t.TempDir(), t.TempDir())
	if err != nil || found || got != "" {
		t.Fatalf("got %q %v %v, want nothing", got, found, err)
	}
}

func TestDiscoverPathFrom_ExplicitNotFound(t *testing.T) {
	_, found, err := DiscoverPathFrom(filepath.Join(t.TempDir(), "missing.yaml"), t.TempDir(), t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
	if found {
		t.Fatal("found = true, want false")
	}
}

func TestLoadFile_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "algoviz.yaml")
	yml := `
speed:
  sorting: 10ms
grid:
  rows: 8
  cols: 12
server:
  port: 9090
  sqlite_path: data/viz.db
sound:
  muted: true
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	want := Default()
	want.Speed.Sorting = 10 * time.Millisecond
	want.Grid = GridConfig{Rows: 8, Cols: 12}
	want.Server.Port = 9090
	want.Server.SQLitePath = filepath.Join(dir, "data", "viz.db")
	want.Sound.Muted = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{name: "bad yaml", yml: "grid: [", want: "parsing config"},
		{name: "tiny grid", yml: "grid: {rows: 1, cols: 1}", want: "at least 2x2"},
		{name: "bad port", yml: "server: {port: 70000}", want: "invalid server port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(tt.yml), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvSQLitePath: " /var/lib/algoviz.db ",
		EnvServerURL:  "http://viz.local",
		EnvUserID:     "",
		EnvOTLP:       "collector:4318",
	}
	cfg := Default()
	cfg.Client.UserID = "from-file"
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.Server.SQLitePath != "/var/lib/algoviz.db" {
		t.Errorf("SQLitePath = %q", cfg.Server.SQLitePath)
	}
	if cfg.Client.ServerURL != "http://viz.local" {
		t.Errorf("ServerURL = %q", cfg.Client.ServerURL)
	}
	if cfg.Client.UserID != "from-file" {
		t.Errorf("blank env value overrode UserID: %q", cfg.Client.UserID)
	}
	if cfg.Server.OTLPEndpoint != "collector:4318" {
		t.Errorf("OTLPEndpoint = %q", cfg.Server.OTLPEndpoint)
	}
}

func TestDefault_Delays(t *testing.T) {
	cfg := Default()
	tests := []struct {
		cat  core.Category
		want time.Duration
	}{
		{core.CategorySorting, 50 * time.Millisecond},
		{core.CategorySearching, 40 * time.Millisecond},
		{core.CategoryPathfinding, 18 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := cfg.Delay(tt.cat); got != tt.want {
			t.Errorf("Delay(%s) = %v, want %v", tt.cat, got, tt.want)
		}
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}
