package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  addr: ":9090"
  read_timeout: 10s
database:
  dsn: ":memory:"
ingress:
  enabled: true
  forward_upstream: "http://mesh-peer:9000"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("dsn = %q, want %q", cfg.Database.DSN, ":memory:")
	}
	if !cfg.Ingress.Enabled {
		t.Error("ingress.enabled = false, want true")
	}
	if cfg.Ingress.ForwardUpstream != "http://mesh-peer:9000" {
		t.Errorf("forward_upstream = %q, want %q", cfg.Ingress.ForwardUpstream, "http://mesh-peer:9000")
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv
	t.Setenv("TEST_API_KEY", "sk-secret-123")

	result := expandEnv([]byte("key: ${TEST_API_KEY}"))
	if string(result) != "key: sk-secret-123" {
		t.Errorf("expandEnv = %q, want %q", string(result), "key: sk-secret-123")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	yaml := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Database.DSN != "gandalf.db" {
		t.Errorf("default dsn = %q, want %q", cfg.Database.DSN, "gandalf.db")
	}
	if cfg.Ingress.Addr != ":8181" {
		t.Errorf("default ingress addr = %q, want %q", cfg.Ingress.Addr, ":8181")
	}
}
