package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Server.Mode != "release" {
		t.Errorf("Mode = %q", cfg.Server.Mode)
	}
	if cfg.Pool.AcquireTimeout != 30*time.Second {
		t.Errorf("AcquireTimeout = %v", cfg.Pool.AcquireTimeout)
	}
	if cfg.Pool.AcquireRetryInterval != 10*time.Millisecond {
		t.Errorf("AcquireRetryInterval = %v", cfg.Pool.AcquireRetryInterval)
	}
	if cfg.Pool.CleanupInterval != 30*time.Second {
		t.Errorf("CleanupInterval = %v", cfg.Pool.CleanupInterval)
	}
	if len(cfg.Providers) != 0 {
		t.Errorf("Providers = %v", cfg.Providers)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EGRESS_PORT", "9999")
	t.Setenv("EGRESS_MODE", "debug")
	t.Setenv("EGRESS_ACQUIRE_TIMEOUT", "5s")
	t.Setenv("EGRESS_API_KEYS", "k1, k2")
	t.Setenv("EGRESS_AUTH_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Server.Mode != "debug" {
		t.Errorf("Mode = %q", cfg.Server.Mode)
	}
	if cfg.Pool.AcquireTimeout != 5*time.Second {
		t.Errorf("AcquireTimeout = %v", cfg.Pool.AcquireTimeout)
	}
	if !cfg.Auth.Enabled || len(cfg.Auth.APIKeys) != 2 || cfg.Auth.APIKeys[1] != "k2" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
}

func TestLoadProvidersFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	data := `
openai:
  base_url: https://api.openai.com
  max_connections: 4
  max_streams_per_connection: 100
  default_headers:
    Authorization: Bearer sk-test
anthropic:
  base_url: https://api.anthropic.com
  max_connections: 2
  max_streams_per_connection: 50
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EGRESS_PROVIDERS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Providers) != 2 {
		t.Fatalf("Providers = %v", cfg.Providers)
	}
	oa := cfg.Providers["openai"]
	if oa.BaseURL != "https://api.openai.com" || oa.MaxConnections != 4 || oa.MaxStreamsPerConnection != 100 {
		t.Errorf("openai = %+v", oa)
	}
	if oa.DefaultHeaders["Authorization"] != "Bearer sk-test" {
		t.Errorf("openai headers = %v", oa.DefaultHeaders)
	}
}

func TestLoadProvidersFromInlineJSON(t *testing.T) {
	t.Setenv("EGRESS_PROVIDERS", `{"local":{"base_url":"http://localhost:9000","max_connections":1,"max_streams_per_connection":2}}`)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	p := cfg.Providers["local"]
	if p.BaseURL != "http://localhost:9000" || p.MaxStreamsPerConnection != 2 {
		t.Errorf("local = %+v", p)
	}
}

func TestLoadProvidersFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	if err := os.WriteFile(path, []byte("::: not yaml"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EGRESS_PROVIDERS_FILE", path)

	if _, err := Load(); err == nil {
		t.Error("invalid providers file should fail Load")
	}
}

func TestLoadProvidersFileMissing(t *testing.T) {
	t.Setenv("EGRESS_PROVIDERS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Error("missing providers file should fail Load")
	}
}
