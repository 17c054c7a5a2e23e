package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.HTTPAddr != "127.0.0.1:2501" {
		t.Errorf("expected default http_addr, got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Loop.SelectTimeout != 100*time.Millisecond {
		t.Errorf("expected 100ms select timeout, got %v", cfg.Loop.SelectTimeout)
	}
	if cfg.Loop.BootstrapTimeout != 2*time.Second {
		t.Errorf("expected 2s bootstrap timeout, got %v", cfg.Loop.BootstrapTimeout)
	}
	if cfg.Loop.DrainTimeout != 2*time.Second {
		t.Errorf("expected 2s drain timeout, got %v", cfg.Loop.DrainTimeout)
	}
	if cfg.Registry.FatalQueueDepth != 50 {
		t.Errorf("expected fatal queue depth 50, got %d", cfg.Registry.FatalQueueDepth)
	}
}

func TestLoadWithKoanfDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf failed: %v", err)
	}
	if cfg.Server.Name != "kismet" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
}

func TestLoadWithKoanfEnvOverride(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	t.Setenv("KISMET_SERVER_HTTP_ADDR", "0.0.0.0:9999")
	t.Setenv("KISMET_SERVER_DEBUG", "true")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf failed: %v", err)
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:9999" {
		t.Errorf("expected env override, got %q", cfg.Server.HTTPAddr)
	}
	if !cfg.Server.Debug {
		t.Error("expected debug override to be true")
	}
}

func TestLoadWithKoanfConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	content := "server:\n  name: test-kismet\n  http_addr: \"127.0.0.1:1234\"\n"
	if err := os.WriteFile(filepath.Join(dir, "kismet.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf failed: %v", err)
	}
	if cfg.Server.Name != "test-kismet" {
		t.Errorf("expected file override, got %q", cfg.Server.Name)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:1234" {
		t.Errorf("expected file override, got %q", cfg.Server.HTTPAddr)
	}
}

func TestFindConfigFileEnvVar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("server:\n  name: envpath\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(ConfigPathEnvVar, path)

	found := findConfigFile()
	if found != path {
		t.Errorf("expected %q, got %q", path, found)
	}
}
