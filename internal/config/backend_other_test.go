//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	b := &fileBackend{path: path, data: make(map[string]any)}
	if err := b.SetString("engine.model", "mistral"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	if err := b.SetInt("server.port", 9000); err != nil {
		t.Fatalf("SetInt failed: %v", err)
	}

	// A fresh backend must see the persisted values.
	b2 := &fileBackend{path: path, data: make(map[string]any)}
	b2.load()

	if v, ok, err := b2.GetString("engine.model"); err != nil || !ok || v != "mistral" {
		t.Errorf("GetString = %q, %v, %v", v, ok, err)
	}
	if v, ok, err := b2.GetInt("server.port"); err != nil || !ok || v != 9000 {
		t.Errorf("GetInt = %d, %v, %v", v, ok, err)
	}

	if err := b2.Delete("engine.model"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	b3 := &fileBackend{path: path, data: make(map[string]any)}
	b3.load()
	if _, ok, _ := b3.GetString("engine.model"); ok {
		t.Error("deleted key still present after reload")
	}
}

func TestFileBackendIgnoresCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	b := &fileBackend{path: path, data: make(map[string]any)}
	b.load()

	if _, ok, _ := b.GetString("anything"); ok {
		t.Error("corrupt file produced values")
	}
}

func TestSecretStoreRoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if err := keychainStore("pathlight", "server_token", "s3cret"); err != nil {
		t.Fatalf("keychainStore failed: %v", err)
	}

	got, err := keychainReader{}.Get("pathlight", "server_token")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("token = %q, want %q", got, "s3cret")
	}

	if _, err := (keychainReader{}).Get("pathlight", "other_account"); err == nil {
		t.Error("expected error for unknown account")
	}
}

func TestLoadEndToEnd(t *testing.T) {
	cfgDir := t.TempDir()
	dataDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgDir)
	t.Setenv("XDG_DATA_HOME", dataDir)
	t.Setenv("PATHLIGHT_SERVER_TOKEN", "")

	if err := os.MkdirAll(filepath.Join(cfgDir, "pathlight"), 0o700); err != nil {
		t.Fatal(err)
	}
	cfgJSON := `{"server.port": 9200, "engine.model": "qwen3"}`
	if err := os.WriteFile(filepath.Join(cfgDir, "pathlight", "config.json"), []byte(cfgJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := SetToken("file-token"); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want 9200", cfg.Server.Port)
	}
	if cfg.Engine.Model != "qwen3" {
		t.Errorf("Engine.Model = %q, want %q", cfg.Engine.Model, "qwen3")
	}
	if cfg.Server.Token != "file-token" {
		t.Errorf("Server.Token = %q, want secret store value", cfg.Server.Token)
	}
}
