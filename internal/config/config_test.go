package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsWhenNoFileOrEnv(t *testing.T) {
	m := NewManager()
	if err := m.Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := m.Get()
	want := defaults()
	if got != want {
		t.Fatalf("Get() = %+v, want defaults %+v", got, want)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("api_url: https://custom.example.com\nudp_port: 9999\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager()
	if err := m.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := m.Get()
	if got.APIURL != "https://custom.example.com" {
		t.Fatalf("APIURL = %q", got.APIURL)
	}
	if got.UDPPort != 9999 {
		t.Fatalf("UDPPort = %d", got.UDPPort)
	}
	if got.TCPPort != defaults().TCPPort {
		t.Fatalf("TCPPort = %d, want default %d (unset in file)", got.TCPPort, defaults().TCPPort)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("api_url: https://from-file.example.com\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MESSAGING_API_URL", "https://from-env.example.com")

	m := NewManager()
	if err := m.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get().APIURL; got != "https://from-env.example.com" {
		t.Fatalf("APIURL = %q, want env override", got)
	}
}

func TestMissingFileIsNotAnError(t *testing.T) {
	m := NewManager()
	if err := m.Load(filepath.Join(t.TempDir(), "nonexistent.yaml")); err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
}

func TestWatchReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("udp_port: 1111\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager()
	if err := m.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("udp_port: 2222\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Get().UDPPort == 2222 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("config did not reload, UDPPort = %d", m.Get().UDPPort)
}
