package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load of an explicit missing path succeeded, want error")
	}

	// No path: defaults apply even with no config file anywhere.
	dir := t.TempDir()
	oldWD, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Status.Port != 8473 {
		t.Errorf("status.port = %d, want 8473", cfg.Status.Port)
	}
	if cfg.Sync.OnlineDebounce != 2*time.Second {
		t.Errorf("sync.online_debounce = %v, want 2s", cfg.Sync.OnlineDebounce)
	}
	if cfg.Sync.MinGap != 10*time.Second {
		t.Errorf("sync.min_gap = %v, want 10s", cfg.Sync.MinGap)
	}
	if cfg.Sync.QueuePollInterval != 5*time.Second {
		t.Errorf("sync.queue_poll_interval = %v, want 5s", cfg.Sync.QueuePollInterval)
	}
	if cfg.Dashboard.RefreshInterval != 60*time.Second {
		t.Errorf("dashboard.refresh_interval = %v, want 60s", cfg.Dashboard.RefreshInterval)
	}
	if cfg.Store.Path == "" || cfg.Snapshots.Dir == "" {
		t.Error("store/snapshot paths have no defaults")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldsync.yaml")
	content := `
backend:
  url: https://api.example.com/rest/v1
  api_key: secret
  user_id: u-42
sync:
  min_gap: 30s
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.URL != "https://api.example.com/rest/v1" {
		t.Errorf("backend.url = %q", cfg.Backend.URL)
	}
	if cfg.Backend.UserID != "u-42" {
		t.Errorf("backend.user_id = %q, want u-42", cfg.Backend.UserID)
	}
	if cfg.Sync.MinGap != 30*time.Second {
		t.Errorf("sync.min_gap = %v, want overridden 30s", cfg.Sync.MinGap)
	}
	// Unset keys keep defaults.
	if cfg.Sync.OnlineDebounce != 2*time.Second {
		t.Errorf("sync.online_debounce = %v, want default 2s", cfg.Sync.OnlineDebounce)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed on a complete config: %v", err)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldsync.yaml")
	if err := os.WriteFile(path, []byte("backend: [not a map"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load of malformed YAML succeeded, want error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"complete", Config{Backend: BackendConfig{URL: "https://x", UserID: "u-1"}}, false},
		{"missing url", Config{Backend: BackendConfig{UserID: "u-1"}}, true},
		{"missing user", Config{Backend: BackendConfig{URL: "https://x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FIELDSYNC_BACKEND_USER_ID", "u-env")

	dir := t.TempDir()
	oldWD, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.UserID != "u-env" {
		t.Errorf("backend.user_id = %q, want env override u-env", cfg.Backend.UserID)
	}
}
