package config

import (
	"os"
	"path/filepath"
	"testing"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.LoginURL != "https://login.salesforce.com" {
		t.Errorf("login_url = %q", cfg.LoginURL)
	}
	if cfg.APIVersion != "59.0" {
		t.Errorf("api_version = %q", cfg.APIVersion)
	}
	if cfg.Redis.Key != "sforce:token" {
		t.Errorf("redis.key = %q", cfg.Redis.Key)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	content := `
login_url: https://test.salesforce.com
api_version: "60.0"
auth:
  client_id: 3MVG9test
  username: integration@example.com
  private_key: /etc/sforce/server.key
redis:
  addr: localhost:6379
  db: 2
`
	if err := os.WriteFile(filepath.Join(dir, "sforce.yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.LoginURL != "https://test.salesforce.com" {
		t.Errorf("login_url = %q", cfg.LoginURL)
	}
	if cfg.APIVersion != "60.0" {
		t.Errorf("api_version = %q", cfg.APIVersion)
	}
	if cfg.Auth.ClientID != "3MVG9test" {
		t.Errorf("auth.client_id = %q", cfg.Auth.ClientID)
	}
	if cfg.Auth.Username != "integration@example.com" {
		t.Errorf("auth.username = %q", cfg.Auth.Username)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis.addr = %q", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("redis.db = %d", cfg.Redis.DB)
	}
	if cfg.Redis.Key != "sforce:token" {
		t.Errorf("redis.key default = %q", cfg.Redis.Key)
	}
}

func TestValidate(t *testing.T) {
	key := filepath.Join(t.TempDir(), "server.key")
	if err := os.WriteFile(key, []byte("not a real key"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "complete",
			cfg: Config{Auth: AuthConfig{
				ClientID:   "3MVG9test",
				Username:   "integration@example.com",
				PrivateKey: key,
			}},
		},
		{
			name:    "missing client id",
			cfg:     Config{Auth: AuthConfig{Username: "u", PrivateKey: key}},
			wantErr: true,
		},
		{
			name:    "missing username",
			cfg:     Config{Auth: AuthConfig{ClientID: "c", PrivateKey: key}},
			wantErr: true,
		},
		{
			name: "key file does not exist",
			cfg: Config{Auth: AuthConfig{
				ClientID:   "c",
				Username:   "u",
				PrivateKey: filepath.Join(t.TempDir(), "missing.key"),
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}
