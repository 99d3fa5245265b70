package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if s.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", s.Addr())
	}
	if s.ValidateAudience {
		t.Error("audience validation should be off by default")
	}
	if len(s.Users) != 0 {
		t.Error("defaults should have no static users")
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mockidp.yaml")
	content := []byte(`
port: 4280
issuer: https://idp.test
accessTokenExpiry: 30m
defaultRoles: [Admin, User]
users:
  - username: pinned@example.com
    password: secret
    claims:
      sub: fixed-sub
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if s.Port != 4280 || s.Issuer != "https://idp.test" {
		t.Errorf("overrides not applied: %+v", s)
	}
	if s.AccessTokenExpiry != "30m" {
		t.Errorf("accessTokenExpiry = %q", s.AccessTokenExpiry)
	}
	// Untouched fields keep their defaults.
	if s.IDTokenExpiry != "1h" || s.Host != "0.0.0.0" {
		t.Errorf("defaults lost: %+v", s)
	}
	if len(s.Users) != 1 || s.Users[0].Username != "pinned@example.com" {
		t.Errorf("users not loaded: %+v", s.Users)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mockidp.json")
	if err := os.WriteFile(path, []byte(`{"port": 9999}`), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if s.Port != 9999 {
		t.Errorf("Port = %d, want 9999", s.Port)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
		if !errors.Is(err, ErrFileNotFound) {
			t.Errorf("err = %v, want ErrFileNotFound", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.yaml")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := LoadFromFile(path)
		if !errors.Is(err, ErrEmptyFile) {
			t.Errorf("err = %v, want ErrEmptyFile", err)
		}
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("port: [not a port"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := LoadFromFile(path)
		if !errors.Is(err, ErrInvalidYAML) {
			t.Errorf("err = %v, want ErrInvalidYAML", err)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := LoadFromFile(path)
		if !errors.Is(err, ErrInvalidJSON) {
			t.Errorf("err = %v, want ErrInvalidJSON", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid defaults", func(s *Settings) {}, false},
		{"port too low", func(s *Settings) { s.Port = 0 }, true},
		{"port too high", func(s *Settings) { s.Port = 70000 }, true},
		{"bad expiry", func(s *Settings) { s.AccessTokenExpiry = "soon" }, true},
		{"day expiry ok", func(s *Settings) { s.AuthorizationCodeExpiry = "1d" }, false},
		{"no response types", func(s *Settings) { s.SupportedResponseTypes = nil }, true},
		{"audience flag without audience", func(s *Settings) { s.ValidateAudience = true }, true},
		{"audience flag with audience", func(s *Settings) { s.ValidateAudience = true; s.Audience = "api://default" }, false},
		{"user without username", func(s *Settings) { s.Users = []UserConfig{{Password: "x"}} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"1h", time.Hour, false},
		{"10m", 10 * time.Minute, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"", 0, true},
		{"xd", 0, true},
		{"forever", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
