// Package config holds the provider settings and loads them from JSON or
// YAML files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidJSON      = errors.New("invalid JSON syntax")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
)

// Settings configures the identity provider.
type Settings struct {
	// Host and Port control the listen address.
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// Issuer pins the issuer URL in discovery documents and tokens. When
	// empty, the issuer is derived from each inbound request.
	Issuer string `json:"issuer,omitempty" yaml:"issuer,omitempty"`

	// Token and code lifetimes as duration strings; "d" suffix means days.
	AccessTokenExpiry       string `json:"accessTokenExpiry" yaml:"accessTokenExpiry"`
	IDTokenExpiry           string `json:"idTokenExpiry" yaml:"idTokenExpiry"`
	AuthorizationCodeExpiry string `json:"authorizationCodeExpiry" yaml:"authorizationCodeExpiry"`

	SupportedScopes        []string `json:"supportedScopes" yaml:"supportedScopes"`
	SupportedResponseTypes []string `json:"supportedResponseTypes" yaml:"supportedResponseTypes"`

	// ValidateAudience switches the token validator to strict audience
	// checking against Audience. Off by default: the relaxation lets tests
	// reuse tokens across services.
	ValidateAudience bool   `json:"validateAudience" yaml:"validateAudience"`
	Audience         string `json:"audience,omitempty" yaml:"audience,omitempty"`

	// Role/group sets stamped onto every synthesized identity.
	DefaultRoles  []string `json:"defaultRoles" yaml:"defaultRoles"`
	DefaultGroups []string `json:"defaultGroups" yaml:"defaultGroups"`

	// Users optionally restricts logins to a fixed list. When empty, any
	// email/password pair is accepted and claims are synthesized from the
	// email.
	Users []UserConfig `json:"users,omitempty" yaml:"users,omitempty"`

	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"`
}

// UserConfig is a statically configured user. Claims are used verbatim in
// place of synthesized ones.
type UserConfig struct {
	Username string                 `json:"username" yaml:"username"`
	Password string                 `json:"password" yaml:"password"`
	Claims   map[string]interface{} `json:"claims" yaml:"claims"`
}

// Default returns the baseline settings.
func Default() *Settings {
	return &Settings{
		Host:                    "0.0.0.0",
		Port:                    8080,
		AccessTokenExpiry:       "1h",
		IDTokenExpiry:           "1h",
		AuthorizationCodeExpiry: "10m",
		SupportedScopes:         []string{"openid", "profile", "email", "offline_access"},
		SupportedResponseTypes:  []string{"code"},
		DefaultRoles:            []string{"User"},
		DefaultGroups:           []string{"default-group"},
		LogLevel:                "info",
		LogFormat:               "text",
	}
}

// LoadFromFile reads Settings from a JSON or YAML file, applied on top of
// defaults. The format is auto-detected from the file extension (.yaml/.yml
// for YAML, otherwise JSON).
func LoadFromFile(path string) (*Settings, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	settings := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
	default:
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks the settings for structural problems.
func (s *Settings) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	for name, value := range map[string]string{
		"accessTokenExpiry":       s.AccessTokenExpiry,
		"idTokenExpiry":           s.IDTokenExpiry,
		"authorizationCodeExpiry": s.AuthorizationCodeExpiry,
	} {
		if _, err := ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if len(s.SupportedResponseTypes) == 0 {
		return errors.New("supportedResponseTypes must not be empty")
	}
	if s.ValidateAudience && s.Audience == "" {
		return errors.New("validateAudience requires audience to be set")
	}
	for i, u := range s.Users {
		if u.Username == "" {
			return fmt.Errorf("users[%d]: username is required", i)
		}
	}
	return nil
}

// Addr returns the host:port listen address.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ParseDuration parses a duration string that additionally supports a day
// suffix (e.g. "7d").
func ParseDuration(s string) (time.Duration, error) {
	if len(s) == 0 {
		return 0, errors.New("empty duration string")
	}
	if s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("invalid day format: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
