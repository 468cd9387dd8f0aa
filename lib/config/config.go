// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the options file's basename inside the home directory.
const FileName = "scdaemon.yaml"

// DefaultPCSCDriver is the PC/SC library name reported to gpgconf.
const DefaultPCSCDriver = "libpcsclite.so"

// Config holds every option the options file can set.
type Config struct {
	Verbose    bool   `yaml:"verbose"`
	Quiet      bool   `yaml:"quiet"`
	DebugLevel string `yaml:"debug_level"`

	// LogFile switches logging to JSON lines appended to this file.
	LogFile string `yaml:"log_file"`

	// Reader and driver selection. Recorded and reported; card access
	// itself lives outside the daemon core.
	ReaderPort           string   `yaml:"reader_port"`
	CTAPIDriver          string   `yaml:"ctapi_driver"`
	PCSCDriver           string   `yaml:"pcsc_driver"`
	DisableCCID          bool     `yaml:"disable_ccid"`
	DisableKeypad        bool     `yaml:"disable_keypad"`
	AllowAdmin           bool     `yaml:"allow_admin"`
	DisabledApplications []string `yaml:"disabled_applications"`

	// DebugDisableTicker keeps the tick but skips reader status
	// updates.
	DebugDisableTicker bool `yaml:"debug_disable_ticker"`

	// StandardSocket listens on <homedir>/S.scdaemon instead of a
	// private directory.
	StandardSocket bool `yaml:"standard_socket"`

	// ControlSocket, when set, serves the control protocol there.
	ControlSocket string `yaml:"control_socket"`

	// ForceShutdownThreshold is the number of terminate requests
	// that force an exit with sessions still live.
	ForceShutdownThreshold int `yaml:"force_shutdown_threshold"`

	// TickInterval overrides the housekeeping tick period.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		DebugLevel:             "none",
		PCSCDriver:             DefaultPCSCDriver,
		ForceShutdownThreshold: 3,
	}
}

// HomeDir resolves the daemon's home directory.
func HomeDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if value := os.Getenv("GNUPGHOME"); value != "" {
		return value
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".gnupg"
	}
	return filepath.Join(userHome, ".gnupg")
}

// Load reads the default options file in homeDir. A missing file
// yields the defaults; found reports whether a file was read.
func Load(homeDir string) (cfg *Config, found bool, err error) {
	cfg, err = LoadFile(filepath.Join(homeDir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// LoadFile reads the options file at path over the defaults. A
// missing file is an error wrapping os.ErrNotExist.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseDebugLevel(c.DebugLevel); err != nil {
		errs = append(errs, err)
	}
	if c.ForceShutdownThreshold < 1 {
		errs = append(errs, fmt.Errorf("force_shutdown_threshold must be at least 1, got %d", c.ForceShutdownThreshold))
	}
	if c.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("tick_interval must not be negative, got %s", c.TickInterval))
	}

	return errors.Join(errs...)
}

// PCSCSocket returns the PC/SC daemon socket named by pcsc_driver, or
// "" when pcsc_driver names a library and the default socket applies.
func (c *Config) PCSCSocket() string {
	if !filepath.IsAbs(c.PCSCDriver) || strings.Contains(filepath.Base(c.PCSCDriver), ".so") {
		return ""
	}
	return c.PCSCDriver
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":      os.Getenv("HOME"),
		"GNUPGHOME": os.Getenv("GNUPGHOME"),
	}
	c.LogFile = expandVars(c.LogFile, vars)
	c.ControlSocket = expandVars(c.ControlSocket, vars)
	c.PCSCDriver = expandVars(c.PCSCDriver, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
