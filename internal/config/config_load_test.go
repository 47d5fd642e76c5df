package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Helper function to reset pflag.CommandLine for testing
func resetFlags() {
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	viper.Reset()
}

// Helper function to clear environment variables
func clearEnvVars() {
	for _, key := range []string{
		"LAB_INTAKE_MODE", "LAB_INTAKE_HOST", "LAB_INTAKE_PORT",
		"LAB_INTAKE_DB", "LAB_INTAKE_DIR", "LAB_INTAKE_LOGLEVEL",
		"LAB_INTAKE_MAXFILESIZE", "LAB_INTAKE_MINCONCENTRATION",
		"LAB_INTAKE_MINVOLUME", "LAB_INTAKE_MINRATIO",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadFromFlags_DefaultConfig(t *testing.T) {
	originalArgs := os.Args
	defer func() {
		os.Args = originalArgs
		resetFlags()
		clearEnvVars()
	}()

	os.Args = []string{"lab-intake"}
	resetFlags()
	clearEnvVars()

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "stdio" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, "stdio")
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("LoadFromFlags() Host = %v, want %v", cfg.Host, "127.0.0.1")
	}
	if cfg.Port != 8080 {
		t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, 8080)
	}
	if cfg.DatabasePath != DefaultDatabase {
		t.Errorf("LoadFromFlags() DatabasePath = %v, want %v", cfg.DatabasePath, DefaultDatabase)
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("LoadFromFlags() MaxFileSize = %v, want %v", cfg.MaxFileSize, 100*1024*1024)
	}
	if cfg.IntakeDirectory == "" {
		t.Error("LoadFromFlags() IntakeDirectory should not be empty")
	}
}

func TestLoadFromFlags_ValidFlags(t *testing.T) {
	tests := []struct {
		name                 string
		argsTemplate         []string
		wantMode             string
		wantHost             string
		wantPort             int
		wantDatabasePath     string
		wantMinConcentration float64
	}{
		{
			name:                 "stdio mode with custom database",
			argsTemplate:         []string{"lab-intake", "--db=/tmp/custom.db", "--dir=%s"},
			wantMode:             "stdio",
			wantHost:             "127.0.0.1",
			wantPort:             8080,
			wantDatabasePath:     "/tmp/custom.db",
			wantMinConcentration: DefaultMinConcentration,
		},
		{
			name:                 "server mode",
			argsTemplate:         []string{"lab-intake", "--mode=server", "--dir=%s"},
			wantMode:             "server",
			wantHost:             "127.0.0.1",
			wantPort:             8080,
			wantDatabasePath:     DefaultDatabase,
			wantMinConcentration: DefaultMinConcentration,
		},
		{
			name:                 "server mode with custom host and port",
			argsTemplate:         []string{"lab-intake", "--mode=server", "--host=0.0.0.0", "--port=9090", "--dir=%s"},
			wantMode:             "server",
			wantHost:             "0.0.0.0",
			wantPort:             9090,
			wantDatabasePath:     DefaultDatabase,
			wantMinConcentration: DefaultMinConcentration,
		},
		{
			name:                 "relaxed QC thresholds",
			argsTemplate:         []string{"lab-intake", "--minconcentration=5", "--dir=%s"},
			wantMode:             "stdio",
			wantHost:             "127.0.0.1",
			wantPort:             8080,
			wantDatabasePath:     DefaultDatabase,
			wantMinConcentration: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			originalArgs := os.Args
			defer func() {
				os.Args = originalArgs
				resetFlags()
				clearEnvVars()
			}()

			tempDir := t.TempDir()
			args := make([]string, len(tt.argsTemplate))
			for i, arg := range tt.argsTemplate {
				if arg == "--dir=%s" {
					args[i] = "--dir=" + tempDir
				} else {
					args[i] = arg
				}
			}

			os.Args = args
			resetFlags()
			clearEnvVars()

			cfg, err := LoadFromFlags()
			if err != nil {
				t.Fatalf("LoadFromFlags() unexpected error: %v", err)
			}

			if cfg.Mode != tt.wantMode {
				t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, tt.wantMode)
			}
			if cfg.Host != tt.wantHost {
				t.Errorf("LoadFromFlags() Host = %v, want %v", cfg.Host, tt.wantHost)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, tt.wantPort)
			}
			if cfg.DatabasePath != tt.wantDatabasePath {
				t.Errorf("LoadFromFlags() DatabasePath = %v, want %v", cfg.DatabasePath, tt.wantDatabasePath)
			}
			if cfg.MinConcentration != tt.wantMinConcentration {
				t.Errorf("LoadFromFlags() MinConcentration = %v, want %v", cfg.MinConcentration, tt.wantMinConcentration)
			}
			if !strings.HasPrefix(cfg.IntakeDirectory, "/") {
				t.Errorf("LoadFromFlags() IntakeDirectory = %v, want absolute path", cfg.IntakeDirectory)
			}
		})
	}
}

func TestLoadFromFlags_EnvironmentVariables(t *testing.T) {
	originalArgs := os.Args
	defer func() {
		os.Args = originalArgs
		resetFlags()
		clearEnvVars()
	}()

	tempDir := t.TempDir()

	os.Setenv("LAB_INTAKE_MODE", "server")
	os.Setenv("LAB_INTAKE_HOST", "192.168.1.1")
	os.Setenv("LAB_INTAKE_PORT", "3000")
	os.Setenv("LAB_INTAKE_DIR", tempDir)
	os.Setenv("LAB_INTAKE_DB", "/tmp/env.db")

	os.Args = []string{"lab-intake"}
	resetFlags()

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "server" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, "server")
	}
	if cfg.Host != "192.168.1.1" {
		t.Errorf("LoadFromFlags() Host = %v, want %v", cfg.Host, "192.168.1.1")
	}
	if cfg.Port != 3000 {
		t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, 3000)
	}
	if cfg.DatabasePath != "/tmp/env.db" {
		t.Errorf("LoadFromFlags() DatabasePath = %v, want %v", cfg.DatabasePath, "/tmp/env.db")
	}
}

func TestLoadFromFlags_FlagOverridesEnvironment(t *testing.T) {
	originalArgs := os.Args
	defer func() {
		os.Args = originalArgs
		resetFlags()
		clearEnvVars()
	}()

	os.Setenv("LAB_INTAKE_MODE", "server")
	os.Setenv("LAB_INTAKE_PORT", "3000")

	os.Args = []string{"lab-intake", "--mode=stdio", "--port=8888"}
	resetFlags()

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	// Flags should override environment variables
	if cfg.Mode != "stdio" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v (should override env)", cfg.Mode, "stdio")
	}
	if cfg.Port != 8888 {
		t.Errorf("LoadFromFlags() Port = %v, want %v (should override env)", cfg.Port, 8888)
	}
}

func TestLoadFromFlags_InvalidMode(t *testing.T) {
	originalArgs := os.Args
	defer func() {
		os.Args = originalArgs
		resetFlags()
		clearEnvVars()
	}()

	tempDir := t.TempDir()
	os.Args = []string{"lab-intake", "--mode=invalid", "--dir=" + tempDir}
	resetFlags()
	clearEnvVars()

	_, err := LoadFromFlags()
	if err == nil {
		t.Fatal("LoadFromFlags() expected error for invalid mode")
	}
	if !strings.Contains(err.Error(), "mode must be either 'stdio' or 'server'") {
		t.Errorf("LoadFromFlags() error = %v, want error about invalid mode", err)
	}
}

func TestLoadFromFlags_VersionFlag(t *testing.T) {
	originalArgs := os.Args
	defer func() {
		os.Args = originalArgs
		resetFlags()
		clearEnvVars()
	}()

	os.Args = []string{"lab-intake", "--version"}
	resetFlags()
	clearEnvVars()

	_, err := LoadFromFlags()
	if err == nil {
		t.Fatal("LoadFromFlags() expected version error")
	}
	if err.Error() != "version requested" {
		t.Errorf("LoadFromFlags() error = %v, want 'version requested'", err)
	}
}
