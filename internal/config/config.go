package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB
	DefaultDatabase    = "lab-intake.db"

	// Default QC acceptance thresholds
	DefaultMinConcentration = 10.0 // ng/uL
	DefaultMinVolumeUL      = 20.0
	DefaultMinQualityRatio  = 1.8 // A260/A280

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the lab intake server
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Intake configuration
	DatabasePath    string
	IntakeDirectory string
	MaxFileSize     int64 // Maximum PDF file size in bytes

	// QC thresholds
	MinConcentration float64
	MinVolumeUL      float64
	MinQualityRatio  float64

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		// Fallback to current directory if working directory cannot be determined
		currentDir = "."
	}

	return &Config{
		Mode:             ModeStdio, // Default to stdio mode for MCP compatibility
		Host:             DefaultHost,
		Port:             DefaultPort,
		DatabasePath:     DefaultDatabase,
		IntakeDirectory:  currentDir,
		MaxFileSize:      DefaultMaxFileSize,
		MinConcentration: DefaultMinConcentration,
		MinVolumeUL:      DefaultMinVolumeUL,
		MinQualityRatio:  DefaultMinQualityRatio,
		Version:          "1.0.0",
		ServerName:       "lab-intake",
		LogLevel:         DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	// Expand paths if needed
	if cfg.IntakeDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.IntakeDirectory); err == nil {
			cfg.IntakeDirectory = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	// Set environment variable prefix
	viper.SetEnvPrefix("LAB_INTAKE")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("db", cfg.DatabasePath)
	viper.SetDefault("dir", cfg.IntakeDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("minconcentration", cfg.MinConcentration)
	viper.SetDefault("minvolume", cfg.MinVolumeUL)
	viper.SetDefault("minratio", cfg.MinQualityRatio)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("db", cfg.DatabasePath, "Path to the SQLite database")
	pflag.String("dir", cfg.IntakeDirectory, "Directory containing submission PDFs")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.Float64("minconcentration", cfg.MinConcentration, "QC minimum concentration in ng/uL")
	pflag.Float64("minvolume", cfg.MinVolumeUL, "QC minimum volume in uL")
	pflag.Float64("minratio", cfg.MinQualityRatio, "QC minimum A260/A280 ratio")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	_ = viper.BindPFlag("mode", pflag.Lookup("mode"))
	_ = viper.BindPFlag("host", pflag.Lookup("host"))
	_ = viper.BindPFlag("port", pflag.Lookup("port"))
	_ = viper.BindPFlag("db", pflag.Lookup("db"))
	_ = viper.BindPFlag("dir", pflag.Lookup("dir"))
	_ = viper.BindPFlag("loglevel", pflag.Lookup("loglevel"))
	_ = viper.BindPFlag("maxfilesize", pflag.Lookup("maxfilesize"))
	_ = viper.BindPFlag("minconcentration", pflag.Lookup("minconcentration"))
	_ = viper.BindPFlag("minvolume", pflag.Lookup("minvolume"))
	_ = viper.BindPFlag("minratio", pflag.Lookup("minratio"))
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nLab Intake - a Model Context Protocol server for laboratory submission PDFs\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                         "+
			"# stdio mode, database in current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --db=/var/lib/lab-intake/intake.db      "+
			"# stdio mode with custom database\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/srv/submissions                  # custom submission directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --minconcentration=5 --minvolume=10     # relaxed QC thresholds\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  LAB_INTAKE_MODE             Server mode\n")
		fmt.Fprintf(os.Stderr, "  LAB_INTAKE_HOST             Server host\n")
		fmt.Fprintf(os.Stderr, "  LAB_INTAKE_PORT             Server port\n")
		fmt.Fprintf(os.Stderr, "  LAB_INTAKE_DB               SQLite database path\n")
		fmt.Fprintf(os.Stderr, "  LAB_INTAKE_DIR              Submission PDF directory\n")
		fmt.Fprintf(os.Stderr, "  LAB_INTAKE_LOGLEVEL         Log level\n")
		fmt.Fprintf(os.Stderr, "  LAB_INTAKE_MAXFILESIZE      Maximum file size\n")
		fmt.Fprintf(os.Stderr, "  LAB_INTAKE_MINCONCENTRATION QC minimum concentration\n")
		fmt.Fprintf(os.Stderr, "  LAB_INTAKE_MINVOLUME        QC minimum volume\n")
		fmt.Fprintf(os.Stderr, "  LAB_INTAKE_MINRATIO         QC minimum A260/A280 ratio\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.DatabasePath = viper.GetString("db")
	cfg.IntakeDirectory = viper.GetString("dir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.MinConcentration = viper.GetFloat64("minconcentration")
	cfg.MinVolumeUL = viper.GetFloat64("minvolume")
	cfg.MinQualityRatio = viper.GetFloat64("minratio")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	// Validate database path
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}

	// Validate intake directory
	if c.IntakeDirectory == "" {
		return errors.New("intake directory cannot be empty")
	}

	// Check if intake directory exists, create if it doesn't
	if _, err := os.Stat(c.IntakeDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.IntakeDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create intake directory %s: %w", c.IntakeDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access intake directory %s: %w", c.IntakeDirectory, err)
	}

	// Validate max file size
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	// Validate thresholds
	if c.MinConcentration < 0 {
		return errors.New("minimum concentration cannot be negative")
	}
	if c.MinVolumeUL < 0 {
		return errors.New("minimum volume cannot be negative")
	}
	if c.MinQualityRatio < 0 {
		return errors.New("minimum quality ratio cannot be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, DatabasePath: %s, IntakeDirectory: %s, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Host, c.Port, c.DatabasePath, c.IntakeDirectory, c.LogLevel, c.MaxFileSize)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
