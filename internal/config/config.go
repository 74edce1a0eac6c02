package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort            = 8000
	DefaultHost            = "127.0.0.1"
	DefaultLogLevel        = "info"
	DefaultMaxFileSize     = 100 * 1024 * 1024 // 100MB
	DefaultWorkers         = 4
	DefaultOutputName      = "resultado.xlsx"
	DefaultAuditedName     = "termos auditados"
	DefaultHostnameDomain  = "AUTOMATOS"
	DefaultHostnameTimeout = 10 * time.Second

	// MaxWorkers bounds the batch worker pool
	MaxWorkers = 64

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "HANDOVER"
)

// HostnameConfig points at the machine registry used by the hostname rule.
// An empty URL disables the lookup.
type HostnameConfig struct {
	URL      string
	User     string
	Password string
	Domain   string
	Timeout  time.Duration
}

// Enabled reports whether a registry is configured
func (h HostnameConfig) Enabled() bool {
	return h.URL != ""
}

// Config holds all configuration for the auditor
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Folders and files
	InputDirectory   string // folder mode input and MCP default directory
	OutputFile       string // results workbook
	AuditedDirectory string // processed documents are moved here
	RulesFile        string // optional YAML policy
	HistoryFile      string // optional SQLite history, empty disables it

	Hostname HostnameConfig

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
	Workers     int
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
		InputDirectory:   currentDir,
		OutputFile:       filepath.Join(currentDir, DefaultOutputName),
		AuditedDirectory: filepath.Join(currentDir, DefaultAuditedName),
		Hostname: HostnameConfig{
			Domain:  DefaultHostnameDomain,
			Timeout: DefaultHostnameTimeout,
		},
		Version:     "1.0.0",
		ServerName:  "handover-auditor",
		LogLevel:    DefaultLogLevel,
		MaxFileSize: DefaultMaxFileSize,
		Workers:     DefaultWorkers,
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
	cfg.expandPaths()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// flagKeys lists every key shared by flags, viper and the environment
var flagKeys = []string{
	"mode", "host", "port", "dir", "output", "audited", "rules", "history",
	"loglevel", "maxfilesize", "workers",
	"hostname-url", "hostname-user", "hostname-password", "hostname-domain", "hostname-timeout",
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	// HANDOVER_HOSTNAME_URL for hostname-url
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.InputDirectory)
	viper.SetDefault("output", cfg.OutputFile)
	viper.SetDefault("audited", cfg.AuditedDirectory)
	viper.SetDefault("rules", cfg.RulesFile)
	viper.SetDefault("history", cfg.HistoryFile)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("workers", cfg.Workers)
	viper.SetDefault("hostname-url", cfg.Hostname.URL)
	viper.SetDefault("hostname-user", cfg.Hostname.User)
	viper.SetDefault("hostname-password", cfg.Hostname.Password)
	viper.SetDefault("hostname-domain", cfg.Hostname.Domain)
	viper.SetDefault("hostname-timeout", cfg.Hostname.Timeout)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Run mode: 'stdio' for MCP standard I/O, 'server' for the HTTP API")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.InputDirectory, "Directory with handover PDFs")
	pflag.String("output", cfg.OutputFile, "Results workbook (.xlsx)")
	pflag.String("audited", cfg.AuditedDirectory, "Directory processed PDFs are moved to")
	pflag.String("rules", cfg.RulesFile, "YAML rule policy (built-in rules when empty)")
	pflag.String("history", cfg.HistoryFile, "SQLite run history file (disabled when empty)")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.Int("workers", cfg.Workers, "Documents processed in parallel")
	pflag.String("hostname-url", cfg.Hostname.URL, "Machine registry base URL (hostname rule passes when empty)")
	pflag.String("hostname-user", cfg.Hostname.User, "Machine registry user")
	pflag.String("hostname-password", cfg.Hostname.Password, "Machine registry password")
	pflag.String("hostname-domain", cfg.Hostname.Domain, "Machine registry domain")
	pflag.Duration("hostname-timeout", cfg.Hostname.Timeout, "Timeout of one hostname lookup")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, key := range flagKeys {
		_ = viper.BindPFlag(key, pflag.Lookup(key))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nHandover Auditor - audits equipment handover PDFs into a spreadsheet\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                          "+
			"# MCP stdio mode, current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --dir=/srv/termos          # HTTP API\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --rules=rules.yaml --history=audit.db\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		for _, key := range flagKeys {
			fmt.Fprintf(os.Stderr, "  %s_%s\n", envPrefix, strings.ToUpper(strings.ReplaceAll(key, "-", "_")))
		}
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
	cfg.InputDirectory = viper.GetString("dir")
	cfg.OutputFile = viper.GetString("output")
	cfg.AuditedDirectory = viper.GetString("audited")
	cfg.RulesFile = viper.GetString("rules")
	cfg.HistoryFile = viper.GetString("history")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.Workers = viper.GetInt("workers")
	cfg.Hostname = HostnameConfig{
		URL:      viper.GetString("hostname-url"),
		User:     viper.GetString("hostname-user"),
		Password: viper.GetString("hostname-password"),
		Domain:   viper.GetString("hostname-domain"),
		Timeout:  viper.GetDuration("hostname-timeout"),
	}
}

// expandPaths makes every configured path absolute
func (c *Config) expandPaths() {
	for _, p := range []*string{&c.InputDirectory, &c.OutputFile, &c.AuditedDirectory, &c.RulesFile, &c.HistoryFile} {
		if *p == "" {
			continue
		}
		if abs, err := filepath.Abs(*p); err == nil {
			*p = abs
		}
	}
}

// Validate checks if the configuration is valid. Missing input and archive
// directories are created.
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.InputDirectory == "" {
		return errors.New("input directory cannot be empty")
	}
	if c.AuditedDirectory == "" {
		return errors.New("audited directory cannot be empty")
	}
	for _, dir := range []string{c.InputDirectory, c.AuditedDirectory} {
		if err := ensureDir(dir); err != nil {
			return err
		}
	}

	if c.OutputFile == "" {
		return errors.New("output file cannot be empty")
	}
	if !strings.EqualFold(filepath.Ext(c.OutputFile), ".xlsx") {
		return fmt.Errorf("output file must be an .xlsx workbook: %s", c.OutputFile)
	}

	if c.RulesFile != "" {
		if _, err := os.Stat(c.RulesFile); err != nil {
			return fmt.Errorf("cannot access rules file %s: %w", c.RulesFile, err)
		}
	}

	// Validate max file size
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d", MaxWorkers)
	}

	if c.Hostname.Enabled() {
		if c.Hostname.User == "" || c.Hostname.Password == "" {
			return errors.New("hostname-user and hostname-password are required with hostname-url")
		}
		if c.Hostname.Timeout <= 0 {
			return errors.New("hostname-timeout must be positive")
		}
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

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
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

// String returns a string representation of the configuration. The
// registry password is never printed.
func (c *Config) String() string {
	registry := "disabled"
	if c.Hostname.Enabled() {
		registry = fmt.Sprintf("%s (user %s, domain %s)", c.Hostname.URL, c.Hostname.User, c.Hostname.Domain)
	}
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, Dir: %s, Output: %s, Audited: %s, "+
		"Rules: %s, History: %s, Registry: %s, LogLevel: %s, MaxFileSize: %d, Workers: %d}",
		c.Mode, c.Host, c.Port, c.InputDirectory, c.OutputFile, c.AuditedDirectory,
		c.RulesFile, c.HistoryFile, registry, c.LogLevel, c.MaxFileSize, c.Workers)
}

// IsServerMode returns true if the auditor runs the HTTP API
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the auditor runs as an MCP stdio server
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
