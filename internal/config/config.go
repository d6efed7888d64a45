package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"videograb/pkg/models"
)

var (
	ErrInvalidAddr      = errors.New("invalid listen address: must be host:port with port between 0 and 65535")
	ErrInvalidTimeout   = errors.New("invalid timeout: must be positive")
	ErrInvalidBackend   = errors.New("invalid extractor backend")
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format: must be console or json")
)

// EnvPrefix is prepended to every environment override, e.g. VIDEOGRAB_LISTEN_ADDR
const EnvPrefix = "VIDEOGRAB"

// HomeEnv overrides the data directory
const HomeEnv = EnvPrefix + "_HOME"

// EnvKeyReplacer normalizes configuration keys into environment variable names
var EnvKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// Manager handles configuration loading, saving, and updates
type Manager struct {
	mu         sync.RWMutex
	v          *viper.Viper
	fs         afero.Fs
	configPath string
}

// NewManager creates a new configuration manager.
// If the config file doesn't exist, it creates one with default values.
func NewManager(configPath string) (*Manager, error) {
	return NewManagerWithFs(afero.NewOsFs(), configPath)
}

// NewManagerWithFs creates a manager reading and writing through fs
func NewManagerWithFs(fs afero.Fs, configPath string) (*Manager, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(configPath)
	if filepath.Ext(configPath) == "" {
		v.SetConfigType("toml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	v.SetTypeByDefaultValue(true)
	for key, value := range toMap(models.DefaultConfig()) {
		v.SetDefault(key, value)
	}

	manager := &Manager{
		v:          v,
		fs:         fs,
		configPath: configPath,
	}

	exists, err := afero.Exists(fs, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check config file: %w", err)
	}

	if exists {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		// Create config directory if it doesn't exist
		if err := fs.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		// Save default config
		if err := manager.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	// Validate config
	if err := Validate(manager.Get()); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return manager, nil
}

// Get returns a copy of the effective configuration: file values overridden
// by environment variables and bound flags.
func (m *Manager) Get() *models.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := models.DefaultConfig()
	if err := m.v.Unmarshal(cfg); err != nil {
		// Only reachable with a value of the wrong type; keep the defaults
		return models.DefaultConfig()
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Update applies a function to the configuration and saves it
func (m *Manager) Update(fn func(*models.Config)) error {
	cfg := m.Get()

	// Apply updates
	fn(cfg)

	// Validate
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, value := range toMap(cfg) {
		m.v.Set(key, value)
	}

	// Save to disk
	return m.save(cfg)
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.save(cfg)
}

// BindFlag lets a command-line flag override key
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag to bind for %q", key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.v.BindPFlag(key, flag)
}

// Path returns the configuration file path
func (m *Manager) Path() string {
	return m.configPath
}

// Encode renders cfg the way it is stored on disk
func Encode(cfg *models.Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return buf.Bytes(), nil
}

// save writes configuration to disk (must be called with lock held)
func (m *Manager) save(cfg *models.Config) error {
	data, err := Encode(cfg)
	if err != nil {
		return err
	}

	if err := afero.WriteFile(m.fs, m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// toMap lists every configuration key with its value in cfg
func toMap(cfg *models.Config) map[string]interface{} {
	return map[string]interface{}{
		"listen_addr":              cfg.ListenAddr,
		"allowed_origins":          cfg.AllowedOrigins,
		"expose_diagnostics":       cfg.ExposeDiagnostics,
		"extractor_backend":        cfg.ExtractorBackend,
		"ytdl_path":                cfg.YtdlPath,
		"ytdl_auto_install":        cfg.YtdlAutoInstall,
		"ytdl_tools_dir":           cfg.YtdlToolsDir,
		"ytdl_cookies_path":        cfg.YtdlCookiesPath,
		"ytdl_additional_args":     cfg.YtdlAdditionalArgs,
		"discover_timeout_seconds": cfg.DiscoverTimeoutSeconds,
		"fetch_timeout_seconds":    cfg.FetchTimeoutSeconds,
		"work_dir":                 cfg.WorkDir,
		"holding_dir":              cfg.HoldingDir,
		"log_level":                cfg.LogLevel,
		"log_format":               cfg.LogFormat,
	}
}

// Keys returns every configuration key, sorted
func Keys() []string {
	keys := lo.Keys(toMap(models.DefaultConfig()))
	sort.Strings(keys)
	return keys
}

// Validate checks if the configuration is valid
func Validate(cfg *models.Config) error {
	// Validate listen address
	_, port, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		return ErrInvalidAddr
	}

	// Validate timeouts
	if cfg.DiscoverTimeoutSeconds <= 0 || cfg.FetchTimeoutSeconds <= 0 {
		return ErrInvalidTimeout
	}

	// Validate backend
	switch cfg.ExtractorBackend {
	case models.BackendYtDlp, models.BackendYouTube:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, cfg.ExtractorBackend)
	}

	// Validate logging
	if _, err := zapcore.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "console", "json":
	default:
		return ErrInvalidLogFormat
	}

	return nil
}

// GetDataDir returns the application data directory
func GetDataDir() string {
	if home := os.Getenv(HomeEnv); home != "" {
		os.MkdirAll(home, 0755)
		return home
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		dataDir := filepath.Join(configDir, "videograb")
		os.MkdirAll(dataDir, 0755)
		return dataDir
	}

	// Fallback to home directory
	if home, err := os.UserHomeDir(); err == nil {
		dataDir := filepath.Join(home, ".videograb")
		os.MkdirAll(dataDir, 0755)
		return dataDir
	}

	// Last resort: current directory
	return "."
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	return filepath.Join(GetDataDir(), "config.toml")
}

// Paths holds directories derived from the configuration
type Paths struct {
	WorkRoot    string
	HoldingDir  string
	ToolsDir    string
	CookiesPath string
}

// ResolvePaths fills unset directories from dataDir
func ResolvePaths(cfg *models.Config, dataDir string) Paths {
	p := Paths{
		WorkRoot:    cfg.WorkDir,
		HoldingDir:  cfg.HoldingDir,
		ToolsDir:    cfg.YtdlToolsDir,
		CookiesPath: cfg.YtdlCookiesPath,
	}

	if p.WorkRoot == "" {
		p.WorkRoot = os.TempDir()
	}
	if p.HoldingDir == "" {
		p.HoldingDir = filepath.Join(dataDir, "holding")
	}
	if p.ToolsDir == "" {
		p.ToolsDir = filepath.Join(dataDir, "tools")
	}
	if p.CookiesPath == "" {
		p.CookiesPath = filepath.Join(dataDir, "cookies.txt")
	}

	return p
}
