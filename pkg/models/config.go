package models

// Config represents the application configuration
type Config struct {
	ListenAddr             string   `mapstructure:"listen_addr" toml:"listen_addr" json:"listenAddr"`
	AllowedOrigins         []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowedOrigins"`
	ExposeDiagnostics      bool     `mapstructure:"expose_diagnostics" toml:"expose_diagnostics" json:"exposeDiagnostics"`
	ExtractorBackend       string   `mapstructure:"extractor_backend" toml:"extractor_backend" json:"extractorBackend"`
	YtdlPath               string   `mapstructure:"ytdl_path" toml:"ytdl_path" json:"ytdlPath"`
	YtdlAutoInstall        bool     `mapstructure:"ytdl_auto_install" toml:"ytdl_auto_install" json:"ytdlAutoInstall"`
	YtdlToolsDir           string   `mapstructure:"ytdl_tools_dir" toml:"ytdl_tools_dir" json:"ytdlToolsDir"`
	YtdlCookiesPath        string   `mapstructure:"ytdl_cookies_path" toml:"ytdl_cookies_path" json:"ytdlCookiesPath"`
	YtdlAdditionalArgs     string   `mapstructure:"ytdl_additional_args" toml:"ytdl_additional_args" json:"ytdlAdditionalArgs"`
	DiscoverTimeoutSeconds int      `mapstructure:"discover_timeout_seconds" toml:"discover_timeout_seconds" json:"discoverTimeoutSeconds"`
	FetchTimeoutSeconds    int      `mapstructure:"fetch_timeout_seconds" toml:"fetch_timeout_seconds" json:"fetchTimeoutSeconds"`
	WorkDir                string   `mapstructure:"work_dir" toml:"work_dir" json:"workDir"`
	HoldingDir             string   `mapstructure:"holding_dir" toml:"holding_dir" json:"holdingDir"`
	LogLevel               string   `mapstructure:"log_level" toml:"log_level" json:"logLevel"`
	LogFormat              string   `mapstructure:"log_format" toml:"log_format" json:"logFormat"`
}

// Extractor backends
const (
	BackendYtDlp   = "ytdlp"
	BackendYouTube = "youtube"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:             "127.0.0.1:8000",
		AllowedOrigins:         []string{"*"},
		ExposeDiagnostics:      false,
		ExtractorBackend:       BackendYtDlp,
		YtdlPath:               "yt-dlp",
		YtdlAutoInstall:        false,
		YtdlToolsDir:           "",
		YtdlCookiesPath:        "",
		YtdlAdditionalArgs:     "",
		DiscoverTimeoutSeconds: 30,
		FetchTimeoutSeconds:    300,
		WorkDir:                "",
		HoldingDir:             "",
		LogLevel:               "info",
		LogFormat:              "console",
	}
}
