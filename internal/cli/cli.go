// Package cli implements the videograb command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"videograb/internal/acquisition"
	"videograb/internal/config"
	"videograb/internal/extractor"
	"videograb/internal/holding"
	"videograb/internal/logging"
	"videograb/internal/ytdl"
	"videograb/pkg/models"
)

// ExtractorFactory builds the extractor for a configuration
type ExtractorFactory func(cfg *models.Config, logger *zap.Logger) (extractor.Extractor, error)

type app struct {
	version      string
	configPath   string
	logLevel     string
	newExtractor ExtractorFactory
	newYtdl      func(toolsDir string, logger *zap.Logger) *ytdl.Manager
}

// NewRootCommand builds the command tree
func NewRootCommand(version string) *cobra.Command {
	return newApp(version).rootCommand()
}

func newApp(version string) *app {
	return &app{
		version:      version,
		newExtractor: extractor.New,
		newYtdl:      ytdl.NewManager,
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "videograb",
		Short: "Inspect and download single videos over HTTP",
		Long: `videograb lists the playable encodings of a video page and downloads one
of them, either through its HTTP API or straight from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default <data dir>/config.toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		a.serveCommand(),
		a.analyzeCommand(),
		a.fetchCommand(),
		a.ytdlpCommand(),
		a.configCommand(),
		a.versionCommand(),
	)

	return root
}

// Execute runs the command tree and returns the process exit code
func Execute(version string) int {
	root := NewRootCommand(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// session is the state shared by commands that touch the pipeline
type session struct {
	cfgMgr  *config.Manager
	cfg     *models.Config
	dataDir string
	paths   config.Paths
	log     *zap.Logger
}

// load reads the configuration, applies flag bindings and builds the logger
func (a *app) load(binds map[string]*pflag.Flag) (*session, error) {
	dataDir := config.GetDataDir()

	cfgMgr, err := config.NewManager(a.resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	for key, flag := range binds {
		if err := cfgMgr.BindFlag(key, flag); err != nil {
			return nil, err
		}
	}

	cfg := cfgMgr.Get()
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	// Re-validate after flag overrides
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	return &session{
		cfgMgr:  cfgMgr,
		cfg:     cfg,
		dataDir: dataDir,
		paths:   config.ResolvePaths(cfg, dataDir),
		log:     logger,
	}, nil
}

func (a *app) resolveConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	return config.GetDefaultConfigPath()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// resolveYtdlp picks the yt-dlp binary: a managed install wins over the
// default PATH lookup, and auto-install fetches one when enabled.
func (a *app) resolveYtdlp(ctx context.Context, rt *session) string {
	if rt.cfg.ExtractorBackend != models.BackendYtDlp {
		return rt.cfg.YtdlPath
	}

	usesDefault := rt.cfg.YtdlPath == models.DefaultConfig().YtdlPath
	mgr := a.newYtdl(rt.paths.ToolsDir, rt.log)

	if mgr.IsInstalled() && usesDefault {
		return mgr.GetYtdlpPath()
	}

	if rt.cfg.YtdlAutoInstall && usesDefault {
		path, err := mgr.EnsureInstalled(ctx)
		if err != nil {
			rt.log.Warn("failed to install yt-dlp, falling back to PATH", zap.Error(err))
			return rt.cfg.YtdlPath
		}
		return path
	}

	return rt.cfg.YtdlPath
}

// orchestrator wires extractor, holding area and orchestrator
func (a *app) orchestrator(ctx context.Context, rt *session) (*acquisition.Orchestrator, error) {
	cfg := *rt.cfg
	cfg.YtdlPath = a.resolveYtdlp(ctx, rt)
	cfg.YtdlCookiesPath = rt.paths.CookiesPath

	ex, err := a.newExtractor(&cfg, rt.log)
	if err != nil {
		return nil, err
	}

	area, err := holding.NewArea(afero.NewOsFs(), rt.paths.HoldingDir, rt.log)
	if err != nil {
		return nil, err
	}

	rt.log.Debug("pipeline ready",
		zap.String("backend", cfg.ExtractorBackend),
		zap.String("ytdlp", cfg.YtdlPath),
		zap.String("holding", rt.paths.HoldingDir),
		zap.String("work", rt.paths.WorkRoot))

	return acquisition.New(ex, area, acquisition.Options{
		WorkRoot: rt.paths.WorkRoot,
		OnJobDone: func(job models.AcquisitionJob) {
			rt.log.Debug("job finished",
				zap.String("job", job.ID),
				zap.Stringer("status", job.Status),
				zap.Duration("took", job.FinishedAt.Sub(job.StartedAt)))
		},
	}, rt.log), nil
}
