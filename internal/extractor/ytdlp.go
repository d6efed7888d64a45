package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// waitDelay bounds how long a killed tool may hold its output pipes
const waitDelay = 2 * time.Second

// YtDlp runs the yt-dlp command line tool
type YtDlp struct {
	Path           string
	CookiesPath    string
	AdditionalArgs []string

	opts Options
	log  *zap.Logger
}

// NewYtDlp creates a yt-dlp backed extractor
func NewYtDlp(path string, opts Options, logger *zap.Logger) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &YtDlp{
		Path: path,
		opts: opts.withDefaults(),
		log:  logger.Named("ytdlp"),
	}
}

// Discover runs yt-dlp in metadata mode and parses its JSON document
func (y *YtDlp) Discover(ctx context.Context, url string) (*RawInfo, error) {
	args := []string{
		"--dump-single-json",
		"--no-playlist",
		"--no-warnings",
	}
	args = append(args, y.commonArgs()...)
	// The URL is never read as an option
	args = append(args, "--", url)

	stdout, err := y.run(ctx, y.opts.DiscoverTimeout, args)
	if err != nil {
		return nil, err
	}

	var info RawInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	return &info, nil
}

// Fetch downloads formatID into the directory of destTemplate
func (y *YtDlp) Fetch(ctx context.Context, url, formatID, destTemplate string) (string, error) {
	args := []string{
		"-f", formatID,
		"--no-playlist",
		"--no-warnings",
		"-o", destTemplate,
	}
	args = append(args, y.commonArgs()...)
	args = append(args, "--", url)

	if _, err := y.run(ctx, y.opts.FetchTimeout, args); err != nil {
		return "", err
	}

	return resolveResult(filepath.Dir(destTemplate))
}

// commonArgs returns the flags shared by both modes
func (y *YtDlp) commonArgs() []string {
	var args []string

	if y.CookiesPath != "" {
		if _, err := os.Stat(y.CookiesPath); err == nil {
			args = append(args, "--cookies", y.CookiesPath)
		} else {
			y.log.Warn("cookies file not found, ignoring", zap.String("path", y.CookiesPath))
		}
	}

	return append(args, y.AdditionalArgs...)
}

// run executes the tool with a wall-clock budget and returns its stdout
func (y *YtDlp) run(parent context.Context, timeout time.Duration, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, y.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of the tool (ffmpeg) may keep the pipes open after a kill.
	cmd.WaitDelay = waitDelay

	started := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(started)

	err := runResult(parent, ctx, runErr, stderr.String())

	var toolErr *ToolError
	switch {
	case err == nil:
		y.log.Debug("yt-dlp finished", zap.Duration("elapsed", elapsed), zap.Int("stdout_bytes", stdout.Len()))
		return stdout.Bytes(), nil
	case errors.As(err, &toolErr):
		y.log.Debug("yt-dlp exited with failure",
			zap.Int("exit_code", toolErr.ExitCode),
			zap.Duration("elapsed", elapsed))
		return nil, err
	case errors.Is(err, ErrTimeout), errors.Is(err, context.Canceled):
		y.log.Warn("yt-dlp interrupted",
			zap.Duration("elapsed", elapsed),
			zap.Duration("budget", timeout),
			zap.Error(err))
		return nil, err
	default:
		return nil, fmt.Errorf("failed to run %s: %w", y.Path, err)
	}
}

// runResult classifies the outcome of one run. A run that exited cleanly
// wins over a deadline that expired right after it.
func runResult(parent, ctx context.Context, runErr error, stderr string) error {
	if runErr == nil {
		return nil
	}

	if ctxErr := classifyContextErr(parent, ctx); ctxErr != nil {
		return ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &ToolError{ExitCode: exitErr.ExitCode(), Stderr: stderr}
	}
	return runErr
}
