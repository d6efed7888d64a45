// Package extractor wraps the external media-extraction tool behind a small
// interface so the rest of the pipeline never touches a subprocess directly.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"videograb/pkg/models"
)

var (
	ErrTimeout         = errors.New("extraction timed out")
	ErrToolFailure     = errors.New("extraction tool failed")
	ErrEmptyResult     = errors.New("extraction produced no file")
	ErrAmbiguousResult = errors.New("extraction produced more than one file")
	ErrMalformedOutput = errors.New("malformed extractor output")
	ErrUnknownBackend  = errors.New("unknown extractor backend")
)

// Default wall-clock budgets
const (
	DefaultDiscoverTimeout = 30 * time.Second
	DefaultFetchTimeout    = 300 * time.Second
)

// OutputTemplate is the file name template handed to the tool on fetch
const OutputTemplate = "%(title)s.%(ext)s"

// Extractor discovers and fetches encodings of a remote video
type Extractor interface {
	// Discover lists the encodings offered for url without downloading media.
	Discover(ctx context.Context, url string) (*RawInfo, error)
	// Fetch materializes one encoding. destTemplate is a path inside an
	// exclusively owned directory; the returned path is the produced file.
	Fetch(ctx context.Context, url, formatID, destTemplate string) (string, error)
}

// RawInfo is the structured discovery output
type RawInfo struct {
	Title     string      `json:"title"`
	Thumbnail string      `json:"thumbnail"`
	Formats   []RawFormat `json:"formats"`
}

// RawFormat is one unfiltered entry of the tool's format list
type RawFormat struct {
	FormatID       string `json:"format_id"`
	Ext            string `json:"ext"`
	VCodec         string `json:"vcodec"`
	ACodec         string `json:"acodec"`
	Resolution     string `json:"resolution"`
	FileSize       int64  `json:"filesize"`
	FileSizeApprox int64  `json:"filesize_approx"`
}

// UnmarshalJSON accepts sizes written as floats, which some extractors emit
func (f *RawFormat) UnmarshalJSON(data []byte) error {
	type plain RawFormat
	aux := struct {
		*plain
		FileSize       *float64 `json:"filesize"`
		FileSizeApprox *float64 `json:"filesize_approx"`
	}{plain: (*plain)(f)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.FileSize != nil {
		f.FileSize = int64(*aux.FileSize)
	}
	if aux.FileSizeApprox != nil {
		f.FileSizeApprox = int64(*aux.FileSizeApprox)
	}

	return nil
}

// ToolError reports a non-zero exit of the extraction tool
type ToolError struct {
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%v (exit code %d): %s", ErrToolFailure, e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Is makes errors.Is(err, ErrToolFailure) match
func (e *ToolError) Is(target error) bool {
	return target == ErrToolFailure
}

// Options configure an extractor backend
type Options struct {
	DiscoverTimeout time.Duration
	FetchTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.DiscoverTimeout <= 0 {
		o.DiscoverTimeout = DefaultDiscoverTimeout
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	return o
}

// New creates the extractor selected by the configuration
func New(cfg *models.Config, logger *zap.Logger) (Extractor, error) {
	opts := Options{
		DiscoverTimeout: time.Duration(cfg.DiscoverTimeoutSeconds) * time.Second,
		FetchTimeout:    time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
	}

	switch cfg.ExtractorBackend {
	case "", models.BackendYtDlp:
		ytdlp := NewYtDlp(cfg.YtdlPath, opts, logger)
		ytdlp.CookiesPath = cfg.YtdlCookiesPath
		ytdlp.AdditionalArgs = strings.Fields(cfg.YtdlAdditionalArgs)
		return ytdlp, nil
	case models.BackendYouTube:
		return NewYouTube(opts, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.ExtractorBackend)
	}
}

// classifyContextErr maps an expired budget to ErrTimeout while letting a
// cancelled parent context through unchanged.
func classifyContextErr(parent, ctx context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return nil
}

// partialSuffixes are leftovers the tool may write next to the real output
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// resolveResult returns the single produced file in dir
func resolveResult(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read destination directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || isPartial(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}

	switch len(files) {
	case 0:
		return "", ErrEmptyResult
	case 1:
		return filepath.Join(dir, files[0]), nil
	default:
		sort.Strings(files)
		return "", fmt.Errorf("%w: %s", ErrAmbiguousResult, strings.Join(files, ", "))
	}
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
