// Package ytdl installs and updates a managed yt-dlp binary from the
// project's GitHub releases.
package ytdl

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	ytdlpReleasesAPI = "https://api.github.com/repos/yt-dlp/yt-dlp/releases/latest"
	checksumsAsset   = "SHA2-256SUMS"
	versionFile      = "yt-dlp.version"
)

var (
	ErrNoAsset          = errors.New("no asset found for platform")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// HTTPClient is the subset of *http.Client the manager needs
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Manager handles yt-dlp installation and updates
type Manager struct {
	mu       sync.Mutex
	toolsDir string
	client   HTTPClient
	log      *zap.Logger
}

// GitHubRelease represents a GitHub release
type GitHubRelease struct {
	TagName string         `json:"tag_name"`
	Assets  []ReleaseAsset `json:"assets"`
}

// ReleaseAsset is one downloadable file of a release
type ReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

func (r *GitHubRelease) asset(name string) (ReleaseAsset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return ReleaseAsset{}, false
}

// NewManager creates a new yt-dlp manager
func NewManager(toolsDir string, logger *zap.Logger) *Manager {
	return NewManagerWithClient(toolsDir, http.DefaultClient, logger)
}

// NewManagerWithClient creates a manager using client for all requests
func NewManagerWithClient(toolsDir string, client HTTPClient, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Ensure tools directory exists
	os.MkdirAll(toolsDir, 0755)

	return &Manager{
		toolsDir: toolsDir,
		client:   client,
		log:      logger.Named("ytdl"),
	}
}

// GetYtdlpPath returns the path to the managed yt-dlp executable
func (m *Manager) GetYtdlpPath() string {
	return filepath.Join(m.toolsDir, detectPlatform())
}

// IsInstalled checks if yt-dlp is installed
func (m *Manager) IsInstalled() bool {
	info, err := os.Stat(m.GetYtdlpPath())
	return err == nil && !info.IsDir() && info.Size() > 0
}

// GetCurrentVersion returns the installed release tag, empty if unknown
func (m *Manager) GetCurrentVersion() string {
	data, err := os.ReadFile(filepath.Join(m.toolsDir, versionFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// CheckForUpdate returns the latest release tag and whether it differs from
// the installed one
func (m *Manager) CheckForUpdate(ctx context.Context) (string, bool, error) {
	release, err := m.latestRelease(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to check for updates: %w", err)
	}

	// If not installed, any version is an update
	if !m.IsInstalled() {
		return release.TagName, true, nil
	}

	current := m.GetCurrentVersion()
	return release.TagName, current == "" || current != release.TagName, nil
}

// Download installs the latest release, replacing any existing binary
func (m *Manager) Download(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	release, err := m.latestRelease(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch release info: %w", err)
	}

	// Find the correct asset for this platform
	platform := detectPlatform()
	asset, ok := release.asset(platform)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAsset, platform)
	}

	var wantSum string
	if sums, ok := release.asset(checksumsAsset); ok {
		wantSum, err = m.fetchChecksum(ctx, sums.BrowserDownloadURL, platform)
		if err != nil {
			return err
		}
	}

	m.log.Info("downloading yt-dlp",
		zap.String("version", release.TagName),
		zap.String("asset", asset.Name),
		zap.String("size", humanize.Bytes(uint64(asset.Size))))

	ytdlpPath := m.GetYtdlpPath()
	tmpPath := ytdlpPath + ".tmp"

	if err := m.downloadTo(ctx, asset.BrowserDownloadURL, tmpPath, wantSum); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Make executable
	if err := os.Chmod(tmpPath, 0755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to make executable: %w", err)
	}

	if err := os.Rename(tmpPath, ytdlpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	// Update version
	if err := os.WriteFile(filepath.Join(m.toolsDir, versionFile), []byte(release.TagName+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to record version: %w", err)
	}

	m.log.Info("yt-dlp installed", zap.String("version", release.TagName), zap.String("path", ytdlpPath))

	return nil
}

// EnsureInstalled downloads yt-dlp if it is missing and returns its path
func (m *Manager) EnsureInstalled(ctx context.Context) (string, error) {
	if m.IsInstalled() {
		return m.GetYtdlpPath(), nil
	}

	m.log.Info("yt-dlp not found, downloading")
	if err := m.Download(ctx); err != nil {
		return "", err
	}

	return m.GetYtdlpPath(), nil
}

// AutoUpdate checks for and applies updates if available. It reports whether
// a new version was installed.
func (m *Manager) AutoUpdate(ctx context.Context) (bool, error) {
	latestVersion, hasUpdate, err := m.CheckForUpdate(ctx)
	if err != nil {
		return false, err
	}

	if !hasUpdate {
		m.log.Info("yt-dlp is up to date", zap.String("version", latestVersion))
		return false, nil
	}

	m.log.Info("updating yt-dlp", zap.String("from", m.GetCurrentVersion()), zap.String("to", latestVersion))
	if err := m.Download(ctx); err != nil {
		return false, err
	}

	return true, nil
}

func (m *Manager) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "videograb")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}

	return resp, nil
}

func (m *Manager) latestRelease(ctx context.Context) (*GitHubRelease, error) {
	resp, err := m.get(ctx, ytdlpReleasesAPI)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release info: %w", err)
	}

	return &release, nil
}

// fetchChecksum returns the sha256 listed for name in a SHA2-256SUMS file
func (m *Manager) fetchChecksum(ctx context.Context, url, name string) (string, error) {
	resp, err := m.get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to download checksums: %w", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && strings.TrimPrefix(fields[1], "*") == name {
			return strings.ToLower(fields[0]), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read checksums: %w", err)
	}

	return "", fmt.Errorf("no checksum listed for %s", name)
}

func (m *Manager) downloadTo(ctx context.Context, url, path, wantSum string) error {
	resp, err := m.get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to download yt-dlp: %w", err)
	}
	defer resp.Body.Close()

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	hash := sha256.New()
	_, err = io.Copy(io.MultiWriter(out, hash), resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if wantSum != "" {
		if got := hex.EncodeToString(hash.Sum(nil)); got != wantSum {
			return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, wantSum, got)
		}
	}

	return nil
}

// detectPlatform returns the appropriate yt-dlp binary name for the current platform
func detectPlatform() string {
	return platformAsset(runtime.GOOS, runtime.GOARCH)
}

func platformAsset(goos, goarch string) string {
	switch goos {
	case "windows":
		if goarch == "arm64" {
			return "yt-dlp_arm64.exe"
		}
		return "yt-dlp.exe"
	case "linux":
		if goarch == "arm64" {
			return "yt-dlp_linux_aarch64"
		}
		return "yt-dlp_linux"
	case "darwin":
		return "yt-dlp_macos"
	default:
		return "yt-dlp"
	}
}
