//go:build integration

package ytdl

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadYtdlp(t *testing.T) {
	mgr := NewManager(t.TempDir(), nil)

	// Download yt-dlp
	err := mgr.Download(context.Background())
	require.NoError(t, err)

	// Verify installation
	assert.True(t, mgr.IsInstalled())

	// Verify file exists and is executable
	info, err := os.Stat(mgr.GetYtdlpPath())
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(1000000), "yt-dlp should be at least 1MB")

	// Verify version is set
	assert.NotEmpty(t, mgr.GetCurrentVersion())
	t.Logf("Downloaded yt-dlp version: %s", mgr.GetCurrentVersion())
}

func TestEnsureInstalled_Live(t *testing.T) {
	mgr := NewManager(t.TempDir(), nil)

	// First call should download
	_, err := mgr.EnsureInstalled(context.Background())
	require.NoError(t, err)
	assert.True(t, mgr.IsInstalled())

	// Second call should be no-op
	_, err = mgr.EnsureInstalled(context.Background())
	require.NoError(t, err)
}
