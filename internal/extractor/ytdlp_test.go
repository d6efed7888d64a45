package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeTool writes an executable shell script standing in for yt-dlp
func writeFakeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a unix shell")
	}

	path := filepath.Join(t.TempDir(), "yt-dlp")
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755)
	require.NoError(t, err)
	return path
}

const discoverJSON = `{"title":"Test Video","thumbnail":"https://example.com/thumb.jpg","formats":[` +
	`{"format_id":"18","ext":"mp4","vcodec":"avc1.42001E","acodec":"mp4a.40.2","resolution":"640x360","filesize":1000},` +
	`{"format_id":"137","ext":"mp4","vcodec":"avc1.640028","acodec":"none","resolution":"1920x1080"}]}`

func TestYtDlpDiscover(t *testing.T) {
	tool := writeFakeTool(t, "echo '"+discoverJSON+"'\n")
	y := NewYtDlp(tool, Options{}, nil)

	info, err := y.Discover(context.Background(), "https://www.youtube.com/watch?v=TEST")
	require.NoError(t, err)

	assert.Equal(t, "Test Video", info.Title)
	assert.Equal(t, "https://example.com/thumb.jpg", info.Thumbnail)
	require.Len(t, info.Formats, 2)
	assert.Equal(t, "18", info.Formats[0].FormatID)
	assert.Equal(t, int64(1000), info.Formats[0].FileSize)
	assert.Equal(t, "none", info.Formats[1].ACodec)
}

func TestYtDlpDiscoverArguments(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	tool := writeFakeTool(t, `echo "$@" > `+argsFile+"\necho '{}'\n")

	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File"), 0644))

	y := NewYtDlp(tool, Options{}, nil)
	y.CookiesPath = cookies
	y.AdditionalArgs = []string{"--proxy", "http://proxy:8080"}

	_, err := y.Discover(context.Background(), "https://example.com/v")
	require.NoError(t, err)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.TrimSpace(string(data))

	assert.Contains(t, args, "--dump-single-json")
	assert.Contains(t, args, "--no-playlist")
	assert.Contains(t, args, "--cookies "+cookies)
	assert.Contains(t, args, "--proxy http://proxy:8080")
	assert.True(t, strings.HasSuffix(args, " -- https://example.com/v"), "URL must follow the end-of-options marker")
}

// optionParser is a fake that splits its argv the way getopt does and records
// what it took as options and as the positional URL.
const optionParser = `
while [ $# -gt 0 ]; do
  case "$1" in
    --) shift; break ;;
    -f|-o|--cookies) echo "OPTION $1 $2" >> "$LOG"; shift ;;
    -*) echo "OPTION $1" >> "$LOG" ;;
    *) break ;;
  esac
  shift
done
for arg in "$@"; do echo "URL $arg" >> "$LOG"; done
echo '{}'
`

func TestYtDlpURLNeverParsedAsOption(t *testing.T) {
	log := filepath.Join(t.TempDir(), "argv.log")
	tool := writeFakeTool(t, "LOG='"+log+"'\n"+optionParser)
	y := NewYtDlp(tool, Options{}, nil)

	urls := []string{
		"--config-locations=/srv/videograb/cookies.txt",
		"--exec=touch /tmp/owned",
	}

	for _, url := range urls {
		require.NoError(t, os.RemoveAll(log))

		_, err := y.Discover(context.Background(), url)
		require.NoError(t, err)
		_, _ = y.Fetch(context.Background(), url, "18", filepath.Join(t.TempDir(), OutputTemplate))

		data, err := os.ReadFile(log)
		require.NoError(t, err)
		lines := string(data)

		assert.NotContains(t, lines, "OPTION "+url)
		assert.Equal(t, 2, strings.Count(lines, "URL "+url+"\n"), lines)
	}
}

func TestYtDlpDiscoverToolFailure(t *testing.T) {
	tool := writeFakeTool(t, "echo 'not json'\necho 'ERROR: Video unavailable' >&2\nexit 1\n")
	y := NewYtDlp(tool, Options{}, nil)

	_, err := y.Discover(context.Background(), "https://example.com/v")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolFailure)
	assert.NotErrorIs(t, err, ErrMalformedOutput, "stdout must not be parsed after a failure")

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, 1, toolErr.ExitCode)
	assert.Contains(t, toolErr.Stderr, "Video unavailable")
}

func TestYtDlpDiscoverMalformedOutput(t *testing.T) {
	tool := writeFakeTool(t, "echo 'definitely not json'\n")
	y := NewYtDlp(tool, Options{}, nil)

	_, err := y.Discover(context.Background(), "https://example.com/v")
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestYtDlpDiscoverTimeout(t *testing.T) {
	tool := writeFakeTool(t, "exec sleep 5\n")
	y := NewYtDlp(tool, Options{DiscoverTimeout: 100 * time.Millisecond}, nil)

	started := time.Now()
	_, err := y.Discover(context.Background(), "https://example.com/v")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(started), 4*time.Second)
}

func TestYtDlpDiscoverCancelled(t *testing.T) {
	tool := writeFakeTool(t, "exec sleep 5\n")
	y := NewYtDlp(tool, Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := y.Discover(ctx, "https://example.com/v")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestYtDlpFetch(t *testing.T) {
	// The fake resolves the -o template the way yt-dlp would.
	tool := writeFakeTool(t, `
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
  esac
  shift
done
dest=$(echo "$out" | sed 's/%(title)s/Été vidéo/; s/%(ext)s/mp4/')
printf 'video-bytes' > "$dest"
`)
	y := NewYtDlp(tool, Options{}, nil)
	dir := t.TempDir()

	path, err := y.Fetch(context.Background(), "https://example.com/v", "18", filepath.Join(dir, OutputTemplate))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Été vidéo.mp4"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
}

func TestYtDlpFetchEmptyResult(t *testing.T) {
	tool := writeFakeTool(t, "exit 0\n")
	y := NewYtDlp(tool, Options{}, nil)

	_, err := y.Fetch(context.Background(), "https://example.com/v", "18", filepath.Join(t.TempDir(), OutputTemplate))
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestYtDlpFetchUnknownFormat(t *testing.T) {
	tool := writeFakeTool(t, "echo 'ERROR: [youtube] TEST: Requested format is not available' >&2\nexit 1\n")
	y := NewYtDlp(tool, Options{}, nil)

	_, err := y.Fetch(context.Background(), "https://example.com/v", "9999", filepath.Join(t.TempDir(), OutputTemplate))
	assert.ErrorIs(t, err, ErrToolFailure)
	assert.Contains(t, err.Error(), "Requested format is not available")
}

func TestYtDlpFetchTimeout(t *testing.T) {
	tool := writeFakeTool(t, "exec sleep 5\n")
	y := NewYtDlp(tool, Options{FetchTimeout: 100 * time.Millisecond}, nil)

	_, err := y.Fetch(context.Background(), "https://example.com/v", "18", filepath.Join(t.TempDir(), OutputTemplate))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRunResult(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-expired.Done()

	cancelled, cancelParent := context.WithCancel(context.Background())
	cancelParent()

	tests := []struct {
		name    string
		parent  context.Context
		ctx     context.Context
		runErr  error
		wantErr error
	}{
		{"clean exit at the deadline", context.Background(), expired, nil, nil},
		{"clean exit", context.Background(), context.Background(), nil, nil},
		{"killed at the deadline", context.Background(), expired, errors.New("signal: killed"), ErrTimeout},
		{"parent cancelled", cancelled, cancelled, errors.New("signal: killed"), context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runResult(tt.parent, tt.ctx, tt.runErr, "")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestYtDlpMissingBinary(t *testing.T) {
	y := NewYtDlp(filepath.Join(t.TempDir(), "does-not-exist"), Options{}, nil)

	_, err := y.Discover(context.Background(), "https://example.com/v")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrToolFailure)
	assert.NotErrorIs(t, err, ErrTimeout)
}
