// Command ytdlp-fake mimics the subset of the yt-dlp command line used by
// videograb. Point ytdl_path at it to run the server without network access.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DelayEnv makes every invocation sleep first, to exercise timeouts
const DelayEnv = "YTDLP_FAKE_DELAY"

var (
	ErrNoURL             = errors.New("no URL found in arguments")
	ErrMissingValue      = errors.New("option requires a value")
	ErrUnsupportedURL    = errors.New("Unsupported URL")
	ErrFormatUnavailable = errors.New("Requested format is not available")
)

type format struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	Resolution string  `json:"resolution"`
	FileSize   float64 `json:"filesize,omitempty"`
	Approx     float64 `json:"filesize_approx,omitempty"`
}

type info struct {
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail"`
	Formats   []format `json:"formats"`
}

var catalog = info{
	Title:     "Fake Video",
	Thumbnail: "https://example.com/thumb.jpg",
	Formats: []format{
		{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a.40.2", Resolution: "audio only", FileSize: 3_400_000},
		{FormatID: "137", Ext: "mp4", VCodec: "avc1.640028", ACodec: "none", Resolution: "1920x1080", FileSize: 80_000_000},
		{FormatID: "18", Ext: "mp4", VCodec: "avc1.42001E", ACodec: "mp4a.40.2", Resolution: "640x360", FileSize: 12_500_000},
		{FormatID: "22", Ext: "mp4", VCodec: "avc1.64001F", ACodec: "mp4a.40.2", Resolution: "1280x720", Approx: 31_250_000.5},
		{FormatID: "43", Ext: "webm", VCodec: "vp8.0", ACodec: "vorbis", Resolution: "640x360", FileSize: 9_000_000},
	},
}

type options struct {
	dump     bool
	formatID string
	output   string
	url      string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns the exit code
func run(args []string, stdout, stderr io.Writer) int {
	if delay, err := time.ParseDuration(os.Getenv(DelayEnv)); err == nil {
		time.Sleep(delay)
	}

	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 2
	}

	if strings.Contains(opts.url, "unsupported") {
		fmt.Fprintf(stderr, "ERROR: %v: %s\n", ErrUnsupportedURL, opts.url)
		return 1
	}

	if opts.dump {
		if err := json.NewEncoder(stdout).Encode(catalog); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
		return 0
	}

	if err := fetch(opts); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	return 0
}

// parseArgs understands the options videograb passes and ignores the rest
func parseArgs(args []string) (options, error) {
	var opts options

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--":
			// Everything after the marker is a URL, whatever it looks like
			if i+1 < len(args) {
				opts.url = args[i+1]
			}
			i = len(args)
		case "--dump-single-json", "-J":
			opts.dump = true
		case "-f", "-o", "--cookies":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("%w: %s", ErrMissingValue, arg)
			}
			i++
			if arg == "-f" {
				opts.formatID = args[i]
			} else if arg == "-o" {
				opts.output = args[i]
			}
		default:
			if strings.HasPrefix(strings.ToLower(arg), "http") {
				opts.url = arg
			}
		}
	}

	if opts.url == "" {
		return opts, ErrNoURL
	}
	if !opts.dump && opts.formatID == "" {
		return opts, fmt.Errorf("%w: -f", ErrMissingValue)
	}

	return opts, nil
}

func fetch(opts options) error {
	var chosen *format
	for i := range catalog.Formats {
		if catalog.Formats[i].FormatID == opts.formatID {
			chosen = &catalog.Formats[i]
			break
		}
	}
	if chosen == nil {
		return ErrFormatUnavailable
	}

	output := opts.output
	if output == "" {
		output = "%(title)s.%(ext)s"
	}
	output = strings.NewReplacer("%(title)s", catalog.Title, "%(ext)s", chosen.Ext, "%(id)s", "fake").Replace(output)

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return err
	}

	payload := strings.Repeat("fake media "+chosen.FormatID+"\n", 1024)
	return os.WriteFile(output, []byte(payload), 0644)
}
