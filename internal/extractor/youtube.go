package extractor

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"
)

// YouTube talks to YouTube directly instead of spawning a subprocess
type YouTube struct {
	client *youtube.Client
	opts   Options
	log    *zap.Logger
}

// NewYouTube creates a native YouTube extractor
func NewYouTube(opts Options, logger *zap.Logger) *YouTube {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &YouTube{
		client: &youtube.Client{},
		opts:   opts.withDefaults(),
		log:    logger.Named("youtube"),
	}
}

// Discover fetches the player response and converts its formats
func (y *YouTube) Discover(parent context.Context, url string) (*RawInfo, error) {
	ctx, cancel := context.WithTimeout(parent, y.opts.DiscoverTimeout)
	defer cancel()

	video, err := y.client.GetVideoContext(ctx, url)
	if err != nil {
		if ctxErr := classifyContextErr(parent, ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ToolError{ExitCode: 1, Stderr: err.Error()}
	}

	info := &RawInfo{
		Title:   video.Title,
		Formats: make([]RawFormat, 0, len(video.Formats)),
	}
	if len(video.Thumbnails) > 0 {
		info.Thumbnail = video.Thumbnails[len(video.Thumbnails)-1].URL
	}
	for _, format := range video.Formats {
		info.Formats = append(info.Formats, convertFormat(format))
	}

	return info, nil
}

// Fetch streams the selected itag into the directory of destTemplate
func (y *YouTube) Fetch(parent context.Context, url, formatID, destTemplate string) (string, error) {
	ctx, cancel := context.WithTimeout(parent, y.opts.FetchTimeout)
	defer cancel()

	path, err := y.fetch(ctx, url, formatID, filepath.Dir(destTemplate))
	if err != nil {
		if ctxErr := classifyContextErr(parent, ctx); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}

	return resolveResult(filepath.Dir(path))
}

func (y *YouTube) fetch(ctx context.Context, url, formatID, dir string) (string, error) {
	itag, err := strconv.Atoi(formatID)
	if err != nil {
		return "", &ToolError{ExitCode: 2, Stderr: fmt.Sprintf("invalid format selector %q", formatID)}
	}

	video, err := y.client.GetVideoContext(ctx, url)
	if err != nil {
		return "", &ToolError{ExitCode: 1, Stderr: err.Error()}
	}

	var format *youtube.Format
	for i := range video.Formats {
		if video.Formats[i].ItagNo == itag {
			format = &video.Formats[i]
			break
		}
	}
	if format == nil {
		return "", &ToolError{ExitCode: 1, Stderr: fmt.Sprintf("requested format %s is not available", formatID)}
	}

	stream, _, err := y.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", &ToolError{ExitCode: 1, Stderr: err.Error()}
	}
	defer stream.Close()

	ext, _, _ := splitMimeType(format.MimeType)
	path := filepath.Join(dir, sanitizeFileName(video.Title)+"."+ext)
	partial := path + ".part"

	out, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}

	started := time.Now()
	written, err := io.Copy(out, stream)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("failed to write stream: %w", err)
	}

	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("failed to finalize output file: %w", err)
	}

	y.log.Debug("stream fetched",
		zap.Int("itag", itag),
		zap.Int64("bytes", written),
		zap.Duration("elapsed", time.Since(started)))

	return path, nil
}

// convertFormat maps a player format to the tool-neutral representation
func convertFormat(f youtube.Format) RawFormat {
	ext, vcodec, acodec := splitMimeType(f.MimeType)
	if f.AudioChannels == 0 {
		acodec = "none"
	}
	if f.Width == 0 || f.Height == 0 {
		vcodec = "none"
	}

	raw := RawFormat{
		FormatID: strconv.Itoa(f.ItagNo),
		Ext:      ext,
		VCodec:   vcodec,
		ACodec:   acodec,
		FileSize: f.ContentLength,
	}
	if f.Width > 0 && f.Height > 0 {
		raw.Resolution = fmt.Sprintf("%dx%d", f.Width, f.Height)
	} else {
		raw.Resolution = "audio only"
	}

	return raw
}

// splitMimeType turns `video/mp4; codecs="avc1.42001E, mp4a.40.2"` into
// ("mp4", "avc1.42001E", "mp4a.40.2").
func splitMimeType(mimeType string) (ext, vcodec, acodec string) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", "none", "none"
	}

	major, sub, _ := strings.Cut(mediaType, "/")
	ext = sub
	vcodec, acodec = "none", "none"

	codecs := strings.Split(params["codecs"], ",")
	for i := range codecs {
		codecs[i] = strings.TrimSpace(codecs[i])
	}

	switch {
	case major == "audio":
		acodec = codecs[0]
	case len(codecs) >= 2:
		vcodec, acodec = codecs[0], codecs[1]
	case codecs[0] != "":
		vcodec = codecs[0]
	}

	return ext, vcodec, acodec
}

// defaultTitle names files whose title sanitizes to nothing
const defaultTitle = "video"

// sanitizeFileName drops path separators and control characters from a title
func sanitizeFileName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(title))

	if name == "" || name == "." || name == ".." {
		return defaultTitle
	}
	return name
}
