// Package acquisition runs the analyze and fetch flows on top of an extractor
// and hands fetched files over to the holding area.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"videograb/internal/catalog"
	"videograb/internal/extractor"
	"videograb/internal/holding"
	"videograb/pkg/models"
)

var (
	ErrMissingURL    = errors.New("no URL provided")
	ErrInvalidURL    = errors.New("URL must be an absolute http or https URL")
	ErrMissingFormat = errors.New("no format id provided")
)

const workDirPrefix = "fetch-"

// Options configures an Orchestrator
type Options struct {
	// WorkFs holds per-job working directories. The extractor writes real
	// files, so production uses the OS filesystem.
	WorkFs afero.Fs
	// WorkRoot is the parent of the working directories; empty means the OS
	// temp dir.
	WorkRoot string
	// OnJobDone receives a snapshot of every finished job
	OnJobDone func(models.AcquisitionJob)
}

// Stats counts jobs since startup
type Stats struct {
	Active    int64 `json:"active"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	TimedOut  int64 `json:"timedOut"`
}

// Orchestrator runs independent per-request acquisitions
type Orchestrator struct {
	extractor extractor.Extractor
	area      *holding.Area
	opts      Options
	log       *zap.Logger

	active    atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
}

// New creates an orchestrator
func New(ex extractor.Extractor, area *holding.Area, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.WorkFs == nil {
		opts.WorkFs = afero.NewOsFs()
	}

	return &Orchestrator{
		extractor: ex,
		area:      area,
		opts:      opts,
		log:       logger.Named("acquisition"),
	}
}

// Analyze lists the playable muxed encodings of url
func (o *Orchestrator) Analyze(ctx context.Context, url string) (*models.AnalyzeResult, error) {
	const op = "analyze"

	url, err := checkURL(url)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Op: op, Err: err}
	}

	log := o.log.With(zap.String("url", url))
	start := time.Now()

	info, err := o.extractor.Discover(ctx, url)
	if err != nil {
		aerr := wrap(op, err)
		log.Warn("discovery failed", zap.Stringer("kind", aerr.Kind), zap.Error(err))
		return nil, aerr
	}

	streams, err := catalog.Build(info.Formats)
	if err != nil {
		aerr := wrap(op, err)
		log.Info("no playable stream",
			zap.String("title", info.Title),
			zap.Int("formats", len(info.Formats)))
		return nil, aerr
	}

	log.Info("analyzed",
		zap.String("title", info.Title),
		zap.Int("formats", len(info.Formats)),
		zap.Int("streams", len(streams)),
		zap.Duration("took", time.Since(start)))

	return &models.AnalyzeResult{
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Streams:   streams,
	}, nil
}

// Fetch downloads one encoding and places it in the holding area. The
// returned entry is owned by the caller, who must remove it once delivered.
// The working directory is gone when Fetch returns, whatever the outcome.
func (o *Orchestrator) Fetch(ctx context.Context, url, formatID string) (entry *models.HoldingEntry, err error) {
	const op = "fetch"

	url, err = checkURL(url)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Op: op, Err: err}
	}
	formatID = strings.TrimSpace(formatID)
	if formatID == "" {
		return nil, &Error{Kind: KindInvalidRequest, Op: op, Err: ErrMissingFormat}
	}

	job := models.AcquisitionJob{
		ID:        uuid.NewString(),
		SourceURL: url,
		FormatID:  formatID,
		Status:    models.JobRunning,
		StartedAt: time.Now(),
	}
	log := o.log.With(
		zap.String("job", job.ID),
		zap.String("url", url),
		zap.String("format", formatID))

	o.active.Add(1)
	defer func() {
		o.active.Add(-1)
		o.finish(&job, err, log)
	}()

	workDir, err := afero.TempDir(o.opts.WorkFs, o.workRoot(), workDirPrefix)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Op: op, Err: fmt.Errorf("failed to create working directory: %w", err)}
	}
	job.WorkDir = workDir

	defer func() {
		if rmErr := o.opts.WorkFs.RemoveAll(workDir); rmErr != nil {
			log.Warn("failed to remove working directory", zap.String("dir", workDir), zap.Error(rmErr))
			if err != nil {
				err = &Error{Kind: KindOf(err), Op: op, Err: multierror.Append(errors.Unwrap(err), rmErr)}
			}
		}
	}()

	log.Debug("fetch started", zap.String("dir", workDir))

	resultFile, err := o.extractor.Fetch(ctx, url, formatID, filepath.Join(workDir, extractor.OutputTemplate))
	if err != nil {
		return nil, wrap(op, err)
	}
	job.ResultFile = resultFile

	entry, err = o.area.Place(o.opts.WorkFs, resultFile, filepath.Base(resultFile))
	if err != nil {
		return nil, &Error{Kind: KindInternal, Op: op, Err: fmt.Errorf("failed to relocate result: %w", err)}
	}

	return entry, nil
}

// finish records the terminal state of a job
func (o *Orchestrator) finish(job *models.AcquisitionJob, err error, log *zap.Logger) {
	job.FinishedAt = time.Now()
	job.Error = err

	took := zap.Duration("took", job.FinishedAt.Sub(job.StartedAt))

	switch kind := KindOf(err); {
	case err == nil:
		job.Status = models.JobSucceeded
		o.succeeded.Add(1)
		log.Info("fetch succeeded", zap.String("file", filepath.Base(job.ResultFile)), took)
	case kind == KindUpstreamTimeout:
		job.Status = models.JobTimedOut
		o.timedOut.Add(1)
		log.Warn("fetch timed out", took)
	case kind == KindCanceled:
		job.Status = models.JobFailed
		o.failed.Add(1)
		log.Info("client disconnected during fetch", took)
	default:
		job.Status = models.JobFailed
		o.failed.Add(1)
		log.Warn("fetch failed", zap.Stringer("kind", kind), zap.Error(err), took)
	}

	if o.opts.OnJobDone != nil {
		o.opts.OnJobDone(*job)
	}
}

// checkURL accepts only absolute http(s) URLs with a host. Anything else,
// an option-looking string in particular, never reaches the extractor.
func checkURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingURL
	}

	u, err := neturl.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return raw, nil
	default:
		return "", ErrInvalidURL
	}
}

func (o *Orchestrator) workRoot() string {
	if o.opts.WorkRoot != "" {
		return o.opts.WorkRoot
	}
	return os.TempDir()
}

// Stats returns the job counters
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Active:    o.active.Load(),
		Succeeded: o.succeeded.Load(),
		Failed:    o.failed.Load(),
		TimedOut:  o.timedOut.Load(),
	}
}

// Area returns the holding area fetched files are placed in
func (o *Orchestrator) Area() *holding.Area {
	return o.area
}
