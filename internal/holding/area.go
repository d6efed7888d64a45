// Package holding manages the directory where fetched files wait to be
// streamed. Every file in it belongs to exactly one in-flight response.
package holding

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"videograb/pkg/models"
)

var (
	ErrEntryNotFound      = errors.New("holding entry not found")
	ErrVerificationFailed = errors.New("relocated file does not match source")
)

// Area is the process-wide holding directory
type Area struct {
	mu      sync.RWMutex
	fs      afero.Fs
	dir     string
	entries map[string]*models.HoldingEntry
	log     *zap.Logger
}

// NewArea creates the holding directory if it doesn't exist
func NewArea(fs afero.Fs, dir string, logger *zap.Logger) (*Area, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create holding directory: %w", err)
	}

	return &Area{
		fs:      fs,
		dir:     dir,
		entries: make(map[string]*models.HoldingEntry),
		log:     logger.Named("holding"),
	}, nil
}

// Place copies srcPath from srcFs into the area under a generated name and
// verifies the copy before registering it. The source is left untouched.
func (a *Area) Place(srcFs afero.Fs, srcPath, displayName string) (*models.HoldingEntry, error) {
	srcInfo, err := srcFs.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(srcPath))
	dstPath := filepath.Join(a.dir, name)

	if err := a.copyVerified(srcFs, srcPath, dstPath, srcInfo.Size()); err != nil {
		var result error = err
		if rmErr := a.fs.Remove(dstPath); rmErr != nil && !os.IsNotExist(rmErr) {
			result = multierror.Append(result, fmt.Errorf("failed to remove partial copy: %w", rmErr))
		}
		return nil, result
	}

	entry := &models.HoldingEntry{
		Name:        name,
		DisplayName: displayName,
		Size:        srcInfo.Size(),
		Created:     time.Now(),
	}

	a.mu.Lock()
	a.entries[name] = entry
	a.mu.Unlock()

	a.log.Debug("file placed",
		zap.String("name", name),
		zap.String("display_name", displayName),
		zap.String("size", humanize.Bytes(uint64(entry.Size))))

	entryCopy := *entry
	return &entryCopy, nil
}

// copyVerified copies src to dst and checks both the copied byte count and
// the size of the file on disk against the source size.
func (a *Area) copyVerified(srcFs afero.Fs, srcPath, dstPath string, size int64) error {
	src, err := srcFs.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	dst, err := a.fs.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create holding file: %w", err)
	}

	copied, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to copy into holding area: %w", err)
	}

	info, err := a.fs.Stat(dstPath)
	if err != nil {
		return fmt.Errorf("failed to stat holding file: %w", err)
	}
	if copied != size || info.Size() != size {
		return fmt.Errorf("%w: expected %d bytes, copied %d, on disk %d", ErrVerificationFailed, size, copied, info.Size())
	}

	return nil
}

// Open opens a held file for reading
func (a *Area) Open(name string) (afero.File, error) {
	a.mu.RLock()
	_, ok := a.entries[name]
	a.mu.RUnlock()
	if !ok {
		return nil, ErrEntryNotFound
	}

	return a.fs.Open(filepath.Join(a.dir, name))
}

// Remove deletes a held file and forgets its entry. A file that is already
// gone is not an error.
func (a *Area) Remove(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.entries, name)

	if err := a.fs.Remove(filepath.Join(a.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete held file: %w", err)
	}

	return nil
}

// GetEntry retrieves a held entry by name
func (a *Area) GetEntry(name string) (*models.HoldingEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entry, ok := a.entries[name]
	if !ok {
		return nil, ErrEntryNotFound
	}

	entryCopy := *entry
	return &entryCopy, nil
}

// ListEntries returns all held entries, oldest first
func (a *Area) ListEntries() []*models.HoldingEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entries := lo.MapToSlice(a.entries, func(_ string, entry *models.HoldingEntry) *models.HoldingEntry {
		entryCopy := *entry
		return &entryCopy
	})

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Created.Before(entries[j].Created)
	})

	return entries
}

// GetSize returns the total size of all held files
func (a *Area) GetSize() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return lo.SumBy(lo.Values(a.entries), func(entry *models.HoldingEntry) int64 {
		return entry.Size
	})
}

// Dir returns the holding directory path
func (a *Area) Dir() string {
	return a.dir
}
