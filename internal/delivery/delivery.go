// Package delivery streams a held file to an HTTP client in bounded chunks and
// deletes it once the transfer is over, whatever the outcome.
package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"videograb/internal/holding"
	"videograb/pkg/models"
)

// ChunkSize is the size of each read/write during a transfer
const ChunkSize = 8 * 1024

// Transfer is an opened held file ready to be streamed
type Transfer struct {
	area  *holding.Area
	entry models.HoldingEntry
	file  io.ReadCloser
	size  int64
	sent  int64
	log   *zap.Logger
}

// Open opens the held file and determines its size. On failure the held file
// is removed before returning.
func Open(area *holding.Area, entry models.HoldingEntry, logger *zap.Logger) (*Transfer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("delivery").With(zap.String("name", entry.Name))

	f, err := area.Open(entry.Name)
	if err != nil {
		removeHeld(area, entry.Name, log)
		return nil, fmt.Errorf("failed to open held file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		removeHeld(area, entry.Name, log)
		return nil, fmt.Errorf("failed to stat held file: %w", err)
	}

	return &Transfer{
		area:  area,
		entry: entry,
		file:  f,
		size:  info.Size(),
		log:   log,
	}, nil
}

// Size returns the number of bytes the transfer will send
func (t *Transfer) Size() int64 {
	return t.size
}

// WriteHeaders sets the download headers. It must be called before Send.
func (t *Transfer) WriteHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", models.MuxedMimeType)
	h.Set("Content-Length", strconv.FormatInt(t.size, 10))
	h.Set("Content-Disposition", ContentDisposition(t.entry.DisplayName))
}

// Send writes the file to w in ChunkSize pieces. It stops at the first write
// error or when ctx is done; by then the status line is already committed, so
// the client simply sees a short body.
func (t *Transfer) Send(ctx context.Context, w io.Writer) (int64, error) {
	buf := make([]byte, ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return t.sent, err
		}

		n, readErr := t.file.Read(buf)
		if n > 0 {
			written, err := w.Write(buf[:n])
			t.sent += int64(written)
			if err != nil {
				return t.sent, fmt.Errorf("failed to write chunk: %w", err)
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return t.sent, fmt.Errorf("failed to read chunk: %w", readErr)
		}
	}

	if t.sent != t.size {
		return t.sent, fmt.Errorf("sent %d bytes, expected %d", t.sent, t.size)
	}

	return t.sent, nil
}

// Close releases the file and deletes it from the holding area. Delete
// failures are logged only.
func (t *Transfer) Close() error {
	if err := t.file.Close(); err != nil {
		t.log.Warn("failed to close held file", zap.Error(err))
	}
	removeHeld(t.area, t.entry.Name, t.log)

	t.log.Debug("transfer closed",
		zap.String("sent", humanize.Bytes(uint64(t.sent))),
		zap.Bool("complete", t.sent == t.size))

	return nil
}

func removeHeld(area *holding.Area, name string, log *zap.Logger) {
	if err := area.Remove(name); err != nil {
		log.Warn("failed to delete held file", zap.Error(err))
	}
}
