// Package catalog turns the extractor's raw format list into the short list
// of quality tiers offered to clients.
package catalog

import (
	"errors"
	"sort"
	"strings"

	"github.com/samber/lo"

	"videograb/internal/extractor"
	"videograb/pkg/models"
)

var ErrNoPlayableStream = errors.New("no playable muxed stream found")

// Container is the only container kept in a catalog
const Container = "mp4"

// resolutionTiers maps the whitelisted resolution strings to quality labels
var resolutionTiers = map[string]models.QualityLabel{
	"256x144":   models.Quality144p,
	"426x240":   models.Quality240p,
	"640x360":   models.Quality360p,
	"854x480":   models.Quality480p,
	"1280x720":  models.Quality720p,
	"1920x1080": models.Quality1080p,
}

// Build filters formats down to muxed, whitelisted entries sorted by tier
func Build(formats []extractor.RawFormat) ([]models.FormatDescriptor, error) {
	descriptors := lo.FilterMap(formats, func(f extractor.RawFormat, _ int) (models.FormatDescriptor, bool) {
		label, ok := qualify(f)
		if !ok {
			return models.FormatDescriptor{}, false
		}

		return models.FormatDescriptor{
			ID:                   f.FormatID,
			QualityLabel:         label,
			MimeType:             models.MuxedMimeType,
			ApproximateSizeBytes: approximateSize(f),
		}, true
	})

	if len(descriptors) == 0 {
		return nil, ErrNoPlayableStream
	}

	sort.SliceStable(descriptors, func(i, j int) bool {
		return descriptors[i].QualityLabel.Rank() < descriptors[j].QualityLabel.Rank()
	})

	return descriptors, nil
}

// qualify reports the tier of a format, or false when it must be dropped
func qualify(f extractor.RawFormat) (models.QualityLabel, bool) {
	if !strings.EqualFold(f.Ext, Container) {
		return "", false
	}
	if !hasTrack(f.VCodec) || !hasTrack(f.ACodec) {
		return "", false
	}

	label, ok := resolutionTiers[f.Resolution]
	return label, ok
}

func hasTrack(codec string) bool {
	return codec != "" && codec != "none"
}

func approximateSize(f extractor.RawFormat) int64 {
	switch {
	case f.FileSize > 0:
		return f.FileSize
	case f.FileSizeApprox > 0:
		return f.FileSizeApprox
	default:
		return 0
	}
}
