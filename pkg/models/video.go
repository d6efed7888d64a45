package models

import "time"

// QualityLabel is a user-facing quality tier
type QualityLabel string

const (
	Quality144p  QualityLabel = "144p"
	Quality240p  QualityLabel = "240p"
	Quality360p  QualityLabel = "360p"
	Quality480p  QualityLabel = "480p"
	Quality720p  QualityLabel = "720p"
	Quality1080p QualityLabel = "1080p"
)

// qualityOrder lists tiers from lowest to highest
var qualityOrder = []QualityLabel{
	Quality144p,
	Quality240p,
	Quality360p,
	Quality480p,
	Quality720p,
	Quality1080p,
}

// Rank returns the sort position of the tier. Unknown tiers rank after all known ones.
func (q QualityLabel) Rank() int {
	for i, label := range qualityOrder {
		if label == q {
			return i
		}
	}
	return len(qualityOrder)
}

// MuxedMimeType is the mime type of the only container offered to clients
const MuxedMimeType = "video/mp4"

// FormatDescriptor is one row of the filtered format catalog
type FormatDescriptor struct {
	ID                   string       `json:"itag"`
	QualityLabel         QualityLabel `json:"quality"`
	MimeType             string       `json:"mime_type"`
	ApproximateSizeBytes int64        `json:"filesize"`
}

// AnalyzeResult is the payload returned by an analyze call
type AnalyzeResult struct {
	Title     string             `json:"title"`
	Thumbnail string             `json:"thumbnail"`
	Streams   []FormatDescriptor `json:"streams"`
}

// JobStatus represents the status of an acquisition job
type JobStatus int

const (
	JobRunning JobStatus = iota
	JobSucceeded
	JobFailed
	JobTimedOut
)

func (s JobStatus) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	case JobTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status is final
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobTimedOut
}

// AcquisitionJob tracks one download call
type AcquisitionJob struct {
	ID         string
	SourceURL  string
	FormatID   string
	WorkDir    string
	ResultFile string
	Status     JobStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Error      error
}

// HoldingEntry represents a fetched file waiting to be streamed
type HoldingEntry struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Size        int64     `json:"size"`
	Created     time.Time `json:"created"`
}
