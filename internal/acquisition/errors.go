package acquisition

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"videograb/internal/catalog"
	"videograb/internal/extractor"
)

// Kind classifies a failure for callers
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidRequest
	KindUpstreamTimeout
	KindUpstreamFailure
	KindNoPlayableStream
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindNoPlayableStream:
		return "no_playable_stream"
	case KindCanceled:
		return "canceled"
	default:
		return "internal"
	}
}

// Message is the caller-facing text for the kind
func (k Kind) Message() string {
	switch k {
	case KindInvalidRequest:
		return "invalid request"
	case KindUpstreamTimeout:
		return "the video source took too long to respond"
	case KindUpstreamFailure:
		return "the video source could not be processed"
	case KindNoPlayableStream:
		return "no playable mp4 stream with audio was found"
	case KindCanceled:
		return "request canceled"
	default:
		return "internal server error"
	}
}

// Status is the HTTP status code for the kind
func (k Kind) Status() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUpstreamTimeout:
		return http.StatusRequestTimeout
	case KindNoPlayableStream:
		return http.StatusNotFound
	case KindCanceled:
		// nginx's "client closed request"; nobody reads it
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Err keeps the underlying cause, including
// tool diagnostics.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.Message())
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, KindInternal when it is not classified
func KindOf(err error) Kind {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return KindInternal
}

// classify maps pipeline errors to a Kind
func classify(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, extractor.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindUpstreamTimeout
	case errors.Is(err, catalog.ErrNoPlayableStream):
		return KindNoPlayableStream
	case errors.Is(err, extractor.ErrToolFailure),
		errors.Is(err, extractor.ErrEmptyResult),
		errors.Is(err, extractor.ErrAmbiguousResult),
		errors.Is(err, extractor.ErrMalformedOutput):
		return KindUpstreamFailure
	default:
		return KindInternal
	}
}

func wrap(op string, err error) *Error {
	return &Error{Kind: classify(err), Op: op, Err: err}
}
