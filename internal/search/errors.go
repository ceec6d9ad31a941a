package search

import (
	"errors"
	"fmt"

	"github.com/onnwee/gpfinder/internal/ranking"
)

// Pass-level errors.
var (
	// ErrNoCandidatesFound means the directory returned no usable places.
	ErrNoCandidatesFound = errors.New("no candidates found")

	// ErrEmptyAfterFilter means places were found but all were private.
	ErrEmptyAfterFilter = ranking.ErrEmptyAfterFilter

	// ErrStalePass means a newer pass started before this one finished.
	// Its result was discarded and nothing was published.
	ErrStalePass = errors.New("search pass superseded")
)

// UpstreamError wraps a places directory failure.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// User-facing messages for pass outcomes.
const (
	MessageNoCandidates     = "No GP practices found near this location"
	MessageEmptyAfterFilter = "No NHS GP practices found. Try including private practices."
	MessageUpstreamFailure  = "GP search is temporarily unavailable. Please try again."
	MessageSearchFailed     = "Something went wrong while searching for GP practices."
)

// UserMessage returns the message to show for a failed pass.
func UserMessage(err error) string {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrEmptyAfterFilter):
		return MessageEmptyAfterFilter
	case errors.Is(err, ErrNoCandidatesFound):
		return MessageNoCandidates
	case errors.As(err, &upstream):
		return MessageUpstreamFailure
	default:
		return MessageSearchFailed
	}
}
