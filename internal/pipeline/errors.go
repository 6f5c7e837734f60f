package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/media/transcode"
	"github.com/memohai/playbot/internal/resolver"
	"github.com/memohai/playbot/internal/search"
)

var (
	// ErrNoResults is returned when the search found nothing playable.
	ErrNoResults = errors.New("no results")
	// ErrTooLong is returned when the video exceeds the configured duration.
	ErrTooLong = errors.New("video too long")
	// ErrDelivery is returned when the transport could not send a message.
	ErrDelivery = errors.New("delivery failed")
	// ErrInternal marks a recovered panic or an unexpected state.
	ErrInternal = errors.New("internal error")
)

// TooLongError carries the duration that tripped the limit.
type TooLongError struct {
	Duration time.Duration
	Max      time.Duration
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("video lasts %s (max %s)", e.Duration, e.Max)
}

func (e *TooLongError) Is(target error) bool {
	return target == ErrTooLong
}

// Failure reasons reported to metrics.
const (
	ReasonNoResults         = "no_results"
	ReasonTooLong           = "too_long"
	ReasonSearchUnavailable = "search_unavailable"
	ReasonNoProvider        = "no_provider"
	ReasonFetchTimeout      = "fetch_timeout"
	ReasonRemoteRejected    = "remote_rejected"
	ReasonEmptyPayload      = "empty_payload"
	ReasonTooLarge          = "too_large"
	ReasonDelivery          = "delivery"
	ReasonInternal          = "internal"
)

func failureReason(err error) string {
	var rejected *media.RemoteRejectedError
	switch {
	case errors.Is(err, ErrNoResults), errors.Is(err, search.ErrNotFound):
		return ReasonNoResults
	case errors.Is(err, ErrTooLong):
		return ReasonTooLong
	case errors.Is(err, search.ErrUnavailable):
		return ReasonSearchUnavailable
	case errors.Is(err, resolver.ErrNoProviderAvailable):
		return ReasonNoProvider
	case errors.Is(err, media.ErrFetchTimeout):
		return ReasonFetchTimeout
	case errors.As(err, &rejected):
		return ReasonRemoteRejected
	case errors.Is(err, media.ErrEmptyPayload):
		return ReasonEmptyPayload
	case errors.Is(err, media.ErrAssetTooLarge):
		return ReasonTooLarge
	case errors.Is(err, ErrDelivery):
		return ReasonDelivery
	default:
		return ReasonInternal
	}
}

// userMessage maps a failure to the single text shown to the user.
func userMessage(err error) string {
	var (
		tooLong  *TooLongError
		tooLarge *media.TooLargeError
		rejected *media.RemoteRejectedError
	)
	switch {
	case errors.Is(err, ErrNoResults), errors.Is(err, search.ErrNotFound):
		return "❌ No results found."
	case errors.As(err, &tooLong):
		return fmt.Sprintf("❌ The video is too long (max %d minutes).", int(tooLong.Max/time.Minute))
	case errors.Is(err, ErrTooLong):
		return "❌ The video is too long."
	case errors.Is(err, search.ErrUnavailable):
		return "❌ Search is unavailable right now, try again later."
	case errors.Is(err, resolver.ErrNoProviderAvailable):
		return "❌ Couldn't get a download link from any provider."
	case errors.Is(err, media.ErrFetchTimeout):
		return "❌ The download timed out."
	case errors.As(err, &rejected):
		return fmt.Sprintf("❌ The server rejected the download (HTTP %d).", rejected.Status)
	case errors.Is(err, media.ErrEmptyPayload):
		return "❌ The server returned an empty file."
	case errors.As(err, &tooLarge):
		return fmt.Sprintf("❌ The file is too large (%.2f MB, limit %d MB).", tooLarge.SizeMB, tooLarge.LimitMB)
	case errors.Is(err, ErrDelivery):
		return "❌ Couldn't send the file."
	case errors.Is(err, transcode.ErrTranscodeFailed):
		return "❌ Couldn't convert the audio."
	default:
		return "❌ Something went wrong while processing your request."
	}
}
