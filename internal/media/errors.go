package media

import (
	"errors"
	"fmt"
)

var (
	// ErrAssetTooLarge indicates the payload exceeds the configured max asset size.
	ErrAssetTooLarge = errors.New("media asset too large")
	// ErrPathTraversal indicates an artifact name attempted directory traversal.
	ErrPathTraversal = errors.New("path traversal is forbidden")
	// ErrFetchTimeout indicates the transfer did not finish within its deadline.
	ErrFetchTimeout = errors.New("fetch timed out")
	// ErrEmptyPayload indicates the remote answered successfully with no bytes.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrInvalidURL indicates the URL has no fetchable scheme.
	ErrInvalidURL = errors.New("url is not fetchable")
)

// RemoteRejectedError is returned when the remote answers with an HTTP error status.
type RemoteRejectedError struct {
	Status int
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("remote rejected download (HTTP %d)", e.Status)
}

// TooLargeError reports an asset above the configured ceiling.
type TooLargeError struct {
	SizeMB  float64
	LimitMB int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("asset is %.2fMB (limit %dMB)", e.SizeMB, e.LimitMB)
}

// Is lets errors.Is(err, ErrAssetTooLarge) match.
func (e *TooLargeError) Is(target error) bool {
	return target == ErrAssetTooLarge
}
