package media

import (
	"fmt"
	"io"
)

const (
	// MaxThumbnailBytes bounds in-memory downloads of preview images.
	MaxThumbnailBytes int64 = 8 * 1024 * 1024
	// DefaultCeilingMB is the delivery ceiling used when none is configured.
	DefaultCeilingMB int64 = 99

	bytesPerMB = 1024 * 1024
)

// ReadAllWithLimit reads from reader and rejects payloads larger than maxBytes.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	limited := &io.LimitedReader{
		R: reader,
		N: maxBytes + 1,
	}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	return data, nil
}

// CheckSize rejects sizes at or above ceilingMB mebibytes. A non-positive
// ceiling falls back to DefaultCeilingMB.
func CheckSize(sizeBytes int64, ceilingMB int64) error {
	if ceilingMB <= 0 {
		ceilingMB = DefaultCeilingMB
	}
	if sizeBytes >= ceilingMB*bytesPerMB {
		return &TooLargeError{
			SizeMB:  float64(sizeBytes) / bytesPerMB,
			LimitMB: ceilingMB,
		}
	}
	return nil
}
