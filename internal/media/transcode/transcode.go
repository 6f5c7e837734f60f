// Package transcode converts downloaded media with an external ffmpeg binary.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrTranscodeFailed is returned when ffmpeg exits with an error or produces no output.
var ErrTranscodeFailed = errors.New("transcode failed")

const (
	DefaultBinary  = "ffmpeg"
	DefaultBitrate = "128k"
)

// Transcoder shells out to ffmpeg.
type Transcoder struct {
	binary  string
	bitrate string
	logger  *slog.Logger
}

// New creates a Transcoder. Empty values fall back to ffmpeg on PATH and 128k.
func New(log *slog.Logger, binary, bitrate string) *Transcoder {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	if strings.TrimSpace(bitrate) == "" {
		bitrate = DefaultBitrate
	}
	return &Transcoder{
		binary:  binary,
		bitrate: bitrate,
		logger:  log.With(slog.String("service", "transcode")),
	}
}

// ToAudio re-encodes inPath as mp3 into outPath. A partial outPath is removed on failure.
func (t *Transcoder) ToAudio(ctx context.Context, inPath, outPath string) error {
	if inPath == "" || outPath == "" {
		return fmt.Errorf("%w: input and output paths are required", ErrTranscodeFailed)
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", inPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", t.bitrate,
		"-f", "mp3",
		outPath,
	}
	cmd := exec.CommandContext(ctx, t.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(outPath)
		if stderr.Len() > 0 {
			return fmt.Errorf("%w: %s", ErrTranscodeFailed, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(outPath)
		return fmt.Errorf("%w: no output produced", ErrTranscodeFailed)
	}
	t.logger.Debug("transcoded", slog.String("in", inPath), slog.Int64("bytes", info.Size()))
	return nil
}
