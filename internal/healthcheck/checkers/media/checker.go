// Package mediachecker verifies the local resources downloads depend on.
package mediachecker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/memohai/playbot/internal/healthcheck"
)

const (
	checkTypeTempDir = "media.temp_dir"
	checkTypeFFmpeg  = "media.ffmpeg"
)

// Checker reports whether the temp directory is writable and ffmpeg is on PATH.
type Checker struct {
	logger    *slog.Logger
	tempDir   string
	ffmpeg    string
	transcode bool
}

// NewChecker creates a media checker. ffmpeg is only checked when transcode is on.
func NewChecker(log *slog.Logger, tempDir, ffmpeg string, transcode bool) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:    log.With(slog.String("checker", "healthcheck_media")),
		tempDir:   tempDir,
		ffmpeg:    ffmpeg,
		transcode: transcode,
	}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	checks := []healthcheck.CheckResult{c.checkTempDir()}
	if c.transcode {
		checks = append(checks, c.checkFFmpeg())
	}
	return checks
}

func (c *Checker) checkTempDir() healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:       checkTypeTempDir,
		Type:     checkTypeTempDir,
		Subtitle: c.tempDir,
		Status:   healthcheck.StatusOK,
		Summary:  "Temp directory is writable.",
	}
	probe, err := os.CreateTemp(c.tempDir, ".probe-*")
	if err != nil {
		c.logger.Warn("temp dir not writable", slog.String("dir", c.tempDir), slog.Any("error", err))
		item.Status = healthcheck.StatusError
		item.Summary = "Temp directory is not writable."
		item.Detail = err.Error()
		return item
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return item
}

func (c *Checker) checkFFmpeg() healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:       checkTypeFFmpeg,
		Type:     checkTypeFFmpeg,
		Subtitle: filepath.Base(c.ffmpeg),
		Status:   healthcheck.StatusOK,
	}
	path, err := exec.LookPath(c.ffmpeg)
	if err != nil {
		item.Status = healthcheck.StatusWarn
		item.Summary = "ffmpeg not found; audio is sent untranscoded."
		item.Detail = err.Error()
		return item
	}
	item.Summary = fmt.Sprintf("ffmpeg found at %s.", path)
	return item
}
