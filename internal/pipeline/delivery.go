package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/memohai/playbot/internal/channel"
	"github.com/memohai/playbot/internal/decision"
	"github.com/memohai/playbot/internal/jobs"
	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/resolver"
)

// run executes one accepted decision. It owns the job from here: the job is
// evicted and every artifact released however run ends.
func (s *Service) run(job *jobs.PendingJob, d decision.Decision) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.JobTimeout)
	defer cancel()
	defer s.deps.Jobs.Evict(job.Key)

	log := s.logger.With(
		slog.String("key", job.Key),
		slog.String("kind", string(d.Kind)),
		slog.String("mode", string(d.Mode)),
	)
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("delivery panicked", slog.Any("panic", r))
			s.fail(ctx, job.Channel, job.Chat, job.RequestMessageID, ErrInternal)
			s.recordDelivery(d.Kind, ReasonInternal, time.Since(started))
		}
	}()

	if err := s.deliver(ctx, log, job, d); err != nil {
		log.Warn("delivery failed", slog.Any("error", err))
		s.fail(ctx, job.Channel, job.Chat, job.RequestMessageID, err)
		s.recordDelivery(d.Kind, failureReason(err), time.Since(started))
		return
	}
	log.Info("delivered", slog.Duration("elapsed", time.Since(started)))
	s.recordDelivery(d.Kind, "ok", time.Since(started))
}

func (s *Service) deliver(ctx context.Context, log *slog.Logger, job *jobs.PendingJob, d decision.Decision) error {
	s.reply(ctx, job.Channel, job.Chat, job.RequestMessageID, progressText(d))

	quality := d.Quality
	if d.Kind == media.MediaTypeVideo && quality == "" {
		quality = job.QualityHint
	}
	res, err := s.deps.Resolver.Resolve(ctx, resolver.Request{Locator: job.Locator, Kind: d.Kind, Quality: quality})
	if err != nil {
		return err
	}
	log.Debug("resolved", slog.String("provider", res.Provider), slog.String("mime", res.Mime))

	art, err := s.deps.Store.Acquire(media.ExtensionFromMime(res.Mime))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
	defer art.Release()

	fetched, err := s.deps.Fetcher.FetchToFile(ctx, res.URL, art, s.cfg.CeilingMB*1024*1024)
	if err != nil {
		return err
	}
	mime := fetched.Mime
	if mime == "" || mime == "application/octet-stream" || !strings.HasPrefix(mime, string(d.Kind)+"/") {
		mime = res.Mime
	}

	path, size, mode := art.Path, fetched.Size, d.Mode
	if d.Kind == media.MediaTypeAudio && s.cfg.Transcode && s.deps.Transcoder != nil && mime != "audio/mpeg" {
		out, err := s.deps.Store.Acquire(".mp3")
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInternal, err)
		}
		defer out.Release()
		if err := s.deps.Transcoder.ToAudio(ctx, art.Path, out.Path); err != nil {
			log.Warn("transcode failed, sending original as document", slog.Any("error", err))
			mode = decision.ModeDocument
		} else {
			info, err := os.Stat(out.Path)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInternal, err)
			}
			path, size, mime = out.Path, info.Size(), "audio/mpeg"
		}
	}

	if err := media.CheckSize(size, s.cfg.CeilingMB); err != nil {
		return err
	}

	// A non-empty provider title overrides the search title.
	title := strings.TrimSpace(res.Title)
	if title == "" {
		title = strings.TrimSpace(job.Title)
	}
	att := channel.Attachment{
		Type:    attachmentType(d.Kind, mode),
		Path:    path,
		Name:    media.SafeName(title) + media.ExtensionFromMime(mime),
		Mime:    mime,
		Size:    size,
		Caption: captionFor(d.Kind, title),
	}
	_, err = s.deps.Transport.Send(ctx, job.Channel, channel.OutboundMessage{
		Target: job.Chat,
		Message: channel.Message{
			Attachments: []channel.Attachment{att},
			Reply:       &channel.ReplyRef{Target: job.Chat, MessageID: job.RequestMessageID},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

func attachmentType(kind media.MediaType, mode decision.ContainerMode) channel.AttachmentType {
	if mode == decision.ModeDocument {
		return channel.AttachmentFile
	}
	if kind == media.MediaTypeVideo {
		return channel.AttachmentVideo
	}
	return channel.AttachmentAudio
}

func captionFor(kind media.MediaType, title string) string {
	if title == "" {
		return ""
	}
	if kind == media.MediaTypeVideo {
		return "🎬 " + title
	}
	return "🎵 " + title
}

func progressText(d decision.Decision) string {
	label := "audio"
	if d.Kind == media.MediaTypeVideo {
		label = "video"
		if d.Quality != "" {
			label += " " + d.Quality + "p"
		}
	}
	if d.Mode == decision.ModeDocument {
		label += " as document"
	}
	return "⏳ Downloading " + label + "..."
}

func (s *Service) recordDelivery(kind media.MediaType, outcome string, elapsed time.Duration) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.DeliveryFinished(kind, outcome, elapsed)
	}
}
