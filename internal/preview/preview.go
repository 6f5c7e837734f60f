// Package preview renders the message a user reacts to before choosing a
// delivery variant.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/memohai/playbot/internal/channel"
	"github.com/memohai/playbot/internal/decision"
	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/search"
)

// DefaultMaxWidth is the thumbnail width above which images are downscaled.
const DefaultMaxWidth = 640

// Renderer builds preview messages.
type Renderer struct {
	fetcher  *media.Fetcher
	maxWidth int
	logger   *slog.Logger
}

// NewRenderer creates a Renderer. A nil fetcher disables thumbnails.
func NewRenderer(log *slog.Logger, fetcher *media.Fetcher, maxWidth int) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	return &Renderer{
		fetcher:  fetcher,
		maxWidth: maxWidth,
		logger:   log.With(slog.String("service", "preview")),
	}
}

// Render returns the preview for item. When the thumbnail cannot be loaded the
// caption is sent as plain text.
func (r *Renderer) Render(ctx context.Context, item search.Item) channel.Message {
	caption := Caption(item)
	if r.fetcher == nil || strings.TrimSpace(item.Thumbnail) == "" {
		return channel.Message{Text: caption}
	}
	data, err := r.Thumbnail(ctx, item.Thumbnail)
	if err != nil {
		r.logger.Warn("thumbnail unavailable, sending text preview",
			slog.String("url", item.Thumbnail), slog.Any("error", err))
		return channel.Message{Text: caption}
	}
	return channel.Message{
		Attachments: []channel.Attachment{{
			Type:    channel.AttachmentImage,
			Data:    data,
			Name:    media.SafeName(item.Title) + ".jpg",
			Mime:    "image/jpeg",
			Size:    int64(len(data)),
			Caption: caption,
		}},
	}
}

// Thumbnail downloads the image at url and re-encodes it as JPEG, downscaled
// to the renderer's maximum width.
func (r *Renderer) Thumbnail(ctx context.Context, url string) ([]byte, error) {
	res, err := r.fetcher.FetchBytes(ctx, url, media.MaxThumbnailBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch thumbnail: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail: %w", err)
	}
	if img.Bounds().Dx() > r.maxWidth {
		img = imaging.Resize(img, r.maxWidth, 0, imaging.Lanczos)
	}
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Caption formats the item details followed by the option legend.
func Caption(item search.Item) string {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "Untitled"
	}
	author := strings.TrimSpace(item.Author)
	if author == "" {
		author = "Unknown"
	}
	var b strings.Builder
	b.WriteString("🎵 " + title + "\n\n")
	b.WriteString("• Duration: " + FormatDuration(item.Duration) + "\n")
	b.WriteString("• Views: " + FormatCount(item.Views) + "\n")
	b.WriteString("• Author: " + author + "\n")
	b.WriteString("• Link: " + item.URL + "\n\n")
	b.WriteString(decision.Legend())
	return b.String()
}

// FormatDuration renders d as m:ss or h:mm:ss. Zero renders as "unknown".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}
	total := int64(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatCount groups digits by thousands, e.g. 1234567 → "1,234,567".
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	digits := strconv.FormatInt(n, 10)
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
