package preview

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/memohai/playbot/internal/channel"
	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/search"
)

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "unknown"},
		{in: 59 * time.Second, want: "0:59"},
		{in: 213 * time.Second, want: "3:33"},
		{in: time.Hour + 2*time.Minute + 3*time.Second, want: "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	t.Parallel()

	tests := map[int64]string{
		0:          "0",
		999:        "999",
		1000:       "1,000",
		123456:     "123,456",
		1234567:    "1,234,567",
		-12345:     "-12,345",
		1000000000: "1,000,000,000",
	}
	for in, want := range tests {
		if got := FormatCount(in); got != want {
			t.Fatalf("FormatCount(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestCaption(t *testing.T) {
	t.Parallel()

	caption := Caption(search.Item{
		Title:    "Song",
		Author:   "Rick",
		URL:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Duration: 213 * time.Second,
		Views:    1500,
	})
	for _, want := range []string{"Song", "3:33", "1,500", "Rick", "watch?v=dQw4w9WgXcQ", "audiodoc"} {
		if !strings.Contains(caption, want) {
			t.Fatalf("caption missing %q:\n%s", want, caption)
		}
	}
}

func TestRenderDownscalesThumbnail(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 1280, 720))
	for x := 0; x < 1280; x++ {
		img.Set(x, x%720, color.RGBA{R: 200, A: 255})
	}
	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(encoded.Bytes())
	}))
	defer srv.Close()

	r := NewRenderer(nil, media.NewFetcher(nil, srv.Client(), time.Second), 320)
	msg := r.Render(context.Background(), search.Item{Title: "Song", Thumbnail: srv.URL + "/thumb.png"})
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected image attachment, got %+v", msg)
	}
	att := msg.Attachments[0]
	if att.Type != channel.AttachmentImage || att.Mime != "image/jpeg" {
		t.Fatalf("unexpected attachment: %+v", att)
	}
	if !strings.Contains(att.Caption, "Song") {
		t.Fatalf("caption not carried on attachment")
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(att.Data))
	if err != nil {
		t.Fatalf("thumbnail is not jpeg: %v", err)
	}
	if cfg.Width != 320 || cfg.Height != 180 {
		t.Fatalf("thumbnail size = %dx%d, want 320x180", cfg.Width, cfg.Height)
	}
}

func TestRenderFallsBackToText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewRenderer(nil, media.NewFetcher(nil, srv.Client(), time.Second), 0)
	msg := r.Render(context.Background(), search.Item{Title: "Song", Thumbnail: srv.URL + "/missing.jpg"})
	if len(msg.Attachments) != 0 {
		t.Fatalf("expected text-only preview, got %d attachments", len(msg.Attachments))
	}
	if !strings.Contains(msg.Text, "Song") {
		t.Fatalf("unexpected text: %q", msg.Text)
	}
}
