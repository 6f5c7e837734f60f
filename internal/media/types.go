package media

import (
	"path"
	"strings"
)

// MediaType classifies the kind of media asset.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeAudio MediaType = "audio"
	MediaTypeVideo MediaType = "video"
	MediaTypeFile  MediaType = "file"
)

// FetchResult describes a payload that has been transferred from a remote URL.
// Size is the number of bytes actually written to the sink.
type FetchResult struct {
	Path string
	Data []byte
	Size int64
	Mime string
}

// SizeMB returns the transferred size in mebibytes.
func (r FetchResult) SizeMB() float64 {
	return float64(r.Size) / (1024 * 1024)
}

// GuessMime infers a mime type from the extension in a URL path. Unknown
// extensions fall back to the default for the media type.
func GuessMime(rawURL string, kind MediaType) string {
	p := rawURL
	if idx := strings.IndexAny(p, "?#"); idx >= 0 {
		p = p[:idx]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".m4a":
		return "audio/mp4"
	case ".opus", ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".webm":
		if kind == MediaTypeVideo {
			return "video/webm"
		}
		return "audio/webm"
	case ".mp4":
		if kind == MediaTypeAudio {
			return "audio/mp4"
		}
		return "video/mp4"
	}
	if kind == MediaTypeVideo {
		return "video/mp4"
	}
	return "audio/mpeg"
}

// ExtensionFromMime maps a mime type to a file extension including the dot.
func ExtensionFromMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4":
		return ".m4a"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm", "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}

// SafeName turns a free-form title into a file name stem: at most 90 runes,
// word characters, spaces, dots and dashes only.
func SafeName(name string) string {
	runes := []rune(name)
	if len(runes) > 90 {
		runes = runes[:90]
	}
	var b strings.Builder
	for _, r := range runes {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '-', r == ' ':
			b.WriteRune(r)
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(' ')
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" {
		return "file"
	}
	return out
}
