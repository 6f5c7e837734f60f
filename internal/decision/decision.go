// Package decision turns reaction and quoted-reply events on a preview message
// into a single normalized delivery choice.
package decision

import (
	"strings"

	"github.com/memohai/playbot/internal/media"
)

// ContainerMode selects how the media is attached to the outgoing message.
type ContainerMode string

const (
	ModeInline   ContainerMode = "inline"
	ModeDocument ContainerMode = "document"
)

// Decision is a fully formed user selection. Quality is only set for video.
type Decision struct {
	Kind    media.MediaType
	Mode    ContainerMode
	Quality string
}

// Outcome reports how a quoted reply was interpreted.
type Outcome int

const (
	// OutcomeDecided means the reply carried a valid selection.
	OutcomeDecided Outcome = iota
	// OutcomeUsage means the reply did not match any option; the caller should
	// answer with a usage hint and leave the job open.
	OutcomeUsage
)

var reactionTable = map[string]Decision{
	"👍": {Kind: media.MediaTypeAudio, Mode: ModeInline},
	"📄": {Kind: media.MediaTypeAudio, Mode: ModeDocument},
	"❤":  {Kind: media.MediaTypeVideo, Mode: ModeInline},
	"📁": {Kind: media.MediaTypeVideo, Mode: ModeDocument},
}

var commandWords = map[string]Decision{
	"1":        {Kind: media.MediaTypeAudio, Mode: ModeInline},
	"audio":    {Kind: media.MediaTypeAudio, Mode: ModeInline},
	"4":        {Kind: media.MediaTypeAudio, Mode: ModeDocument},
	"audiodoc": {Kind: media.MediaTypeAudio, Mode: ModeDocument},
	"2":        {Kind: media.MediaTypeVideo, Mode: ModeInline},
	"video":    {Kind: media.MediaTypeVideo, Mode: ModeInline},
	"3":        {Kind: media.MediaTypeVideo, Mode: ModeDocument},
	"videodoc": {Kind: media.MediaTypeVideo, Mode: ModeDocument},
}

// DefaultQualities is the video quality whitelist used when none is configured.
var DefaultQualities = []string{"144", "240", "360", "480", "720", "1080"}

// Resolver maps inbound signals to decisions. It is immutable after construction
// and safe for concurrent use.
type Resolver struct {
	qualities map[string]struct{}
}

// NewResolver builds a Resolver accepting the given video qualities. Entries may
// be written with or without a trailing "p".
func NewResolver(qualities []string) *Resolver {
	if len(qualities) == 0 {
		qualities = DefaultQualities
	}
	set := make(map[string]struct{}, len(qualities))
	for _, q := range qualities {
		q = normalizeQuality(q)
		if q != "" {
			set[q] = struct{}{}
		}
	}
	return &Resolver{qualities: set}
}

// FromReaction maps an emoji to a decision. Unmapped emoji return false.
func (r *Resolver) FromReaction(emoji string) (Decision, bool) {
	d, ok := reactionTable[normalizeEmoji(emoji)]
	return d, ok
}

// FromReply parses the text of a quoted reply.
func (r *Resolver) FromReply(text string) (Decision, Outcome) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	tokens := strings.Fields(lowered)
	if len(tokens) == 0 {
		return Decision{}, OutcomeUsage
	}
	d, ok := commandWords[tokens[0]]
	if !ok {
		return Decision{}, OutcomeUsage
	}
	// Either doc keyword switches the container; the kind stays with the leading token.
	if strings.Contains(lowered, "audiodoc") || strings.Contains(lowered, "videodoc") {
		d.Mode = ModeDocument
	}
	if d.Kind == media.MediaTypeVideo {
		for _, tok := range tokens[1:] {
			if q := normalizeQuality(tok); q != "" {
				if _, ok := r.qualities[q]; ok {
					d.Quality = q
					break
				}
			}
		}
	}
	return d, OutcomeDecided
}

// UsageHint is the reply sent when a quoted reply matches no option.
func UsageHint() string {
	return "⚠️ Options:\n" +
		"1 / audio → audio\n" +
		"4 / audiodoc → audio as document\n" +
		"2 / video [quality] → video\n" +
		"3 / videodoc [quality] → video as document"
}

// Legend lists the reaction and reply options shown under a preview.
func Legend() string {
	return "📥 Options:\n" +
		"☛ 👍 Audio (1 / audio)\n" +
		"☛ 📄 Audio doc (4 / audiodoc)\n" +
		"☛ ❤️ Video (2 / video)\n" +
		"☛ 📁 Video doc (3 / videodoc)"
}

// normalizeEmoji strips variation selectors and skin-tone modifiers so that
// "❤️" and "❤" or "👍🏽" and "👍" compare equal.
func normalizeEmoji(emoji string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(emoji) {
		switch {
		case r == 0xFE0F || r == 0xFE0E:
			continue
		case r >= 0x1F3FB && r <= 0x1F3FF:
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func normalizeQuality(raw string) string {
	q := strings.ToLower(strings.TrimSpace(raw))
	q = strings.TrimSuffix(q, "p")
	if q == "" {
		return ""
	}
	for _, c := range q {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return q
}
