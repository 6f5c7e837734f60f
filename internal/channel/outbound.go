package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// OutboundPolicy configures how outbound messages are chunked and retried.
type OutboundPolicy struct {
	TextChunkLimit int `json:"text_chunk_limit,omitempty"`
	RetryMax       int `json:"retry_max,omitempty"`
	RetryBackoffMs int `json:"retry_backoff_ms,omitempty"`
}

// NormalizeOutboundPolicy fills zero-value fields with sensible defaults.
func NormalizeOutboundPolicy(policy OutboundPolicy) OutboundPolicy {
	if policy.TextChunkLimit <= 0 {
		policy.TextChunkLimit = 2000
	}
	if policy.RetryMax <= 0 {
		policy.RetryMax = 3
	}
	if policy.RetryBackoffMs <= 0 {
		policy.RetryBackoffMs = 500
	}
	return policy
}

// ChunkText splits text at newline boundaries, respecting the rune limit.
func ChunkText(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 || runeLen(trimmed) <= limit {
		return []string{trimmed}
	}
	lines := strings.Split(trimmed, "\n")
	chunks := make([]string, 0)
	buf := make([]string, 0, len(lines))
	bufLen := 0
	for _, line := range lines {
		lineLen := runeLen(line)
		sepLen := 0
		if len(buf) > 0 {
			sepLen = 1
		}
		if bufLen+sepLen+lineLen <= limit {
			buf = append(buf, line)
			bufLen += sepLen + lineLen
			continue
		}
		if len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, "\n"))
			buf = buf[:0]
			bufLen = 0
		}
		if lineLen <= limit {
			buf = append(buf, line)
			bufLen = lineLen
			continue
		}
		chunks = append(chunks, splitLongLine(line, limit)...)
	}
	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, "\n"))
	}
	return chunks
}

func runeLen(value string) int {
	return len([]rune(value))
}

func splitLongLine(line string, limit int) []string {
	runes := []rune(line)
	chunks := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		segment := strings.TrimSpace(string(runes[start:end]))
		if segment == "" {
			continue
		}
		chunks = append(chunks, segment)
	}
	return chunks
}

// buildOutboundMessages splits a text-only message into chunks. Messages with
// attachments are sent as one unit; their text travels as the caption.
func buildOutboundMessages(msg OutboundMessage, policy OutboundPolicy) ([]OutboundMessage, error) {
	if msg.Message.IsEmpty() {
		return nil, fmt.Errorf("message is required")
	}
	if len(msg.Message.Attachments) > 0 {
		return []OutboundMessage{msg}, nil
	}
	chunks := ChunkText(msg.Message.Text, policy.TextChunkLimit)
	items := make([]OutboundMessage, 0, len(chunks))
	for idx, chunk := range chunks {
		item := OutboundMessage{
			Target: msg.Target,
			Message: Message{
				Text: chunk,
			},
		}
		// Only the first chunk quotes the original message.
		if idx == 0 {
			item.Message.Reply = msg.Message.Reply
		}
		items = append(items, item)
	}
	return items, nil
}

func validateMessageCapabilities(registry *Registry, channelType ChannelType, msg Message) error {
	caps, ok := registry.GetCapabilities(channelType)
	if !ok {
		return nil
	}
	if strings.TrimSpace(msg.Text) != "" && len(msg.Attachments) == 0 && !caps.Text {
		return fmt.Errorf("channel does not support plain text")
	}
	if len(msg.Attachments) > 0 && !caps.Attachments {
		return fmt.Errorf("channel does not support attachments")
	}
	if len(msg.Attachments) > 0 && requiresMedia(msg.Attachments) && !caps.Media {
		return fmt.Errorf("channel does not support media")
	}
	if msg.Reply != nil && !caps.Reply {
		return fmt.Errorf("channel does not support reply")
	}
	for _, att := range msg.Attachments {
		if !att.HasSource() {
			return fmt.Errorf("attachment source is required")
		}
	}
	return nil
}

func requiresMedia(attachments []Attachment) bool {
	for _, att := range attachments {
		switch att.Type {
		case AttachmentAudio, AttachmentVideo:
			return true
		default:
			continue
		}
	}
	return false
}

func (m *Manager) resolveOutboundPolicy(channelType ChannelType) OutboundPolicy {
	policy, ok := m.registry.GetOutboundPolicy(channelType)
	if !ok {
		policy = OutboundPolicy{}
	}
	return NormalizeOutboundPolicy(policy)
}

func (m *Manager) sendWithConfig(ctx context.Context, sender Sender, cfg ChannelConfig, msg OutboundMessage, policy OutboundPolicy) (string, error) {
	if sender == nil {
		return "", fmt.Errorf("unsupported channel type: %s", cfg.ChannelType)
	}
	if err := validateMessageCapabilities(m.registry, cfg.ChannelType, msg.Message); err != nil {
		return "", err
	}
	var lastErr error
	for i := 0; i < policy.RetryMax; i++ {
		id, err := sender.Send(ctx, cfg, msg)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		m.logger.Warn("send outbound retry",
			slog.String("channel", cfg.ChannelType.String()),
			slog.Int("attempt", i+1),
			slog.Any("error", err))
		if i == policy.RetryMax-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("send outbound cancelled: %w", lastErr)
		case <-time.After(time.Duration(i+1) * time.Duration(policy.RetryBackoffMs) * time.Millisecond):
		}
	}
	return "", fmt.Errorf("send outbound failed after retries: %w", lastErr)
}
