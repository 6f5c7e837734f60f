// Package channel provides a unified abstraction for chat platforms.
// It defines message types, adapter interfaces, and a registry and manager for
// adapters such as Telegram and Discord.
package channel

import (
	"strings"
	"time"
)

// ChannelType identifies a messaging platform (e.g., "telegram", "discord").
type ChannelType string

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// Identity represents a sender's identity on a channel.
type Identity struct {
	SubjectID   string
	DisplayName string
}

// Conversation holds metadata about the chat or group context.
type Conversation struct {
	ID   string
	Type string
	Name string
}

// Reaction is an emoji added by a user to an existing message.
type Reaction struct {
	MessageID string
	Emoji     string
}

// InboundMessage is an event received from an external channel. Exactly one of
// Message (text, possibly quoting another message) or Reaction is meaningful.
type InboundMessage struct {
	Channel      ChannelType
	Message      Message
	Reaction     *Reaction
	Sender       Identity
	Conversation Conversation
	ReceivedAt   time.Time
}

// IsReaction reports whether the event is a reaction rather than a message.
func (m InboundMessage) IsReaction() bool {
	return m.Reaction != nil && strings.TrimSpace(m.Reaction.MessageID) != ""
}

// ReplyTarget returns the chat that follow-up messages should go to.
func (m InboundMessage) ReplyTarget() string {
	return strings.TrimSpace(m.Conversation.ID)
}

// OutboundMessage pairs a delivery target with the message content.
type OutboundMessage struct {
	Target  string  `json:"target"`
	Message Message `json:"message"`
}

// AttachmentType classifies the kind of binary attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentAudio AttachmentType = "audio"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
)

// Attachment represents a file attached to a message. Exactly one of Path,
// Data or URL is used as the source, in that order of preference.
type Attachment struct {
	Type    AttachmentType `json:"type"`
	Path    string         `json:"path,omitempty"`
	Data    []byte         `json:"-"`
	URL     string         `json:"url,omitempty"`
	Name    string         `json:"name,omitempty"`
	Mime    string         `json:"mime,omitempty"`
	Size    int64          `json:"size,omitempty"`
	Caption string         `json:"caption,omitempty"`
}

// HasSource reports whether the attachment carries a path, bytes or URL.
func (a Attachment) HasSource() bool {
	return strings.TrimSpace(a.Path) != "" || len(a.Data) > 0 || strings.TrimSpace(a.URL) != ""
}

// ReplyRef points to a message being replied to.
type ReplyRef struct {
	Target    string `json:"target,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Message is the unified message structure used across all channels.
type Message struct {
	ID          string       `json:"id,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Reply       *ReplyRef    `json:"reply,omitempty"`
}

// IsEmpty reports whether the message carries no content.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}

// PlainText returns the trimmed message text.
func (m Message) PlainText() string {
	return strings.TrimSpace(m.Text)
}

// QuotedMessageID returns the id of the message this one replies to, if any.
func (m Message) QuotedMessageID() string {
	if m.Reply == nil {
		return ""
	}
	return strings.TrimSpace(m.Reply.MessageID)
}

// ChannelConfig holds the credentials for one platform connection.
// Disabled: true means the channel is configured but not connected.
type ChannelConfig struct {
	ID          string         `json:"id"`
	ChannelType ChannelType    `json:"channel_type"`
	Credentials map[string]any `json:"credentials"`
	Disabled    bool           `json:"disabled"`
}
