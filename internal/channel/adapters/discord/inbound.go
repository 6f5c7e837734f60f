package discord

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/playbot/internal/channel"
)

// messageToInbound converts a created message. Messages from bots and messages
// with no text are dropped.
func messageToInbound(m *discordgo.Message) (channel.InboundMessage, bool) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return channel.InboundMessage{}, false
	}
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return channel.InboundMessage{}, false
	}
	msg := channel.InboundMessage{
		Channel: Type,
		Message: channel.Message{
			ID:   m.ID,
			Text: text,
		},
		Sender: channel.Identity{
			SubjectID:   m.Author.ID,
			DisplayName: displayName(m.Author),
		},
		Conversation: channel.Conversation{
			ID:   m.ChannelID,
			Type: conversationType(m.GuildID),
		},
		ReceivedAt: time.Now().UTC(),
	}
	if ref := m.MessageReference; ref != nil && strings.TrimSpace(ref.MessageID) != "" {
		target := ref.ChannelID
		if target == "" {
			target = m.ChannelID
		}
		msg.Message.Reply = &channel.ReplyRef{Target: target, MessageID: ref.MessageID}
	}
	return msg, true
}

// reactionToInbound converts an added reaction. The bot's own reactions are
// dropped so status markers do not loop back as decisions.
func reactionToInbound(r *discordgo.MessageReaction, botID string) (channel.InboundMessage, bool) {
	if r == nil || strings.TrimSpace(r.MessageID) == "" {
		return channel.InboundMessage{}, false
	}
	if botID != "" && r.UserID == botID {
		return channel.InboundMessage{}, false
	}
	emoji := strings.TrimSpace(r.Emoji.Name)
	if emoji == "" || r.Emoji.ID != "" {
		// Custom guild emoji never map to an option.
		return channel.InboundMessage{}, false
	}
	return channel.InboundMessage{
		Channel: Type,
		Reaction: &channel.Reaction{
			MessageID: r.MessageID,
			Emoji:     emoji,
		},
		Sender: channel.Identity{SubjectID: r.UserID},
		Conversation: channel.Conversation{
			ID:   r.ChannelID,
			Type: conversationType(r.GuildID),
		},
		ReceivedAt: time.Now().UTC(),
	}, true
}

func conversationType(guildID string) string {
	if guildID == "" {
		return "direct"
	}
	return "guild"
}

func displayName(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.GlobalName); name != "" {
		return name
	}
	return u.Username
}
