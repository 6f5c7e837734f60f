package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/playbot/internal/channel"
)

// allowedUpdates includes message_reaction, which the library's Update type
// does not model, so updates are fetched and decoded here.
const allowedUpdates = `["message","message_reaction"]`

type update struct {
	UpdateID        int               `json:"update_id"`
	Message         *tgbotapi.Message `json:"message"`
	MessageReaction *messageReaction  `json:"message_reaction"`
}

type messageReaction struct {
	Chat        tgbotapi.Chat    `json:"chat"`
	MessageID   int              `json:"message_id"`
	User        *tgbotapi.User   `json:"user"`
	ActorChat   *tgbotapi.Chat   `json:"actor_chat"`
	Date        int              `json:"date"`
	NewReaction []reactionTypeV1 `json:"new_reaction"`
}

type reactionTypeV1 struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

func fetchUpdates(bot *tgbotapi.BotAPI, offset, timeoutSeconds int) ([]update, error) {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", offset)
	params.AddNonZero("timeout", timeoutSeconds)
	params["allowed_updates"] = allowedUpdates
	resp, err := bot.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, err
	}
	var updates []update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

// toInbound converts an update into an inbound event. It reports false for
// updates the bot does not act on.
func toInbound(upd update) (channel.InboundMessage, bool) {
	switch {
	case upd.Message != nil:
		return messageToInbound(upd.Message)
	case upd.MessageReaction != nil:
		return reactionToInbound(upd.MessageReaction)
	default:
		return channel.InboundMessage{}, false
	}
}

func messageToInbound(msg *tgbotapi.Message) (channel.InboundMessage, bool) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" {
		return channel.InboundMessage{}, false
	}
	chatID, chatType, chatName := describeChat(msg.Chat)
	return channel.InboundMessage{
		Channel: Type,
		Message: channel.Message{
			ID:    strconv.Itoa(msg.MessageID),
			Text:  text,
			Reply: buildTelegramReplyRef(msg, chatID),
		},
		Sender:       resolveTelegramSender(msg.From, msg.SenderChat),
		Conversation: channel.Conversation{ID: chatID, Type: chatType, Name: chatName},
		ReceivedAt:   time.Unix(int64(msg.Date), 0).UTC(),
	}, true
}

func reactionToInbound(r *messageReaction) (channel.InboundMessage, bool) {
	emoji := ""
	for _, reaction := range r.NewReaction {
		if reaction.Type == "emoji" && strings.TrimSpace(reaction.Emoji) != "" {
			emoji = reaction.Emoji
			break
		}
	}
	// An empty new_reaction list is a removal.
	if emoji == "" {
		return channel.InboundMessage{}, false
	}
	chat := r.Chat
	chatID, chatType, chatName := describeChat(&chat)
	return channel.InboundMessage{
		Channel: Type,
		Reaction: &channel.Reaction{
			MessageID: strconv.Itoa(r.MessageID),
			Emoji:     emoji,
		},
		Sender:       resolveTelegramSender(r.User, r.ActorChat),
		Conversation: channel.Conversation{ID: chatID, Type: chatType, Name: chatName},
		ReceivedAt:   time.Unix(int64(r.Date), 0).UTC(),
	}, true
}

func describeChat(chat *tgbotapi.Chat) (id, kind, name string) {
	if chat == nil {
		return "", "", ""
	}
	name = strings.TrimSpace(chat.Title)
	if name == "" {
		name = strings.TrimSpace(chat.UserName)
	}
	return strconv.FormatInt(chat.ID, 10), strings.TrimSpace(chat.Type), name
}

func resolveTelegramSender(user *tgbotapi.User, senderChat *tgbotapi.Chat) channel.Identity {
	if user != nil {
		displayName := strings.TrimSpace(user.UserName)
		if displayName == "" {
			displayName = strings.TrimSpace(user.FirstName + " " + user.LastName)
		}
		return channel.Identity{SubjectID: strconv.FormatInt(user.ID, 10), DisplayName: displayName}
	}
	if senderChat != nil {
		displayName := strings.TrimSpace(senderChat.Title)
		if displayName == "" {
			displayName = strings.TrimSpace(senderChat.UserName)
		}
		return channel.Identity{SubjectID: strconv.FormatInt(senderChat.ID, 10), DisplayName: displayName}
	}
	return channel.Identity{}
}

func buildTelegramReplyRef(msg *tgbotapi.Message, chatID string) *channel.ReplyRef {
	if msg == nil || msg.ReplyToMessage == nil {
		return nil
	}
	return &channel.ReplyRef{
		MessageID: strconv.Itoa(msg.ReplyToMessage.MessageID),
		Target:    strings.TrimSpace(chatID),
	}
}
