package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/playbot/internal/channel"
)

const (
	telegramMaxMessageLength = 4096
	telegramMaxCaptionLength = 1024
	pollTimeoutSeconds       = 30
	pollRetryDelay           = 3 * time.Second
)

// TelegramAdapter implements channel.Sender, channel.Reactor and channel.Receiver for Telegram.
type TelegramAdapter struct {
	logger *slog.Logger
	client *http.Client
	mu     sync.RWMutex
	bots   map[string]*tgbotapi.BotAPI // keyed by bot token
}

// NewTelegramAdapter creates a TelegramAdapter with the given logger.
func NewTelegramAdapter(log *slog.Logger) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	adapter := &TelegramAdapter{
		logger: log.With(slog.String("adapter", "telegram")),
		client: &http.Client{},
		bots:   make(map[string]*tgbotapi.BotAPI),
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	return adapter
}

func (a *TelegramAdapter) getOrCreateBot(cfg Config, configID string) (*tgbotapi.BotAPI, error) {
	a.mu.RLock()
	bot, ok := a.bots[cfg.BotToken]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[cfg.BotToken]; ok {
		return bot, nil
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, a.client)
	if err != nil {
		a.logger.Error("create bot failed", slog.String("config_id", configID), slog.Any("error", err))
		return nil, err
	}
	a.bots[cfg.BotToken] = bot
	return bot, nil
}

func (a *TelegramAdapter) botFor(cfg channel.ChannelConfig) (*tgbotapi.BotAPI, error) {
	telegramCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		a.logger.Error("decode config failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
		return nil, err
	}
	return a.getOrCreateBot(telegramCfg, cfg.ID)
}

// Type returns the Telegram channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Telegram channel metadata.
func (a *TelegramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Telegram",
		Capabilities: channel.ChannelCapabilities{
			Text:             true,
			Attachments:      true,
			Media:            true,
			Reply:            true,
			Reactions:        true,
			InboundReactions: true,
		},
		OutboundPolicy: channel.OutboundPolicy{
			TextChunkLimit: telegramMaxMessageLength,
		},
	}
}

// Connect starts long-polling for messages and reactions and forwards them to the handler.
// Reactions are only delivered in groups where the bot is an administrator.
func (a *TelegramAdapter) Connect(ctx context.Context, cfg channel.ChannelConfig, handler channel.InboundHandler) (channel.Connection, error) {
	a.logger.Info("start", slog.String("config_id", cfg.ID))
	bot, err := a.botFor(cfg)
	if err != nil {
		return nil, err
	}
	connCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		offset := 0
		for {
			if connCtx.Err() != nil {
				return
			}
			updates, err := fetchUpdates(bot, offset, pollTimeoutSeconds)
			if err != nil {
				a.logger.Warn("get updates failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
				select {
				case <-connCtx.Done():
					return
				case <-time.After(pollRetryDelay):
				}
				continue
			}
			for _, upd := range updates {
				if upd.UpdateID >= offset {
					offset = upd.UpdateID + 1
				}
				msg, ok := toInbound(upd)
				if !ok {
					continue
				}
				a.logger.Debug("inbound received",
					slog.String("config_id", cfg.ID),
					slog.String("chat_id", msg.Conversation.ID),
					slog.Bool("reaction", msg.IsReaction()),
				)
				go func() {
					if err := handler(connCtx, cfg, msg); err != nil {
						a.logger.Error("handle inbound failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
					}
				}()
			}
		}
	}()

	stop := func(stopCtx context.Context) error {
		a.logger.Info("stop", slog.String("config_id", cfg.ID))
		cancel()
		// The in-flight long poll is not cancellable; wait for it unless the
		// caller gives up first.
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
	return channel.NewConnection(cfg, stop), nil
}

// Send delivers an outbound message and returns the id of the sent message.
// With attachments, the first one carries the reply and the text as caption.
func (a *TelegramAdapter) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) (string, error) {
	to := strings.TrimSpace(msg.Target)
	if to == "" {
		return "", fmt.Errorf("telegram target is required")
	}
	if msg.Message.IsEmpty() {
		return "", fmt.Errorf("message is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	bot, err := a.botFor(cfg)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(msg.Message.PlainText())
	replyTo := parseReplyToMessageID(msg.Message.Reply)
	if len(msg.Message.Attachments) == 0 {
		chattable, err := buildTelegramText(to, text, replyTo)
		if err != nil {
			return "", err
		}
		return sendChattable(bot, chattable)
	}

	firstID := ""
	for i, att := range msg.Message.Attachments {
		caption := strings.TrimSpace(att.Caption)
		if i == 0 && caption == "" {
			caption = text
		}
		applyReply := replyTo
		if i > 0 {
			applyReply = 0
		}
		chattable, err := buildTelegramAttachment(to, att, caption, applyReply)
		if err != nil {
			return "", err
		}
		id, err := sendChattable(bot, chattable)
		if err != nil {
			a.logger.Error("send attachment failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
			return firstID, err
		}
		if firstID == "" {
			firstID = id
		}
	}
	return firstID, nil
}

// React sets the bot's reaction on a message. Telegram keeps a single bot
// reaction per message, so a new one replaces the previous.
func (a *TelegramAdapter) React(ctx context.Context, cfg channel.ChannelConfig, target string, messageID string, emoji string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := a.botFor(cfg)
	if err != nil {
		return err
	}
	return setTelegramReaction(bot, target, messageID, emoji)
}

func sendChattable(bot *tgbotapi.BotAPI, c tgbotapi.Chattable) (string, error) {
	sent, err := bot.Send(c)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(sent.MessageID), nil
}

func setTelegramReaction(bot *tgbotapi.BotAPI, chatID, messageID, emoji string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("chat_id", chatID)
	params.AddNonEmpty("message_id", messageID)
	params.AddNonEmpty("reaction", fmt.Sprintf(`[{"type":"emoji","emoji":%q}]`, emoji))
	_, err := bot.MakeRequest("setMessageReaction", params)
	return err
}

func parseReplyToMessageID(reply *channel.ReplyRef) int {
	if reply == nil {
		return 0
	}
	raw := strings.TrimSpace(reply.MessageID)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

var errInvalidTarget = errors.New("telegram target must be @username or chat_id")

// baseChat addresses target, which is either a numeric chat id or @channel.
func baseChat(target string, replyTo int) (tgbotapi.BaseChat, error) {
	base := tgbotapi.BaseChat{ReplyToMessageID: replyTo}
	if strings.HasPrefix(target, "@") {
		base.ChannelUsername = target
		return base, nil
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return tgbotapi.BaseChat{}, errInvalidTarget
	}
	base.ChatID = chatID
	return base, nil
}

func buildTelegramText(target, text string, replyTo int) (tgbotapi.MessageConfig, error) {
	base, err := baseChat(target, replyTo)
	if err != nil {
		return tgbotapi.MessageConfig{}, err
	}
	return tgbotapi.MessageConfig{
		BaseChat:              base,
		Text:                  truncateTelegramText(sanitizeTelegramText(text), telegramMaxMessageLength),
		DisableWebPagePreview: true,
	}, nil
}

func attachmentFile(att channel.Attachment) (tgbotapi.RequestFileData, error) {
	switch {
	case strings.TrimSpace(att.Path) != "":
		return tgbotapi.FilePath(att.Path), nil
	case len(att.Data) > 0:
		return tgbotapi.FileBytes{Name: att.Name, Bytes: att.Data}, nil
	case strings.TrimSpace(att.URL) != "":
		return tgbotapi.FileURL(att.URL), nil
	default:
		return nil, fmt.Errorf("attachment reference is required")
	}
}

func buildTelegramAttachment(target string, att channel.Attachment, caption string, replyTo int) (tgbotapi.Chattable, error) {
	file, err := attachmentFile(att)
	if err != nil {
		return nil, err
	}
	if path, ok := file.(tgbotapi.FilePath); ok && att.Name != "" {
		// Upload under the display name rather than the temp file's uuid.
		file = namedFile{path: string(path), name: att.Name}
	}
	base, err := baseChat(target, replyTo)
	if err != nil {
		return nil, err
	}
	caption = truncateTelegramText(sanitizeTelegramText(caption), telegramMaxCaptionLength)
	baseFile := tgbotapi.BaseFile{BaseChat: base, File: file}
	switch att.Type {
	case channel.AttachmentImage:
		return tgbotapi.PhotoConfig{BaseFile: baseFile, Caption: caption}, nil
	case channel.AttachmentAudio:
		return tgbotapi.AudioConfig{BaseFile: baseFile, Caption: caption, Title: strings.TrimSuffix(att.Name, extOf(att.Name))}, nil
	case channel.AttachmentVideo:
		return tgbotapi.VideoConfig{BaseFile: baseFile, Caption: caption, SupportsStreaming: true}, nil
	case channel.AttachmentFile, "":
		return tgbotapi.DocumentConfig{BaseFile: baseFile, Caption: caption}, nil
	default:
		return nil, fmt.Errorf("unsupported attachment type: %s", att.Type)
	}
}

func extOf(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return name[idx:]
	}
	return ""
}

// sanitizeTelegramText ensures text is valid UTF-8 for the Telegram API.
func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateTelegramText truncates text to limit bytes on a rune boundary,
// appending "..." when truncation occurs.
func truncateTelegramText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	const suffix = "..."
	cut := limit - len(suffix)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + suffix
}
