package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/playbot/internal/channel"
)

const (
	inboundDedupTTL   = time.Minute
	discordMaxMessage = 2000
)

// messageSession is the subset of *discordgo.Session used for outbound calls.
type messageSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
}

// DiscordAdapter implements channel.Sender, channel.Reactor and channel.Receiver for Discord.
type DiscordAdapter struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	sessions        map[string]*discordgo.Session // keyed by bot token
	handlerRemovers map[string][]func()           // keyed by bot token
	seenEvents      map[string]time.Time          // keyed by token:event
}

// NewDiscordAdapter creates a DiscordAdapter with the given logger.
func NewDiscordAdapter(log *slog.Logger) *DiscordAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &DiscordAdapter{
		logger:          log.With(slog.String("adapter", "discord")),
		sessions:        make(map[string]*discordgo.Session),
		handlerRemovers: make(map[string][]func()),
		seenEvents:      make(map[string]time.Time),
	}
}

// Type returns the Discord channel type.
func (a *DiscordAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Discord channel metadata.
func (a *DiscordAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Discord",
		Capabilities: channel.ChannelCapabilities{
			Text:             true,
			Attachments:      true,
			Media:            true,
			Reply:            true,
			Reactions:        true,
			InboundReactions: true,
		},
		OutboundPolicy: channel.OutboundPolicy{
			TextChunkLimit: discordMaxMessage,
		},
	}
}

func (a *DiscordAdapter) getOrCreateSession(token, configID string) (*discordgo.Session, error) {
	a.mu.RLock()
	session, ok := a.sessions[token]
	a.mu.RUnlock()
	if ok {
		return session, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[token]; ok {
		return s, nil
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		a.logger.Error("create session failed", slog.String("config_id", configID), slog.Any("error", err))
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessageReactions |
		discordgo.IntentsMessageContent

	a.sessions[token] = session
	return session, nil
}

func (a *DiscordAdapter) sessionFor(cfg channel.ChannelConfig) (*discordgo.Session, error) {
	discordCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		a.logger.Error("decode config failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
		return nil, err
	}
	return a.getOrCreateSession(discordCfg.BotToken, cfg.ID)
}

// Connect opens the gateway and forwards created messages and added reactions.
func (a *DiscordAdapter) Connect(ctx context.Context, cfg channel.ChannelConfig, handler channel.InboundHandler) (channel.Connection, error) {
	a.logger.Info("start", slog.String("config_id", cfg.ID))

	discordCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	session, err := a.getOrCreateSession(discordCfg.BotToken, cfg.ID)
	if err != nil {
		return nil, err
	}

	dispatch := func(key string, msg channel.InboundMessage) {
		if ctx.Err() != nil {
			return
		}
		if a.isDuplicateInbound(discordCfg.BotToken, key) {
			return
		}
		a.logger.Debug("inbound received",
			slog.String("config_id", cfg.ID),
			slog.String("channel_id", msg.Conversation.ID),
			slog.Bool("reaction", msg.IsReaction()),
		)
		go func() {
			if err := handler(ctx, cfg, msg); err != nil {
				a.logger.Error("handle inbound failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
			}
		}()
	}

	removeMessage := session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		msg, ok := messageToInbound(m.Message)
		if !ok {
			return
		}
		dispatch("m:"+m.ID, msg)
	})
	removeReaction := session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		msg, ok := reactionToInbound(r.MessageReaction, botUserID(s))
		if !ok {
			return
		}
		dispatch("r:"+r.MessageID+":"+r.UserID+":"+msg.Reaction.Emoji, msg)
	})
	a.swapHandlerRemovers(discordCfg.BotToken, removeMessage, removeReaction)

	if err := session.Open(); err != nil {
		if remove := a.clearSessionState(discordCfg.BotToken); remove != nil {
			remove()
		}
		return nil, fmt.Errorf("discord open connection: %w", err)
	}

	stop := func(stopCtx context.Context) error {
		a.logger.Info("stop", slog.String("config_id", cfg.ID))
		if remove := a.clearSessionState(discordCfg.BotToken); remove != nil {
			remove()
		}
		return session.Close()
	}
	return channel.NewConnection(cfg, stop), nil
}

// Send delivers an outbound message and returns the id of the first message sent.
// Attachments are uploaded together with the text in a single message.
func (a *DiscordAdapter) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) (string, error) {
	channelID := strings.TrimSpace(msg.Target)
	if channelID == "" {
		return "", fmt.Errorf("discord target is required")
	}
	if msg.Message.IsEmpty() {
		return "", fmt.Errorf("message is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	session, err := a.sessionFor(cfg)
	if err != nil {
		return "", err
	}
	return sendDiscordMessage(session, channelID, msg.Message)
}

// React adds emoji to the message as the bot.
func (a *DiscordAdapter) React(ctx context.Context, cfg channel.ChannelConfig, target string, messageID string, emoji string) error {
	if strings.TrimSpace(target) == "" || strings.TrimSpace(messageID) == "" {
		return fmt.Errorf("discord reaction target and message id are required")
	}
	session, err := a.sessionFor(cfg)
	if err != nil {
		return err
	}
	return session.MessageReactionAdd(target, messageID, emoji)
}

func sendDiscordMessage(session messageSession, channelID string, message channel.Message) (string, error) {
	data, closers, err := buildMessageSend(channelID, message)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if err != nil {
		return "", err
	}
	sent, err := session.ChannelMessageSendComplex(channelID, data)
	if err != nil {
		return "", err
	}
	if sent == nil {
		return "", nil
	}
	return sent.ID, nil
}

// buildMessageSend assembles the payload. Callers must close the returned
// closers once the request is done, even on error.
func buildMessageSend(channelID string, message channel.Message) (*discordgo.MessageSend, []io.Closer, error) {
	text := message.PlainText()
	if text == "" && len(message.Attachments) > 0 {
		text = strings.TrimSpace(message.Attachments[0].Caption)
	}
	data := &discordgo.MessageSend{
		Content:         truncateDiscordText(text),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if message.Reply != nil && strings.TrimSpace(message.Reply.MessageID) != "" {
		data.Reference = &discordgo.MessageReference{
			ChannelID: channelID,
			MessageID: message.Reply.MessageID,
		}
	}
	var closers []io.Closer
	for i, att := range message.Attachments {
		file, closer, err := attachmentFile(att, i)
		if closer != nil {
			closers = append(closers, closer)
		}
		if err != nil {
			return nil, closers, err
		}
		data.Files = append(data.Files, file)
	}
	return data, closers, nil
}

func attachmentFile(att channel.Attachment, index int) (*discordgo.File, io.Closer, error) {
	name := strings.TrimSpace(att.Name)
	if name == "" && att.Path != "" {
		name = filepath.Base(att.Path)
	}
	if name == "" {
		name = fmt.Sprintf("attachment-%d", index+1)
	}
	switch {
	case strings.TrimSpace(att.Path) != "":
		f, err := os.Open(att.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open attachment: %w", err)
		}
		return &discordgo.File{Name: name, ContentType: att.Mime, Reader: f}, f, nil
	case len(att.Data) > 0:
		return &discordgo.File{Name: name, ContentType: att.Mime, Reader: bytes.NewReader(att.Data)}, nil, nil
	default:
		return nil, nil, fmt.Errorf("discord attachment %q has no local source", name)
	}
}

func truncateDiscordText(text string) string {
	if utf8.RuneCountInString(text) <= discordMaxMessage {
		return text
	}
	runes := []rune(text)
	return string(runes[:discordMaxMessage-3]) + "..."
}

func botUserID(s *discordgo.Session) string {
	if s == nil || s.State == nil || s.State.User == nil {
		return ""
	}
	return s.State.User.ID
}

func (a *DiscordAdapter) isDuplicateInbound(token, key string) bool {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(key) == "" {
		return false
	}

	now := time.Now().UTC()
	expireBefore := now.Add(-inboundDedupTTL)

	a.mu.Lock()
	defer a.mu.Unlock()

	for k, seenAt := range a.seenEvents {
		if seenAt.Before(expireBefore) {
			delete(a.seenEvents, k)
		}
	}

	seenKey := token + ":" + key
	if _, ok := a.seenEvents[seenKey]; ok {
		return true
	}
	a.seenEvents[seenKey] = now
	return false
}

func (a *DiscordAdapter) swapHandlerRemovers(token string, removers ...func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, old := range a.handlerRemovers[token] {
		old()
	}
	a.handlerRemovers[token] = removers
}

func (a *DiscordAdapter) clearSessionState(token string) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	removers := a.handlerRemovers[token]
	delete(a.handlerRemovers, token)
	delete(a.sessions, token)
	if len(removers) == 0 {
		return nil
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}
