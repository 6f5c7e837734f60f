package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/playbot/internal/channel"
)

// Type is the registered channel type for Telegram.
const Type channel.ChannelType = "telegram"

// Config holds the credentials of one bot.
type Config struct {
	BotToken    string
	APIEndpoint string
}

var errMissingToken = errors.New("telegram botToken is required")

func parseConfig(raw map[string]any) (Config, error) {
	cfg := Config{
		BotToken:    channel.ReadString(raw, "botToken", "bot_token", "token"),
		APIEndpoint: channel.ReadString(raw, "apiEndpoint", "api_endpoint"),
	}
	if cfg.BotToken == "" {
		return Config{}, errMissingToken
	}
	if cfg.APIEndpoint != "" && strings.Count(cfg.APIEndpoint, "%s") != 2 {
		return Config{}, fmt.Errorf("telegram apiEndpoint must contain two %%s placeholders (token, method)")
	}
	return cfg, nil
}

// slogBotLogger routes the library's internal logging through slog.
type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
