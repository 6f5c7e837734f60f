package discord

import (
	"errors"
	"strings"

	"github.com/memohai/playbot/internal/channel"
)

// Type is the registered channel type for Discord.
const Type channel.ChannelType = "discord"

// Config holds the credentials of one bot.
type Config struct {
	BotToken string
}

var errMissingToken = errors.New("discord botToken is required")

func parseConfig(raw map[string]any) (Config, error) {
	token := channel.ReadString(raw, "botToken", "bot_token", "token")
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bot "))
	if token == "" {
		return Config{}, errMissingToken
	}
	return Config{BotToken: token}, nil
}
