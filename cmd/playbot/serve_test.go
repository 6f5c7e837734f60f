package main

import (
	"testing"

	"github.com/memohai/playbot/internal/channel/adapters/discord"
	"github.com/memohai/playbot/internal/channel/adapters/telegram"
	"github.com/memohai/playbot/internal/config"
)

func TestChannelConfigs(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Telegram.Enabled = true
	cfg.Telegram.Token = "tg"

	got := channelConfigs(cfg)
	if len(got) != 2 {
		t.Fatalf("expected two channel configs, got %d", len(got))
	}
	if got[0].ChannelType != telegram.Type || got[0].Disabled || got[0].Credentials["botToken"] != "tg" {
		t.Fatalf("unexpected telegram config: %+v", got[0])
	}
	if got[1].ChannelType != discord.Type || !got[1].Disabled {
		t.Fatalf("discord should be disabled: %+v", got[1])
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/playbot.toml")
	configPath = ""
	if got := resolveConfigPath(); got != "/etc/playbot.toml" {
		t.Fatalf("expected env path, got %q", got)
	}
	configPath = "local.toml"
	t.Cleanup(func() { configPath = "" })
	if got := resolveConfigPath(); got != "local.toml" {
		t.Fatalf("flag should win, got %q", got)
	}
}
