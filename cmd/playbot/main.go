package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/playbot/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "playbot",
	Short:         "Chat bot that previews and delivers media on request",
	Long:          `playbot answers ".play <query>" in Telegram and Discord chats with a preview, then delivers audio or video chosen by reaction or reply.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(resolveConfigPath())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the configured chats and serve requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(resolveConfigPath())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "playbot", version.GetInfo())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (defaults to $CONFIG_PATH, then ./config.toml)")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("CONFIG_PATH")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
