package cmd

import (
	"fmt"
	"log/slog"

	"djmix/config"
	"djmix/logger"

	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Commands for inspecting and validating djmix configuration.",
}

// configValidateCmd validates the current configuration
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the current configuration file, environment variables and flags.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Setup("info", "text"); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			slog.Error("Configuration validation failed", slog.Any("error", err))
			return err
		}

		slog.Info("Configuration is valid")
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
		return nil
	},
}

// configShowCmd shows the current configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration after merging file, environment and flags.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Setup("info", "text"); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Current Configuration:")
		fmt.Fprintf(out, "  Audio:\n")
		fmt.Fprintf(out, "    Sample rate: %d\n", cfg.Audio.SampleRate)
		fmt.Fprintf(out, "    Buffer: %s\n", cfg.Audio.Buffer)
		fmt.Fprintf(out, "    Volume: %.2f\n", cfg.Audio.Volume)
		fmt.Fprintf(out, "  Engine:\n")
		fmt.Fprintf(out, "    Decks: %d\n", cfg.Engine.Decks)
		fmt.Fprintf(out, "    Poll interval: %s\n", cfg.Engine.PollInterval)
		fmt.Fprintf(out, "    Cache size: %d\n", cfg.Engine.CacheSize)
		fmt.Fprintf(out, "    Nudge step: %.2f\n", cfg.Engine.NudgeStep)
		fmt.Fprintf(out, "  Decoder:\n")
		fmt.Fprintf(out, "    FFmpeg: %s\n", cfg.Decoder.FFmpeg)
		fmt.Fprintf(out, "    Sample rate: %d\n", cfg.Decoder.SampleRate)
		fmt.Fprintf(out, "  Logging:\n")
		fmt.Fprintf(out, "    Level: %s\n", cfg.Logging.Level)
		fmt.Fprintf(out, "    Format: %s\n", cfg.Logging.Format)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
