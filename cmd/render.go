package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"djmix/console"
	"djmix/engine"
	"djmix/logger"
	"djmix/render"

	"github.com/gopxl/beep/v2"
	"github.com/spf13/cobra"
)

// renderCmd mixes tracks to a WAV file without a sound card
var renderCmd = &cobra.Command{
	Use:   "render track...",
	Short: "Mix tracks offline into a WAV file",
	Long: `Load the given tracks into decks 1, 2, ..., start them together and write the mix
to a 16-bit stereo WAV file.

Console commands passed with --exec are applied before rendering, for example:

  djmix render -o mix.wav --exec "speed 2 1.04" --exec "wet 1 0.3" a.mp3 b.flac`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringP("output", "o", "mix.wav", "output WAV file")
	renderCmd.Flags().Duration("duration", 0, "length of the mix (default is the longest track)")
	renderCmd.Flags().StringArray("exec", nil, "console command to run before rendering (repeatable)")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("render")

	output, _ := cmd.Flags().GetString("output")
	duration, _ := cmd.Flags().GetDuration("duration")
	script, _ := cmd.Flags().GetStringArray("exec")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e := engine.New(cfg)
	if err := loadTracks(ctx, e, cfg, args); err != nil {
		return err
	}

	c := console.New(e, nil, cmd.OutOrStdout())
	for _, line := range script {
		if err := c.Handle(ctx, line); err != nil {
			return fmt.Errorf("failed to run %q: %w", line, err)
		}
	}

	for i := range args {
		if _, err := e.Play(i + 1); err != nil {
			return err
		}
	}

	if duration <= 0 {
		for _, st := range e.Statuses() {
			remaining := st.LengthSeconds - st.PositionSeconds
			duration = max(duration, time.Duration(remaining*float64(time.Second)))
		}
	}
	if duration <= 0 {
		return errors.New("nothing to render")
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	defer f.Close()

	log.Info("Rendering mix", slog.String("output", output), slog.Duration("duration", duration))
	frames, err := render.ToWAV(f, e.Mixer(), beep.SampleRate(cfg.Audio.SampleRate), duration)
	if err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s\n", frames, output)
	return nil
}
