package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"djmix/config"
	"djmix/console"
	"djmix/deck"
	"djmix/engine"
	"djmix/logger"
	"djmix/playback"

	"github.com/gopxl/beep/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "djmix [track...]",
	Short: "A two-deck DJ mixing engine",
	Long: `djmix mixes tracks on independent decks with per-deck speed, gain and reverb,
and plays the result through the default sound card.

Tracks given on the command line are loaded into decks 1, 2, ... in order.
The decks are then driven with commands read from stdin; type "help" for the list.`,
	Args: cobra.ArbitraryArgs,
	RunE: runPlayer,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Int("decks", 2, "number of decks")
	rootCmd.PersistentFlags().Int("sample-rate", 44100, "output sample rate")
	rootCmd.PersistentFlags().String("ffmpeg", "ffmpeg", "ffmpeg executable used for formats without a native decoder")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	// Local flags for the player
	rootCmd.Flags().Duration("buffer", 0, "sound card buffer length (default from config, 50ms)")
	rootCmd.Flags().Float64("volume", 1, "master volume between 0 and 1")
	rootCmd.Flags().Bool("autoplay", false, "start every loaded deck immediately")

	// Bind flags to viper
	viper.BindPFlag("engine.decks", rootCmd.PersistentFlags().Lookup("decks"))
	viper.BindPFlag("audio.sample_rate", rootCmd.PersistentFlags().Lookup("sample-rate"))
	viper.BindPFlag("decoder.ffmpeg", rootCmd.PersistentFlags().Lookup("ffmpeg"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("audio.buffer", rootCmd.Flags().Lookup("buffer"))
	viper.BindPFlag("audio.volume", rootCmd.Flags().Lookup("volume"))
}

// initConfig applies flags that override several keys at once
func initConfig() {
	if verbose {
		viper.Set("logging.level", "debug")
	}
}

// loadConfig loads, validates and applies the configuration shared by every
// command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cfg, nil
}

// loadTracks puts the given tracks into decks 1, 2, ... in parallel.
func loadTracks(ctx context.Context, e *engine.Engine, cfg *config.Config, tracks []string) error {
	if len(tracks) > cfg.Engine.Decks {
		return fmt.Errorf("%d tracks given but only %d decks", len(tracks), cfg.Engine.Decks)
	}

	paths := make(map[int]string, len(tracks))
	for i, track := range tracks {
		paths[i+1] = track
	}
	return e.LoadAll(ctx, paths)
}

// runPlayer starts the engine, plays the mix and runs the console on stdin
func runPlayer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("player")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create the engine and load the initial tracks
	e := engine.New(cfg)
	if err := loadTracks(ctx, e, cfg, args); err != nil {
		return err
	}

	e.Subscribe(deck.ListenerFunc(func(ev deck.Event) {
		switch ev.Kind {
		case deck.Loaded:
			log.Info("Track loaded", slog.Int("deck", ev.Deck), slog.String("track", ev.Track))
		case deck.Finished:
			log.Info("Track finished", slog.Int("deck", ev.Deck))
		}
	}))
	e.Monitor().OnStatus(func(statuses []deck.Status) {
		for _, st := range statuses {
			if st.Playing() {
				log.Debug("Deck position",
					slog.Int("deck", st.Deck),
					slog.Float64("seconds", st.PositionSeconds),
					slog.Float64("relative", st.Position),
				)
			}
		}
	})

	// Open the sound card
	out, err := playback.New(beep.SampleRate(cfg.Audio.SampleRate), cfg.Audio.Buffer)
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	defer out.Close()

	if err := out.SetVolume(cfg.Audio.Volume); err != nil {
		return err
	}
	if err := out.Play(e.Mixer()); err != nil {
		return fmt.Errorf("failed to start audio output: %w", err)
	}

	e.Start()
	defer e.Stop()

	if autoplay, _ := cmd.Flags().GetBool("autoplay"); autoplay {
		for i := range args {
			e.Play(i + 1)
		}
	}

	// Log asynchronous failures without stopping the player
	go func() {
		for {
			select {
			case err := <-e.Error():
				log.Error("Background load failed", slog.Any("error", err))
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), `djmix ready, type "help" for commands`)
	c := console.New(e, out, cmd.OutOrStdout())
	if err := c.Run(ctx, cmd.InOrStdin()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("console failed: %w", err)
	}

	log.Info("Shutting down")
	return nil
}
