package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"djmix/deck"
	"djmix/engine"
	"djmix/logger"
)

// Master is the output stage the console can pause and turn down.
type Master interface {
	SetVolume(level float64) error
	Pause()
	Resume()
}

// Console executes commands against an engine and writes replies to out.
type Console struct {
	engine *engine.Engine
	master Master
	out    io.Writer
	logger *slog.Logger
}

// New creates a console. master may be nil, in which case volume, pause and
// resume report an error.
func New(e *engine.Engine, master Master, out io.Writer) *Console {
	return &Console{
		engine: e,
		master: master,
		out:    out,
		logger: logger.WithComponent("console"),
	}
}

// Run reads commands from in until quit, EOF or ctx is cancelled. Bad
// commands are reported on out and do not stop the loop.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := c.Handle(ctx, line); err != nil {
				if errors.Is(err, ErrQuit) {
					return nil
				}
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

// Handle parses and executes a single line.
func (c *Console) Handle(ctx context.Context, line string) error {
	cmd, err := Parse(line)
	if err != nil {
		return err
	}
	c.logger.Debug("Executing command", slog.String("verb", string(cmd.Verb)), slog.Int("deck", cmd.Deck))
	return c.Exec(ctx, cmd)
}

// Exec runs cmd. Loads run synchronously on the calling goroutine.
func (c *Console) Exec(ctx context.Context, cmd Command) error {
	e := c.engine

	switch cmd.Verb {
	case VerbLoad:
		if err := e.Load(ctx, cmd.Deck, cmd.Path); err != nil {
			return err
		}
		st, _ := e.Status(cmd.Deck)
		c.printf("deck %d: loaded %s (%.1fs)\n", cmd.Deck, st.Track, st.LengthSeconds)
	case VerbEject:
		d, err := e.Deck(cmd.Deck)
		if err != nil {
			return err
		}
		d.Unload()
	case VerbPlay:
		ok, err := e.Play(cmd.Deck)
		if err != nil {
			return err
		}
		if !ok {
			c.printf("deck %d: nothing loaded\n", cmd.Deck)
		}
	case VerbStop:
		return e.Pause(cmd.Deck)
	case VerbSeek:
		return e.Seek(cmd.Deck, cmd.Value)
	case VerbPos:
		return e.SeekRelative(cmd.Deck, cmd.Value)
	case VerbFwd:
		return e.Forward(cmd.Deck)
	case VerbRew:
		return e.Rewind(cmd.Deck)
	case VerbSet:
		return e.Apply(engine.ParamChange{Deck: cmd.Deck, Param: cmd.Param, Value: cmd.Value})
	case VerbVolume, VerbPause, VerbResume:
		return c.execMaster(cmd)
	case VerbStatus:
		for _, st := range e.Statuses() {
			c.printf("%s\n", FormatStatus(st))
		}
	case VerbHelp:
		c.printf("%s\n", helpText)
	case VerbQuit:
		return ErrQuit
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Verb)
	}
	return nil
}

func (c *Console) execMaster(cmd Command) error {
	if c.master == nil {
		return errors.New("no audio output")
	}
	switch cmd.Verb {
	case VerbVolume:
		return c.master.SetVolume(cmd.Value)
	case VerbPause:
		c.master.Pause()
	case VerbResume:
		c.master.Resume()
	}
	return nil
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// FormatStatus renders a deck status as one line.
func FormatStatus(st deck.Status) string {
	if !st.Loaded {
		return fmt.Sprintf("deck %d: empty", st.Deck)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "deck %d: %s [%s] %.1f/%.1fs (%.0f%%)",
		st.Deck, st.Track, st.State, st.PositionSeconds, st.LengthSeconds, st.Position*100)
	for _, p := range deck.AllParams() {
		fmt.Fprintf(&b, " %s=%.2f", p, st.Params.Get(p))
	}
	return b.String()
}

const helpText = `commands:
  load <deck> <path>       decode a track into a deck
  eject <deck>             unload a deck
  play|stop <deck>         start or stop a deck
  seek <deck> <seconds>    jump to a time
  pos <deck> <0-1>         jump to a fraction of the track
  fwd|rew <deck>           jump forward or back
  gain|speed|wet|room|damp|dry|freeze <deck> <value>
  volume <0-1>             master volume
  pause|resume             master pause
  status                   show all decks
  quit`
