// Package engine is the control side of the mixer: it owns the fixed deck
// slots, loads tracks off the audio thread and routes control commands to
// decks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/disgoorg/ffmpeg-audio"
	"github.com/gopxl/beep/v2"
	"github.com/sourcegraph/conc/pool"

	"djmix/config"
	"djmix/deck"
	"djmix/logger"
	"djmix/mixer"
	"djmix/source"
)

var (
	ErrNoSuchDeck = errors.New("no such deck")
	// ErrSuperseded is returned by a load that was overtaken by a newer load
	// into the same deck. Its result is discarded.
	ErrSuperseded = errors.New("load superseded by a newer load")
)

// slot is one deck position. mu serialises publishing loads into it.
type slot struct {
	deck *deck.Deck

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Engine owns the decks and the mixer they feed.
type Engine struct {
	config  *config.Config
	slots   []*slot
	mixer   *mixer.Mixer
	cache   *source.Cache
	monitor *Monitor
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errs    chan error
}

// New creates an engine with cfg.Engine.Decks decks rendering at
// cfg.Audio.SampleRate, all attached to one mixer.
func New(cfg *config.Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	decoder := source.NewDecoder(
		ffmpeg.WithExec(cfg.Decoder.FFmpeg),
		ffmpeg.WithSampleRate(cfg.Decoder.SampleRate),
	)

	e := &Engine{
		config: cfg,
		mixer:  mixer.New(),
		cache:  source.NewCache(decoder, cfg.Engine.CacheSize),
		logger: logger.WithComponent("engine"),
		ctx:    ctx,
		cancel: cancel,
		errs:   make(chan error, 16),
	}

	rate := beep.SampleRate(cfg.Audio.SampleRate)
	for i := 1; i <= cfg.Engine.Decks; i++ {
		d := deck.New(i, rate)
		// A fresh deck cannot be owned by another mixer.
		_ = e.mixer.Attach(d)
		e.slots = append(e.slots, &slot{deck: d})
	}
	e.monitor = NewMonitor(e, cfg.Engine.PollInterval, &e.wg)

	return e
}

// Start launches the background goroutines: end-of-track watchers and the
// status monitor.
func (e *Engine) Start() {
	e.logger.Info("Starting engine", slog.Int("decks", len(e.slots)))

	for _, s := range e.slots {
		d := s.deck
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			d.Watch(e.ctx)
		}()
	}
	e.monitor.Start(e.ctx)
}

// Stop cancels pending loads and background goroutines and waits for them.
func (e *Engine) Stop() {
	e.logger.Info("Stopping engine...")

	e.cancel()
	e.monitor.Stop()
	for _, s := range e.slots {
		s.deck.Stop()
	}
	e.wg.Wait()

	e.logger.Info("Engine stopped")
}

// Mixer returns the mixer all decks feed. Hand it to the audio output.
func (e *Engine) Mixer() *mixer.Mixer {
	return e.mixer
}

// Monitor returns the status monitor.
func (e *Engine) Monitor() *Monitor {
	return e.monitor
}

// Deck returns deck id, numbered from 1.
func (e *Engine) Deck(id int) (*deck.Deck, error) {
	s, err := e.slot(id)
	if err != nil {
		return nil, err
	}
	return s.deck, nil
}

// Decks returns every deck in slot order.
func (e *Engine) Decks() []*deck.Deck {
	decks := make([]*deck.Deck, len(e.slots))
	for i, s := range e.slots {
		decks[i] = s.deck
	}
	return decks
}

func (e *Engine) slot(id int) (*slot, error) {
	if id < 1 || id > len(e.slots) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchDeck, id)
	}
	return e.slots[id-1], nil
}

// Subscribe registers l on every deck.
func (e *Engine) Subscribe(l deck.Listener) (unsubscribe func()) {
	unsubs := make([]func(), 0, len(e.slots))
	for _, s := range e.slots {
		unsubs = append(unsubs, s.deck.Subscribe(l))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Load decodes path on the calling goroutine and publishes it to deck id.
// A later Load into the same deck cancels this one, which then returns
// ErrSuperseded. On failure the deck keeps its previous track.
func (e *Engine) Load(ctx context.Context, id int, path string) error {
	s, err := e.slot(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	e.logger.Debug("Loading track", slog.Int("deck", id), slog.String("path", path))
	src, err := e.cache.Load(ctx, path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		e.logger.Debug("Discarding superseded load", slog.Int("deck", id), slog.String("path", path))
		return ErrSuperseded
	}
	s.cancel = nil

	if err != nil {
		e.logger.Error("Failed to load track",
			slog.Int("deck", id),
			slog.String("path", path),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to load deck %d: %w", id, err)
	}

	s.deck.Load(src)
	return nil
}

// LoadAsync runs Load on its own goroutine. Failures other than
// ErrSuperseded are delivered on Error.
func (e *Engine) LoadAsync(id int, path string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := e.Load(e.ctx, id, path)
		if err == nil || errors.Is(err, ErrSuperseded) || e.ctx.Err() != nil {
			return
		}
		select {
		case e.errs <- err:
		default:
			e.logger.Warn("Dropping load error, channel full", slog.Any("error", err))
		}
	}()
}

// Error returns the channel on which asynchronous load failures are reported.
func (e *Engine) Error() <-chan error {
	return e.errs
}

// LoadAll loads several decks in parallel, keyed by deck id. It returns the
// combined errors of the loads that failed.
func (e *Engine) LoadAll(ctx context.Context, paths map[int]string) error {
	p := pool.New().WithErrors().WithMaxGoroutines(max(1, len(e.slots)))
	for id, path := range paths {
		p.Go(func() error {
			return e.Load(ctx, id, path)
		})
	}
	return p.Wait()
}

// ParamChange is a request to set one parameter on one deck.
type ParamChange struct {
	Deck  int
	Param deck.Param
	Value float64
}

// Apply sets a deck parameter. Invalid values are rejected with an error
// wrapping deck.ErrInvalidParameter.
func (e *Engine) Apply(c ParamChange) error {
	d, err := e.Deck(c.Deck)
	if err != nil {
		return err
	}
	if err := d.Set(c.Param, c.Value); err != nil {
		e.logger.Warn("Rejected parameter change",
			slog.Int("deck", c.Deck),
			slog.String("param", c.Param.String()),
			slog.Float64("value", c.Value),
		)
		return err
	}
	return nil
}

// Play starts deck id. It returns false when the deck has no track.
func (e *Engine) Play(id int) (bool, error) {
	d, err := e.Deck(id)
	if err != nil {
		return false, err
	}
	return d.Start(), nil
}

// Pause stops deck id at its current position.
func (e *Engine) Pause(id int) error {
	d, err := e.Deck(id)
	if err != nil {
		return err
	}
	d.Stop()
	return nil
}

// Seek moves deck id to seconds, clamped to the track.
func (e *Engine) Seek(id int, seconds float64) error {
	d, err := e.Deck(id)
	if err != nil {
		return err
	}
	d.Seek(seconds)
	return nil
}

// SeekRelative moves deck id to a fraction of its track.
func (e *Engine) SeekRelative(id int, fraction float64) error {
	d, err := e.Deck(id)
	if err != nil {
		return err
	}
	return d.SeekRelative(fraction)
}

// Forward jumps deck id ahead by the configured nudge step.
func (e *Engine) Forward(id int) error {
	return e.nudge(id, e.config.Engine.NudgeStep)
}

// Rewind jumps deck id back by the configured nudge step.
func (e *Engine) Rewind(id int) error {
	return e.nudge(id, -e.config.Engine.NudgeStep)
}

func (e *Engine) nudge(id int, delta float64) error {
	d, err := e.Deck(id)
	if err != nil {
		return err
	}
	d.Nudge(delta)
	return nil
}

// Status returns the state of deck id.
func (e *Engine) Status(id int) (deck.Status, error) {
	d, err := e.Deck(id)
	if err != nil {
		return deck.Status{}, err
	}
	return d.Status(), nil
}

// Statuses returns the state of every deck.
func (e *Engine) Statuses() []deck.Status {
	statuses := make([]deck.Status, len(e.slots))
	for i, s := range e.slots {
		statuses[i] = s.deck.Status()
	}
	return statuses
}
