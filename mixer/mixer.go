// Package mixer sums the output of several decks into one stream.
package mixer

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/gopxl/beep/v2"
	"go.uber.org/atomic"

	"djmix/deck"
	"djmix/effects"
)

var (
	ErrAlreadyAttached = errors.New("deck is attached to another mixer")
	ErrNotAttached     = errors.New("deck is not attached to this mixer")
)

// Mixer sums attached decks and soft clips the result. The attached set is
// replaced wholesale on every change, so Stream never takes a lock.
type Mixer struct {
	mu     sync.Mutex
	decks  atomic.Pointer[[]*deck.Deck]
	logger *slog.Logger

	// Owned by the audio thread.
	scratch [][2]float64
}

var _ beep.Streamer = (*Mixer)(nil)

// New creates an empty mixer.
func New() *Mixer {
	m := &Mixer{
		logger: slog.With("component", "mixer"),
	}
	m.decks.Store(&[]*deck.Deck{})
	return m
}

// Attach adds d to the mix. Attaching a deck twice to the same mixer is a
// no-op; attaching a deck owned by another mixer fails.
func (m *Mixer) Attach(d *deck.Deck) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !d.Bind(m) {
		return ErrAlreadyAttached
	}
	current := *m.decks.Load()
	if slices.Contains(current, d) {
		return nil
	}
	next := append(slices.Clone(current), d)
	m.decks.Store(&next)

	m.logger.Debug("Attached deck", slog.Int("deck", d.ID()), slog.Int("decks", len(next)))
	return nil
}

// Detach removes d from the mix. A block already being rendered may still
// include it.
func (m *Mixer) Detach(d *deck.Deck) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !d.Unbind(m) {
		return ErrNotAttached
	}
	next := slices.DeleteFunc(slices.Clone(*m.decks.Load()), func(x *deck.Deck) bool {
		return x == d
	})
	m.decks.Store(&next)

	m.logger.Debug("Detached deck", slog.Int("deck", d.ID()), slog.Int("decks", len(next)))
	return nil
}

// Decks returns the attached decks.
func (m *Mixer) Decks() []*deck.Deck {
	return slices.Clone(*m.decks.Load())
}

// Stream renders the next block of the mix. It must only be called from
// one goroutine at a time.
func (m *Mixer) Stream(samples [][2]float64) (int, bool) {
	clear(samples)

	if cap(m.scratch) < len(samples) {
		m.scratch = make([][2]float64, len(samples))
	}
	buf := m.scratch[:len(samples)]

	for _, d := range *m.decks.Load() {
		d.Stream(buf)
		for i := range samples {
			samples[i][0] += buf[i][0]
			samples[i][1] += buf[i][1]
		}
	}

	effects.SoftClipBlock(samples)
	return len(samples), true
}

// Err implements beep.Streamer.
func (m *Mixer) Err() error {
	return nil
}

// ProduceBlock renders n frames of the mix into a new buffer.
func (m *Mixer) ProduceBlock(n int) [][2]float64 {
	block := make([][2]float64, n)
	m.Stream(block)
	return block
}
