// Package deck implements one player channel: a transport whose output is
// resampled for speed, passed through a reverb insert and scaled by gain.
//
// Parameter setters are called from the control side. Each value lives in
// its own atomic and is read once at the start of every block, so a block
// always sees either the old or the new value of a parameter.
package deck

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gopxl/beep/v2"
	"go.uber.org/atomic"

	"djmix/effects"
	"djmix/source"
	"djmix/transport"
)

// Deck is one player channel.
type Deck struct {
	id        int
	rate      beep.SampleRate
	transport *transport.Transport
	params    [numParams]atomic.Float64
	logger    *slog.Logger

	// Owned by the audio thread.
	resampler *resampler
	reverb    *effects.Reverb
	epoch     uint64

	mu           sync.Mutex
	owner        any
	listeners    map[int]Listener
	nextListener int
}

var _ beep.Streamer = (*Deck)(nil)

// New creates a deck that renders at outputRate.
func New(id int, outputRate beep.SampleRate) *Deck {
	tr := transport.New()
	d := &Deck{
		id:        id,
		rate:      outputRate,
		transport: tr,
		logger:    slog.With("component", "deck", "deck", id),
		resampler: newResampler(tr.Advance),
		reverb:    effects.NewReverb(outputRate),
		epoch:     tr.Epoch(),
		listeners: make(map[int]Listener),
	}
	defaults := DefaultParams()
	for _, p := range AllParams() {
		d.params[p].Store(defaults.Get(p))
	}
	return d
}

// ID returns the deck number.
func (d *Deck) ID() int { return d.id }

// SampleRate returns the output rate.
func (d *Deck) SampleRate() beep.SampleRate { return d.rate }

// Transport exposes the underlying transport.
func (d *Deck) Transport() *transport.Transport { return d.transport }

// Set validates v and stores it as the new value of p. Out of range values
// are rejected with a *ParamError and the previous value is kept.
func (d *Deck) Set(p Param, v float64) error {
	if p < 0 || p >= numParams {
		return &ParamError{Param: p, Value: v}
	}
	if !p.Range().Contains(v) {
		d.logger.Debug("Rejected parameter", slog.String("param", p.String()), slog.Float64("value", v))
		return &ParamError{Param: p, Value: v}
	}
	d.params[p].Store(v)
	d.notify(Event{Kind: ParamChanged, Param: p, Value: v})
	return nil
}

// Get returns the current value of p.
func (d *Deck) Get(p Param) float64 {
	return d.params[p].Load()
}

func (d *Deck) SetGain(v float64) error     { return d.Set(Gain, v) }
func (d *Deck) SetSpeed(v float64) error    { return d.Set(Speed, v) }
func (d *Deck) SetWetLevel(v float64) error { return d.Set(WetLevel, v) }
func (d *Deck) SetRoomSize(v float64) error { return d.Set(RoomSize, v) }
func (d *Deck) SetDamping(v float64) error  { return d.Set(Damping, v) }
func (d *Deck) SetDryLevel(v float64) error { return d.Set(DryLevel, v) }
func (d *Deck) SetFreeze(v float64) error   { return d.Set(Freeze, v) }

// Params returns a snapshot of every parameter.
func (d *Deck) Params() Params {
	return Params{
		Gain:     d.params[Gain].Load(),
		Speed:    d.params[Speed].Load(),
		WetLevel: d.params[WetLevel].Load(),
		RoomSize: d.params[RoomSize].Load(),
		Damping:  d.params[Damping].Load(),
		DryLevel: d.params[DryLevel].Load(),
		Freeze:   d.params[Freeze].Load(),
	}
}

// Load publishes src to the transport. The audio thread picks it up on its
// next block; the deck is left stopped at the start of the track.
func (d *Deck) Load(src *source.Source) {
	d.transport.Load(src)
	d.logger.Info("Loaded track",
		slog.String("track", src.Name()),
		slog.Duration("length", src.Duration()),
	)
	d.notify(Event{Kind: Loaded, Track: src.Name()})
}

// Unload removes the current track.
func (d *Deck) Unload() {
	d.transport.Unload()
	d.notify(Event{Kind: Unloaded})
}

// Start plays the loaded track. It returns false when nothing is loaded.
func (d *Deck) Start() bool {
	if !d.transport.Start() {
		return false
	}
	d.notify(Event{Kind: Started})
	return true
}

// Stop pauses playback.
func (d *Deck) Stop() {
	d.transport.Stop()
	d.notify(Event{Kind: Stopped})
}

// Seek moves to seconds, clamped to the track.
func (d *Deck) Seek(seconds float64) {
	d.transport.Seek(seconds)
	d.notify(Event{Kind: Seeked, Value: d.transport.RelativePosition()})
}

// SeekRelative moves to a fraction of the track. Fractions outside [0, 1]
// are rejected.
func (d *Deck) SeekRelative(fraction float64) error {
	if err := d.transport.SeekRelative(fraction); err != nil {
		return err
	}
	d.notify(Event{Kind: Seeked, Value: d.transport.RelativePosition()})
	return nil
}

// Nudge jumps by delta, a fraction of the track length.
func (d *Deck) Nudge(delta float64) {
	d.transport.Nudge(delta)
	d.notify(Event{Kind: Seeked, Value: d.transport.RelativePosition()})
}

// Watch relays end-of-track from the transport to listeners until ctx is
// done.
func (d *Deck) Watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.transport.Finished():
			d.logger.Debug("Track finished")
			d.notify(Event{Kind: Finished})
		}
	}
}

// Bind records owner as the single consumer of the deck's output. It fails
// when a different owner already holds it.
func (d *Deck) Bind(owner any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.owner != nil && d.owner != owner {
		return false
	}
	d.owner = owner
	return true
}

// Unbind releases the deck if owner holds it.
func (d *Deck) Unbind(owner any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.owner != owner {
		return false
	}
	d.owner = nil
	return true
}

// Stream renders the next block: resample, reverb, gain. It must only be
// called from one goroutine at a time.
func (d *Deck) Stream(samples [][2]float64) (int, bool) {
	p := d.Params()

	if epoch := d.transport.Epoch(); epoch != d.epoch {
		d.epoch = epoch
		d.resampler.reset()
	}

	// A stopped deck pulls nothing from the transport, so its lookahead holds
	// only real frames and a restart resumes without a gap. The reverb still
	// rings out.
	if d.transport.State() == transport.Stopped {
		clear(samples)
	} else {
		step := p.Speed
		if rate := d.transport.SampleRate(); rate > 0 {
			step *= float64(rate) / float64(d.rate)
		}
		d.resampler.stream(samples, step)
	}
	d.reverb.Process(samples, p.Reverb())

	for i := range samples {
		samples[i][0] *= p.Gain
		samples[i][1] *= p.Gain
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (d *Deck) Err() error {
	return nil
}

// ProduceBlock renders n frames into a new buffer.
func (d *Deck) ProduceBlock(n int) [][2]float64 {
	block := make([][2]float64, n)
	d.Stream(block)
	return block
}

// Status is what a UI polls to draw a deck.
type Status struct {
	Deck            int
	Track           string
	Loaded          bool
	State           transport.State
	Position        float64
	PositionSeconds float64
	LengthSeconds   float64
	Params          Params
}

// Playing reports whether the deck is playing.
func (s Status) Playing() bool {
	return s.State == transport.Playing
}

// Status returns the current deck state without blocking the audio thread.
func (d *Deck) Status() Status {
	st := Status{
		Deck:            d.id,
		Loaded:          d.transport.Loaded(),
		State:           d.transport.State(),
		Position:        d.transport.RelativePosition(),
		PositionSeconds: d.transport.PositionSeconds(),
		LengthSeconds:   d.transport.LengthSeconds(),
		Params:          d.Params(),
	}
	if src := d.transport.Source(); src != nil {
		st.Track = src.Name()
	}
	return st
}
