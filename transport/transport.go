// Package transport tracks the play state and position of one loaded track.
//
// Advance is the only method called from the audio thread. Everything else
// is called from the control side and may run concurrently with Advance.
package transport

import (
	"errors"
	"math"

	"github.com/gopxl/beep/v2"
	"go.uber.org/atomic"

	"djmix/source"
)

// ErrInvalidPosition is returned by SeekRelative for fractions outside [0, 1].
var ErrInvalidPosition = errors.New("relative position must be between 0 and 1")

// State is the play state of a Transport.
type State int

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	default:
		return "stopped"
	}
}

// session binds a source to its read position. A load replaces the whole
// session, so the audio thread never pairs a new source with an old position.
type session struct {
	src *source.Source
	pos atomic.Int64

	// Only touched by Advance.
	reader beep.StreamSeeker
}

func newSession(src *source.Source) *session {
	return &session{src: src, reader: src.Streamer()}
}

// read copies frames from start into dst, zero padding past the end.
func (s *session) read(start int, dst [][2]float64) int {
	n := 0
	if length := s.src.Len(); start >= 0 && start < length {
		end := min(start+len(dst), length)
		if err := s.reader.Seek(start); err == nil {
			n, _ = s.reader.Stream(dst[:end-start])
		}
	}
	clear(dst[n:])
	return n
}

// The play flag and the epoch share one word: bit 0 is set while playing and
// the remaining bits count position jumps. Advance can then stop the
// transport at end of track only if nothing moved it in the meantime.
const (
	playingBit = 1
	epochStep  = 2
)

// Transport plays a Source from a position.
type Transport struct {
	session  atomic.Pointer[session]
	state    atomic.Uint64
	finished chan struct{}
}

var _ beep.Streamer = (*Transport)(nil)

// New creates an empty, stopped Transport.
func New() *Transport {
	return &Transport{
		finished: make(chan struct{}, 1),
	}
}

// Load publishes src as the active source, rewinds to zero and stops.
func (t *Transport) Load(src *source.Source) {
	t.update(stop)
	t.session.Store(newSession(src))
	t.update(jump)
}

// Unload removes the active source.
func (t *Transport) Unload() {
	t.update(stop)
	t.session.Store(nil)
	t.update(jump)
}

// Source returns the active source, or nil.
func (t *Transport) Source() *source.Source {
	if s := t.session.Load(); s != nil {
		return s.src
	}
	return nil
}

// Loaded reports whether a source is active.
func (t *Transport) Loaded() bool {
	return t.session.Load() != nil
}

// Start begins playback. It does nothing and returns false when no source
// is loaded.
func (t *Transport) Start() bool {
	if t.session.Load() == nil {
		return false
	}
	t.update(func(st uint64) uint64 { return st | playingBit })
	return true
}

// Stop pauses playback at the current position.
func (t *Transport) Stop() {
	t.update(stop)
}

// State returns the current play state.
func (t *Transport) State() State {
	if t.state.Load()&playingBit != 0 {
		return Playing
	}
	return Stopped
}

// Seek moves to the given time, clamped to the track. NaN is ignored.
func (t *Transport) Seek(seconds float64) {
	s := t.session.Load()
	if s == nil || math.IsNaN(seconds) {
		return
	}
	frames := seconds * float64(s.src.SampleRate())
	t.seekFrame(s, frames)
}

// SeekRelative moves to a fraction of the track length.
func (t *Transport) SeekRelative(fraction float64) error {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return ErrInvalidPosition
	}
	s := t.session.Load()
	if s == nil {
		return nil
	}
	t.seekFrame(s, fraction*float64(s.src.Len()))
	return nil
}

// Nudge moves the position by delta, a fraction of the track length, and
// clamps the result to the track.
func (t *Transport) Nudge(delta float64) {
	s := t.session.Load()
	if s == nil || math.IsNaN(delta) {
		return
	}
	length := float64(s.src.Len())
	t.seekFrame(s, float64(s.pos.Load())+delta*length)
}

func (t *Transport) seekFrame(s *session, frame float64) {
	length := float64(s.src.Len())
	frame = math.Max(0, math.Min(math.Round(frame), length))
	s.pos.Store(int64(frame))
	t.update(jump)
}

func stop(st uint64) uint64 { return st &^ playingBit }
func jump(st uint64) uint64 { return st + epochStep }

func (t *Transport) update(fn func(uint64) uint64) {
	for {
		old := t.state.Load()
		if t.state.CompareAndSwap(old, fn(old)) {
			return
		}
	}
}

// Advance fills dst with the next frames of the track and returns how many
// real frames it consumed. A stopped transport writes silence. Reaching the
// end of the track stops the transport and signals Finished.
func (t *Transport) Advance(dst [][2]float64) int {
	st := t.state.Load()
	s := t.session.Load()
	if s == nil || st&playingBit == 0 {
		clear(dst)
		return 0
	}

	pos := s.pos.Load()
	n := s.read(int(pos), dst)
	next := pos + int64(n)

	// A failed swap means a seek landed while we read; the seek wins.
	if s.pos.CompareAndSwap(pos, next) && next >= int64(s.src.Len()) {
		t.finish(st)
	}
	return n
}

// finish stops playback at end of track. st is the state Advance started
// from; a load, seek or stop since then leaves the transport alone.
func (t *Transport) finish(st uint64) {
	if !t.state.CompareAndSwap(st, stop(st)) {
		return
	}
	select {
	case t.finished <- struct{}{}:
	default:
	}
}

// Finished receives a value each time playback reaches the end of a track.
func (t *Transport) Finished() <-chan struct{} {
	return t.finished
}

// Stream implements beep.Streamer. It never runs dry; a stopped transport
// streams silence.
func (t *Transport) Stream(samples [][2]float64) (int, bool) {
	t.Advance(samples)
	return len(samples), true
}

// Err implements beep.Streamer.
func (t *Transport) Err() error {
	return nil
}

// Epoch changes whenever the read position jumps (load, unload, seek), so
// consumers holding lookahead can drop it.
func (t *Transport) Epoch() uint64 {
	return t.state.Load() / epochStep
}

// Position returns the read position in frames.
func (t *Transport) Position() int64 {
	if s := t.session.Load(); s != nil {
		return s.pos.Load()
	}
	return 0
}

// PositionSeconds returns the read position in seconds.
func (t *Transport) PositionSeconds() float64 {
	s := t.session.Load()
	if s == nil {
		return 0
	}
	return float64(s.pos.Load()) / float64(s.src.SampleRate())
}

// RelativePosition returns the position as a fraction of the track length.
func (t *Transport) RelativePosition() float64 {
	s := t.session.Load()
	if s == nil || s.src.Len() == 0 {
		return 0
	}
	return float64(s.pos.Load()) / float64(s.src.Len())
}

// Length returns the track length in frames.
func (t *Transport) Length() int {
	if s := t.session.Load(); s != nil {
		return s.src.Len()
	}
	return 0
}

// LengthSeconds returns the track length in seconds.
func (t *Transport) LengthSeconds() float64 {
	s := t.session.Load()
	if s == nil {
		return 0
	}
	return float64(s.src.Len()) / float64(s.src.SampleRate())
}

// SampleRate returns the native rate of the active source, or zero.
func (t *Transport) SampleRate() beep.SampleRate {
	if s := t.session.Load(); s != nil {
		return s.src.SampleRate()
	}
	return 0
}
