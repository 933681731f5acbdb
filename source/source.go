// Package source decodes audio files into immutable in-memory sources that
// can be read from the audio thread without blocking.
package source

import (
	"time"

	"github.com/gopxl/beep/v2"
)

// Source is a fully decoded track. It never changes after construction and
// is safe for concurrent reads.
type Source struct {
	path   string
	name   string
	format beep.Format
	buffer *beep.Buffer
}

func newSource(path string, buffer *beep.Buffer) *Source {
	return &Source{
		path:   path,
		name:   TrackName(path),
		format: buffer.Format(),
		buffer: buffer,
	}
}

// FromSamples builds a stereo Source from frames already in memory.
func FromSamples(name string, rate beep.SampleRate, frames [][2]float64) *Source {
	buffer := beep.NewBuffer(beep.Format{SampleRate: rate, NumChannels: 2, Precision: 3})

	pos := 0
	buffer.Append(beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(frames) {
			return 0, false
		}
		n := copy(samples, frames[pos:])
		pos += n
		return n, true
	}))

	return &Source{
		path:   name,
		name:   name,
		format: buffer.Format(),
		buffer: buffer,
	}
}

// Read fills dst with frames starting at start and returns how many of them
// came from the track. Anything past the end is zero.
func (s *Source) Read(start int, dst [][2]float64) int {
	n := 0
	if length := s.buffer.Len(); start >= 0 && start < length {
		end := min(start+len(dst), length)
		n, _ = s.buffer.Streamer(start, end).Stream(dst[:end-start])
	}
	clear(dst[n:])
	return n
}

// Streamer returns a new reader over the whole track. Each reader keeps its
// own position, so one source can feed several decks.
func (s *Source) Streamer() beep.StreamSeeker {
	return s.buffer.Streamer(0, s.buffer.Len())
}

// ReadBlock returns exactly count frames starting at start.
func (s *Source) ReadBlock(start, count int) [][2]float64 {
	block := make([][2]float64, count)
	s.Read(start, block)
	return block
}

// Path returns the file the source was decoded from.
func (s *Source) Path() string { return s.path }

// Name returns the display name of the track.
func (s *Source) Name() string { return s.name }

// Format returns the decoded format.
func (s *Source) Format() beep.Format { return s.format }

// SampleRate returns the native sample rate.
func (s *Source) SampleRate() beep.SampleRate { return s.format.SampleRate }

// Channels returns the channel count of the original file.
func (s *Source) Channels() int { return s.format.NumChannels }

// Len returns the length in frames.
func (s *Source) Len() int { return s.buffer.Len() }

// Duration returns the length as a duration.
func (s *Source) Duration() time.Duration {
	return s.format.SampleRate.D(s.buffer.Len())
}
