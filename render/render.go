// Package render mixes a streamer down to a WAV file offline.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep/v2"
)

const (
	bitDepth  = 16
	channels  = 2
	wavFormat = 1 // PCM
	chunk     = 1024
)

var ErrInvalidDuration = errors.New("render duration must be positive")

// ToWAV pulls duration worth of audio from s at rate and writes it to w as
// 16-bit stereo PCM. It stops early when s is drained and returns the number
// of frames written.
func ToWAV(w io.WriteSeeker, s beep.Streamer, rate beep.SampleRate, duration time.Duration) (int, error) {
	if duration <= 0 {
		return 0, ErrInvalidDuration
	}

	enc := wav.NewEncoder(w, int(rate), bitDepth, channels, wavFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: int(rate)},
		Data:           make([]int, 0, chunk*channels),
		SourceBitDepth: bitDepth,
	}
	samples := make([][2]float64, chunk)

	total := rate.N(duration)
	written := 0
	for written < total {
		n, ok := s.Stream(samples[:min(chunk, total-written)])
		if n > 0 {
			buf.Data = buf.Data[:0]
			for _, frame := range samples[:n] {
				buf.Data = append(buf.Data, quantize(frame[0]), quantize(frame[1]))
			}
			if err := enc.Write(buf); err != nil {
				return written, fmt.Errorf("failed to write samples: %w", err)
			}
			written += n
		}
		if !ok {
			break
		}
	}

	if err := s.Err(); err != nil {
		return written, fmt.Errorf("streamer failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return written, fmt.Errorf("failed to finalize wav: %w", err)
	}
	return written, nil
}

func quantize(v float64) int {
	const peak = 1<<(bitDepth-1) - 1
	v = math.Max(-1, math.Min(1, v))
	return int(math.Round(v * peak))
}
