// Package playback sends the mix to the sound card.
package playback

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

type speakerDevice struct{}

func (speakerDevice) Init(rate beep.SampleRate, bufferSize int) error {
	return speaker.Init(rate, bufferSize)
}
func (speakerDevice) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (speakerDevice) Lock()                   { speaker.Lock() }
func (speakerDevice) Unlock()                 { speaker.Unlock() }
func (speakerDevice) Clear()                  { speaker.Clear() }
func (speakerDevice) Close()                  { speaker.Close() }

// New opens the sound card at sampleRate. buffer is the device latency; the
// audio thread pulls one buffer's worth of frames per callback.
func New(sampleRate beep.SampleRate, buffer time.Duration) (*Playback, error) {
	return newPlayback(speakerDevice{}, sampleRate, buffer)
}

func newPlayback(dev device, sampleRate beep.SampleRate, buffer time.Duration) (*Playback, error) {
	if err := dev.Init(sampleRate, sampleRate.N(buffer)); err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	p := &Playback{
		device: dev,
		rate:   sampleRate,
		level:  1,
		logger: slog.With("component", "playback"),
	}
	p.logger.Info("Speaker initialized",
		slog.Int("rate", int(sampleRate)),
		slog.Duration("buffer", buffer),
	)
	return p, nil
}

// SampleRate returns the device rate.
func (p *Playback) SampleRate() beep.SampleRate {
	return p.rate
}

// Play starts streaming s to the device, replacing anything playing.
func (p *Playback) Play(s beep.Streamer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	volume := &effects.Volume{Streamer: s, Base: 2}
	applyLevel(volume, p.level)
	ctrl := &beep.Ctrl{Streamer: volume}

	p.device.Lock()
	p.volume = volume
	p.ctrl = ctrl
	p.device.Unlock()

	p.device.Clear()
	p.device.Play(ctrl)
	return nil
}

// SetVolume sets the master level in [0, 1]. Zero mutes.
func (p *Playback) SetVolume(level float64) error {
	if math.IsNaN(level) || level < 0 || level > 1 {
		return ErrInvalidVolume
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.level = level
	if p.volume != nil {
		p.device.Lock()
		applyLevel(p.volume, level)
		p.device.Unlock()
	}
	return nil
}

// Volume returns the master level.
func (p *Playback) Volume() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

// applyLevel converts a linear level into beep's exponential volume.
func applyLevel(v *effects.Volume, level float64) {
	v.Silent = level == 0
	if level > 0 {
		v.Volume = math.Log2(level)
	} else {
		v.Volume = 0
	}
}

// Pause silences the output without losing position.
func (p *Playback) Pause() {
	p.setPaused(true)
}

// Resume undoes Pause.
func (p *Playback) Resume() {
	p.setPaused(false)
}

func (p *Playback) setPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.ctrl == nil {
		return
	}
	p.device.Lock()
	p.ctrl.Paused = paused
	p.device.Unlock()
}

// IsPlaying returns true if a stream is attached and not paused.
func (p *Playback) IsPlaying() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || p.ctrl == nil {
		return false
	}

	p.device.Lock()
	playing := !p.ctrl.Paused
	p.device.Unlock()

	return playing
}

// Close stops the output and releases the device.
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	p.device.Clear()
	p.device.Close()
	p.ctrl = nil
	p.volume = nil

	p.logger.Info("Speaker closed")
	return nil
}
