package playback

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

var (
	ErrClosed        = errors.New("playback is closed")
	ErrInvalidVolume = errors.New("volume must be between 0 and 1")
)

// Playback routes one streamer to the sound card through a master pause
// switch and a master volume.
type Playback struct {
	mu     sync.RWMutex
	device device
	ctrl   *beep.Ctrl
	volume *effects.Volume
	level  float64
	rate   beep.SampleRate
	closed bool
	logger *slog.Logger
}

// device is the part of beep's speaker Playback relies on.
type device interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Lock()
	Unlock()
	Clear()
	Close()
}
