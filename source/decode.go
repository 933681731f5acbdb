package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disgoorg/ffmpeg-audio"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// Decoder opens audio files. Formats beep understands are decoded in process,
// anything else is handed to ffmpeg.
type Decoder struct {
	ffmpeg []ffmpeg.ConfigOpt
	logger *slog.Logger
}

var defaultDecoder = NewDecoder()

// NewDecoder creates a Decoder. The options configure the ffmpeg fallback.
func NewDecoder(opts ...ffmpeg.ConfigOpt) *Decoder {
	return &Decoder{
		ffmpeg: opts,
		logger: slog.With("component", "decoder"),
	}
}

// Open decodes the file at path with the default decoder.
func Open(path string) (*Source, error) {
	return defaultDecoder.Open(context.Background(), path)
}

// Open decodes the whole file at path into memory. It fails with an error
// wrapping ErrIO or ErrUnsupportedFormat.
func (d *Decoder) Open(ctx context.Context, path string) (*Source, error) {
	ext := strings.ToLower(filepath.Ext(path))

	decode, native := nativeDecoders[ext]
	if !native {
		return d.openFFmpeg(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	defer f.Close()

	streamer, format, err := decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)}
	}
	defer streamer.Close()

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}

	d.logger.Debug("Decoded track",
		slog.String("path", path),
		slog.Int("rate", int(format.SampleRate)),
		slog.Int("channels", format.NumChannels),
		slog.Int("frames", buffer.Len()),
	)
	return newSource(path, buffer), nil
}

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

var nativeDecoders = map[string]decodeFunc{
	".mp3":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".wav":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".flac": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) },
	".ogg":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
	".oga":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
}
