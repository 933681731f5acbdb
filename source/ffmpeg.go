package source

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/disgoorg/ffmpeg-audio"
	"github.com/gopxl/beep/v2"
)

// openFFmpeg decodes path through an ffmpeg subprocess into stereo s16le PCM.
func (d *Decoder) openFFmpeg(ctx context.Context, path string) (*Source, error) {
	cfg := ffmpeg.DefaultConfig()
	cfg.Apply(d.ffmpeg)

	if _, err := os.Stat(path); err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	if _, err := exec.LookPath(cfg.Exec); err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: no native decoder and ffmpeg unavailable: %w", ErrUnsupportedFormat, err)}
	}

	cmd := exec.CommandContext(ctx, cfg.Exec,
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	if err = cmd.Start(); err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: failed to start ffmpeg: %w", ErrIO, err)}
	}

	format := beep.Format{SampleRate: beep.SampleRate(cfg.SampleRate), NumChannels: 2, Precision: 2}
	buffer := beep.NewBuffer(format)
	pcm := &pcmStreamer{reader: bufio.NewReaderSize(pipe, cfg.BufferSize)}
	buffer.Append(pcm)

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: %w", ErrIO, ctx.Err())}
	}
	if waitErr != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: ffmpeg: %w", ErrUnsupportedFormat, waitErr)}
	}
	if pcm.err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: reading PCM data: %w", ErrIO, pcm.err)}
	}

	d.logger.Debug("Decoded track through ffmpeg",
		slog.String("path", path),
		slog.Int("frames", buffer.Len()),
	)
	return newSource(path, buffer), nil
}

// pcmStreamer turns interleaved stereo s16le bytes into beep frames.
type pcmStreamer struct {
	reader *bufio.Reader
	frame  [4]byte
	err    error
}

func (p *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if _, err := io.ReadFull(p.reader, p.frame[:]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				p.err = err
			}
			return n, n > 0
		}
		samples[n][0] = float64(int16(binary.LittleEndian.Uint16(p.frame[0:2]))) / 32768
		samples[n][1] = float64(int16(binary.LittleEndian.Uint16(p.frame[2:4]))) / 32768
		n++
	}
	return n, true
}

func (p *pcmStreamer) Err() error {
	return p.err
}
