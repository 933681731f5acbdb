package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func writeConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
audio:
  sample_rate: 8000
engine:
  decks: 2
  nudge_step: 0.1
logging:
  level: warn
`), 0o644))
	return path
}

func writeWAV(t *testing.T, frames int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "track.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, 8000, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           make([]int, frames*2),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = 1000
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

func TestVersion(t *testing.T) {
	out := execute(t, "version")
	assert.Contains(t, out, "djmix version dev")
}

func TestConfigShow(t *testing.T) {
	out := execute(t, "config", "show", "--config", writeConfig(t))

	assert.Contains(t, out, "Sample rate: 8000")
	assert.Contains(t, out, "Decks: 2")
	assert.Contains(t, out, "Nudge step: 0.10")
	assert.Contains(t, out, "Level: warn")
}

func TestRender(t *testing.T) {
	cfg := writeConfig(t)
	track := writeWAV(t, 8000)
	output := filepath.Join(t.TempDir(), "mix.wav")

	out := execute(t, "render", "--config", cfg, "-o", output, "--exec", "gain 1 0.5", track)
	assert.Contains(t, out, "wrote 8000 frames")

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(8000), dec.SampleRate)
	assert.Equal(t, uint16(2), dec.NumChans)
}
