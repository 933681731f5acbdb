package mixer

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"djmix/deck"
	"djmix/source"
)

const testRate = 1000

func rampSource(n int, peak float64) *source.Source {
	frames := make([][2]float64, n)
	for i := range frames {
		v := peak * float64(i) / float64(n)
		frames[i] = [2]float64{v, -v}
	}
	return source.FromSamples("ramp", testRate, frames)
}

func playingDeck(t *testing.T, id int, src *source.Source) *deck.Deck {
	t.Helper()
	d := deck.New(id, testRate)
	d.Load(src)
	require.True(t, d.Start())
	return d
}

func TestEmptyMixerIsSilent(t *testing.T) {
	m := New()
	for _, f := range m.ProduceBlock(64) {
		assert.Equal(t, [2]float64{}, f)
	}
}

func TestSilentDecksAreSilent(t *testing.T) {
	m := New()
	for i := 1; i <= 4; i++ {
		d := deck.New(i, testRate)
		if i%2 == 0 {
			d.Load(rampSource(100, 0.5))
		}
		require.NoError(t, m.Attach(d))
	}

	for _, f := range m.ProduceBlock(128) {
		assert.Equal(t, [2]float64{}, f)
	}
}

func TestSoloDeckPassesThrough(t *testing.T) {
	src := rampSource(2000, 0.5)

	m := New()
	require.NoError(t, m.Attach(playingDeck(t, 1, src)))
	for i := 2; i <= 4; i++ {
		require.NoError(t, m.Attach(deck.New(i, testRate)))
	}
	solo := playingDeck(t, 9, src)

	for block := 0; block < 4; block++ {
		got := m.ProduceBlock(256)
		want := solo.ProduceBlock(256)
		assert.Equal(t, want, got, "block %d", block)
	}
}

func TestSumsDecks(t *testing.T) {
	a := rampSource(1000, 0.3)
	b := rampSource(1000, 0.2)

	m := New()
	require.NoError(t, m.Attach(playingDeck(t, 1, a)))
	require.NoError(t, m.Attach(playingDeck(t, 2, b)))

	got := m.ProduceBlock(100)
	wantA := a.ReadBlock(0, 100)
	wantB := b.ReadBlock(0, 100)
	for i := range got {
		assert.InDelta(t, wantA[i][0]+wantB[i][0], got[i][0], 1e-12)
		assert.InDelta(t, wantA[i][1]+wantB[i][1], got[i][1], 1e-12)
	}
}

func TestSoftClipsOverload(t *testing.T) {
	frames := make([][2]float64, 500)
	for i := range frames {
		frames[i] = [2]float64{0.7, -0.7}
	}
	src := source.FromSamples("loud", testRate, frames)

	m := New()
	require.NoError(t, m.Attach(playingDeck(t, 1, src)))
	require.NoError(t, m.Attach(playingDeck(t, 2, src)))

	for _, f := range m.ProduceBlock(100) {
		assert.Greater(t, f[0], 0.8)
		assert.Less(t, f[0], 1.0)
		assert.Less(t, f[1], -0.8)
		assert.Greater(t, f[1], -1.0)
	}
}

func TestAttachToOneMixerOnly(t *testing.T) {
	d := deck.New(1, testRate)
	a, b := New(), New()

	require.NoError(t, a.Attach(d))
	require.NoError(t, a.Attach(d))
	assert.Len(t, a.Decks(), 1)

	assert.ErrorIs(t, b.Attach(d), ErrAlreadyAttached)
	assert.ErrorIs(t, b.Detach(d), ErrNotAttached)

	require.NoError(t, a.Detach(d))
	assert.Empty(t, a.Decks())
	require.NoError(t, b.Attach(d))
	assert.Equal(t, []*deck.Deck{d}, b.Decks())
}

func TestDetachStopsMixingDeck(t *testing.T) {
	m := New()
	d := playingDeck(t, 1, rampSource(1000, 0.5))
	require.NoError(t, m.Attach(d))
	m.ProduceBlock(10)

	require.NoError(t, m.Detach(d))
	for _, f := range m.ProduceBlock(10) {
		assert.Equal(t, [2]float64{}, f)
	}
}

func TestStreamReusesCallerBuffer(t *testing.T) {
	m := New()
	require.NoError(t, m.Attach(playingDeck(t, 1, rampSource(1000, 0.5))))

	buf := make([][2]float64, 32)
	n, ok := m.Stream(buf)
	assert.Equal(t, 32, n)
	assert.True(t, ok)
	assert.NoError(t, m.Err())
}

func constantSource(n int, v float64) *source.Source {
	frames := make([][2]float64, n)
	for i := range frames {
		frames[i] = [2]float64{v, v}
	}
	return source.FromSamples("const", testRate, frames)
}

func TestAttachDetachWhileStreaming(t *testing.T) {
	a := playingDeck(t, 1, constantSource(200000, 0.25))
	b := playingDeck(t, 2, constantSource(200000, 0.25))
	aLevel := playingDeck(t, 3, constantSource(10, 0.25)).ProduceBlock(1)[0][0]
	bLevel := aLevel

	m := New()
	require.NoError(t, m.Attach(a))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				assert.NoError(t, m.Attach(b))
			} else {
				assert.NoError(t, m.Detach(b))
			}
			_ = m.Decks()
		}
	}()

	block := make([][2]float64, 128)
	for i := 0; i < 2000; i++ {
		m.Stream(block)
		first := block[0][0]
		solo := math.Abs(first-aLevel) < 1e-12
		both := math.Abs(first-(aLevel+bLevel)) < 1e-12
		require.True(t, solo || both, "block %d starts with unexpected level %v", i, first)
		for j := range block {
			require.Equal(t, first, block[j][0], "block %d mixes deck sets", i)
			require.Equal(t, first, block[j][1], "block %d mixes deck sets", i)
		}
	}
	close(stop)
	wg.Wait()
}
