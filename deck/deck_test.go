package deck

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"djmix/source"
	"djmix/transport"
)

const testRate = 1000

func constantSource(n int, v float64) *source.Source {
	frames := make([][2]float64, n)
	for i := range frames {
		frames[i] = [2]float64{v, v}
	}
	return source.FromSamples("const", testRate, frames)
}

func rampSource(n int) *source.Source {
	frames := make([][2]float64, n)
	for i := range frames {
		v := float64(i) / float64(n)
		frames[i] = [2]float64{v, -v}
	}
	return source.FromSamples("ramp", testRate, frames)
}

func playing(t *testing.T, src *source.Source) *Deck {
	t.Helper()
	d := New(1, testRate)
	d.Load(src)
	require.True(t, d.Start())
	return d
}

func TestDefaults(t *testing.T) {
	d := New(1, testRate)
	assert.Equal(t, DefaultParams(), d.Params())
	assert.Equal(t, 1, d.ID())
}

func TestGainScalesOutput(t *testing.T) {
	for _, g := range []float64{0, 0.1, 0.25, 0.5, 0.75, 1} {
		d := playing(t, rampSource(4000))
		ref := d.ProduceBlock(256)

		require.NoError(t, d.SeekRelative(0))
		require.NoError(t, d.SetGain(g))
		got := d.ProduceBlock(256)

		for i := range ref {
			assert.InDelta(t, ref[i][0]*g, got[i][0], 1e-12, "gain %v frame %d", g, i)
			assert.InDelta(t, ref[i][1]*g, got[i][1], 1e-12, "gain %v frame %d", g, i)
		}
	}
}

func TestSettersRejectOutOfRange(t *testing.T) {
	tests := []struct {
		param Param
		value float64
	}{
		{Gain, -0.5},
		{Gain, 1.5},
		{Gain, math.NaN()},
		{Speed, 0},
		{Speed, -1},
		{Speed, MaxSpeed + 1},
		{WetLevel, 1.01},
		{RoomSize, -0.01},
		{Damping, 2},
		{DryLevel, -1},
		{Freeze, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.param.String(), func(t *testing.T) {
			d := New(1, testRate)
			before := d.Get(tt.param)

			err := d.Set(tt.param, tt.value)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParameter)

			var perr *ParamError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.param, perr.Param)
			assert.Equal(t, before, d.Get(tt.param))
		})
	}
}

func TestRejectedGainKeepsOutput(t *testing.T) {
	d := playing(t, rampSource(4000))
	require.NoError(t, d.SetGain(0.5))
	ref := d.ProduceBlock(128)

	require.NoError(t, d.SeekRelative(0))
	assert.ErrorIs(t, d.SetGain(-0.5), ErrInvalidParameter)
	assert.ErrorIs(t, d.SetGain(1.5), ErrInvalidParameter)
	got := d.ProduceBlock(128)

	assert.Equal(t, ref, got)
}

func TestSettersAcceptBounds(t *testing.T) {
	d := New(1, testRate)
	assert.NoError(t, d.SetGain(0))
	assert.NoError(t, d.SetGain(1))
	assert.NoError(t, d.SetSpeed(MaxSpeed))
	assert.NoError(t, d.SetSpeed(0.01))
	assert.NoError(t, d.SetWetLevel(1))
	assert.NoError(t, d.SetRoomSize(0))
	assert.NoError(t, d.SetDamping(1))
	assert.NoError(t, d.SetDryLevel(0))
	assert.NoError(t, d.SetFreeze(1))

	p := d.Params()
	assert.Equal(t, 0.01, p.Speed)
	assert.Equal(t, 1.0, p.WetLevel)
	assert.Equal(t, 0.0, p.DryLevel)
}

func TestUnityPassesSourceThrough(t *testing.T) {
	src := rampSource(1000)
	d := playing(t, src)

	got := d.ProduceBlock(100)
	want := src.ReadBlock(0, 100)
	for i := range want {
		assert.InDelta(t, want[i][0], got[i][0], 1e-12)
		assert.InDelta(t, want[i][1], got[i][1], 1e-12)
	}
}

func TestSpeedConsumesSourceFaster(t *testing.T) {
	d := playing(t, rampSource(10000))
	require.NoError(t, d.SetSpeed(2))

	d.ProduceBlock(100)
	pos := d.Transport().Position()
	assert.GreaterOrEqual(t, pos, int64(200))
	assert.LessOrEqual(t, pos, int64(203))
}

func TestSpeedInterpolates(t *testing.T) {
	src := rampSource(1000)
	d := playing(t, src)
	require.NoError(t, d.SetSpeed(0.5))

	got := d.ProduceBlock(10)
	frames := src.ReadBlock(0, 6)
	for i := 0; i < 10; i++ {
		a := frames[i/2][0]
		b := frames[i/2+1][0]
		want := a
		if i%2 == 1 {
			want = (a + b) / 2
		}
		assert.InDelta(t, want, got[i][0], 1e-9, "frame %d", i)
	}
}

func TestSourceRateIsConverted(t *testing.T) {
	frames := make([][2]float64, 10000)
	d := New(1, 2*testRate)
	d.Load(source.FromSamples("half-rate", testRate, frames))
	d.Start()

	d.ProduceBlock(100)
	pos := d.Transport().Position()
	assert.GreaterOrEqual(t, pos, int64(50))
	assert.LessOrEqual(t, pos, int64(53))
}

func TestSeekFlushesLookahead(t *testing.T) {
	src := rampSource(1000)
	d := playing(t, src)
	d.ProduceBlock(64)

	require.NoError(t, d.SeekRelative(0.5))
	got := d.ProduceBlock(1)
	assert.InDelta(t, src.ReadBlock(500, 1)[0][0], got[0][0], 1e-9)
}

func TestStoppedDeckIsSilent(t *testing.T) {
	d := New(1, testRate)
	d.Load(constantSource(1000, 0.5))

	for _, f := range d.ProduceBlock(64) {
		assert.Equal(t, [2]float64{}, f)
	}
}

func TestReverbAddsTail(t *testing.T) {
	d := playing(t, constantSource(2000, 0.5))
	require.NoError(t, d.SetWetLevel(1))
	require.NoError(t, d.SetRoomSize(0.9))
	d.ProduceBlock(2000)
	d.Stop()

	var energy float64
	for _, f := range d.ProduceBlock(2000) {
		energy += f[0]*f[0] + f[1]*f[1]
	}
	assert.Greater(t, energy, 0.0, "a wet deck keeps ringing after stop")
}

func TestStartWithoutTrack(t *testing.T) {
	d := New(2, testRate)
	assert.False(t, d.Start())
	assert.Equal(t, transport.Stopped, d.Status().State)
}

func TestStatus(t *testing.T) {
	d := playing(t, constantSource(4000, 0.5))
	require.NoError(t, d.SeekRelative(0.25))

	st := d.Status()
	assert.True(t, st.Loaded)
	assert.True(t, st.Playing())
	assert.Equal(t, "const", st.Track)
	assert.InDelta(t, 0.25, st.Position, 1e-9)
	assert.InDelta(t, 1.0, st.PositionSeconds, 1e-9)
	assert.InDelta(t, 4.0, st.LengthSeconds, 1e-9)
}

func TestSubscribe(t *testing.T) {
	d := New(3, testRate)

	var events []Event
	unsubscribe := d.Subscribe(ListenerFunc(func(e Event) {
		events = append(events, e)
	}))

	d.Load(constantSource(100, 0.1))
	require.NoError(t, d.SetGain(0.5))
	assert.Error(t, d.SetGain(5))
	d.Start()
	d.Stop()

	require.Len(t, events, 4)
	assert.Equal(t, Loaded, events[0].Kind)
	assert.Equal(t, "const", events[0].Track)
	assert.Equal(t, ParamChanged, events[1].Kind)
	assert.Equal(t, Gain, events[1].Param)
	assert.Equal(t, 0.5, events[1].Value)
	assert.Equal(t, 3, events[1].Deck)
	assert.Equal(t, Started, events[2].Kind)
	assert.Equal(t, Stopped, events[3].Kind)

	unsubscribe()
	d.Start()
	assert.Len(t, events, 4)
}

func TestWatchRelaysFinished(t *testing.T) {
	d := playing(t, constantSource(10, 0.1))

	finished := make(chan struct{}, 1)
	d.Subscribe(ListenerFunc(func(e Event) {
		if e.Kind == Finished {
			finished <- struct{}{}
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Watch(ctx)

	d.ProduceBlock(64)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("finished event not delivered")
	}
	assert.False(t, d.Status().Playing())
}

func TestBind(t *testing.T) {
	d := New(1, testRate)
	a, b := new(int), new(int)

	assert.True(t, d.Bind(a))
	assert.True(t, d.Bind(a))
	assert.False(t, d.Bind(b))
	assert.False(t, d.Unbind(b))
	assert.True(t, d.Unbind(a))
	assert.True(t, d.Bind(b))
}

func TestParseParam(t *testing.T) {
	for _, p := range AllParams() {
		got, err := ParseParam(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParseParam("pitch")
	assert.Error(t, err)
}

func TestRangeString(t *testing.T) {
	assert.Equal(t, "[0, 1]", Gain.Range().String())
	assert.Equal(t, "(0, 100]", Speed.Range().String())
}

func TestConcurrentGainChangesAreNotTorn(t *testing.T) {
	d := playing(t, constantSource(200000, 0.5))
	level := d.ProduceBlock(1)[0][0]

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			g := 1.0
			if i%2 == 0 {
				g = 0.25
			}
			_ = d.SetGain(g)
		}
	}()

	block := make([][2]float64, 256)
	for i := 0; i < 500; i++ {
		d.Stream(block)
		first := block[0][0]
		ok := math.Abs(first-level) < 1e-12 || math.Abs(first-0.25*level) < 1e-12
		require.True(t, ok, "block %d starts with unexpected level %v", i, first)
		for j := range block {
			require.Equal(t, first, block[j][0], "block %d mixes gain values", i)
			require.Equal(t, first, block[j][1], "block %d mixes gain values", i)
		}
	}
	close(stop)
	wg.Wait()
}

func TestStartBeginsOnPlayHead(t *testing.T) {
	d := New(1, testRate)
	d.Load(constantSource(1000, 0.5))
	level := playing(t, constantSource(1000, 0.5)).ProduceBlock(1)[0][0]
	require.NotZero(t, level)

	d.ProduceBlock(64)
	require.True(t, d.Start())

	for i, f := range d.ProduceBlock(4) {
		assert.InDelta(t, level, f[0], 1e-12, "frame %d", i)
		assert.InDelta(t, level, f[1], 1e-12, "frame %d", i)
	}
}

func TestRestartAfterStopHasNoGap(t *testing.T) {
	src := rampSource(1000)
	d := playing(t, src)
	d.ProduceBlock(8)

	d.Stop()
	d.ProduceBlock(8)
	require.True(t, d.Start())

	want := src.ReadBlock(8, 4)
	for i, f := range d.ProduceBlock(4) {
		assert.InDelta(t, want[i][0], f[0], 1e-12, "frame %d", i)
	}
}

func TestConcurrentLoadNeverMixesTracks(t *testing.T) {
	oldTrack := constantSource(100000, 0.5)
	newTrack := constantSource(100000, 0.25)
	oldLevel := playing(t, oldTrack).ProduceBlock(1)[0][0]
	newLevel := playing(t, newTrack).ProduceBlock(1)[0][0]

	d := playing(t, oldTrack)

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
				d.Load(newTrack)
			} else {
				d.Load(oldTrack)
			}
			d.Start()
			// Integer speeds keep the read head on whole frames.
			_ = d.SetSpeed(float64(1 + i%2))
		}
	}()

	valid := func(v float64) bool {
		for _, want := range []float64{0, oldLevel, newLevel} {
			if math.Abs(v-want) < 1e-12 {
				return true
			}
		}
		return false
	}

	block := make([][2]float64, 128)
	for i := 0; i < 2000; i++ {
		d.Stream(block)
		for j, f := range block {
			require.True(t, valid(f[0]), "block %d frame %d has level %v", i, j, f[0])
			require.Equal(t, f[0], f[1], "block %d frame %d", i, j)
		}
	}
	close(stop)
	wg.Wait()
}

func TestResamplerChunksLargeSteps(t *testing.T) {
	next := 0
	r := newResampler(func(dst [][2]float64) int {
		for i := range dst {
			dst[i] = [2]float64{float64(next), 0}
			next++
		}
		return len(dst)
	})

	out := make([][2]float64, 4096)
	r.stream(out, MaxSpeed)
	for i, f := range out {
		require.Equal(t, float64(i*MaxSpeed), f[0], "frame %d", i)
	}

	r.reset()
	next = 0
	r.stream(out[:3], 1e9)
	assert.Equal(t, float64(maxStep), out[1][0]-out[0][0])
	assert.Equal(t, float64(maxStep), out[2][0]-out[1][0])
}

func TestResamplerDoesNotAllocate(t *testing.T) {
	r := newResampler(func(dst [][2]float64) int {
		for i := range dst {
			dst[i] = [2]float64{0.5, 0.5}
		}
		return len(dst)
	})
	out := make([][2]float64, 4096)

	for _, step := range []float64{0.5, 1, 3.7, MaxSpeed} {
		allocs := testing.AllocsPerRun(20, func() {
			r.stream(out, step)
		})
		assert.Zero(t, allocs, "step %v", step)
	}
}
