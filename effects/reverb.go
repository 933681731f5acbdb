// Package effects holds the DSP stages used by decks and the mixer.
package effects

import (
	"github.com/gopxl/beep/v2"
)

// Freeverb tuning, expressed for 44.1kHz and scaled to the actual rate.
const (
	numCombs     = 8
	numAllPasses = 4
	stereoSpread = 23
	tuningRate   = 44100

	fixedGain     = 0.015
	scaleWet      = 3
	scaleDamp     = 0.4
	scaleRoom     = 0.28
	offsetRoom    = 0.7
	allPassFactor = 0.5
)

var (
	combTunings    = [numCombs]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	allPassTunings = [numAllPasses]int{556, 441, 341, 225}
)

// ReverbParams controls a Reverb. Every field is expected in [0, 1].
type ReverbParams struct {
	RoomSize float64
	Damping  float64
	WetLevel float64
	DryLevel float64
	// Freeze holds the current tail indefinitely when >= 0.5.
	Freeze float64
}

// Frozen reports whether the freeze amount engages freeze mode.
func (p ReverbParams) Frozen() bool {
	return p.Freeze >= 0.5
}

// Reverb is a stereo Schroeder/Moorer reverb: parallel damped combs feeding
// series all-pass filters per channel. It is not safe for concurrent use.
type Reverb struct {
	combs     [2][numCombs]comb
	allPasses [2][numAllPasses]allPass
}

// NewReverb allocates the delay lines for the given sample rate.
func NewReverb(rate beep.SampleRate) *Reverb {
	r := &Reverb{}
	scale := float64(rate) / tuningRate
	for ch := 0; ch < 2; ch++ {
		spread := ch * stereoSpread
		for i, tuning := range combTunings {
			r.combs[ch][i].buf = make([]float64, delayLength(tuning+spread, scale))
		}
		for i, tuning := range allPassTunings {
			r.allPasses[ch][i].buf = make([]float64, delayLength(tuning+spread, scale))
		}
	}
	return r
}

func delayLength(tuning int, scale float64) int {
	return max(1, int(float64(tuning)*scale))
}

// Reset clears the reverb tail.
func (r *Reverb) Reset() {
	for ch := range r.combs {
		for i := range r.combs[ch] {
			r.combs[ch][i].reset()
		}
		for i := range r.allPasses[ch] {
			r.allPasses[ch][i].reset()
		}
	}
}

// Process applies the reverb to block in place: dry*x + wet*reverb(x).
func (r *Reverb) Process(block [][2]float64, p ReverbParams) {
	feedback := p.RoomSize*scaleRoom + offsetRoom
	damp := p.Damping * scaleDamp
	gain := fixedGain
	if p.Frozen() {
		feedback, damp, gain = 1, 0, 0
	}
	wet := p.WetLevel * scaleWet
	dry := p.DryLevel

	for i := range block {
		left, right := block[i][0], block[i][1]
		input := (left + right) * gain

		var outL, outR float64
		for j := range r.combs[0] {
			outL += r.combs[0][j].process(input, feedback, damp)
			outR += r.combs[1][j].process(input, feedback, damp)
		}
		for j := range r.allPasses[0] {
			outL = r.allPasses[0][j].process(outL)
			outR = r.allPasses[1][j].process(outR)
		}

		block[i][0] = left*dry + outL*wet
		block[i][1] = right*dry + outR*wet
	}
}

type comb struct {
	buf   []float64
	idx   int
	store float64
}

func (c *comb) process(in, feedback, damp float64) float64 {
	out := c.buf[c.idx]
	c.store = out*(1-damp) + c.store*damp
	c.buf[c.idx] = in + c.store*feedback
	if c.idx++; c.idx == len(c.buf) {
		c.idx = 0
	}
	return out
}

func (c *comb) reset() {
	clear(c.buf)
	c.idx, c.store = 0, 0
}

type allPass struct {
	buf []float64
	idx int
}

func (a *allPass) process(in float64) float64 {
	buffered := a.buf[a.idx]
	a.buf[a.idx] = in + buffered*allPassFactor
	if a.idx++; a.idx == len(a.buf) {
		a.idx = 0
	}
	return buffered - in
}

func (a *allPass) reset() {
	clear(a.buf)
	a.idx = 0
}
