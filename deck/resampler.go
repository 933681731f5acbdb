package deck

// lookahead is the most source frames the resampler buffers at once. It is
// allocated up front so rendering never allocates.
const lookahead = 1 << 14

// maxStep keeps a single output frame within the lookahead buffer.
const maxStep = lookahead - 3

// resampler reads frames from fill and plays them back at an arbitrary step
// using linear interpolation. buf[0] is the frame at the integer part of the
// read head; pos is the head's offset into buf and stays below 1 between
// calls.
type resampler struct {
	fill func(dst [][2]float64) int
	buf  [][2]float64
	pos  float64
}

func newResampler(fill func(dst [][2]float64) int) *resampler {
	return &resampler{
		fill: fill,
		buf:  make([][2]float64, 0, lookahead),
	}
}

// stream writes len(out) frames advancing the read head by step per frame.
// Large blocks are rendered in chunks that fit the lookahead buffer.
func (r *resampler) stream(out [][2]float64, step float64) {
	step = min(step, maxStep)
	for len(out) > 0 {
		n := min(len(out), max(1, int((maxStep-r.pos)/step)))
		r.render(out[:n], step)
		out = out[n:]
	}
}

func (r *resampler) render(out [][2]float64, step float64) {
	end := r.pos + step*float64(len(out))
	if need := int(end) + 2; need > len(r.buf) {
		have := len(r.buf)
		r.buf = r.buf[:need]
		r.fill(r.buf[have:need])
	}

	for i := range out {
		idx := int(r.pos)
		frac := r.pos - float64(idx)
		a, b := r.buf[idx], r.buf[idx+1]
		out[i][0] = a[0] + (b[0]-a[0])*frac
		out[i][1] = a[1] + (b[1]-a[1])*frac
		r.pos += step
	}

	consumed := int(r.pos)
	n := copy(r.buf, r.buf[consumed:])
	r.buf = r.buf[:n]
	r.pos -= float64(consumed)
}

// reset drops any lookahead.
func (r *resampler) reset() {
	r.buf = r.buf[:0]
	r.pos = 0
}
