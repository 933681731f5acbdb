package effects

import "math"

// ClipKnee is the level above which SoftClip starts bending the signal.
const ClipKnee = 0.8

// SoftClip leaves |x| <= ClipKnee untouched and compresses anything louder
// along a tanh curve that approaches ±1 without reaching it.
func SoftClip(x float64) float64 {
	a := math.Abs(x)
	if a <= ClipKnee {
		return x
	}
	y := ClipKnee + (1-ClipKnee)*math.Tanh((a-ClipKnee)/(1-ClipKnee))
	return math.Copysign(y, x)
}

// SoftClipBlock applies SoftClip to every sample of block.
func SoftClipBlock(block [][2]float64) {
	for i := range block {
		block[i][0] = SoftClip(block[i][0])
		block[i][1] = SoftClip(block[i][1])
	}
}
