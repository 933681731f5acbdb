package deck

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"djmix/effects"
)

// MaxSpeed is the largest accepted playback speed ratio.
const MaxSpeed = 100.0

// ErrInvalidParameter is wrapped by every rejected parameter change.
var ErrInvalidParameter = errors.New("invalid parameter")

// Param identifies one deck parameter.
type Param int

const (
	Gain Param = iota
	Speed
	WetLevel
	RoomSize
	Damping
	DryLevel
	Freeze

	numParams
)

var paramNames = [numParams]string{
	Gain:     "gain",
	Speed:    "speed",
	WetLevel: "wet",
	RoomSize: "room",
	Damping:  "damp",
	DryLevel: "dry",
	Freeze:   "freeze",
}

var paramRanges = [numParams]Range{
	Gain:     {Min: 0, Max: 1},
	Speed:    {Min: 0, Max: MaxSpeed, OpenMin: true},
	WetLevel: {Min: 0, Max: 1},
	RoomSize: {Min: 0, Max: 1},
	Damping:  {Min: 0, Max: 1},
	DryLevel: {Min: 0, Max: 1},
	Freeze:   {Min: 0, Max: 1},
}

// AllParams returns every parameter in declaration order.
func AllParams() []Param {
	all := make([]Param, numParams)
	for i := range all {
		all[i] = Param(i)
	}
	return all
}

func (p Param) String() string {
	if p < 0 || p >= numParams {
		return fmt.Sprintf("param(%d)", int(p))
	}
	return paramNames[p]
}

// Range returns the interval of accepted values.
func (p Param) Range() Range {
	if p < 0 || p >= numParams {
		return Range{}
	}
	return paramRanges[p]
}

// ParseParam looks a parameter up by name.
func ParseParam(name string) (Param, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range paramNames {
		if n == name {
			return Param(i), nil
		}
	}
	return 0, fmt.Errorf("unknown parameter %q", name)
}

// Range is an interval, closed unless OpenMin is set.
type Range struct {
	Min, Max float64
	OpenMin  bool
}

// Contains reports whether v lies in the range. NaN never does.
func (r Range) Contains(v float64) bool {
	if math.IsNaN(v) || v > r.Max {
		return false
	}
	if r.OpenMin {
		return v > r.Min
	}
	return v >= r.Min
}

func (r Range) String() string {
	open := "["
	if r.OpenMin {
		open = "("
	}
	return fmt.Sprintf("%s%g, %g]", open, r.Min, r.Max)
}

// ParamError reports a rejected parameter value.
type ParamError struct {
	Param Param
	Value float64
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s %g outside %s", e.Param, e.Value, e.Param.Range())
}

func (e *ParamError) Unwrap() error {
	return ErrInvalidParameter
}

// Params is a snapshot of every deck parameter.
type Params struct {
	Gain     float64
	Speed    float64
	WetLevel float64
	RoomSize float64
	Damping  float64
	DryLevel float64
	Freeze   float64
}

// DefaultParams is the state of a fresh deck: unity gain and speed, reverb
// fully dry.
func DefaultParams() Params {
	return Params{
		Gain:     1,
		Speed:    1,
		WetLevel: 0,
		RoomSize: 0.5,
		Damping:  0.5,
		DryLevel: 1,
		Freeze:   0,
	}
}

// Get returns the value of p.
func (p Params) Get(param Param) float64 {
	switch param {
	case Gain:
		return p.Gain
	case Speed:
		return p.Speed
	case WetLevel:
		return p.WetLevel
	case RoomSize:
		return p.RoomSize
	case Damping:
		return p.Damping
	case DryLevel:
		return p.DryLevel
	case Freeze:
		return p.Freeze
	}
	return 0
}

// Reverb extracts the reverb settings.
func (p Params) Reverb() effects.ReverbParams {
	return effects.ReverbParams{
		RoomSize: p.RoomSize,
		Damping:  p.Damping,
		WetLevel: p.WetLevel,
		DryLevel: p.DryLevel,
		Freeze:   p.Freeze,
	}
}
