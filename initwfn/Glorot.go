package initwfn

import (
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GlorotUConfig implements a configuration of the Glorot Uniform
// initialization algorithm. A Seed of 0 seeds the initializer from the
// wall clock.
type GlorotUConfig struct {
	Gain float64
	Seed uint64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64, seed uint64) (*InitWFn, error) {
	config := GlorotUConfig{
		Gain: gain,
		Seed: seed,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn. All weights drawn from a single Create call share one
// random number stream, so a fixed Seed makes initialization
// reproducible across runs.
func (g GlorotUConfig) Create() G.InitWFn {
	seed := g.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewSource(seed)

	return func(dt tensor.Dtype, s ...int) interface{} {
		if dt != tensor.Float64 {
			panic("glorotu: only float64 weights are supported")
		}

		fanIn, fanOut := fans(s...)
		limit := g.Gain * math.Sqrt(6.0/(fanIn+fanOut))
		dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}

		size := tensor.Shape(s).TotalSize()
		data := make([]float64, size)
		for i := range data {
			data[i] = dist.Rand()
		}
		return data
	}
}

// fans computes the fan-in and fan-out of a weight tensor shape.
func fans(shape ...int) (fanIn, fanOut float64) {
	switch len(shape) {
	case 0:
		return 1, 1
	case 1:
		return float64(shape[0]), float64(shape[0])
	default:
		receptive := 1
		for _, d := range shape[2:] {
			receptive *= d
		}
		return float64(shape[0] * receptive), float64(shape[1] * receptive)
	}
}
