// Initial layouts — the per-position draws that decide starting actions.
package agents

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Layout produces one value in [0,1) per population position.
// Positions whose value falls below a fraction get the corresponding action.
type Layout interface {
	Name() string
	Values(n int, rng *rand.Rand) []float64
}

// Layout names accepted by configuration.
const (
	LayoutUniform   = "uniform"
	LayoutClustered = "clustered"
)

// UniformLayout draws i.i.d. uniform values.
type UniformLayout struct{}

func (UniformLayout) Name() string { return LayoutUniform }

func (UniformLayout) Values(n int, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()
	}
	return out
}

// NoiseLayout places similar values next to each other on the ring of ids.
// Scale is the noise wavelength in positions; larger values give bigger clusters.
type NoiseLayout struct {
	Scale float64
}

func (NoiseLayout) Name() string { return LayoutClustered }

// Values samples OpenSimplex noise around a circle whose circumference is
// n/Scale noise units, so position 0 and n-1 are neighbors too. The raw noise
// is rank-transformed to quantiles so fractions are met exactly.
func (l NoiseLayout) Values(n int, rng *rand.Rand) []float64 {
	scale := l.Scale
	if scale <= 0 {
		scale = 8
	}
	noise := opensimplex.NewNormalized(rng.Int63())
	radius := float64(n) / scale / (2 * math.Pi)

	raw := make([]float64, n)
	for i := range raw {
		theta := 2 * math.Pi * float64(i) / float64(n)
		raw[i] = noise.Eval2(radius*math.Cos(theta), radius*math.Sin(theta))
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return raw[order[a]] < raw[order[b]] })

	out := make([]float64, n)
	for rank, pos := range order {
		out[pos] = (float64(rank) + 0.5) / float64(n)
	}
	return out
}

// NewLayout returns the layout for a configuration name.
func NewLayout(name string, scale float64) (Layout, error) {
	switch name {
	case "", LayoutUniform:
		return UniformLayout{}, nil
	case LayoutClustered:
		return NoiseLayout{Scale: scale}, nil
	default:
		return nil, fmt.Errorf("%w: unknown layout %q", ErrConfiguration, name)
	}
}
