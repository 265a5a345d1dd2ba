package genome

import (
	"math/rand"

	"resectnet/internal/nn"
)

// Merge crosses d with other in place. Scalars become the mean of both
// parents; enumerated choices come from a random parent. The hidden layer
// count is drawn uniformly between the parents' counts and each hidden
// position copies width, activation and steepness from a random parent that
// has a layer there.
func (d *Descriptor) Merge(rng *rand.Rand, other Descriptor) {
	self := d.Clone()

	mine, theirs := d.scalars(), other.scalars()
	for i := range mine {
		*mine[i].value = (*mine[i].value + *theirs[i].value) / 2
	}
	d.OutputSteepness = (self.OutputSteepness + other.OutputSteepness) / 2

	if rng.Intn(2) == 1 {
		d.Algorithm = other.Algorithm
	}
	if rng.Intn(2) == 1 {
		d.DataInit = other.DataInit
	}
	if rng.Intn(2) == 1 {
		d.OutputActivation = other.OutputActivation
	}

	lo, hi := self.Hidden(), other.Hidden()
	if lo > hi {
		lo, hi = hi, lo
	}
	hidden := lo + rng.Intn(hi-lo+1)

	d.Layers = make([]int, 0, hidden+2)
	d.Layers = append(d.Layers, d.NumInput)
	d.HiddenActivations = make([]string, 0, hidden)
	d.HiddenSteepness = make([]float64, 0, hidden)
	for i := 0; i < hidden; i++ {
		parent := &self
		switch {
		case i >= self.Hidden():
			parent = &other
		case i < other.Hidden() && rng.Intn(2) == 1:
			parent = &other
		}
		d.Layers = append(d.Layers, parent.Layers[i+1])
		d.HiddenActivations = append(d.HiddenActivations, parent.HiddenActivations[i])
		d.HiddenSteepness = append(d.HiddenSteepness, parent.HiddenSteepness[i])
	}
	d.Layers = append(d.Layers, d.NumOutput)
}

// Mutate perturbs d in place. Each scalar is redrawn across its range with
// probability big, otherwise nudged by value*U(-1,1)*factor when the same draw
// falls below small. Enumerated fields, the hidden layer count and every
// hidden width change with probability big.
func (d *Descriptor) Mutate(rng *rand.Rand, small, factor, big float64) {
	for _, s := range d.scalars() {
		*s.value = mutateScalar(rng, *s.value, s.rng, small, factor, big)
	}
	steepness := mustRange(ParamSteepness)
	d.OutputSteepness = mutateScalar(rng, d.OutputSteepness, steepness, small, factor, big)

	if rng.Float64() < big {
		d.Algorithm = pickOther(rng, nn.Algorithms(), d.Algorithm)
	}
	if rng.Float64() < big {
		d.DataInit = !d.DataInit
	}
	if rng.Float64() < big {
		d.OutputActivation = pickOther(rng, Activations, d.OutputActivation)
	}

	if rng.Float64() < big {
		d.resizeHidden(d.Hidden() + layerOffset(rng))
	}

	for i := 0; i < d.Hidden(); i++ {
		if rng.Float64() < big {
			width := d.Layers[i+1] + layerOffset(rng)
			if width < 1 {
				width = 1
			}
			d.Layers[i+1] = width
		}
		if rng.Float64() < big {
			d.HiddenActivations[i] = pickOther(rng, Activations, d.HiddenActivations[i])
		}
		d.HiddenSteepness[i] = mutateScalar(rng, d.HiddenSteepness[i], steepness, small, factor, big)
	}
}

// resizeHidden grows or shrinks the hidden stack to count layers (at least
// one). Added layers take the truncated average width, the mean steepness and
// the activation of the last existing hidden layer.
func (d *Descriptor) resizeHidden(count int) {
	if count < 1 {
		count = 1
	}
	current := d.Hidden()
	if count == current {
		return
	}
	if count < current {
		d.Layers = append(d.Layers[:count+1], d.NumOutput)
		d.HiddenActivations = d.HiddenActivations[:count]
		d.HiddenSteepness = d.HiddenSteepness[:count]
		return
	}

	widthSum := 0
	steepSum := 0.0
	for i := 0; i < current; i++ {
		widthSum += d.Layers[i+1]
		steepSum += d.HiddenSteepness[i]
	}
	avgWidth := widthSum / current
	avgSteep := steepSum / float64(current)
	lastActivation := d.HiddenActivations[current-1]

	layers := append([]int(nil), d.Layers[:current+1]...)
	for i := current; i < count; i++ {
		layers = append(layers, avgWidth)
		d.HiddenActivations = append(d.HiddenActivations, lastActivation)
		d.HiddenSteepness = append(d.HiddenSteepness, avgSteep)
	}
	d.Layers = append(layers, d.NumOutput)
}

// mutateScalar draws one chance for both thresholds, so a nudge happens with
// probability max(0, small-big).
func mutateScalar(rng *rand.Rand, v float64, r Range, small, factor, big float64) float64 {
	chance := rng.Float64()
	switch {
	case chance < big:
		return r.Min + rng.Float64()*(r.Max-r.Min)
	case chance < small:
		return r.Clamp(v + v*(rng.Float64()*2-1)*factor)
	}
	return v
}

func layerOffset(rng *rand.Rand) int {
	return rng.Intn(2*MaxLayerOffset+1) - MaxLayerOffset
}

// pickOther returns a uniformly chosen element of choices other than current,
// or current when there is no alternative.
func pickOther[T comparable](rng *rand.Rand, choices []T, current T) T {
	alternatives := make([]T, 0, len(choices))
	for _, c := range choices {
		if c != current {
			alternatives = append(alternatives, c)
		}
	}
	if len(alternatives) == 0 {
		return current
	}
	return alternatives[rng.Intn(len(alternatives))]
}
