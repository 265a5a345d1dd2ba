package nn

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"resectnet/internal/dataset"
)

// Algorithm selects the weight update rule applied by TrainEpoch.
type Algorithm string

const (
	AlgorithmIncremental Algorithm = "incremental"
	AlgorithmBatch       Algorithm = "batch"
	AlgorithmRprop       Algorithm = "rprop"
	AlgorithmQuickprop   Algorithm = "quickprop"
	AlgorithmSarprop     Algorithm = "sarprop"
)

const weightLimit = 1500.0

var ErrUnknownAlgorithm = errors.New("unknown training algorithm")

// Algorithms lists every supported training algorithm.
func Algorithms() []Algorithm {
	return []Algorithm{AlgorithmIncremental, AlgorithmBatch, AlgorithmRprop, AlgorithmQuickprop, AlgorithmSarprop}
}

func (a Algorithm) Valid() bool {
	for _, known := range Algorithms() {
		if a == known {
			return true
		}
	}
	return false
}

// TrainingParams carries the knobs of every algorithm at once; only those of
// the selected Algorithm affect training.
type TrainingParams struct {
	Algorithm Algorithm

	LearningRate     float64
	LearningMomentum float64

	RpropIncreaseFactor float64
	RpropDecreaseFactor float64
	RpropDeltaMin       float64
	RpropDeltaMax       float64
	RpropDeltaZero      float64

	QuickpropDecay float64
	QuickpropMu    float64

	SarpropWeightDecayShift         float64
	SarpropStepErrorThresholdFactor float64
	SarpropStepErrorShift           float64
	SarpropTemperature              float64
}

func DefaultTrainingParams() TrainingParams {
	return TrainingParams{
		Algorithm:                       AlgorithmRprop,
		LearningRate:                    0.7,
		LearningMomentum:                0,
		RpropIncreaseFactor:             1.2,
		RpropDecreaseFactor:             0.5,
		RpropDeltaMin:                   0,
		RpropDeltaMax:                   50,
		RpropDeltaZero:                  0.1,
		QuickpropDecay:                  -0.0001,
		QuickpropMu:                     1.75,
		SarpropWeightDecayShift:         -6.644,
		SarpropStepErrorThresholdFactor: 0.1,
		SarpropStepErrorShift:           1.385,
		SarpropTemperature:              0.015,
	}
}

// SetTraining replaces the training parameters. Switching algorithm clears
// the per-weight training state.
func (n *Network) SetTraining(params TrainingParams) error {
	if !params.Algorithm.Valid() {
		return errors.Wrap(ErrUnknownAlgorithm, string(params.Algorithm))
	}
	if params.Algorithm != n.params.Algorithm {
		n.resetTraining()
	}
	n.params = params
	return nil
}

func (n *Network) Training() TrainingParams { return n.params }

// TrainEpoch runs one pass over d with the configured algorithm and returns
// the mean squared error observed during the pass.
func (n *Network) TrainEpoch(d *dataset.Dataset) (float64, error) {
	if err := n.checkDataset(d); err != nil {
		return 0, err
	}
	n.ensureTraining()

	sum := 0.0
	for i := 0; i < d.Len(); i++ {
		out := n.forward(d.Input(i))
		sum += squaredError(out, d.Output(i))
		n.backward(d.Output(i))
		if n.params.Algorithm == AlgorithmIncremental {
			n.updateIncremental()
		} else {
			n.accumulateSlopes()
		}
	}
	mse := sum / float64(d.Len()*n.NumOutput())

	switch n.params.Algorithm {
	case AlgorithmIncremental:
	case AlgorithmBatch:
		n.updateBatch(d.Len())
	case AlgorithmRprop:
		n.updateRprop()
	case AlgorithmQuickprop:
		n.updateQuickprop(d.Len())
	case AlgorithmSarprop:
		n.updateSarprop(mse)
	default:
		return 0, errors.Wrap(ErrUnknownAlgorithm, string(n.params.Algorithm))
	}
	n.epoch++
	return mse, nil
}

func (n *Network) resetTraining() {
	for _, l := range n.layers {
		l.slopes = nil
		l.prevSlopes = nil
		l.prevSteps = nil
	}
	n.epoch = 0
}

func (n *Network) ensureTraining() {
	for _, l := range n.layers {
		if l.slopes != nil {
			continue
		}
		rows, cols := l.weights.Dims()
		l.slopes = mat.NewDense(rows, cols, nil)
		l.prevSlopes = mat.NewDense(rows, cols, nil)
		l.prevSteps = mat.NewDense(rows, cols, nil)
		if n.params.Algorithm == AlgorithmRprop {
			steps := l.prevSteps.RawMatrix().Data
			for i := range steps {
				steps[i] = n.params.RpropDeltaZero
			}
		}
	}
}

// layerInput returns the bias-extended input vector seen by layer li during
// the most recent forward pass.
func (n *Network) layerInput(li int) []float64 {
	if li == 0 {
		return withBias(n.input)
	}
	return withBias(n.layers[li-1].values)
}

// backward fills every layer's deltas with the negative error gradient with
// respect to the neuron sums.
func (n *Network) backward(target []float64) {
	last := n.layers[len(n.layers)-1]
	for i := range last.deltas {
		last.deltas[i] = (target[i] - last.values[i]) * last.activation.Derivative(last.sums[i], last.values[i], last.steepness)
	}
	for li := len(n.layers) - 2; li >= 0; li-- {
		l := n.layers[li]
		next := n.layers[li+1]
		var back mat.VecDense
		back.MulVec(next.weights.T(), mat.NewVecDense(len(next.deltas), next.deltas))
		for j := range l.deltas {
			l.deltas[j] = back.AtVec(j) * l.activation.Derivative(l.sums[j], l.values[j], l.steepness)
		}
	}
}

func (n *Network) accumulateSlopes() {
	for li, l := range n.layers {
		in := n.layerInput(li)
		l.slopes.RankOne(l.slopes, 1, mat.NewVecDense(len(l.deltas), l.deltas), mat.NewVecDense(len(in), in))
	}
}

func (n *Network) updateIncremental() {
	lr, momentum := n.params.LearningRate, n.params.LearningMomentum
	for li, l := range n.layers {
		in := n.layerInput(li)
		cols := len(in)
		weights := l.weights.RawMatrix().Data
		steps := l.prevSteps.RawMatrix().Data
		for r, delta := range l.deltas {
			for c, x := range in {
				i := r*cols + c
				step := lr*delta*x + momentum*steps[i]
				weights[i] = clampWeight(weights[i] + step)
				steps[i] = step
			}
		}
	}
}

func (n *Network) updateBatch(numData int) {
	epsilon := n.params.LearningRate / float64(numData)
	for _, l := range n.layers {
		weights := l.weights.RawMatrix().Data
		slopes := l.slopes.RawMatrix().Data
		for i := range weights {
			weights[i] = clampWeight(weights[i] + slopes[i]*epsilon)
			slopes[i] = 0
		}
	}
}

// updateRprop applies iRPROP-: a weight whose slope changed sign is left alone
// for one epoch and its step shrinks.
func (n *Network) updateRprop() {
	p := n.params
	for _, l := range n.layers {
		weights := l.weights.RawMatrix().Data
		slopes := l.slopes.RawMatrix().Data
		prevSlopes := l.prevSlopes.RawMatrix().Data
		steps := l.prevSteps.RawMatrix().Data
		for i := range weights {
			prevStep := math.Max(steps[i], 0.0001)
			slope := slopes[i]
			var next float64
			if prevSlopes[i]*slope >= 0 {
				next = math.Min(prevStep*p.RpropIncreaseFactor, p.RpropDeltaMax)
			} else {
				next = math.Max(prevStep*p.RpropDecreaseFactor, p.RpropDeltaMin)
				slope = 0
			}
			if slope < 0 {
				weights[i] = math.Max(weights[i]-next, -weightLimit)
			} else {
				weights[i] = math.Min(weights[i]+next, weightLimit)
			}
			steps[i] = next
			prevSlopes[i] = slope
			slopes[i] = 0
		}
	}
}

func (n *Network) updateQuickprop(numData int) {
	p := n.params
	epsilon := p.LearningRate / float64(numData)
	shrink := p.QuickpropMu / (1.0 + p.QuickpropMu)
	for _, l := range n.layers {
		weights := l.weights.RawMatrix().Data
		slopes := l.slopes.RawMatrix().Data
		prevSlopes := l.prevSlopes.RawMatrix().Data
		steps := l.prevSteps.RawMatrix().Data
		for i := range weights {
			w := weights[i]
			prevStep := steps[i]
			slope := slopes[i] + p.QuickpropDecay*w
			prevSlope := prevSlopes[i]
			next := 0.0

			switch {
			case prevStep > 0.001:
				if slope > 0 {
					next += epsilon * slope
				}
				if slope > shrink*prevSlope {
					next += p.QuickpropMu * prevStep
				} else if d := prevSlope - slope; d != 0 {
					next += prevStep * slope / d
				}
			case prevStep < -0.001:
				if slope < 0 {
					next += epsilon * slope
				}
				if slope < shrink*prevSlope {
					next += p.QuickpropMu * prevStep
				} else if d := prevSlope - slope; d != 0 {
					next += prevStep * slope / d
				}
			default:
				next += epsilon * slope
			}

			steps[i] = next
			w += next
			weights[i] = clampWeight(w)
			prevSlopes[i] = slope
			slopes[i] = 0
		}
	}
}

// updateSarprop applies simulated-annealing RPROP. The annealing term decays
// with the epoch count since the weights were last initialised.
func (n *Network) updateSarprop(mse float64) {
	p := n.params
	rmse := math.Sqrt(mse)
	t := p.SarpropTemperature
	epoch := float64(n.epoch)
	decay := math.Exp2(-t*epoch + p.SarpropWeightDecayShift)
	noise := math.Exp2(-t*epoch + p.SarpropStepErrorShift)

	for _, l := range n.layers {
		weights := l.weights.RawMatrix().Data
		slopes := l.slopes.RawMatrix().Data
		prevSlopes := l.prevSlopes.RawMatrix().Data
		steps := l.prevSteps.RawMatrix().Data
		for i := range weights {
			prevStep := math.Max(steps[i], 0.000001)
			slope := -slopes[i] - weights[i]*decay
			sameSign := prevSlopes[i] * slope
			next := prevStep

			switch {
			case sameSign > 0:
				next = math.Min(prevStep*p.RpropIncreaseFactor, p.RpropDeltaMax)
				if slope < 0 {
					weights[i] += next
				} else {
					weights[i] -= next
				}
			case sameSign < 0:
				if prevStep < p.SarpropStepErrorThresholdFactor*mse {
					next = prevStep*p.RpropDecreaseFactor + n.rng.Float64()*rmse*noise
				} else {
					next = math.Max(prevStep*p.RpropDecreaseFactor, p.RpropDeltaMin)
				}
				slope = 0
			default:
				if slope < 0 {
					weights[i] += prevStep
				} else {
					weights[i] -= prevStep
				}
			}

			weights[i] = clampWeight(weights[i])
			steps[i] = next
			prevSlopes[i] = slope
			slopes[i] = 0
		}
	}
}

func clampWeight(w float64) float64 {
	return clip(w, -weightLimit, weightLimit)
}
