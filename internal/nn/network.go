package nn

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"resectnet/internal/dataset"
)

var (
	ErrTopology     = errors.New("invalid network topology")
	ErrInputSize    = errors.New("input size mismatch")
	ErrWeightCount  = errors.New("weight count mismatch")
	ErrEmptyDataset = errors.New("dataset is empty")
	ErrLayerIndex   = errors.New("layer index out of range")
)

// layer holds the incoming connections of one non-input layer. Row i of
// weights feeds neuron i; the last column is the bias.
type layer struct {
	weights    *mat.Dense
	activation ActivationSpec
	steepness  float64

	sums   []float64
	values []float64
	deltas []float64

	slopes     *mat.Dense
	prevSlopes *mat.Dense
	prevSteps  *mat.Dense
}

// Network is a fully connected feed-forward network. It is not safe for
// concurrent use; callers that train in parallel own one network each.
type Network struct {
	sizes  []int
	layers []*layer
	params TrainingParams
	rng    *rand.Rand

	input []float64
	epoch int
}

// New builds a network with the given layer widths, input first. Hidden layers
// default to sigmoid_symmetric and the output layer to sigmoid, all with
// steepness 0.5. Weights start uniformly in [-0.1, 0.1].
func New(sizes []int, rng *rand.Rand) (*Network, error) {
	if len(sizes) < 2 {
		return nil, errors.Wrapf(ErrTopology, "need at least 2 layers, got %d", len(sizes))
	}
	for i, size := range sizes {
		if size < 1 {
			return nil, errors.Wrapf(ErrTopology, "layer %d has %d neurons", i, size)
		}
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}

	hidden, err := GetActivation(ActivationSigmoidSymmetric)
	if err != nil {
		return nil, err
	}
	output, err := GetActivation(ActivationSigmoid)
	if err != nil {
		return nil, err
	}

	n := &Network{
		sizes:  append([]int(nil), sizes...),
		layers: make([]*layer, len(sizes)-1),
		params: DefaultTrainingParams(),
		rng:    rng,
	}
	for i := 1; i < len(sizes); i++ {
		act := hidden
		if i == len(sizes)-1 {
			act = output
		}
		n.layers[i-1] = &layer{
			weights:    mat.NewDense(sizes[i], sizes[i-1]+1, nil),
			activation: act,
			steepness:  0.5,
			sums:       make([]float64, sizes[i]),
			values:     make([]float64, sizes[i]),
			deltas:     make([]float64, sizes[i]),
		}
	}
	n.RandomizeWeights(-0.1, 0.1)
	return n, nil
}

func (n *Network) NumInput() int  { return n.sizes[0] }
func (n *Network) NumOutput() int { return n.sizes[len(n.sizes)-1] }

// Layers returns a copy of the layer widths.
func (n *Network) Layers() []int { return append([]int(nil), n.sizes...) }

func (n *Network) TotalConnections() int {
	total := 0
	for _, l := range n.layers {
		r, c := l.weights.Dims()
		total += r * c
	}
	return total
}

// SetActivation configures the activation of layer index (1 is the first
// hidden layer, len(Layers())-1 the output layer).
func (n *Network) SetActivation(index int, name string, steepness float64) error {
	if index < 1 || index >= len(n.sizes) {
		return errors.Wrapf(ErrLayerIndex, "layer %d of %d", index, len(n.sizes))
	}
	spec, err := GetActivation(name)
	if err != nil {
		return err
	}
	l := n.layers[index-1]
	l.activation = spec
	l.steepness = steepness
	return nil
}

// Activation returns the activation name and steepness of layer index.
func (n *Network) Activation(index int) (string, float64, error) {
	if index < 1 || index >= len(n.sizes) {
		return "", 0, errors.Wrapf(ErrLayerIndex, "layer %d of %d", index, len(n.sizes))
	}
	l := n.layers[index-1]
	return l.activation.Name, l.steepness, nil
}

// Run returns the network output for one input vector.
func (n *Network) Run(input []float64) ([]float64, error) {
	if len(input) != n.NumInput() {
		return nil, errors.Wrapf(ErrInputSize, "got %d want %d", len(input), n.NumInput())
	}
	out := n.forward(input)
	return append([]float64(nil), out...), nil
}

// Test returns the mean squared error over d without changing any weights.
func (n *Network) Test(d *dataset.Dataset) (float64, error) {
	if err := n.checkDataset(d); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := 0; i < d.Len(); i++ {
		out := n.forward(d.Input(i))
		sum += squaredError(out, d.Output(i))
	}
	return sum / float64(d.Len()*n.NumOutput()), nil
}

// Weights returns a flat copy of every connection weight, layer by layer.
func (n *Network) Weights() []float64 {
	out := make([]float64, 0, n.TotalConnections())
	for _, l := range n.layers {
		out = append(out, l.weights.RawMatrix().Data...)
	}
	return out
}

// SetWeights restores weights previously returned by Weights.
func (n *Network) SetWeights(weights []float64) error {
	if len(weights) != n.TotalConnections() {
		return errors.Wrapf(ErrWeightCount, "got %d want %d", len(weights), n.TotalConnections())
	}
	offset := 0
	for _, l := range n.layers {
		data := l.weights.RawMatrix().Data
		copy(data, weights[offset:offset+len(data)])
		offset += len(data)
	}
	return nil
}

// RandomizeWeights draws every weight uniformly from [min, max] and clears
// any training state.
func (n *Network) RandomizeWeights(min, max float64) {
	for _, l := range n.layers {
		data := l.weights.RawMatrix().Data
		for i := range data {
			data[i] = min + n.rng.Float64()*(max-min)
		}
	}
	n.resetTraining()
}

// InitWeights performs a Nguyen-Widrow style initialisation scaled to the
// input range of d: connection weights in [0, scale] and biases in
// [-scale, scale]. Training state is cleared.
func (n *Network) InitWeights(d *dataset.Dataset) error {
	if err := n.checkDataset(d); err != nil {
		return err
	}
	lo, hi := d.InputRange()
	multiplier := hi - lo
	if multiplier == 0 {
		multiplier = 1
	}
	hidden := 0
	for _, size := range n.sizes[1 : len(n.sizes)-1] {
		hidden += size
	}
	if hidden == 0 {
		hidden = n.NumOutput()
	}
	scale := math.Pow(0.7*float64(hidden), 1.0/float64(n.NumInput())) / multiplier

	for _, l := range n.layers {
		rows, cols := l.weights.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				if c == cols-1 {
					l.weights.Set(r, c, -scale+n.rng.Float64()*2*scale)
				} else {
					l.weights.Set(r, c, n.rng.Float64()*scale)
				}
			}
		}
	}
	n.resetTraining()
	return nil
}

// Clone returns a deep copy driven by rng. Training state is not copied.
func (n *Network) Clone(rng *rand.Rand) *Network {
	out := &Network{
		sizes:  append([]int(nil), n.sizes...),
		layers: make([]*layer, len(n.layers)),
		params: n.params,
		rng:    rng,
	}
	for i, l := range n.layers {
		out.layers[i] = &layer{
			weights:    mat.DenseCopyOf(l.weights),
			activation: l.activation,
			steepness:  l.steepness,
			sums:       make([]float64, len(l.sums)),
			values:     make([]float64, len(l.values)),
			deltas:     make([]float64, len(l.deltas)),
		}
	}
	return out
}

func (n *Network) checkDataset(d *dataset.Dataset) error {
	if d == nil || d.Len() == 0 {
		return ErrEmptyDataset
	}
	if d.NumInput() != n.NumInput() || d.NumOutput() != n.NumOutput() {
		return errors.Wrapf(ErrInputSize, "dataset is %dx%d, network is %dx%d", d.NumInput(), d.NumOutput(), n.NumInput(), n.NumOutput())
	}
	return nil
}

func (n *Network) forward(input []float64) []float64 {
	n.input = input
	prev := input
	for _, l := range n.layers {
		in := withBias(prev)
		var sums mat.VecDense
		sums.MulVec(l.weights, mat.NewVecDense(len(in), in))
		for i := range l.sums {
			l.sums[i] = sums.AtVec(i)
			l.values[i] = l.activation.Func(l.sums[i], l.steepness)
		}
		prev = l.values
	}
	return prev
}

func withBias(values []float64) []float64 {
	out := make([]float64, len(values)+1)
	copy(out, values)
	out[len(values)] = 1
	return out
}

func squaredError(out, target []float64) float64 {
	sum := 0.0
	for i := range out {
		diff := target[i] - out[i]
		sum += diff * diff
	}
	return sum
}
