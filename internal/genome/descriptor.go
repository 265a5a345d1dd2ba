package genome

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"resectnet/internal/dataset"
	"resectnet/internal/nn"
)

var (
	ErrInvalidTopology   = errors.New("invalid descriptor topology")
	ErrInvalidActivation = errors.New("invalid descriptor activation")
	ErrOutOfRange        = errors.New("descriptor parameter out of range")
	ErrDimensionMismatch = errors.New("descriptor dimensionality mismatch")
)

// Activations are the functions mutation may assign to a layer. Hard
// thresholds are absent: they have no usable derivative.
var Activations = []string{
	nn.ActivationLinear,
	nn.ActivationSigmoid,
	nn.ActivationSigmoidStepwise,
	nn.ActivationSigmoidSymmetric,
	nn.ActivationSigmoidSymmetricStepwise,
	nn.ActivationGaussian,
	nn.ActivationGaussianSymmetric,
	nn.ActivationElliot,
	nn.ActivationElliotSymmetric,
	nn.ActivationLinearPiece,
	nn.ActivationLinearPieceSymmetric,
	nn.ActivationSinSymmetric,
	nn.ActivationCosSymmetric,
	nn.ActivationSin,
	nn.ActivationCos,
}

// Descriptor is the blueprint of one candidate network: its topology, per
// layer activations and every training knob. It holds no weights.
type Descriptor struct {
	NumInput  int   `json:"num_input"`
	NumOutput int   `json:"num_output"`
	Layers    []int `json:"layers"`

	HiddenActivations []string  `json:"hidden_activations"`
	HiddenSteepness   []float64 `json:"hidden_steepness"`
	OutputActivation  string    `json:"output_activation"`
	OutputSteepness   float64   `json:"output_steepness"`

	Algorithm nn.Algorithm `json:"algorithm"`

	LearningRate                    float64 `json:"learning_rate"`
	LearningMomentum                float64 `json:"learning_momentum"`
	RpropIncreaseFactor             float64 `json:"rprop_increase_factor"`
	RpropDecreaseFactor             float64 `json:"rprop_decrease_factor"`
	RpropDeltaMin                   float64 `json:"rprop_delta_min"`
	RpropDeltaMax                   float64 `json:"rprop_delta_max"`
	RpropDeltaZero                  float64 `json:"rprop_delta_zero"`
	QuickpropDecay                  float64 `json:"quickprop_decay"`
	QuickpropMu                     float64 `json:"quickprop_mu"`
	SarpropWeightDecayShift         float64 `json:"sarprop_weight_decay_shift"`
	SarpropStepErrorThresholdFactor float64 `json:"sarprop_step_error_threshold_factor"`
	SarpropStepErrorShift           float64 `json:"sarprop_step_error_shift"`
	SarpropTemperature              float64 `json:"sarprop_temperature"`

	DataInit        bool    `json:"data_init"`
	RandomWeightMin float64 `json:"random_weight_min"`
	RandomWeightMax float64 `json:"random_weight_max"`
}

// Default returns the starting configuration for data with the given
// dimensionality: one sigmoid hidden layer sqrt(numInput) wide (truncated,
// at least one neuron), a sigmoid output and uniform weight initialisation.
func Default(numInput, numOutput int) Descriptor {
	hidden := int(math.Sqrt(float64(numInput)))
	if hidden < 1 {
		hidden = 1
	}
	steepness := mustRange(ParamSteepness).Default
	d := Descriptor{
		NumInput:          numInput,
		NumOutput:         numOutput,
		Layers:            []int{numInput, hidden, numOutput},
		HiddenActivations: []string{nn.ActivationSigmoid},
		HiddenSteepness:   []float64{steepness},
		OutputActivation:  nn.ActivationSigmoid,
		OutputSteepness:   steepness,
		Algorithm:         nn.AlgorithmRprop,
	}
	for _, s := range d.scalars() {
		*s.value = s.rng.Default
	}
	return d
}

type scalarRef struct {
	rng   Range
	value *float64
}

// scalars binds every range-table entry except per-layer steepness to its
// field, in table order.
func (d *Descriptor) scalars() []scalarRef {
	fields := map[string]*float64{
		ParamLearningRate:                    &d.LearningRate,
		ParamLearningMomentum:                &d.LearningMomentum,
		ParamRpropIncreaseFactor:             &d.RpropIncreaseFactor,
		ParamRpropDecreaseFactor:             &d.RpropDecreaseFactor,
		ParamRpropDeltaMin:                   &d.RpropDeltaMin,
		ParamRpropDeltaMax:                   &d.RpropDeltaMax,
		ParamRpropDeltaZero:                  &d.RpropDeltaZero,
		ParamQuickpropDecay:                  &d.QuickpropDecay,
		ParamQuickpropMu:                     &d.QuickpropMu,
		ParamSarpropWeightDecayShift:         &d.SarpropWeightDecayShift,
		ParamSarpropStepErrorThresholdFactor: &d.SarpropStepErrorThresholdFactor,
		ParamSarpropStepErrorShift:           &d.SarpropStepErrorShift,
		ParamSarpropTemperature:              &d.SarpropTemperature,
		ParamRandomWeightMin:                 &d.RandomWeightMin,
		ParamRandomWeightMax:                 &d.RandomWeightMax,
	}
	refs := make([]scalarRef, 0, len(fields))
	for _, r := range Ranges {
		if ptr, ok := fields[r.Name]; ok {
			refs = append(refs, scalarRef{rng: r, value: ptr})
		}
	}
	return refs
}

// Hidden returns the number of hidden layers.
func (d Descriptor) Hidden() int { return len(d.Layers) - 2 }

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	out := d
	out.Layers = append([]int(nil), d.Layers...)
	out.HiddenActivations = append([]string(nil), d.HiddenActivations...)
	out.HiddenSteepness = append([]float64(nil), d.HiddenSteepness...)
	return out
}

// TrainingParams converts the descriptor's knobs into runtime parameters.
func (d Descriptor) TrainingParams() nn.TrainingParams {
	return nn.TrainingParams{
		Algorithm:                       d.Algorithm,
		LearningRate:                    d.LearningRate,
		LearningMomentum:                d.LearningMomentum,
		RpropIncreaseFactor:             d.RpropIncreaseFactor,
		RpropDecreaseFactor:             d.RpropDecreaseFactor,
		RpropDeltaMin:                   d.RpropDeltaMin,
		RpropDeltaMax:                   d.RpropDeltaMax,
		RpropDeltaZero:                  d.RpropDeltaZero,
		QuickpropDecay:                  d.QuickpropDecay,
		QuickpropMu:                     d.QuickpropMu,
		SarpropWeightDecayShift:         d.SarpropWeightDecayShift,
		SarpropStepErrorThresholdFactor: d.SarpropStepErrorThresholdFactor,
		SarpropStepErrorShift:           d.SarpropStepErrorShift,
		SarpropTemperature:              d.SarpropTemperature,
	}
}

func (d Descriptor) Validate() error {
	if len(d.Layers) < 3 {
		return fmt.Errorf("%w: %d layers, need input, hidden and output", ErrInvalidTopology, len(d.Layers))
	}
	if d.Layers[0] != d.NumInput || d.Layers[len(d.Layers)-1] != d.NumOutput {
		return fmt.Errorf("%w: endpoints %d/%d, want %d/%d", ErrDimensionMismatch, d.Layers[0], d.Layers[len(d.Layers)-1], d.NumInput, d.NumOutput)
	}
	for i, width := range d.Layers {
		if width < 1 {
			return fmt.Errorf("%w: layer %d has width %d", ErrInvalidTopology, i, width)
		}
	}
	if len(d.HiddenActivations) != d.Hidden() || len(d.HiddenSteepness) != d.Hidden() {
		return fmt.Errorf("%w: %d hidden layers with %d activations and %d steepness values", ErrInvalidTopology, d.Hidden(), len(d.HiddenActivations), len(d.HiddenSteepness))
	}
	for _, name := range append(append([]string(nil), d.HiddenActivations...), d.OutputActivation) {
		if _, err := nn.GetActivation(name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidActivation, err)
		}
	}
	if !d.Algorithm.Valid() {
		return fmt.Errorf("%w: %q", nn.ErrUnknownAlgorithm, d.Algorithm)
	}
	steepness := mustRange(ParamSteepness)
	for i, s := range append(append([]float64(nil), d.HiddenSteepness...), d.OutputSteepness) {
		if !steepness.Contains(s) {
			return fmt.Errorf("%w: steepness %d = %g", ErrOutOfRange, i, s)
		}
	}
	for _, s := range d.scalars() {
		if !s.rng.Contains(*s.value) {
			return fmt.Errorf("%w: %s = %g", ErrOutOfRange, s.rng.Name, *s.value)
		}
	}
	return nil
}

// CreateNetwork instantiates an untrained network shaped and configured by d.
func (d Descriptor) CreateNetwork(rng *rand.Rand) (*nn.Network, error) {
	net, err := nn.New(d.Layers, rng)
	if err != nil {
		return nil, err
	}
	for i, name := range d.HiddenActivations {
		if err := net.SetActivation(i+1, name, d.HiddenSteepness[i]); err != nil {
			return nil, fmt.Errorf("hidden layer %d: %w", i+1, err)
		}
	}
	if err := net.SetActivation(len(d.Layers)-1, d.OutputActivation, d.OutputSteepness); err != nil {
		return nil, fmt.Errorf("output layer: %w", err)
	}
	if err := net.SetTraining(d.TrainingParams()); err != nil {
		return nil, err
	}
	return net, nil
}

// WeightInitializer is the part of a network InitializeWeights needs.
type WeightInitializer interface {
	InitWeights(d *dataset.Dataset) error
	RandomizeWeights(min, max float64)
}

// InitializeWeights resets net's weights the way d prescribes: scaled to the
// training data, or uniform in [RandomWeightMin, RandomWeightMax].
func (d Descriptor) InitializeWeights(net WeightInitializer, training *dataset.Dataset) error {
	if d.DataInit {
		return net.InitWeights(training)
	}
	net.RandomizeWeights(d.RandomWeightMin, d.RandomWeightMax)
	return nil
}

func (d Descriptor) String() string {
	var b strings.Builder
	widths := make([]string, len(d.Layers))
	for i, w := range d.Layers {
		widths[i] = fmt.Sprint(w)
	}
	fmt.Fprintf(&b, "layers: %s\n", strings.Join(widths, "-"))
	for i := range d.HiddenActivations {
		fmt.Fprintf(&b, "hidden %d: %s (steepness %.4g)\n", i+1, d.HiddenActivations[i], d.HiddenSteepness[i])
	}
	fmt.Fprintf(&b, "output: %s (steepness %.4g)\n", d.OutputActivation, d.OutputSteepness)
	fmt.Fprintf(&b, "algorithm: %s\n", d.Algorithm)
	for _, s := range d.scalars() {
		fmt.Fprintf(&b, "%s: %.6g\n", s.rng.Name, *s.value)
	}
	if d.DataInit {
		b.WriteString("weights: data-driven\n")
	} else {
		fmt.Fprintf(&b, "weights: uniform [%.4g, %.4g]\n", d.RandomWeightMin, d.RandomWeightMax)
	}
	return b.String()
}
