package nn

import (
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

const (
	ActivationLinear            = "linear"
	ActivationSigmoid           = "sigmoid"
	ActivationSigmoidSymmetric  = "sigmoid_symmetric"
	ActivationGaussian          = "gaussian"
	ActivationGaussianSymmetric = "gaussian_symmetric"
	ActivationElliot            = "elliot"
	ActivationElliotSymmetric   = "elliot_symmetric"

	ActivationSigmoidStepwise          = "sigmoid_stepwise"
	ActivationSigmoidSymmetricStepwise = "sigmoid_symmetric_stepwise"
	ActivationLinearPiece              = "linear_piece"
	ActivationLinearPieceSymmetric     = "linear_piece_symmetric"
	ActivationSin                      = "sin"
	ActivationCos                      = "cos"
	ActivationSinSymmetric             = "sin_symmetric"
	ActivationCosSymmetric             = "cos_symmetric"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

// ActivationFunc maps a neuron's weighted input sum to its output.
type ActivationFunc func(sum, steepness float64) float64

// DerivativeFunc returns d(value)/d(sum) given both the sum and the value the
// activation produced for it.
type DerivativeFunc func(sum, value, steepness float64) float64

type ActivationSpec struct {
	Name       string
	Func       ActivationFunc
	Derivative DerivativeFunc
}

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]ActivationSpec
}{
	m: make(map[string]ActivationSpec),
}

func init() {
	initializeBuiltInActivations()
}

func initializeBuiltInActivations() {
	MustRegisterActivation(ActivationSpec{
		Name:       ActivationLinear,
		Func:       func(sum, s float64) float64 { return sum * s },
		Derivative: func(_, _, s float64) float64 { return s },
	})
	MustRegisterActivation(ActivationSpec{
		Name: ActivationSigmoid,
		Func: func(sum, s float64) float64 {
			return 1.0 / (1.0 + math.Exp(-2.0*s*sum))
		},
		Derivative: func(_, y, s float64) float64 {
			y = clip(y, 0.01, 0.99)
			return 2.0 * s * y * (1.0 - y)
		},
	})
	MustRegisterActivation(ActivationSpec{
		Name: ActivationSigmoidSymmetric,
		Func: func(sum, s float64) float64 { return math.Tanh(s * sum) },
		Derivative: func(_, y, s float64) float64 {
			y = clip(y, -0.98, 0.98)
			return s * (1.0 - y*y)
		},
	})
	MustRegisterActivation(ActivationSpec{
		Name: ActivationGaussian,
		Func: func(sum, s float64) float64 {
			x := sum * s
			return math.Exp(-x * x)
		},
		Derivative: func(sum, y, s float64) float64 { return -2.0 * sum * s * s * y },
	})
	MustRegisterActivation(ActivationSpec{
		Name: ActivationGaussianSymmetric,
		Func: func(sum, s float64) float64 {
			x := sum * s
			return 2.0*math.Exp(-x*x) - 1.0
		},
		Derivative: func(sum, y, s float64) float64 { return -2.0 * sum * s * s * (y + 1.0) },
	})
	MustRegisterActivation(ActivationSpec{
		Name: ActivationElliot,
		Func: func(sum, s float64) float64 {
			x := sum * s
			return (x/2.0)/(1.0+math.Abs(x)) + 0.5
		},
		Derivative: func(sum, _, s float64) float64 {
			d := 1.0 + math.Abs(sum*s)
			return s / (2.0 * d * d)
		},
	})
	MustRegisterActivation(ActivationSpec{
		Name: ActivationElliotSymmetric,
		Func: func(sum, s float64) float64 {
			x := sum * s
			return x / (1.0 + math.Abs(x))
		},
		Derivative: func(sum, _, s float64) float64 {
			d := 1.0 + math.Abs(sum*s)
			return s / (d * d)
		},
	})
	sigmoidSteps := newStepwise(func(x float64) float64 { return 1.0 / (1.0 + math.Exp(-2.0*x)) }, 0, 1)
	MustRegisterActivation(ActivationSpec{
		Name:       ActivationSigmoidStepwise,
		Func:       func(sum, s float64) float64 { return sigmoidSteps.value(sum * s) },
		Derivative: func(sum, _, s float64) float64 { return s * sigmoidSteps.slope(sum*s) },
	})
	symmetricSteps := newStepwise(math.Tanh, -1, 1)
	MustRegisterActivation(ActivationSpec{
		Name:       ActivationSigmoidSymmetricStepwise,
		Func:       func(sum, s float64) float64 { return symmetricSteps.value(sum * s) },
		Derivative: func(sum, _, s float64) float64 { return s * symmetricSteps.slope(sum*s) },
	})
	MustRegisterActivation(ActivationSpec{
		Name:       ActivationLinearPiece,
		Func:       func(sum, s float64) float64 { return clip(sum*s, 0, 1) },
		Derivative: func(_, _, s float64) float64 { return s },
	})
	MustRegisterActivation(ActivationSpec{
		Name:       ActivationLinearPieceSymmetric,
		Func:       func(sum, s float64) float64 { return clip(sum*s, -1, 1) },
		Derivative: func(_, _, s float64) float64 { return s },
	})
	MustRegisterActivation(ActivationSpec{
		Name:       ActivationSinSymmetric,
		Func:       func(sum, s float64) float64 { return math.Sin(sum * s) },
		Derivative: func(sum, _, s float64) float64 { return s * math.Cos(sum*s) },
	})
	MustRegisterActivation(ActivationSpec{
		Name:       ActivationCosSymmetric,
		Func:       func(sum, s float64) float64 { return math.Cos(sum * s) },
		Derivative: func(sum, _, s float64) float64 { return -s * math.Sin(sum*s) },
	})
	MustRegisterActivation(ActivationSpec{
		Name:       ActivationSin,
		Func:       func(sum, s float64) float64 { return math.Sin(sum*s)/2.0 + 0.5 },
		Derivative: func(sum, _, s float64) float64 { return s * math.Cos(sum*s) / 2.0 },
	})
	MustRegisterActivation(ActivationSpec{
		Name:       ActivationCos,
		Func:       func(sum, s float64) float64 { return math.Cos(sum*s)/2.0 + 0.5 },
		Derivative: func(sum, _, s float64) float64 { return -s * math.Sin(sum*s) / 2.0 },
	})
}

// stepBreakpoints are where the stepwise sigmoids change slope, in units of
// steepness*sum.
var stepBreakpoints = []float64{
	-2.64665246009826660156,
	-1.47221946716308593750,
	-0.54910176992416381836,
	0.54910176992416381836,
	1.47221946716308593750,
	2.64665246009826660156,
}

// stepwise is a piecewise linear approximation of a smooth activation. It
// interpolates between the smooth values at stepBreakpoints and saturates at
// lo and hi outside them.
type stepwise struct {
	values []float64
	lo, hi float64
}

func newStepwise(smooth func(float64) float64, lo, hi float64) stepwise {
	values := make([]float64, len(stepBreakpoints))
	for i, x := range stepBreakpoints {
		values[i] = smooth(x)
	}
	return stepwise{values: values, lo: lo, hi: hi}
}

// segment returns i with stepBreakpoints[i] <= x < stepBreakpoints[i+1], or
// false when x is outside the interpolated span.
func (w stepwise) segment(x float64) (int, bool) {
	last := len(stepBreakpoints) - 1
	if x < stepBreakpoints[0] || x >= stepBreakpoints[last] {
		return 0, false
	}
	i := 0
	for x >= stepBreakpoints[i+1] {
		i++
	}
	return i, true
}

func (w stepwise) value(x float64) float64 {
	i, ok := w.segment(x)
	if !ok {
		if x < stepBreakpoints[0] {
			return w.lo
		}
		return w.hi
	}
	x0, x1 := stepBreakpoints[i], stepBreakpoints[i+1]
	return w.values[i] + (x-x0)*(w.values[i+1]-w.values[i])/(x1-x0)
}

func (w stepwise) slope(x float64) float64 {
	i, ok := w.segment(x)
	if !ok {
		return 0
	}
	return (w.values[i+1] - w.values[i]) / (stepBreakpoints[i+1] - stepBreakpoints[i])
}

func RegisterActivation(spec ActivationSpec) error {
	if spec.Name == "" {
		return errors.New("activation name is required")
	}
	if spec.Func == nil || spec.Derivative == nil {
		return errors.Errorf("activation %s needs both a function and a derivative", spec.Name)
	}

	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()

	if _, exists := activationRegistry.m[spec.Name]; exists {
		return errors.Wrap(ErrActivationExists, spec.Name)
	}
	activationRegistry.m[spec.Name] = spec
	return nil
}

func MustRegisterActivation(spec ActivationSpec) {
	if err := RegisterActivation(spec); err != nil {
		panic(err)
	}
}

func GetActivation(name string) (ActivationSpec, error) {
	activationRegistry.mu.RLock()
	spec, ok := activationRegistry.m[name]
	activationRegistry.mu.RUnlock()
	if !ok {
		return ActivationSpec{}, errors.Wrap(ErrActivationNotFound, name)
	}
	return spec, nil
}

// ListActivations returns registered activation names in sorted order.
func ListActivations() []string {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()

	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetActivationRegistryForTests() {
	activationRegistry.mu.Lock()
	activationRegistry.m = make(map[string]ActivationSpec)
	activationRegistry.mu.Unlock()
	initializeBuiltInActivations()
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
