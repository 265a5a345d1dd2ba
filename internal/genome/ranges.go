package genome

// Range bounds one tunable scalar of a Descriptor.
type Range struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

const (
	ParamLearningRate                    = "learning_rate"
	ParamLearningMomentum                = "learning_momentum"
	ParamRpropIncreaseFactor             = "rprop_increase_factor"
	ParamRpropDecreaseFactor             = "rprop_decrease_factor"
	ParamRpropDeltaMin                   = "rprop_delta_min"
	ParamRpropDeltaMax                   = "rprop_delta_max"
	ParamRpropDeltaZero                  = "rprop_delta_zero"
	ParamQuickpropDecay                  = "quickprop_decay"
	ParamQuickpropMu                     = "quickprop_mu"
	ParamSarpropWeightDecayShift         = "sarprop_weight_decay_shift"
	ParamSarpropStepErrorThresholdFactor = "sarprop_step_error_threshold_factor"
	ParamSarpropStepErrorShift           = "sarprop_step_error_shift"
	ParamSarpropTemperature              = "sarprop_temperature"
	ParamSteepness                       = "steepness"
	ParamRandomWeightMin                 = "random_weight_min"
	ParamRandomWeightMax                 = "random_weight_max"
)

// Ranges is the table of valid values for every evolved scalar. Order is
// significant: mutation visits scalars in this order.
var Ranges = []Range{
	{Name: ParamLearningMomentum, Min: 0, Max: 1, Default: 0},
	{Name: ParamLearningRate, Min: 0, Max: 1, Default: 0.7},
	{Name: ParamQuickpropDecay, Min: -0.1, Max: 0, Default: -0.0001},
	{Name: ParamQuickpropMu, Min: 1, Max: 10, Default: 1.75},
	{Name: ParamRpropDecreaseFactor, Min: 0, Max: 1, Default: 0.5},
	{Name: ParamRpropIncreaseFactor, Min: 1, Max: 10, Default: 1.2},
	{Name: ParamRpropDeltaMin, Min: 0, Max: 0.1, Default: 0},
	{Name: ParamRpropDeltaMax, Min: 0, Max: 500, Default: 50},
	{Name: ParamRpropDeltaZero, Min: 0, Max: 1, Default: 0.1},
	{Name: ParamSarpropWeightDecayShift, Min: -50, Max: 0, Default: -6.644},
	{Name: ParamSarpropStepErrorThresholdFactor, Min: 0, Max: 1, Default: 0.1},
	{Name: ParamSarpropStepErrorShift, Min: 0, Max: 10, Default: 1.385},
	{Name: ParamSarpropTemperature, Min: 0, Max: 1, Default: 0.015},
	{Name: ParamRandomWeightMin, Min: -1, Max: 0, Default: -0.1},
	{Name: ParamRandomWeightMax, Min: 0, Max: 1, Default: 0.1},
	{Name: ParamSteepness, Min: 0, Max: 1, Default: 0.5},
}

// RangeOf looks up a parameter range by name.
func RangeOf(name string) (Range, bool) {
	for _, r := range Ranges {
		if r.Name == name {
			return r, true
		}
	}
	return Range{}, false
}

func mustRange(name string) Range {
	r, ok := RangeOf(name)
	if !ok {
		panic("genome: unknown parameter " + name)
	}
	return r
}

// MaxLayerOffset bounds how far one mutation moves the hidden layer count or
// a hidden layer's width.
const MaxLayerOffset = 4
