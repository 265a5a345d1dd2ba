package dataset

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrShapeMismatch   = errors.New("sample shape mismatch")
	ErrIndexOutOfRange = errors.New("sample index out of range")
	ErrGroupOutOfRange = errors.New("stratification group out of range")
	ErrSampleCount     = errors.New("sample count does not match header")
)

// Dataset is an ordered collection of labelled samples with fixed input and
// output dimensionality. Row vectors are never modified after they are added,
// so partitions of a dataset share row storage; Duplicate does not.
type Dataset struct {
	numInput  int
	numOutput int
	inputs    [][]float64
	outputs   [][]float64
}

// New returns an empty dataset with room for capacity samples.
func New(numInput, numOutput, capacity int) *Dataset {
	if capacity < 0 {
		capacity = 0
	}
	return &Dataset{
		numInput:  numInput,
		numOutput: numOutput,
		inputs:    make([][]float64, 0, capacity),
		outputs:   make([][]float64, 0, capacity),
	}
}

func FromSamples(inputs, outputs [][]float64) (*Dataset, error) {
	if len(inputs) != len(outputs) {
		return nil, fmt.Errorf("%w: %d inputs for %d outputs", ErrShapeMismatch, len(inputs), len(outputs))
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("samples are required")
	}
	d := New(len(inputs[0]), len(outputs[0]), len(inputs))
	for i := range inputs {
		if err := d.Append(cloneRow(inputs[i]), cloneRow(outputs[i])); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return d, nil
}

func (d *Dataset) Len() int       { return len(d.inputs) }
func (d *Dataset) Cap() int       { return cap(d.inputs) }
func (d *Dataset) NumInput() int  { return d.numInput }
func (d *Dataset) NumOutput() int { return d.numOutput }

func (d *Dataset) Input(i int) []float64  { return d.inputs[i] }
func (d *Dataset) Output(i int) []float64 { return d.outputs[i] }

// Append adds a sample. The slices are retained, not copied.
func (d *Dataset) Append(input, output []float64) error {
	if len(input) != d.numInput || len(output) != d.numOutput {
		return fmt.Errorf("%w: got %dx%d want %dx%d", ErrShapeMismatch, len(input), len(output), d.numInput, d.numOutput)
	}
	d.inputs = append(d.inputs, input)
	d.outputs = append(d.outputs, output)
	return nil
}

// Set overwrites the sample stored at position i.
func (d *Dataset) Set(i int, input, output []float64) error {
	if i < 0 || i >= d.Len() {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if len(input) != d.numInput || len(output) != d.numOutput {
		return fmt.Errorf("%w: got %dx%d want %dx%d", ErrShapeMismatch, len(input), len(output), d.numInput, d.numOutput)
	}
	d.inputs[i] = input
	d.outputs[i] = output
	return nil
}

// Shuffle permutes the samples in place.
func (d *Dataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(d.Len(), func(i, j int) {
		d.inputs[i], d.inputs[j] = d.inputs[j], d.inputs[i]
		d.outputs[i], d.outputs[j] = d.outputs[j], d.outputs[i]
	})
}

// Duplicate returns a deep copy that shares no storage with d.
func (d *Dataset) Duplicate() *Dataset {
	out := New(d.numInput, d.numOutput, d.Len())
	for i := range d.inputs {
		out.inputs = append(out.inputs, cloneRow(d.inputs[i]))
		out.outputs = append(out.outputs, cloneRow(d.outputs[i]))
	}
	return out
}

// Subset returns the n samples starting at start.
func (d *Dataset) Subset(start, n int) (*Dataset, error) {
	if start < 0 || n < 0 || start+n > d.Len() {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrIndexOutOfRange, start, start+n, d.Len())
	}
	out := New(d.numInput, d.numOutput, n)
	out.inputs = append(out.inputs, d.inputs[start:start+n]...)
	out.outputs = append(out.outputs, d.outputs[start:start+n]...)
	return out, nil
}

// Merge concatenates sets in order. All sets must share dimensionality.
func Merge(sets ...*Dataset) (*Dataset, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("at least one dataset is required")
	}
	total := 0
	for i, set := range sets {
		if set.numInput != sets[0].numInput || set.numOutput != sets[0].numOutput {
			return nil, fmt.Errorf("%w: dataset %d is %dx%d, want %dx%d", ErrShapeMismatch, i, set.numInput, set.numOutput, sets[0].numInput, sets[0].numOutput)
		}
		total += set.Len()
	}
	out := New(sets[0].numInput, sets[0].numOutput, total)
	for _, set := range sets {
		out.inputs = append(out.inputs, set.inputs...)
		out.outputs = append(out.outputs, set.outputs...)
	}
	return out, nil
}

// Rows flattens each sample into input values followed by output values.
func (d *Dataset) Rows() [][]float64 {
	rows := make([][]float64, 0, d.Len())
	for i := range d.inputs {
		row := make([]float64, 0, d.numInput+d.numOutput)
		row = append(row, d.inputs[i]...)
		row = append(row, d.outputs[i]...)
		rows = append(rows, row)
	}
	return rows
}

// InputRange returns the smallest and largest input value across all samples.
func (d *Dataset) InputRange() (float64, float64) {
	if d.Len() == 0 || d.numInput == 0 {
		return 0, 0
	}
	lo, hi := d.inputs[0][0], d.inputs[0][0]
	for _, row := range d.inputs {
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

// Stratify partitions d into groups using classify. Each group is allocated
// with the capacity of the whole input so it never reallocates; encounter
// order is preserved inside a group.
func Stratify(d *Dataset, groups int, classify func(input, output []float64) int) ([]*Dataset, error) {
	if groups < 1 {
		return nil, fmt.Errorf("group count must be > 0")
	}
	if classify == nil {
		return nil, fmt.Errorf("classification function is required")
	}
	out := make([]*Dataset, groups)
	for g := range out {
		out[g] = New(d.numInput, d.numOutput, d.Len())
	}
	for i := range d.inputs {
		g := classify(d.inputs[i], d.outputs[i])
		if g < 0 || g >= groups {
			return nil, fmt.Errorf("%w: sample %d classified as %d, want [0, %d)", ErrGroupOutOfRange, i, g, groups)
		}
		out[g].inputs = append(out[g].inputs, d.inputs[i])
		out[g].outputs = append(out[g].outputs, d.outputs[i])
	}
	return out, nil
}

// Threshold classifies samples into two groups by comparing the first output
// against cutoff.
func Threshold(cutoff float64) func(input, output []float64) int {
	return func(_, output []float64) int {
		if output[0] >= cutoff {
			return 1
		}
		return 0
	}
}

func cloneRow(row []float64) []float64 {
	return append([]float64(nil), row...)
}
