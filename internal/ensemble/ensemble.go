package ensemble

import (
	"errors"
	"fmt"

	"resectnet/internal/dataset"
)

var (
	ErrEmptyEnsemble = errors.New("ensemble has no members")
	ErrShapeMismatch = errors.New("member shape mismatch")
)

// Member is a trained network that can answer single-sample queries.
type Member interface {
	NumInput() int
	NumOutput() int
	Run(input []float64) ([]float64, error)
}

// Ensemble averages the outputs of its members. Members must share the input
// and output width of the first one added.
type Ensemble struct {
	members []Member
}

func New() *Ensemble {
	return &Ensemble{}
}

func (e *Ensemble) Len() int { return len(e.members) }

func (e *Ensemble) Add(m Member) error {
	if m == nil {
		return errors.New("member is required")
	}
	if len(e.members) > 0 {
		first := e.members[0]
		if m.NumInput() != first.NumInput() || m.NumOutput() != first.NumOutput() {
			return fmt.Errorf("%w: got %dx%d want %dx%d", ErrShapeMismatch, m.NumInput(), m.NumOutput(), first.NumInput(), first.NumOutput())
		}
	}
	e.members = append(e.members, m)
	return nil
}

// Run returns the per-dimension mean of every member's output for input.
func (e *Ensemble) Run(input []float64) ([]float64, error) {
	if len(e.members) == 0 {
		return nil, ErrEmptyEnsemble
	}
	out := make([]float64, e.members[0].NumOutput())
	for i, m := range e.members {
		values, err := m.Run(input)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		for j := range out {
			out[j] += values[j]
		}
	}
	for j := range out {
		out[j] /= float64(len(e.members))
	}
	return out, nil
}

// Predict runs every sample of d through the ensemble, in order.
func (e *Ensemble) Predict(d *dataset.Dataset) ([][]float64, error) {
	if len(e.members) == 0 {
		return nil, ErrEmptyEnsemble
	}
	out := make([][]float64, d.Len())
	for i := 0; i < d.Len(); i++ {
		values, err := e.Run(d.Input(i))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = values
	}
	return out, nil
}

// Reset drops every member.
func (e *Ensemble) Reset() {
	e.members = nil
}
