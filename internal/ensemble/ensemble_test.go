package ensemble

import (
	"errors"
	"math/rand"
	"testing"

	"resectnet/internal/dataset"
	"resectnet/internal/nn"
)

type constMember struct {
	in  int
	out []float64
}

func (c constMember) NumInput() int  { return c.in }
func (c constMember) NumOutput() int { return len(c.out) }
func (c constMember) Run([]float64) ([]float64, error) {
	return append([]float64(nil), c.out...), nil
}

func TestSingleMemberReturnsRawOutput(t *testing.T) {
	net, err := nn.New([]int{2, 3, 2}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	e := New()
	if err := e.Add(net); err != nil {
		t.Fatalf("add: %v", err)
	}
	input := []float64{0.3, -0.2}
	want, err := net.Run(input)
	if err != nil {
		t.Fatalf("run network: %v", err)
	}
	got, err := e.Run(input)
	if err != nil {
		t.Fatalf("run ensemble: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("output %d: got=%f want=%f", i, got[i], want[i])
		}
	}
}

func TestRunAveragesMembers(t *testing.T) {
	e := New()
	for _, out := range [][]float64{{1, 0}, {0, 0}, {0.5, 3}} {
		if err := e.Add(constMember{in: 1, out: out}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	got, err := e.Run([]float64{0})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got[0] != 0.5 || got[1] != 1 {
		t.Fatalf("unexpected mean: %v", got)
	}
}

func TestAddRejectsShapeMismatch(t *testing.T) {
	e := New()
	if err := e.Add(constMember{in: 2, out: []float64{1}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := e.Add(constMember{in: 2, out: []float64{1, 2}}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if err := e.Add(constMember{in: 3, out: []float64{1}}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if e.Len() != 1 {
		t.Fatalf("rejected members must not be kept, len=%d", e.Len())
	}
}

func TestEmptyEnsembleFails(t *testing.T) {
	e := New()
	if _, err := e.Run([]float64{1}); !errors.Is(err, ErrEmptyEnsemble) {
		t.Fatalf("expected ErrEmptyEnsemble, got %v", err)
	}
	if _, err := e.Predict(dataset.New(1, 1, 0)); !errors.Is(err, ErrEmptyEnsemble) {
		t.Fatalf("expected ErrEmptyEnsemble, got %v", err)
	}
}

func TestPredictKeepsOrderAndSurvivesReset(t *testing.T) {
	d, err := dataset.FromSamples([][]float64{{1}, {2}, {3}}, [][]float64{{0}, {0}, {0}})
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	e := New()
	if err := e.Add(constMember{in: 1, out: []float64{0.25}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	preds, err := e.Predict(d)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(preds) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(preds))
	}

	e.Reset()
	if e.Len() != 0 {
		t.Fatalf("reset left %d members", e.Len())
	}
	for i, p := range preds {
		if len(p) != 1 || p[0] != 0.25 {
			t.Fatalf("prediction %d changed after reset: %v", i, p)
		}
	}
}
