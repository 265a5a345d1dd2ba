package crossval

import (
	"errors"
	"math/rand"
	"testing"

	"resectnet/internal/dataset"
)

func linearStrata(t *testing.T, n int) []*dataset.Dataset {
	t.Helper()
	d := dataset.New(2, 1, n)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n)
		if err := d.Append([]float64{x, 1 - x}, []float64{x}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	strata, err := dataset.Stratify(d, 2, dataset.Threshold(0.5))
	if err != nil {
		t.Fatalf("stratify: %v", err)
	}
	return strata
}

func TestRunHundredSamplesTenFoldsTwoRepeats(t *testing.T) {
	strata := linearStrata(t, 100)
	rng := rand.New(rand.NewSource(1))

	calls := 0
	seen := map[[2]int]bool{}
	err := Run(rng, strata, 10, 2, func(training, validation *dataset.Dataset, fold, repeat int) error {
		calls++
		if training.Len() != 90 || validation.Len() != 10 {
			t.Fatalf("fold %d repeat %d: split %d/%d, want 90/10", fold, repeat, training.Len(), validation.Len())
		}
		if fold < 0 || fold >= 10 {
			t.Fatalf("fold out of range: %d", fold)
		}
		if repeat < 0 || repeat >= 2 {
			t.Fatalf("repeat out of range: %d", repeat)
		}
		seen[[2]int{fold, repeat}] = true
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 20 {
		t.Fatalf("expected 20 callbacks, got %d", calls)
	}
	if len(seen) != 20 {
		t.Fatalf("expected 20 distinct fold/repeat pairs, got %d", len(seen))
	}
}

func TestRunCallbackOrderIsFoldMajor(t *testing.T) {
	strata := linearStrata(t, 12)
	var order [][2]int
	err := Run(rand.New(rand.NewSource(3)), strata, 3, 2, func(_, _ *dataset.Dataset, fold, repeat int) error {
		order = append(order, [2]int{fold, repeat})
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := [][2]int{{0, 0}, {1, 0}, {2, 0}, {0, 1}, {1, 1}, {2, 1}}
	if len(order) != len(want) {
		t.Fatalf("unexpected call count: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("call %d: got %v want %v", i, order[i], want[i])
		}
	}
}

func TestRunSplitsCoverInputForUnevenFolds(t *testing.T) {
	for _, tc := range []struct {
		name    string
		samples int
		folds   int
		repeats int
	}{
		{name: "seven-by-three", samples: 7, folds: 3, repeats: 2},
		{name: "thirty-three-by-four", samples: 33, folds: 4, repeats: 1},
		{name: "eleven-by-five", samples: 11, folds: 5, repeats: 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			strata := linearStrata(t, tc.samples)
			calls := 0
			err := Run(rand.New(rand.NewSource(5)), strata, tc.folds, tc.repeats, func(training, validation *dataset.Dataset, _, _ int) error {
				calls++
				if training.Len()+validation.Len() != tc.samples {
					t.Fatalf("split %d+%d does not cover %d samples", training.Len(), validation.Len(), tc.samples)
				}
				held := map[float64]bool{}
				for i := 0; i < validation.Len(); i++ {
					held[validation.Input(i)[0]] = true
				}
				for i := 0; i < training.Len(); i++ {
					if held[training.Input(i)[0]] {
						t.Fatalf("sample %v appears in training and validation", training.Input(i))
					}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if calls != tc.folds*tc.repeats {
				t.Fatalf("expected %d callbacks, got %d", tc.folds*tc.repeats, calls)
			}
		})
	}
}

func TestPartitionIsDisjointAndBalanced(t *testing.T) {
	strata := linearStrata(t, 23)
	parts := Partition(strata, 4)

	seen := map[float64]int{}
	for f, part := range parts {
		if part.Len() < 5 || part.Len() > 7 {
			t.Fatalf("fold %d has %d samples", f, part.Len())
		}
		for i := 0; i < part.Len(); i++ {
			seen[part.Input(i)[0]]++
		}
	}
	if len(seen) != 23 {
		t.Fatalf("expected 23 distinct samples across folds, got %d", len(seen))
	}
	for v, n := range seen {
		if n != 1 {
			t.Fatalf("sample %v assigned %d times", v, n)
		}
	}
}

func TestRunPreconditions(t *testing.T) {
	strata := linearStrata(t, 10)
	noop := func(_, _ *dataset.Dataset, _, _ int) error { return nil }
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name    string
		strata  []*dataset.Dataset
		folds   int
		repeats int
		want    error
	}{
		{name: "no-strata", strata: nil, folds: 2, repeats: 1, want: ErrNoStrata},
		{name: "one-fold", strata: strata, folds: 1, repeats: 1, want: ErrTooFewFolds},
		{name: "zero-repeats", strata: strata, folds: 2, repeats: 0, want: ErrTooFewRepeats},
		{name: "too-many-folds", strata: strata, folds: 11, repeats: 1, want: ErrTooFewSamples},
		{name: "shape-mismatch", strata: []*dataset.Dataset{strata[0], dataset.New(3, 1, 0)}, folds: 2, repeats: 1, want: ErrShapeMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Run(rng, tc.strata, tc.folds, tc.repeats, noop)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRunStopsOnCallbackError(t *testing.T) {
	strata := linearStrata(t, 10)
	boom := errors.New("boom")
	calls := 0
	err := Run(rand.New(rand.NewSource(1)), strata, 5, 2, func(_, _ *dataset.Dataset, _, _ int) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one callback before stopping, got %d", calls)
	}
}
