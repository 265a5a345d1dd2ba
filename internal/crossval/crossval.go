package crossval

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"resectnet/internal/dataset"
)

var (
	ErrNoStrata       = errors.New("at least one stratum is required")
	ErrTooFewFolds    = errors.New("fold count must be >= 2")
	ErrTooFewRepeats  = errors.New("repeat count must be >= 1")
	ErrTooFewSamples  = errors.New("fewer samples than folds")
	ErrShapeMismatch  = errors.New("strata dimensionality mismatch")
	ErrNilFoldHandler = errors.New("fold handler is required")
)

// FoldFunc receives one train/validation split. Returning an error stops the
// cross-validation run.
type FoldFunc func(training, validation *dataset.Dataset, fold, repeat int) error

// Run performs stratified repeated k-fold cross-validation over strata. Every
// repeat shuffles each stratum, deals it across folds in proportion to its
// size, shuffles the folds and then calls fn once per fold with the remaining
// folds concatenated as the training set. Calls are fold-major within a repeat.
//
// Strata are shuffled in place.
func Run(rng *rand.Rand, strata []*dataset.Dataset, folds, repeats int, fn FoldFunc) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(strata) == 0 {
		return ErrNoStrata
	}
	if folds < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewFolds, folds)
	}
	if repeats < 1 {
		return fmt.Errorf("%w: got %d", ErrTooFewRepeats, repeats)
	}
	if fn == nil {
		return ErrNilFoldHandler
	}

	numInput, numOutput := strata[0].NumInput(), strata[0].NumOutput()
	total := 0
	for i, stratum := range strata {
		if stratum.NumInput() != numInput || stratum.NumOutput() != numOutput {
			return fmt.Errorf("%w: stratum %d is %dx%d, want %dx%d", ErrShapeMismatch, i, stratum.NumInput(), stratum.NumOutput(), numInput, numOutput)
		}
		total += stratum.Len()
	}
	if total < folds {
		return fmt.Errorf("%w: %d samples for %d folds", ErrTooFewSamples, total, folds)
	}

	for repeat := 0; repeat < repeats; repeat++ {
		for _, stratum := range strata {
			stratum.Shuffle(rng)
		}

		parts := Partition(strata, folds)
		for _, part := range parts {
			part.Shuffle(rng)
		}

		for fold := 0; fold < folds; fold++ {
			training, err := trainingSet(parts, fold)
			if err != nil {
				return err
			}
			if err := fn(training, parts[fold], fold, repeat); err != nil {
				return fmt.Errorf("fold %d repeat %d: %w", fold, repeat, err)
			}
		}
	}
	return nil
}

// Partition deals the strata into folds without shuffling. Each stratum
// contributes round(share+carry) samples to each fold, where share is its size
// divided by folds and carry is the rounding remainder from the previous fold;
// the last fold takes whatever the stratum has left.
func Partition(strata []*dataset.Dataset, folds int) []*dataset.Dataset {
	total := 0
	for _, stratum := range strata {
		total += stratum.Len()
	}
	numInput, numOutput := strata[0].NumInput(), strata[0].NumOutput()
	capacity := int(math.Ceil(float64(total)/float64(folds))) + len(strata)

	parts := make([]*dataset.Dataset, folds)
	for f := range parts {
		parts[f] = dataset.New(numInput, numOutput, capacity)
	}

	for _, stratum := range strata {
		share := float64(stratum.Len()) / float64(folds)
		carry := 0.0
		next := 0
		for f := 0; f < folds; f++ {
			want := share + carry
			count := int(math.Round(want))
			carry = want - float64(count)
			remaining := stratum.Len() - next
			if count > remaining || f == folds-1 {
				count = remaining
			}
			if count < 0 {
				count = 0
			}
			for i := next; i < next+count; i++ {
				// Shapes were checked by the caller.
				_ = parts[f].Append(stratum.Input(i), stratum.Output(i))
			}
			next += count
		}
	}
	return parts
}

func trainingSet(parts []*dataset.Dataset, holdout int) (*dataset.Dataset, error) {
	others := make([]*dataset.Dataset, 0, len(parts)-1)
	for i, part := range parts {
		if i != holdout {
			others = append(others, part)
		}
	}
	training, err := dataset.Merge(others...)
	if err != nil {
		return nil, fmt.Errorf("assemble training set: %w", err)
	}
	return training, nil
}
