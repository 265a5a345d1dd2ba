package evo

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"resectnet/internal/model"
)

func summarizeGeneration(scored []ScoredDescriptor, generation int, big, bestEver float64) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{
		OuterFold:         -1,
		OuterRepeat:       -1,
		Generation:        generation,
		BigMutationChance: big,
		Evaluated:         len(scored),
		BestEverFitness:   bestEver,
	}
	if len(scored) == 0 {
		return diag
	}

	fitness := make([]float64, len(scored))
	hidden := make([]float64, len(scored))
	topologies := make(map[string]struct{}, len(scored))
	for i, item := range scored {
		fitness[i] = item.Fitness
		hidden[i] = float64(item.Descriptor.Hidden())
		topologies[fmt.Sprint(item.Descriptor.Layers)] = struct{}{}
	}

	diag.BestFitness = floats.Min(fitness)
	diag.WorstFitness = floats.Max(fitness)
	diag.MeanFitness = stat.Mean(fitness, nil)
	if len(fitness) > 1 {
		diag.StdFitness = stat.StdDev(fitness, nil)
	}
	diag.DistinctTopologies = len(topologies)
	diag.MeanHiddenLayers = stat.Mean(hidden, nil)
	diag.BestAlgorithm = string(scored[0].Descriptor.Algorithm)
	return diag
}
