package main

import (
	"fmt"

	"github.com/fatih/color"

	"resectnet/internal/evo"
	"resectnet/internal/model"
)

type printer struct {
	green  func(a ...interface{}) string
	red    func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
}

func newPrinter() printer {
	return printer{
		green:  color.New(color.FgGreen).SprintFunc(),
		red:    color.New(color.FgRed).SprintFunc(),
		yellow: color.New(color.FgYellow).SprintFunc(),
		cyan:   color.New(color.FgCyan).SprintFunc(),
	}
}

// generation returns a reporter printing one progress line per generation.
func (p printer) generation(total int) evo.Reporter {
	return func(diag model.GenerationDiagnostics) {
		prefix := ""
		if diag.OuterFold >= 0 {
			prefix = fmt.Sprintf("fold=%d repeat=%d ", diag.OuterFold, diag.OuterRepeat)
		}
		fmt.Printf("%s%s best=%.6f mean=%.6f best_ever=%.6f big=%.3f topologies=%d algorithm=%s %.1fs\n",
			prefix, p.yellow(fmt.Sprintf("gen %d/%d", diag.Generation, total)),
			diag.BestFitness, diag.MeanFitness, diag.BestEverFitness, diag.BigMutationChance,
			diag.DistinctTopologies, diag.BestAlgorithm, diag.ElapsedSeconds)
	}
}

func (p printer) fold(fold model.FoldResult) {
	auc := "n/a"
	if fold.AUC != nil {
		auc = fmt.Sprintf("%.4f", *fold.AUC)
	}
	fmt.Printf("%s train=%d test=%d search_fitness=%.6f members=%d mse=%.6f accuracy=%.4f auc=%s layers=%v algorithm=%s\n",
		p.cyan(fmt.Sprintf("fold=%d repeat=%d", fold.Fold, fold.Repeat)),
		fold.TrainSamples, fold.TestSamples, fold.SearchFitness, fold.EnsembleSize,
		fold.MSE, fold.Accuracy, auc, fold.Descriptor.Layers, fold.Descriptor.Algorithm)
}

func (p printer) diagnostics(diag model.GenerationDiagnostics) {
	fmt.Printf("  fold=%d repeat=%d gen=%d evaluated=%d best=%.6f mean=%.6f std=%.6f worst=%.6f hidden=%.2f\n",
		diag.OuterFold, diag.OuterRepeat, diag.Generation, diag.Evaluated,
		diag.BestFitness, diag.MeanFitness, diag.StdFitness, diag.WorstFitness, diag.MeanHiddenLayers)
}
