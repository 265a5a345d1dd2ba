package train

import (
	"errors"
	"math"

	"resectnet/internal/dataset"
)

// Network exposes the runtime hooks early stopping drives.
type Network interface {
	TrainEpoch(d *dataset.Dataset) (float64, error)
	Test(d *dataset.Dataset) (float64, error)
	Weights() []float64
	SetWeights(weights []float64) error
}

// EarlyStopping trains for at most MaxEpochs and gives up after Patience
// consecutive epochs without a better validation error.
type EarlyStopping struct {
	MaxEpochs int `json:"max_epochs" toml:"max_epochs"`
	Patience  int `json:"patience" toml:"patience"`
}

type Report struct {
	BestError    float64 `json:"best_error"`
	BestEpoch    int     `json:"best_epoch"`
	EpochsRun    int     `json:"epochs_run"`
	StoppedEarly bool    `json:"stopped_early"`
	LastTrainMSE float64 `json:"last_train_mse"`
	LastValidMSE float64 `json:"last_valid_mse"`
	Improvements int     `json:"improvements"`
}

func (e EarlyStopping) Validate() error {
	if e.MaxEpochs <= 0 {
		return errors.New("max epochs must be > 0")
	}
	if e.Patience <= 0 {
		return errors.New("patience must be > 0")
	}
	return nil
}

// Train returns the best validation error reached; net is left holding the
// weights that produced it.
func (e EarlyStopping) Train(net Network, training, validation *dataset.Dataset) (float64, error) {
	report, err := e.TrainWithReport(net, training, validation)
	if err != nil {
		return 0, err
	}
	return report.BestError, nil
}

func (e EarlyStopping) TrainWithReport(net Network, training, validation *dataset.Dataset) (Report, error) {
	if err := e.Validate(); err != nil {
		return Report{}, err
	}
	if net == nil {
		return Report{}, errors.New("network is required")
	}

	report := Report{BestError: math.MaxFloat64, BestEpoch: -1}
	var best []float64
	stale := 0
	for epoch := 0; epoch < e.MaxEpochs; epoch++ {
		trainMSE, err := net.TrainEpoch(training)
		if err != nil {
			return Report{}, err
		}
		validMSE, err := net.Test(validation)
		if err != nil {
			return Report{}, err
		}
		report.EpochsRun = epoch + 1
		report.LastTrainMSE = trainMSE
		report.LastValidMSE = validMSE

		if validMSE < report.BestError {
			report.BestError = validMSE
			report.BestEpoch = epoch
			report.Improvements++
			best = net.Weights()
			stale = 0
			continue
		}
		stale++
		if stale >= e.Patience {
			report.StoppedEarly = true
			break
		}
	}

	if best != nil {
		if err := net.SetWeights(best); err != nil {
			return Report{}, err
		}
	}
	return report, nil
}
