package seq2seq

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// logEvery is the step interval of RunEpoch progress lines.
const logEvery = 50

// RunEpoch runs the model over every batch and returns the loss per
// target token. Whether parameters change depends on loss.
func RunEpoch(batches []*Batch, model *Model, loss LossCompute) (float64, error) {
	start := time.Now()
	var (
		totalLoss   float64
		totalTokens int
		tokens      int
	)
	for i, b := range batches {
		out, err := model.Forward(b.Src, b.Tgt, b.SrcMask, b.TgtMask)
		if err != nil {
			return 0, fmt.Errorf("batch %d: %w", i, err)
		}
		l, err := loss.Compute(out, b.TgtY, b.NTokens)
		if err != nil {
			return 0, fmt.Errorf("batch %d loss: %w", i, err)
		}
		totalLoss += l
		totalTokens += b.NTokens
		tokens += b.NTokens
		if i%logEvery == 1 {
			elapsed := time.Since(start).Seconds()
			log.Info("epoch step",
				"step", i,
				"loss", l/float64(max(b.NTokens, 1)),
				"tokens_per_sec", float64(tokens)/elapsed,
			)
			start = time.Now()
			tokens = 0
		}
	}
	if totalTokens == 0 {
		return 0, fmt.Errorf("no target tokens in %d batches", len(batches))
	}
	return totalLoss / float64(totalTokens), nil
}

// EpochStats is the outcome of one Train epoch.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	ValidLoss float64
}

// Train alternates a training epoch with an evaluation epoch over valid.
// Dropout is on for training and off for evaluation. valid may be empty.
func Train(model *Model, train, valid []*Batch, trainLoss, validLoss LossCompute, epochs int) ([]EpochStats, error) {
	history := make([]EpochStats, 0, epochs)
	for epoch := 0; epoch < epochs; epoch++ {
		model.SetTraining(true)
		tl, err := RunEpoch(train, model, trainLoss)
		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		stats := EpochStats{Epoch: epoch, TrainLoss: tl}
		model.SetTraining(false)
		if len(valid) > 0 {
			vl, err := RunEpoch(valid, model, validLoss)
			if err != nil {
				return history, fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
			stats.ValidLoss = vl
		}
		log.Info("epoch done", "epoch", epoch, "train_loss", stats.TrainLoss, "valid_loss", stats.ValidLoss)
		history = append(history, stats)
	}
	return history, nil
}
