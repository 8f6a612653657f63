// Package seq2seq implements the attention-based encoder-decoder that
// translates contract descriptions into code, together with its batching,
// loss, learning-rate schedule and training loop.
package seq2seq

import (
	"errors"
	"fmt"
)

var (
	// ErrHeadsDivide is returned when the head count does not divide the
	// model width.
	ErrHeadsDivide = errors.New("heads must evenly divide d_model")
	// ErrSequenceTooLong is returned when a sequence exceeds the positional
	// encoding table.
	ErrSequenceTooLong = errors.New("sequence longer than positional encoding table")
)

// Config is a configuration struct for the translation model.
type Config struct {
	// Layers is the number of encoder layers and of decoder layers.
	Layers int
	// DModel is the width of every hidden state.
	DModel int
	// DFF is the inner width of the feed-forward blocks.
	DFF int
	// Heads is the number of attention heads in each attention block.
	Heads int
	// Dropout is the drop probability used throughout during training.
	Dropout float64
	// MaxLen is the longest sequence the positional encoding supports.
	MaxLen int
	// Seed seeds parameter initialization and dropout. Zero means a
	// time-based seed.
	Seed int64
}

// DefaultConfig returns the base model configuration.
func DefaultConfig() Config {
	return Config{
		Layers:  6,
		DModel:  512,
		DFF:     2048,
		Heads:   8,
		Dropout: 0.1,
		MaxLen:  5000,
	}
}

// Validate reports the first configuration error.
func (c Config) Validate() error {
	switch {
	case c.Layers <= 0:
		return fmt.Errorf("layers must be positive, got %d", c.Layers)
	case c.DModel < 2:
		return fmt.Errorf("d_model must be at least 2, got %d", c.DModel)
	case c.DFF <= 0:
		return fmt.Errorf("d_ff must be positive, got %d", c.DFF)
	case c.Heads <= 0 || c.DModel%c.Heads != 0:
		return fmt.Errorf("%w: d_model=%d heads=%d", ErrHeadsDivide, c.DModel, c.Heads)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0, 1), got %g", c.Dropout)
	case c.MaxLen <= 0:
		return fmt.Errorf("max_len must be positive, got %d", c.MaxLen)
	}
	return nil
}

// OptimizerConfig holds the Adam hyperparameters and the learning-rate
// schedule.
type OptimizerConfig struct {
	// Factor scales the whole schedule.
	Factor float64
	// Warmup is the number of steps over which the rate rises linearly.
	Warmup int
	Beta1  float64
	Beta2  float64
	Eps    float64
	// WeightDecay is the decoupled weight decay applied by Adam.
	WeightDecay float64
}

// DefaultOptimizerConfig returns the standard schedule: factor 2, 4000
// warmup steps, Adam(0.9, 0.98, 1e-9).
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		Factor: 2,
		Warmup: 4000,
		Beta1:  0.9,
		Beta2:  0.98,
		Eps:    1e-9,
	}
}
