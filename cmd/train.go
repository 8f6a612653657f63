package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/soltranslator/pkg/data"
	"github.com/conneroisu/soltranslator/pkg/seq2seq"
	"github.com/conneroisu/soltranslator/pkg/vocab"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
)

// NewTrainCommand returns a new train command.
func NewTrainCommand() *cobra.Command {
	defaults := seq2seq.DefaultConfig()
	optDefaults := seq2seq.DefaultOptimizerConfig()
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model",
		Long: `
Train a translation model on parallel description and code corpora.

Both files hold records separated by a line of 43 asterisks. The trained
model is written to --model-path.
	`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			corpus, err := data.LoadCorpus(RootArgs.descPath, RootArgs.codePath)
			if err != nil {
				return fmt.Errorf("failed to load corpus: %w", err)
			}
			src, tgt, err := vocabularies()
			if err != nil {
				return err
			}
			trainSet, validSet := corpus.Split(RootArgs.validFraction)
			log.Info("corpus loaded", "train", trainSet.Len(), "valid", validSet.Len())

			trainEx, err := seq2seq.MakeExamples(trainSet.Descriptions, trainSet.Codes, src, tgt)
			if err != nil {
				return err
			}
			validEx, err := seq2seq.MakeExamples(validSet.Descriptions, validSet.Codes, src, tgt)
			if err != nil {
				return err
			}
			seed := RootArgs.seed
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			trainBatches, err := seq2seq.Batcher{
				MaxTokens:    RootArgs.maxTokens,
				Pad:          vocab.PadID,
				SortByLength: true,
				Shuffle:      rand.New(rand.NewSource(uint64(seed))),
			}.Batches(trainEx)
			if err != nil {
				return err
			}
			validBatches, err := seq2seq.Batcher{
				MaxTokens:    RootArgs.maxTokens,
				Pad:          vocab.PadID,
				SortByLength: true,
			}.Batches(validEx)
			if err != nil {
				return err
			}

			model, err := seq2seq.BuildModel(src.Len(), tgt.Len(), seq2seq.Config{
				Layers:  RootArgs.layers,
				DModel:  RootArgs.dModel,
				DFF:     RootArgs.dFF,
				Heads:   RootArgs.heads,
				Dropout: RootArgs.dropout,
				MaxLen:  defaults.MaxLen,
				Seed:    seed,
			})
			if err != nil {
				return fmt.Errorf("failed to build model: %w", err)
			}
			log.Info("model built", "params", model.NumParameters(), "batches", len(trainBatches))

			optCfg := optDefaults
			optCfg.Factor = RootArgs.factor
			optCfg.Warmup = RootArgs.warmup
			opt := seq2seq.NewNoamOpt(RootArgs.dModel, optCfg.Factor, optCfg.Warmup,
				seq2seq.NewAdam(model.Parameters(), optCfg))
			criterion, err := seq2seq.NewLabelSmoothing(tgt.Len(), vocab.PadID, RootArgs.smoothing)
			if err != nil {
				return err
			}
			_, err = seq2seq.Train(model, trainBatches, validBatches,
				&seq2seq.SimpleLossCompute{Generator: model.Generator, Criterion: criterion, Opt: opt},
				&seq2seq.SimpleLossCompute{Generator: model.Generator, Criterion: criterion},
				RootArgs.epochs,
			)
			if err != nil {
				return fmt.Errorf("failed to train model: %w", err)
			}
			if err := seq2seq.SaveFile(RootArgs.modelPath, model); err != nil {
				return fmt.Errorf("failed to save model: %w", err)
			}
			log.Info("model saved", "path", RootArgs.modelPath, "steps", opt.Steps())
			return nil
		},
	}

	cmd.Flags().
		StringVarP(&RootArgs.descPath, "descriptions", "d", "descriptions.txt", "Path to the description corpus")
	cmd.Flags().
		StringVarP(&RootArgs.codePath, "codes", "c", "codes.txt", "Path to the code corpus")
	cmd.Flags().
		IntVarP(&RootArgs.epochs, "epochs", "e", 10, "Number of epochs")
	cmd.Flags().
		IntVarP(&RootArgs.maxTokens, "max-tokens", "b", 1500, "Padded token budget per batch")
	cmd.Flags().
		IntVar(&RootArgs.layers, "layers", defaults.Layers, "Encoder and decoder layers")
	cmd.Flags().
		IntVar(&RootArgs.dModel, "d-model", defaults.DModel, "Hidden width")
	cmd.Flags().
		IntVar(&RootArgs.dFF, "d-ff", defaults.DFF, "Feed-forward inner width")
	cmd.Flags().
		IntVar(&RootArgs.heads, "heads", defaults.Heads, "Attention heads")
	cmd.Flags().
		Float64Var(&RootArgs.dropout, "dropout", defaults.Dropout, "Dropout probability")
	cmd.Flags().
		IntVar(&RootArgs.warmup, "warmup", optDefaults.Warmup, "Learning-rate warmup steps")
	cmd.Flags().
		Float64Var(&RootArgs.factor, "factor", optDefaults.Factor, "Learning-rate scale factor")
	cmd.Flags().
		Float64Var(&RootArgs.smoothing, "smoothing", 0.1, "Label smoothing")
	cmd.Flags().
		Float64Var(&RootArgs.validFraction, "valid-fraction", 0.1, "Fraction of the corpus held out for validation")
	cmd.Flags().
		Int64VarP(&RootArgs.seed, "seed", "s", 0, "Seed for initialization and shuffling (0 picks one)")
	return cmd
}
