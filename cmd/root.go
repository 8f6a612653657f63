// Package cmd contains the root command for the soltranslator CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/soltranslator/pkg/vocab"
	"github.com/spf13/cobra"
)

// rootArgs is the root command arguments.
type rootArgs struct {
	verbose       bool
	modelPath     string
	descPath      string
	codePath      string
	numLo         int
	numHi         int
	seed          int64
	text          string
	maxLen        int
	layers        int
	dModel        int
	dFF           int
	heads         int
	dropout       float64
	epochs        int
	maxTokens     int
	warmup        int
	factor        float64
	smoothing     float64
	validFraction float64
	showTokens    bool
}

// RootArgs is the root command arguments.
var RootArgs rootArgs

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "soltranslator",
	Short: "Translate contract descriptions into Solidity-like code",
	Long: `
Translate restricted natural-language contract descriptions into skeletal
Solidity-like code with an attention-based encoder-decoder.

Train a model on a description/code corpus, then translate new descriptions.
	`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if RootArgs.verbose {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&RootArgs.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().
		StringVarP(&RootArgs.modelPath, "model-path", "m", "model.ckpt", "Path to the model checkpoint")
	rootCmd.PersistentFlags().
		IntVar(&RootArgs.numLo, "num-lo", -10000, "Smallest numeric literal in the vocabulary")
	rootCmd.PersistentFlags().
		IntVar(&RootArgs.numHi, "num-hi", 10000, "One past the largest numeric literal in the vocabulary")
	rootCmd.AddCommand(NewTrainCommand())
	rootCmd.AddCommand(NewTranslateCommand())
	rootCmd.AddCommand(NewVocabCommand())
}

// vocabularies builds the description and code vocabularies from the
// default names and syntax and the configured numeric range.
func vocabularies() (*vocab.Vocabulary, *vocab.Vocabulary, error) {
	src, err := vocab.BuildDescription(vocab.DefaultNames(), vocab.Syntax(), RootArgs.numLo, RootArgs.numHi)
	if err != nil {
		return nil, nil, fmt.Errorf("description vocabulary: %w", err)
	}
	tgt, err := vocab.BuildCode(vocab.DefaultNames(), vocab.Syntax(), RootArgs.numLo, RootArgs.numHi)
	if err != nil {
		return nil, nil, fmt.Errorf("code vocabulary: %w", err)
	}
	log.Debug("vocabularies built", "description", src.Len(), "code", tgt.Len())
	return src, tgt, nil
}
