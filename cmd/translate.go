package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/soltranslator/pkg/seq2seq"
	"github.com/conneroisu/soltranslator/pkg/vocab"
	"github.com/spf13/cobra"
)

// NewTranslateCommand returns a new translate command.
func NewTranslateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a description into code",
		Long: `
Translate a contract description into code tokens with a trained model.

The numeric range flags must match the ones the model was trained with.
	`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			model, err := seq2seq.LoadFile(RootArgs.modelPath)
			if err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			src, tgt, err := vocabularies()
			if err != nil {
				return err
			}
			if src.Len() != model.SrcVocab || tgt.Len() != model.TgtVocab {
				return fmt.Errorf("vocabulary sizes %d/%d do not match model %d/%d",
					src.Len(), tgt.Len(), model.SrcVocab, model.TgtVocab)
			}
			translator := &seq2seq.Translator{Model: model, Src: src, Tgt: tgt, MaxLen: RootArgs.maxLen}
			tokens, err := translator.Translate(RootArgs.text)
			if err != nil {
				return err
			}
			log.Debug("translated", "tokens", len(tokens))
			fmt.Fprintln(cmd.OutOrStdout(), vocab.Join(tokens))
			return nil
		},
	}

	cmd.Flags().
		StringVarP(&RootArgs.text, "text", "t", "", "Description to translate")
	cmd.Flags().
		IntVarP(&RootArgs.maxLen, "max-len", "l", 0, "Maximum generated length (0 scales with the input)")
	return cmd
}
