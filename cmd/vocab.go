package cmd

import (
	"fmt"

	"github.com/conneroisu/soltranslator/pkg/vocab"
	"github.com/spf13/cobra"
)

// NewVocabCommand returns a new vocab command.
func NewVocabCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Print the vocabularies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, tgt, err := vocabularies()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range []struct {
				name string
				v    *vocab.Vocabulary
			}{{"description", src}, {"code", tgt}} {
				fmt.Fprintf(out, "%s: %d tokens\n", v.name, v.v.Len())
				if !RootArgs.showTokens {
					continue
				}
				for id, tok := range v.v.Tokens() {
					fmt.Fprintf(out, "%6d %s\n", id, tok)
				}
			}
			return nil
		},
	}
	cmd.Flags().
		BoolVar(&RootArgs.showTokens, "tokens", false, "Print every token with its id")
	return cmd
}
