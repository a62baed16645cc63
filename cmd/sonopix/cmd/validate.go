package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sonopix/pkg/models"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a passphrase without encrypting anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, err := resolvePassphrase()
		if err != nil {
			return describe(models.DirectionEncrypt, err)
		}

		res := pass.Validate()
		if res.Valid {
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Passphrase is valid")
			return nil
		}

		for _, seg := range res.Failing {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s segment is invalid\n", seg)
		}
		return describe(models.DirectionEncrypt, pass.Err())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addPassphraseFlags(validateCmd)
}
