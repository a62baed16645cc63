package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"sonopix/pkg/models"
)

var decryptOutput string

// decryptCmd represents the decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt <artifact>",
	Short: "Recover the payload hidden in an image",
	Long: `Read an image produced by "sonopix encrypt" and restore the payload with
the same passphrase. Any failure after passphrase validation is reported
only as "cannot decrypt". Use "-o -" to write the payload to stdout.`,
	Example: `  sonopix decrypt holiday.png -o secret.pdf --passphrase 'abcd1234!@#$'`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDecrypt,
}

func init() {
	rootCmd.AddCommand(decryptCmd)

	decryptCmd.Flags().StringVarP(&decryptOutput, "output", "o", "", "Output payload file (- for stdout)")
	addPassphraseFlags(decryptCmd)

	decryptCmd.MarkFlagRequired("output")
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	artifact := args[0]

	pass, err := resolvePassphrase()
	if err != nil {
		return describe(models.DirectionDecrypt, err)
	}

	engine, _, err := newEngine(cmd)
	if err != nil {
		return err
	}

	f, err := os.Open(artifact)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	// Status lines go to stderr when the payload itself goes to stdout
	status := cmd.OutOrStdout()
	if decryptOutput == "-" {
		status = cmd.ErrOrStderr()
	}

	bar := newProgressTracker(progressWriter(cmd), fmt.Sprintf("Decrypting %s", filepath.Base(artifact)))
	start := time.Now()
	payload, err := engine.DecryptFrom(ctx, f, pass, bar.Update)
	if err != nil {
		bar.Stop("✗ Decryption failed")
		return describe(models.DirectionDecrypt, err)
	}
	bar.Stop(fmt.Sprintf("✓ Decrypted %d bytes in %s", len(payload), formatDuration(time.Since(start))))

	if decryptOutput == "-" {
		_, err := cmd.OutOrStdout().Write(payload)
		return err
	}

	if err := writeAtomically(decryptOutput, func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	}); err != nil {
		return err
	}
	fmt.Fprintf(status, "✓ Wrote payload to %s\n", decryptOutput)
	return nil
}
