package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sonopix/config"
	"sonopix/pkg/imagecodec"
	"sonopix/pkg/models"
)

var (
	inputFile    string
	inputText    string
	outputFile   string
	outputFormat string
)

// encryptCmd represents the encrypt command
var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Hide a payload inside a new image",
	Long: `Encrypt a payload with the passphrase and write it into the pixels of a
new lossless image. The format follows --format, then the output file's
extension, then the configured default.`,
	Example: `  sonopix encrypt -i secret.pdf -o holiday.png --letters abcd --digits 1234 --special '!@#$'
  SONOPIX_PASSPHRASE='abcd1234!@#$' sonopix encrypt -t "meet at noon" -o note.qoi`,
	Args: cobra.NoArgs,
	RunE: runEncrypt,
}

func init() {
	rootCmd.AddCommand(encryptCmd)

	encryptCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input payload file")
	encryptCmd.Flags().StringVarP(&inputText, "text", "t", "", "Input payload as text (alternative to --input)")
	encryptCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output image file")
	encryptCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "Image format (png, bmp, qoi)")
	addPassphraseFlags(encryptCmd)

	encryptCmd.MarkFlagRequired("output")
	encryptCmd.MarkFlagsMutuallyExclusive("input", "text")
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	overallStart := time.Now()
	out := cmd.OutOrStdout()

	if inputFile == "" && inputText == "" {
		return fmt.Errorf("either --input or --text must be specified")
	}

	pass, err := resolvePassphrase()
	if err != nil {
		return describe(models.DirectionEncrypt, err)
	}

	engine, cfg, err := newEngine(cmd)
	if err != nil {
		return err
	}

	format, err := chooseFormat(outputFormat, outputFile, cfg)
	if err != nil {
		return err
	}

	var payload []byte
	if inputFile != "" {
		payload, err = os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		fmt.Fprintf(out, "Read %d bytes from %s\n", len(payload), inputFile)
	} else {
		payload = []byte(inputText)
		fmt.Fprintf(out, "Using %d bytes of text input\n", len(payload))
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	bar := newProgressTracker(progressWriter(cmd), fmt.Sprintf("Encrypting into %s", filepath.Base(outputFile)))
	start := time.Now()
	err = writeAtomically(outputFile, func(w io.Writer) error {
		return engine.EncryptTo(ctx, w, format, payload, pass, bar.Update)
	})
	if err != nil {
		bar.Stop("✗ Encryption failed")
		return describe(models.DirectionEncrypt, err)
	}
	bar.Stop(fmt.Sprintf("✓ Encrypted %d bytes in %s", len(payload), formatDuration(time.Since(start))))

	if info, err := os.Stat(outputFile); err == nil {
		fmt.Fprintf(out, "✓ Wrote %s image %s (%d bytes)\n", strings.ToUpper(string(format)), outputFile, info.Size())
	}
	if verbose {
		fmt.Fprintf(out, "Total processing time: %s\n", formatDuration(time.Since(overallStart)))
	}
	return nil
}

// chooseFormat resolves the artifact format from the flag, the output
// extension or the configuration
func chooseFormat(flagValue, path string, cfg *config.Config) (imagecodec.Format, error) {
	if flagValue != "" {
		return imagecodec.ParseFormat(flagValue)
	}
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		if f, err := imagecodec.ParseFormat(ext); err == nil {
			return f, nil
		}
	}
	return cfg.GetFormat()
}

// writeAtomically runs write against a temporary file next to path and
// renames it into place only on success, so a failed or interrupted run
// leaves no partial output behind
func writeAtomically(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".sonopix-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func progressWriter(cmd *cobra.Command) io.Writer {
	if quiet {
		return io.Discard
	}
	return cmd.ErrOrStderr()
}
