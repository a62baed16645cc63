package cmd

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sonopix/config"
	"sonopix/pkg/imagecodec"
	"sonopix/pkg/models"
	"sonopix/pkg/pipeline"
)

var inspectOutput string

// inspectReport is what inspect prints for one artifact
type inspectReport struct {
	File   string            `json:"file" yaml:"file"`
	Format imagecodec.Format `json:"format" yaml:"format"`

	pipeline.Inspection `yaml:",inline"`
}

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <artifact>",
	Short: "Describe an artifact's layout without decrypting it",
	Long: `Report the image dimensions, whether the embedded text is terminated and
how large the hidden envelope is. No passphrase is needed and nothing is
decrypted, so a well-formed report does not mean any passphrase will work.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspectOutput, "output", "o", "table", "Output format (json, yaml, table)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	img, format, err := imagecodec.DecodeChecked(f, func(c image.Config) error {
		return cfg.Carrier.Admits(c.Width, c.Height)
	})
	if err != nil {
		return describe(models.DirectionDecrypt, err)
	}

	report := inspectReport{File: args[0], Format: format, Inspection: *pipeline.Inspect(img)}
	return writeReport(cmd.OutOrStdout(), inspectOutput, report)
}

func writeReport(w io.Writer, format string, report inspectReport) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(report)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		defer tw.Flush()
		in := report.Inspection
		fmt.Fprintf(tw, "File\t%s\n", report.File)
		fmt.Fprintf(tw, "Format\t%s\n", report.Format)
		fmt.Fprintf(tw, "Dimensions\t%dx%d (%d pixels)\n", in.Width, in.Height, in.Pixels)
		fmt.Fprintf(tw, "Terminated\t%v\n", in.Terminated)
		fmt.Fprintf(tw, "Text length\t%d\n", in.TextLength)
		fmt.Fprintf(tw, "Envelope length\t%d\n", in.EnvelopeLength)
		fmt.Fprintf(tw, "Ciphertext length\t%d\n", in.CiphertextLength)
		fmt.Fprintf(tw, "Well formed\t%v\n", in.WellFormed)
		if in.Problem != "" {
			fmt.Fprintf(tw, "Problem\t%s\n", in.Problem)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
