package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"sonopix/config"
	"sonopix/logging"
	"sonopix/pkg/crypto"
	"sonopix/pkg/models"
	"sonopix/pkg/passphrase"
	"sonopix/pkg/pipeline"
)

// PassphraseEnv is read when no passphrase flag is given.
const PassphraseEnv = "SONOPIX_PASSPHRASE"

var (
	// Global flags
	configFile string
	verbose    bool
	quiet      bool

	// Passphrase flags shared by encrypt, decrypt and validate
	letters       string
	digits        string
	special       string
	combinedInput string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sonopix",
	Short: "Sonopix - hide data inside ordinary-looking images",
	Long: `Sonopix encrypts a payload with a structured passphrase and stores the
result in the pixels of a lossless image (PNG, BMP or QOI). Decrypting the
image with the same passphrase restores the payload byte for byte.

A passphrase has three segments: 4 letters, 4 digits and 4 special
characters. Give them with --letters/--digits/--special, as one
12-character --passphrase, or through the SONOPIX_PASSPHRASE variable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
}

// addPassphraseFlags registers the passphrase inputs on cmd
func addPassphraseFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&letters, "letters", "", "Letters segment (4 ASCII letters)")
	cmd.Flags().StringVar(&digits, "digits", "", "Digits segment (4 digits)")
	cmd.Flags().StringVar(&special, "special", "", "Special segment (4 special characters)")
	cmd.Flags().StringVarP(&combinedInput, "passphrase", "p", "", "Whole 12-character passphrase (letters, digits, special)")
	cmd.MarkFlagsMutuallyExclusive("passphrase", "letters")
	cmd.MarkFlagsMutuallyExclusive("passphrase", "digits")
	cmd.MarkFlagsMutuallyExclusive("passphrase", "special")
}

// resolvePassphrase picks the passphrase from segment flags, the combined
// flag or the environment, in that order
func resolvePassphrase() (passphrase.Passphrase, error) {
	switch {
	case letters != "" || digits != "" || special != "":
		return passphrase.Passphrase{Letters: letters, Digits: digits, Special: special}, nil
	case combinedInput != "":
		return passphrase.Split(combinedInput)
	}

	if env := os.Getenv(PassphraseEnv); env != "" {
		return passphrase.Split(env)
	}
	return passphrase.Passphrase{}, fmt.Errorf("a passphrase is required: use --letters/--digits/--special, --passphrase or %s", PassphraseEnv)
}

// newLogger returns a stderr logger that stays quiet unless --verbose is set
func newLogger(cmd *cobra.Command) *logging.Logger {
	logger := logging.NewLoggerWithOutput(cmd.ErrOrStderr())
	if verbose {
		logger.SetLevel(logging.LevelDebug)
	} else {
		logger.SetLevel(logging.LevelWarn)
	}
	return logger
}

// newEngine loads configuration and builds a pipeline from it
func newEngine(cmd *cobra.Command) (*pipeline.Engine, *config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	engine, err := pipeline.New(crypto.NewDefaultProvider(), pipeline.OptionsFromConfig(cfg, newLogger(cmd)))
	if err != nil {
		return nil, nil, err
	}
	return engine, cfg, nil
}

// signalContext is canceled on Ctrl-C or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// commandError is a terminal-ready message with its exit status
type commandError struct {
	message string
	status  int
}

func (e *commandError) Error() string {
	return e.message
}

// describe renders a pipeline error for the terminal. Codes that must not
// reveal which stage failed collapse to the generic message.
func describe(direction models.Direction, err error) error {
	var merr *models.Error
	if !errors.As(err, &merr) {
		return err
	}
	switch {
	case merr.Code == models.ErrCodeValidation:
		return &commandError{
			message: fmt.Sprintf("invalid passphrase: failing segments: %s", strings.Join(merr.Segments, ", ")),
			status:  2,
		}
	case merr.Code == models.ErrCodeCanceled:
		return &commandError{message: "operation canceled", status: 130}
	case models.OpaqueCode(merr.Code):
		return &commandError{message: models.GenericFailureMessage(direction), status: 1}
	}
	return err
}

// exitCode maps errors to process exit statuses
func exitCode(err error) int {
	var cerr *commandError
	if errors.As(err, &cerr) {
		return cerr.status
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
