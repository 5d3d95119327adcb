package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/moment/internal/payload"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [code]",
	Short: "Upload code to a Moment device",
	Long: `Connects to a Moment device and uploads code through its write
characteristic. The code is split into chunks (19 bytes by default) written
in order; each chunk is retried with exponential backoff, and the rest of the
upload is dropped if a chunk keeps failing.

Examples:
  # Upload an expression
  moment run "5+5;"

  # Upload a file, or stdin with -
  moment run --file pattern.js
  cat pattern.js | moment run --file -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runFile    string
	runTimeout time.Duration
)

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Read code from a file (- for stdin)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "Give up after this long (0 waits for the retries to run out)")
}

func runRun(cmd *cobra.Command, args []string) error {
	code, err := readCode(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	dev, err := newDevice(cfg, logger)
	if err != nil {
		return err
	}
	defer release(dev)

	ctx, cancel := signalContext(cmd, runTimeout)
	defer cancel()

	if _, err := connectAndWait(ctx, cmd, dev); err != nil {
		return err
	}

	chunks := len(payload.Chunk(code, cfg.Payload.ChunkSize))
	if err := dev.Upload(ctx, code); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Uploaded %d bytes in %d chunks\n", len(code), chunks)
	return nil
}

// readCode takes the code from the positional argument or --file, never both
func readCode(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case len(args) == 1 && runFile != "":
		return "", fmt.Errorf("provide code either as an argument or via --file, not both")
	case len(args) == 1:
		if args[0] == "" {
			return "", ErrNoCode
		}
		return args[0], nil
	case runFile == "":
		return "", fmt.Errorf("%w: provide code as an argument or via --file", ErrNoCode)
	}

	var (
		data []byte
		err  error
	)
	if runFile == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(runFile)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read code: %w", err)
	}
	if len(data) == 0 {
		return "", ErrNoCode
	}
	return string(data), nil
}
