package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/devicefactory"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Moment devices",
	Long: `Scan for Bluetooth Low Energy devices advertising the Moment service and
list them, strongest signal first. The first connectable device listed is
the one connect and run would pick.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config, 10s)")
	scanCmd.Flags().StringVar(&scanFormat, "format", "table", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, args []string) error {
	validFormats := []string{"table", "json"}
	isValidFormat := false
	for _, format := range validFormats {
		if scanFormat == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format '%s': must be one of %v", scanFormat, validFormats)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	if scanDuration > 0 {
		cfg.Scan.Timeout = scanDuration
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	platform, err := devicefactory.NewPlatform(devicefactory.PlatformOptions{
		ScanTimeout:     cfg.Scan.Timeout,
		AllowDuplicates: cfg.Scan.AllowDuplicates,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create Bluetooth platform: %w", err)
	}
	discoverer, ok := platform.(device.Discoverer)
	if !ok {
		return fmt.Errorf("scan: %w: platform cannot list devices", device.ErrUnsupported)
	}

	ctx, cancel := signalContext(cmd, 0)
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for Moment devices", func() string { return "scanning" })
	progress.Start()
	candidates, err := discoverer.Discover(ctx, cfg.Identifiers.FilterService)
	progress.Stop()

	if err != nil && !errors.Is(err, ctx.Err()) {
		logger.WithError(err).Error("scan failed")
		return err
	}

	if scanFormat == "json" {
		return displayCandidatesJSON(cmd.OutOrStdout(), candidates)
	}
	return displayCandidatesTable(cmd.OutOrStdout(), candidates)
}

func displayCandidatesTable(out io.Writer, candidates []device.Candidate) error {
	if len(candidates) == 0 {
		fmt.Fprintln(out, "No Moment devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tCONNECTABLE")

	for _, c := range candidates {
		name := c.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%t\n", name, c.Address, c.RSSI, c.Connectable)
	}

	return w.Flush()
}

func displayCandidatesJSON(out io.Writer, candidates []device.Candidate) error {
	list := make([]*orderedmap.OrderedMap[string, any], 0, len(candidates))
	for _, c := range candidates {
		om := orderedmap.New[string, any]()
		om.Set("name", c.Name)
		om.Set("address", c.Address)
		om.Set("rssi", c.RSSI)
		om.Set("connectable", c.Connectable)
		list = append(list, om)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
