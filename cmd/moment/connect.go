package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/moment/internal/session"
	"github.com/srg/moment/pkg/moment"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a Moment device and report the session",
	Long: `Scans for a Moment device, connects, and discovers the data service and
write characteristic. Every stage is retried with exponential backoff.

Examples:
  # Connect and print the discovered session
  moment connect

  # Print the session as JSON, including every state transition
  moment connect --json --transitions`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

var (
	connectJSON        bool
	connectTransitions bool
	connectTimeout     time.Duration
)

func init() {
	connectCmd.Flags().BoolVar(&connectJSON, "json", false, "Print the session as JSON")
	connectCmd.Flags().BoolVar(&connectTransitions, "transitions", false, "Also print every state transition")
	connectCmd.Flags().DurationVar(&connectTimeout, "timeout", 2*time.Minute, "Give up after this long (0 waits for the retries to run out)")
}

func runConnect(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := signalContext(cmd, connectTimeout)
	defer cancel()

	_, connErr := connectAndWait(ctx, cmd, dev)

	out := cmd.OutOrStdout()
	snap := dev.Snapshot()
	var transitions []session.Transition
	if connectTransitions {
		transitions = dev.Transitions()
	}

	if connectJSON {
		if err := printSessionJSON(out, snap, transitions); err != nil {
			return err
		}
	} else {
		printSession(out, snap, transitions)
	}
	return connErr
}

// release stops background work and drops the link if one is up
func release(dev *moment.Device) {
	dev.Close()
	if dev.Snapshot().Connected {
		dev.Disconnect()
	}
}

func printSession(w io.Writer, snap session.Snapshot, transitions []session.Transition) {
	if snap.State == session.Ready {
		color.New(color.FgGreen, color.Bold).Fprintln(w, "Moment device ready")
	} else {
		color.New(color.FgRed, color.Bold).Fprintf(w, "Moment device not ready (%s)\n", snap.State)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  State:\t%s\n", snap.State)
	if snap.DeviceID != "" {
		fmt.Fprintf(tw, "  Device:\t%s (%s)\n", snap.DeviceName, snap.DeviceID)
	}
	fmt.Fprintf(tw, "  Connected:\t%t\n", snap.Connected)
	if snap.Service != "" {
		fmt.Fprintf(tw, "  Service:\t%s\n", snap.Service)
	}
	if snap.Characteristic != "" {
		fmt.Fprintf(tw, "  Characteristic:\t%s\n", snap.Characteristic)
	}
	_ = tw.Flush()

	if len(transitions) == 0 {
		return
	}
	fmt.Fprintln(w, "Transitions:")
	for _, tr := range transitions {
		fmt.Fprintf(w, "  run %d: %s -> %s\n", tr.Run, tr.From, tr.To)
	}
}

func printSessionJSON(w io.Writer, snap session.Snapshot, transitions []session.Transition) error {
	var v any = snap
	if transitions != nil {
		type transitionJSON struct {
			Run  uint64 `json:"run"`
			From string `json:"from"`
			To   string `json:"to"`
		}
		out := make([]transitionJSON, 0, len(transitions))
		for _, tr := range transitions {
			out = append(out, transitionJSON{Run: tr.Run, From: tr.From.String(), To: tr.To.String()})
		}
		v = struct {
			Session     session.Snapshot `json:"session"`
			Transitions []transitionJSON `json:"transitions"`
		}{snap, out}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
