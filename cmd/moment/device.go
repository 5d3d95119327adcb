package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/moment/internal/backoff"
	"github.com/srg/moment/internal/devicefactory"
	"github.com/srg/moment/internal/session"
	"github.com/srg/moment/pkg/config"
	"github.com/srg/moment/pkg/moment"
)

// sleepFunc is the timer used for retry delays; tests replace it.
var sleepFunc backoff.SleepFunc = backoff.Sleep

// newDevice builds a Moment device from the loaded configuration
func newDevice(cfg *config.Config, logger *logrus.Logger) (*moment.Device, error) {
	platform, err := devicefactory.NewPlatform(devicefactory.PlatformOptions{
		ScanTimeout:     cfg.Scan.Timeout,
		AllowDuplicates: cfg.Scan.AllowDuplicates,
		WithoutResponse: cfg.Payload.WithoutResponse,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bluetooth platform: %w", err)
	}

	opts := append(moment.OptionsFromConfig(cfg), moment.WithLogger(logger), moment.WithSleep(sleepFunc))
	return moment.New(platform, opts...), nil
}

// signalContext returns a context cancelled by Ctrl+C / SIGTERM or after timeout (0 disables it)
func signalContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

// connectAndWait runs the connection stages and blocks until they settle or ctx ends.
// When ctx ends first the device is closed, which stops pending retries.
func connectAndWait(ctx context.Context, cmd *cobra.Command, dev *moment.Device) (session.State, error) {
	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Connecting to Moment device", func() string {
		return dev.State().String()
	})
	progress.Start()
	defer progress.Stop()

	dev.Connect()

	settled := make(chan struct{})
	go func() {
		dev.Wait()
		close(settled)
	}()

	select {
	case <-settled:
	case <-ctx.Done():
		dev.Close()
		<-settled
		return dev.State(), fmt.Errorf("connect interrupted in state %s: %w", dev.State(), context.Cause(ctx))
	}

	state := dev.State()
	if state != session.Ready {
		return state, fmt.Errorf("%w: connection stages ended in state %s", ErrNotReady, state)
	}
	return state, nil
}
