package main

import (
	"errors"
	"fmt"

	"github.com/srg/moment/internal/backoff"
	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/payload"
)

// Command-level errors
var (
	// ErrNotReady indicates the connection stages ended without a write characteristic.
	// The pipeline itself never reports failures, so commands derive it from the final state.
	ErrNotReady = errors.New("Moment device not ready")

	// ErrNoCode indicates run was called without code to upload
	ErrNoCode = errors.New("no code to upload")
)

// FormatUserError turns an error chain into a one-line message for the terminal
func FormatUserError(err error) string {
	var nf *device.NotFoundError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth LE is not supported on this platform"
	case errors.Is(err, device.ErrNoDevice):
		return "no Moment device found; make sure it is powered on and in range"
	case errors.Is(err, payload.ErrAbandoned):
		return fmt.Sprintf("upload abandoned after retries: %v", err)
	case errors.Is(err, ErrNotReady):
		return fmt.Sprintf("%v; run with --log-level=info to see the failing stage", err)
	case errors.Is(err, backoff.ErrExhausted):
		return fmt.Sprintf("gave up after retries: %v", err)
	case errors.As(err, &nf):
		return fmt.Sprintf("%s not found on the Moment device", nf.Resource)
	default:
		return err.Error()
	}
}
