package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "device", "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	// ErrNoDevice is returned by a Platform when the device picker was cancelled
	// or no peripheral advertising the requested service was found.
	ErrNoDevice     = errors.New("no matching device")
	ErrNotReady     = errors.New("write characteristic not discovered")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NormalizeError maps generic platform error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// Platform is the host BLE stack capability the SDK drives.
type Platform interface {
	// RequestDevice looks for a single peripheral advertising filterServiceID.
	// Returns ErrNoDevice when nothing suitable was found or the picker was cancelled.
	RequestDevice(ctx context.Context, filterServiceID string) (RawDevice, error)
}

// RawDevice is a discovered peripheral that has not necessarily been connected.
type RawDevice interface {
	ID() string
	Name() string

	// ConnectGATT opens a GATT connection to the peripheral.
	ConnectGATT(ctx context.Context) (Connection, error)

	// OnDisconnected registers a callback fired every time the peripheral
	// drops its GATT connection. It may fire any number of times.
	OnDisconnected(callback func())
}

// Connection is an active GATT connection.
type Connection interface {
	GetService(ctx context.Context, uuid string) (Service, error)
	GetCharacteristic(ctx context.Context, uuid string) (Characteristic, error)
	Disconnect() error
}

// Service is a discovered GATT service
type Service interface {
	UUID() string
}

// CharacteristicWriter provides write operations
type CharacteristicWriter interface {
	Write(ctx context.Context, data []byte) error
}

// Characteristic is a discovered writable GATT characteristic
type Characteristic interface {
	UUID() string
	CharacteristicWriter
}

// Candidate describes a peripheral seen while scanning
type Candidate struct {
	Address     string
	Name        string
	RSSI        int
	Connectable bool
}

// Discoverer is implemented by platforms able to list every candidate
// seen during a scan, not just the picked one.
type Discoverer interface {
	Discover(ctx context.Context, filterServiceID string) ([]Candidate, error)
}
