package goble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/moment/internal/device"
)

// DefaultScanTimeout is how long a device request listens for advertisements
const DefaultScanTimeout = 10 * time.Second

// DeviceFactory creates the host ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = newDefaultDevice

// Options configures the go-ble platform
type Options struct {
	ScanTimeout     time.Duration
	AllowDuplicates bool
	WithoutResponse bool // write chunks without waiting for an ATT response
}

// Platform implements device.Platform and device.Discoverer on go-ble.
// The host device is created lazily on first use and shared by every peripheral.
type Platform struct {
	opts   Options
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewPlatform creates a go-ble platform
func NewPlatform(opts Options, logger *logrus.Logger) *Platform {
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Platform{opts: opts, logger: logger}
}

func (p *Platform) device() (ble.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dev != nil {
		return p.dev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		p.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	p.dev = dev
	return dev, nil
}

// Discover scans for the configured window and returns every connectable
// peripheral advertising filterServiceID, strongest signal first.
func (p *Platform) Discover(ctx context.Context, filterServiceID string) ([]device.Candidate, error) {
	filter, err := ble.Parse(filterServiceID)
	if err != nil {
		return nil, fmt.Errorf("invalid filter service UUID %q: %w", filterServiceID, err)
	}

	dev, err := p.device()
	if err != nil {
		return nil, err
	}

	candidates := hashmap.New[string, device.Candidate]()
	handler := func(adv ble.Advertisement) {
		if !ble.Contains(adv.Services(), filter) {
			return
		}

		addr := adv.Addr().String()
		seen, ok := candidates.Get(addr)
		if ok && seen.RSSI >= adv.RSSI() {
			return
		}
		candidates.Set(addr, device.Candidate{
			Address:     addr,
			Name:        adv.LocalName(),
			RSSI:        adv.RSSI(),
			Connectable: adv.Connectable(),
		})
	}

	p.logger.WithFields(logrus.Fields{
		"filter":  filterServiceID,
		"timeout": p.opts.ScanTimeout,
	}).Info("Scanning for BLE devices...")

	scanCtx, cancel := context.WithTimeout(ctx, p.opts.ScanTimeout)
	defer cancel()

	err = dev.Scan(scanCtx, p.opts.AllowDuplicates, handler)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, NormalizeError(err)
	}

	result := make([]device.Candidate, 0, candidates.Len())
	candidates.Range(func(_ string, c device.Candidate) bool {
		result = append(result, c)
		return true
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].RSSI != result[j].RSSI {
			return result[i].RSSI > result[j].RSSI
		}
		return result[i].Address < result[j].Address
	})

	p.logger.WithField("device_count", len(result)).Info("BLE scan completed")
	return result, nil
}

// RequestDevice picks the strongest connectable candidate advertising filterServiceID
func (p *Platform) RequestDevice(ctx context.Context, filterServiceID string) (device.RawDevice, error) {
	candidates, err := p.Discover(ctx, filterServiceID)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if !c.Connectable {
			continue
		}
		p.logger.WithFields(logrus.Fields{
			"address": c.Address,
			"name":    c.Name,
			"rssi":    c.RSSI,
		}).Debug("Picked device")
		return newRawDevice(p, c), nil
	}

	return nil, fmt.Errorf("%w: %w", device.ErrNoDevice,
		&device.NotFoundError{Resource: "device", UUIDs: []string{filterServiceID}})
}
