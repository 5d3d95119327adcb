package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/groutine"
)

// rawDevice is a picked peripheral addressed by its BLE address
type rawDevice struct {
	platform *Platform
	address  string
	name     string
	logger   *logrus.Logger

	mu        sync.Mutex
	callbacks []func()
}

func newRawDevice(p *Platform, c device.Candidate) *rawDevice {
	return &rawDevice{
		platform: p,
		address:  c.Address,
		name:     c.Name,
		logger:   p.logger,
	}
}

func (d *rawDevice) ID() string   { return d.address }
func (d *rawDevice) Name() string { return d.name }

// ConnectGATT dials the peripheral and starts a monitor that fires the
// disconnect callbacks once the link drops.
func (d *rawDevice) ConnectGATT(ctx context.Context) (device.Connection, error) {
	dev, err := d.platform.device()
	if err != nil {
		return nil, err
	}

	d.logger.WithField("address", d.address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(d.address))
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"address": d.address,
			"error":   err,
		}).Debug("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", d.address, NormalizeError(err))
	}

	// go-ble reports link loss through the client's Disconnected() channel
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-disconnect-monitor", func(context.Context) {
			<-dc.Disconnected()
			d.logger.WithField("address", d.address).Warn("BLE link reported disconnection")
			d.fireDisconnected()
		})
	} else {
		d.logger.Debug("Client does not support Disconnected() channel")
	}

	return newConnection(client, d.platform.opts.WithoutResponse, d.logger), nil
}

func (d *rawDevice) OnDisconnected(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = append(d.callbacks, callback)
}

func (d *rawDevice) fireDisconnected() {
	d.mu.Lock()
	callbacks := append([]func(){}, d.callbacks...)
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}
