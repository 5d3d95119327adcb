package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/moment/internal/device"
)

// connection wraps a go-ble client as a device.Connection
type connection struct {
	client          ble.Client
	withoutResponse bool
	logger          *logrus.Logger

	mu      sync.Mutex
	profile *ble.Profile
}

func newConnection(client ble.Client, withoutResponse bool, logger *logrus.Logger) *connection {
	return &connection{client: client, withoutResponse: withoutResponse, logger: logger}
}

// GetService discovers the primary service with the given UUID
func (c *connection) GetService(ctx context.Context, uuid string) (device.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := ble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", uuid, err)
	}

	services, err := c.client.DiscoverServices([]ble.UUID{u})
	if err != nil {
		return nil, fmt.Errorf("failed to discover service %q: %w", uuid, NormalizeError(err))
	}
	for _, s := range services {
		if s.UUID.Equal(u) {
			c.logger.WithField("service", uuid).Debug("Discovered service")
			return &service{uuid: uuid, svc: s}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

// GetCharacteristic searches every service of the discovered profile for the
// characteristic, so the result does not depend on a particular service handle.
func (c *connection) GetCharacteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := ble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", uuid, err)
	}

	profile, err := c.discoverProfile()
	if err != nil {
		return nil, err
	}

	ch := profile.FindCharacteristic(ble.NewCharacteristic(u))
	if ch == nil {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
	}

	c.logger.WithField("characteristic", uuid).Debug("Discovered characteristic")
	return &characteristic{
		uuid:            uuid,
		client:          c.client,
		char:            ch,
		withoutResponse: c.withoutResponse,
	}, nil
}

// discoverProfile caches the profile after the first successful discovery
func (c *connection) discoverProfile() (*ble.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.profile != nil {
		return c.profile, nil
	}
	profile, err := c.client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}
	c.profile = profile
	return profile, nil
}

func (c *connection) Disconnect() error {
	c.logger.Info("Disconnecting BLE device...")
	if err := c.client.CancelConnection(); err != nil {
		return NormalizeError(err)
	}
	return nil
}

type service struct {
	uuid string
	svc  *ble.Service
}

func (s *service) UUID() string { return s.uuid }

type characteristic struct {
	uuid            string
	client          ble.Client
	char            *ble.Characteristic
	withoutResponse bool
}

func (c *characteristic) UUID() string { return c.uuid }

func (c *characteristic) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.client.WriteCharacteristic(c.char, data, c.withoutResponse); err != nil {
		return fmt.Errorf("failed to write characteristic %q: %w", c.uuid, NormalizeError(err))
	}
	return nil
}
