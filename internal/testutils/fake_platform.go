package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/srg/moment/internal/device"
)

// ErrInjected is returned by fakes for scripted failures
var ErrInjected = errors.New("injected failure")

// ----------------------------
// Platform
// ----------------------------

// FakePlatform is a scripted device.Platform
type FakePlatform struct {
	mu         sync.Mutex
	device     *FakeRawDevice
	err        error
	requests   int
	filters    []string
	candidates []device.Candidate
}

// NewFakePlatform creates a platform that finds a default Moment peripheral
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{device: NewFakeRawDevice("AA:BB:CC:DD:EE:FF", "Moment")}
}

// WithDevice replaces the peripheral returned by RequestDevice
func (p *FakePlatform) WithDevice(d *FakeRawDevice) *FakePlatform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.device = d
	return p
}

// WithRequestError makes RequestDevice fail with err
func (p *FakePlatform) WithRequestError(err error) *FakePlatform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	return p
}

// WithCandidates sets the list returned by Discover
func (p *FakePlatform) WithCandidates(c ...device.Candidate) *FakePlatform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = c
	return p
}

// Device returns the scripted peripheral
func (p *FakePlatform) Device() *FakeRawDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

func (p *FakePlatform) RequestDevice(ctx context.Context, filterServiceID string) (device.RawDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	p.filters = append(p.filters, filterServiceID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.device == nil {
		return nil, device.ErrNoDevice
	}
	return p.device, nil
}

func (p *FakePlatform) Discover(ctx context.Context, filterServiceID string) ([]device.Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters = append(p.filters, filterServiceID)
	if p.err != nil {
		return nil, p.err
	}
	return p.candidates, nil
}

// Requests returns how many times RequestDevice was called
func (p *FakePlatform) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// Filters returns every filter service identifier passed to the platform
func (p *FakePlatform) Filters() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.filters...)
}

// ----------------------------
// Raw device
// ----------------------------

// FakeRawDevice is a scripted device.RawDevice
type FakeRawDevice struct {
	id   string
	name string

	mu              sync.Mutex
	connectFailures int
	connectCalls    int
	conn            *FakeConnection
	callbacks       []func()
}

// NewFakeRawDevice creates a peripheral whose GATT connection always succeeds
func NewFakeRawDevice(id, name string) *FakeRawDevice {
	return &FakeRawDevice{id: id, name: name, conn: NewFakeConnection()}
}

// WithConnectFailures makes the next n ConnectGATT calls fail
func (d *FakeRawDevice) WithConnectFailures(n int) *FakeRawDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectFailures = n
	return d
}

// Conn returns the connection handed out by ConnectGATT
func (d *FakeRawDevice) Conn() *FakeConnection {
	return d.conn
}

func (d *FakeRawDevice) ID() string   { return d.id }
func (d *FakeRawDevice) Name() string { return d.name }

func (d *FakeRawDevice) ConnectGATT(ctx context.Context) (device.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.connectFailures > 0 {
		d.connectFailures--
		return nil, fmt.Errorf("gatt connect: %w", ErrInjected)
	}
	return d.conn, nil
}

func (d *FakeRawDevice) OnDisconnected(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = append(d.callbacks, callback)
}

// ConnectCalls returns how many times ConnectGATT was called
func (d *FakeRawDevice) ConnectCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectCalls
}

// Subscribers returns how many disconnect callbacks are registered
func (d *FakeRawDevice) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.callbacks)
}

// FireDisconnect invokes every registered disconnect callback
func (d *FakeRawDevice) FireDisconnect() {
	d.mu.Lock()
	cbs := append([]func(){}, d.callbacks...)
	d.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// ----------------------------
// Connection
// ----------------------------

// FakeConnection is a scripted device.Connection
type FakeConnection struct {
	serviceUUID string

	mu                 sync.Mutex
	serviceFailures    int
	charFailures       int
	serviceQueries     []string
	charQueries        []string
	disconnects        int
	char               *FakeCharacteristic
	onDisconnectCalled func()
}

// NewFakeConnection creates a connection exposing the Moment data service and write characteristic.
// Queries for any other identifier fail with NotFoundError.
func NewFakeConnection() *FakeConnection {
	return &FakeConnection{
		serviceUUID: device.DataServiceUUID,
		char:        NewFakeCharacteristic(device.WriteCharacteristicUUID),
	}
}

// WithServiceFailures makes the next n GetService calls fail
func (c *FakeConnection) WithServiceFailures(n int) *FakeConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serviceFailures = n
	return c
}

// WithCharacteristicFailures makes the next n GetCharacteristic calls fail
func (c *FakeConnection) WithCharacteristicFailures(n int) *FakeConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charFailures = n
	return c
}

// OnDisconnect installs a hook run by Disconnect, e.g. to fire the device notification
func (c *FakeConnection) OnDisconnect(fn func()) *FakeConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnectCalled = fn
	return c
}

// Char returns the characteristic handed out by GetCharacteristic
func (c *FakeConnection) Char() *FakeCharacteristic {
	return c.char
}

func (c *FakeConnection) GetService(ctx context.Context, uuid string) (device.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serviceQueries = append(c.serviceQueries, uuid)
	if c.serviceFailures > 0 || !device.EqualUUID(uuid, c.serviceUUID) {
		c.serviceFailures = max(c.serviceFailures-1, 0)
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}
	return fakeService(uuid), nil
}

func (c *FakeConnection) GetCharacteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charQueries = append(c.charQueries, uuid)
	if c.charFailures > 0 || !device.EqualUUID(uuid, c.char.UUID()) {
		c.charFailures = max(c.charFailures-1, 0)
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
	}
	return c.char, nil
}

func (c *FakeConnection) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	hook := c.onDisconnectCalled
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// ServiceQueries returns every UUID passed to GetService
func (c *FakeConnection) ServiceQueries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.serviceQueries...)
}

// CharacteristicQueries returns every UUID passed to GetCharacteristic
func (c *FakeConnection) CharacteristicQueries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.charQueries...)
}

// Disconnects returns how many times Disconnect was called
func (c *FakeConnection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

type fakeService string

func (s fakeService) UUID() string { return string(s) }

// ----------------------------
// Characteristic
// ----------------------------

// FakeCharacteristic records writes and fails them on demand
type FakeCharacteristic struct {
	uuid string

	mu       sync.Mutex
	failures int
	failWhen func(data []byte) bool
	attempts [][]byte
	written  [][]byte
}

// NewFakeCharacteristic creates a characteristic accepting every write
func NewFakeCharacteristic(uuid string) *FakeCharacteristic {
	return &FakeCharacteristic{uuid: uuid}
}

// WithWriteFailures makes the next n writes fail
func (c *FakeCharacteristic) WithWriteFailures(n int) *FakeCharacteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = n
	return c
}

// FailWritesWhen makes every write whose payload satisfies pred fail
func (c *FakeCharacteristic) FailWritesWhen(pred func(data []byte) bool) *FakeCharacteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWhen = pred
	return c
}

func (c *FakeCharacteristic) UUID() string { return c.uuid }

func (c *FakeCharacteristic) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := append([]byte(nil), data...)
	c.attempts = append(c.attempts, buf)
	if c.failures > 0 {
		c.failures--
		return fmt.Errorf("write: %w", ErrInjected)
	}
	if c.failWhen != nil && c.failWhen(buf) {
		return fmt.Errorf("write: %w", ErrInjected)
	}
	c.written = append(c.written, buf)
	return nil
}

// Attempts returns every payload passed to Write, including failed ones
func (c *FakeCharacteristic) Attempts() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.attempts...)
}

// Written returns the payloads of successful writes in order
func (c *FakeCharacteristic) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// WrittenStrings returns successful payloads as strings
func (c *FakeCharacteristic) WrittenStrings() []string {
	written := c.Written()
	out := make([]string, 0, len(written))
	for _, w := range written {
		out = append(out, string(w))
	}
	return out
}
