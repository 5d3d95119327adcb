package testutils

import (
	"context"
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockBLEDevice is a testify mock of the go-ble host device.
// Only Scan and Dial are mocked; any other method panics through the nil embedded interface.
type MockBLEDevice struct {
	blelib.Device
	mock.Mock

	Advertisements []blelib.Advertisement
}

// Scan delivers the configured advertisements to h, then returns the mocked result
func (m *MockBLEDevice) Scan(ctx context.Context, allowDup bool, h blelib.AdvHandler) error {
	for _, adv := range m.Advertisements {
		h(adv)
	}
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *MockBLEDevice) Dial(ctx context.Context, a blelib.Addr) (blelib.Client, error) {
	args := m.Called(ctx, a)
	client, _ := args.Get(0).(blelib.Client)
	return client, args.Error(1)
}

// MockBLEClient is a testify mock of a go-ble client
type MockBLEClient struct {
	blelib.Client
	mock.Mock

	once         sync.Once
	disconnected chan struct{}
}

// NewMockBLEClient creates a client whose Disconnected channel is open
func NewMockBLEClient() *MockBLEClient {
	return &MockBLEClient{disconnected: make(chan struct{})}
}

func (m *MockBLEClient) DiscoverServices(filter []blelib.UUID) ([]*blelib.Service, error) {
	args := m.Called(filter)
	svcs, _ := args.Get(0).([]*blelib.Service)
	return svcs, args.Error(1)
}

func (m *MockBLEClient) DiscoverProfile(force bool) (*blelib.Profile, error) {
	args := m.Called(force)
	profile, _ := args.Get(0).(*blelib.Profile)
	return profile, args.Error(1)
}

func (m *MockBLEClient) WriteCharacteristic(c *blelib.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c, value, noRsp)
	return args.Error(0)
}

func (m *MockBLEClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockBLEClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// SimulateDisconnect closes the Disconnected channel once
func (m *MockBLEClient) SimulateDisconnect() {
	m.once.Do(func() { close(m.disconnected) })
}

// MockAdvertisement is a minimal go-ble advertisement
type MockAdvertisement struct {
	blelib.Advertisement

	Name          string
	Address       string
	Rssi          int
	ServiceIDs    []string
	IsConnectable bool
}

func (a *MockAdvertisement) LocalName() string { return a.Name }
func (a *MockAdvertisement) RSSI() int         { return a.Rssi }
func (a *MockAdvertisement) Connectable() bool { return a.IsConnectable }
func (a *MockAdvertisement) Addr() blelib.Addr { return blelib.NewAddr(a.Address) }

func (a *MockAdvertisement) Services() []blelib.UUID {
	out := make([]blelib.UUID, 0, len(a.ServiceIDs))
	for _, s := range a.ServiceIDs {
		out = append(out, blelib.MustParse(s))
	}
	return out
}

// NewMomentAdvertisement creates a connectable advertisement carrying serviceID
func NewMomentAdvertisement(address, name string, rssi int, serviceID string) *MockAdvertisement {
	return &MockAdvertisement{
		Name:          name,
		Address:       address,
		Rssi:          rssi,
		ServiceIDs:    []string{serviceID},
		IsConnectable: true,
	}
}

// NewMomentProfile builds a go-ble profile with one service holding the given characteristics
func NewMomentProfile(serviceID string, charIDs ...string) *blelib.Profile {
	svc := &blelib.Service{UUID: blelib.MustParse(serviceID)}
	for _, id := range charIDs {
		svc.Characteristics = append(svc.Characteristics, &blelib.Characteristic{
			UUID:     blelib.MustParse(id),
			Property: blelib.CharWrite | blelib.CharWriteNR,
		})
	}
	return &blelib.Profile{Services: []*blelib.Service{svc}}
}
