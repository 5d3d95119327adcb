// Package session holds the resources acquired for one Moment peripheral
// and the state of the connection pipeline driving it.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/moment/internal/device"
)

// DefaultHistorySize is the number of transitions kept before the oldest are overwritten
const DefaultHistorySize uint32 = 64

// State is a connection pipeline state
type State int

const (
	Idle State = iota
	Scanning
	Connecting
	DiscoveringService
	DiscoveringCharacteristic
	Ready
	Failed
)

var stateNames = [...]string{
	Idle:                      "idle",
	Scanning:                  "scanning",
	Connecting:                "connecting",
	DiscoveringService:        "discovering_service",
	DiscoveringCharacteristic: "discovering_characteristic",
	Ready:                     "ready",
	Failed:                    "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Transition records one state change made by a pipeline run
type Transition struct {
	Run  uint64
	From State
	To   State
	At   time.Time
}

// Session holds the handles acquired for one device.
// Each handle is nil when absent. The mutex only keeps individual reads and
// writes whole; concurrent pipeline runs may still interleave their updates.
type Session struct {
	mu                  sync.RWMutex
	rawDevice           device.RawDevice
	connection          device.Connection
	service             device.Service
	writeCharacteristic device.Characteristic
	state               State

	history mpmc.RichOverlappedRingBuffer[Transition]
	now     func() time.Time
}

// New creates an empty session in the Idle state
func New(historySize uint32) *Session {
	if historySize == 0 {
		historySize = DefaultHistorySize
	}
	return &Session{
		state:   Idle,
		history: mpmc.NewOverlappedRingBuffer[Transition](historySize),
		now:     time.Now,
	}
}

// RawDevice returns the selected peripheral, or nil before a successful scan
func (s *Session) RawDevice() device.RawDevice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rawDevice
}

// SetRawDevice stores the scanned peripheral; nil clears it
func (s *Session) SetRawDevice(d device.RawDevice) {
	s.mu.Lock()
	s.rawDevice = d
	s.mu.Unlock()
}

// Connection returns the live GATT connection handle, or nil
func (s *Session) Connection() device.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connection
}

// SetConnection stores the GATT connection handle; nil clears it
func (s *Session) SetConnection(c device.Connection) {
	s.mu.Lock()
	s.connection = c
	s.mu.Unlock()
}

// Service returns the discovered data service, or nil
func (s *Session) Service() device.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.service
}

// SetService stores the data service handle; nil clears it
func (s *Session) SetService(svc device.Service) {
	s.mu.Lock()
	s.service = svc
	s.mu.Unlock()
}

// WriteCharacteristic returns the handle code is uploaded through, or nil
func (s *Session) WriteCharacteristic() device.Characteristic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeCharacteristic
}

// SetWriteCharacteristic stores the write characteristic handle; nil clears it
func (s *Session) SetWriteCharacteristic(c device.Characteristic) {
	s.mu.Lock()
	s.writeCharacteristic = c
	s.mu.Unlock()
}

// ClearConnection drops the connection together with the service and write
// characteristic discovered through it, so no handle outlives its connection.
func (s *Session) ClearConnection() {
	s.mu.Lock()
	s.connection = nil
	s.service = nil
	s.writeCharacteristic = nil
	s.mu.Unlock()
}

// State returns the current pipeline state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transition moves the session to state to on behalf of pipeline run and records it
func (s *Session) Transition(run uint64, to State) Transition {
	s.mu.Lock()
	tr := Transition{Run: run, From: s.state, To: to, At: s.now()}
	s.state = to
	s.mu.Unlock()

	// Overlapped buffer: a full ring drops the oldest transition, never errors for capacity.
	_, _ = s.history.EnqueueM(tr)
	return tr
}

// Transitions drains and returns the recorded transitions, oldest first
func (s *Session) Transitions() []Transition {
	var out []Transition
	for !s.history.IsEmpty() {
		tr, err := s.history.Dequeue()
		if err != nil {
			break
		}
		out = append(out, tr)
	}
	return out
}

// Snapshot is a point-in-time description of a session
type Snapshot struct {
	State          State
	DeviceID       string
	DeviceName     string
	Connected      bool
	Service        string
	Characteristic string
}

// Snapshot captures the current session
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		State:     s.state,
		Connected: s.connection != nil,
	}
	if s.rawDevice != nil {
		snap.DeviceID = s.rawDevice.ID()
		snap.DeviceName = s.rawDevice.Name()
	}
	if s.service != nil {
		snap.Service = s.service.UUID()
	}
	if s.writeCharacteristic != nil {
		snap.Characteristic = s.writeCharacteristic.UUID()
	}
	return snap
}

// MarshalJSON renders the snapshot with a stable field order
func (s Snapshot) MarshalJSON() ([]byte, error) {
	om := orderedmap.New[string, any]()
	om.Set("state", s.State.String())
	om.Set("device_id", s.DeviceID)
	om.Set("device_name", s.DeviceName)
	om.Set("connected", s.Connected)
	om.Set("service", s.Service)
	om.Set("characteristic", s.Characteristic)
	return json.Marshal(om)
}
