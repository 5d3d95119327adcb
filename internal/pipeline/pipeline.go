// Package pipeline sequences the stages that take a Moment session from a
// fresh scan to a discovered write characteristic, and restarts them when the
// peripheral disconnects.
package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/srg/moment/internal/backoff"
	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/groutine"
	"github.com/srg/moment/internal/session"
)

// Identifiers are the GATT identifiers the pipeline looks for
type Identifiers struct {
	FilterService       string
	DataService         string
	WriteCharacteristic string
}

// DefaultIdentifiers returns the fixed Moment identifiers
func DefaultIdentifiers() Identifiers {
	return Identifiers{
		FilterService:       device.FilterServiceUUID,
		DataService:         device.DataServiceUUID,
		WriteCharacteristic: device.WriteCharacteristicUUID,
	}
}

// Pipeline drives connection runs against a session.
// Runs are independent: starting a new one never cancels one in flight.
type Pipeline struct {
	platform device.Platform
	ids      Identifiers
	policy   backoff.Policy
	exec     *backoff.Executor
	tasks    *groutine.Group
	logger   *logrus.Logger

	runs atomic.Uint64
}

// New creates a pipeline. Reconnect runs triggered by disconnect
// notifications are started on tasks.
func New(platform device.Platform, ids Identifiers, policy backoff.Policy, exec *backoff.Executor,
	tasks *groutine.Group, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	if tasks == nil {
		tasks = &groutine.Group{}
	}
	return &Pipeline{
		platform: platform,
		ids:      ids,
		policy:   policy,
		exec:     exec,
		tasks:    tasks,
		logger:   logger,
	}
}

// Connect runs the full pipeline starting with a platform scan.
// Failures are logged and reflected in the session, never returned.
func (p *Pipeline) Connect(ctx context.Context, sess *session.Session) {
	run := p.runs.Add(1)
	log := p.logger.WithField("run", run)

	sess.Transition(run, session.Scanning)
	log.WithField("filter", p.ids.FilterService).Info("Requesting Moment device...")

	raw, err := p.platform.RequestDevice(ctx, p.ids.FilterService)
	if err != nil {
		sess.SetRawDevice(nil)
		sess.Transition(run, session.Idle)
		log.WithField("error", err).Warn("No Moment device selected")
		return
	}

	sess.SetRawDevice(raw)
	log.WithFields(logrus.Fields{
		"device_id":   raw.ID(),
		"device_name": raw.Name(),
	}).Info("Moment device found")

	p.watch(ctx, sess, raw)
	p.connect(ctx, sess, run)
}

// Reconnect restarts the pipeline at the GATT connect stage using the
// session's current raw device, without scanning.
func (p *Pipeline) Reconnect(ctx context.Context, sess *session.Session) {
	run := p.runs.Add(1)
	p.logger.WithField("run", run).Info("Reconnecting to Moment device...")
	p.connect(ctx, sess, run)
}

// connect runs the connect, service and characteristic stages in order.
// A stage only starts after its predecessor succeeded.
func (p *Pipeline) connect(ctx context.Context, sess *session.Session, run uint64) {
	if !p.connectGATT(ctx, sess, run) {
		return
	}
	if !p.discoverService(ctx, sess, run) {
		return
	}
	if !p.discoverCharacteristic(ctx, sess, run) {
		return
	}
	sess.Transition(run, session.Ready)
	p.logger.WithField("run", run).Info("Moment device ready")
}

// connectGATT clears the service and characteristic with the connection on
// failure: they belong to the previous connection and must not be reused.
func (p *Pipeline) connectGATT(ctx context.Context, sess *session.Session, run uint64) bool {
	sess.Transition(run, session.Connecting)

	raw := sess.RawDevice()
	if raw == nil {
		sess.ClearConnection()
		sess.Transition(run, session.Failed)
		p.logger.WithField("run", run).Error("Cannot connect: no Moment device selected")
		return false
	}

	ok := false
	backoff.Execute(ctx, p.exec, "gatt-connect", p.policy,
		func(ctx context.Context) (device.Connection, error) {
			return raw.ConnectGATT(ctx)
		},
		func(conn device.Connection) {
			sess.SetConnection(conn)
			ok = true
			p.logger.WithField("run", run).Info("Bluetooth device connected")
		},
		func() {
			sess.ClearConnection()
			sess.Transition(run, session.Failed)
			p.logger.WithField("run", run).Error("Failed to connect to Moment device")
		})
	return ok
}

func (p *Pipeline) discoverService(ctx context.Context, sess *session.Session, run uint64) bool {
	sess.Transition(run, session.DiscoveringService)
	conn := sess.Connection()

	ok := false
	backoff.Execute(ctx, p.exec, "get-service", p.policy,
		func(ctx context.Context) (device.Service, error) {
			if conn == nil {
				return nil, device.ErrNotConnected
			}
			return conn.GetService(ctx, p.ids.DataService)
		},
		func(svc device.Service) {
			sess.SetService(svc)
			ok = true
			p.logger.WithFields(logrus.Fields{
				"run":     run,
				"service": svc.UUID(),
			}).Info("Found data service")
		},
		func() {
			sess.SetService(nil)
			sess.Transition(run, session.Failed)
			p.logger.WithFields(logrus.Fields{
				"run":     run,
				"service": p.ids.DataService,
			}).Error("Failed to discover data service")
		})
	return ok
}

// discoverCharacteristic looks the write characteristic up on the
// connection handle rather than the discovered service.
func (p *Pipeline) discoverCharacteristic(ctx context.Context, sess *session.Session, run uint64) bool {
	sess.Transition(run, session.DiscoveringCharacteristic)
	conn := sess.Connection()

	ok := false
	backoff.Execute(ctx, p.exec, "get-characteristic", p.policy,
		func(ctx context.Context) (device.Characteristic, error) {
			if conn == nil {
				return nil, device.ErrNotConnected
			}
			return conn.GetCharacteristic(ctx, p.ids.WriteCharacteristic)
		},
		func(char device.Characteristic) {
			sess.SetWriteCharacteristic(char)
			ok = true
			p.logger.WithFields(logrus.Fields{
				"run":            run,
				"characteristic": char.UUID(),
			}).Info("Found write characteristic")
		},
		func() {
			sess.SetWriteCharacteristic(nil)
			sess.Transition(run, session.Failed)
			p.logger.WithFields(logrus.Fields{
				"run":            run,
				"characteristic": p.ids.WriteCharacteristic,
			}).Error("Failed to discover write characteristic")
		})
	return ok
}
