package moment

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/moment/internal/backoff"
	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/groutine"
	"github.com/srg/moment/internal/payload"
	"github.com/srg/moment/internal/pipeline"
	"github.com/srg/moment/internal/session"
)

// Device is one Moment peripheral and the session built up for it.
//
// Connect, Run and Disconnect never block on the radio and never report
// failures to the caller: outcomes are logged and reflected in State.
type Device struct {
	logger   *logrus.Logger
	sess     *session.Session
	pipeline *pipeline.Pipeline
	writer   *payload.Writer

	tasks     *groutine.Group
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a Device using platform to find and talk to the peripheral.
// The session starts empty and Idle.
func New(platform device.Platform, opts ...Option) *Device {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}

	exec := backoff.New(o.logger, o.sleep)
	tasks := &groutine.Group{}
	ctx, cancel := context.WithCancel(context.Background())

	return &Device{
		logger:   o.logger,
		sess:     session.New(o.historySize),
		pipeline: pipeline.New(platform, o.ids, o.policy, exec, tasks, o.logger),
		writer: payload.NewWriter(exec, payload.WriterOptions{
			ChunkSize: o.chunkSize,
			Policy:    o.policy,
			Pace:      o.pace,
		}, o.sleep, o.logger),
		tasks:  tasks,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect starts a fresh scan followed by the connection stages.
// It does not look at the current state; calling it while a run is in
// flight starts another, independent run.
func (d *Device) Connect() {
	if d.ctx.Err() != nil {
		d.logger.Warn("Device is closed, ignoring connect")
		return
	}
	started := d.tasks.Go(d.ctx, "moment-connect", func(ctx context.Context) {
		d.pipeline.Connect(ctx, d.sess)
	})
	if !started {
		d.logger.Warn("Device is closed, ignoring connect")
	}
}

// Run uploads code through the write characteristic in the background.
// Without a write characteristic the call is logged and dropped.
func (d *Device) Run(code string) {
	if d.ctx.Err() != nil {
		d.logger.Warn("Device is closed, ignoring run")
		return
	}

	// The handle is captured now; a reconnect racing the upload does not redirect it.
	char := d.sess.WriteCharacteristic()
	if char == nil {
		d.logger.WithField("state", d.sess.State()).Warn("Moment device not ready, dropping code")
		return
	}

	started := d.tasks.Go(d.ctx, "moment-run", func(ctx context.Context) {
		if err := d.writer.Write(ctx, char, code); err != nil {
			d.logger.WithField("error", err).Error("Failed to upload code")
		}
	})
	if !started {
		d.logger.Warn("Device is closed, ignoring run")
	}
}

// Upload is the blocking form of Run for callers that need the outcome.
// It returns device.ErrNotReady without a write characteristic and an error
// wrapping payload.ErrAbandoned when a chunk exhausted its retries.
// The upload stops early when ctx is done or the device is closed.
func (d *Device) Upload(ctx context.Context, code string) error {
	if err := d.ctx.Err(); err != nil {
		return fmt.Errorf("upload: device closed: %w", err)
	}

	char := d.sess.WriteCharacteristic()
	if char == nil {
		return fmt.Errorf("upload: %w (state %s)", device.ErrNotReady, d.sess.State())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	return d.writer.Write(ctx, char, code)
}

// Disconnect asks the current connection to disconnect.
// Session handles are kept; the disconnect notification starts a reconnect.
func (d *Device) Disconnect() {
	conn := d.sess.Connection()
	if conn == nil {
		d.logger.Warn("No Moment connection to disconnect")
		return
	}

	d.logger.Info("Disconnecting from Moment device...")
	if err := conn.Disconnect(); err != nil {
		d.logger.WithField("error", err).Warn("Disconnect failed")
	}
}

// State returns the current pipeline state
func (d *Device) State() session.State {
	return d.sess.State()
}

// Snapshot describes the current session
func (d *Device) Snapshot() session.Snapshot {
	return d.sess.Snapshot()
}

// Transitions drains the recorded state transitions, oldest first
func (d *Device) Transitions() []session.Transition {
	return d.sess.Transitions()
}

// Wait blocks until every background run and upload has finished,
// including reconnects started while waiting.
func (d *Device) Wait() {
	d.tasks.Wait()
}

// Close cancels pending retries and waits for background work to stop.
// A closed device ignores further calls and disconnect notifications.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		d.logger.Debug("Closing Moment device")
		d.tasks.Close()
		d.cancel()
	})
	d.tasks.Wait()
}
