package moment

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/moment/internal/backoff"
	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/payload"
	"github.com/srg/moment/internal/pipeline"
	"github.com/srg/moment/pkg/config"
)

// Moment GATT identifiers
const (
	FilterServiceUUID       = device.FilterServiceUUID
	DataServiceUUID         = device.DataServiceUUID
	WriteCharacteristicUUID = device.WriteCharacteristicUUID
)

// Identifiers selects the services and characteristic a Device looks for
type Identifiers = pipeline.Identifiers

// DefaultRetryPolicy bounds every connection stage and every chunk write:
// ten retries after the first attempt, starting two seconds apart and doubling.
var DefaultRetryPolicy = backoff.Policy{MaxAttempts: 10, InitialDelay: 2 * time.Second}

// Option configures a Device
type Option func(*options)

type options struct {
	logger      *logrus.Logger
	ids         Identifiers
	policy      backoff.Policy
	chunkSize   int
	pace        time.Duration
	sleep       backoff.SleepFunc
	historySize uint32
}

func defaultOptions() options {
	return options{
		ids:       pipeline.DefaultIdentifiers(),
		policy:    DefaultRetryPolicy,
		chunkSize: payload.DefaultChunkSize,
		sleep:     backoff.Sleep,
	}
}

// WithLogger sets the logger used by the device and everything it drives
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithIdentifiers overrides the Moment GATT identifiers
func WithIdentifiers(ids Identifiers) Option {
	return func(o *options) {
		o.ids = ids
	}
}

// WithRetryPolicy overrides the retry policy of connection stages and chunk writes
func WithRetryPolicy(policy backoff.Policy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithChunkSize sets the largest write payload in bytes
func WithChunkSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.chunkSize = size
		}
	}
}

// WithPace waits d between consecutive chunk writes
func WithPace(d time.Duration) Option {
	return func(o *options) {
		o.pace = d
	}
}

// WithSleep replaces the timer used for retry delays and pacing
func WithSleep(sleep backoff.SleepFunc) Option {
	return func(o *options) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// WithHistorySize sets how many state transitions are kept
func WithHistorySize(n uint32) Option {
	return func(o *options) {
		o.historySize = n
	}
}

// OptionsFromConfig translates a loaded configuration into device options
func OptionsFromConfig(cfg *config.Config) []Option {
	return []Option{
		WithIdentifiers(Identifiers{
			FilterService:       cfg.Identifiers.FilterService,
			DataService:         cfg.Identifiers.DataService,
			WriteCharacteristic: cfg.Identifiers.WriteCharacteristic,
		}),
		WithRetryPolicy(cfg.RetryPolicy()),
		WithChunkSize(cfg.Payload.ChunkSize),
		WithPace(cfg.Payload.Pace),
	}
}
