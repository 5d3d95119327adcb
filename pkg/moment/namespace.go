package moment

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/devicefactory"
)

var (
	defaultOnce   sync.Once
	defaultDevice *Device
)

// Default returns the shared Device used by the package-level helpers.
// It is created on first use on top of the default platform.
func Default() *Device {
	defaultOnce.Do(func() {
		logger := logrus.StandardLogger()
		platform, err := devicefactory.NewPlatform(devicefactory.PlatformOptions{}, logger)
		if err != nil {
			logger.WithField("error", err).Error("Failed to create Bluetooth platform")
			platform = unavailable{err: err}
		}
		defaultDevice = New(platform, WithLogger(logger))
	})
	return defaultDevice
}

// Connect scans for a Moment peripheral and connects the shared Device
func Connect() {
	Default().Connect()
}

// unavailable stands in for a platform that could not be created so that
// every scan fails the way a missing device does.
type unavailable struct {
	err error
}

func (u unavailable) RequestDevice(context.Context, string) (device.RawDevice, error) {
	return nil, u.err
}
