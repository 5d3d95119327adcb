package devicefactory

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/moment/internal/device"
	goble "github.com/srg/moment/internal/device/go-ble"
)

// PlatformOptions configures the default platform
type PlatformOptions = goble.Options

// PlatformFactory creates the device.Platform used by the SDK and CLI.
// This is a variable so that it can be overridden in tests.
var PlatformFactory = func(opts PlatformOptions, logger *logrus.Logger) (device.Platform, error) {
	return goble.NewPlatform(opts, logger), nil
}

// NewPlatform creates the platform through PlatformFactory
func NewPlatform(opts PlatformOptions, logger *logrus.Logger) (device.Platform, error) {
	return PlatformFactory(opts, logger)
}
