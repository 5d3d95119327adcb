package main

import (
	"bytes"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"

	"github.com/srg/moment/internal/backoff"
	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/devicefactory"
	"github.com/srg/moment/internal/testutils"
)

// CommandTestSuite runs commands against a scripted platform with instant backoff delays.
// All cmd/moment test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	Platform *testutils.FakePlatform
	Sleeper  *testutils.RecordingSleeper
	Options  devicefactory.PlatformOptions

	originalFactory func(devicefactory.PlatformOptions, *logrus.Logger) (device.Platform, error)
	originalSleep   backoff.SleepFunc
}

func (s *CommandTestSuite) SetupTest() {
	s.Platform = testutils.NewFakePlatform()
	s.Sleeper = testutils.NewRecordingSleeper()
	s.Options = devicefactory.PlatformOptions{}

	s.originalFactory = devicefactory.PlatformFactory
	devicefactory.PlatformFactory = func(opts devicefactory.PlatformOptions, _ *logrus.Logger) (device.Platform, error) {
		s.Options = opts
		return s.Platform, nil
	}
	s.originalSleep = sleepFunc
	sleepFunc = s.Sleeper.Sleep

	resetFlags(rootCmd)
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.PlatformFactory = s.originalFactory
	sleepFunc = s.originalSleep
}

// ExecuteCommand runs the root command with args and returns stdout, stderr and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag of cmd and its children to its default,
// since cobra keeps parsed values between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}
