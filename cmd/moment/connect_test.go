package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/suite"

	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/testutils"
)

type ConnectTestSuite struct {
	CommandTestSuite
}

func (suite *ConnectTestSuite) SetupTest() {
	suite.CommandTestSuite.SetupTest()
	color.NoColor = true
}

// sessionLine renders one tabwriter row whose label column is width wide
func sessionLine(width int, label, value string) string {
	return fmt.Sprintf("%-*s%s", width, "  "+label, value)
}

func (suite *ConnectTestSuite) TestConnectCmd_Ready() {
	// GOAL: Verify connect reports the discovered session and releases the link on exit
	//
	// TEST SCENARIO: healthy device → connect → session printed → disconnected without reconnect

	out, _, err := suite.ExecuteCommand("connect")
	suite.Require().NoError(err)

	testutils.NewTextAsserter(suite.T()).Assert(out, strings.Join([]string{
		"Moment device ready",
		sessionLine(19, "State:", "ready"),
		sessionLine(19, "Device:", "Moment (AA:BB:CC:DD:EE:FF)"),
		sessionLine(19, "Connected:", "true"),
		sessionLine(19, "Service:", device.DataServiceUUID),
		sessionLine(19, "Characteristic:", device.WriteCharacteristicUUID),
	}, "\n"))

	raw := suite.Platform.Device()
	suite.Assert().Equal(1, raw.Conn().Disconnects(), "connect MUST release the link on exit")
	suite.Assert().Equal(1, raw.ConnectCalls(), "release MUST NOT trigger a reconnect")
}

func (suite *ConnectTestSuite) TestConnectCmd_JSON() {
	out, _, err := suite.ExecuteCommand("connect", "--json")
	suite.Require().NoError(err)

	testutils.NewJSONAsserter(suite.T()).WithOptions(testutils.WithIgnoreExtraKeys(false)).Assert(out, fmt.Sprintf(`{
		"state": "ready",
		"device_id": "AA:BB:CC:DD:EE:FF",
		"device_name": "Moment",
		"connected": true,
		"service": %q,
		"characteristic": %q
	}`, device.DataServiceUUID, device.WriteCharacteristicUUID))
}

func (suite *ConnectTestSuite) TestConnectCmd_Transitions() {
	out, _, err := suite.ExecuteCommand("connect", "--json", "--transitions")
	suite.Require().NoError(err)

	testutils.NewJSONAsserter(suite.T()).Assert(out, `{
		"session": {"state": "ready"},
		"transitions": [
			{"run": 1, "from": "idle", "to": "scanning"},
			{"run": 1, "from": "scanning", "to": "connecting"},
			{"run": 1, "from": "connecting", "to": "discovering_service"},
			{"run": 1, "from": "discovering_service", "to": "discovering_characteristic"},
			{"run": 1, "from": "discovering_characteristic", "to": "ready"}
		]
	}`)
}

func (suite *ConnectTestSuite) TestConnectCmd_NoDevice() {
	suite.Platform.WithRequestError(device.ErrNoDevice)

	out, _, err := suite.ExecuteCommand("connect")

	suite.Require().ErrorIs(err, ErrNotReady, "missing device MUST fail the command")
	testutils.NewTextAsserter(suite.T()).Assert(out, strings.Join([]string{
		"Moment device not ready (idle)",
		sessionLine(14, "State:", "idle"),
		sessionLine(14, "Connected:", "false"),
	}, "\n"))
}

func (suite *ConnectTestSuite) TestConnectCmd_ExhaustedRetries() {
	// GOAL: Verify a device that never accepts the GATT connection ends in failed after the full backoff
	//
	// TEST SCENARIO: connect always fails → 11 attempts, 10 doubling delays → failed state, command error

	raw := suite.Platform.Device().WithConnectFailures(100)

	_, _, err := suite.ExecuteCommand("connect")

	suite.Require().ErrorIs(err, ErrNotReady)
	suite.Assert().Contains(err.Error(), "failed")
	suite.Assert().Equal(11, raw.ConnectCalls())
	suite.Assert().Equal(testutils.ExpectedDelays(2*time.Second, 10), suite.Sleeper.Delays())
	suite.Assert().Zero(raw.Conn().Disconnects(), "nothing to release without a connection")
}

func (suite *ConnectTestSuite) TestConnectCmd_ConfigFile() {
	path := filepath.Join(suite.T().TempDir(), "moment.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(`
retry:
  max_attempts: 1
  initial_delay: 100ms
scan:
  timeout: 3s
payload:
  without_response: true
`), 0o600))
	raw := suite.Platform.Device().WithConnectFailures(100)

	_, _, err := suite.ExecuteCommand("connect", "--config", path)

	suite.Require().ErrorIs(err, ErrNotReady)
	suite.Assert().Equal(2, raw.ConnectCalls(), "config retry budget MUST apply")
	suite.Assert().Equal([]time.Duration{100 * time.Millisecond}, suite.Sleeper.Delays())
	suite.Assert().Equal(3*time.Second, suite.Options.ScanTimeout)
	suite.Assert().True(suite.Options.WithoutResponse)
}

func (suite *ConnectTestSuite) TestConnectCmd_InvalidLogLevel() {
	_, _, err := suite.ExecuteCommand("connect", "--log-level", "loud")

	suite.Require().Error(err)
	suite.Assert().Contains(err.Error(), "invalid log level: loud")
	suite.Assert().Zero(suite.Platform.Requests(), "invalid flags MUST NOT start a scan")
}

func (suite *ConnectTestSuite) TestConnectCmd_LogsToStderr() {
	out, stderr, err := suite.ExecuteCommand("connect", "--log-level", "info")

	suite.Require().NoError(err)
	suite.Assert().Contains(stderr, "Moment device ready")
	suite.Assert().NotContains(out, "level=info", "logs MUST NOT mix with command output")
}

func TestConnectTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectTestSuite))
}
