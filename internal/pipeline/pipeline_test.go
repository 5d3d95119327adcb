package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/srg/moment/internal/backoff"
	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/groutine"
	"github.com/srg/moment/internal/pipeline"
	"github.com/srg/moment/internal/session"
	"github.com/srg/moment/internal/testutils"
	"github.com/stretchr/testify/suite"
)

var stagePolicy = backoff.Policy{MaxAttempts: 10, InitialDelay: 2 * time.Second}

type PipelineTestSuite struct {
	suite.Suite

	helper   *testutils.TestHelper
	sleeper  *testutils.RecordingSleeper
	platform *testutils.FakePlatform
	tasks    *groutine.Group
	sess     *session.Session
	pipeline *pipeline.Pipeline
}

func (suite *PipelineTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.sleeper = testutils.NewRecordingSleeper()
	suite.platform = testutils.NewFakePlatform()
	suite.tasks = &groutine.Group{}
	suite.sess = session.New(0)
	suite.pipeline = pipeline.New(
		suite.platform,
		pipeline.DefaultIdentifiers(),
		stagePolicy,
		backoff.New(suite.helper.Logger, suite.sleeper.Sleep),
		suite.tasks,
		suite.helper.Logger,
	)
}

func (suite *PipelineTestSuite) states() []session.State {
	var out []session.State
	for _, tr := range suite.sess.Transitions() {
		out = append(out, tr.To)
	}
	return out
}

func (suite *PipelineTestSuite) TestConnectHappyPath() {
	// GOAL: Verify a full run populates every handle in order and ends Ready
	//
	// TEST SCENARIO: scan succeeds → all stages succeed first try → Ready, watcher armed, no delays

	suite.pipeline.Connect(context.Background(), suite.sess)

	raw := suite.platform.Device()
	suite.Assert().Equal(session.Ready, suite.sess.State(), "session MUST be Ready")
	suite.Assert().Equal([]session.State{
		session.Scanning, session.Connecting, session.DiscoveringService, session.DiscoveringCharacteristic, session.Ready,
	}, suite.states(), "stages MUST run strictly in order")
	suite.Assert().Equal(raw, suite.sess.RawDevice())
	suite.Assert().Equal(raw.Conn(), suite.sess.Connection())
	suite.Assert().Equal(device.DataServiceUUID, suite.sess.Service().UUID())
	suite.Assert().Equal(raw.Conn().Char(), suite.sess.WriteCharacteristic())
	suite.Assert().Equal([]string{device.FilterServiceUUID}, suite.platform.Filters(), "scan MUST filter on the advertised service")
	suite.Assert().Equal(1, raw.Subscribers(), "disconnect watcher MUST be armed once per scan")
	suite.Assert().Empty(suite.sleeper.Delays(), "no delays MUST occur without failures")
}

func (suite *PipelineTestSuite) TestCharacteristicIsQueriedOnConnection() {
	suite.pipeline.Connect(context.Background(), suite.sess)

	conn := suite.platform.Device().Conn()
	suite.Assert().Equal([]string{device.DataServiceUUID}, conn.ServiceQueries())
	suite.Assert().Equal([]string{device.WriteCharacteristicUUID}, conn.CharacteristicQueries(),
		"characteristic MUST be looked up through the connection handle")
}

func (suite *PipelineTestSuite) TestScanFailure() {
	// GOAL: Verify a cancelled or empty scan resets the session quietly
	//
	// TEST SCENARIO: platform returns ErrNoDevice → raw device cleared, Idle, nothing else attempted

	suite.sess.SetRawDevice(testutils.NewFakeRawDevice("00:00:00:00:00:01", "stale"))
	suite.platform.WithRequestError(device.ErrNoDevice)

	suite.pipeline.Connect(context.Background(), suite.sess)

	suite.Assert().Equal(session.Idle, suite.sess.State())
	suite.Assert().Nil(suite.sess.RawDevice(), "raw device MUST be cleared on scan failure")
	suite.Assert().Equal([]session.State{session.Scanning, session.Idle}, suite.states())
	suite.Assert().Equal(0, suite.platform.Device().ConnectCalls(), "connect MUST NOT be attempted")
}

func (suite *PipelineTestSuite) TestConnectExhausted() {
	// GOAL: Verify connect failing 11 consecutive times ends in Failed
	//
	// TEST SCENARIO: GATT connect fails 11 times (bound 10) → connection absent, Failed, failure logged once

	raw := suite.platform.Device().WithConnectFailures(11)

	suite.pipeline.Connect(context.Background(), suite.sess)

	suite.Assert().Equal(11, raw.ConnectCalls(), "connect MUST be tried maxAttempts+1 times")
	suite.Assert().Nil(suite.sess.Connection(), "connection MUST be absent")
	suite.Assert().Nil(suite.sess.Service())
	suite.Assert().Nil(suite.sess.WriteCharacteristic())
	suite.Assert().Equal(session.Failed, suite.sess.State())
	suite.Assert().Equal(1, suite.helper.CountMessages("Failed to connect to Moment device"), "failure MUST be logged once")
	suite.Assert().Equal(testutils.ExpectedDelays(2*time.Second, 10), suite.sleeper.Delays(), "delays MUST double from 2s")
	suite.Assert().Empty(raw.Conn().ServiceQueries(), "service discovery MUST NOT start")
}

func (suite *PipelineTestSuite) TestConnectSucceedsOnLastAttempt() {
	raw := suite.platform.Device().WithConnectFailures(10)

	suite.pipeline.Connect(context.Background(), suite.sess)

	suite.Assert().Equal(11, raw.ConnectCalls())
	suite.Assert().Equal(session.Ready, suite.sess.State())
}

func (suite *PipelineTestSuite) TestServiceExhausted() {
	conn := suite.platform.Device().Conn().WithServiceFailures(11)

	suite.pipeline.Connect(context.Background(), suite.sess)

	suite.Assert().Equal(session.Failed, suite.sess.State())
	suite.Assert().NotNil(suite.sess.Connection(), "connection MUST survive a later stage failure")
	suite.Assert().Nil(suite.sess.Service())
	suite.Assert().Len(conn.ServiceQueries(), 11)
	suite.Assert().Empty(conn.CharacteristicQueries(), "characteristic discovery MUST NOT start")
}

func (suite *PipelineTestSuite) TestCharacteristicExhausted() {
	conn := suite.platform.Device().Conn().WithCharacteristicFailures(11)

	suite.pipeline.Connect(context.Background(), suite.sess)

	suite.Assert().Equal(session.Failed, suite.sess.State())
	suite.Assert().NotNil(suite.sess.Service())
	suite.Assert().Nil(suite.sess.WriteCharacteristic())
	suite.Assert().Len(conn.CharacteristicQueries(), 11)
	suite.Assert().Equal(1, suite.helper.CountMessages("Failed to discover write characteristic"))
}

func (suite *PipelineTestSuite) TestRetriedStagesRecover() {
	conn := suite.platform.Device().Conn().WithServiceFailures(2).WithCharacteristicFailures(3)

	suite.pipeline.Connect(context.Background(), suite.sess)

	suite.Assert().Equal(session.Ready, suite.sess.State())
	suite.Assert().Len(conn.ServiceQueries(), 3)
	suite.Assert().Len(conn.CharacteristicQueries(), 4)
	suite.Assert().Equal([]time.Duration{
		2 * time.Second, 4 * time.Second, // service retries
		2 * time.Second, 4 * time.Second, 8 * time.Second, // characteristic retries start over
	}, suite.sleeper.Delays(), "each stage MUST get its own backoff sequence")
}

func (suite *PipelineTestSuite) TestDisconnectRestartsAtConnecting() {
	// GOAL: Verify a disconnect while Ready reconnects without scanning
	//
	// TEST SCENARIO: Ready → disconnect notification → Reconnect on the existing raw device → Ready again

	suite.pipeline.Connect(context.Background(), suite.sess)
	suite.Require().Equal(session.Ready, suite.sess.State())
	suite.sess.Transitions()

	raw := suite.platform.Device()
	raw.FireDisconnect()
	suite.tasks.Wait()

	suite.Assert().Equal(1, suite.platform.Requests(), "reconnect MUST NOT scan again")
	suite.Assert().Equal(2, raw.ConnectCalls())
	suite.Assert().Equal(raw, suite.sess.RawDevice())
	suite.Assert().Equal(session.Ready, suite.sess.State())
	suite.Assert().Equal([]session.State{
		session.Connecting, session.DiscoveringService, session.DiscoveringCharacteristic, session.Ready,
	}, suite.states(), "reconnect MUST start at Connecting")
}

func (suite *PipelineTestSuite) TestFailedReconnectDropsStaleHandles() {
	// GOAL: Verify a reconnect that exhausts its retries leaves no handle from the previous connection
	//
	// TEST SCENARIO: Ready → connect fails 11 times → disconnect notification → Failed with connection, service and characteristic absent

	suite.pipeline.Connect(context.Background(), suite.sess)
	suite.Require().Equal(session.Ready, suite.sess.State())

	raw := suite.platform.Device().WithConnectFailures(11)
	raw.FireDisconnect()
	suite.tasks.Wait()

	suite.Assert().Equal(session.Failed, suite.sess.State())
	suite.Assert().Nil(suite.sess.Connection())
	suite.Assert().Nil(suite.sess.Service(), "service MUST be cleared with the connection")
	suite.Assert().Nil(suite.sess.WriteCharacteristic(), "write characteristic MUST be cleared with the connection")
	suite.Assert().Equal(raw, suite.sess.RawDevice(), "raw device MUST be kept")
}

func (suite *PipelineTestSuite) TestRepeatedDisconnectsEachRestart() {
	suite.pipeline.Connect(context.Background(), suite.sess)

	raw := suite.platform.Device()
	raw.FireDisconnect()
	raw.FireDisconnect()
	raw.FireDisconnect()
	suite.tasks.Wait()

	suite.Assert().Equal(4, raw.ConnectCalls(), "every notification MUST restart the pipeline")
	suite.Assert().Equal(session.Ready, suite.sess.State())
}

func (suite *PipelineTestSuite) TestEachScanArmsAnotherWatcher() {
	suite.pipeline.Connect(context.Background(), suite.sess)
	suite.pipeline.Connect(context.Background(), suite.sess)

	raw := suite.platform.Device()
	suite.Assert().Equal(2, suite.platform.Requests(), "connect MUST always scan")
	suite.Assert().Equal(2, raw.Subscribers())

	raw.FireDisconnect()
	suite.tasks.Wait()
	suite.Assert().Equal(4, raw.ConnectCalls(), "both watchers MUST react")
}

func (suite *PipelineTestSuite) TestDisconnectAfterShutdownIgnored() {
	ctx, cancel := context.WithCancel(context.Background())
	suite.pipeline.Connect(ctx, suite.sess)
	cancel()

	raw := suite.platform.Device()
	raw.FireDisconnect()
	suite.tasks.Wait()

	suite.Assert().Equal(1, raw.ConnectCalls(), "notifications after shutdown MUST be ignored")
}

func (suite *PipelineTestSuite) TestDisconnectAfterTasksClosedIgnored() {
	suite.pipeline.Connect(context.Background(), suite.sess)
	suite.tasks.Close()

	raw := suite.platform.Device()
	raw.FireDisconnect()
	suite.tasks.Wait()

	suite.Assert().Equal(1, raw.ConnectCalls(), "closed task group MUST NOT start a reconnect")
	suite.Assert().Equal(1, suite.helper.CountMessages("Disconnect notification after shutdown, ignoring"))
	suite.Assert().Equal(session.Ready, suite.sess.State())
}

func (suite *PipelineTestSuite) TestReconnectWithoutDevice() {
	suite.pipeline.Reconnect(context.Background(), suite.sess)

	suite.Assert().Equal(session.Failed, suite.sess.State())
	suite.Assert().Nil(suite.sess.Connection())
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}
