package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/suite"

	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/payload"
	"github.com/srg/moment/internal/testutils"
)

type RunTestSuite struct {
	CommandTestSuite
}

func (suite *RunTestSuite) SetupTest() {
	suite.CommandTestSuite.SetupTest()
	color.NoColor = true
}

func (suite *RunTestSuite) TearDownTest() {
	rootCmd.SetIn(nil)
	suite.CommandTestSuite.TearDownTest()
}

func (suite *RunTestSuite) char() *testutils.FakeCharacteristic {
	return suite.Platform.Device().Conn().Char()
}

func (suite *RunTestSuite) TestRunCmd_Expression() {
	// GOAL: Verify a short expression is uploaded in a single write
	//
	// TEST SCENARIO: run "5+5;" → connect → one chunk written → summary printed

	out, _, err := suite.ExecuteCommand("run", "5+5;")
	suite.Require().NoError(err)

	suite.Assert().Equal([]string{"5+5;"}, suite.char().WrittenStrings())
	testutils.NewTextAsserter(suite.T()).Assert(out, "Uploaded 4 bytes in 1 chunks")
}

func (suite *RunTestSuite) TestRunCmd_File() {
	code := strings.Repeat("a", 19) + strings.Repeat("b", 19) + "cc"
	path := filepath.Join(suite.T().TempDir(), "pattern.js")
	suite.Require().NoError(os.WriteFile(path, []byte(code), 0o600))

	out, _, err := suite.ExecuteCommand("run", "--file", path)
	suite.Require().NoError(err)

	suite.Assert().Equal([]string{strings.Repeat("a", 19), strings.Repeat("b", 19), "cc"}, suite.char().WrittenStrings())
	testutils.NewTextAsserter(suite.T()).Assert(out, "Uploaded 40 bytes in 3 chunks")
}

func (suite *RunTestSuite) TestRunCmd_Stdin() {
	rootCmd.SetIn(strings.NewReader("1+1;"))

	_, _, err := suite.ExecuteCommand("run", "--file", "-")

	suite.Require().NoError(err)
	suite.Assert().Equal([]string{"1+1;"}, suite.char().WrittenStrings())
}

func (suite *RunTestSuite) TestRunCmd_CodeArguments() {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no code", args: []string{"run"}, want: "no code to upload"},
		{name: "empty code", args: []string{"run", ""}, want: "no code to upload"},
		{name: "argument and file", args: []string{"run", "5+5;", "--file", "x.js"}, want: "not both"},
		{name: "missing file", args: []string{"run", "--file", filepath.Join(os.TempDir(), "moment-missing.js")}, want: "failed to read code"},
		{name: "too many arguments", args: []string{"run", "1;", "2;"}, want: "accepts at most 1 arg"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			resetFlags(rootCmd)

			_, _, err := suite.ExecuteCommand(tt.args...)

			suite.Require().Error(err)
			suite.Assert().Contains(err.Error(), tt.want)
		})
	}
	suite.Assert().Zero(suite.Platform.Requests(), "argument errors MUST NOT start a scan")
}

func (suite *RunTestSuite) TestRunCmd_NotReady() {
	suite.Platform.WithRequestError(device.ErrNoDevice)

	_, _, err := suite.ExecuteCommand("run", "5+5;")

	suite.Require().ErrorIs(err, ErrNotReady)
	suite.Assert().Empty(suite.char().Attempts(), "nothing MUST be written without a ready device")
}

func (suite *RunTestSuite) TestRunCmd_AbandonedUpload() {
	// GOAL: Verify an upload whose chunk keeps failing fails the command after the backoff budget
	//
	// TEST SCENARIO: chunk 2 always fails → chunk 1 written, chunk 3 never → error wraps ErrAbandoned

	suite.char().FailWritesWhen(func(data []byte) bool { return data[0] == 'b' })
	code := strings.Repeat("a", 19) + strings.Repeat("b", 19) + "cc"

	out, _, err := suite.ExecuteCommand("run", code)

	suite.Require().ErrorIs(err, payload.ErrAbandoned)
	suite.Assert().Contains(FormatUserError(err), "upload abandoned after retries")
	suite.Assert().Contains(err.Error(), "chunk 2 of 3")
	suite.Assert().Equal([]string{strings.Repeat("a", 19)}, suite.char().WrittenStrings())
	suite.Assert().NotContains(out, "Uploaded")
}

func TestRunTestSuite(t *testing.T) {
	suite.Run(t, new(RunTestSuite))
}
