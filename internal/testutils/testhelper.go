package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *test.Hook
}

// NewTestHelper creates a test helper with a debug logger whose entries are
// captured by Hook for assertions on logged outcomes.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	hook := test.NewLocal(logger)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// CountMessages returns how many captured entries carry exactly msg
func (h *TestHelper) CountMessages(msg string) int {
	n := 0
	for _, e := range h.Hook.AllEntries() {
		if e.Message == msg {
			n++
		}
	}
	return n
}
