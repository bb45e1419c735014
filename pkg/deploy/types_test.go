package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/kdeploy/pkg/errors"
)

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		parsed, err := ParseMode(string(m))
		assert.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	parsed, err := ParseMode("Staged")
	assert.NoError(t, err)
	assert.Equal(t, ModeStaged, parsed)

	_, err = ParseMode("everything")
	assert.EqualError(t, err,
		`unknown deploy mode "everything" (expected one of changed, working, staged, all)`)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Changes Only", ModeChanged.DisplayName())
	assert.Equal(t, "Working Changes", ModeWorking.DisplayName())
	assert.Equal(t, "Staged Changes", ModeStaged.DisplayName())
	assert.Equal(t, "All", ModeAll.DisplayName())
}

func TestFriendlyErrors(t *testing.T) {
	msg, ok := errors.GetFriendlyMessage(errors.WithContext(
		NotConfiguredError{LocalRoot: "/ws"}, "deploy"))
	assert.True(t, ok)
	assert.Contains(t, msg, "kdeploy set-location")

	msg, ok = errors.GetFriendlyMessage(UnsupportedTargetError{RemotePath: "MYLIB"})
	assert.True(t, ok)
	assert.Contains(t, msg, `"MYLIB"`)
}

func TestResultString(t *testing.T) {
	target := Target{LocalRoot: "/ws", RemotePath: "/home/dev"}
	assert.Equal(t, "Deployed 3 files to /home/dev.",
		Result{Target: target, Succeeded: true, Attempted: 3}.String())
	assert.Equal(t, "Failed to deploy 1 of 3 files to /home/dev.",
		Result{Target: target, Attempted: 3, Failed: []TransferOutcome{{}}}.String())
}
