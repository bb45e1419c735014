package deploy

import (
	"fmt"

	"github.com/sidkik/kdeploy/pkg/errors"
	"github.com/sidkik/kdeploy/pkg/vcs"
)

var (
	// ErrNoRepository is returned by the git modes when the workspace isn't in
	// a git repository.
	ErrNoRepository = vcs.ErrNoRepository

	// ErrUnsupportedMode is returned when the remote host can't support the
	// requested mode.
	ErrUnsupportedMode = errors.New("mode isn't supported by the remote host")

	// ErrDeploymentInProgress is returned when the workspace is already being
	// deployed.
	ErrDeploymentInProgress = errors.New("a deployment is already in progress")
)

// NotConfiguredError is returned when a workspace doesn't have a deploy
// location.
type NotConfiguredError struct {
	LocalRoot string
}

func (err NotConfiguredError) Error() string {
	return fmt.Sprintf("no deploy location set for %s", err.LocalRoot)
}

// FriendlyMessage tells the user how to configure the workspace.
func (err NotConfiguredError) FriendlyMessage() string {
	return fmt.Sprintf("No deploy location is set for %s.\n"+
		"Set one with `kdeploy set-location <remote directory>`.", err.LocalRoot)
}

// UnsupportedTargetError is returned for deploy locations that aren't
// absolute remote directories.
type UnsupportedTargetError struct {
	RemotePath string
}

func (err UnsupportedTargetError) Error() string {
	return fmt.Sprintf("unsupported deploy location %q", err.RemotePath)
}

// FriendlyMessage explains what deploy locations are supported.
func (err UnsupportedTargetError) FriendlyMessage() string {
	return fmt.Sprintf("The deploy location %q isn't supported.\n"+
		"Deploy locations must be absolute directories on the remote host, "+
		"such as /home/dev/project.", err.RemotePath)
}
