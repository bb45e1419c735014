// Package remote executes commands on, and uploads files to, the deployment
// host.
package remote

//go:generate mockery -name Client

import (
	"context"

	"github.com/hashicorp/go-version"
)

// CommandResult is the outcome of a command that ran to completion on the
// remote host. A non-zero exit code is not an error.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Features are the optional capabilities of the remote host. They're
// detected once when the client connects.
type Features struct {
	// FindCommand is the path to a find(1) that supports `-printf`. It's
	// empty if the host doesn't have one.
	FindCommand string

	// FindVersion is the version of FindCommand, if it could be parsed.
	FindVersion *version.Version
}

// SupportsListing returns whether the host can list file modification times
// in a single command.
func (f Features) SupportsListing() bool {
	return f.FindCommand != ""
}

// Client is the interface for interacting with the deployment host.
type Client interface {
	// RunCommand runs a shell command and returns its output.
	RunCommand(ctx context.Context, command string) (CommandResult, error)

	// Put uploads the local file to remotePath, creating any missing parent
	// directories.
	Put(ctx context.Context, localPath, remotePath string) error

	// Features returns the capabilities detected when the client connected.
	Features() Features

	Close() error
}
