package remote

import (
	"context"
	"regexp"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"
)

// DefaultFindCommand is the find(1) used when the user doesn't configure one.
const DefaultFindCommand = "find"

// minFindVersion is the oldest GNU findutils whose `-printf` supports the
// `%T+` directive.
var minFindVersion = version.Must(version.NewVersion("4.2.0"))

var versionPattern = regexp.MustCompile(`[0-9]+(\.[0-9]+)+`)

type commandRunner interface {
	RunCommand(ctx context.Context, command string) (CommandResult, error)
}

// detectFeatures probes the remote host for optional capabilities. Failures
// are logged and treated as the capability being absent.
func detectFeatures(ctx context.Context, runner commandRunner, findCommand string) Features {
	if findCommand == "" {
		findCommand = DefaultFindCommand
	}

	logger := log.WithField("find", findCommand)
	res, err := runner.RunCommand(ctx, shellescape.Quote(findCommand)+" --version")
	if err != nil {
		logger.WithError(err).Debug("Failed to check remote find version")
		return Features{}
	}

	if res.ExitCode != 0 {
		logger.WithField("stderr", res.Stderr).Debug("Remote find is unavailable")
		return Features{}
	}

	findVersion, ok := parseFindVersion(res.Stdout)
	if !ok {
		logger.WithField("output", res.Stdout).Debug(
			"Remote find isn't GNU findutils, so it can't list modification times")
		return Features{}
	}

	if findVersion.LessThan(minFindVersion) {
		logger.WithField("version", findVersion).Debug("Remote find is too old")
		return Features{}
	}

	return Features{FindCommand: findCommand, FindVersion: findVersion}
}

// parseFindVersion extracts the version from the output of `find --version`.
// Only GNU findutils is recognized since BSD find lacks `-printf`.
func parseFindVersion(output string) (*version.Version, bool) {
	firstLine := strings.SplitN(strings.TrimSpace(output), "\n", 2)[0]
	if !strings.Contains(firstLine, "GNU findutils") {
		return nil, false
	}

	raw := versionPattern.FindString(firstLine)
	if raw == "" {
		return nil, false
	}

	v, err := version.NewVersion(raw)
	if err != nil {
		return nil, false
	}
	return v, true
}
