package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"al.essio.dev/pkg/shellescape"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/kdeploy/pkg/errors"
	"github.com/sidkik/kdeploy/pkg/ignore"
	"github.com/sidkik/kdeploy/pkg/remote"
)

type commandRunner interface {
	RunCommand(ctx context.Context, command string) (remote.CommandResult, error)
}

// Scanner lists the modification times of the files in the remote directory,
// and matches them with local files.
type Scanner struct {
	runner      commandRunner
	findCommand string
}

// NewScanner returns a Scanner that lists files with the given find(1). The
// find must support `-printf`.
func NewScanner(runner commandRunner, findCommand string) Scanner {
	if findCommand == "" {
		findCommand = remote.DefaultFindCommand
	}
	return Scanner{runner: runner, findCommand: findCommand}
}

// ListCommand returns the command that prints every regular file under
// remotePath as `<modification time> ./<relative path>`.
func (s Scanner) ListCommand(remotePath string) string {
	return fmt.Sprintf(`cd %s && %s . -type f -printf '%%T+ %%p\n'`,
		shellescape.Quote(remotePath), shellescape.Quote(s.findCommand))
}

// List returns the modification times of the files under remotePath, keyed
// by their path relative to remotePath.
func (s Scanner) List(ctx context.Context, remotePath string) (map[string]string, error) {
	res, err := s.runner.RunCommand(ctx, s.ListCommand(remotePath))
	if err != nil {
		return nil, errors.WithContext(err, "run find")
	}

	if res.ExitCode != 0 {
		return nil, fmt.Errorf("find exited with status %d: %s",
			res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseListing(res.Stdout), nil
}

// ParseListing parses the output of the list command. Lines that don't
// contain both a timestamp and a path are skipped.
func ParseListing(output string) map[string]string {
	listing := map[string]string{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")

		// Paths may contain spaces, but the timestamp can't.
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}

		path := strings.TrimPrefix(parts[1], "./")
		if path == "" || path == "." {
			continue
		}
		listing[path] = parts[0]
	}
	return listing
}

// Correlate builds a Snapshot from the remote listing and the local files
// that they correspond to. localFiles are absolute paths.
//
// Remote paths are first matched to the local file with the same path
// relative to root. Remaining remote paths are matched to a local file whose
// path ends with the remote path, as long as the match starts at a directory
// boundary. Remote paths without a local file are dropped, as are files that
// escape root or are ignored by the filter.
func Correlate(root string, localFiles []string, listing map[string]string,
	filter *ignore.Filter) Snapshot {

	return correlate(root, localFiles, listing, filter, func(_, path string) (*int64, bool) {
		return localTimestamp(path), true
	})
}

// localTimeFunc returns the local modification time of the file at path, and
// false if the file shouldn't be part of the snapshot.
type localTimeFunc func(rel, path string) (*int64, bool)

func correlate(root string, localFiles []string, listing map[string]string,
	filter *ignore.Filter, localTime localTimeFunc) Snapshot {

	locals := map[string]string{}
	for _, f := range localFiles {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			log.WithError(err).WithField("path", f).Debug("Skipping file outside of workspace")
			continue
		}
		locals[filepath.ToSlash(rel)] = f
	}

	var remotePaths []string
	for p := range listing {
		remotePaths = append(remotePaths, p)
	}
	sort.Strings(remotePaths)

	matches := map[string]string{}
	var unmatched []string
	for _, p := range remotePaths {
		if _, ok := locals[p]; ok {
			matches[p] = p
		} else {
			unmatched = append(unmatched, p)
		}
	}

	for _, p := range unmatched {
		if rel, ok := suffixMatch(p, locals, matches); ok {
			matches[rel] = p
		}
	}

	snapshot := Snapshot{}
	for rel, remotePath := range matches {
		if rel == ".." || strings.HasPrefix(rel, "../") {
			continue
		}

		if filter != nil && filter.Ignores(rel) {
			continue
		}

		mtime, ok := localTime(rel, locals[rel])
		if !ok {
			continue
		}

		snapshot.Add(FileStat{
			Path:            rel,
			LocalTimestamp:  mtime,
			RemoteTimestamp: listing[remotePath],
		})
	}
	return snapshot
}

// suffixMatch finds the unclaimed local file whose path ends with remotePath.
// If several match, the shortest path wins.
func suffixMatch(remotePath string, locals, claimed map[string]string) (string, bool) {
	var best string
	for rel := range locals {
		if _, ok := claimed[rel]; ok {
			continue
		}

		if !strings.HasSuffix(rel, "/"+remotePath) {
			continue
		}

		if best == "" || len(rel) < len(best) || (len(rel) == len(best) && rel < best) {
			best = rel
		}
	}
	return best, best != ""
}

func localTimestamp(path string) *int64 {
	fi, err := fs.Stat(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("Failed to stat local file")
		return nil
	}

	ms := fi.ModTime().UnixMilli()
	return &ms
}
