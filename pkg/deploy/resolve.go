package deploy

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/kdeploy/pkg/errors"
	"github.com/sidkik/kdeploy/pkg/ignore"
	"github.com/sidkik/kdeploy/pkg/vcs"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Resolver decides which files a deployment copies.
type Resolver struct {
	VCS vcs.Provider

	// Scanner lists the remote files for ModeChanged. It's nil if the remote
	// host can't list its files.
	Scanner *Scanner
}

// Resolution is the set of files to deploy.
type Resolution struct {
	Records []ChangeRecord

	// Snapshot contains the stats of every file seen during a ModeChanged
	// resolution. It should only be persisted once every record has been
	// copied.
	Snapshot Snapshot

	// LocalTimes maps the relative path of every candidate file in a
	// ModeChanged resolution to its local modification time when it was
	// resolved.
	LocalTimes LocalTimes

	Warnings []Warning
}

// LocalTimes maps relative paths to local modification times in Unix
// milliseconds. A nil time means the file couldn't be stat'd.
type LocalTimes map[string]*int64

func (times LocalTimes) lookup(rel, _ string) (*int64, bool) {
	mtime, ok := times[rel]
	return mtime, ok
}

// Resolve returns the files that should be copied to target.
func (r Resolver) Resolve(ctx context.Context, mode Mode, target Target,
	filter *ignore.Filter, previous Snapshot) (Resolution, error) {

	switch mode {
	case ModeStaged:
		return r.resolveVCS(target, true)
	case ModeWorking:
		return r.resolveVCS(target, false)
	case ModeAll:
		return r.resolveAll(target, filter)
	case ModeChanged:
		return r.resolveChanged(ctx, target, filter, previous)
	}
	return Resolution{}, fmt.Errorf("unknown deploy mode %q", mode)
}

func (r Resolver) resolveVCS(target Target, staged bool) (Resolution, error) {
	if r.VCS == nil {
		return Resolution{}, ErrNoRepository
	}

	changes, err := r.VCS.Changes(target.LocalRoot, staged)
	if err != nil {
		if errors.RootCause(err) == vcs.ErrNoRepository {
			return Resolution{}, ErrNoRepository
		}
		return Resolution{}, errors.WithContext(err, "get git changes")
	}

	var res Resolution
	for _, change := range changes {
		logger := log.WithField("path", change.Path)
		if change.Deleted {
			logger.Debug("Skipping deleted file")
			continue
		}

		rel, err := filepath.Rel(target.LocalRoot, change.Path)
		if err != nil || escapesRoot(rel) {
			logger.Debug("Skipping change outside of workspace")
			continue
		}
		res.Records = append(res.Records, record(target, change.Path, rel))
	}

	if len(res.Records) == 0 {
		kind := "working"
		if staged {
			kind = "staged"
		}
		res.Warnings = append(res.Warnings, Warning{
			Kind:    WarningNoChanges,
			Message: fmt.Sprintf("There are no %s changes to deploy.", kind),
		})
	}
	return res, nil
}

func (r Resolver) resolveAll(target Target, filter *ignore.Filter) (Resolution, error) {
	files, err := walkFiles(target.LocalRoot, filter)
	if err != nil {
		return Resolution{}, err
	}

	var res Resolution
	for _, f := range files {
		rel, _ := filepath.Rel(target.LocalRoot, f)
		res.Records = append(res.Records, record(target, f, rel))
	}
	return res, nil
}

func (r Resolver) resolveChanged(ctx context.Context, target Target,
	filter *ignore.Filter, previous Snapshot) (Resolution, error) {

	if r.Scanner == nil {
		return Resolution{}, ErrUnsupportedMode
	}

	files, err := walkFiles(target.LocalRoot, filter)
	if err != nil {
		return Resolution{}, err
	}

	// The local times are taken before anything is copied so that edits made
	// during the transfer are detected by the next deployment.
	localTimes := LocalTimes{}
	for _, f := range files {
		rel, _ := filepath.Rel(target.LocalRoot, f)
		localTimes[filepath.ToSlash(rel)] = localTimestamp(f)
	}

	listing, err := r.Scanner.List(ctx, target.RemotePath)
	if err != nil || len(listing) == 0 {
		// Without the remote times, it's impossible to tell what changed. It's
		// safer to deploy nothing than everything.
		msg := "The remote directory is empty or couldn't be listed, so no files were treated as changed."
		if err != nil {
			log.WithError(err).WithField("remote", target.RemotePath).Warn("Failed to list remote files")
			msg = fmt.Sprintf("Failed to list the remote files (%s), so no files were treated as changed.", err)
		}
		return Resolution{
			Snapshot:   Snapshot{},
			LocalTimes: localTimes,
			Warnings:   []Warning{{Kind: WarningRemoteListingFailed, Message: msg}},
		}, nil
	}

	current := correlate(target.LocalRoot, files, listing, filter, localTimes.lookup)
	res := Resolution{Snapshot: current, LocalTimes: localTimes}
	for _, f := range files {
		rel, _ := filepath.Rel(target.LocalRoot, f)
		rel = filepath.ToSlash(rel)
		if isChanged(rel, current, previous) {
			res.Records = append(res.Records, record(target, f, rel))
		}
	}
	return res, nil
}

// Snapshot lists the remote files again and pairs their times with the local
// times from localTimes. Files that aren't in localTimes are left out, so
// they're treated as changed by the next deployment.
func (r Resolver) Snapshot(ctx context.Context, target Target, filter *ignore.Filter,
	localTimes LocalTimes) (Snapshot, error) {

	if r.Scanner == nil {
		return nil, ErrUnsupportedMode
	}

	files, err := walkFiles(target.LocalRoot, filter)
	if err != nil {
		return nil, err
	}

	listing, err := r.Scanner.List(ctx, target.RemotePath)
	if err != nil {
		return nil, errors.WithContext(err, "list remote files")
	}
	return correlate(target.LocalRoot, files, listing, filter, localTimes.lookup), nil
}

// isChanged returns whether the file at rel differs from when it was last
// deployed. Files that aren't in either snapshot are always changed.
func isChanged(rel string, current, previous Snapshot) bool {
	prev, ok := previous[rel]
	if !ok {
		return true
	}

	curr, ok := current[rel]
	if !ok {
		return true
	}
	return !curr.Equal(prev)
}

// walkFiles returns the absolute paths of every file under root that isn't
// ignored.
func walkFiles(root string, filter *ignore.Filter) ([]string, error) {
	var files []string
	err := afero.Walk(fs, root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return errors.WithContext(err, "get relative path")
		}

		if fi.IsDir() {
			if filter != nil && filter.IgnoresDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		if filter != nil && filter.Ignores(rel) {
			return nil
		}

		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, errors.WithContext(err, "walk workspace")
	}

	sort.Strings(files)
	return files, nil
}

func record(target Target, localPath, rel string) ChangeRecord {
	return ChangeRecord{
		LocalPath:  localPath,
		RemotePath: path.Join(target.RemotePath, filepath.ToSlash(rel)),
	}
}

func escapesRoot(rel string) bool {
	rel = filepath.ToSlash(rel)
	return rel == ".." || strings.HasPrefix(rel, "../")
}
