// Package vcs reports which files in a workspace have changed according to
// version control.
package vcs

//go:generate mockery -name Provider

import (
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing/format/index"

	"github.com/sidkik/kdeploy/pkg/errors"
)

// ErrNoRepository is returned when the workspace root isn't the root of a
// repository.
var ErrNoRepository = errors.New("no repository found")

// Change is a file that differs from the last commit.
type Change struct {
	// Path is the absolute path to the file in the workspace.
	Path string

	// ContentRef identifies the content being deployed. For staged changes
	// it's the blob hash recorded in the index. It's empty for working tree
	// changes since the content is whatever is on disk.
	ContentRef string

	// Deleted is true if the change removes the file.
	Deleted bool
}

// Provider lists changed files for a workspace root.
type Provider interface {
	// Changes returns the staged changes if `staged` is true, and the
	// working tree changes otherwise. It returns ErrNoRepository if there's
	// no repository rooted at `root`.
	Changes(root string, staged bool) ([]Change, error)
}

// Git is a Provider backed by go-git.
type Git struct{}

// NewGit returns a go-git backed Provider.
func NewGit() Provider {
	return Git{}
}

// Mocked for unit testing.
var plainOpen = git.PlainOpen

// Changes implements Provider.
func (Git) Changes(root string, staged bool) ([]Change, error) {
	repo, err := plainOpen(root)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return nil, ErrNoRepository
		}
		return nil, errors.WithContext(err, "open repository")
	}

	worktree, err := repo.Worktree()
	if err != nil {
		if err == git.ErrIsBareRepository {
			return nil, ErrNoRepository
		}
		return nil, errors.WithContext(err, "get worktree")
	}

	status, err := worktree.Status()
	if err != nil {
		return nil, errors.WithContext(err, "get status")
	}

	var idx *index.Index
	if staged {
		idx, err = repo.Storer.Index()
		if err != nil {
			return nil, errors.WithContext(err, "read index")
		}
	}

	var changes []Change
	for path, fileStatus := range status {
		code := fileStatus.Worktree
		if staged {
			code = fileStatus.Staging
		}

		if !isChanged(code, staged) {
			continue
		}

		change := Change{
			Path:    filepath.Join(root, filepath.FromSlash(path)),
			Deleted: code == git.Deleted,
		}
		if staged && !change.Deleted {
			entry, err := idx.Entry(path)
			if err != nil {
				log.WithError(err).WithField("path", path).Debug(
					"Staged file missing from index")
			} else {
				change.ContentRef = entry.Hash.String()
			}
		}
		changes = append(changes, change)
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
	return changes, nil
}

// isChanged returns whether the status code represents a change. Untracked
// files count as working tree changes, but not as staged changes.
func isChanged(code git.StatusCode, staged bool) bool {
	switch code {
	case git.Unmodified:
		return false
	case git.Untracked:
		return !staged
	default:
		return true
	}
}
