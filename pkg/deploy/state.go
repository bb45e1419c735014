package deploy

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sidkik/kdeploy/pkg/errors"
	"github.com/sidkik/kdeploy/pkg/storage"
)

const (
	targetsKey   = "deployment"
	snapshotsKey = "deploymentStats"
)

// StateStore persists the deploy location and latest Snapshot of each
// workspace.
//
// Updates read, modify, and write a map that's shared by all workspaces. The
// lock only serializes updates within this process, so concurrent updates
// from different processes may overwrite each other.
type StateStore struct {
	store storage.Store
	lock  sync.Mutex
}

// NewStateStore returns a StateStore backed by store.
func NewStateStore(store storage.Store) *StateStore {
	return &StateStore{store: store}
}

// IsSupportedRemotePath returns whether remotePath is an absolute directory
// on the remote host.
func IsSupportedRemotePath(remotePath string) bool {
	return strings.HasPrefix(remotePath, "/")
}

// Target returns the deploy location for the workspace at localRoot.
func (s *StateStore) Target(localRoot string) (Target, bool, error) {
	targets, err := s.targets()
	if err != nil {
		return Target{}, false, err
	}

	localRoot = filepath.Clean(localRoot)
	remotePath, ok := targets[localRoot]
	if !ok {
		return Target{}, false, nil
	}
	return Target{LocalRoot: localRoot, RemotePath: remotePath}, true, nil
}

// SetTarget updates the deploy location for target.LocalRoot.
func (s *StateStore) SetTarget(target Target) error {
	if !IsSupportedRemotePath(target.RemotePath) {
		return UnsupportedTargetError{RemotePath: target.RemotePath}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	targets, err := s.targets()
	if err != nil {
		return err
	}

	targets[filepath.Clean(target.LocalRoot)] = target.RemotePath
	if err := s.store.Set(targetsKey, targets); err != nil {
		return errors.WithContext(err, "write deploy locations")
	}
	return nil
}

// Targets returns every configured deploy location, sorted by workspace.
func (s *StateStore) Targets() ([]Target, error) {
	targets, err := s.targets()
	if err != nil {
		return nil, err
	}

	var res []Target
	for localRoot, remotePath := range targets {
		res = append(res, Target{LocalRoot: localRoot, RemotePath: remotePath})
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].LocalRoot < res[j].LocalRoot
	})
	return res, nil
}

func (s *StateStore) targets() (map[string]string, error) {
	targets := map[string]string{}
	if _, err := s.store.Get(targetsKey, &targets); err != nil {
		return nil, errors.WithContext(err, "read deploy locations")
	}

	if targets == nil {
		targets = map[string]string{}
	}
	return targets, nil
}

// Snapshot returns the Snapshot from the last successful `changed`
// deployment of the workspace.
func (s *StateStore) Snapshot(localRoot string) (Snapshot, bool, error) {
	snapshots, err := s.snapshots()
	if err != nil {
		return nil, false, err
	}

	snapshot, ok := snapshots[filepath.Clean(localRoot)]
	return snapshot, ok, nil
}

// SetSnapshot replaces the Snapshot for the workspace.
func (s *StateStore) SetSnapshot(localRoot string, snapshot Snapshot) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	snapshots, err := s.snapshots()
	if err != nil {
		return err
	}

	snapshots[filepath.Clean(localRoot)] = snapshot
	if err := s.store.Set(snapshotsKey, snapshots); err != nil {
		return errors.WithContext(err, "write snapshots")
	}
	return nil
}

func (s *StateStore) snapshots() (map[string]Snapshot, error) {
	snapshots := map[string]Snapshot{}
	if _, err := s.store.Get(snapshotsKey, &snapshots); err != nil {
		return nil, errors.WithContext(err, "read snapshots")
	}

	if snapshots == nil {
		snapshots = map[string]Snapshot{}
	}
	return snapshots, nil
}
