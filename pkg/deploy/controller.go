package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/kdeploy/pkg/errors"
	"github.com/sidkik/kdeploy/pkg/ignore"
	"github.com/sidkik/kdeploy/pkg/remote"
	"github.com/sidkik/kdeploy/pkg/vcs"
)

// Controller runs deployments.
type Controller struct {
	State  *StateStore
	Remote remote.Client
	VCS    vcs.Provider

	// Concurrency is the maximum number of files copied at once.
	Concurrency int

	// IgnorePatterns are applied in addition to the workspace's ignore file.
	IgnorePatterns []string

	Clock clockwork.Clock
	Log   logrus.FieldLogger

	events broadcaster

	lock       sync.Mutex
	inProgress map[string]struct{}
}

// NewController returns a Controller that deploys to the host connected to by
// client.
func NewController(state *StateStore, client remote.Client, provider vcs.Provider) *Controller {
	return &Controller{
		State:       state,
		Remote:      client,
		VCS:         provider,
		Concurrency: DefaultConcurrency,
		Clock:       clockwork.NewRealClock(),
		Log:         logrus.StandardLogger(),
	}
}

// Subscribe registers l to receive the events of every deployment run by the
// controller. The returned function unregisters it.
func (c *Controller) Subscribe(l Listener) (unsubscribe func()) {
	return c.events.subscribe(l)
}

// AvailableModes returns the modes supported by the remote host.
func (c *Controller) AvailableModes() []Mode {
	return AvailableModes(c.Remote.Features())
}

// Deploy copies the files selected by mode from the workspace at localRoot to
// its deploy location.
//
// An error is returned if the deployment couldn't start, in which case
// nothing was copied. Otherwise, the outcome is described by the Result, even
// if the deployment failed.
func (c *Controller) Deploy(ctx context.Context, localRoot string, mode Mode) (Result, error) {
	localRoot = filepath.Clean(localRoot)
	if !c.acquire(localRoot) {
		return Result{}, ErrDeploymentInProgress
	}
	defer c.release(localRoot)

	target, err := c.target(localRoot)
	if err != nil {
		return Result{}, err
	}

	if mode == ModeChanged && !c.Remote.Features().SupportsListing() {
		return Result{}, ErrUnsupportedMode
	}

	start := c.Clock.Now()
	logger := c.Log.WithFields(logrus.Fields{
		"workspace": target.LocalRoot,
		"remote":    target.RemotePath,
		"mode":      mode,
	})
	c.events.emit(Event{Kind: EventStarted, Mode: mode, Target: target})

	result := Result{Mode: mode, Target: target}
	fail := func(err error) Result {
		logger.WithError(err).Error("Deployment failed")
		result.Log = append(result.Log, err.Error(), "Deployment failed.")
		result.Duration = c.Clock.Since(start)
		c.events.emit(Event{Kind: EventFailed, Mode: mode, Target: target, Result: &result, Err: err})
		return result
	}

	filter, err := ignore.Load(localRoot, c.IgnorePatterns)
	if err != nil {
		return fail(errors.WithContext(err, "load ignore rules")), nil
	}

	var previous Snapshot
	if mode == ModeChanged {
		previous, _, err = c.State.Snapshot(localRoot)
		if err != nil {
			return fail(err), nil
		}
	}

	resolver := c.resolver()
	resolution, err := resolver.Resolve(ctx, mode, target, filter, previous)
	if err != nil {
		if errors.RootCause(err) == ErrNoRepository {
			c.events.emit(Event{Kind: EventFailed, Mode: mode, Target: target, Err: err})
			return Result{}, err
		}
		return fail(errors.WithContext(err, "resolve files")), nil
	}

	result.Warnings = resolution.Warnings
	for _, w := range resolution.Warnings {
		logger.WithField("kind", w.Kind).Warn(w.Message)
	}

	if len(resolution.Records) == 0 {
		result.Succeeded = true
		result.NothingToDeploy = true
		result.Log = append(result.Log, "Nothing to deploy.")
		result.Duration = c.Clock.Since(start)
		c.events.emit(Event{Kind: EventFinished, Mode: mode, Target: target, Result: &result})
		return result, nil
	}

	total := len(resolution.Records)
	completed := 0
	transferred := Transfer(ctx, c.Remote, resolution.Records, c.Concurrency,
		func(r ChangeRecord, err error) {
			completed++
			outcome := TransferOutcome{LocalPath: r.LocalPath, RemotePath: r.RemotePath, Succeeded: err == nil}
			if err != nil {
				outcome.Error = err.Error()
				logger.WithError(err).WithField("path", r.LocalPath).Debug("Failed to copy file")
			}
			c.events.emit(Event{
				Kind:      EventProgress,
				Mode:      mode,
				Target:    target,
				Total:     total,
				Completed: completed,
				Outcome:   &outcome,
			})
		})

	result.Succeeded = transferred.Succeeded
	result.Attempted = transferred.Attempted
	result.Failed = transferred.Failed
	result.Log = append(result.Log, transferred.Log...)

	if result.Succeeded && mode == ModeChanged {
		c.saveSnapshot(ctx, logger, resolver, target, filter, resolution)
	}

	result.Duration = c.Clock.Since(start)
	if !result.Succeeded {
		result.Log = append(result.Log, "Deployment failed.")
		logger.WithField("failed", len(result.Failed)).Errorf(
			"Failed to copy %d of %d files", len(result.Failed), result.Attempted)
		c.events.emit(Event{Kind: EventFailed, Mode: mode, Target: target, Total: total, Result: &result})
		return result, nil
	}

	result.Log = append(result.Log, "Deployment finished.")
	logger.WithField("duration", result.Duration).Infof("Copied %d files", result.Attempted)
	c.events.emit(Event{Kind: EventFinished, Mode: mode, Target: target, Total: total, Result: &result})
	return result, nil
}

// saveSnapshot persists the stats of the workspace after a successful
// deployment. The remote is listed again so that the snapshot contains the
// remote times of the files that were just copied. The local times are the
// ones from before the copy.
func (c *Controller) saveSnapshot(ctx context.Context, logger logrus.FieldLogger,
	resolver Resolver, target Target, filter *ignore.Filter, resolution Resolution) {

	snapshot, err := resolver.Snapshot(ctx, target, filter, resolution.LocalTimes)
	if err != nil {
		logger.WithError(err).Warn("Failed to refresh remote file times. " +
			"The next deployment may copy files that are already up to date.")
		snapshot = resolution.Snapshot
	}

	if err := c.State.SetSnapshot(target.LocalRoot, snapshot); err != nil {
		logger.WithError(err).Warn("Failed to save deployment snapshot. " +
			"The next deployment may copy files that are already up to date.")
	}
}

func (c *Controller) target(localRoot string) (Target, error) {
	target, ok, err := c.State.Target(localRoot)
	if err != nil {
		return Target{}, err
	}

	if !ok {
		return Target{}, NotConfiguredError{LocalRoot: localRoot}
	}

	if !IsSupportedRemotePath(target.RemotePath) {
		return Target{}, UnsupportedTargetError{RemotePath: target.RemotePath}
	}
	return target, nil
}

func (c *Controller) resolver() Resolver {
	resolver := Resolver{VCS: c.VCS}
	if features := c.Remote.Features(); features.SupportsListing() {
		scanner := NewScanner(c.Remote, features.FindCommand)
		resolver.Scanner = &scanner
	}
	return resolver
}

func (c *Controller) acquire(localRoot string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.inProgress == nil {
		c.inProgress = map[string]struct{}{}
	}

	if _, ok := c.inProgress[localRoot]; ok {
		return false
	}
	c.inProgress[localRoot] = struct{}{}
	return true
}

func (c *Controller) release(localRoot string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.inProgress, localRoot)
}

// String describes the deployment for the user.
func (res Result) String() string {
	switch {
	case res.NothingToDeploy:
		return "Nothing to deploy."
	case res.Succeeded:
		return fmt.Sprintf("Deployed %d files to %s.", res.Attempted, res.Target.RemotePath)
	case res.Attempted > 0:
		return fmt.Sprintf("Failed to deploy %d of %d files to %s.",
			len(res.Failed), res.Attempted, res.Target.RemotePath)
	}
	return "Deployment failed."
}
