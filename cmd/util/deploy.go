package util

import (
	"context"

	"github.com/sidkik/kdeploy/pkg/config"
	"github.com/sidkik/kdeploy/pkg/deploy"
	"github.com/sidkik/kdeploy/pkg/errors"
	"github.com/sidkik/kdeploy/pkg/remote"
	"github.com/sidkik/kdeploy/pkg/storage"
	"github.com/sidkik/kdeploy/pkg/vcs"
)

// Mocked for unit testing.
var dial = remote.Dial

// OpenState opens the deploy locations and snapshots stored in the user's
// state directory.
func OpenState(cfg config.User) (*deploy.StateStore, error) {
	dir, err := cfg.GetStateDir()
	if err != nil {
		return nil, errors.WithContext(err, "get state directory")
	}
	return deploy.NewStateStore(storage.NewDiskStore(dir)), nil
}

// RemoteConfig converts the user config into the settings for connecting to
// the deployment host.
func RemoteConfig(cfg config.User) (remote.Config, error) {
	knownHosts, err := cfg.GetKnownHostsFile()
	if err != nil {
		return remote.Config{}, errors.WithContext(err, "get known hosts file")
	}

	return remote.Config{
		Host:                  cfg.Host,
		Port:                  cfg.Port,
		User:                  cfg.User,
		Password:              cfg.Password,
		IdentityFile:          cfg.IdentityFile,
		KnownHostsFile:        knownHosts,
		InsecureIgnoreHostKey: cfg.InsecureIgnoreHostKey,
		FindCommand:           cfg.FindCommand,
	}, nil
}

// NewController connects to the deployment host, and returns a controller
// that deploys to it. The caller is responsible for closing the controller's
// Remote.
func NewController(ctx context.Context, cfg config.User) (*deploy.Controller, error) {
	state, err := OpenState(cfg)
	if err != nil {
		return nil, err
	}

	remoteConfig, err := RemoteConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := dial(ctx, remoteConfig)
	if err != nil {
		return nil, errors.WithContext(err, "connect to deployment host")
	}

	controller := deploy.NewController(state, client, vcs.NewGit())
	if cfg.Concurrency > 0 {
		controller.Concurrency = cfg.Concurrency
	}
	return controller, nil
}
