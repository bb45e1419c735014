package config

import (
	"path/filepath"

	env "github.com/caarlos0/env/v11"
	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/kdeploy/pkg/errors"
)

const (
	// UserConfigPath is the default path to the kdeploy user config.
	UserConfigPath = "~/.kdeploy.yaml"

	// DefaultStateDir is where deploy locations and snapshots are stored if
	// the user doesn't configure a directory.
	DefaultStateDir = "~/.kdeploy"

	// DefaultKnownHostsFile is used to verify the remote host key if the user
	// doesn't configure a file.
	DefaultKnownHostsFile = "~/.ssh/known_hosts"

	// InitialUserConfigVersion is the first version of the kdeploy user
	// config. Config files that do not specify a version will default to
	// this version.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the supported version of the kdeploy
	// user config of the current binary.
	SupportedUserConfigVersion = "v1alpha1"
)

// User contains the settings for connecting to the deployment host.
type User struct {
	Version string `json:"version,omitempty"`

	Host string `json:"host" env:"HOST"`
	Port int    `json:"port,omitempty" env:"PORT"`
	User string `json:"user" env:"USER"`

	IdentityFile          string `json:"identityFile,omitempty" env:"IDENTITY_FILE"`
	KnownHostsFile        string `json:"knownHostsFile,omitempty"`
	InsecureIgnoreHostKey bool   `json:"insecureIgnoreHostKey,omitempty"`

	// FindCommand is the find(1) on the remote host. It must be GNU find to
	// support `changed` deployments.
	FindCommand string `json:"findCommand,omitempty" env:"FIND_COMMAND"`

	// Concurrency is the number of files uploaded at once.
	Concurrency int `json:"concurrency,omitempty" env:"CONCURRENCY"`

	// StateDir is where deploy locations and snapshots are stored.
	StateDir string `json:"stateDir,omitempty"`

	// Password is only read from the environment so that it's never written
	// to disk.
	Password string `json:"-" env:"PASSWORD"`
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// envOptions configures the environment variables that override the config
// file. Tests set Environment to avoid depending on the real environment.
var envOptions = env.Options{Prefix: "KDEPLOY_"}

// ParseUser attempts to parse the User stored in the default path, and
// applies any overrides from the environment.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config := User{Version: InitialUserConfigVersion}
	if err := readUserFile(path, &config); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return User{}, errors.NewFriendlyError("The kdeploy user config "+
				"file doesn't exist at %q. Please run `kdeploy config` to "+
				"create the user config file.", path)
		}
		return User{}, errors.WithContext(err, "parse")
	}

	if err := env.ParseWithOptions(&config, envOptions); err != nil {
		return User{}, errors.WithContext(err, "parse environment")
	}

	for _, p := range []*string{&config.IdentityFile, &config.KnownHostsFile, &config.StateDir} {
		if err := expandPath(filepath.Dir(path), p); err != nil {
			return User{}, err
		}
	}
	return config, nil
}

// expandPath expands `~` in the path, and evaluates relative paths relative
// to dir.
func expandPath(dir string, path *string) error {
	if *path == "" {
		return nil
	}

	expanded, err := homedirExpand(*path)
	if err != nil {
		return errors.WithContext(err, "expand path")
	}

	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(dir, expanded)
	}
	*path = expanded
	return nil
}

// WriteUser writes the given user config to disk.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetUserConfigPath returns the path to the user's global kdeploy
// configuration. This path is expanded, so it can be directly passed to file
// operations.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}

// GetStateDir returns the expanded directory for deployment state.
func (u User) GetStateDir() (string, error) {
	dir := u.StateDir
	if dir == "" {
		dir = DefaultStateDir
	}
	return homedirExpand(dir)
}

// GetKnownHostsFile returns the expanded path to the known hosts file.
func (u User) GetKnownHostsFile() (string, error) {
	path := u.KnownHostsFile
	if path == "" {
		path = DefaultKnownHostsFile
	}
	return homedirExpand(path)
}
