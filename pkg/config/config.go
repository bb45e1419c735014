// Package config reads and writes the kdeploy user config.
package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/kdeploy/pkg/errors"
)

// parseConfigErrTemplate is the message shown when the config file can't be
// parsed. The yaml library's errors lose the location of the problem, so the
// best we can do is pass its message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// envOnlySettings are the settings that are never stored in the config file,
// keyed by their name in the file.
var envOnlySettings = []struct {
	key, envVar string
}{
	{"password", "KDEPLOY_PASSWORD"},
}

type incompatibleVersionError struct {
	path, exp, actual string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The configuration file %q is incompatible "+
		"with this version of kdeploy.\n"+
		"Expected version %q, but got %q.", err.path, err.exp, err.actual)
}

// envOnlySettingError is returned when the config file contains a setting
// that may only be set from the environment.
type envOnlySettingError struct {
	path, key, envVar string
}

func (err envOnlySettingError) Error() string {
	return err.FriendlyMessage()
}

func (err envOnlySettingError) FriendlyMessage() string {
	return fmt.Sprintf("The configuration file %q sets %q, which kdeploy "+
		"doesn't read from disk.\n"+
		"Please remove it from the file and set %s instead.", err.path, err.key, err.envVar)
}

// readUserFile reads the user config at path into cfg. Fields that are
// missing from the file keep the values already in cfg.
func readUserFile(path string, cfg *User) error {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileNotFound{Path: path}
		}
		return errors.WithContext(err, "read file")
	}

	var fields map[string]interface{}
	if err := yaml.Unmarshal(contents, &fields); err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	// Files from other versions may have fields that this version doesn't
	// know about, so the version is checked before the strict parse.
	if cfg.Version != SupportedUserConfigVersion {
		return incompatibleVersionError{path, SupportedUserConfigVersion, cfg.Version}
	}

	for _, setting := range envOnlySettings {
		if _, ok := fields[setting.key]; ok {
			return envOnlySettingError{path, setting.key, setting.envVar}
		}
	}

	if err := yaml.UnmarshalStrict(contents, cfg, yaml.DisallowUnknownFields); err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}
	return nil
}
