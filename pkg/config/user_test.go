package config

import (
	"fmt"
	"strings"
	"testing"

	env "github.com/caarlos0/env/v11"
	"github.com/ghodss/yaml"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/kdeploy/pkg/errors"
)

const testConfigPath = "/home/dev/.kdeploy.yaml"

func mockUserConfig(t *testing.T, environment map[string]string) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) {
		if path == UserConfigPath {
			return testConfigPath, nil
		}
		return strings.Replace(path, "~", "/home/dev", 1), nil
	}
	envOptions = env.Options{Prefix: "KDEPLOY_", Environment: environment}
}

func TestParseUser(t *testing.T) {
	out := testConfigPath
	userEmptyVersion := User{
		Host: "ibmi.example.com",
		User: "dev",
	}
	userInitialVersion := User{
		Version: InitialUserConfigVersion,
		Host:    "ibmi.example.com",
		User:    "dev",
	}
	userCorrectVersion := User{
		Version: SupportedUserConfigVersion,
		Host:    "ibmi.example.com",
		User:    "dev",
	}
	userIncorrectVersion := User{
		Version: "incorrect_version",
		Host:    "ibmi.example.com",
		User:    "dev",
	}
	userEmptyVersionString, err := yaml.Marshal(userEmptyVersion)
	assert.NoError(t, err)
	userCorrectVersionString, err := yaml.Marshal(userCorrectVersion)
	assert.NoError(t, err)
	userIncorrectVersionString, err := yaml.Marshal(userIncorrectVersion)
	assert.NoError(t, err)

	tests := []struct {
		name      string
		input     []byte
		expConfig User
		expError  error
	}{
		{
			name:      "Empty version",
			input:     userEmptyVersionString,
			expConfig: userInitialVersion,
		},
		{
			name:      "Correct version",
			input:     userCorrectVersionString,
			expConfig: userCorrectVersion,
		},
		{
			name:  "Incorrect version",
			input: userIncorrectVersionString,
			expError: errors.WithContext(incompatibleVersionError{
				path:   out,
				exp:    SupportedUserConfigVersion,
				actual: userIncorrectVersion.Version,
			}, "parse"),
		},
		{
			name: "Extra fields",
			input: []byte(fmt.Sprintf(
				"version: %s\nextra: fields", SupportedUserConfigVersion)),
			expError: errors.WithContext(
				errors.NewFriendlyError(parseConfigErrTemplate, out,
					errors.New("error unmarshaling JSON: while decoding JSON: "+
						`json: unknown field "extra"`)),
				"parse"),
		},
		{
			name: "Password in file",
			input: []byte(fmt.Sprintf(
				"version: %s\npassword: hunter2", SupportedUserConfigVersion)),
			expError: errors.WithContext(envOnlySettingError{
				path:   out,
				key:    "password",
				envVar: "KDEPLOY_PASSWORD",
			}, "parse"),
		},
		{
			name: "Incorrect version and extra fields",
			input: []byte(`
version: incorrect_version
extra: fields
`),
			expError: errors.WithContext(incompatibleVersionError{
				path:   out,
				exp:    SupportedUserConfigVersion,
				actual: "incorrect_version",
			}, "parse"),
		},
	}

	mockUserConfig(t, map[string]string{})
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			err := afero.WriteFile(fs, out, test.input, 0644)
			assert.NoError(t, err)
			config, err := ParseUser()
			assert.Equal(t, test.expConfig, config)
			assert.Equal(t, test.expError, err)
		})
	}
}

func TestEnvOnlySettingMessage(t *testing.T) {
	msg, ok := errors.GetFriendlyMessage(errors.WithContext(envOnlySettingError{
		path:   testConfigPath,
		key:    "password",
		envVar: "KDEPLOY_PASSWORD",
	}, "parse"))
	assert.True(t, ok)
	assert.Equal(t, `The configuration file "/home/dev/.kdeploy.yaml" sets "password", `+
		"which kdeploy doesn't read from disk.\n"+
		"Please remove it from the file and set KDEPLOY_PASSWORD instead.", msg)
}

func TestParseUserMissing(t *testing.T) {
	mockUserConfig(t, map[string]string{})

	_, err := ParseUser()
	msg, ok := errors.GetFriendlyMessage(err)
	assert.True(t, ok)
	assert.Contains(t, msg, "kdeploy config")
}

func TestParseUserPaths(t *testing.T) {
	mockUserConfig(t, map[string]string{})
	require.NoError(t, afero.WriteFile(fs, testConfigPath, []byte(`
version: v1alpha1
host: ibmi
user: dev
identityFile: ~/.ssh/id_ed25519
knownHostsFile: keys/known_hosts
stateDir: /var/lib/kdeploy
`), 0644))

	config, err := ParseUser()
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/.ssh/id_ed25519", config.IdentityFile)
	assert.Equal(t, "/home/dev/keys/known_hosts", config.KnownHostsFile)
	assert.Equal(t, "/var/lib/kdeploy", config.StateDir)
}

func TestParseUserEnvironment(t *testing.T) {
	mockUserConfig(t, map[string]string{
		"KDEPLOY_HOST":        "override.example.com",
		"KDEPLOY_CONCURRENCY": "8",
		"KDEPLOY_PASSWORD":    "hunter2",
	})
	require.NoError(t, WriteUser(User{Host: "ibmi", User: "dev", Port: 2222}))

	config, err := ParseUser()
	require.NoError(t, err)
	assert.Equal(t, User{
		Version:     SupportedUserConfigVersion,
		Host:        "override.example.com",
		Port:        2222,
		User:        "dev",
		Concurrency: 8,
		Password:    "hunter2",
	}, config)

	envOptions.Environment = map[string]string{"KDEPLOY_PORT": "not-a-number"}
	_, err = ParseUser()
	assert.Error(t, err)
}

func TestParseWrittenUser(t *testing.T) {
	mockUserConfig(t, map[string]string{})

	user := User{
		Host:                  "ibmi",
		Port:                  2222,
		User:                  "dev",
		IdentityFile:          "/home/dev/.ssh/id_rsa",
		InsecureIgnoreHostKey: true,
		FindCommand:           "/QOpenSys/pkgs/bin/find",
		Concurrency:           10,
		Password:              "never written",
	}

	// Write the user to disk, and assert that we get the same user config when
	// we parse it.
	assert.NoError(t, WriteUser(user))

	contents, err := afero.ReadFile(fs, testConfigPath)
	require.NoError(t, err)
	assert.NotContains(t, string(contents), "never written")

	parsed, err := ParseUser()
	assert.NoError(t, err)

	user.Version = SupportedUserConfigVersion
	user.Password = ""
	assert.Equal(t, user, parsed)
}

func TestDefaultPaths(t *testing.T) {
	mockUserConfig(t, map[string]string{})

	dir, err := User{}.GetStateDir()
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/.kdeploy", dir)

	path, err := User{}.GetKnownHostsFile()
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/.ssh/known_hosts", path)

	dir, err = User{StateDir: "/state"}.GetStateDir()
	require.NoError(t, err)
	assert.Equal(t, "/state", dir)
}
