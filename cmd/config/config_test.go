package config

import (
	"bufio"
	"bytes"
	"os"
	"os/user"
	"strings"
	"testing"
	"time"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/kdeploy/pkg/config"
	"github.com/sidkik/kdeploy/pkg/errors"
)

func TestPromptUser(t *testing.T) {
	tests := []struct {
		name                                                 string
		helpString, prompt, defaultAnswer, currAnswer, stdin string
		expPrompt, expResult                                 string
	}{
		{
			name:       "No default or current answer",
			helpString: "explanation",
			prompt:     "prompt",
			stdin:      "user input\n",
			expPrompt: "explanation\n" +
				"prompt:\n" +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:       "No default answer, chose current answer",
			helpString: "explanation",
			prompt:     "prompt",
			currAnswer: "current answer",
			stdin:      "1\n",
			expPrompt: "explanation\n" +
				"prompt:\n" +
				"\n" +
				"\t1. current answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"\n",
			expResult: "current answer",
		},
		{
			name:       "No default answer, enter manually",
			helpString: "explanation",
			prompt:     "prompt",
			currAnswer: "current answer",
			stdin:      "2\nuser input\n",
			expPrompt: "explanation\n" +
				"prompt:\n" +
				"\n" +
				"\t1. current answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "Same default answer and current answer",
			helpString:    "explanation",
			prompt:        "prompt",
			defaultAnswer: "default answer",
			currAnswer:    "default answer",
			stdin:         "1\n",
			expPrompt: "explanation\n" +
				"prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"\n",
			expResult: "default answer",
		},
		{
			name:          "Different default answer and current answer, chose current answer",
			helpString:    "explanation",
			prompt:        "prompt",
			defaultAnswer: "default answer",
			currAnswer:    "current answer",
			stdin:         "2\n",
			expPrompt: "explanation\n" +
				"prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. current answer\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n" +
				"\n",
			expResult: "current answer",
		},
		{
			name:          "Empty response -- pick default",
			helpString:    "help",
			prompt:        "prompt",
			defaultAnswer: "one",
			currAnswer:    "two",
			stdin:         "\n",
			expPrompt: "help\n" +
				"prompt:\n" +
				"\n" +
				"\t1. one (recommended)\n" +
				"\t2. two\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n" +
				"\n",
			expResult: "one",
		},
		{
			name:          "Invalid input",
			helpString:    "explanation",
			prompt:        "prompt",
			defaultAnswer: "default answer",
			currAnswer:    "current answer",
			stdin:         "invalid input\n3\n  user input  \n",
			expPrompt: "explanation\n" +
				"prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. current answer\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: " +
				"Please choose one [1-3]: \n" +
				"Please enter manually: \n",
			expResult: "user input",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			out := bytes.NewBuffer(nil)
			stdout = out

			resp, err := promptUser(bufio.NewReader(strings.NewReader(test.stdin)),
				test.helpString, test.prompt, test.defaultAnswer, test.currAnswer)
			assert.NoError(t, err)
			assert.Equal(t, test.expResult, resp)
			assert.Equal(t, test.expPrompt, out.String())
		})
	}
}

func TestPromptUserInputClosed(t *testing.T) {
	stdout = bytes.NewBuffer(nil)
	_, err := promptUser(bufio.NewReader(strings.NewReader("")), "help", "prompt", "", "")
	assert.Error(t, err)
}

func TestHostValidation(t *testing.T) {
	tests := []struct {
		input    string
		expValid bool
	}{
		{"ibmi.example.com", true},
		{"10.0.0.12", true},
		{"", false},
		{"ssh://ibmi", false},
		{"ibmi example", false},
	}

	for _, test := range tests {
		_, ok := hostValidationFn(test.input)
		assert.Equal(t, test.expValid, ok, test.input)
	}
}

const (
	hostPrompt = "Enter the hostname or IP address of the deployment host.\n" +
		"kdeploy connects to it over SSH.\n"
	userPrompt     = "Enter the user to log in to the deployment host as.\n"
	identityPrompt = "Enter the path to the private key used to log in.\n" +
		"If it's left empty, the keys loaded in the SSH agent are used.\n"
	findPrompt = "Enter the path to GNU find on the deployment host.\n" +
		"It's used to check which files changed since the last deployment.\n"
)

func TestGenerateConfig(t *testing.T) {
	defaults := config.User{
		User:         "default-user",
		IdentityFile: "/home/dev/.ssh/id_ed25519",
		FindCommand:  "find",
	}

	tests := []struct {
		name                string
		cliOpts             config.User
		mockParseUserConfig func() (config.User, error)
		stdin               string
		expPrompt           string
		expConfig           config.User
	}{
		{
			name: "Initial setup -- ~/.kdeploy.yaml doesn't exist yet",
			mockParseUserConfig: func() (config.User, error) {
				return config.User{}, errors.FileNotFound{}
			},
			stdin: "ibmi\n1\n1\n1\n",
			expPrompt: hostPrompt +
				"Deployment host:\n" +
				"Please enter manually: \n" +
				userPrompt +
				"SSH user:\n" +
				"\n" +
				"\t1. default-user (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"\n" +
				identityPrompt +
				"SSH private key:\n" +
				"\n" +
				"\t1. /home/dev/.ssh/id_ed25519 (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"\n" +
				findPrompt +
				"Remote find command:\n" +
				"\n" +
				"\t1. find (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"\n",
			expConfig: config.User{
				Host:         "ibmi",
				User:         "default-user",
				IdentityFile: "/home/dev/.ssh/id_ed25519",
				FindCommand:  "find",
			},
		},
		{
			name: "Empty host is rejected",
			cliOpts: config.User{
				User:         "cli-user",
				IdentityFile: "/keys/id_rsa",
				FindCommand:  "/QOpenSys/pkgs/bin/find",
			},
			mockParseUserConfig: func() (config.User, error) {
				return config.User{}, errors.FileNotFound{}
			},
			stdin: "\nibmi\n",
			expPrompt: hostPrompt +
				"Deployment host:\n" +
				"Please enter manually: \n" +
				"The host is required.\n" +
				hostPrompt +
				"Deployment host:\n" +
				"Please enter manually: \n",
			expConfig: config.User{
				Host:         "ibmi",
				User:         "cli-user",
				IdentityFile: "/keys/id_rsa",
				FindCommand:  "/QOpenSys/pkgs/bin/find",
			},
		},
		{
			name: "When ~/.kdeploy.yaml exists, prefer its values",
			cliOpts: config.User{
				IdentityFile: "/keys/id_rsa",
				FindCommand:  "find",
			},
			mockParseUserConfig: func() (config.User, error) {
				return config.User{
					Host:           "current-host",
					Port:           2222,
					User:           "current-user",
					KnownHostsFile: "/keys/known_hosts",
					Concurrency:    8,
				}, nil
			},
			stdin: "1\n2\n",
			expPrompt: hostPrompt +
				"Deployment host:\n" +
				"\n" +
				"\t1. current-host (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"\n" +
				userPrompt +
				"SSH user:\n" +
				"\n" +
				"\t1. default-user (recommended)\n" +
				"\t2. current-user\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n" +
				"\n",
			expConfig: config.User{
				Host:           "current-host",
				Port:           2222,
				User:           "current-user",
				IdentityFile:   "/keys/id_rsa",
				KnownHostsFile: "/keys/known_hosts",
				FindCommand:    "find",
				Concurrency:    8,
			},
		},
		{
			name: "All fields set explicitly with CLI flags",
			cliOpts: config.User{
				Host:         "cli-host",
				Port:         2200,
				User:         "cli-user",
				IdentityFile: "/keys/id_rsa",
				FindCommand:  "/QOpenSys/pkgs/bin/find",
			},
			mockParseUserConfig: func() (config.User, error) {
				return config.User{
					Host: "curr-host",
					Port: 22,
					User: "curr-user",
				}, nil
			},
			expConfig: config.User{
				Host:         "cli-host",
				Port:         2200,
				User:         "cli-user",
				IdentityFile: "/keys/id_rsa",
				FindCommand:  "/QOpenSys/pkgs/bin/find",
			},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			out := bytes.NewBuffer(nil)
			stdout = out
			stdin = strings.NewReader(test.stdin)
			guessDefaults = func() config.User { return defaults }
			parseUserConfig = test.mockParseUserConfig

			cfg, err := generateConfig(test.cliOpts)
			assert.NoError(t, err)
			assert.Equal(t, test.expConfig, cfg)
			assert.Equal(t, test.expPrompt, out.String())
		})
	}
}

func TestSetupConfig(t *testing.T) {
	out := bytes.NewBuffer(nil)
	stdout = out
	stdin = strings.NewReader("")
	guessDefaults = func() config.User { return config.User{} }
	parseUserConfig = func() (config.User, error) { return config.User{}, errors.FileNotFound{} }

	var written config.User
	writeUserConfig = func(cfg config.User) error {
		written = cfg
		return nil
	}
	defer func() { writeUserConfig = config.WriteUser }()

	cliOpts := config.User{
		Host:         "ibmi",
		User:         "dev",
		IdentityFile: "/keys/id_rsa",
		FindCommand:  "find",
	}
	assert.NoError(t, SetupConfig(cliOpts))
	assert.Equal(t, cliOpts, written)
	assert.Contains(t, out.String(), "Wrote config to")

	writeUserConfig = func(config.User) error { return errors.New("permission denied") }
	assert.EqualError(t, SetupConfig(cliOpts), "write config: permission denied")
}

type fileInfo struct{}

func (fileInfo) Name() string       { return "id" }
func (fileInfo) Size() int64        { return 0 }
func (fileInfo) Mode() os.FileMode  { return 0600 }
func (fileInfo) ModTime() time.Time { return time.Time{} }
func (fileInfo) IsDir() bool        { return false }
func (fileInfo) Sys() interface{}   { return nil }

func TestGuessDefaults(t *testing.T) {
	tests := []struct {
		name           string
		existingKeys   []string
		statErr        error
		getCurrentUser func() (*user.User, error)
		expCfg         config.User
		expLogs        []string
	}{
		{
			name:         "Success case",
			existingKeys: []string{"/home/dev/.ssh/id_rsa", "/home/dev/.ssh/id_ecdsa"},
			getCurrentUser: func() (*user.User, error) {
				return &user.User{Username: "dev"}, nil
			},
			expCfg: config.User{
				User:         "dev",
				IdentityFile: "/home/dev/.ssh/id_ecdsa",
				FindCommand:  "find",
			},
		},
		{
			name: "No keys",
			getCurrentUser: func() (*user.User, error) {
				return &user.User{Username: "dev"}, nil
			},
			expCfg: config.User{
				User:        "dev",
				FindCommand: "find",
			},
		},
		{
			name:    "Failures are logged",
			statErr: errors.New("permission denied"),
			getCurrentUser: func() (*user.User, error) {
				return nil, errors.New("unknown user")
			},
			expCfg: config.User{FindCommand: "find"},
			expLogs: []string{
				"Failed to guess user",
				"Failed to guess identity file",
			},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			expandPath = func(path string) (string, error) {
				return strings.Replace(path, "~", "/home/dev", 1), nil
			}
			stat = func(path string) (os.FileInfo, error) {
				if test.statErr != nil {
					return nil, test.statErr
				}
				for _, key := range test.existingKeys {
					if key == path {
						return fileInfo{}, nil
					}
				}
				return nil, os.ErrNotExist
			}
			getCurrentUser = test.getCurrentUser

			hook := logrusTest.NewGlobal()
			defer hook.Reset()

			assert.Equal(t, test.expCfg, guessDefaultsImpl())

			var logs []string
			for _, entry := range hook.AllEntries() {
				logs = append(logs, entry.Message)
			}
			assert.Equal(t, test.expLogs, logs)
		})
	}
}

func TestGetters(t *testing.T) {
	parseUserConfig = func() (config.User, error) {
		return config.User{Host: "ibmi", User: "dev"}, nil
	}

	tests := []struct {
		use, exp string
	}{
		{"get-host", "ibmi\n"},
		{"get-user", "dev\n"},
	}

	for _, test := range tests {
		out := bytes.NewBuffer(nil)
		stdout = out

		cmd := New()
		cmd.SetArgs([]string{test.use})
		assert.NoError(t, cmd.Execute(), test.use)
		assert.Equal(t, test.exp, out.String(), test.use)
	}
}
