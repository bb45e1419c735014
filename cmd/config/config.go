package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/kdeploy/cmd/util"
	"github.com/sidkik/kdeploy/pkg/config"
	"github.com/sidkik/kdeploy/pkg/errors"
	"github.com/sidkik/kdeploy/pkg/remote"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	stdin           io.Reader = os.Stdin
	guessDefaults             = guessDefaultsImpl
	parseUserConfig           = config.ParseUser
	writeUserConfig           = config.WriteUser
	stat                      = os.Stat
	expandPath                = homedir.Expand
	getCurrentUser            = user.Current
)

// identityFiles are the private keys that ssh(1) tries by default, in order.
var identityFiles = []string{"~/.ssh/id_ed25519", "~/.ssh/id_ecdsa", "~/.ssh/id_rsa"}

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts config.User
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Setup the kdeploy user configuration",
		Run: func(_ *cobra.Command, _ []string) {
			if err := SetupConfig(cliOpts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&cliOpts.Host, "host", "",
		"Set the deployment host in the config. "+
			"Optional: If not set, `kdeploy config` will interactively prompt.")
	cmd.Flags().IntVar(&cliOpts.Port, "port", 0,
		"Set the SSH port of the deployment host. Defaults to 22.")
	cmd.Flags().StringVar(&cliOpts.User, "user", "",
		"Set the SSH user in the config. "+
			"Optional: If not set, `kdeploy config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.IdentityFile, "identity-file", "",
		"Set the SSH private key in the config. "+
			"Optional: If not set, `kdeploy config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.FindCommand, "find-command", "",
		"Set the path to GNU find on the deployment host. "+
			"Optional: If not set, `kdeploy config` will interactively prompt.")
	cmd.Flags().BoolVar(&cliOpts.InsecureIgnoreHostKey, "insecure-ignore-host-key", false,
		"Don't verify the host key of the deployment host.")

	// Setup the commands for querying the contents of the user config.
	type getterSpec struct {
		use, short string
		fn         func(config.User) string
	}

	getters := []getterSpec{
		{
			use:   "get-host",
			short: "Get the currently configured deployment host",
			fn:    func(cfg config.User) string { return cfg.Host },
		},
		{
			use:   "get-user",
			short: "Get the currently configured SSH user",
			fn:    func(cfg config.User) string { return cfg.User },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseUserConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig prompts for any settings that weren't passed on the command
// line, and writes the resulting user config.
func SetupConfig(cliOpts config.User) error {
	cfg, err := generateConfig(cliOpts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := writeUserConfig(cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	path, err := config.GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "get user config path")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

func hostValidationFn(host string) (string, bool) {
	if host == "" {
		return "The host is required.", false
	}
	if strings.ContainsAny(host, " \t/") {
		return "The host must be a hostname or IP address, " +
			"without a scheme or path.", false
	}
	return "", true
}

func requiredFn(field string) func(string) (string, bool) {
	return func(resp string) (string, bool) {
		if resp == "" {
			return fmt.Sprintf("The %s is required.", field), false
		}
		return "", true
	}
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the user's desired
// configuration is.
// It makes best guesses at reasonable defaults, and allows users to explicitly
// override them if desired.
func generateConfig(cliOpts config.User) (config.User, error) {
	defaults := guessDefaults()
	currConfig, err := parseUserConfig()
	if err != nil {
		currConfig = config.User{}
		log.WithError(err).Debug("Failed to read current config")
	}

	// Settings that can't be prompted for are carried over from the current
	// config.
	cfg := cliOpts
	if cfg.Port == 0 {
		cfg.Port = currConfig.Port
	}
	if !cfg.InsecureIgnoreHostKey {
		cfg.InsecureIgnoreHostKey = currConfig.InsecureIgnoreHostKey
	}
	cfg.KnownHostsFile = currConfig.KnownHostsFile
	cfg.Concurrency = currConfig.Concurrency
	cfg.StateDir = currConfig.StateDir

	var prompts []prompt
	if cliOpts.Host == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the hostname or IP address of the deployment host.\n" +
				"kdeploy connects to it over SSH.",
			prompt:       "Deployment host",
			currAnswer:   currConfig.Host,
			field:        &cfg.Host,
			validationFn: hostValidationFn,
		})
	}

	if cliOpts.User == "" {
		prompts = append(prompts, prompt{
			helpString:    "Enter the user to log in to the deployment host as.",
			prompt:        "SSH user",
			defaultAnswer: defaults.User,
			currAnswer:    currConfig.User,
			field:         &cfg.User,
			validationFn:  requiredFn("user"),
		})
	}

	if cliOpts.IdentityFile == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the path to the private key used to log in.\n" +
				"If it's left empty, the keys loaded in the SSH agent are used.",
			prompt:        "SSH private key",
			defaultAnswer: defaults.IdentityFile,
			currAnswer:    currConfig.IdentityFile,
			field:         &cfg.IdentityFile,
		})
	}

	if cliOpts.FindCommand == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the path to GNU find on the deployment host.\n" +
				"It's used to check which files changed since the last deployment.",
			prompt:        "Remote find command",
			defaultAnswer: defaults.FindCommand,
			currAnswer:    currConfig.FindCommand,
			field:         &cfg.FindCommand,
		})
	}

	reader := bufio.NewReader(stdin)
	for _, prompt := range prompts {
		var resp string
		for {
			resp, err = promptUser(reader, prompt.helpString, prompt.prompt,
				prompt.defaultAnswer, prompt.currAnswer)
			if err != nil {
				return config.User{}, errors.WithContext(err, "read response")
			}

			if prompt.validationFn == nil {
				break
			}

			validationErr, ok := prompt.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*prompt.field = resp
	}

	return cfg, nil
}

// guessDefaults tries to guess reasonable defaults for the fields in the user
// config.
func guessDefaultsImpl() (cfg config.User) {
	if user, err := getCurrentUser(); err == nil {
		cfg.User = user.Username
	} else {
		log.WithError(err).Info("Failed to guess user")
	}

	if identityFile, err := guessIdentityFile(); err == nil {
		cfg.IdentityFile = identityFile
	} else {
		log.WithError(err).Info("Failed to guess identity file")
	}

	cfg.FindCommand = remote.DefaultFindCommand
	return cfg
}

// guessIdentityFile returns the first default SSH private key that exists.
func guessIdentityFile() (string, error) {
	for _, candidate := range identityFiles {
		path, err := expandPath(candidate)
		if err != nil {
			return "", errors.WithContext(err, "expand path")
		}

		if _, err := stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", errors.WithContext(err, "stat")
		}
		return path, nil
	}
	return "", nil
}

func promptUser(reader *bufio.Reader, helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	var options []string
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}

	fmt.Fprintln(stdout, helpString)

	if len(options) > 0 {
		choices := append([]string{}, options...)
		choices[0] = fmt.Sprintf("%s (recommended)", choices[0])
		choices = append(choices, "(Enter manually)")

		choice, err := util.PromptChoice(reader, stdout, prompt, choices)
		if err != nil {
			return "", err
		}

		if choice < len(options) {
			return options[choice], nil
		}
	} else {
		fmt.Fprintln(stdout, prompt+":")
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp), nil
}
