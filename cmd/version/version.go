package version

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/kdeploy/cmd/util"
	"github.com/sidkik/kdeploy/pkg/config"
	"github.com/sidkik/kdeploy/pkg/errors"
	"github.com/sidkik/kdeploy/pkg/remote"
	"github.com/sidkik/kdeploy/pkg/version"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	parseUserConfig           = config.ParseUser
	dial                      = remote.Dial
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of kdeploy and the capabilities of the deployment host.",
		Long: "Print the local version of kdeploy, and whether the deployment\n" +
			"host has a find command that supports changes only deployments.",
		Run: func(_ *cobra.Command, args []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run() error {
	fmt.Fprintf(stdout, "local version: %s\n", version.Version)

	cfg, err := parseUserConfig()
	if err != nil {
		log.WithError(err).Debug("Failed to parse user config")
		return nil
	}

	remoteConfig, err := util.RemoteConfig(cfg)
	if err != nil {
		return err
	}

	client, err := dial(context.Background(), remoteConfig)
	if err != nil {
		return errors.WithContext(err, "connect to deployment host")
	}
	defer client.Close()

	fmt.Fprintf(stdout, "remote host:   %s\n", cfg.Host)
	fmt.Fprintf(stdout, "remote find:   %s\n", describeFind(client.Features()))
	return nil
}

func describeFind(features remote.Features) string {
	if !features.SupportsListing() {
		return "unavailable (changes only deployments are disabled)"
	}

	if features.FindVersion == nil {
		return features.FindCommand
	}
	return fmt.Sprintf("%s (GNU findutils %s)", features.FindCommand, features.FindVersion)
}
