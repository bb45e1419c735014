package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/kdeploy/cmd/config"
	deployCmd "github.com/sidkik/kdeploy/cmd/deploy"
	"github.com/sidkik/kdeploy/cmd/locations"
	"github.com/sidkik/kdeploy/cmd/setlocation"
	"github.com/sidkik/kdeploy/cmd/util"
	"github.com/sidkik/kdeploy/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "KDEPLOY_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "kdeploy",
		Short:        "Deploy local workspaces to a remote host over SSH",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		configCmd.New(),
		deployCmd.New(),
		locations.New(),
		setlocation.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
