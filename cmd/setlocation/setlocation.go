package setlocation

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	deployCmd "github.com/sidkik/kdeploy/cmd/deploy"
	"github.com/sidkik/kdeploy/cmd/util"
	"github.com/sidkik/kdeploy/pkg/config"
	"github.com/sidkik/kdeploy/pkg/deploy"
	"github.com/sidkik/kdeploy/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	parseUserConfig           = config.ParseUser
	openState                 = util.OpenState
	getWorkspace              = util.GetWorkspace
	runDeploy                 = deployCmd.Run
)

// New creates a new `set-location` command.
func New() *cobra.Command {
	var opts deployCmd.Options
	var deployAfter bool
	cmd := &cobra.Command{
		Use:   "set-location REMOTE_DIRECTORY",
		Short: "Set the remote directory that a workspace deploys to",
		Long: "Set the absolute path on the deployment host that the workspace " +
			"is copied to.\n" +
			"The workspace defaults to the current directory.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			root, err := setLocation(opts.Workspace, args[0])
			if err != nil {
				util.HandleFatalError(err)
			}

			if deployAfter {
				opts.Workspace = root
				if err := runDeploy(opts); err != nil {
					util.HandleFatalError(err)
				}
			}
		},
	}
	cmd.Flags().StringVar(&opts.Workspace, "workspace", "",
		"The workspace to configure. Defaults to the current directory.")
	cmd.Flags().BoolVar(&deployAfter, "deploy", false,
		"Deploy the workspace after setting its location.")
	deployCmd.AddFlags(cmd, &opts)
	return cmd
}

func setLocation(workspace, remotePath string) (string, error) {
	cfg, err := parseUserConfig()
	if err != nil {
		return "", errors.WithContext(err, "parse user config")
	}

	root, err := getWorkspace(workspace)
	if err != nil {
		return "", err
	}

	state, err := openState(cfg)
	if err != nil {
		return "", err
	}

	target := deploy.Target{LocalRoot: root, RemotePath: remotePath}
	if err := state.SetTarget(target); err != nil {
		return "", err
	}

	fmt.Fprintf(stdout, "%s will be deployed to %s\n", root, remotePath)
	return root, nil
}
