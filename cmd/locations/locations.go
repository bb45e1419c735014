package locations

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/buger/goterm"
	"github.com/spf13/cobra"

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
)

// New creates a new `locations` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List the configured deploy locations",
		Run: func(_ *cobra.Command, _ []string) {
			cfg, err := parseUserConfig()
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "parse user config"))
			}

			state, err := openState(cfg)
			if err != nil {
				util.HandleFatalError(err)
			}

			if err := printLocations(stdout, state); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

// printLocations prints each workspace, its deploy location, and the number
// of files recorded by its last `changed` deployment.
func printLocations(out io.Writer, state *deploy.StateStore) error {
	targets, err := state.Targets()
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		fmt.Fprintln(out, "No deploy locations are set. "+
			"Set one with `kdeploy set-location <remote directory>`.")
		return nil
	}

	table := goterm.NewTable(0, 8, 3, ' ', 0)
	fmt.Fprintln(table, "WORKSPACE\tDEPLOY LOCATION\tTRACKED FILES")
	for _, target := range targets {
		snapshot, ok, err := state.Snapshot(target.LocalRoot)
		if err != nil {
			return err
		}

		tracked := "-"
		if ok {
			tracked = strconv.Itoa(len(snapshot))
		}
		fmt.Fprintf(table, "%s\t%s\t%s\n", target.LocalRoot, target.RemotePath, tracked)
	}
	fmt.Fprint(out, table)
	return nil
}
