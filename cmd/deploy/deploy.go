package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/buger/goterm"
	"github.com/jonboulle/clockwork"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/kdeploy/cmd/util"
	"github.com/sidkik/kdeploy/pkg/config"
	"github.com/sidkik/kdeploy/pkg/deploy"
	"github.com/sidkik/kdeploy/pkg/errors"
	"github.com/sidkik/kdeploy/pkg/fswatch"
	"github.com/sidkik/kdeploy/pkg/ignore"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	stderr          io.Writer = os.Stderr
	stdin           io.Reader = os.Stdin
	parseUserConfig           = config.ParseUser
	newController             = util.NewController
	getWorkspace              = util.GetWorkspace
)

// watchQuiet is how long the workspace must be unchanged before a watched
// deployment starts.
const watchQuiet = 500 * time.Millisecond

// Options are the command line settings for a deployment.
type Options struct {
	Workspace      string
	Mode           string
	Concurrency    int
	IgnorePatterns []string
	Watch          bool
}

// New creates a new `deploy` command.
func New() *cobra.Command {
	var opts Options
	cmd := &cobra.Command{
		Use:   "deploy [WORKSPACE]",
		Short: "Copy a workspace to its deploy location",
		Long: "Copy the files of a workspace to the remote directory set with " +
			"`kdeploy set-location`.\n\n" +
			"The mode decides which files are copied:\n" +
			"  changed  files modified since the last deployment\n" +
			"  working  files with uncommitted git changes\n" +
			"  staged   files with staged git changes\n" +
			"  all      every file that isn't ignored",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if len(args) == 1 {
				opts.Workspace = args[0]
			}

			if err := Run(opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	AddFlags(cmd, &opts)
	return cmd
}

// AddFlags registers the deployment flags on cmd.
func AddFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "",
		"The files to deploy: changed, working, staged, or all. "+
			"Optional: If not set, kdeploy will interactively prompt.")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0,
		"The maximum number of files to copy at once. "+
			fmt.Sprintf("Defaults to the config file, or %d.", deploy.DefaultConcurrency))
	cmd.Flags().StringSliceVar(&opts.IgnorePatterns, "ignore", nil,
		"Additional gitignore-style patterns of files to skip.")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false,
		"Deploy again whenever a file in the workspace changes.")
}

// Run connects to the deployment host and deploys the workspace.
func Run(opts Options) error {
	cfg, err := parseUserConfig()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	controller, err := newController(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := controller.Remote.Close(); err != nil {
			log.WithError(err).Debug("Failed to close connection")
		}
	}()

	if opts.Concurrency > 0 {
		controller.Concurrency = opts.Concurrency
	}
	controller.IgnorePatterns = append(controller.IgnorePatterns, opts.IgnorePatterns...)

	d := newDeployer(controller)
	defer d.close()
	return d.run(ctx, opts)
}

type deployer struct {
	controller *deploy.Controller
	clock      clockwork.Clock

	out, progressOut io.Writer
	in               io.Reader

	bar         *progressbar.ProgressBar
	unsubscribe func()
}

func newDeployer(controller *deploy.Controller) *deployer {
	d := &deployer{
		controller:  controller,
		clock:       clockwork.NewRealClock(),
		out:         stdout,
		progressOut: stderr,
		in:          stdin,
	}
	d.unsubscribe = controller.Subscribe(d.onEvent)
	return d
}

func (d *deployer) close() {
	d.unsubscribe()
}

func (d *deployer) run(ctx context.Context, opts Options) error {
	root, err := d.selectWorkspace(opts.Workspace)
	if err != nil {
		return errors.WithContext(err, "select workspace")
	}

	mode, err := d.selectMode(opts.Mode)
	if err != nil {
		return err
	}

	res, err := d.deployOnce(ctx, root, mode)
	if err != nil {
		return err
	}

	if opts.Watch {
		return d.watch(ctx, root, mode)
	}

	if !res.Succeeded {
		return errors.NewFriendlyError("%s", res)
	}
	return nil
}

// selectWorkspace returns the workspace named on the command line. Otherwise,
// it's the configured workspace containing the working directory. If there
// isn't one, the user picks between the configured workspaces.
func (d *deployer) selectWorkspace(arg string) (string, error) {
	if arg != "" {
		return getWorkspace(arg)
	}

	wd, err := getWorkspace("")
	if err != nil {
		return "", err
	}

	targets, err := d.controller.State.Targets()
	if err != nil {
		return "", err
	}

	var containing string
	for _, target := range targets {
		if isWithin(target.LocalRoot, wd) && len(target.LocalRoot) > len(containing) {
			containing = target.LocalRoot
		}
	}

	switch {
	case containing != "":
		return containing, nil
	case len(targets) < 2:
		// The controller reports that the working directory isn't configured.
		return wd, nil
	}

	var options []string
	for _, target := range targets {
		options = append(options, fmt.Sprintf("%s -> %s", target.LocalRoot, target.RemotePath))
	}

	choice, err := util.Choose(d.in, d.out, "Workspace to deploy", options)
	if err != nil {
		if err == errors.ErrNonInteractive {
			return wd, nil
		}
		return "", err
	}
	return targets[choice].LocalRoot, nil
}

// selectMode parses the mode from the command line, or prompts the user for
// one of the modes supported by the deployment host.
func (d *deployer) selectMode(flag string) (deploy.Mode, error) {
	available := d.controller.AvailableModes()
	if flag != "" {
		mode, err := deploy.ParseMode(flag)
		if err != nil {
			return "", err
		}

		for _, m := range available {
			if m == mode {
				return mode, nil
			}
		}
		return "", errors.NewFriendlyError("The deployment host doesn't support %s "+
			"deployments. Please choose one of --mode (%s).", mode, modeNames(available))
	}

	var options []string
	for _, mode := range available {
		options = append(options, mode.DisplayName())
	}

	choice, err := util.Choose(d.in, d.out, "Files to deploy", options)
	if err != nil {
		if err == errors.ErrNonInteractive {
			return "", errors.NewFriendlyError("Please choose the files to deploy "+
				"with --mode (%s).", modeNames(available))
		}
		return "", errors.WithContext(err, "prompt for mode")
	}
	return available[choice], nil
}

func modeNames(modes []deploy.Mode) string {
	var names []string
	for _, mode := range modes {
		names = append(names, string(mode))
	}
	return strings.Join(names, ", ")
}

func (d *deployer) deployOnce(ctx context.Context, root string, mode deploy.Mode) (deploy.Result, error) {
	res, err := d.controller.Deploy(ctx, root, mode)
	if err != nil {
		return deploy.Result{}, err
	}

	for _, w := range res.Warnings {
		fmt.Fprintln(d.out, goterm.Color("WARNING: "+w.Message, goterm.YELLOW))
	}

	for _, line := range res.Log {
		fmt.Fprintln(d.out, colorLogLine(line))
	}
	fmt.Fprintln(d.out, res)
	return res, nil
}

// watch deploys the workspace again after each change, until ctx is
// cancelled.
func (d *deployer) watch(ctx context.Context, root string, mode deploy.Mode) error {
	filter, err := ignore.Load(root, d.controller.IgnorePatterns)
	if err != nil {
		return errors.WithContext(err, "load ignore rules")
	}

	watcher, err := fswatch.Watch(root, filter)
	if err != nil {
		return errors.WithContext(err, "watch workspace")
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Debug("Failed to close file watcher")
		}
	}()

	return d.redeployOnChange(ctx, root, mode, fswatch.Debounce(d.clock, watcher.Changes, watchQuiet))
}

func (d *deployer) redeployOnChange(ctx context.Context, root string, mode deploy.Mode,
	changes <-chan struct{}) error {

	fmt.Fprintln(d.out, "Watching for changes. Press Ctrl-C to stop.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}

			if _, err := d.deployOnce(ctx, root, mode); err != nil {
				return err
			}
		}
	}
}

func (d *deployer) onEvent(event deploy.Event) {
	switch event.Kind {
	case deploy.EventStarted:
		fmt.Fprintf(d.out, "Deploying %s to %s (%s)\n",
			event.Target.LocalRoot, event.Target.RemotePath, event.Mode.DisplayName())
	case deploy.EventProgress:
		if d.bar == nil {
			d.bar = progressbar.NewOptions(event.Total,
				progressbar.OptionSetWriter(d.progressOut),
				progressbar.OptionSetDescription("Copying files"),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionClearOnFinish())
		}
		if err := d.bar.Set(event.Completed); err != nil {
			log.WithError(err).Debug("Failed to render progress")
		}
	case deploy.EventFinished, deploy.EventFailed:
		if d.bar != nil {
			if err := d.bar.Finish(); err != nil {
				log.WithError(err).Debug("Failed to render progress")
			}
			d.bar = nil
		}
	}
}

func colorLogLine(line string) string {
	switch {
	case strings.HasPrefix(line, "SUCCESS:"):
		return goterm.Color(line, goterm.GREEN)
	case strings.HasPrefix(line, "FAILED:"), line == "Deployment failed.":
		return goterm.Color(line, goterm.RED)
	}
	return line
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
