package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/sidkik/kdeploy/pkg/errors"
)

// Mocked for unit testing.
var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// IsTerminal returns whether stdin is connected to a terminal, and so whether
// the user can be prompted.
var IsTerminal = func() bool {
	return terminal.IsTerminal(int(os.Stdin.Fd()))
}

// HandleFatalError prints the error and exits. Errors with a friendly
// message only show that message, and the full error is logged at debug
// level.
func HandleFatalError(err error) {
	if msg, ok := errors.GetFriendlyMessage(err); ok {
		log.WithError(err).Debug("Fatal error")
		fmt.Fprintln(stderr, msg)
	} else {
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	exit(1)
}

// HandlePanic logs the stack trace of a panic and exits. It must be deferred
// directly.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("panic", r).Errorf("kdeploy crashed unexpectedly:\n%s", debug.Stack())
		exit(1)
	}
}

// PromptChoice asks the user to pick one of the options by number, and
// returns the index of the option. An empty response picks the first option.
func PromptChoice(in io.Reader, out io.Writer, prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no options to choose from")
	}

	// Separate the prompt from whatever is printed next.
	defer fmt.Fprintln(out)

	fmt.Fprintln(out, prompt+":")
	fmt.Fprintln(out)
	for i, option := range options {
		fmt.Fprintf(out, "\t%d. %s\n", i+1, option)
	}
	fmt.Fprintln(out)

	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "Please choose one [1-%d]: ", len(options))
		choiceStr, err := reader.ReadString('\n')
		if err != nil {
			return 0, err
		}

		choiceStr = strings.TrimSpace(choiceStr)
		if choiceStr == "" {
			return 0, nil
		}

		choice, err := strconv.Atoi(choiceStr)
		if err != nil || choice < 1 || choice > len(options) {
			// Try again if the input is invalid.
			continue
		}
		return choice - 1, nil
	}
}

// Choose prompts the user to pick one of the options if stdin is a terminal,
// and returns errors.ErrNonInteractive otherwise.
func Choose(in io.Reader, out io.Writer, prompt string, options []string) (int, error) {
	if !IsTerminal() {
		return 0, errors.ErrNonInteractive
	}
	return PromptChoice(in, out, prompt, options)
}

// GetWorkspace returns the absolute path of the workspace named on the
// command line, or the working directory if none was given.
func GetWorkspace(arg string) (string, error) {
	if arg == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.WithContext(err, "get working directory")
		}
		return wd, nil
	}

	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", errors.WithContext(err, "resolve workspace path")
	}
	return abs, nil
}
