package deploy

import (
	"fmt"
	"strings"
	"time"

	"github.com/sidkik/kdeploy/pkg/remote"
)

// Mode selects how the files to deploy are chosen.
type Mode string

const (
	// ModeChanged deploys files that changed since the last deployment.
	ModeChanged Mode = "changed"

	// ModeWorking deploys files changed in the git working tree.
	ModeWorking Mode = "working"

	// ModeStaged deploys files staged in the git index.
	ModeStaged Mode = "staged"

	// ModeAll deploys every file that isn't ignored.
	ModeAll Mode = "all"
)

// Modes lists every mode in the order they're offered to the user.
var Modes = []Mode{ModeChanged, ModeWorking, ModeStaged, ModeAll}

// DisplayName returns the name shown when prompting for a mode.
func (m Mode) DisplayName() string {
	switch m {
	case ModeChanged:
		return "Changes Only"
	case ModeWorking:
		return "Working Changes"
	case ModeStaged:
		return "Staged Changes"
	case ModeAll:
		return "All"
	}
	return string(m)
}

// ParseMode parses the name of a mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown deploy mode %q (expected one of %s)", s, modeNames())
}

func modeNames() string {
	var names []string
	for _, m := range Modes {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

// AvailableModes returns the modes that the remote host can support.
func AvailableModes(features remote.Features) []Mode {
	if features.SupportsListing() {
		return Modes
	}
	return []Mode{ModeWorking, ModeStaged, ModeAll}
}

// Target is the remote directory that a workspace deploys to.
type Target struct {
	LocalRoot  string
	RemotePath string
}

// ChangeRecord is a file that should be copied to the remote host.
type ChangeRecord struct {
	LocalPath  string
	RemotePath string
}

// FileStat is the modification times of a file that exists both locally and
// remotely.
type FileStat struct {
	// Path is relative to the workspace root, and uses forward slashes.
	Path string `json:"path"`

	// LocalTimestamp is the local modification time in Unix milliseconds. It's
	// nil if the file couldn't be stat'd.
	LocalTimestamp *int64 `json:"localTimestamp,omitempty"`

	// RemoteTimestamp is the modification time as printed by the remote find.
	// It's opaque and only compared for equality.
	RemoteTimestamp string `json:"remoteTimestamp,omitempty"`
}

// Equal returns whether both timestamps of the stats match.
func (stat FileStat) Equal(other FileStat) bool {
	if stat.RemoteTimestamp != other.RemoteTimestamp {
		return false
	}
	if stat.LocalTimestamp == nil || other.LocalTimestamp == nil {
		return stat.LocalTimestamp == nil && other.LocalTimestamp == nil
	}
	return *stat.LocalTimestamp == *other.LocalTimestamp
}

// Snapshot maps relative paths to their stats at the end of a deployment.
type Snapshot map[string]FileStat

// Add updates the Snapshot.
func (snapshot Snapshot) Add(stat FileStat) {
	snapshot[stat.Path] = stat
}

// TransferOutcome is the result of copying a single file.
type TransferOutcome struct {
	LocalPath  string
	RemotePath string
	Succeeded  bool
	Error      string
}

// WarningKind classifies the non-fatal problems that can occur while resolving
// a deployment.
type WarningKind string

const (
	// WarningNoChanges means git didn't report any changed files.
	WarningNoChanges WarningKind = "NoChanges"

	// WarningRemoteListingFailed means the remote files couldn't be listed, so
	// nothing was treated as changed.
	WarningRemoteListingFailed WarningKind = "RemoteListingFailed"
)

// Warning is a non-fatal problem that's reported to the user.
type Warning struct {
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	return w.Message
}

// Result is the outcome of a deployment.
type Result struct {
	Mode   Mode
	Target Target

	// Succeeded is true if every attempted file was copied, and the
	// deployment didn't abort.
	Succeeded bool

	// NothingToDeploy is true if the change set was empty.
	NothingToDeploy bool

	Attempted int
	Failed    []TransferOutcome
	Warnings  []Warning

	// Log contains a line for every attempted file, in the order that the
	// copies completed, followed by a summary.
	Log []string

	Duration time.Duration
}

// HasWarning returns whether a warning of the given kind was reported.
func (res Result) HasWarning(kind WarningKind) bool {
	for _, w := range res.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}
