// Package ignore decides which workspace files are excluded from deployment.
// Patterns use gitignore syntax and are matched case-insensitively.
package ignore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/src-d/go-git.v4/plumbing/format/gitignore"

	"github.com/sidkik/kdeploy/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// IgnoreFileName is the name of the root-level pattern file that's merged into
// the user's patterns.
const IgnoreFileName = ".gitignore"

// alwaysIgnored are excluded regardless of the user's patterns.
var alwaysIgnored = []string{".git"}

// Filter is a compiled set of ignore patterns. It is immutable and safe for
// concurrent use.
type Filter struct {
	matcher  gitignore.Matcher
	patterns []string
}

// Compile builds a Filter from gitignore-style patterns. Blank lines and
// comments are skipped. The implicit rules are always applied first so that
// user patterns can't un-ignore them by accident.
func Compile(patterns []string) *Filter {
	var all []string
	all = append(all, alwaysIgnored...)
	all = append(all, patterns...)

	var parsed []gitignore.Pattern
	var kept []string
	for _, p := range all {
		p = trimTrailingSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}

		// go-git's matcher is case sensitive, so both the patterns and the
		// paths are lowered.
		parsed = append(parsed, gitignore.ParsePattern(strings.ToLower(p), nil))
		kept = append(kept, p)
	}

	return &Filter{
		matcher:  gitignore.NewMatcher(parsed),
		patterns: kept,
	}
}

// trimTrailingSpace strips trailing whitespace, except for a final space or
// tab that's escaped with a backslash.
func trimTrailingSpace(p string) string {
	end := len(p)
	for end > 0 && (p[end-1] == ' ' || p[end-1] == '\t') {
		if end > 1 && p[end-2] == '\\' {
			break
		}
		end--
	}
	return p[:end]
}

// Load compiles the patterns in `extra` along with the contents of the
// workspace's root ignore file, if it exists.
func Load(root string, extra []string) (*Filter, error) {
	patterns := append([]string{}, extra...)

	contents, err := afero.ReadFile(fs, filepath.Join(root, IgnoreFileName))
	switch {
	case err == nil:
		patterns = append(patterns, SplitPatterns(string(contents))...)
	case os.IsNotExist(err):
	default:
		return nil, errors.WithContext(err, "read ignore file")
	}

	return Compile(patterns), nil
}

// SplitPatterns splits the contents of an ignore file into its lines.
func SplitPatterns(contents string) []string {
	contents = strings.Replace(contents, "\r", "", -1)
	return strings.Split(contents, "\n")
}

// Ignores returns whether the given path, relative to the workspace root,
// is excluded. Directory rules apply to everything beneath the directory.
func (f *Filter) Ignores(relativePath string) bool {
	relativePath = filepath.ToSlash(filepath.Clean(relativePath))
	if relativePath == "." || relativePath == "" {
		return false
	}

	parts := strings.Split(strings.ToLower(relativePath), "/")

	// Check each ancestor as a directory so that rules such as `build/`
	// cover the files inside it.
	for i := 1; i < len(parts); i++ {
		if f.matcher.Match(parts[:i], true) {
			return true
		}
	}
	return f.matcher.Match(parts, false)
}

// IgnoresDir is like Ignores, but treats the path itself as a directory.
func (f *Filter) IgnoresDir(relativePath string) bool {
	relativePath = filepath.ToSlash(filepath.Clean(relativePath))
	if relativePath == "." || relativePath == "" {
		return false
	}

	parts := strings.Split(strings.ToLower(relativePath), "/")
	for i := 1; i <= len(parts); i++ {
		if f.matcher.Match(parts[:i], true) {
			return true
		}
	}
	return false
}

// Patterns returns the patterns the filter was compiled from, including the
// implicit ones.
func (f *Filter) Patterns() []string {
	return append([]string{}, f.patterns...)
}
