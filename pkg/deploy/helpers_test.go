package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/kdeploy/pkg/remote"
)

// fakeRemote is an in-memory remote host. Uploading a file gives it a new
// remote timestamp.
type fakeRemote struct {
	lock     sync.Mutex
	root     string
	files    map[string]string
	clock    int
	features remote.Features

	listErr   error
	listCalls int
	failPuts  map[string]bool
	puts      []string

	// If set, Put signals putStarted and blocks until unblock is closed.
	putStarted chan struct{}
	unblock    chan struct{}

	// If set, afterPut is called once a file has been uploaded.
	afterPut func(localPath string)
}

func newFakeRemote(root string, files map[string]string) *fakeRemote {
	if files == nil {
		files = map[string]string{}
	}
	return &fakeRemote{
		root:     root,
		files:    files,
		features: remote.Features{FindCommand: "find"},
		failPuts: map[string]bool{},
	}
}

func (r *fakeRemote) RunCommand(_ context.Context, command string) (remote.CommandResult, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.listCalls++
	if r.listErr != nil {
		return remote.CommandResult{}, r.listErr
	}

	if command != NewScanner(nil, "find").ListCommand(r.root) {
		return remote.CommandResult{ExitCode: 127, Stderr: "unexpected command"}, nil
	}

	var paths []string
	for p := range r.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&out, "%s ./%s\n", r.files[p], p)
	}
	return remote.CommandResult{Stdout: out.String()}, nil
}

func (r *fakeRemote) Put(_ context.Context, localPath, remotePath string) error {
	if r.putStarted != nil {
		select {
		case r.putStarted <- struct{}{}:
		default:
		}
		<-r.unblock
	}

	if err := r.upload(remotePath); err != nil {
		return err
	}

	if r.afterPut != nil {
		r.afterPut(localPath)
	}
	return nil
}

func (r *fakeRemote) upload(remotePath string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.puts = append(r.puts, remotePath)
	if r.failPuts[remotePath] {
		return fmt.Errorf("permission denied")
	}

	r.clock++
	r.files[strings.TrimPrefix(remotePath, r.root+"/")] = fmt.Sprintf("T%d", r.clock)
	return nil
}

func (r *fakeRemote) Features() remote.Features {
	return r.features
}

func (r *fakeRemote) Close() error {
	return nil
}

func (r *fakeRemote) touch(rel, timestamp string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.files[rel] = timestamp
}

func (r *fakeRemote) putPaths() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	paths := append([]string{}, r.puts...)
	sort.Strings(paths)
	return paths
}

// setupFs replaces the filesystem with an in-memory one containing files,
// which maps absolute paths to their modification time in milliseconds.
func setupFs(t *testing.T, files map[string]int64) {
	fs = afero.NewMemMapFs()
	t.Cleanup(func() { fs = afero.NewOsFs() })

	for path, mtime := range files {
		writeLocal(t, path, mtime)
	}
}

func writeLocal(t *testing.T, path string, mtime int64) {
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(path), 0644))

	modTime := time.UnixMilli(mtime)
	require.NoError(t, fs.Chtimes(path, modTime, modTime))
}

func millis(ms int64) *int64 {
	return &ms
}

func recordPaths(records []ChangeRecord) (res []string) {
	for _, r := range records {
		res = append(res, r.LocalPath)
	}
	return res
}
