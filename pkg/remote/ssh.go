package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"al.essio.dev/pkg/shellescape"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sidkik/kdeploy/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Config contains the settings for connecting to the deployment host.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string

	// IdentityFile is the path to a private key. If it's empty, keys are
	// loaded from the SSH agent instead.
	IdentityFile string

	KnownHostsFile        string
	InsecureIgnoreHostKey bool

	// FindCommand overrides the find(1) used to list remote files.
	FindCommand string

	Timeout time.Duration
}

type sshClient struct {
	conn     *ssh.Client
	features Features
}

// Dial connects to the host described by cfg, and detects its features.
func Dial(ctx context.Context, cfg Config) (Client, error) {
	clientConfig, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	conn, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		return nil, errors.WithContext(err, fmt.Sprintf("dial %s", addr))
	}

	c := &sshClient{conn: conn}
	c.features = detectFeatures(ctx, c, cfg.FindCommand)
	log.WithFields(log.Fields{
		"host":            addr,
		"supportsListing": c.features.SupportsListing(),
	}).Debug("Connected to remote host")
	return c, nil
}

func clientConfig(cfg Config) (*ssh.ClientConfig, error) {
	if cfg.Host == "" {
		return nil, errors.MissingFieldError{Field: "host"}
	}
	if cfg.User == "" {
		return nil, errors.MissingFieldError{Field: "user"}
	}

	var auth []ssh.AuthMethod
	if cfg.IdentityFile != "" {
		keyBytes, err := afero.ReadFile(fs, cfg.IdentityFile)
		if err != nil {
			return nil, errors.WithContext(err, "read identity file")
		}

		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, errors.WithContext(err, "parse identity file")
		}
		auth = append(auth, ssh.PublicKeys(signer))
	} else if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		agentConn, err := net.Dial("unix", sock)
		if err != nil {
			log.WithError(err).Debug("Failed to connect to SSH agent")
		} else {
			auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers))
		}
	}

	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	if len(auth) == 0 {
		return nil, errors.NewFriendlyError("No SSH credentials are available.\n" +
			"Set `identityFile` in the kdeploy config, start an SSH agent, " +
			"or set KDEPLOY_PASSWORD.")
	}

	var hostKeyCallback ssh.HostKeyCallback
	if cfg.InsecureIgnoreHostKey {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		var err error
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, errors.WithContext(err, "load known hosts")
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

func (c *sshClient) Features() Features {
	return c.features
}

func (c *sshClient) RunCommand(ctx context.Context, command string) (CommandResult, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return CommandResult{}, errors.WithContext(err, "open session")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	err = runSession(ctx, session, command)
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	if err != nil {
		return res, errors.WithContext(err, "run")
	}
	return res, nil
}

func (c *sshClient) Put(ctx context.Context, localPath, remotePath string) error {
	f, err := fs.Open(localPath)
	if err != nil {
		return errors.WithContext(err, "open")
	}
	defer f.Close()

	session, err := c.conn.NewSession()
	if err != nil {
		return errors.WithContext(err, "open session")
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stdin = f
	session.Stderr = &stderr

	err = runSession(ctx, session, uploadCommand(remotePath))
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return fmt.Errorf("upload exited with status %d: %s",
			exitErr.ExitStatus(), bytes.TrimSpace(stderr.Bytes()))
	}
	if err != nil {
		return errors.WithContext(err, "upload")
	}
	return nil
}

func (c *sshClient) Close() error {
	return c.conn.Close()
}

// uploadCommand returns the shell command that writes its stdin to
// remotePath.
func uploadCommand(remotePath string) string {
	return fmt.Sprintf("mkdir -p %s && cat > %s",
		shellescape.Quote(path.Dir(remotePath)), shellescape.Quote(remotePath))
}

// runSession runs command, and closes the session if ctx is cancelled before
// the command exits.
func runSession(ctx context.Context, session *ssh.Session, command string) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		session.Close()
		return ctx.Err()
	}
}
