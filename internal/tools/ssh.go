package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHSessionConfig contains the remote connection settings.
type SSHSessionConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SSHSession owns one SSH connection to the solving host. The session
// reconnects on drop; that is its only resilience policy.
type SSHSession struct {
	cfg    SSHSessionConfig
	client *ssh.Client
	log    *slog.Logger
}

// NewSSHSession connects to the remote host. The connection is established
// eagerly so configuration problems surface at startup.
func NewSSHSession(cfg SSHSessionConfig, log *slog.Logger) (*SSHSession, error) {
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &SSHSession{cfg: cfg, log: log}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SSHSession) connect() error {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}

	clientCfg := &ssh.ClientConfig{
		User: s.cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(s.cfg.Password),
		},
		// The solving host is a disposable challenge box; host keys are not
		// pinned, matching the upstream tooling this replaces.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.cfg.Timeout,
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return fmt.Errorf("ssh connect %s: %w", addr, err)
	}
	s.client = client
	s.log.Info("SSH connection established", "user", s.cfg.Username, "addr", addr)
	return nil
}

// alive reports whether the underlying connection still responds.
func (s *SSHSession) alive() bool {
	if s.client == nil {
		return false
	}
	_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// ensureConnected reconnects when the session has dropped.
func (s *SSHSession) ensureConnected() error {
	if s.alive() {
		return nil
	}
	s.log.Warn("SSH session dropped, reconnecting")
	return s.connect()
}

// Run executes a command on the remote host and returns stdout and stderr.
// Failures are returned as stderr text, never as an error.
func (s *SSHSession) Run(ctx context.Context, command string) (string, string) {
	if command == "" {
		return "", "Error: no command content provided"
	}
	if err := s.ensureConnected(); err != nil {
		return "", fmt.Sprintf("Command execution error: %v", err)
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Sprintf("Command execution error: %v", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case <-ctx.Done():
		// Best effort: tear down the session so the remote command does not
		// outlive the turn.
		sess.Signal(ssh.SIGKILL)
		return stdout.String(), fmt.Sprintf("Command execution error: %v", ctx.Err())
	case err := <-done:
		out, errOut := stdout.String(), stderr.String()
		if err != nil {
			if _, ok := err.(*ssh.ExitError); !ok {
				errOut += fmt.Sprintf("Command execution error: %v", err)
			}
			// Non-zero exit codes are normal for probing commands; stderr
			// already carries the detail.
		}
		return out, errOut
	}
}

// UploadDir recursively copies a local directory to remotePath over SFTP.
// Used to push challenge attachments to the solving host at startup.
func (s *SSHSession) UploadDir(localPath, remotePath string) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	ftp, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("open sftp: %w", err)
	}
	defer ftp.Close()

	if _, err := ftp.Stat(remotePath); err != nil {
		if err := ftp.MkdirAll(remotePath); err != nil {
			return fmt.Errorf("mkdir %s: %w", remotePath, err)
		}
	}

	return filepath.Walk(localPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		remote := remotePath
		if rel != "." {
			remote = remotePath + "/" + filepath.ToSlash(rel)
		}

		if info.IsDir() {
			if rel == "." {
				return nil
			}
			if _, err := ftp.Stat(remote); err != nil {
				return ftp.MkdirAll(remote)
			}
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := ftp.Create(remote)
		if err != nil {
			return err
		}
		defer dst.Close()

		if _, err := io.Copy(dst, src); err != nil {
			return err
		}
		s.log.Debug("Uploaded attachment", "local", path, "remote", remote)
		return nil
	})
}

// Close tears down the connection.
func (s *SSHSession) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// ShellTool runs shell commands on the remote solving host.
type ShellTool struct {
	session *SSHSession
}

// NewShellTool creates a shell tool over an established SSH session.
func NewShellTool(session *SSHSession) *ShellTool {
	return &ShellTool{session: session}
}

func (t *ShellTool) Name() string { return "execute_shell_command" }

func (t *ShellTool) Description() string {
	return "Run a shell command on the remote server where curl, sqlmap, nmap, openssl, and other tools are available."
}

func (t *ShellTool) Parameters() map[string]any {
	return purposeContentParams("The shell command to run.")
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any) (string, string) {
	command := GetString(args, "content", "")
	return t.session.Run(ctx, command)
}

// sanitizeRemoteName keeps generated remote filenames shell-safe.
func sanitizeRemoteName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
