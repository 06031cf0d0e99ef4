package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

type SSHConfig struct {
	Host           string
	Port           int
	Username       string
	KeyPath        string
	Passphrase     string
	KnownHostsPath string
	StrictHostKey  bool
	ConnectTimeout time.Duration
	// Prompt is asked for the key passphrase when the key is encrypted and
	// Passphrase is empty. Nil disables prompting.
	Prompt func(prompt string) ([]byte, error)
}

type Client struct {
	config SSHConfig
	conn   *ssh.Client
}

type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func NewClient(config SSHConfig) *Client {
	if config.Port == 0 {
		config.Port = 22
	}
	return &Client{
		config: config,
	}
}

func (c *Client) Addr() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// Connect dials the target and authenticates with the configured key. The
// connect timeout bounds both the TCP dial and the SSH handshake.
func (c *Client) Connect(ctx context.Context) error {
	signer, err := c.loadSigner()
	if err != nil {
		return err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.config.StrictHostKey {
		hostKeyCallback, err = knownhosts.New(c.config.KnownHostsPath)
		if err != nil {
			return fmt.Errorf("load known hosts %s: %w", c.config.KnownHostsPath, err)
		}
	}

	config := &ssh.ClientConfig{
		User:            c.config.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		Timeout:         c.config.ConnectTimeout,
		HostKeyCallback: hostKeyCallback,
	}

	addr := c.Addr()
	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	if c.config.ConnectTimeout > 0 {
		_ = netConn.SetDeadline(time.Now().Add(c.config.ConnectTimeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		netConn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = netConn.SetDeadline(time.Time{})

	c.conn = ssh.NewClient(sshConn, chans, reqs)
	return nil
}

func (c *Client) loadSigner() (ssh.Signer, error) {
	pem, err := os.ReadFile(c.config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", c.config.KeyPath, err)
	}

	if c.config.Passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(pem, []byte(c.config.Passphrase))
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", c.config.KeyPath, err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && c.config.Prompt != nil {
		pass, perr := c.config.Prompt(fmt.Sprintf("Passphrase for %s: ", c.config.KeyPath))
		if perr != nil {
			return nil, fmt.Errorf("read passphrase: %w", perr)
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, pass)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", c.config.KeyPath, err)
	}
	return signer, nil
}

// TerminalPrompt reads a passphrase from the controlling terminal without
// echo. It fails when stdin is not a terminal.
func TerminalPrompt(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}

// ExecuteCommand runs cmd in a new session. A non-zero exit status is
// returned as an error alongside the captured result.
func (c *Client) ExecuteCommand(ctx context.Context, cmd string) (*CommandResult, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("ssh connection not established")
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	if err := session.Start(cmd); err != nil {
		return nil, fmt.Errorf("start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGINT)
		session.Close()
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &CommandResult{
		Stdout: strings.TrimSpace(stdoutBuf.String()),
		Stderr: strings.TrimSpace(stderrBuf.String()),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, fmt.Errorf("remote command exited with status %d", result.ExitCode)
		}
		result.ExitCode = -1
		return result, fmt.Errorf("remote command failed: %w", err)
	}

	return result, nil
}

// UploadDir copies the contents of localDir into remoteDir using the scp
// protocol, like `scp -r localDir/* host:remoteDir/`.
func (c *Client) UploadDir(ctx context.Context, localDir, remoteDir string) (UploadStats, error) {
	if c.conn == nil {
		return UploadStats{}, fmt.Errorf("ssh connection not established")
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return UploadStats{}, fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return UploadStats{}, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return UploadStats{}, err
	}
	var stderrBuf bytes.Buffer
	session.Stderr = &stderrBuf

	if err := session.Start(scpSinkCommand(remoteDir)); err != nil {
		return UploadStats{}, fmt.Errorf("start scp sink: %w", err)
	}

	type outcome struct {
		stats UploadStats
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		w := NewSCPWriter(stdin, stdout)
		stats, err := w.SendDirContents(localDir)
		stdin.Close()
		if werr := session.Wait(); err == nil && werr != nil {
			err = fmt.Errorf("scp sink: %w (%s)", werr, strings.TrimSpace(stderrBuf.String()))
		}
		done <- outcome{stats, err}
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return UploadStats{}, ctx.Err()
	case o := <-done:
		return o.stats, o.err
	}
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsPortOpen reports whether a TCP connection to the target port succeeds
// within timeout.
func (c *Client) IsPortOpen(ctx context.Context, port int, timeout time.Duration) bool {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(c.config.Host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
