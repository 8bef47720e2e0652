package sftp

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type Config struct {
	Username   string
	Password   string // used alongside or instead of PrivateKey
	PrivateKey string // required only if private key authentication is to be used
	Server     string
	KnownHosts string        // path to a known_hosts file; empty skips host key verification
	Timeout    time.Duration // 0 for no timeout
	RemoteDir  string
}

type Client struct {
	config     Config
	sshClient  *ssh.Client
	sftpClient *sftp.Client
}

func New(config Config) (*Client, error) {
	var auth []ssh.AuthMethod

	if config.Password != "" {
		auth = append(auth, ssh.Password(config.Password))
	}

	if config.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	if len(auth) == 0 {
		return nil, fmt.Errorf("no credentials configured for %s", config.Server)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.KnownHosts != "" {
		cb, err := knownhosts.New(config.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	sshClient, err := ssh.Dial("tcp", config.Server, &ssh.ClientConfig{
		User:            config.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Server, err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("failed to start sftp session: %w", err)
	}

	return &Client{
		config:     config,
		sshClient:  sshClient,
		sftpClient: sftpClient,
	}, nil
}

// Upload copies a local file into the configured remote directory and returns its remote path.
func (c *Client) Upload(localPath string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	remotePath := RemotePath(c.config.RemoteDir, localPath)
	if err := c.sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path.Dir(remotePath), err)
	}

	// written under a temporary name and renamed once complete
	tmpPath := remotePath + ".tmp"
	dst, err := c.sftpClient.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	n, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		c.sftpClient.Remove(tmpPath)
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}

	if err := dst.Close(); err != nil {
		c.sftpClient.Remove(tmpPath)
		return "", err
	}

	// plain rename fails on an existing target
	c.sftpClient.Remove(remotePath)
	if err := c.sftpClient.Rename(tmpPath, remotePath); err != nil {
		c.sftpClient.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename %s: %w", tmpPath, err)
	}

	log.Debugf("uploaded %d bytes to %s:%s", n, c.config.Server, remotePath)

	return remotePath, nil
}

func (c *Client) Close() {
	c.sftpClient.Close()
	c.sshClient.Close()
}

// RemotePath joins the remote directory with the base name of localPath using forward slashes.
func RemotePath(remoteDir string, localPath string) string {
	if remoteDir == "" {
		remoteDir = "/"
	}
	return path.Join(remoteDir, filepath.Base(localPath))
}
