package objectsource

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"imagegen/config"
	"imagegen/logger"
	"imagegen/models"
)

// SFTPSource keeps objects as files under Root on a remote host. A new SSH
// session is opened per operation.
type SFTPSource struct {
	cfg  config.SFTPConfig
	auth []ssh.AuthMethod
}

// NewSFTPSource validates cfg and prepares the auth method. privateKey may be
// base64 or raw PEM.
func NewSFTPSource(cfg config.SFTPConfig) (*SFTPSource, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, fmt.Errorf("missing required sftp settings: host, user")
	}
	if cfg.Port == "" {
		cfg.Port = "22"
	}
	if cfg.Root == "" {
		cfg.Root = "/"
	}

	var auths []ssh.AuthMethod
	if cfg.PrivateKey != "" {
		// try to decode as base64, fall back to raw
		keyBytes, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
		if err != nil {
			keyBytes = []byte(cfg.PrivateKey)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	} else if cfg.Password != "" {
		auths = append(auths, ssh.Password(cfg.Password))
	} else {
		return nil, fmt.Errorf("no auth method provided; set password or private_key")
	}
	return &SFTPSource{cfg: cfg, auth: auths}, nil
}

func (s *SFTPSource) connect(ctx context.Context) (*sftp.Client, func(), error) {
	clientConfig := &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            s.auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)

	// Dial respecting context
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("create sftp client: %w", err)
	}
	return sftpClient, func() {
		sftpClient.Close()
		sshClient.Close()
	}, nil
}

func (s *SFTPSource) remotePath(key string) string {
	return path.Join(s.cfg.Root, key)
}

func (s *SFTPSource) Get(ctx context.Context, key string) ([]byte, error) {
	client, done, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	f, err := client.Open(s.remotePath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("open remote file %s: %w", key, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read remote file %s: %w", key, err)
	}
	return data, nil
}

// Put writes data to Root/key. SFTP has no object metadata, so contentType
// is not stored.
func (s *SFTPSource) Put(ctx context.Context, key string, data []byte, _ string) error {
	client, done, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer done()

	remotePath := s.remotePath(key)
	dir := path.Dir(remotePath)
	if err := mkdirAllSFTP(client, dir); err != nil {
		return fmt.Errorf("ensure remote dir %s: %w", dir, err)
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write remote file %s: %w", remotePath, err)
	}

	logger.Infof("Successfully uploaded '%s' to %s", remotePath, s.cfg.Host)
	return nil
}

func (s *SFTPSource) List(ctx context.Context, prefix string) ([]models.ObjectInfo, error) {
	client, done, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	root := path.Clean(s.cfg.Root)
	start := s.remotePath(prefix)
	if !strings.HasSuffix(prefix, "/") {
		start = path.Dir(start)
	}

	var objects []models.ObjectInfo
	walker := client.Walk(start)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			if errors.Is(err, fs.ErrNotExist) && walker.Path() == start {
				return nil, nil
			}
			return nil, fmt.Errorf("walk %s: %w", walker.Path(), err)
		}
		info := walker.Stat()
		if info.IsDir() {
			continue
		}
		key := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), root), "/")
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, models.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			ContentType:  mime.TypeByExtension(path.Ext(key)),
		})
	}
	return objects, nil
}

func (s *SFTPSource) Close() error { return nil }

// mkdirAllSFTP mimics os.MkdirAll for an SFTP server by creating each segment of the path.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
			if err := client.Mkdir(cur); err != nil {
				return fmt.Errorf("mkdir %s: %w", cur, err)
			}
		}
	}
	return nil
}
