package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/joseph-ayodele/ibansync/constants"
	"github.com/joseph-ayodele/ibansync/internal/common"
)

// Config for the remote transfer endpoint.
type Config struct {
	Addr       string // host:port
	Username   string
	Password   string
	PrivateKey string // path to a PEM key; optional when Password is set
	KnownHosts string // path to a known_hosts file; empty disables host key checks
	Timeout    time.Duration

	IncomingDir   string // remote directory polled for new files
	DownloadedDir string // remote directory files are moved to once fetched
	IntakeDir     string // local directory downloads land in
}

// RemoteFile is one entry of the incoming listing.
type RemoteFile struct {
	Name string
	Path string
	Size int64
	Mode os.FileMode
}

// Store lists, downloads and acknowledges files on the SFTP endpoint.
type Store struct {
	client *sftp.Client
	conn   *ssh.Client
	cfg    Config
	logger *slog.Logger
}

// Dial opens the SSH transport and the SFTP session on top of it.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sshCfg, err := clientConfig(cfg, logger)
	if err != nil {
		return nil, common.NewConnectionError("sftp client config", err)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		logger.Error("sftp.dial.failed", "addr", cfg.Addr, "error", err)
		return nil, common.NewConnectionError("dial "+cfg.Addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(nc, cfg.Addr, sshCfg)
	if err != nil {
		_ = nc.Close()
		logger.Error("sftp.handshake.failed", "addr", cfg.Addr, "error", err)
		return nil, common.NewConnectionError("ssh handshake", err)
	}
	conn := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		logger.Error("sftp.session.failed", "addr", cfg.Addr, "error", err)
		return nil, common.NewConnectionError("sftp session", err)
	}

	logger.Info("sftp.connected", "addr", cfg.Addr, "user", cfg.Username)
	s := NewStore(client, cfg, logger)
	s.conn = conn
	return s, nil
}

func clientConfig(cfg Config, logger *slog.Logger) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.PrivateKey != "" {
		pem, err := os.ReadFile(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh auth method configured")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKey = cb
	} else {
		logger.Warn("sftp.host_key.unverified", "addr", cfg.Addr)
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}, nil
}

// NewStore wraps an established SFTP session.
func NewStore(client *sftp.Client, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, cfg: cfg, logger: logger}
}

// ListPending returns the non-directory entries of the incoming directory, sorted by name.
func (s *Store) ListPending(ctx context.Context) ([]RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := s.client.ReadDir(s.cfg.IncomingDir)
	if err != nil {
		s.logger.Error("sftp.list.failed", "dir", s.cfg.IncomingDir, "error", err)
		return nil, common.NewConnectionError("list "+s.cfg.IncomingDir, err)
	}

	var out []RemoteFile
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		out = append(out, RemoteFile{
			Name: fi.Name(),
			Path: path.Join(s.cfg.IncomingDir, fi.Name()),
			Size: fi.Size(),
			Mode: fi.Mode(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	s.logger.Info("sftp.list.ok", "dir", s.cfg.IncomingDir, "files", len(out))
	return out, nil
}

// Fetch downloads f into the intake directory under its own name. Bytes land
// in a hidden partial file first; the final name only appears once the copy
// is complete, synced and matches the listed size.
func (s *Store) Fetch(ctx context.Context, f RemoteFile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Name == "" || filepath.Base(f.Name) != f.Name || f.Name[0] == '.' {
		return "", common.NewTransferError(fmt.Sprintf("refusing remote file name %q", f.Name), nil)
	}
	start := time.Now()

	src, err := s.client.Open(f.Path)
	if err != nil {
		s.logger.Error("sftp.fetch.open_failed", "file", f.Name, "error", err)
		return "", common.NewTransferError("open remote "+f.Path, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Warn("sftp.fetch.close_failed", "file", f.Name, "error", err)
		}
	}()

	final := filepath.Join(s.cfg.IntakeDir, f.Name)
	partial := filepath.Join(s.cfg.IntakeDir, "."+f.Name+constants.PartialSuffix)
	n, err := copyToFile(partial, src)
	if err != nil {
		_ = os.Remove(partial)
		s.logger.Error("sftp.fetch.copy_failed", "file", f.Name, "bytes", n, "error", err)
		return "", common.NewTransferError("download "+f.Path, err)
	}
	if f.Size >= 0 && n != f.Size {
		_ = os.Remove(partial)
		s.logger.Error("sftp.fetch.short", "file", f.Name, "bytes", n, "expected", f.Size)
		return "", common.NewTransferError(fmt.Sprintf("download %s: got %d of %d bytes", f.Path, n, f.Size), nil)
	}
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return "", common.NewTransferError("publish "+final, err)
	}

	s.logger.Info("sftp.fetch.ok", "file", f.Name, "bytes", n, "elapsed_ms", time.Since(start).Milliseconds())
	return final, nil
}

func copyToFile(dst string, src io.Reader) (int64, error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, src)
	if err != nil {
		_ = out.Close()
		return n, err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return n, err
	}
	return n, out.Close()
}

// MarkFetched moves f from the incoming to the downloaded directory. Call it
// only after Fetch succeeded; it is the only record that f was retrieved.
func (s *Store) MarkFetched(ctx context.Context, f RemoteFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := path.Join(s.cfg.DownloadedDir, f.Name)
	if err := s.client.Rename(f.Path, target); err != nil {
		s.logger.Error("sftp.mark.failed", "file", f.Name, "target", target, "error", err)
		return common.NewTransferError("move "+f.Path+" to "+target, err)
	}
	s.logger.Info("sftp.mark.ok", "file", f.Name, "target", target)
	return nil
}

// Close ends the SFTP session and the SSH transport.
func (s *Store) Close() error {
	var errs []error
	if err := s.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	s.logger.Info("sftp.closed")
	return errors.Join(errs...)
}
