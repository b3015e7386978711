package mirror

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"harborsync/internal/model"
)

const connectTimeout = 20 * time.Second

// Entry is one remote directory listing row.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Session is the authenticated remote file session a run works against. Close
// must be safe to call from a goroutine other than the one reading, because a
// stop request force-closes the session to unblock in-flight I/O.
type Session interface {
	List(path string) ([]Entry, error)
	Open(path string) (io.ReadCloser, error)
	Close() error
}

// Dialer opens a Session for the given run configuration.
type Dialer func(cfg model.SftpConfig) (Session, error)

type sftpSession struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

// DialSFTP is the production dialer: password-auth SSH with a bounded
// handshake, then an SFTP subsystem on top.
func DialSFTP(cfg model.SftpConfig) (Session, error) {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	sshCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	client, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("ssh connect to %s failed: %w", addr, err)
	}

	ftp, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sftp subsystem failed: %w", err)
	}

	return &sftpSession{ssh: client, sftp: ftp}, nil
}

func (s *sftpSession) List(path string) ([]Entry, error) {
	infos, err := s.sftp.ReadDir(path)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name:    info.Name(),
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

func (s *sftpSession) Open(path string) (io.ReadCloser, error) {
	return s.sftp.Open(path)
}

func (s *sftpSession) Close() error {
	_ = s.sftp.Close()
	return s.ssh.Close()
}
