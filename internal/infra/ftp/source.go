package ftp

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

// Source retrieves feed files from the agency FTP drop. Each operation
// dials its own control connection; the drop is visited a few times a day
// at most, so connection reuse is not worth the stale-session handling.
type Source struct {
	addr      string
	user      string
	password  string
	remoteDir string
	timeout   time.Duration
}

func New(host string, port int, user, password, remoteDir string, timeout time.Duration) *Source {
	return &Source{
		addr:      fmt.Sprintf("%s:%d", host, port),
		user:      user,
		password:  password,
		remoteDir: remoteDir,
		timeout:   timeout,
	}
}

// List returns the names of files under the remote dir matching pattern.
func (s *Source) List(ctx context.Context, pattern string) ([]string, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.NameList(s.remoteDir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.remoteDir, err)
	}

	var matches []string
	for _, entry := range entries {
		name := path.Base(entry)
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if ok {
			matches = append(matches, name)
		}
	}
	return matches, nil
}

// Fetch opens the remote file for reading. The control connection stays
// open until the returned ReadCloser is closed.
func (s *Source) Fetch(ctx context.Context, name string) (io.ReadCloser, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := conn.Retr(s.remotePath(name))
	if err != nil {
		conn.Quit()
		return nil, fmt.Errorf("retrieving %s: %w", name, err)
	}
	return &fetchCloser{Response: resp, conn: conn}, nil
}

// Remove deletes the remote file after it has been archived.
func (s *Source) Remove(ctx context.Context, name string) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()
	if err := conn.Delete(s.remotePath(name)); err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

func (s *Source) dial(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(s.timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", s.addr, err)
	}
	if err := conn.Login(s.user, s.password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login as %s: %w", s.user, err)
	}
	return conn, nil
}

func (s *Source) remotePath(name string) string {
	return path.Join(s.remoteDir, name)
}

// fetchCloser ties the data-connection reader to its control connection.
type fetchCloser struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (f *fetchCloser) Close() error {
	err := f.Response.Close()
	if qerr := f.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}
