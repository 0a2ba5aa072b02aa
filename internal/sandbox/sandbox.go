// Package sandbox confines one transfer session to a directory of the host.
//
// A Session maps the virtual tree seen by the client onto a host directory:
// the virtual "/" is the host root, and every client path is resolved with
// package vpath before it is mapped, so no path can leave the root.
package sandbox

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/pftpd/pftpd-core/internal/audit"
	"github.com/pftpd/pftpd-core/internal/logutil"
	"github.com/pftpd/pftpd-core/internal/vpath"
)

// ErrOutsideRoot is returned for host paths that do not lie below the root.
var ErrOutsideRoot = errors.New("path outside sandbox root")

// Session tracks the home and working directory of one client session. It is
// not safe for concurrent use.
type Session struct {
	root     string
	home     string
	cwd      string
	user     string
	recorder audit.Recorder
}

// Option configures a Session.
type Option func(*Session)

// WithRecorder sends path_clamped events to r.
func WithRecorder(r audit.Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithUser names the session's user in logs and audit events.
func WithUser(name string) Option {
	return func(s *Session) { s.user = name }
}

// New creates a session rooted at the absolute host directory root. home is
// the virtual home directory; the working directory starts there.
func New(root, home string, opts ...Option) (*Session, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("new session: root %q is not absolute", root)
	}
	s := &Session{
		root: filepath.Clean(root),
		home: vpath.Clean(home),
		user: "anonymous",
	}
	s.cwd = s.home
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the host directory the virtual root maps to.
func (s *Session) Root() string { return s.root }

// Home returns the virtual home directory.
func (s *Session) Home() string { return s.home }

// Cwd returns the virtual working directory.
func (s *Session) Cwd() string { return s.cwd }

// Resolve turns a client path into a canonical virtual path, anchoring
// relative paths at the working directory.
func (s *Session) Resolve(p string) string {
	return s.clean(p, vpath.Absolute(p, s.cwd))
}

// ResolveFromHome turns a client path into a canonical virtual path,
// anchoring relative paths at the home directory.
func (s *Session) ResolveFromHome(p string) string {
	return s.clean(p, vpath.AbsoluteOrHome(p, s.home))
}

func (s *Session) clean(orig, abs string) string {
	if vpath.Escapes(abs) {
		log.Printf("[sandbox] clamped path %q for user %s", logutil.SanitizeForLog(orig), logutil.SanitizeForLog(s.user))
		audit.Record(s.recorder, audit.EventPathClamped, s.user, "path="+orig)
	}
	return vpath.Clean(abs)
}

// HostPath maps a client path to the host filesystem below Root.
func (s *Session) HostPath(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(s.Resolve(p)))
}

// VirtualPath maps a host path back to its virtual path.
func (s *Session) VirtualPath(hostPath string) (string, error) {
	rel, err := filepath.Rel(s.root, filepath.Clean(hostPath))
	if err != nil {
		return "", fmt.Errorf("virtual path of %q: %w", hostPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("virtual path of %q: %w", hostPath, ErrOutsideRoot)
	}
	if rel == "." {
		return vpath.Root, nil
	}
	return vpath.Clean(filepath.ToSlash(rel)), nil
}

// Chdir changes the working directory and returns the new one. It does not
// check that the directory exists.
func (s *Session) Chdir(p string) string {
	s.cwd = s.Resolve(p)
	return s.cwd
}

// Parent returns the virtual parent directory of a client path. The parent
// of "/" is "/".
func (s *Session) Parent(p string) string {
	parent := vpath.Parent(s.Resolve(p))
	if parent == "" {
		return vpath.Root
	}
	return parent
}
