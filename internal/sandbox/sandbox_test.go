package sandbox

import (
	"errors"
	"path/filepath"
	"testing"
)

type fakeRecorder struct {
	events []string
}

func (f *fakeRecorder) Record(eventType, subject, details string) error {
	f.events = append(f.events, eventType+"|"+subject+"|"+details)
	return nil
}

func newSession(t *testing.T, home string, opts ...Option) *Session {
	t.Helper()
	s, err := New("/srv/pftpd", home, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNew(t *testing.T) {
	if _, err := New("relative/root", "/"); err == nil {
		t.Error("expected error for relative root")
	}

	s := newSession(t, "home/u/../user/")
	if s.Home() != "/home/user" {
		t.Errorf("Home = %q", s.Home())
	}
	if s.Cwd() != "/home/user" {
		t.Errorf("Cwd = %q", s.Cwd())
	}
	if s.Root() != "/srv/pftpd" {
		t.Errorf("Root = %q", s.Root())
	}
}

func TestResolve(t *testing.T) {
	s := newSession(t, "/home/u")
	tests := []struct {
		in, want string
	}{
		{".", "/home/u"},
		{"docs/a.txt", "/home/u/docs/a.txt"},
		{"../v", "/home/v"},
		{"/etc/passwd", "/etc/passwd"},
		{"../../../../etc", "/etc"},
		{"./a/./b/../c", "/home/u/a/c"},
	}
	for _, tt := range tests {
		if got := s.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveFromHome_VirtualRoot(t *testing.T) {
	s := newSession(t, "/")
	s.Chdir("/fs/storage")

	// relative names stay relative to the virtual root, not the cwd
	if got := s.ResolveFromHome("saf"); got != "/saf" {
		t.Errorf("ResolveFromHome(saf) = %q, want /saf", got)
	}
	if got := s.ResolveFromHome("."); got != "/" {
		t.Errorf("ResolveFromHome(.) = %q, want /", got)
	}

	h := newSession(t, "/home/u")
	if got := h.ResolveFromHome("a/b"); got != "/home/u/a/b" {
		t.Errorf("ResolveFromHome(a/b) = %q", got)
	}
	if got := h.ResolveFromHome("/."); got != "/home/u" {
		t.Errorf("ResolveFromHome(/.) = %q", got)
	}
}

func TestHostPath_StaysInsideRoot(t *testing.T) {
	s := newSession(t, "/home/u")
	tests := []struct {
		in, want string
	}{
		{"a.txt", "/srv/pftpd/home/u/a.txt"},
		{"/", "/srv/pftpd"},
		{"../../../../etc/shadow", "/srv/pftpd/etc/shadow"},
		{"/../..", "/srv/pftpd"},
	}
	for _, tt := range tests {
		if got := s.HostPath(tt.in); got != filepath.FromSlash(tt.want) {
			t.Errorf("HostPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVirtualPath(t *testing.T) {
	s := newSession(t, "/")
	got, err := s.VirtualPath("/srv/pftpd/home/u/x")
	if err != nil || got != "/home/u/x" {
		t.Errorf("VirtualPath = %q, %v", got, err)
	}
	got, err = s.VirtualPath("/srv/pftpd")
	if err != nil || got != "/" {
		t.Errorf("VirtualPath(root) = %q, %v", got, err)
	}
	if _, err := s.VirtualPath("/srv/other"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("expected ErrOutsideRoot, got %v", err)
	}
	if _, err := s.VirtualPath("/srv/pftpd/../pftpd-evil"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("expected ErrOutsideRoot for sibling, got %v", err)
	}
}

func TestChdirAndParent(t *testing.T) {
	s := newSession(t, "/home/u")
	if got := s.Chdir("docs"); got != "/home/u/docs" {
		t.Errorf("Chdir = %q", got)
	}
	if got := s.Chdir(".."); got != "/home/u" {
		t.Errorf("Chdir(..) = %q", got)
	}
	if got := s.Parent("docs/a.txt"); got != "/home/u/docs" {
		t.Errorf("Parent = %q", got)
	}
	if got := s.Parent("/a"); got != "/" {
		t.Errorf("Parent(/a) = %q", got)
	}
	if got := s.Parent("/"); got != "/" {
		t.Errorf("Parent(/) = %q", got)
	}
}

func TestClampedPathIsAudited(t *testing.T) {
	rec := &fakeRecorder{}
	s := newSession(t, "/home/u", WithRecorder(rec), WithUser("alice"))

	s.Resolve("docs/../a")
	if len(rec.events) != 0 {
		t.Fatalf("unexpected events for contained path: %v", rec.events)
	}

	s.Resolve("../../../etc/passwd")
	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %v", rec.events)
	}
	if rec.events[0] != "path_clamped|alice|path=../../../etc/passwd" {
		t.Errorf("unexpected event %q", rec.events[0])
	}
}
