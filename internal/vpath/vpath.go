package vpath

import (
	"fmt"
	"strings"
	"time"
)

// Root is the virtual root directory.
const Root = "/"

// Segments is a normalized path: no empty, "." or ".." elements.
type Segments []string

// String renders the segments as a rooted path.
func (s Segments) String() string {
	return Render(s)
}

// ContractError reports a call whose precondition was violated by the caller.
type ContractError struct {
	Op   string
	Path string
	Msg  string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("vpath: %s(%q): %s", e.Op, e.Path, e.Msg)
}

// Absolute resolves rel against workingDir. Absolute paths are returned as
// is, "." and "./" yield workingDir. An empty rel is treated like ".".
func Absolute(rel, workingDir string) string {
	if strings.HasPrefix(rel, "/") {
		return rel
	}
	if rel == "" || rel == "." || rel == "./" {
		return workingDir
	}
	return workingDir + "/" + rel
}

// AbsoluteOrHome resolves path against homeDir.
//
// When homeDir is the virtual root, relative paths stay relative; virtual
// folders depend on it. An empty path is treated like ".".
func AbsoluteOrHome(path, homeDir string) string {
	if path == "" || path == "." || path == "/." {
		return homeDir
	}
	if !strings.HasPrefix(path, "/") && homeDir != Root {
		return homeDir + "/" + path
	}
	return path
}

// Normalize splits path on "/" and collapses "." and ".." elements. A ".."
// with nothing left to remove is dropped.
func Normalize(path string) Segments {
	parts := strings.Split(path, "/")
	segs := make(Segments, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, part)
		}
	}
	return segs
}

// Escapes reports whether Normalize would drop a ".." because it tried to
// climb above the root.
func Escapes(path string) bool {
	depth := 0
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
		case "..":
			if depth == 0 {
				return true
			}
			depth--
		default:
			depth++
		}
	}
	return false
}

// Render joins segs into a rooted path. No segments render as "/".
func Render(segs Segments) string {
	return "/" + strings.Join(segs, "/")
}

// Clean is Render(Normalize(path)).
func Clean(path string) string {
	return Render(Normalize(path))
}

// Parent returns everything before the last "/" of path, so the parent of
// "/a" is "". It panics with a *ContractError if path has no "/".
func Parent(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		panic(&ContractError{Op: "Parent", Path: path, Msg: "path has no separator"})
	}
	return path[:i]
}

// touchLayout is the [[CC]YY]MMDDhhmm[.ss] form accepted by touch -t.
const touchLayout = "0601021504.05"

// TouchDate formats t in UTC for use as a touch -t argument.
func TouchDate(t time.Time) string {
	return t.UTC().Format(touchLayout)
}
