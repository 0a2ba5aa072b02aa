// Package vpath resolves client-supplied paths against a session's virtual
// filesystem.
//
// Every path-bearing command of a transfer session (CWD, LIST, RETR, STOR,
// MKD, RNFR/RNTO and their SFTP equivalents) passes its argument through this
// package before the storage layer touches anything. The functions are pure:
// they take strings, return new values and never consult the host
// filesystem, so they are safe to call from any goroutine.
//
// # Resolution
//
//   - [Absolute] anchors a relative path at the working directory.
//   - [AbsoluteOrHome] anchors a relative path at the home directory, except
//     when the home directory is the virtual root "/". In that case relative
//     paths are returned as they are so that virtual folders (/fs, /saf, ...)
//     keep working for clients that send bare names. Do not change this.
//   - [Normalize] splits a path into [Segments] and collapses "." and "..".
//     A ".." at the top is dropped, so no input can climb above "/".
//   - [Render] joins segments back into a rooted path.
//   - [Parent] cuts a rooted path at its last "/".
//
// # Contract violations
//
// [Parent] requires a path that contains a "/". Passing anything else is a
// programming error in the caller and panics with a [*ContractError].
package vpath
