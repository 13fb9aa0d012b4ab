// Copyright (C) 2015-2016  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

// bsgit | the surface-stable error kinds
//
// One struct type per kind, each satisfying error, so callers can
// type-switch on *ChecksumMismatchError etc. instead of matching on message
// text.
package main

import "fmt"

// ChecksumMismatchError: streamed file MD5 != advertised md5 (C3, fatal).
type ChecksumMismatchError struct {
    Project, Package, Name string
    Want, Got              string
}

func (e *ChecksumMismatchError) Error() string {
    return fmt.Sprintf("%s/%s: %s: checksum mismatch: want %s, got %s",
        e.Project, e.Package, e.Name, e.Want, e.Got)
}

// CorruptCommitError: unsupported tree entry (subdir, symlink) found where
// the model requires a flat directory of regular files (C1, C3, C7, fatal).
type CorruptCommitError struct {
    Commit Sha1
    Entry  string
    Reason string
}

func (e *CorruptCommitError) Error() string {
    return fmt.Sprintf("commit %s: %s: %s", e.Commit, e.Entry, e.Reason)
}

// UnmappedEmailError: email -> login lookup missed on push (C4, fatal).
type UnmappedEmailError struct {
    Email string
}

func (e *UnmappedEmailError) Error() string {
    return fmt.Sprintf("%s: no login mapped to this email; run `bsgit usermap <login> %s` first", e.Email, e.Email)
}

// RemoteError: BS answered with a non-2xx status other than the 404
// fallback handled internally by the base-status resolver (C2, fatal).
type RemoteError struct {
    Method, Path string
    Status       int
    Body         string
}

func (e *RemoteError) Error() string {
    return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// NothingToPushError: local ref already at the remote tip (C7, fatal/informational).
type NothingToPushError struct {
    Project, Package string
}

func (e *NothingToPushError) Error() string {
    return fmt.Sprintf("%s/%s: nothing to push - local branch is already at the remote tip", e.Project, e.Package)
}

// NotAChildError: local branch does not descend from the remote tip (C7, fatal).
type NotAChildError struct {
    Local, RemoteTip Sha1
}

func (e *NotAChildError) Error() string {
    return fmt.Sprintf("local %s does not descend from remote tip %s; rebase first", e.Local, e.RemoteTip)
}

// DirtyIndexError: the CAVCS working index has uncommitted changes (C7, fatal).
type DirtyIndexError struct {
    Detail string
}

func (e *DirtyIndexError) Error() string {
    return fmt.Sprintf("index not clean: %s", e.Detail)
}

// BadMergeError: a 2-parent commit's parents don't match (base, previous) (C7, fatal).
type BadMergeError struct {
    Commit Sha1
}

func (e *BadMergeError) Error() string {
    return fmt.Sprintf("commit %s: merge parents match neither the current base nor the previous revision", e.Commit)
}

// NWayMergeError: a commit being pushed has 3+ parents (C7, fatal).
type NWayMergeError struct {
    Commit Sha1
    Nparent int
}

func (e *NWayMergeError) Error() string {
    return fmt.Sprintf("commit %s: %d-way merge not representable as a BS revision", e.Commit, e.Nparent)
}

// BrokenHistoryError: walking first-parent from the local tip never reached
// the remote tracking tip (C7, fatal).
type BrokenHistoryError struct {
    Local, RemoteTip Sha1
}

func (e *BrokenHistoryError) Error() string {
    return fmt.Sprintf("first-parent walk from %s never reached remote tip %s", e.Local, e.RemoteTip)
}

// UnexpectedRevError: the server's new rev differs from previous+1 (C7, fatal).
type UnexpectedRevError struct {
    Want, Got string
}

func (e *UnexpectedRevError) Error() string {
    return fmt.Sprintf("server returned rev %q, expected %q", e.Got, e.Want)
}

// warnGuessedBase prints the GuessedBase warning - never fatal.
func (env *Env) warnGuessedBase(project, pkg, rev string, guessed string) {
    env.warnf("%s/%s@%s: link base revision guessed by timestamp walk: %s", project, pkg, rev, guessed)
}
