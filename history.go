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

// bsgit | the history builder
//
// Walks a package's revision history newest-to-oldest, materializing each
// revision as a CAVCS commit; emission naturally happens oldest-first
// because a commit can't be built before its parent is.
package main

import (
    "fmt"
    "os"
    "strings"

    "github.com/opensuse/bsgit/internal/shell"
)

// historyEntry is one revision, indexed within a package's history walk.
type historyEntry struct {
    rev    *Revision
    idx    int
    commit Sha1
    have   bool
}

// HistoryBuilder drives C5, and owns the C6 Link Expander since the two
// recurse into each other (C5 resolves a link's base via C6; C6 resolves an
// ordinary revision of the link-of-a-link's target via C5).
type HistoryBuilder struct {
    env          *Env
    importer     *Importer
    users        *UserMapper
    linkExpander *LinkExpander
}

func NewHistoryBuilder(env *Env) *HistoryBuilder {
    hb := &HistoryBuilder{
        env:      env,
        importer: NewImporter(env),
        users:    NewUserMapper(env),
    }
    hb.linkExpander = &LinkExpander{env: env, hb: hb}
    return hb
}

// normalizeDepth turns the CLI/Env notion of depth (0 == unbounded) into
// build()'s internal sentinel (negative == unbounded, decremented while
// positive, stop at 0): build only recurses `if depthLeft != 0`, so a plain
// 0 passed straight through would stop at the tip with no parent at all.
func normalizeDepth(depth int) int {
    if depth <= 0 {
        return -1
    }
    return depth
}

// Sync fetches and materializes project/package's revision history up to
// depth revisions back from the tip (0 == unbounded), updates the
// remote-tracking ref, and returns the tip commit.
func (hb *HistoryBuilder) Sync(project, pkg string, depth int) (Sha1, error) {
    server, err := HostOf(hb.env.APIBase)
    if err != nil {
        return Sha1{}, err
    }

    entries, _, _, err := hb.loadAndIndex(project, pkg)
    if err != nil {
        return Sha1{}, err
    }

    tip, err := hb.build(server, project, pkg, entries, 0, normalizeDepth(depth))
    if err != nil {
        return Sha1{}, err
    }

    if err := hb.env.UpdateRemoteRef(server, project, pkg, tip); err != nil {
        return Sha1{}, err
    }
    return tip, nil
}

// loadAndIndex fetches history and indexes it by rev and by srcmd5: on a
// duplicate srcmd5, the later (older, since history is newest-first) entry
// wins, matching "the index maps ... to the first such entry" read
// chronologically. Cached commit hashes are pre-populated unless --force is
// set.
func (hb *HistoryBuilder) loadAndIndex(project, pkg string) ([]*historyEntry, map[string]*historyEntry, map[string]*historyEntry, error) {
    server, err := HostOf(hb.env.APIBase)
    if err != nil {
        return nil, nil, nil, err
    }

    history, err := hb.env.Client.History(project, pkg)
    if err != nil {
        return nil, nil, nil, err
    }
    if len(history) == 0 {
        return nil, nil, nil, fmt.Errorf("%s/%s: empty history", project, pkg)
    }

    entries := make([]*historyEntry, len(history))
    byRev := map[string]*historyEntry{}
    bySrcmd5 := map[string]*historyEntry{}
    for i, rev := range history {
        e := &historyEntry{rev: rev, idx: i}
        entries[i] = e
        if _, dup := byRev[rev.Rev]; !dup {
            byRev[rev.Rev] = e
        }
        bySrcmd5[rev.Srcmd5] = e
    }

    for _, e := range entries {
        commit, found, err := hb.env.Cache.RevisionCommit(server, project, pkg, e.rev.Rev)
        if err != nil {
            return nil, nil, nil, err
        }
        if found {
            if hb.env.Force {
                if err := hb.env.Cache.DelRevisionCommit(server, project, pkg, e.rev.Rev); err != nil {
                    return nil, nil, nil, err
                }
            } else {
                e.commit, e.have = commit, true
            }
        }
    }

    return entries, byRev, bySrcmd5, nil
}

// build materializes entries[i] (and, as needed, its ancestors) and returns
// its commit hash.
func (hb *HistoryBuilder) build(server, project, pkg string, entries []*historyEntry, i int, depthLeft int) (Sha1, error) {
    e := entries[i]
    if e.have {
        return e.commit, nil
    }

    var parent Sha1
    haveParent := false
    if i+1 < len(entries) {
        older := entries[i+1]
        if depthLeft != 0 {
            next := depthLeft
            if next > 0 {
                next--
            }
            c, err := hb.build(server, project, pkg, entries, i+1, next)
            if err != nil {
                return Sha1{}, err
            }
            parent, haveParent = c, true
        } else if older.have {
            // depth exhausted, but the cache already reaches back this far:
            // reconnect instead of truncating the parent chain.
            parent, haveParent = older.commit, true
        }
    }

    status, err := hb.baseStatus(project, pkg, e.rev)
    if err != nil {
        return Sha1{}, err
    }

    tree, err := hb.importer.DeriveTree(project, pkg, e.rev.Rev, effectiveSrcmd5(status), status.Files)
    if err != nil {
        return Sha1{}, err
    }

    var base Sha1
    haveBase := false
    if status.Link != nil && status.Link.Baserev != "" {
        b, err := hb.linkExpander.Expand(status.Link.TargetProject, status.Link.TargetPackage, status.Link.Baserev, depthLeft)
        if err != nil {
            return Sha1{}, err
        }
        already := false
        if haveParent {
            already, err = hb.isAncestor(b, parent)
            if err != nil {
                return Sha1{}, err
            }
        }
        if !already {
            base, haveBase = b, true
        }
    }

    name, email, err := hb.users.NameEmail(e.rev.User)
    if err != nil {
        return Sha1{}, err
    }

    commit, err := hb.emitCommit(tree, parent, haveParent, base, haveBase, name, email, e.rev.Time, e.rev.Comment)
    if err != nil {
        return Sha1{}, err
    }

    if err := hb.env.Cache.PutRevisionCommit(server, project, pkg, e.rev.Rev, commit); err != nil {
        return Sha1{}, err
    }
    e.commit, e.have = commit, true
    return commit, nil
}

// effectiveSrcmd5 picks the srcmd5 that actually matches status.Files: the
// expanded tree hash when the status is an expand=1 response for a link,
// the plain srcmd5 otherwise.
func effectiveSrcmd5(status *Status) string {
    if status.Xsrcmd5 != "" {
        return status.Xsrcmd5
    }
    return status.Srcmd5
}

// baseStatus resolves a revision's Package Status, falling back to the
// unexpanded listing when the expand=1 query 404s.
func (hb *HistoryBuilder) baseStatus(project, pkg string, rev *Revision) (*Status, error) {
    status, err := hb.env.Client.ListDir(project, pkg, ListDirOpts{Rev: rev.Rev, Linkrev: "base", Expand: true})
    expanded := true
    if err != nil {
        if _, ok := err.(*NotFoundError); !ok {
            return nil, err
        }
        expanded = false
        status, err = hb.env.Client.ListDir(project, pkg, ListDirOpts{Rev: rev.Rev})
        if err != nil {
            return nil, err
        }
    }

    if status.Link == nil || status.Link.Baserev != "" {
        return status, nil
    }

    guess, err := hb.guessBaserev(status.Link, rev.Time)
    if err != nil {
        return nil, err
    }
    if guess == "" {
        return status, nil
    }
    status.Link.Baserev = guess
    hb.env.warnGuessedBase(project, pkg, rev.Rev, guess)

    if !expanded {
        retried, err := hb.env.Client.ListDir(project, pkg, ListDirOpts{Rev: rev.Rev, Linkrev: guess, Expand: true})
        if err != nil {
            if _, ok := err.(*NotFoundError); ok {
                return status, nil // stick with the unexpanded listing
            }
            return nil, err
        }
        retried.Link.Baserev = guess
        return retried, nil
    }
    return status, nil
}

// guessBaserev picks a baserev for a link missing one, given the timestamp
// (sourceTime) of the revision the link appears in: an explicit target rev
// match first, then the newest target revision at or before sourceTime.
func (hb *HistoryBuilder) guessBaserev(link *LinkInfo, sourceTime int64) (string, error) {
    if link.Baserev != "" {
        return link.Baserev, nil
    }

    targetHistory, err := hb.env.Client.History(link.TargetProject, link.TargetPackage)
    if err != nil {
        return "", err
    }

    if link.Rev != "" {
        for _, r := range targetHistory {
            if r.Rev == link.Rev {
                return r.Srcmd5, nil
            }
        }
    }

    for _, r := range targetHistory {
        if r.Time <= sourceTime {
            return r.Srcmd5, nil
        }
    }
    return "", nil
}

// isAncestor reports whether ancestor is an ancestor of (or equal to) commit.
func (hb *HistoryBuilder) isAncestor(ancestor, commit Sha1) (bool, error) {
    if ancestor.IsNull() || commit.IsNull() {
        return false, nil
    }
    gerr, _, _ := hb.env.CAVCS.Run("merge-base", "--is-ancestor", ancestor.String(), commit.String())
    return gerr == nil, nil
}

// emitCommit builds a commit over tree with the given (optional) parents,
// stamping author/committer identity and time via the CAVCS child's
// environment, set immediately before the child is launched.
func (hb *HistoryBuilder) emitCommit(tree Sha1, parent Sha1, haveParent bool, base Sha1, haveBase bool, name, email string, when int64, message string) (Sha1, error) {
    argv := []interface{}{"commit-tree", tree.String()}
    if haveParent {
        argv = append(argv, "-p", parent.String())
    }
    if haveBase {
        argv = append(argv, "-p", base.String())
    }

    date := fmt.Sprintf("%d +0000", when)
    env := map[string]string{}
    for _, e := range os.Environ() {
        i := strings.Index(e, "=")
        if i == -1 {
            continue
        }
        env[e[:i]] = e[i+1:]
    }
    env["GIT_AUTHOR_NAME"] = name
    env["GIT_AUTHOR_EMAIL"] = email
    env["GIT_AUTHOR_DATE"] = date
    env["GIT_COMMITTER_NAME"] = name
    env["GIT_COMMITTER_EMAIL"] = email
    env["GIT_COMMITTER_DATE"] = date
    argv = append(argv, shell.RunWith{Stdin: message, Env: env})

    out := hb.env.CAVCS.X(argv...)
    return Sha1Parse(out)
}
