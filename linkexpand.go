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

// bsgit | the link expander
//
// Resolves a target srcmd5 that is itself a link (a "link of a link") into a
// synthetic two-parent commit: one parent is the expansion of the link's own
// carrier content, the other is the base it was authored against.
package main

import "fmt"

// LinkExpander drives C6. It shares HistoryBuilder's env and calls back into
// it (hb.build, via loadAndIndex) for the ordinary, non-link-of-link case.
type LinkExpander struct {
    env *Env
    hb  *HistoryBuilder
}

// Expand returns the commit for (targetProject, targetPackage) at
// targetSrcmd5, recursing through a link-of-a-link as needed.
func (le *LinkExpander) Expand(targetProject, targetPkg, targetSrcmd5 string, depth int) (Sha1, error) {
    server, err := HostOf(le.env.APIBase)
    if err != nil {
        return Sha1{}, err
    }

    if commit, found, err := le.env.Cache.RevisionCommit(server, targetProject, targetPkg, targetSrcmd5); err != nil {
        return Sha1{}, err
    } else if found {
        return commit, nil
    }

    entries, _, bySrcmd5, err := le.hb.loadAndIndex(targetProject, targetPkg)
    if err != nil {
        return Sha1{}, err
    }

    // step 1: an ordinary revision of the target already carries this
    // srcmd5 - recurse into C5, which itself calls back into C6 for this
    // revision's own base if it too turns out to be a link.
    if e, ok := bySrcmd5[targetSrcmd5]; ok {
        commit, err := le.hb.build(server, targetProject, targetPkg, entries, e.idx, depth)
        if err != nil {
            return Sha1{}, err
        }
        return commit, nil
    }

    // step 2: targetSrcmd5 is not a revision's own srcmd5 - it names an
    // expansion point reached only by querying expand=1 directly.
    status, err := le.env.Client.ListDir(targetProject, targetPkg, ListDirOpts{Rev: targetSrcmd5, Expand: true})
    if err != nil {
        return Sha1{}, err
    }
    if status.Link == nil {
        return Sha1{}, fmt.Errorf("%s/%s@%s: expected a link status to expand", targetProject, targetPkg, targetSrcmd5)
    }

    parentCommit, err := le.Expand(targetProject, targetPkg, status.Link.Lsrcmd5, depth)
    if err != nil {
        return Sha1{}, err
    }

    baseRev := status.Link.Baserev
    if baseRev == "" {
        guess, err := le.hb.guessBaserev(status.Link, le.timeOf(bySrcmd5, status.Link.Lsrcmd5))
        if err != nil {
            return Sha1{}, err
        }
        baseRev = guess
    }

    var baseCommit Sha1
    if baseRev != "" {
        baseCommit, err = le.Expand(status.Link.TargetProject, status.Link.TargetPackage, baseRev, depth)
        if err != nil {
            return Sha1{}, err
        }
    }

    tree, err := le.hb.importer.DeriveTree(targetProject, targetPkg, targetSrcmd5, effectiveSrcmd5(status), status.Files)
    if err != nil {
        return Sha1{}, err
    }

    parentEntry := bySrcmd5[status.Link.Lsrcmd5]
    user, t, rev := "unknown", int64(0), targetSrcmd5
    if parentEntry != nil {
        user, t, rev = parentEntry.rev.User, parentEntry.rev.Time, parentEntry.rev.Rev
    }
    name, email, err := le.hb.users.NameEmail(user)
    if err != nil {
        return Sha1{}, err
    }

    commit, err := le.hb.emitCommit(tree, parentCommit, true, baseCommit, !baseCommit.IsNull(), name, email, t,
        fmt.Sprintf("Expanded %s(%s)", targetPkg, rev))
    if err != nil {
        return Sha1{}, err
    }

    if err := le.env.Cache.PutRevisionCommit(server, targetProject, targetPkg, targetSrcmd5, commit); err != nil {
        return Sha1{}, err
    }

    // drive C5 for the link package so its ordinary history is also present locally.
    if _, err := le.hb.Sync(targetProject, targetPkg, depth); err != nil {
        return Sha1{}, err
    }

    return commit, nil
}

func (le *LinkExpander) timeOf(bySrcmd5 map[string]*historyEntry, srcmd5 string) int64 {
    if e, ok := bySrcmd5[srcmd5]; ok {
        return e.rev.Time
    }
    return 0
}
