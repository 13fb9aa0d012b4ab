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

// bsgit | the pusher
//
// Walks first-parent from the local branch tip back to the remote-tracking
// tip, classifies each commit's parent shape, and replays it as a BS
// revision, uploading changed blobs as it goes.
package main

import (
    "bytes"
    "crypto/md5"
    "fmt"
    "strconv"

    cavcsgit "github.com/opensuse/bsgit/internal/git"
)

// pushRecord is one commit queued for replay as a BS revision.
type pushRecord struct {
    commit  Sha1
    message string
    baserev string // non-empty only when this commit's shape already names a base
}

// Pusher drives C7, sharing the History Builder's env/importer/users and its
// uptodate machinery (C5, C6) for classifying merge commits and re-syncing
// after a successful push.
type Pusher struct {
    env   *Env
    hb    *HistoryBuilder
    users *UserMapper
}

func NewPusher(env *Env, hb *HistoryBuilder) *Pusher {
    return &Pusher{env: env, hb: hb, users: hb.users}
}

// Push replays every local commit between the remote-tracking tip and
// localBranch's tip as new BS revisions.
func (p *Pusher) Push(project, pkg, localBranch string, depth int) error {
    depth = normalizeDepth(depth)
    remoteTip, err := p.hb.Sync(project, pkg, depth)
    if err != nil {
        return err
    }

    localTip, err := p.resolveBranch(localBranch)
    if err != nil {
        return err
    }

    if localTip == remoteTip {
        return &NothingToPushError{project, pkg}
    }

    isAnc, err := p.hb.isAncestor(remoteTip, localTip)
    if err != nil {
        return err
    }
    if !isAnc {
        return &NotAChildError{localTip, remoteTip}
    }

    if err := p.requireClean(); err != nil {
        return err
    }

    records, err := p.walkFirstParent(project, pkg, localTip, remoteTip, depth)
    if err != nil {
        return err
    }

    seedStatus, err := p.env.Client.ListDir(project, pkg, ListDirOpts{Rev: "latest", Linkrev: "base", Expand: true})
    if err != nil {
        if _, ok := err.(*NotFoundError); !ok {
            return err
        }
        seedStatus = &Status{}
    }
    seed := ""
    if seedStatus.Link != nil {
        seed = seedStatus.Link.Baserev
        if seed == "" {
            history, err := p.env.Client.History(project, pkg)
            if err != nil {
                return err
            }
            seed, err = p.hb.guessBaserev(seedStatus.Link, history[0].Time)
            if err != nil {
                return err
            }
            if seed != "" {
                p.env.warnGuessedBase(project, pkg, history[0].Rev, seed)
            }
        }
    }
    backfillBaserev(records, seed)

    status, err := p.env.Client.ListDir(project, pkg, ListDirOpts{Rev: "latest"})
    if err != nil {
        return err
    }

    for _, rec := range records {
        prevRev := status.Rev
        status, err = p.pushOne(project, pkg, status, rec)
        if err != nil {
            return err
        }
        if want := nextRev(prevRev); status.Rev != want {
            return &UnexpectedRevError{Want: want, Got: status.Rev}
        }
    }

    p.env.Client.InvalidateLatest(project, pkg)
    newTip, err := p.hb.Sync(project, pkg, depth)
    if err != nil {
        return err
    }
    return p.hardReset(localBranch, newTip)
}

func (p *Pusher) resolveBranch(branch string) (Sha1, error) {
    gerr, out, stderr := p.env.CAVCS.Run("rev-parse", "--verify", branch)
    if gerr != nil {
        return Sha1{}, fmt.Errorf("resolve %s: %s", branch, stderr)
    }
    return Sha1Parse(out)
}

func (p *Pusher) requireClean() error {
    gerr, _, stderr := p.env.CAVCS.Run("update-index", "--refresh")
    if gerr != nil {
        return &DirtyIndexError{Detail: stderr}
    }
    return nil
}

// walkFirstParent classifies each commit's parent shape back to stop,
// returning records in chronological (oldest-first) order.
func (p *Pusher) walkFirstParent(project, pkg string, tip, stop Sha1, depth int) ([]pushRecord, error) {
    var records []pushRecord
    cur := tip
    for cur != stop {
        gcommit, err := p.env.Repo.LookupCommit(cur.AsOid())
        if err != nil {
            return nil, err
        }

        var next Sha1
        rec := pushRecord{commit: cur, message: gcommit.Message()}

        switch n := gcommit.ParentCount(); n {
        case 0:
            return nil, &BrokenHistoryError{tip, stop}
        case 1:
            next = Sha1FromOid(gcommit.ParentId(0))
        case 2:
            p0 := Sha1FromOid(gcommit.ParentId(0))
            p1 := Sha1FromOid(gcommit.ParentId(1))
            prev, baserev, err := p.classifyMergeParents(project, pkg, cur, p0, p1, depth)
            if err != nil {
                return nil, err
            }
            next, rec.baserev = prev, baserev
        default:
            return nil, &NWayMergeError{Commit: cur, Nparent: int(n)}
        }

        records = append(records, rec)
        cur = next
    }

    for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
        records[i], records[j] = records[j], records[i]
    }
    return records, nil
}

// classifyMergeParents determines which of a 2-parent commit's parents is
// the "previous revision" parent, by comparing the other against the base
// commit the history builder/link expander currently derive for this
// package's link.
func (p *Pusher) classifyMergeParents(project, pkg string, commit, p0, p1 Sha1, depth int) (prev Sha1, baserev string, err error) {
    status, err := p.env.Client.ListDir(project, pkg, ListDirOpts{Rev: "latest", Linkrev: "base", Expand: true})
    if err != nil {
        if _, ok := err.(*NotFoundError); ok {
            return Sha1{}, "", &BadMergeError{Commit: commit}
        }
        return Sha1{}, "", err
    }
    if status.Link == nil || status.Link.Baserev == "" {
        return Sha1{}, "", &BadMergeError{Commit: commit}
    }

    baseCommit, err := p.hb.linkExpander.Expand(status.Link.TargetProject, status.Link.TargetPackage, status.Link.Baserev, depth)
    if err != nil {
        return Sha1{}, "", err
    }

    switch baseCommit {
    case p0:
        return p1, status.Link.Baserev, nil
    case p1:
        return p0, status.Link.Baserev, nil
    default:
        return Sha1{}, "", &BadMergeError{Commit: commit}
    }
}

// backfillBaserev fills records whose shape didn't name a base: each
// carries forward the nearest earlier baserev, seeded from the package's
// current remote link-info.
func backfillBaserev(records []pushRecord, seed string) {
    prev := seed
    for i := range records {
        if records[i].baserev == "" {
            records[i].baserev = prev
        } else {
            prev = records[i].baserev
        }
    }
}

func nextRev(prev string) string {
    n, err := strconv.Atoi(prev)
    if err != nil {
        return prev
    }
    return strconv.Itoa(n + 1)
}

// pushOne uploads a single commit's changed files and submits commitfilelist.
func (p *Pusher) pushOne(project, pkg string, old *Status, rec pushRecord) (*Status, error) {
    gcommit, err := p.env.Repo.LookupCommit(rec.commit.AsOid())
    if err != nil {
        return nil, err
    }
    tree, err := gcommit.Tree()
    if err != nil {
        return nil, err
    }
    odb, err := p.env.Repo.Odb()
    if err != nil {
        return nil, err
    }

    oldByName := map[string]string{}
    for _, f := range old.Files {
        oldByName[f.Name] = f.MD5
    }

    var files []FileEntry
    n := tree.EntryCount()
    for i := uint64(0); i < n; i++ {
        e := tree.EntryByIndex(i)
        if e.Type == cavcsgit.ObjectTree {
            return nil, &CorruptCommitError{rec.commit, e.Name, "subdirectory not representable"}
        }
        if e.Type != cavcsgit.ObjectBlob {
            return nil, &CorruptCommitError{rec.commit, e.Name, fmt.Sprintf("unsupported entry type %v", e.Type)}
        }
        if e.Filemode != 0100644 {
            p.env.warnf("%s/%s: %s: mode %o not 644, recording as 644", project, pkg, e.Name, e.Filemode)
        }

        md5sum := ""
        if oldMD5, ok := oldByName[e.Name]; ok {
            if oldBlob, found, err := p.env.Cache.BlobSha1(oldMD5); err != nil {
                return nil, err
            } else if found && oldBlob == Sha1FromOid(e.Id) {
                md5sum = oldMD5
            }
        }

        if md5sum == "" {
            obj, err := odb.Read(e.Id)
            if err != nil {
                return nil, err
            }
            sum := md5.Sum(obj.Data())
            md5sum = fmt.Sprintf("%x", sum)

            if err := p.env.Client.PutFile(project, pkg, e.Name, bytes.NewReader(obj.Data())); err != nil {
                return nil, err
            }
            if err := p.env.Cache.PutBlobSha1(md5sum, Sha1FromOid(e.Id)); err != nil {
                return nil, err
            }
        }

        files = append(files, FileEntry{Name: e.Name, MD5: md5sum})
    }

    committerSig, err := p.env.Repo.DefaultSignature()
    if err != nil {
        return nil, err
    }
    committerLogin, err := p.users.LoginFor(committerSig.Email)
    if err != nil {
        return nil, err
    }

    if authorSig := gcommit.Author(); authorSig != nil {
        if authorLogin, err := p.users.LoginFor(authorSig.Email); err == nil && authorLogin != committerLogin {
            p.env.warnf("%s/%s: commit %s authored by %s, attributing to committer %s",
                project, pkg, rec.commit, authorLogin, committerLogin)
        }
    }

    keeplink := rec.baserev != ""
    return p.env.Client.CommitFilelist(project, pkg, files, committerLogin, rec.message, rec.baserev, keeplink)
}

func (p *Pusher) hardReset(localBranch string, tip Sha1) error {
    if gerr, _, stderr := p.env.CAVCS.Run("update-ref", "refs/heads/"+localBranch, tip.String()); gerr != nil {
        return fmt.Errorf("update-ref %s: %s", localBranch, stderr)
    }

    headGerr, headOut, _ := p.env.CAVCS.Run("symbolic-ref", "--short", "HEAD")
    if headGerr == nil && headOut == localBranch {
        if gerr, _, stderr := p.env.CAVCS.Run("reset", "--hard", tip.String()); gerr != nil {
            return fmt.Errorf("reset --hard %s: %s", tip, stderr)
        }
    }
    return nil
}
