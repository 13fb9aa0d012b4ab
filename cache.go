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

// bsgit | the persistent mapping cache: BS content/identity hashes bound to
// local CAVCS object hashes
//
// One bolt.DB bucket, keyed by namespaced strings ("blob <md5>", "tree
// <srcmd5>", "revision <server>/<project>/<package>/<rev>", "commit
// <commit-hash>", "email <login>", "realname <login>", "login <email>").
package main

import (
    "crypto/md5"
    "fmt"
    "sort"
    "strings"

    "github.com/boltdb/bolt"
    "github.com/pkg/errors"

    cavcsgit "github.com/opensuse/bsgit/internal/git"
)

var bucketMapping = []byte("mapping")

// Cache is the open mapping-cache handle: one bolt.DB file plus (for
// reindex only) a read-only git2go handle onto the same CAVCS repository.
type Cache struct {
    db   *bolt.DB
    repo *cavcsgit.Repository // used by Reindex(); nil is fine if Reindex is never called
}

// OpenCache opens (creating if absent) the bolt-backed cache file at path.
// repo may be nil if the caller never intends to call Reindex.
func OpenCache(path string, repo *cavcsgit.Repository) (*Cache, error) {
    db, err := bolt.Open(path, 0600, nil)
    if err != nil {
        return nil, errors.Wrapf(err, "failed to open mapping cache %q", path)
    }
    err = db.Update(func(tx *bolt.Tx) error {
        _, err := tx.CreateBucketIfNotExists(bucketMapping)
        return err
    })
    if err != nil {
        db.Close()
        return nil, errors.Wrapf(err, "failed to initialize mapping cache %q", path)
    }
    return &Cache{db: db, repo: repo}, nil
}

// Close releases the cache handle. Must run on every exit path - callers
// do `defer cache.Close()` right after OpenCache.
func (c *Cache) Close() error {
    return errors.Wrap(c.db.Close(), "error closing mapping cache")
}

// --- raw namespaced key/value access --------------------------------------

func key(ns, k string) []byte {
    return []byte(ns + " " + k)
}

func (c *Cache) get(ns, k string) (val []byte, found bool, err error) {
    err = c.db.View(func(tx *bolt.Tx) error {
        v := tx.Bucket(bucketMapping).Get(key(ns, k))
        if v != nil {
            val = append([]byte(nil), v...)
            found = true
        }
        return nil
    })
    return val, found, errors.Wrapf(err, "cache get %s %q", ns, k)
}

func (c *Cache) put(ns, k string, val []byte) error {
    err := c.db.Update(func(tx *bolt.Tx) error {
        return tx.Bucket(bucketMapping).Put(key(ns, k), val)
    })
    return errors.Wrapf(err, "cache put %s %q", ns, k)
}

func (c *Cache) del(ns, k string) error {
    err := c.db.Update(func(tx *bolt.Tx) error {
        return tx.Bucket(bucketMapping).Delete(key(ns, k))
    })
    return errors.Wrapf(err, "cache del %s %q", ns, k)
}

func (c *Cache) contains(ns, k string) (bool, error) {
    _, found, err := c.get(ns, k)
    return found, err
}

// Keys returns every key stored under namespace ns (without the "ns "
// prefix), sorted. Used by the `dump` command.
func (c *Cache) Keys(ns string) ([]string, error) {
    prefix := []byte(ns + " ")
    var keys []string
    err := c.db.View(func(tx *bolt.Tx) error {
        cur := tx.Bucket(bucketMapping).Cursor()
        for k, _ := cur.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = cur.Next() {
            keys = append(keys, strings.TrimPrefix(string(k), string(prefix)))
        }
        return nil
    })
    sort.Strings(keys)
    return keys, errors.Wrapf(err, "cache keys %s", ns)
}

// --- domain helpers --------------------------------------------------

func (c *Cache) BlobSha1(md5sum string) (Sha1, bool, error) {
    return c.getSha1("blob", md5sum)
}

func (c *Cache) PutBlobSha1(md5sum string, sha1 Sha1) error {
    return c.put("blob", md5sum, []byte(sha1.String()))
}

func (c *Cache) TreeSha1(srcmd5 string) (Sha1, bool, error) {
    return c.getSha1("tree", srcmd5)
}

func (c *Cache) PutTreeSha1(srcmd5 string, sha1 Sha1) error {
    return c.put("tree", srcmd5, []byte(sha1.String()))
}

// revisionKey builds the "<server>/<project>/<package>/<rev-or-srcmd5>" part
// of a "revision ..." cache key.
func revisionKey(server, project, pkg, rev string) string {
    return fmt.Sprintf("%s/%s/%s/%s", server, project, pkg, rev)
}

func (c *Cache) RevisionCommit(server, project, pkg, rev string) (Sha1, bool, error) {
    return c.getSha1("revision", revisionKey(server, project, pkg, rev))
}

func (c *Cache) PutRevisionCommit(server, project, pkg, rev string, commit Sha1) error {
    return c.put("revision", revisionKey(server, project, pkg, rev), []byte(commit.String()))
}

// DelRevisionCommit drops a revision mapping - the one deletion the
// importer performs, on --force, so an interrupted forced run cannot
// resurrect the superseded commit on its next invocation.
func (c *Cache) DelRevisionCommit(server, project, pkg, rev string) error {
    return c.del("revision", revisionKey(server, project, pkg, rev))
}

// CommitSeen reports whether the "commit <hash>" sentinel is present - i.e.
// whether this commit's component blobs/trees are already indexed.
func (c *Cache) CommitSeen(commit Sha1) (bool, error) {
    return c.contains("commit", commit.String())
}

// MarkCommitSeen records the sentinel, with the commit's tree hash as the
// (otherwise unused) value: this commit's component MD5s are already
// indexed.
func (c *Cache) MarkCommitSeen(commit Sha1, tree Sha1) error {
    return c.put("commit", commit.String(), []byte(tree.String()))
}

func (c *Cache) Email(login string) (string, bool, error) {
    return c.getString("email", login)
}

// PutEmail sets "email <login>" and, to keep the login/email mapping
// bijective, also sets "login <email>".
func (c *Cache) PutEmail(login, email string) error {
    if err := c.put("email", login, []byte(email)); err != nil {
        return err
    }
    return c.put("login", email, []byte(login))
}

func (c *Cache) Realname(login string) (string, bool, error) {
    return c.getString("realname", login)
}

// PutRealname may overwrite an existing entry - it is the one cache entry
// allowed to change after being set.
func (c *Cache) PutRealname(login, realname string) error {
    return c.put("realname", login, []byte(realname))
}

func (c *Cache) LoginByEmail(email string) (string, bool, error) {
    return c.getString("login", email)
}

func (c *Cache) getSha1(ns, k string) (Sha1, bool, error) {
    v, found, err := c.get(ns, k)
    if err != nil || !found {
        return Sha1{}, found, err
    }
    sha1, perr := Sha1Parse(string(v))
    if perr != nil {
        return Sha1{}, false, errors.Wrapf(perr, "corrupt cache entry %s %q", ns, k)
    }
    return sha1, true, nil
}

func (c *Cache) getString(ns, k string) (string, bool, error) {
    v, found, err := c.get(ns, k)
    return string(v), found, err
}

// Get fetches the raw string value of a namespaced entry - used by the
// `dump` command, which otherwise has no reason to know the shape of any
// particular namespace's values.
func (c *Cache) Get(ns, k string) (string, bool, error) {
    return c.getString(ns, k)
}

// Namespaces lists every namespace the cache's key scheme uses, in the
// order `dump` prints them.
func Namespaces() []string {
    return []string{"blob", "tree", "revision", "commit", "email", "realname", "login"}
}

// --- reindex -----------------------------------------------------------

// Reindex walks commit -> tree -> blobs, recomputing blob MD5s and tree
// srcmd5s and (re-)populating the cache, recursing into every parent.
// Commits already marked "commit <hash>" are skipped, like the rest of the
// tree/parent walk they dominate.
func (c *Cache) Reindex(commit Sha1) error {
    if c.repo == nil {
        return errors.New("reindex: no CAVCS repository bound to this cache")
    }
    return c.reindex1(commit, Sha1Set{})
}

func (c *Cache) reindex1(commit Sha1, seen Sha1Set) error {
    if seen.Contains(commit) {
        return nil
    }
    seen.Add(commit)

    already, err := c.CommitSeen(commit)
    if err != nil {
        return err
    }
    if already {
        return nil
    }

    gcommit, err := c.repo.LookupCommit(commit.AsOid())
    if err != nil {
        return errors.Wrapf(err, "reindex %s: lookup commit", commit)
    }
    tree, err := gcommit.Tree()
    if err != nil {
        return errors.Wrapf(err, "reindex %s: commit tree", commit)
    }

    treeHash, err := c.reindexTree(commit, tree)
    if err != nil {
        return err
    }

    if err := c.MarkCommitSeen(commit, treeHash); err != nil {
        return err
    }

    for i := uint(0); i < gcommit.ParentCount(); i++ {
        parent := Sha1FromOid(gcommit.ParentId(i))
        if err := c.reindex1(parent, seen); err != nil {
            return err
        }
    }
    return nil
}

// reindexTree recomputes MD5s for every blob entry of tree, stores
// "blob <md5>", computes the tree's own srcmd5 from the sorted list, stores
// "tree <srcmd5>", and returns the (git) sha1 of tree itself.
//
// Only flat directories of regular-file blobs are representable in the BS
// model; anything else - a subdirectory, or a blob entry whose mode is the
// symlink magic 0120000 - raises CorruptCommit.
func (c *Cache) reindexTree(commit Sha1, tree *cavcsgit.Tree) (Sha1, error) {
    odb, err := c.repo.Odb()
    if err != nil {
        return Sha1{}, errors.Wrap(err, "reindex: odb")
    }

    var files []FileEntry

    n := tree.EntryCount()
    for i := uint64(0); i < n; i++ {
        e := tree.EntryByIndex(i)
        switch {
        case e.Type == cavcsgit.ObjectTree:
            return Sha1{}, &CorruptCommitError{commit, e.Name, "subdirectory not representable"}
        case e.Filemode == 0120000:
            return Sha1{}, &CorruptCommitError{commit, e.Name, "symlink not representable"}
        case e.Type != cavcsgit.ObjectBlob:
            return Sha1{}, &CorruptCommitError{commit, e.Name, fmt.Sprintf("unsupported entry type %v", e.Type)}
        }

        blobSha1 := Sha1FromOid(e.Id)
        obj, err := odb.Read(e.Id)
        if err != nil {
            return Sha1{}, errors.Wrapf(err, "reindex %s: read blob %s", commit, blobSha1)
        }
        sum := md5.Sum(obj.Data())
        md5str := fmt.Sprintf("%x", sum)

        if err := c.PutBlobSha1(md5str, blobSha1); err != nil {
            return Sha1{}, err
        }
        files = append(files, FileEntry{Name: e.Name, MD5: md5str})
    }

    srcmd5 := Srcmd5(files)

    treeHash := Sha1FromOid(tree.Id())
    if err := c.PutTreeSha1(srcmd5, treeHash); err != nil {
        return Sha1{}, err
    }
    return treeHash, nil
}
