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

package main

import (
    "io/ioutil"
    "os"
    "path/filepath"
    "testing"
)

// XSha1 parses s as a Sha1, panicking on error - a test-only convenience
// shared by every _test.go file in this package.
func XSha1(s string) Sha1 {
    sha1, err := Sha1Parse(s)
    if err != nil {
        panic(err)
    }
    return sha1
}

// xopenCache opens a throwaway bolt-backed cache for the duration of the test.
func xopenCache(t *testing.T) *Cache {
    t.Helper()
    dir, err := ioutil.TempDir("", "t-bsgit-cache")
    if err != nil {
        t.Fatal(err)
    }
    t.Cleanup(func() { os.RemoveAll(dir) })

    cache, err := OpenCache(filepath.Join(dir, "bsgit.cache"), nil)
    if err != nil {
        t.Fatal(err)
    }
    t.Cleanup(func() { cache.Close() })
    return cache
}

// TestCacheBlobTree checks that a put blob/tree sha1 is found again under
// the same md5/srcmd5.
func TestCacheBlobTree(t *testing.T) {
    cache := xopenCache(t)

    md5sum := "d41d8cd98f00b204e9800998ecf8427e"
    blob := XSha1("4b825dc642cb6eb9a060e54bf8d69288fbee4904")

    if _, found, err := cache.BlobSha1(md5sum); err != nil {
        t.Fatal(err)
    } else if found {
        t.Fatal("blob found before being put")
    }
    if err := cache.PutBlobSha1(md5sum, blob); err != nil {
        t.Fatal(err)
    }
    got, found, err := cache.BlobSha1(md5sum)
    if err != nil {
        t.Fatal(err)
    }
    if !found || got != blob {
        t.Errorf("BlobSha1(%q) = %v, %v; want %v, true", md5sum, got, found, blob)
    }

    srcmd5 := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4"
    tree := XSha1("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
    if err := cache.PutTreeSha1(srcmd5, tree); err != nil {
        t.Fatal(err)
    }
    if got, found, err := cache.TreeSha1(srcmd5); err != nil {
        t.Fatal(err)
    } else if !found || got != tree {
        t.Errorf("TreeSha1(%q) = %v, %v; want %v, true", srcmd5, got, found, tree)
    }
}

// TestCacheRevision checks the "revision server/project/package/rev" namespace.
func TestCacheRevision(t *testing.T) {
    cache := xopenCache(t)

    commit := XSha1("1234567890123456789012345678901234567890")
    if err := cache.PutRevisionCommit("api.example.org", "home:kirr", "bsgit", "1", commit); err != nil {
        t.Fatal(err)
    }

    got, found, err := cache.RevisionCommit("api.example.org", "home:kirr", "bsgit", "1")
    if err != nil {
        t.Fatal(err)
    }
    if !found || got != commit {
        t.Errorf("RevisionCommit = %v, %v; want %v, true", got, found, commit)
    }

    // a different rev of the same package must not collide.
    if _, found, err := cache.RevisionCommit("api.example.org", "home:kirr", "bsgit", "2"); err != nil {
        t.Fatal(err)
    } else if found {
        t.Error("RevisionCommit found an entry for an unrelated rev")
    }

    // --force invalidation drops the mapping again.
    if err := cache.DelRevisionCommit("api.example.org", "home:kirr", "bsgit", "1"); err != nil {
        t.Fatal(err)
    }
    if _, found, err := cache.RevisionCommit("api.example.org", "home:kirr", "bsgit", "1"); err != nil {
        t.Fatal(err)
    } else if found {
        t.Error("RevisionCommit still found after DelRevisionCommit")
    }
}

// TestCacheEmailLoginBijection checks that setting "email <login>" also
// sets "login <email>".
func TestCacheEmailLoginBijection(t *testing.T) {
    cache := xopenCache(t)

    if err := cache.PutEmail("kirr", "kirr@example.org"); err != nil {
        t.Fatal(err)
    }

    email, found, err := cache.Email("kirr")
    if err != nil {
        t.Fatal(err)
    }
    if !found || email != "kirr@example.org" {
        t.Errorf("Email(kirr) = %q, %v; want kirr@example.org, true", email, found)
    }

    login, found, err := cache.LoginByEmail("kirr@example.org")
    if err != nil {
        t.Fatal(err)
    }
    if !found || login != "kirr" {
        t.Errorf("LoginByEmail = %q, %v; want kirr, true", login, found)
    }
}

// TestCacheRealnameOverwrite checks that, unlike every other namespace,
// "realname" may be overwritten.
func TestCacheRealnameOverwrite(t *testing.T) {
    cache := xopenCache(t)

    if err := cache.PutRealname("kirr", "Kirill Smelkov"); err != nil {
        t.Fatal(err)
    }
    if err := cache.PutRealname("kirr", "K. Smelkov"); err != nil {
        t.Fatal(err)
    }
    name, found, err := cache.Realname("kirr")
    if err != nil {
        t.Fatal(err)
    }
    if !found || name != "K. Smelkov" {
        t.Errorf("Realname(kirr) = %q, %v; want \"K. Smelkov\", true", name, found)
    }
}

// TestCacheKeysSorted checks that Keys() (used by `dump`) returns a stable,
// sorted view of a namespace.
func TestCacheKeysSorted(t *testing.T) {
    cache := xopenCache(t)

    for _, login := range []string{"zara", "anna", "mark"} {
        if err := cache.PutEmail(login, login+"@example.org"); err != nil {
            t.Fatal(err)
        }
    }

    keys, err := cache.Keys("email")
    if err != nil {
        t.Fatal(err)
    }
    want := []string{"anna", "mark", "zara"}
    if len(keys) != len(want) {
        t.Fatalf("Keys(email) = %v, want %v", keys, want)
    }
    for i := range want {
        if keys[i] != want[i] {
            t.Errorf("Keys(email)[%d] = %q, want %q", i, keys[i], want[i])
        }
    }
}

// TestCacheCommitSeen checks the "commit <hash>" sentinel used by Reindex.
func TestCacheCommitSeen(t *testing.T) {
    cache := xopenCache(t)

    commit := XSha1("1111111111111111111111111111111111111111")
    tree := XSha1("2222222222222222222222222222222222222222")

    if seen, err := cache.CommitSeen(commit); err != nil {
        t.Fatal(err)
    } else if seen {
        t.Fatal("commit marked seen before being recorded")
    }
    if err := cache.MarkCommitSeen(commit, tree); err != nil {
        t.Fatal(err)
    }
    if seen, err := cache.CommitSeen(commit); err != nil {
        t.Fatal(err)
    } else if !seen {
        t.Error("commit not marked seen after MarkCommitSeen")
    }
}
