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

// bsgit | the object importer
//
// Turns a BS Package Status into CAVCS objects: one blob per file (streamed
// through an MD5 hasher and verified against the MD5 the directory listing
// advertised) and one tree built over the sorted {blob sha1, name} pairs via
// `mktree`.
package main

import (
    "bytes"
    "crypto/md5"
    "fmt"
    "io"
    "sort"
    "strings"

    "github.com/opensuse/bsgit/internal/shell"
)

// Srcmd5 computes the BS srcmd5 of a file list: md5 of the sorted
// "<md5>  <name>\n" lines. Shared by the importer (deriving a tree from
// freshly fetched files) and the mapping cache's Reindex (deriving it from
// an already-built CAVCS tree) so the two never drift apart.
func Srcmd5(files []FileEntry) string {
    sorted := append([]FileEntry(nil), files...)
    sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

    var buf strings.Builder
    for _, f := range sorted {
        fmt.Fprintf(&buf, "%s  %s\n", f.MD5, f.Name)
    }
    return fmt.Sprintf("%x", md5.Sum([]byte(buf.String())))
}

// Importer derives CAVCS blobs and trees from BS file lists.
type Importer struct {
    env *Env
}

func NewImporter(env *Env) *Importer {
    return &Importer{env: env}
}

// DeriveBlob fetches file name at rev, verifies its content against md5sum,
// and returns the CAVCS blob sha1 for it - from cache if this content was
// already seen under any name/revision.
func (imp *Importer) DeriveBlob(project, pkg, name, rev, md5sum string) (Sha1, error) {
    if cached, found, err := imp.env.Cache.BlobSha1(md5sum); err != nil {
        return Sha1{}, err
    } else if found {
        return cached, nil
    }

    body, err := imp.env.Client.GetFile(project, pkg, name, rev)
    if err != nil {
        return Sha1{}, err
    }
    defer body.Close()

    hasher := md5.New()
    var buf bytes.Buffer
    if _, err := io.Copy(io.MultiWriter(&buf, hasher), body); err != nil {
        return Sha1{}, err
    }

    got := fmt.Sprintf("%x", hasher.Sum(nil))
    if got != md5sum {
        return Sha1{}, &ChecksumMismatchError{project, pkg, name, md5sum, got}
    }

    out := imp.env.CAVCS.X("hash-object", "-w", "--stdin", shell.RunWith{Stdin: buf.String(), Raw: true})
    sha1, err := Sha1Parse(out)
    if err != nil {
        return Sha1{}, err
    }

    if err := imp.env.Cache.PutBlobSha1(md5sum, sha1); err != nil {
        return Sha1{}, err
    }
    return sha1, nil
}

// DeriveTree derives every file's blob and assembles the flat tree for a
// Package Status, returning the CAVCS tree sha1 - from cache if this exact
// srcmd5 was already built.
//
// srcmd5 must be the srcmd5 the caller already trusts (e.g. status.Srcmd5
// off the wire); it is cross-checked against Srcmd5(files) as the one place
// a server-side content mismatch would otherwise go unnoticed.
func (imp *Importer) DeriveTree(project, pkg, rev, srcmd5 string, files []FileEntry) (Sha1, error) {
    if cached, found, err := imp.env.Cache.TreeSha1(srcmd5); err != nil {
        return Sha1{}, err
    } else if found {
        return cached, nil
    }

    if got := Srcmd5(files); got != srcmd5 {
        return Sha1{}, &ChecksumMismatchError{project, pkg, "(tree)", srcmd5, got}
    }

    sorted := append([]FileEntry(nil), files...)
    sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

    var mktreeIn strings.Builder
    for _, f := range sorted {
        blobSha1, err := imp.DeriveBlob(project, pkg, f.Name, rev, f.MD5)
        if err != nil {
            return Sha1{}, err
        }
        fmt.Fprintf(&mktreeIn, "100644 blob %s\t%s\n", blobSha1, f.Name)
    }

    out := imp.env.CAVCS.X("mktree", shell.RunWith{Stdin: mktreeIn.String()})
    treeSha1, err := Sha1Parse(out)
    if err != nil {
        return Sha1{}, err
    }

    if err := imp.env.Cache.PutTreeSha1(srcmd5, treeSha1); err != nil {
        return Sha1{}, err
    }
    return treeSha1, nil
}
