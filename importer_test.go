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
    "crypto/md5"
    "fmt"
    "testing"
)

// TestSrcmd5 checks that Srcmd5 is the md5 of the by-name-sorted
// "<md5>  <name>\n" lines, and is independent of input order.
func TestSrcmd5(t *testing.T) {
    files := []FileEntry{
        {Name: "b.spec", MD5: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
        {Name: "a.spec", MD5: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
        {Name: "c.tar",  MD5: "cccccccccccccccccccccccccccccccc"},
    }

    var buf []byte
    for _, f := range []FileEntry{files[1], files[0], files[2]} { // a, b, c
        buf = append(buf, []byte(fmt.Sprintf("%s  %s\n", f.MD5, f.Name))...)
    }
    want := fmt.Sprintf("%x", md5.Sum(buf))

    got := Srcmd5(files)
    if got != want {
        t.Errorf("Srcmd5(files) = %q, want %q", got, want)
    }

    // pure / order-independent: a permutation of the same files hashes the same.
    permuted := []FileEntry{files[2], files[0], files[1]}
    if got2 := Srcmd5(permuted); got2 != got {
        t.Errorf("Srcmd5 depends on input order: %q != %q", got2, got)
    }

    // the original slice must not be mutated by sorting internally.
    if files[0].Name != "b.spec" {
        t.Errorf("Srcmd5 mutated its input slice")
    }
}

func TestSrcmd5Empty(t *testing.T) {
    want := fmt.Sprintf("%x", md5.Sum(nil))
    if got := Srcmd5(nil); got != want {
        t.Errorf("Srcmd5(nil) = %q, want %q", got, want)
    }
}
