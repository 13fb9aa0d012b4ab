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
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"
)

// xtargetServer serves a target package whose history has revisions at
// times 200, 120, 80 (newest first).
func xtargetServer(t *testing.T) *httptest.Server {
    t.Helper()
    mux := http.NewServeMux()
    mux.HandleFunc("/source/openSUSE:Factory/base/_history", func(w http.ResponseWriter, r *http.Request) {
        fmt.Fprint(w, `<revisionlist>
            <revision rev="3"><srcmd5>cccccccccccccccccccccccccccccccc</srcmd5><time>200</time><user>kirr</user><comment>r3</comment></revision>
            <revision rev="2"><srcmd5>bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb</srcmd5><time>120</time><user>kirr</user><comment>r2</comment></revision>
            <revision rev="1"><srcmd5>aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa</srcmd5><time>80</time><user>kirr</user><comment>r1</comment></revision>
        </revisionlist>`)
    })
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)
    return srv
}

func xhistoryBuilder(t *testing.T, srv *httptest.Server) *HistoryBuilder {
    t.Helper()
    env := &Env{APIBase: srv.URL, Client: NewClient(srv.URL)}
    return NewHistoryBuilder(env)
}

// TestGuessBaserevExplicit checks that an explicit linkinfo baserev wins
// without any target-history round trip.
func TestGuessBaserevExplicit(t *testing.T) {
    hb := xhistoryBuilder(t, xtargetServer(t))

    link := &LinkInfo{
        TargetProject: "openSUSE:Factory",
        TargetPackage: "base",
        Baserev:       "dddddddddddddddddddddddddddddddd",
    }
    got, err := hb.guessBaserev(link, 100)
    if err != nil {
        t.Fatal(err)
    }
    if got != "dddddddddddddddddddddddddddddddd" {
        t.Errorf("guessBaserev = %q, want the explicit baserev", got)
    }
}

// TestGuessBaserevByRev checks that linkinfo's rev is resolved through the
// target history to that revision's srcmd5.
func TestGuessBaserevByRev(t *testing.T) {
    hb := xhistoryBuilder(t, xtargetServer(t))

    link := &LinkInfo{
        TargetProject: "openSUSE:Factory",
        TargetPackage: "base",
        Rev:           "2",
    }
    got, err := hb.guessBaserev(link, 100)
    if err != nil {
        t.Fatal(err)
    }
    if got != "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
        t.Errorf("guessBaserev = %q, want rev 2's srcmd5", got)
    }
}

// TestGuessBaserevByTime checks the timestamp walk: for a source revision
// at t=100 and target history times [200, 120, 80], the newest target
// revision not after the source is the one at t=80.
func TestGuessBaserevByTime(t *testing.T) {
    hb := xhistoryBuilder(t, xtargetServer(t))

    link := &LinkInfo{
        TargetProject: "openSUSE:Factory",
        TargetPackage: "base",
    }
    got, err := hb.guessBaserev(link, 100)
    if err != nil {
        t.Fatal(err)
    }
    if got != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
        t.Errorf("guessBaserev = %q, want the t=80 revision's srcmd5", got)
    }
}

// TestGuessBaserevNone checks that a source older than every target
// revision yields no guess (and no error).
func TestGuessBaserevNone(t *testing.T) {
    hb := xhistoryBuilder(t, xtargetServer(t))

    link := &LinkInfo{
        TargetProject: "openSUSE:Factory",
        TargetPackage: "base",
    }
    got, err := hb.guessBaserev(link, 50)
    if err != nil {
        t.Fatal(err)
    }
    if got != "" {
        t.Errorf("guessBaserev = %q, want \"\" (no candidate at or before t=50)", got)
    }
}

// TestNormalizeDepth checks the 0-means-unbounded mapping onto build's
// internal sentinel.
func TestNormalizeDepth(t *testing.T) {
    var tests = []struct{ in, want int }{
        {0, -1},
        {-5, -1},
        {1, 1},
        {42, 42},
    }
    for _, tt := range tests {
        if got := normalizeDepth(tt.in); got != tt.want {
            t.Errorf("normalizeDepth(%d) = %d, want %d", tt.in, got, tt.want)
        }
    }
}
