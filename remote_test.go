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

// xbsServer serves a tiny, fixed BS API: one plain package "home:kirr/bsgit"
// whose unqualified listing reports an in-progress upload (rev="upload")
// while rev=latest answers rev 3, a two-entry history, and one person
// record.
func xbsServer(t *testing.T) *httptest.Server {
    t.Helper()
    listCalls := 0

    mux := http.NewServeMux()
    mux.HandleFunc("/source/home:kirr/bsgit", func(w http.ResponseWriter, r *http.Request) {
        listCalls++
        rev := r.URL.Query().Get("rev")
        switch rev {
        case "", "upload":
            fmt.Fprint(w, `<directory name="bsgit" rev="upload" srcmd5="aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"/>`)
        case "latest":
            fmt.Fprint(w, `<directory name="bsgit" rev="3" srcmd5="bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb">
                <entry name="bsgit.spec" md5="cccccccccccccccccccccccccccccccc"/>
            </directory>`)
        default:
            http.NotFound(w, r)
        }
    })
    mux.HandleFunc("/source/home:kirr/bsgit/_history", func(w http.ResponseWriter, r *http.Request) {
        fmt.Fprint(w, `<revisionlist>
            <revision rev="3"><srcmd5>bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb</srcmd5><time>200</time><user>kirr</user><comment>r3</comment></revision>
            <revision rev="2"><srcmd5>aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa</srcmd5><time>100</time><user>kirr</user><comment>r2</comment></revision>
        </revisionlist>`)
    })
    mux.HandleFunc("/person/kirr", func(w http.ResponseWriter, r *http.Request) {
        fmt.Fprint(w, `<person><login>kirr</login><email>kirr@example.org</email><realname>Kirill Smelkov</realname></person>`)
    })

    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)
    return srv
}

// TestClientUploadAlias checks that a bare list-dir that comes back
// rev="upload" is transparently re-resolved against rev=latest.
func TestClientUploadAlias(t *testing.T) {
    srv := xbsServer(t)
    c := NewClient(srv.URL)

    status, err := c.ListDir("home:kirr", "bsgit", ListDirOpts{})
    if err != nil {
        t.Fatal(err)
    }
    if status.Rev != "3" {
        t.Errorf("ListDir rev = %q, want 3 (the upload alias should have been resolved)", status.Rev)
    }
    if len(status.Files) != 1 || status.Files[0].Name != "bsgit.spec" {
        t.Errorf("ListDir files = %+v, want one bsgit.spec entry", status.Files)
    }
}

// TestClientListDirMemoized checks that a second identical ListDir call
// does not hit the network again.
func TestClientListDirMemoized(t *testing.T) {
    var hits int
    mux := http.NewServeMux()
    mux.HandleFunc("/source/home:kirr/bsgit", func(w http.ResponseWriter, r *http.Request) {
        hits++
        fmt.Fprint(w, `<directory name="bsgit" rev="3" srcmd5="bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"/>`)
    })
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)

    c := NewClient(srv.URL)
    opts := ListDirOpts{Rev: "3"}
    if _, err := c.ListDir("home:kirr", "bsgit", opts); err != nil {
        t.Fatal(err)
    }
    if _, err := c.ListDir("home:kirr", "bsgit", opts); err != nil {
        t.Fatal(err)
    }
    if hits != 1 {
        t.Errorf("ListDir hit the network %d times for two identical calls, want 1", hits)
    }
}

// TestClientInvalidateLatest checks that InvalidateLatest forces a fresh
// round trip the way the pusher needs after a successful push.
func TestClientInvalidateLatest(t *testing.T) {
    var hits int
    mux := http.NewServeMux()
    mux.HandleFunc("/source/home:kirr/bsgit", func(w http.ResponseWriter, r *http.Request) {
        hits++
        fmt.Fprintf(w, `<directory name="bsgit" rev="%d" srcmd5="bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"/>`, hits)
    })
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)

    c := NewClient(srv.URL)
    s1, err := c.ListDir("home:kirr", "bsgit", ListDirOpts{Rev: "latest"})
    if err != nil {
        t.Fatal(err)
    }
    c.InvalidateLatest("home:kirr", "bsgit")
    s2, err := c.ListDir("home:kirr", "bsgit", ListDirOpts{Rev: "latest"})
    if err != nil {
        t.Fatal(err)
    }
    if s1.Rev == s2.Rev {
        t.Errorf("InvalidateLatest did not force a fresh round trip: rev stayed %q", s1.Rev)
    }
}

// TestClientHistory checks history ordering and per-process memoization.
func TestClientHistory(t *testing.T) {
    var hits int
    mux := http.NewServeMux()
    mux.HandleFunc("/source/home:kirr/bsgit/_history", func(w http.ResponseWriter, r *http.Request) {
        hits++
        fmt.Fprint(w, `<revisionlist>
            <revision rev="3"><srcmd5>bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb</srcmd5><time>200</time><user>kirr</user><comment>r3</comment></revision>
            <revision rev="2"><srcmd5>aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa</srcmd5><time>100</time><user>kirr</user><comment>r2</comment></revision>
        </revisionlist>`)
    })
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)
    c := NewClient(srv.URL)

    history, err := c.History("home:kirr", "bsgit")
    if err != nil {
        t.Fatal(err)
    }
    if len(history) != 2 || history[0].Rev != "3" || history[1].Rev != "2" {
        t.Fatalf("History = %+v, want [rev 3, rev 2] newest-first", history)
    }

    if _, err := c.History("home:kirr", "bsgit"); err != nil {
        t.Fatal(err)
    }
    if hits != 1 {
        t.Errorf("History hit the network %d times for two identical calls, want 1", hits)
    }
}

// TestClientGetUserPseudoAccounts checks that the two pseudo-accounts are
// recognized locally and never reach the network.
func TestClientGetUserPseudoAccounts(t *testing.T) {
    c := NewClient("http://should-not-be-contacted.invalid")

    p, err := c.GetUser("unknown")
    if err != nil {
        t.Fatal(err)
    }
    if p.Email != "UNKNOWN" || p.Realname != "UNKNOWN" {
        t.Errorf("GetUser(unknown) = %+v, want Email/Realname UNKNOWN", p)
    }

    p, err = c.GetUser("buildservice-autocommit")
    if err != nil {
        t.Fatal(err)
    }
    if p.Email != "BUILDSERVICE-AUTOCOMMIT" {
        t.Errorf("GetUser(buildservice-autocommit) = %+v, want Email BUILDSERVICE-AUTOCOMMIT", p)
    }
}

func TestClientGetUser(t *testing.T) {
    srv := xbsServer(t)
    c := NewClient(srv.URL)

    p, err := c.GetUser("kirr")
    if err != nil {
        t.Fatal(err)
    }
    if p.Email != "kirr@example.org" || p.Realname != "Kirill Smelkov" {
        t.Errorf("GetUser(kirr) = %+v, want kirr@example.org / Kirill Smelkov", p)
    }
}
