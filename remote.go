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

// bsgit | the Build Service REST client
//
// Stateless in the sense that no query has side effects on BS, but with
// per-process memoization of status/history lookups for a single run:
// nothing here is safe for concurrent use, which is fine since the whole
// engine runs single-threaded.
package main

import (
    "bytes"
    "encoding/xml"
    "fmt"
    "io"
    "io/ioutil"
    "net/http"
    "net/url"
    "sort"

    "github.com/pkg/errors"
)

// Status is a Package Status: the directory listing of a package at a
// given revision.
type Status struct {
    Rev     string
    Srcmd5  string
    Xsrcmd5 string
    Link    *LinkInfo
    Files   []FileEntry // sorted by Name
}

// FileEntry is one file in a Package Status.
type FileEntry struct {
    Name string
    MD5  string
}

// LinkInfo is the parsed <linkinfo> of a source-linked package.
type LinkInfo struct {
    TargetProject string
    TargetPackage string
    Srcmd5        string // target content hash the link was expanded against
    Lsrcmd5       string // the link carrier's own content hash
    Rev           string // explicit rev=... the linkinfo names, if any
    Baserev       string // explicit target baserev, if any (may be absent)
    Xsrcmd5       string // hash of the expanded tree
}

// Revision is one entry of a package's history.
type Revision struct {
    Rev     string
    Srcmd5  string
    Time    int64
    User    string
    Comment string
    Link    *LinkInfo
}

// Person is a BS user record.
type Person struct {
    Login    string
    Email    string
    Realname string
}

// NotFoundError marks an HTTP 404 response - the one recoverable condition
// callers may turn into a fallback instead of a fatal error.
type NotFoundError struct {
    Method, Path string
}

func (e *NotFoundError) Error() string {
    return fmt.Sprintf("%s %s: 404 not found", e.Method, e.Path)
}

// ListDirOpts are the optional list-dir query parameters.
type ListDirOpts struct {
    Rev       string
    Linkrev   string
    Expand    bool
    Emptylink bool
}

func (o ListDirOpts) cacheKey() string {
    return fmt.Sprintf("rev=%s&linkrev=%s&expand=%v&emptylink=%v", o.Rev, o.Linkrev, o.Expand, o.Emptylink)
}

// Client issues the typed BS queries, with per-process memoization for
// history and status lookups.
type Client struct {
    apiBase string
    http    *http.Client

    historyCache map[string][]*Revision      // "project/package" -> history, newest first
    statusCache  map[string]*Status          // "project/package?"+opts.cacheKey() -> status
    latestAlias  map[string]string           // "project/package" -> concrete rev "latest" resolved to
}

// NewClient returns a Client talking to apiBase (e.g. "https://api.opensuse.org").
func NewClient(apiBase string) *Client {
    return &Client{
        apiBase:      apiBase,
        http:         http.DefaultClient,
        historyCache: map[string][]*Revision{},
        statusCache:  map[string]*Status{},
        latestAlias:  map[string]string{},
    }
}

func pkey(project, pkg string) string {
    return project + "/" + pkg
}

// --- low-level request plumbing -------------------------------------------

func (c *Client) do(method, path string, query url.Values, body io.Reader) (status int, respBody []byte, err error) {
    u := c.apiBase + path
    if len(query) > 0 {
        u += "?" + query.Encode()
    }
    req, err := http.NewRequest(method, u, body)
    if err != nil {
        return 0, nil, errors.Wrapf(err, "%s %s: build request", method, path)
    }
    resp, err := c.http.Do(req)
    if err != nil {
        return 0, nil, errors.Wrapf(err, "%s %s", method, path)
    }
    defer resp.Body.Close()
    data, err := ioutil.ReadAll(resp.Body)
    if err != nil {
        return resp.StatusCode, nil, errors.Wrapf(err, "%s %s: read response", method, path)
    }
    return resp.StatusCode, data, nil
}

// xdo is do(), turning non-2xx into *NotFoundError (404) or *RemoteError
// (anything else) so the 404 fallback can be built on a typed result.
func (c *Client) xdo(method, path string, query url.Values, body io.Reader) ([]byte, error) {
    status, data, err := c.do(method, path, query, body)
    if err != nil {
        return nil, err
    }
    if status == 404 {
        return nil, &NotFoundError{method, path}
    }
    if status < 200 || status >= 300 {
        return nil, &RemoteError{method, path, status, string(data)}
    }
    return data, nil
}

// --- list-dir ---------------------------------------------------------------

// ListDir fetches a Package Status.
//
// A 404 is returned as *NotFoundError for the caller (history.go's base
// status resolver) to catch and degrade to the unexpanded variant; it is
// not retried here.
func (c *Client) ListDir(project, pkg string, opt ListDirOpts) (*Status, error) {
    // "latest" is an alias: once resolved to a concrete rev it stays pinned
    // to it, so callers naming "latest" keep seeing one consistent revision
    // for the rest of the run (until InvalidateLatest).
    if opt.Rev == "latest" {
        if concrete, ok := c.latestAlias[pkey(project, pkg)]; ok {
            opt.Rev = concrete
        }
    }

    ck := pkey(project, pkg) + "?" + opt.cacheKey()
    if s, ok := c.statusCache[ck]; ok {
        return s, nil
    }

    status, err := c.listDir1(project, pkg, opt)
    if err != nil {
        return nil, err
    }

    // BS reports an in-progress upload as rev="upload" - transparently
    // re-resolve against rev=latest once, but memoize under the caller's
    // original key so repeat calls don't re-fire the extra round trip.
    if status.Rev == "upload" && opt.Rev != "latest" {
        retry := opt
        retry.Rev = "latest"
        status, err = c.listDir1(project, pkg, retry)
        if err != nil {
            return nil, err
        }
    }

    c.statusCache[ck] = status
    if opt.Rev == "" || opt.Rev == "latest" {
        c.latestAlias[pkey(project, pkg)] = status.Rev
        // also memoize under the concrete rev, which is what later "latest"
        // calls resolve to through the alias.
        concrete := opt
        concrete.Rev = status.Rev
        c.statusCache[pkey(project, pkg)+"?"+concrete.cacheKey()] = status
    }
    return status, nil
}

func (c *Client) listDir1(project, pkg string, opt ListDirOpts) (*Status, error) {
    q := url.Values{}
    if opt.Rev != "" {
        q.Set("rev", opt.Rev)
    }
    if opt.Linkrev != "" {
        q.Set("linkrev", opt.Linkrev)
    }
    if opt.Expand {
        q.Set("expand", "1")
    }
    if opt.Emptylink {
        q.Set("emptylink", "1")
    }

    path := fmt.Sprintf("/source/%s/%s", project, pkg)
    data, err := c.xdo("GET", path, q, nil)
    if err != nil {
        return nil, err
    }

    var wd wireDirectory
    if err := xml.Unmarshal(data, &wd); err != nil {
        return nil, errors.Wrapf(err, "%s: invalid directory XML", path)
    }
    return statusFromWire(&wd), nil
}

// InvalidateLatest drops the memoized "latest" status/alias for a package -
// the pusher calls this before re-querying after a push.
func (c *Client) InvalidateLatest(project, pkg string) {
    delete(c.latestAlias, pkey(project, pkg))
    for k := range c.statusCache {
        prefix := pkey(project, pkg) + "?"
        if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
            delete(c.statusCache, k)
        }
    }
}

func statusFromWire(wd *wireDirectory) *Status {
    s := &Status{
        Rev:     wd.Rev,
        Srcmd5:  wd.Srcmd5,
        Xsrcmd5: wd.Xsrcmd5,
        Link:    linkFromWire(wd.Linkinfo),
    }
    for _, e := range wd.Entry {
        s.Files = append(s.Files, FileEntry{e.Name, e.MD5})
    }
    sort.Slice(s.Files, func(i, j int) bool { return s.Files[i].Name < s.Files[j].Name })
    return s
}

func linkFromWire(wl *wireLinkinfo) *LinkInfo {
    if wl == nil {
        return nil
    }
    return &LinkInfo{
        TargetProject: wl.Project,
        TargetPackage: wl.Package,
        Srcmd5:        wl.Srcmd5,
        Lsrcmd5:       wl.Lsrcmd5,
        Rev:           wl.Rev,
        Baserev:       wl.Baserev,
        Xsrcmd5:       wl.Xsrcmd5,
    }
}

// --- history ----------------------------------------------------------------

// History fetches the full revision history, newest first.
func (c *Client) History(project, pkg string) ([]*Revision, error) {
    ck := pkey(project, pkg)
    if h, ok := c.historyCache[ck]; ok {
        return h, nil
    }

    path := fmt.Sprintf("/source/%s/%s/_history", project, pkg)
    data, err := c.xdo("GET", path, nil, nil)
    if err != nil {
        return nil, err
    }

    var wl wireRevisionList
    if err := xml.Unmarshal(data, &wl); err != nil {
        return nil, errors.Wrapf(err, "%s: invalid revisionlist XML", path)
    }

    history := make([]*Revision, 0, len(wl.Revision))
    for _, wr := range wl.Revision {
        history = append(history, &Revision{
            Rev:     wr.Rev,
            Srcmd5:  wr.Srcmd5,
            Time:    wr.Time,
            User:    wr.User,
            Comment: wr.Comment,
            Link:    linkFromWire(wr.Linkinfo),
        })
    }

    c.historyCache[ck] = history
    return history, nil
}

// --- file content -------------------------------------------------------------

// GetFile streams a file's content at rev. The caller (importer.go) must
// Close() it; the importer reads the whole body and checks its MD5 before
// anything is written to the CAVCS, so this client needs no cancellation
// support of its own.
func (c *Client) GetFile(project, pkg, name, rev string) (io.ReadCloser, error) {
    path := fmt.Sprintf("/source/%s/%s/%s", project, pkg, name)
    u := c.apiBase + path + "?" + (url.Values{"rev": {rev}}).Encode()
    resp, err := c.http.Get(u)
    if err != nil {
        return nil, errors.Wrapf(err, "GET %s", path)
    }
    if resp.StatusCode == 404 {
        resp.Body.Close()
        return nil, &NotFoundError{"GET", path}
    }
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        data, _ := ioutil.ReadAll(resp.Body)
        resp.Body.Close()
        return nil, &RemoteError{"GET", path, resp.StatusCode, string(data)}
    }
    return resp.Body, nil
}

// --- user record --------------------------------------------------------------

// pseudo-accounts recognized without ever touching the network: login<->email
// is bijective, and these two logins have no real BS account to query an
// email from, so the email is hardcoded equal to the upper-cased login
// instead.
var pseudoAccounts = map[string]Person{
    "unknown":                 {Login: "unknown", Email: "UNKNOWN", Realname: "UNKNOWN"},
    "buildservice-autocommit": {Login: "buildservice-autocommit", Email: "BUILDSERVICE-AUTOCOMMIT", Realname: "BUILDSERVICE-AUTOCOMMIT"},
}

// GetUser fetches a BS user record.
func (c *Client) GetUser(login string) (*Person, error) {
    if p, ok := pseudoAccounts[login]; ok {
        p := p
        return &p, nil
    }

    path := fmt.Sprintf("/person/%s", login)
    data, err := c.xdo("GET", path, nil, nil)
    if err != nil {
        return nil, err
    }
    var wp wirePerson
    if err := xml.Unmarshal(data, &wp); err != nil {
        return nil, errors.Wrapf(err, "%s: invalid person XML", path)
    }
    return &Person{Login: login, Email: wp.Email, Realname: wp.Realname}, nil
}

// --- writes: put-file, commit-filelist ----------------------------------------

// PutFile uploads a file's content (rev=repository).
func (c *Client) PutFile(project, pkg, name string, body io.Reader) error {
    path := fmt.Sprintf("/source/%s/%s/%s", project, pkg, name)
    q := url.Values{"rev": {"repository"}}
    _, err := c.xdo("PUT", path, q, body)
    return err
}

// wireCommitFilelist is the request body for commit-filelist: a <directory>
// listing just the {name,md5} pairs the new revision should contain.
type wireCommitFilelist struct {
    XMLName xml.Name    `xml:"directory"`
    Entry   []wireEntry `xml:"entry"`
}

// CommitFilelist submits the new file list for a revision and returns the
// resulting Package Status.
func (c *Client) CommitFilelist(project, pkg string, files []FileEntry, user, comment, linkrev string, keeplink bool) (*Status, error) {
    body := wireCommitFilelist{}
    for _, f := range files {
        body.Entry = append(body.Entry, wireEntry{Name: f.Name, MD5: f.MD5})
    }
    xmlBody, err := xml.Marshal(body)
    if err != nil {
        return nil, errors.Wrap(err, "commit-filelist: marshal request body")
    }

    q := url.Values{
        "cmd":     {"commitfilelist"},
        "rev":     {"repository"},
        "user":    {user},
        "comment": {comment},
    }
    if linkrev != "" {
        q.Set("linkrev", linkrev)
        if keeplink {
            q.Set("keeplink", "1")
        }
    }

    path := fmt.Sprintf("/source/%s/%s", project, pkg)
    data, err := c.xdo("POST", path, q, bytes.NewReader(xmlBody))
    if err != nil {
        return nil, err
    }

    var wd wireDirectory
    if err := xml.Unmarshal(data, &wd); err != nil {
        return nil, errors.Wrapf(err, "%s: invalid commit-filelist response XML", path)
    }

    c.InvalidateLatest(project, pkg)
    return statusFromWire(&wd), nil
}
