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

// bsgit | remote-tracking ref naming
//
// For api base scheme://host, project a:b, package c, the ref is
// refs/remotes/<host>/a/b/c. Updating such a ref bypasses refs/heads by
// writing the commit hash straight to the CAVCS metadata file instead of
// going through `git update-ref`.
package main

import (
    "fmt"
    "net/url"
    "os"
    "path/filepath"
    "strings"

    "github.com/pkg/errors"
)

// HostOf extracts the host part of an api base URL ("https://api.opensuse.org" -> "api.opensuse.org").
func HostOf(apiBase string) (string, error) {
    u, err := url.Parse(apiBase)
    if err != nil {
        return "", errors.Wrapf(err, "invalid api base %q", apiBase)
    }
    if u.Host == "" {
        return "", fmt.Errorf("invalid api base %q: no host", apiBase)
    }
    return u.Host, nil
}

// RemoteRefName builds "refs/remotes/<host>/a/b/c" for project "a:b" and package "c".
func RemoteRefName(host, project, pkg string) string {
    projectPath := strings.Join(strings.Split(project, ":"), "/")
    return path_refescape("refs/remotes/" + host + "/" + projectPath + "/" + pkg)
}

// ParseRemoteRefName reverses RemoteRefName, recovering (host, project, pkg).
func ParseRemoteRefName(ref string) (host, project, pkg string, err error) {
    unescaped, err := path_refunescape(ref)
    if err != nil {
        return "", "", "", err
    }
    rest := strip_prefix("refs/remotes", unescaped)
    parts := strings.Split(rest, "/")
    if len(parts) < 3 {
        return "", "", "", fmt.Errorf("%q: not a bsgit remote-tracking ref", ref)
    }
    host = parts[0]
    pkg = parts[len(parts)-1]
    project = strings.Join(parts[1:len(parts)-1], ":")
    return host, project, pkg, nil
}

// UpdateRemoteRef writes commit as the new value of refs/remotes/<host>/a/b/c,
// creating parent directories as needed. Direct file write, not `update-ref`.
func (env *Env) UpdateRemoteRef(host, project, pkg string, commit Sha1) error {
    gitdir := env.Repo.Path()
    refPath := filepath.Join(gitdir, RemoteRefName(host, project, pkg))

    if err := os.MkdirAll(filepath.Dir(refPath), 0777); err != nil {
        return errors.Wrapf(err, "update ref for %s/%s", project, pkg)
    }
    if err := writefile(refPath, []byte(commit.String()+"\n"), 0666); err != nil {
        return errors.Wrapf(err, "update ref for %s/%s", project, pkg)
    }
    return nil
}
