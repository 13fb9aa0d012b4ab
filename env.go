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

// bsgit | run-time configuration threaded explicitly through the core
package main

import (
    "fmt"

    cavcsgit "github.com/opensuse/bsgit/internal/git"
    "github.com/opensuse/bsgit/internal/shell"
)

// Env is the configuration/state record: one value, passed explicitly
// through the core, instead of mutable package-level state.
type Env struct {
    APIBase   string // e.g. "https://api.opensuse.org"
    Depth     int    // 0 == unbounded
    Force     bool   // re-emit commits even if a revision is already mapped
    Verbose   int    // 0 silent, 1 info, 2 progress, 3 debug
    Traceback bool   // print a stack trace on fatal error

    CAVCS *shell.Cmd          // the CAVCS binary (e.g. "git"), bound once at startup
    Repo  *cavcsgit.Repository // read access to the same repository, for refs.go and pusher.go
    Cache *Cache              // the open mapping cache; released by the caller on exit

    Client *Client // remote client (C2); one per Env, memoizes across calls
}

// NewEnv wires a *shell.Cmd (whose Debugf is bound back to env.debugf) and a
// *Client around the given cavcsBin/apiBase/cache/repo.
func NewEnv(cavcsBin, apiBase string, cache *Cache, repo *cavcsgit.Repository) *Env {
    env := &Env{
        APIBase: apiBase,
        Verbose: 1,
        Cache:   cache,
        Repo:    repo,
    }
    env.CAVCS = &shell.Cmd{Bin: cavcsBin, Debugf: env.debugf}
    env.Client = NewClient(apiBase)
    return env
}

// SetAPIBase (re)binds the API base after Env construction - used when the
// base is learned from a branch's merge config instead of the -A flag.
func (env *Env) SetAPIBase(apiBase string) {
    env.APIBase = apiBase
    env.Client = NewClient(apiBase)
}

// what to pass to the CAVCS subprocess stdout/stderr
func (env *Env) cavcsProgress() shell.StdioRedirect {
    if env.Verbose > 1 {
        return shell.DontRedirect
    }
    return shell.Pipe
}

func (env *Env) infof(format string, a ...interface{}) {
    if env.Verbose > 0 {
        fmt.Printf(format, a...)
        fmt.Println()
    }
}

func (env *Env) debugf(format string, a ...interface{}) {
    if env.Verbose > 2 {
        fmt.Printf(format, a...)
        fmt.Println()
    }
}

func (env *Env) warnf(format string, a ...interface{}) {
    fmt.Printf("W: "+format, a...)
    fmt.Println()
}
