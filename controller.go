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

// bsgit | the controller: fetch/pull/push/usermap/dump command dispatch
//
// Drives fetch/pull/push, resolving (project, package, local-branch) either
// from an explicit "<project>/<package>" argument or from a local branch's
// tracking config.
package main

import (
    "fmt"
    "io"
    "strings"

    "github.com/opensuse/bsgit/internal/shell"
)

// Controller wires C5 (and, through it, C6), C7 and C4 together behind the
// three top-level commands.
type Controller struct {
    env    *Env
    hb     *HistoryBuilder
    pusher *Pusher
    users  *UserMapper
}

func NewController(env *Env) *Controller {
    hb := NewHistoryBuilder(env)
    return &Controller{
        env:    env,
        hb:     hb,
        pusher: NewPusher(env, hb),
        users:  hb.users,
    }
}

// Fetch implements `bsgit fetch [<ref>|<project>/<package>]`.
func (c *Controller) Fetch(arg string) error {
    project, pkg, branch, err := c.resolveTriple(arg)
    if err != nil {
        return err
    }
    if err := c.reindexIfBranchExists(branch); err != nil {
        return err
    }

    tip, err := c.hb.Sync(project, pkg, c.env.Depth)
    if err != nil {
        return err
    }
    return c.ensureBranch(branch, project, pkg, tip)
}

// Pull implements `bsgit pull [<ref>|<project>/<package>]`: fetch, then
// rebase the local branch onto the remote-tracking ref.
func (c *Controller) Pull(arg string) error {
    project, pkg, branch, err := c.resolveTriple(arg)
    if err != nil {
        return err
    }
    if err := c.reindexIfBranchExists(branch); err != nil {
        return err
    }

    tip, err := c.hb.Sync(project, pkg, c.env.Depth)
    if err != nil {
        return err
    }
    if err := c.ensureBranch(branch, project, pkg, tip); err != nil {
        return err
    }

    server, err := HostOf(c.env.APIBase)
    if err != nil {
        return err
    }
    // rebase is the one long-running CAVCS operation this core drives - let
    // its progress reach the user's terminal directly instead of capturing it.
    if gerr, _, stderr := c.env.CAVCS.Run("rebase", RemoteRefName(server, project, pkg), branch,
        shell.RunWith{Stderr: c.env.cavcsProgress()}); gerr != nil {
        return fmt.Errorf("rebase %s onto %s/%s: %s", branch, project, pkg, stderr)
    }
    return nil
}

// Push implements `bsgit push [<ref>|<project>/<package>]`.
func (c *Controller) Push(arg string) error {
    project, pkg, branch, err := c.resolveTriple(arg)
    if err != nil {
        return err
    }
    if err := c.pusher.Push(project, pkg, branch, c.env.Depth); err != nil {
        return err
    }

    // re-verify the link is up-to-date: re-running C5 re-derives the base
    // commit and warns (GuessedBase) if anything drifted during the push.
    _, err = c.hb.Sync(project, pkg, c.env.Depth)
    return err
}

// Usermap implements `bsgit usermap [<login> [<address> [<realname>]]]`.
func (c *Controller) Usermap(w io.Writer, args []string) error {
    if len(args) == 0 {
        logins, err := c.env.Cache.Keys("email")
        if err != nil {
            return err
        }
        for _, login := range logins {
            email, _, err := c.env.Cache.Email(login)
            if err != nil {
                return err
            }
            fmt.Fprintf(w, "%s\t%s\n", login, email)
        }
        return nil
    }

    login := args[0]
    if len(args) == 1 {
        email, found, err := c.env.Cache.Email(login)
        if err != nil {
            return err
        }
        if !found {
            fmt.Fprintf(w, "%s: no mapping\n", login)
            return nil
        }
        fmt.Fprintf(w, "%s\t%s\n", login, email)
        return nil
    }

    email := args[1]
    realname := ""
    if len(args) >= 3 {
        realname = args[2]
    }
    return c.users.SetMapping(login, email, realname)
}

// Dump implements `bsgit dump`: dump mapping cache contents.
func (c *Controller) Dump(w io.Writer) error {
    for _, ns := range Namespaces() {
        keys, err := c.env.Cache.Keys(ns)
        if err != nil {
            return err
        }
        for _, k := range keys {
            v, found, err := c.env.Cache.Get(ns, k)
            if err != nil {
                return err
            }
            if found {
                fmt.Fprintf(w, "%s %s\t%s\n", ns, k, v)
            }
        }
    }
    return nil
}

// --- (project, package, local-branch) resolution --------------------------

func (c *Controller) resolveTriple(arg string) (project, pkg, branch string, err error) {
    switch {
    case arg == "":
        gerr, out, _ := c.env.CAVCS.Run("symbolic-ref", "--short", "HEAD")
        if gerr != nil {
            return "", "", "", fmt.Errorf("no branch checked out; give <project>/<package> explicitly")
        }
        branch = out

    case c.branchExists(arg):
        branch = arg

    default:
        project, pkg, err = splitProjectPackage(arg)
        if err != nil {
            return "", "", "", err
        }
        if c.env.APIBase == "" {
            return "", "", "", fmt.Errorf("no api base url known for %s/%s; use -A <api-base>", project, pkg)
        }
        return project, pkg, sanitizeBranchName(project, pkg), nil
    }

    host, project, pkg, err := c.branchTarget(branch)
    if err != nil {
        return "", "", "", err
    }
    // branch metadata also carries the api host - use it when no -A was given.
    if c.env.APIBase == "" {
        c.env.SetAPIBase("https://" + host)
    }
    return project, pkg, branch, nil
}

func (c *Controller) branchExists(branch string) bool {
    gerr, _, _ := c.env.CAVCS.Run("rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
    return gerr == nil
}

func splitProjectPackage(arg string) (project, pkg string, err error) {
    i := strings.LastIndex(arg, "/")
    if i < 0 {
        return "", "", fmt.Errorf("%q: expected <project>/<package> or an existing local branch", arg)
    }
    return arg[:i], arg[i+1:], nil
}

func sanitizeBranchName(project, pkg string) string {
    return path_refescape(project + "/" + pkg)
}

// branchTarget reads a branch's merge config - set to the remote-tracking
// ref by ensureBranch when the branch was first created - and reverses it
// through the ref naming rule to recover (host, project, package).
func (c *Controller) branchTarget(branch string) (host, project, pkg string, err error) {
    gerr, out, _ := c.env.CAVCS.Run("config", "--get", "branch."+branch+".merge")
    if gerr != nil || out == "" {
        return "", "", "", fmt.Errorf("branch %q has no bsgit tracking info; give <project>/<package> explicitly", branch)
    }
    return ParseRemoteRefName(out)
}

func (c *Controller) setBranchTarget(branch, project, pkg string) error {
    server, err := HostOf(c.env.APIBase)
    if err != nil {
        return err
    }
    if gerr, _, stderr := c.env.CAVCS.Run("config", "branch."+branch+".remote", "."); gerr != nil {
        return fmt.Errorf("record tracking info for %s: %s", branch, stderr)
    }
    if gerr, _, stderr := c.env.CAVCS.Run("config", "branch."+branch+".merge", RemoteRefName(server, project, pkg)); gerr != nil {
        return fmt.Errorf("record tracking info for %s: %s", branch, stderr)
    }
    return nil
}

func (c *Controller) reindexIfBranchExists(branch string) error {
    gerr, out, _ := c.env.CAVCS.Run("rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
    if gerr != nil || out == "" {
        return nil
    }
    tip, err := Sha1Parse(out)
    if err != nil {
        return err
    }
    return c.env.Cache.Reindex(tip)
}

// ensureBranch creates branch tracking (project, pkg) if it doesn't exist
// yet, and checks it out if HEAD is unborn.
func (c *Controller) ensureBranch(branch, project, pkg string, tip Sha1) error {
    if !c.branchExists(branch) {
        if gerr, _, stderr := c.env.CAVCS.Run("branch", branch, tip.String()); gerr != nil {
            return fmt.Errorf("create branch %s: %s", branch, stderr)
        }
        if err := c.setBranchTarget(branch, project, pkg); err != nil {
            return err
        }
    }

    if gerr, _, _ := c.env.CAVCS.Run("symbolic-ref", "-q", "HEAD"); gerr != nil {
        if gerr, _, stderr := c.env.CAVCS.Run("checkout", branch); gerr != nil {
            return fmt.Errorf("checkout %s: %s", branch, stderr)
        }
    }
    return nil
}
