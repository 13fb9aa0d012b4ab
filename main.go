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

/*
bsgit - a bidirectional bridge between a Build Service package and a local
CAVCS repository.

    bsgit fetch [<ref>|<project>/<package>]
    bsgit pull  [<ref>|<project>/<package>]
    bsgit push  [<ref>|<project>/<package>]
    bsgit usermap [<login> [<address> [<realname>]]]
    bsgit dump
*/
package main

import (
    "flag"
    "fmt"
    "os"
    "os/signal"
    "path/filepath"
    "runtime/debug"

    cavcsgit "github.com/opensuse/bsgit/internal/git"
)

var verbose countFlag

func usage() {
    fmt.Fprintf(os.Stderr,
`bsgit [options] <command> [args]

    fetch [<ref>|<project>/<package>]   fetch BS revision history into a local branch
    pull  [<ref>|<project>/<package>]   fetch, then rebase onto the remote tip
    push  [<ref>|<project>/<package>]   replay local commits as new BS revisions
    usermap [<login> [<address> [<realname>]]]   show/set the login<->email mapping
    dump                                 dump mapping cache contents

  options:

    -A <api-base>      Build Service API base URL (e.g. https://api.opensuse.org)
    --depth=<n>        limit how many revisions back to walk (default: unbounded)
    -f --force         re-emit commits even if already mapped
    --git=<path>       path to the CAVCS binary (default: git)
    -v --verbose       increase verbosity (repeatable)
    -t --traceback     print a stack trace on fatal error
    -h --help          this help text
`)
}

func main() {
    flag.Usage = usage
    apiBase := flag.String("A", "", "Build Service API base URL")
    depth := flag.Int("depth", 0, "revisions to walk back (0 = unbounded)")
    force := flag.Bool("force", false, "re-emit commits even if already mapped")
    flag.BoolVar(force, "f", false, "shorthand for --force")
    cavcsBin := flag.String("git", "git", "path to the CAVCS binary")
    traceback := flag.Bool("traceback", false, "print a stack trace on fatal error")
    flag.BoolVar(traceback, "t", false, "shorthand for --traceback")
    flag.Var(&verbose, "v", "verbosity level")
    flag.Var(&verbose, "verbose", "verbosity level")
    flag.Parse()

    argv := flag.Args()
    if len(argv) == 0 {
        usage()
        os.Exit(2)
    }

    cmd, args := argv[0], argv[1:]
    switch cmd {
    case "fetch", "pull", "push":
        if len(args) > 1 {
            fmt.Fprintf(os.Stderr, "E: %s takes at most one argument\n", cmd)
            os.Exit(2)
        }
    case "dump":
        if len(args) > 0 {
            fmt.Fprintf(os.Stderr, "E: dump takes no arguments\n")
            os.Exit(2)
        }
    case "usermap":
        // 0-3 args
    default:
        fmt.Fprintf(os.Stderr, "E: unknown command %q\n", cmd)
        os.Exit(2)
    }

    repo, err := cavcsgit.OpenRepository(".")
    if err != nil {
        fmt.Fprintf(os.Stderr, "E: %s\n", err)
        os.Exit(1)
    }

    cache, err := OpenCache(filepath.Join(repo.Path(), "bsgit.cache"), repo)
    if err != nil {
        fmt.Fprintf(os.Stderr, "E: %s\n", err)
        os.Exit(1)
    }
    defer cache.Close()

    // interrupt: report once, release the cache handle, exit 1. Commits not
    // yet recorded in the cache are simply absent on the next run and get
    // rebuilt then.
    sigc := make(chan os.Signal, 1)
    signal.Notify(sigc, os.Interrupt)
    go func() {
        <-sigc
        fmt.Fprintln(os.Stderr, "E: interrupted")
        cache.Close()
        os.Exit(1)
    }()

    env := NewEnv(*cavcsBin, *apiBase, cache, repo)
    env.Depth = *depth
    env.Force = *force
    env.Verbose = int(verbose)
    env.Traceback = *traceback

    ctrl := NewController(env)

    here := myfuncname()
    defer errcatch(func(e *Error) {
        e = erraddcallingcontext(here, e)
        fmt.Fprintln(os.Stderr, e)
        if env.Traceback {
            fmt.Fprint(os.Stderr, "\n")
            debug.PrintStack()
        }
        // os.Exit bypasses the deferred Close above - release the cache
        // handle here so the fatal path does not leak it.
        cache.Close()
        os.Exit(1)
    })

    var cmdErr error
    switch cmd {
    case "fetch":
        cmdErr = ctrl.Fetch(firstArg(args))
    case "pull":
        cmdErr = ctrl.Pull(firstArg(args))
    case "push":
        cmdErr = ctrl.Push(firstArg(args))
    case "usermap":
        cmdErr = ctrl.Usermap(os.Stdout, args)
    case "dump":
        cmdErr = ctrl.Dump(os.Stdout)
    }

    if cmdErr != nil {
        raise(cmdErr)
    }
}

func firstArg(args []string) string {
    if len(args) == 0 {
        return ""
    }
    return args[0]
}
