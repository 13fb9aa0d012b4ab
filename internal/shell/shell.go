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

// Package shell runs the CAVCS binary as a subprocess.
//
// The core treats the CAVCS (content-addressed version control substrate)
// as a black box reachable only through a handful of named verbs
// (hash-object, mktree, commit-tree, ls-tree, cat-file, rev-parse,
// update-ref, merge-base, update-index, rebase). This package is the one
// place that knows how to spawn that binary and how to tell "it ran and
// exited with an error" from "it could not even run".
package shell

import (
    "bytes"
    "fmt"
    "os"
    "os/exec"
    "strings"
)

// how/whether to redirect stdio of the spawned process
type StdioRedirect int

const (
    Pipe        StdioRedirect = iota // connect stdio channel via PIPE to parent (default value)
    DontRedirect
)

type RunWith struct {
    Stdin  string
    Stdout StdioRedirect     // Pipe | DontRedirect
    Stderr StdioRedirect     // Pipe | DontRedirect
    Raw    bool              // !Raw -> stdout, stderr are stripped
    Env    map[string]string // !nil -> subprocess environment setup from Env
}

// Cmd runs argv against one particular CAVCS binary.
type Cmd struct {
    Bin string // path to the CAVCS binary, e.g. "git"

    // Debugf, if not nil, is called with the argv being run, for -v -v -v style tracing.
    Debugf func(format string, a ...interface{})
}

func (c *Cmd) debugf(format string, a ...interface{}) {
    if c.Debugf != nil {
        c.Debugf(format, a...)
    }
}

// run `<bin> *argv` -> error, stdout, stderr
func (c *Cmd) run(argv []string, ctx RunWith) (err error, stdout, stderr string) {
    c.debugf("%s %s", c.Bin, strings.Join(argv, " "))

    cmd := exec.Command(c.Bin, argv...)
    stdoutBuf := bytes.Buffer{}
    stderrBuf := bytes.Buffer{}

    if ctx.Stdin != "" {
        cmd.Stdin = strings.NewReader(ctx.Stdin)
    }

    switch ctx.Stdout {
    case Pipe:
        cmd.Stdout = &stdoutBuf
    case DontRedirect:
        cmd.Stdout = os.Stdout
    default:
        panic("shell: stdout redirect mode invalid")
    }

    switch ctx.Stderr {
    case Pipe:
        cmd.Stderr = &stderrBuf
    case DontRedirect:
        cmd.Stderr = os.Stderr
    default:
        panic("shell: stderr redirect mode invalid")
    }

    if ctx.Env != nil {
        env := []string{}
        for k, v := range ctx.Env {
            env = append(env, k+"="+v)
        }
        cmd.Env = env
    }

    err = cmd.Run()
    stdout = stdoutBuf.String()
    stderr = stderrBuf.String()

    if !ctx.Raw {
        stdout = strings.TrimSpace(stdout)
        stderr = strings.TrimSpace(stderr)
    }

    return err, stdout, stderr
}

// Error is returned when the CAVCS binary ran but exited with a non-zero status.
type Error struct {
    Argv   []string
    Stdin  string
    Stdout string
    Stderr string
    *exec.ExitError
}

func (e *Error) Error() string {
    msg := e.Context()
    if e.Stderr == "" {
        msg += "(failed)\n"
    }
    return msg
}

func (e *Error) Context() string {
    msg := strings.Join(e.Argv, " ")
    if e.Stdin == "" {
        msg += " </dev/null\n"
    } else {
        msg += " <<EOF\n" + e.Stdin
        if !strings.HasSuffix(msg, "\n") {
            msg += "\n"
        }
        msg += "EOF\n"
    }

    msg += e.Stderr
    if !strings.HasSuffix(msg, "\n") {
        msg += "\n"
    }
    return msg
}

// argv -> []string, ctx    (for passing argv + RunWith handy - see X() for details)
func argvOf(argv ...interface{}) (argvs []string, ctx RunWith) {
    ctxSeen := false

    for _, arg := range argv {
        switch arg := arg.(type) {
        case string:
            argvs = append(argvs, arg)
        case RunWith:
            if ctxSeen {
                panic("shell: multiple RunWith contexts")
            }
            ctx, ctxSeen = arg, true
        default:
            argvs = append(argvs, fmt.Sprint(arg))
        }
    }

    return argvs, ctx
}

// Run runs `<bin> *argv` -> err, stdout, stderr.
// err is returned only when the command could run and exited with an error
// status; if the binary itself could not be spawned, Run panics (that is an
// environment problem, not a CAVCS-level error a caller can usefully recover
// from).
//
// NOTE err is concrete *Error, not error
func (c *Cmd) Run(argv ...interface{}) (err *Error, stdout, stderr string) {
    return c.Run2(argvOf(argv...))
}

func (c *Cmd) Run2(argv []string, ctx RunWith) (err *Error, stdout, stderr string) {
    e, stdout, stderr := c.run(argv, ctx)
    eexec, _ := e.(*exec.ExitError)
    if e != nil && eexec == nil {
        panic(fmt.Errorf("%s %s: %s", c.Bin, strings.Join(argv, " "), e))
    }
    if eexec != nil {
        err = &Error{argv, ctx.Stdin, stdout, stderr, eexec}
    }
    return err, stdout, stderr
}

// X runs `<bin> *argv` -> stdout; panics with *Error on non-zero exit.
func (c *Cmd) X(argv ...interface{}) string {
    return c.X2(argvOf(argv...))
}

func (c *Cmd) X2(argv []string, ctx RunWith) string {
    gerr, stdout, _ := c.Run2(argv, ctx)
    if gerr != nil {
        panic(gerr)
    }
    return stdout
}
