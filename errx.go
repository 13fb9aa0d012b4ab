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

// bsgit | exception-style error reporting for the top level of a command
//
// Most of the core returns ordinary errors - cache lookups and the like
// avoid exceptions for control flow. But the outermost boundary of every
// command - main(), and the top of each test - still wants "anything below
// here that panics with an error becomes a clean, one-line diagnostic with
// calling context". These few lines are the local wiring onto
// lab.nexedi.com/kirr/go123/exc that makes
// raise/raiseif/errcatch/erraddcontext/erraddcallingcontext/myfuncname work.
package main

import (
    "runtime"

    "lab.nexedi.com/kirr/go123/exc"
)

// Error is the exception type caught by errcatch.
type Error = exc.Error

// raise panics with arg wrapped into an *Error, to be caught by errcatch
// further up the stack.
func raise(arg interface{}) {
    exc.Raise(arg)
}

// raiseif panics via raise() if err != nil.
func raiseif(err error) {
    exc.Raiseif(err)
}

// raisef is raise(fmt.Errorf(format, a...)).
func raisef(format string, a ...interface{}) {
    exc.Raisef(format, a...)
}

// errcatch recovers a raise()d *Error and hands it to fn. A panicking
// non-runtime error (e.g. internal/shell's X() family panics with
// *shell.Error) is wrapped and handed over the same way; anything else is
// re-raised. recover() must run directly in the deferred function, so this
// cannot delegate to exc.Catch.
func errcatch(fn func(e *Error)) {
    r := recover()
    if r == nil {
        return
    }
    switch v := r.(type) {
    case *Error:
        fn(v)
    case runtime.Error:
        panic(r)
    case error:
        fn(aserror(v))
    default:
        panic(r)
    }
}

// erraddcontext adds a context line to e without unwinding the stack.
func erraddcontext(e *Error, arg interface{}) *Error {
    return exc.Addcontext(e, arg)
}

// erraddcallingcontext is erraddcontext, specialized for "names of the
// functions between where the error was raised and the function whose defer
// caught it" framing used at every command/test entry point.
func erraddcallingcontext(topfunc string, e *Error) *Error {
    return exc.Addcallingcontext(topfunc, e)
}

// aserror converts an arbitrary raise()d value into an *Error, without
// adding context.
func aserror(arg interface{}) *Error {
    return exc.Aserror(arg)
}

// myfuncname returns the name of its caller - used to label errcatch's
// calling context at each entry point. go123/my.FuncName cannot be reused
// here: it reports its own direct caller, which through this wrapper would
// always be myfuncname itself.
func myfuncname() string {
    pc, _, _, ok := runtime.Caller(1)
    if !ok {
        return ""
    }
    f := runtime.FuncForPC(pc)
    if f == nil {
        return ""
    }
    return f.Name()
}
