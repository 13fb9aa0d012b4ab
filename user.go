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

// bsgit | the login <-> (name, email) user mapper
//
// Backed by cache.go's "email"/"login"/"realname" namespaces: login<->email
// is bijective, realname is not and may be refreshed. Queries go through
// env.Client.GetUser, which already special-cases the two pseudo-accounts
// before ever reaching the network.
package main

import "fmt"

// UserMapper resolves BS logins to commit-author identities on fetch, and
// commit-author emails back to BS logins on push.
type UserMapper struct {
    env *Env
}

func NewUserMapper(env *Env) *UserMapper {
    return &UserMapper{env: env}
}

// NameEmail returns the (realname, email) to stamp a commit's author/committer
// with for a history entry authored by login. Used by history.go.
//
// On first sight of a login the BS user record is fetched once and both
// directions of the mapping are cached; later commits by the same login hit
// the cache only.
func (m *UserMapper) NameEmail(login string) (name, email string, err error) {
    email, found, err := m.env.Cache.Email(login)
    if err != nil {
        return "", "", err
    }
    if !found {
        person, err := m.env.Client.GetUser(login)
        if err != nil {
            return "", "", err
        }
        if err := m.env.Cache.PutEmail(login, person.Email); err != nil {
            return "", "", err
        }
        if err := m.env.Cache.PutRealname(login, person.Realname); err != nil {
            return "", "", err
        }
        return person.Realname, person.Email, nil
    }

    name, found, err = m.env.Cache.Realname(login)
    if err != nil {
        return "", "", err
    }
    if !found {
        // email was cached but realname wasn't (e.g. an older cache) - refresh
        // from BS rather than fabricate a name.
        person, err := m.env.Client.GetUser(login)
        if err != nil {
            return "", "", err
        }
        if err := m.env.Cache.PutRealname(login, person.Realname); err != nil {
            return "", "", err
        }
        return person.Realname, email, nil
    }
    return name, email, nil
}

// LoginFor resolves a commit-author email back to a BS login for push,
// returning *UnmappedEmailError when the mapping is not yet known. Unlike
// NameEmail this never falls back to the network: the login/email bijection
// is only ever populated by a prior fetch (or an explicit `bsgit usermap`),
// never guessed from an email address alone. Used by pusher.go.
func (m *UserMapper) LoginFor(email string) (string, error) {
    login, found, err := m.env.Cache.LoginByEmail(email)
    if err != nil {
        return "", err
    }
    if !found {
        return "", &UnmappedEmailError{Email: email}
    }
    return login, nil
}

// SetMapping explicitly records a login<->email (and optionally realname)
// mapping - the `bsgit usermap` subcommand's body.
func (m *UserMapper) SetMapping(login, email, realname string) error {
    if existing, found, err := m.env.Cache.LoginByEmail(email); err != nil {
        return err
    } else if found && existing != login {
        return fmt.Errorf("email %s already mapped to login %s, not %s", email, existing, login)
    }
    if err := m.env.Cache.PutEmail(login, email); err != nil {
        return err
    }
    if realname != "" {
        return m.env.Cache.PutRealname(login, realname)
    }
    return nil
}
