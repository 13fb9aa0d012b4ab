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

// bsgit | BS XML wire format
//
// Unknown attributes are ignored (encoding/xml does this by default - a
// struct field tag only picks out what it names). Missing optional fields
// must be tolerated: every optional wire field below is a Go zero value
// (empty string) when absent, which is what the rest of the core checks
// for.
package main

import "encoding/xml"

// wireEntry is one <entry name="..." md5="..."/> inside <directory>.
type wireEntry struct {
    Name string `xml:"name,attr"`
    MD5  string `xml:"md5,attr"`
}

// wireLinkinfo is <linkinfo project="..." package="..." srcmd5="..."
// lsrcmd5="..." rev="..." baserev="..." xsrcmd5="..."/>.
type wireLinkinfo struct {
    Project string `xml:"project,attr"`
    Package string `xml:"package,attr"`
    Srcmd5  string `xml:"srcmd5,attr"`
    Lsrcmd5 string `xml:"lsrcmd5,attr"`
    Rev     string `xml:"rev,attr"`
    Baserev string `xml:"baserev,attr"`
    Xsrcmd5 string `xml:"xsrcmd5,attr"`
}

// wireDirectory is the /source/<project>/<package> list-dir response body
// ("Package Status").
type wireDirectory struct {
    XMLName  xml.Name       `xml:"directory"`
    Rev      string         `xml:"rev,attr"`
    Srcmd5   string         `xml:"srcmd5,attr"`
    Xsrcmd5  string         `xml:"xsrcmd5,attr"`
    Linkinfo *wireLinkinfo  `xml:"linkinfo"`
    Entry    []wireEntry    `xml:"entry"`
    Patches  *wirePatches   `xml:"patches"`
}

// wireRevision is one <revision rev="..."><srcmd5>..</srcmd5>...</revision>
// inside the /_history response.
type wireRevision struct {
    Rev      string        `xml:"rev,attr"`
    Srcmd5   string        `xml:"srcmd5"`
    Time     int64         `xml:"time"`
    User     string        `xml:"user"`
    Comment  string        `xml:"comment"`
    Linkinfo *wireLinkinfo `xml:"linkinfo"`
}

// wireRevisionList is the /_history response body, newest first.
type wireRevisionList struct {
    XMLName  xml.Name       `xml:"revisionlist"`
    Revision []wireRevision `xml:"revision"`
}

// wirePerson is the /person/<login> response body.
type wirePerson struct {
    XMLName  xml.Name `xml:"person"`
    Login    string   `xml:"login"`
    Email    string   `xml:"email"`
    Realname string   `xml:"realname"`
}

// wireApply/wireDelete/wirePatches decode a `<patches>` element (a link's
// local patch-overlay description) into wireDirectory.Patches. Nothing in
// the core reads that field: this core never applies a patch, and telling
// "this is a link description, not an already-expanded tree" apart is done
// through wireLinkinfo alone.
type wireApply struct {
    Name string `xml:"name,attr"`
}
type wireDelete struct {
    Name string `xml:"name,attr"`
}
type wirePatches struct {
    Apply  []wireApply  `xml:"apply"`
    Delete []wireDelete `xml:"delete"`
}
