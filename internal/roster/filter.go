// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package roster

import (
	"errors"
)

// Filter is a display level for presence notifications.
type Filter uint8

// A list of display levels.
const (
	FilterAll    Filter = iota // all
	FilterOnline               // online
	FilterNone                 // none
)

// ParseFilter parses the name of a display level.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case FilterAll.String():
		return FilterAll, nil
	case FilterOnline.String():
		return FilterOnline, nil
	case FilterNone.String():
		return FilterNone, nil
	}
	return FilterAll, errors.New("roster: unknown filter " + s)
}

// ShowOnline reports whether a resource becoming available with presence p
// is displayed at level f.
// At FilterOnline only plain "online" presence is displayed.
func ShowOnline(f Filter, p Presence) bool {
	switch f {
	case FilterAll:
		return true
	case FilterOnline:
		return p == Online
	}
	return false
}

// ShowOffline reports whether a resource going offline is displayed at level
// f.
func ShowOffline(f Filter) bool {
	return f != FilterNone
}
