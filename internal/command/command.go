// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package command parses and dispatches slash commands.
//
// Commands are registered with a Dispatcher along with the preconditions
// they need: a number of arguments, a connection, or a kind of window.
// The dispatcher checks preconditions before calling the handler so that
// handlers only deal with their own arguments.
package command // import "mellium.im/communique/internal/command"

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"mellium.im/communique/internal/session"
)

// ErrBadUsage is returned by handlers when their arguments are malformed.
// The dispatcher replaces it with the command's usage message.
var ErrBadUsage = errors.New("command: invalid usage")

// UserInputError is a mistake in a command line.
// Its message is shown to the user as is.
type UserInputError struct {
	Msg string
}

func (e UserInputError) Error() string {
	return e.Msg
}

// PreconditionError is returned when a command cannot run in the current
// state, for example while disconnected.
// Its message is shown to the user as is.
type PreconditionError struct {
	Msg string
}

func (e PreconditionError) Error() string {
	return e.Msg
}

// ErrNotConnected is returned for commands that need a connection.
var ErrNotConnected = PreconditionError{Msg: "You are not currently connected."}

// BadUsage returns the usage error for the named command.
func BadUsage(name string) UserInputError {
	return UserInputError{Msg: "Invalid usage, see '/help " + strings.TrimPrefix(name, "/") + "' for details."}
}

// Message returns the text shown to the user for an error returned by
// Execute.
func Message(err error) string {
	var input UserInputError
	if errors.As(err, &input) {
		return input.Msg
	}
	var pre PreconditionError
	if errors.As(err, &pre) {
		return pre.Msg
	}
	return "Error: " + err.Error()
}

// Handler runs a command.
type Handler func(ctx context.Context, args []string) error

// Command is a registered slash command.
type Command struct {
	// Name is the command without the leading slash.
	Name string

	// Min and Max bound the number of arguments.
	// A negative Max means there is no upper bound.
	Min, Max int

	// FreeText makes the last argument take the rest of the line, spaces and
	// quotes included.
	FreeText bool

	NeedsConnection bool

	// Kinds, if not empty, are the kinds of window the command can be used
	// in.
	Kinds []session.Kind

	// KindMessage is shown when the command is used in another kind of window.
	KindMessage string

	Synopsis    []string
	Description string
	Args        [][2]string

	Handler Handler
}

func (c *Command) allows(k session.Kind) bool {
	if len(c.Kinds) == 0 {
		return true
	}
	for _, kind := range c.Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Split breaks a command line into arguments.
// Arguments are separated by spaces and may be quoted with double quotes.
// If freetext is set and max is positive, the max'th argument is the rest of
// the line.
func Split(s string, max int, freetext bool) []string {
	var args []string
	s = strings.TrimSpace(s)
	for s != "" {
		if freetext && max > 0 && len(args) == max-1 {
			args = append(args, s)
			break
		}
		var tok string
		if s[0] == '"' {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				tok, s = s[1:], ""
			} else {
				tok, s = s[1:end+1], s[end+2:]
			}
		} else {
			end := strings.IndexAny(s, " \t")
			if end < 0 {
				tok, s = s, ""
			} else {
				tok, s = s[:end], s[end:]
			}
		}
		args = append(args, tok)
		s = strings.TrimLeft(s, " \t")
	}
	return args
}

// ParseBool parses an on|off argument.
func ParseBool(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, ErrBadUsage
}

// ParseRange parses an integer and checks that it is in [min, max].
func ParseRange(s string, min, max int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, UserInputError{Msg: "Could not convert \"" + s + "\" to a number."}
	}
	if n < min || n > max {
		return 0, UserInputError{Msg: "Value " + s + " out of range. Must be in " +
			strconv.Itoa(min) + ".." + strconv.Itoa(max) + "."}
	}
	return n, nil
}

// ParseOptions parses key value pairs such as "nick N password P".
// Every key must be one of keys, have a value, and appear only once.
func ParseOptions(args []string, keys ...string) (map[string]string, error) {
	opts := make(map[string]string)
	if len(args)%2 != 0 {
		return nil, ErrBadUsage
	}
	for i := 0; i < len(args); i += 2 {
		key, val := args[i], args[i+1]
		var known bool
		for _, k := range keys {
			if k == key {
				known = true
				break
			}
		}
		if !known {
			return nil, ErrBadUsage
		}
		if _, dup := opts[key]; dup {
			return nil, ErrBadUsage
		}
		opts[key] = val
	}
	return opts, nil
}

// Toggle returns the message shown after a boolean setting changes.
func Toggle(display string, on bool) string {
	if on {
		return display + " enabled."
	}
	return display + " disabled."
}
