// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -output=string.go -type=State -linecomment

// Package chatstate implements the outgoing side of XEP-0085: Chat State
// Notifications.
//
// A Tracker is driven by user activity and by periodic calls to Idle.
// Each method returns the state that should be sent to the contact, if any.
// Timers are soft: a late call to Idle only delays the transition.
package chatstate // import "mellium.im/communique/internal/chatstate"

import (
	"encoding/xml"
	"errors"
	"time"
)

// NS is the namespace used by chat state notifications.
const NS = "http://jabber.org/protocol/chatstates"

// State is a chat state.
type State uint8

// A list of chat states.
const (
	Active    State = iota // active
	Composing              // composing
	Paused                 // paused
	Inactive               // inactive
	Gone                   // gone
)

// Parse converts the local name of a chat state element.
func Parse(s string) (State, error) {
	for st := Active; st <= Gone; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return Active, errors.New("chatstate: unknown state " + s)
}

// Name returns the element name of the state.
func (s State) Name() xml.Name {
	return xml.Name{Space: NS, Local: s.String()}
}

// Timeouts between states when the user is idle.
const (
	PausedTimeout   = 10 * time.Second
	InactiveTimeout = 30 * time.Second
	GoneTimeout     = 10 * time.Minute
)

// Tracker is the chat state of one conversation.
// The zero value is in the Gone state with its timer started at the zero
// time; use New to start the timer at a specific time.
type Tracker struct {
	state State
	since time.Time
}

// New returns a tracker for a conversation with no activity yet.
func New(now time.Time) *Tracker {
	return &Tracker{state: Gone, since: now}
}

// State returns the current state.
func (t *Tracker) State() State {
	return t.state
}

func (t *Tracker) set(s State, now time.Time) (State, bool) {
	t.since = now
	if t.state == s {
		return s, false
	}
	t.state = s
	return s, true
}

// Typing is called on each key press in the conversation.
// Composing is returned the first time.
func (t *Tracker) Typing(now time.Time) (State, bool) {
	return t.set(Composing, now)
}

// Active is called when a message is sent.
// The active state is carried in the message itself so it is never reported
// as a change.
func (t *Tracker) Active(now time.Time) {
	t.state = Active
	t.since = now
}

// Idle advances the state if enough time has passed since the last change.
func (t *Tracker) Idle(now time.Time) (State, bool) {
	elapsed := now.Sub(t.since)
	switch t.state {
	case Composing:
		if elapsed > PausedTimeout {
			return t.set(Paused, now)
		}
	case Active, Paused:
		if elapsed > InactiveTimeout {
			return t.set(Inactive, now)
		}
	case Inactive:
		if elapsed > GoneTimeout {
			return t.set(Gone, now)
		}
	}
	return t.state, false
}

// Close is called when the conversation is closed.
func (t *Tracker) Close(now time.Time) (State, bool) {
	return t.set(Gone, now)
}

// Reset forgets all activity.
// Nothing is sent.
func (t *Tracker) Reset(now time.Time) {
	t.state = Gone
	t.since = now
}
