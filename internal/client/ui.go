// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"time"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
)

// LineKind is the kind of a line of output.
type LineKind uint8

// A list of line kinds.
const (
	LineInfo LineKind = iota
	LineError
	LineIncoming
	LineOutgoing
	LineHistory

	// LineRoom is a notice about a room, such as an occupant joining.
	LineRoom

	// LineXML is raw XML shown in the XML console.
	LineXML
)

// Line is a line of output in a window.
type Line struct {
	Kind  LineKind
	Stamp time.Time

	// From is the sender of a message.
	From string
	Text string

	// Mode is the encryption used for a message.
	Mode encryption.Mode

	// ID is the stanza ID of an outgoing message, used to mark delivery.
	ID string
}

// UI displays the state of the client.
// All methods are called from the event loop.
type UI interface {
	// Print adds a line to a window.
	Print(c session.Conversation, l Line)

	// Windows is called when windows are opened, closed, renumbered, or
	// focused.
	Windows(all []session.Conversation, current session.Conversation)

	// Occupants is called when the occupants of a room change.
	Occupants(r *session.Room)

	// Roster is called when the roster changes.
	Roster(contacts []*roster.Contact)

	// Typing shows the chat state of a contact.
	Typing(c *session.Chat, st chatstate.State)

	// Receipt marks a message as delivered.
	Receipt(c session.Conversation, id string)

	// Clear removes the contents of a window.
	Clear(c session.Conversation)

	// Notify alerts the user of a message in a window without focus.
	Notify(c session.Conversation, from, text string)

	Beep()
}

// Prompter asks the user for secrets.
// Password blocks the event loop until the user answers.
type Prompter interface {
	Password(prompt string) (string, error)
}

type nopUI struct{}

func (nopUI) Print(session.Conversation, Line)                     {}
func (nopUI) Windows([]session.Conversation, session.Conversation) {}
func (nopUI) Occupants(*session.Room)                              {}
func (nopUI) Roster([]*roster.Contact)                             {}
func (nopUI) Typing(*session.Chat, chatstate.State)                {}
func (nopUI) Receipt(session.Conversation, string)                 {}
func (nopUI) Clear(session.Conversation)                           {}
func (nopUI) Notify(session.Conversation, string, string)          {}
func (nopUI) Beep()                                                {}
