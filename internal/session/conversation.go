// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -output=string.go -type=Kind -linecomment

package session

import (
	"errors"
	"fmt"
	"time"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/dataform"
	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/room"
)

// Kind is the variant of a conversation.
type Kind uint8

// A list of conversation kinds.
const (
	KindConsole    Kind = iota // console
	KindChat                   // chat
	KindRoom                   // room
	KindPrivate                // private
	KindConfig                 // config
	KindXMLConsole             // xmlconsole
)

// ErrWrongKind is returned by the typed accessors when a conversation is of a
// different kind.
var ErrWrongKind = errors.New("session: wrong kind of conversation")

// Conversation is a window: the console, a chat, a room, a private chat with
// a room occupant, a room configuration form, or the XML console.
// It is implemented only by the types in this package.
type Conversation interface {
	Kind() Kind

	// Key is the identity of the conversation, unique among conversations of
	// the same kind.
	Key() string

	// Num is the window number.
	Num() int

	Unread() int
	Created() time.Time

	win() *window
}

type window struct {
	kind    Kind
	key     string
	num     int
	unread  int
	created time.Time
}

func (w *window) Kind() Kind         { return w.kind }
func (w *window) Key() string        { return w.key }
func (w *window) Num() int           { return w.num }
func (w *window) Unread() int        { return w.unread }
func (w *window) Created() time.Time { return w.created }
func (w *window) win() *window       { return w }

// Console is the system console in window 1.
type Console struct {
	window
}

// Chat is a one to one conversation with a contact.
type Chat struct {
	window

	// Resource pins the conversation to one of the contact's resources.
	// It is empty when messages go to the bare JID.
	Resource string

	// Trusted is set when the contact's OTR fingerprint has been verified.
	Trusted bool

	// SupportsStates is set once the contact has sent a chat state.
	SupportsStates bool

	// HistoryShown is set once the chat log has been printed.
	HistoryShown bool

	State *chatstate.Tracker

	mode encryption.Mode
	now  func() time.Time
}

// Addr returns the contact's bare JID.
func (c *Chat) Addr() string { return c.key }

// To returns the address messages are sent to: the pinned resource if there
// is one, otherwise the bare JID.
func (c *Chat) To() string {
	if c.Resource != "" {
		return c.key + "/" + c.Resource
	}
	return c.key
}

// Mode returns the encryption mode of the chat.
func (c *Chat) Mode() encryption.Mode { return c.mode }

// SetMode sets the encryption mode of the chat.
// It should only be called by an encryption.Arbiter.
func (c *Chat) SetMode(m encryption.Mode) { c.mode = m }

// StateActive records that a message was sent.
func (c *Chat) StateActive() { c.State.Active(c.now()) }

// ClearResource removes the resource override and resets the chat state.
func (c *Chat) ClearResource() {
	c.Resource = ""
	c.State.Reset(c.now())
}

// Room is a multi-user chat.
type Room struct {
	window

	MUC *room.Room

	// ShowOccupants controls the occupant list of the window.
	ShowOccupants bool
}

// Private is a private conversation with a room occupant.
// Its key is the occupant's full room JID.
type Private struct {
	window
}

// Room returns the bare JID of the room.
func (p *Private) Room() string {
	room, _ := splitFull(p.key)
	return room
}

// Nick returns the occupant's nickname.
func (p *Private) Nick() string {
	_, nick := splitFull(p.key)
	return nick
}

// Config is a room configuration form.
// Its key is the room JID.
type Config struct {
	window

	Form *dataform.Form
}

// Room returns the room being configured.
func (c *Config) Room() string { return c.key }

// Modified reports whether the form has unsaved changes.
func (c *Config) Modified() bool {
	return c.Form != nil && c.Form.Modified()
}

// XMLConsole shows the raw XML sent and received.
type XMLConsole struct {
	window
}

func splitFull(s string) (bare, resource string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

func wrongKind(c Conversation, want Kind) error {
	if c == nil {
		return fmt.Errorf("%w: want %v, got none", ErrWrongKind, want)
	}
	return fmt.Errorf("%w: want %v, got %v", ErrWrongKind, want, c.Kind())
}

// AsChat returns c as a *Chat.
func AsChat(c Conversation) (*Chat, error) {
	if ch, ok := c.(*Chat); ok {
		return ch, nil
	}
	return nil, wrongKind(c, KindChat)
}

// AsRoom returns c as a *Room.
func AsRoom(c Conversation) (*Room, error) {
	if r, ok := c.(*Room); ok {
		return r, nil
	}
	return nil, wrongKind(c, KindRoom)
}

// AsPrivate returns c as a *Private.
func AsPrivate(c Conversation) (*Private, error) {
	if p, ok := c.(*Private); ok {
		return p, nil
	}
	return nil, wrongKind(c, KindPrivate)
}

// AsConfig returns c as a *Config.
func AsConfig(c Conversation) (*Config, error) {
	if cfg, ok := c.(*Config); ok {
		return cfg, nil
	}
	return nil, wrongKind(c, KindConfig)
}
