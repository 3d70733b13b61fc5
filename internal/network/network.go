// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -output=string.go -type=Status -linecomment

// Package network defines the events a connection delivers to the client and
// the parameters used to log in.
//
// Connections never touch client state.
// Everything they learn from the server is delivered as an Event on a
// channel that the client's event loop reads.
package network // import "mellium.im/communique/internal/network"

import (
	"time"

	"mellium.im/xmpp/muc"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/dataform"
	"mellium.im/communique/internal/roster"
)

// Status is the state of the connection.
type Status uint8

// A list of connection states.
const (
	Disconnected Status = iota // disconnected
	Started                    // started
	Connected                  // connected
)

// Login is the information needed to connect.
type Login struct {
	JID      string
	Password string
	Resource string

	// Server and Port, if set, override the address found with DNS.
	Server string
	Port   int
}

// Outgoing lists optional elements added to an outgoing chat message.
type Outgoing struct {
	// Active adds an active chat state.
	Active bool

	// Receipt requests a delivery receipt.
	Receipt bool
}

// Event is something that happened on the connection.
type Event interface {
	networkEvent()
}

// LoggedIn is sent when a session has been negotiated.
type LoggedIn struct {
	// JID is the full address that was bound.
	JID string
}

// LoginFailed is sent when a connection attempt fails.
type LoginFailed struct {
	Err error
}

// Lost is sent when an established connection ends without Disconnect being
// called.
type Lost struct {
	Err error
}

// Roster is the roster as fetched after login.
type Roster struct {
	Items []roster.Item
}

// RosterPush is a change to a single roster item.
// An item with subscription "remove" has been deleted.
type RosterPush struct {
	Item roster.Item
}

// Presence is an available presence from a contact.
type Presence struct {
	From     string
	Presence roster.Presence
	Status   string
	Priority int
	Caps     string

	// Idle is when the resource was last active, if it told us.
	Idle time.Time

	// Signed is the XEP-0027 signature of the status, if any.
	Signed string
}

// Unavailable is sent when a contact's resource goes offline.
type Unavailable struct {
	From   string
	Status string
}

// Subscription is a subscription request or answer.
// Type is one of subscribe, subscribed, unsubscribe, or unsubscribed.
type Subscription struct {
	From string
	Type string
}

// Message is a one to one chat message.
type Message struct {
	ID   string
	From string
	To   string
	Body string

	// Envelope is the XEP-0027 encrypted payload, if any.
	Envelope string
	Stamp    time.Time

	State    chatstate.State
	HasState bool

	// ReceiptRequested is set if the sender asked for a delivery receipt.
	ReceiptRequested bool

	// Carbon is set for copies of messages sent to or from another of our
	// resources.
	Carbon bool

	// Sent is set for carbons of messages sent by another of our resources.
	Sent bool
}

// Receipt reports that a message we sent was delivered.
type Receipt struct {
	From string
	ID   string
}

// MessageError is an error returned in place of a message we sent.
type MessageError struct {
	From      string
	ID        string
	Condition string
	Text      string
}

// Private is a private message from a room occupant.
type Private struct {
	From  string
	Body  string
	Stamp time.Time
}

// Destroy describes a room that has been destroyed.
type Destroy struct {
	NewJID   string
	Password string
	Reason   string
}

// RoomPresence is a presence from a room occupant, including ourselves.
type RoomPresence struct {
	Room        string
	Nick        string
	JID         string
	Presence    roster.Presence
	Status      string
	Role        muc.Role
	Affiliation muc.Affiliation

	// Self is set when the presence is about our own occupant (status 110).
	Self bool

	Unavailable bool

	// NewNick is set when the occupant is changing nickname (status 303).
	NewNick string

	// Created is set when the join created the room (status 201).
	Created bool

	Kicked bool
	Banned bool
	Actor  string
	Reason string

	Destroy *Destroy
}

// JoinError is sent when a room refuses our presence.
type JoinError struct {
	Room      string
	Condition string
	Text      string
}

// RoomMessage is a groupchat message.
// A message with an empty Nick was sent by the room itself.
type RoomMessage struct {
	Room string
	Nick string
	Body string

	// Subject is set for subject changes.
	Subject *string

	Stamp time.Time

	// History is set for messages the room replays on join.
	History bool
}

// Invite is an invitation to join a room.
type Invite struct {
	Room     string
	From     string
	Reason   string
	Password string
}

// RoomInfo is the result of a disco#info request to a room.
type RoomInfo struct {
	Room     string
	Name     string
	Features []string
	Err      error
}

// RoomConfig is the room configuration form.
type RoomConfig struct {
	Room string
	Form *dataform.Form
	Err  error
}

// RoomConfigResult is the result of submitting or cancelling a room
// configuration.
type RoomConfigResult struct {
	Room   string
	Cancel bool
	Err    error
}

// AffiliationList is the list of users with an affiliation in a room.
type AffiliationList struct {
	Room        string
	Affiliation muc.Affiliation
	JIDs        []string
	Err         error
}

// RoleList is the list of occupants with a role in a room.
type RoleList struct {
	Room  string
	Role  muc.Role
	Nicks []string
	Err   error
}

// RoomAdmin is the result of a room administration request such as a kick.
type RoomAdmin struct {
	Room   string
	Op     string
	Target string
	Err    error
}

// Pong is the answer to a ping.
// An empty JID means the server was pinged.
type Pong struct {
	JID string
	RTT time.Duration
	Err error
}

// Version is the answer to a software version request.
type Version struct {
	JID     string
	Name    string
	Version string
	OS      string
	Err     error
}

// XML is raw XML sent or received, delivered while tracing is on.
type XML struct {
	Incoming bool
	Data     string
}

func (LoggedIn) networkEvent()         {}
func (LoginFailed) networkEvent()      {}
func (Lost) networkEvent()             {}
func (Roster) networkEvent()           {}
func (RosterPush) networkEvent()       {}
func (Presence) networkEvent()         {}
func (Unavailable) networkEvent()      {}
func (Subscription) networkEvent()     {}
func (Message) networkEvent()          {}
func (Receipt) networkEvent()          {}
func (MessageError) networkEvent()     {}
func (Private) networkEvent()          {}
func (RoomPresence) networkEvent()     {}
func (JoinError) networkEvent()        {}
func (RoomMessage) networkEvent()      {}
func (Invite) networkEvent()           {}
func (RoomInfo) networkEvent()         {}
func (RoomConfig) networkEvent()       {}
func (RoomConfigResult) networkEvent() {}
func (AffiliationList) networkEvent()  {}
func (RoleList) networkEvent()         {}
func (RoomAdmin) networkEvent()        {}
func (Pong) networkEvent()             {}
func (Version) networkEvent()          {}
func (XML) networkEvent()              {}
