// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package room

import (
	"time"

	"mellium.im/communique/internal/roster"
)

// Event is something that happened in a room that may need to be shown.
// It is one of the types in this file.
type Event interface {
	roomEvent()
}

// InfoRequested is returned when our own presence first arrives.
// The caller should request the room information and call RosterComplete when
// the request finishes.
type InfoRequested struct{}

// RosterLoaded is the first event of an active room and carries the initial
// roster.
type RosterLoaded struct {
	Occupants []Occupant
}

// ConfigRequired is returned after RosterLoaded if the room is locked until
// it is configured.
type ConfigRequired struct{}

// NickChanged is returned when a nickname change we requested completes.
type NickChanged struct {
	Old, New string
}

// OccupantJoined is returned when a new occupant enters an active room.
type OccupantJoined struct {
	Occupant Occupant
}

// OccupantPresenceChanged is returned when an occupant changes their show or
// status.
type OccupantPresenceChanged struct {
	Occupant Occupant
}

// OccupantLeft is returned when an occupant leaves.
type OccupantLeft struct {
	Nick   string
	Status string
}

// OccupantNickChanged is returned when another occupant changes nickname.
type OccupantNickChanged struct {
	Old, New string
}

// OccupantKicked is returned when another occupant is kicked.
type OccupantKicked struct {
	Nick, Actor, Reason string
}

// OccupantBanned is returned when another occupant is banned.
type OccupantBanned struct {
	Nick, Actor, Reason string
}

// PrivilegesChanged is returned when the role or affiliation of an occupant
// changes without a change of presence.
// If Self is set the occupant is us.
type PrivilegesChanged struct {
	Occupant           Occupant
	Self               bool
	RoleChanged        bool
	AffiliationChanged bool
	Actor              string
	Reason             string
}

// Message is a group chat message.
type Message struct {
	Nick    string
	Body    string
	Stamp   time.Time
	History bool
}

// Subject is a subject change.
type Subject struct {
	Nick    string
	Subject string
}

// Broadcast is a message from the room itself.
type Broadcast struct {
	Body string
}

// Kicked is returned when we are kicked from the room.
type Kicked struct {
	Actor, Reason string
}

// Banned is returned when we are banned from the room.
type Banned struct {
	Actor, Reason string
}

// Destroyed is returned when the room is destroyed.
// NewJID is the optional replacement room.
type Destroyed struct {
	NewJID, Password, Reason string
}

// JoinFailed is returned when the room rejects our join.
type JoinFailed struct {
	Condition string
}

func (InfoRequested) roomEvent()           {}
func (RosterLoaded) roomEvent()            {}
func (ConfigRequired) roomEvent()          {}
func (NickChanged) roomEvent()             {}
func (OccupantJoined) roomEvent()          {}
func (OccupantPresenceChanged) roomEvent() {}
func (OccupantLeft) roomEvent()            {}
func (OccupantNickChanged) roomEvent()     {}
func (OccupantKicked) roomEvent()          {}
func (OccupantBanned) roomEvent()          {}
func (PrivilegesChanged) roomEvent()       {}
func (Message) roomEvent()                 {}
func (Subject) roomEvent()                 {}
func (Broadcast) roomEvent()               {}
func (Kicked) roomEvent()                  {}
func (Banned) roomEvent()                  {}
func (Destroyed) roomEvent()               {}
func (JoinFailed) roomEvent()              {}

// Visible reports whether e should be displayed given the occupant status
// filter and whether privilege changes are shown.
// Joins and departures are hidden by FilterNone, presence changes are only
// shown with FilterAll.
func Visible(e Event, statuses roster.Filter, privileges bool) bool {
	switch e.(type) {
	case OccupantJoined, OccupantLeft:
		return ShowJoin(statuses)
	case OccupantPresenceChanged:
		return ShowPresence(statuses)
	case PrivilegesChanged:
		return privileges
	case InfoRequested:
		return false
	}
	return true
}

// ShowJoin reports whether occupants entering and leaving are shown.
func ShowJoin(statuses roster.Filter) bool {
	return statuses != roster.FilterNone
}

// ShowPresence reports whether occupant presence changes are shown.
func ShowPresence(statuses roster.Filter) bool {
	return statuses == roster.FilterAll
}
