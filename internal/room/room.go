// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -output=string.go -type=State -linecomment

// Package room tracks the state of joined multi-user chat rooms.
//
// The mellium.im/xmpp/muc package handles the protocol but leaves state
// tracking to the client.
// This package is that state: the occupant roster of each room, our own
// role and nickname, and the ordering rules that decide when events are
// shown.
//
// A room moves from Joining to RosterLoading when our own presence arrives
// and from RosterLoading to Active when the room information request
// completes.
// Occupant presence before that point silently builds the initial roster and
// messages, subject changes and broadcasts are queued.
// They are released in order by RosterComplete.
package room // import "mellium.im/communique/internal/room"

import (
	"encoding/xml"
	"sort"
	"time"

	"mellium.im/communique/internal/roster"
	"mellium.im/xmpp/muc"
)

// State is the lifecycle state of a room.
type State uint8

// A list of room states.
const (
	Joining       State = iota // joining
	RosterLoading              // roster-loading
	Active                     // active
	Closed                     // closed
)

// ParseRole parses the role attribute of a MUC item.
func ParseRole(s string) (muc.Role, error) {
	var r muc.Role
	err := r.UnmarshalXMLAttr(xml.Attr{Value: s})
	return r, err
}

// ParseAffiliation parses the affiliation attribute of a MUC item.
func ParseAffiliation(s string) (muc.Affiliation, error) {
	var a muc.Affiliation
	err := a.UnmarshalXMLAttr(xml.Attr{Value: s})
	return a, err
}

// Occupant is a participant in a room.
type Occupant struct {
	Nick        string
	JID         string
	Presence    roster.Presence
	Status      string
	Role        muc.Role
	Affiliation muc.Affiliation
}

// Self is our own presence in a room as reported by the room.
type Self struct {
	Occupant

	// ConfigRequired is set when the room was created by the join and is
	// locked until it is configured.
	ConfigRequired bool
	Actor          string
	Reason         string
}

// Room is a joined or joining multi-user chat.
type Room struct {
	JID         string
	Nick        string
	Password    string
	Role        muc.Role
	Affiliation muc.Affiliation
	Subject     string

	// Autojoin is set for rooms joined from a bookmark without focusing them.
	Autojoin bool

	state          State
	configRequired bool
	pendingNick    string
	occupants      map[string]Occupant
	nickChanges    map[string]string
	pending        []Event
}

// New returns a room in the Joining state.
func New(jid, nick, password string) *Room {
	return &Room{
		JID:         jid,
		Nick:        nick,
		Password:    password,
		occupants:   make(map[string]Occupant),
		nickChanges: make(map[string]string),
	}
}

// State returns the room's lifecycle state.
func (r *Room) State() State {
	return r.state
}

// ConfigRequired reports whether the room is locked pending configuration.
func (r *Room) ConfigRequired() bool {
	return r.configRequired
}

// NickChangePending reports whether we have asked to change nickname and the
// room has not yet confirmed it.
func (r *Room) NickChangePending() bool {
	return r.pendingNick != ""
}

// Occupant returns the occupant with the given nickname.
func (r *Room) Occupant(nick string) (Occupant, bool) {
	o, ok := r.occupants[nick]
	return o, ok
}

// Occupants returns every occupant sorted by nickname.
func (r *Room) Occupants() []Occupant {
	out := make([]Occupant, 0, len(r.occupants))
	for _, o := range r.occupants {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Nick < out[j].Nick
	})
	return out
}

// ByRole returns the nicknames of occupants with the given role.
func (r *Room) ByRole(role muc.Role) []string {
	var nicks []string
	for _, o := range r.Occupants() {
		if o.Role == role {
			nicks = append(nicks, o.Nick)
		}
	}
	return nicks
}

// Privileges returns the default privileges of our current role.
func (r *Room) Privileges() muc.Privileges {
	switch r.Role {
	case muc.RoleModerator:
		return muc.PrivilegesModerator
	case muc.RoleParticipant:
		return muc.PrivilegesParticipant
	case muc.RoleVisitor:
		return muc.PrivilegesVisitor
	}
	return 0
}

// Can reports whether our role grants all of p by default.
func (r *Room) Can(p muc.Privileges) bool {
	return r.Privileges()&p == p
}

// CanKick reports whether our role allows kicking occupants.
func (r *Room) CanKick() bool {
	return r.Can(muc.PrivilegeKick)
}

// CanModerate reports whether our role allows granting and revoking voice.
func (r *Room) CanModerate() bool {
	return r.Can(muc.PrivilegeGrantVoice | muc.PrivilegeRevokeVoice)
}

// RequestNickChange records that we asked the room to change our nickname.
func (r *Room) RequestNickChange(nick string) {
	r.pendingNick = nick
}

// SelfPresence applies a presence from the room about ourselves.
func (r *Room) SelfPresence(s Self) []Event {
	if r.state == Closed {
		return nil
	}
	oldRole, oldAff := r.Role, r.Affiliation
	r.Role = s.Role
	r.Affiliation = s.Affiliation

	if r.pendingNick != "" {
		old := r.Nick
		delete(r.occupants, old)
		r.Nick = s.Nick
		r.pendingNick = ""
		r.occupants[s.Nick] = s.Occupant
		return []Event{NickChanged{Old: old, New: s.Nick}}
	}

	r.Nick = s.Nick
	r.occupants[s.Nick] = s.Occupant

	switch r.state {
	case Joining:
		r.state = RosterLoading
		if s.ConfigRequired {
			r.configRequired = true
		}
		return []Event{InfoRequested{}}
	case Active:
		roleChanged := oldRole != s.Role
		affChanged := oldAff != s.Affiliation
		if roleChanged || affChanged {
			return []Event{PrivilegesChanged{
				Occupant:           s.Occupant,
				Self:               true,
				RoleChanged:        roleChanged,
				AffiliationChanged: affChanged,
				Actor:              s.Actor,
				Reason:             s.Reason,
			}}
		}
	}
	return nil
}

// RosterComplete marks the initial roster as received.
// It moves the room to Active and returns RosterLoaded followed by
// everything queued while loading, in arrival order.
// It only has an effect the first time it is called after SelfPresence.
func (r *Room) RosterComplete() []Event {
	if r.state != RosterLoading {
		return nil
	}
	r.state = Active
	events := make([]Event, 0, len(r.pending)+2)
	events = append(events, RosterLoaded{Occupants: r.Occupants()})
	events = append(events, r.pending...)
	r.pending = nil
	if r.configRequired {
		events = append(events, ConfigRequired{})
	}
	return events
}

func (r *Room) queue(e Event) []Event {
	if r.state == Active {
		return []Event{e}
	}
	if r.state != Closed {
		r.pending = append(r.pending, e)
	}
	return nil
}

// Pending returns the number of queued events.
func (r *Room) Pending() int {
	return len(r.pending)
}

// OccupantPresence applies an available presence from another occupant.
func (r *Room) OccupantPresence(o Occupant) []Event {
	if r.state == Closed {
		return nil
	}
	old, known := r.occupants[o.Nick]
	r.occupants[o.Nick] = o
	if r.state != Active {
		delete(r.nickChanges, o.Nick)
		return nil
	}

	if oldNick, ok := r.nickChanges[o.Nick]; ok {
		delete(r.nickChanges, o.Nick)
		return []Event{OccupantNickChanged{Old: oldNick, New: o.Nick}}
	}
	if !known {
		return []Event{OccupantJoined{Occupant: o}}
	}
	if old.Presence != o.Presence || old.Status != o.Status {
		return []Event{OccupantPresenceChanged{Occupant: o}}
	}
	roleChanged := old.Role != o.Role
	affChanged := old.Affiliation != o.Affiliation
	if roleChanged || affChanged {
		return []Event{PrivilegesChanged{
			Occupant:           o,
			RoleChanged:        roleChanged,
			AffiliationChanged: affChanged,
		}}
	}
	return nil
}

// OccupantNickChange records that an occupant is leaving under an old
// nickname and will return under a new one.
func (r *Room) OccupantNickChange(old, nick string) {
	delete(r.occupants, old)
	r.nickChanges[nick] = old
}

// OccupantOffline removes an occupant who left the room.
func (r *Room) OccupantOffline(nick, status string) []Event {
	if _, ok := r.occupants[nick]; !ok || r.state == Closed {
		return nil
	}
	delete(r.occupants, nick)
	if r.state != Active {
		return nil
	}
	return []Event{OccupantLeft{Nick: nick, Status: status}}
}

// OccupantKicked removes an occupant who was kicked by a moderator.
func (r *Room) OccupantKicked(nick, actor, reason string) []Event {
	delete(r.occupants, nick)
	if r.state != Active {
		return nil
	}
	return []Event{OccupantKicked{Nick: nick, Actor: actor, Reason: reason}}
}

// OccupantBanned removes an occupant who was banned.
func (r *Room) OccupantBanned(nick, actor, reason string) []Event {
	delete(r.occupants, nick)
	if r.state != Active {
		return nil
	}
	return []Event{OccupantBanned{Nick: nick, Actor: actor, Reason: reason}}
}

// Message applies a group chat message.
func (r *Room) Message(nick, body string, stamp time.Time, history bool) []Event {
	return r.queue(Message{Nick: nick, Body: body, Stamp: stamp, History: history})
}

// SetSubject applies a subject change.
// Clearing a subject that was never set reports nothing.
func (r *Room) SetSubject(nick, subject string) []Event {
	if subject == "" && r.Subject == "" {
		return nil
	}
	r.Subject = subject
	return r.queue(Subject{Nick: nick, Subject: subject})
}

// Broadcast applies a message sent by the room itself.
func (r *Room) Broadcast(body string) []Event {
	return r.queue(Broadcast{Body: body})
}

// Configured clears the config-required flag after the room configuration
// form is submitted or an instant room is accepted.
func (r *Room) Configured() {
	r.configRequired = false
}

func (r *Room) close() {
	r.state = Closed
	r.pending = nil
	r.pendingNick = ""
	r.occupants = make(map[string]Occupant)
	r.nickChanges = make(map[string]string)
}

// Kicked closes the room after we were kicked.
func (r *Room) Kicked(actor, reason string) []Event {
	r.close()
	return []Event{Kicked{Actor: actor, Reason: reason}}
}

// Banned closes the room after we were banned.
func (r *Room) Banned(actor, reason string) []Event {
	r.close()
	return []Event{Banned{Actor: actor, Reason: reason}}
}

// Destroyed closes a room that no longer exists.
// If the room named a replacement it is reported so that the user can join
// it; the replacement is never joined automatically.
func (r *Room) Destroyed(newJID, password, reason string) []Event {
	r.close()
	return []Event{Destroyed{NewJID: newJID, Password: password, Reason: reason}}
}

// JoinFailed closes a room that could not be joined.
func (r *Room) JoinFailed(condition string) []Event {
	r.close()
	return []Event{JoinFailed{Condition: condition}}
}

// Reset puts the room back in the Joining state with an empty roster.
// It is used before rejoining on a new connection.
func (r *Room) Reset() {
	r.close()
	r.state = Joining
	r.configRequired = false
}
