// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package room

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Rooms is the set of rooms the account is in, or is trying to join, and the
// invitations it has not yet acted on.
type Rooms struct {
	rooms   map[string]*Room
	invites map[string]string
	logger  *zap.Logger
}

// NewRooms returns an empty registry.
func NewRooms(logger *zap.Logger) *Rooms {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rooms{
		rooms:   make(map[string]*Room),
		invites: make(map[string]string),
		logger:  logger,
	}
}

// Join returns the room with the given JID, creating it in the Joining state
// if we are not already in it.
// Created is false if the room already existed, in which case nick and
// password are ignored.
func (rs *Rooms) Join(jid, nick, password string) (r *Room, created bool) {
	if r, ok := rs.rooms[jid]; ok && r.State() != Closed {
		return r, false
	}
	r = New(jid, nick, password)
	rs.rooms[jid] = r
	rs.logger.Debug("room_joining", zap.String("room", jid), zap.String("nick", nick))
	return r, true
}

// Get returns the room with the given JID.
func (rs *Rooms) Get(jid string) (*Room, bool) {
	r, ok := rs.rooms[jid]
	return r, ok
}

// Active reports whether we are fully joined to jid.
func (rs *Rooms) Active(jid string) bool {
	r, ok := rs.rooms[jid]
	return ok && r.State() == Active
}

// Leave forgets a room.
func (rs *Rooms) Leave(jid string) {
	if _, ok := rs.rooms[jid]; ok {
		rs.logger.Debug("room_left", zap.String("room", jid))
	}
	delete(rs.rooms, jid)
}

// All returns every room sorted by JID.
func (rs *Rooms) All() []*Room {
	out := make([]*Room, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].JID < out[j].JID
	})
	return out
}

// Disconnected resets every room to Joining so that its roster is rebuilt on
// the next connection.
// Pending invitations are dropped.
func (rs *Rooms) Disconnected() {
	for _, r := range rs.rooms {
		r.Reset()
	}
	rs.invites = make(map[string]string)
}

// Rejoin returns the rooms that should be rejoined after logging in.
// Only rooms with a stored password are rejoined, the rest are forgotten.
func (rs *Rooms) Rejoin() []*Room {
	var out []*Room
	for _, r := range rs.All() {
		if r.Password == "" {
			delete(rs.rooms, r.JID)
			continue
		}
		r.Reset()
		out = append(out, r)
	}
	return out
}

// AddInvite records an invitation to room.
// It reports false and does nothing if we are already in the room or were
// already invited to it.
func (rs *Rooms) AddInvite(room, password string) bool {
	if r, ok := rs.rooms[room]; ok && r.State() != Closed {
		return false
	}
	if _, ok := rs.invites[room]; ok {
		return false
	}
	rs.invites[room] = password
	return true
}

// Invite returns the password sent with an invitation to room.
func (rs *Rooms) Invite(room string) (password string, ok bool) {
	password, ok = rs.invites[room]
	return password, ok
}

// AcceptInvite removes an invitation and returns its password so that the
// room can be joined.
func (rs *Rooms) AcceptInvite(room string) (password string, ok bool) {
	password, ok = rs.invites[room]
	delete(rs.invites, room)
	return password, ok
}

// Decline forgets an invitation and reports whether it existed.
func (rs *Rooms) Decline(room string) bool {
	return rs.RemoveInvite(room)
}

// RemoveInvite forgets an invitation and reports whether it existed.
func (rs *Rooms) RemoveInvite(room string) bool {
	_, ok := rs.invites[room]
	delete(rs.invites, room)
	return ok
}

// Invites returns the rooms we have been invited to, sorted.
func (rs *Rooms) Invites() []string {
	out := make([]string, 0, len(rs.invites))
	for room := range rs.invites {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// FindInvite completes a prefix of an invited room's JID.
func (rs *Rooms) FindInvite(prefix string) []string {
	var out []string
	for _, room := range rs.Invites() {
		if strings.HasPrefix(room, prefix) {
			out = append(out, room)
		}
	}
	return out
}
