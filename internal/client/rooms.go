// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"strings"

	"github.com/dustin/go-humanize/english"
	"go.uber.org/zap"
	"mellium.im/xmpp/muc"

	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/room"
	"mellium.im/communique/internal/session"
)

func (c *Client) roomPresence(ctx context.Context, ev network.RoomPresence) {
	r, ok := c.rooms.Get(ev.Room)
	if !ok {
		c.logger.Debug("room_presence_ignored", zap.String("room", ev.Room), zap.String("nick", ev.Nick))
		return
	}
	occ := room.Occupant{
		Nick:        ev.Nick,
		JID:         ev.JID,
		Presence:    ev.Presence,
		Status:      ev.Status,
		Role:        ev.Role,
		Affiliation: ev.Affiliation,
	}

	if ev.Self || ev.Nick == r.Nick {
		switch {
		case ev.Destroy != nil:
			c.renderRoom(ctx, r, r.Destroyed(ev.Destroy.NewJID, ev.Destroy.Password, ev.Destroy.Reason))
		case ev.Unavailable && ev.Kicked:
			c.renderRoom(ctx, r, r.Kicked(ev.Actor, ev.Reason))
		case ev.Unavailable && ev.Banned:
			c.renderRoom(ctx, r, r.Banned(ev.Actor, ev.Reason))
		case ev.Unavailable && ev.NewNick != "":
			// The room renamed us, or confirmed a change we asked for.
			if !r.NickChangePending() {
				r.RequestNickChange(ev.NewNick)
			}
		case ev.Unavailable:
			c.rooms.Leave(r.JID)
		default:
			c.renderRoom(ctx, r, r.SelfPresence(room.Self{
				Occupant:       occ,
				ConfigRequired: ev.Created,
				Actor:          ev.Actor,
				Reason:         ev.Reason,
			}))
		}
		return
	}

	var events []room.Event
	switch {
	case ev.Destroy != nil:
		events = r.OccupantOffline(ev.Nick, ev.Status)
	case ev.Unavailable && ev.NewNick != "":
		r.OccupantNickChange(ev.Nick, ev.NewNick)
		if p, ok := c.reg.Private(r.JID + "/" + ev.Nick); ok {
			c.infof(p, "** %s is now known as %s", ev.Nick, ev.NewNick)
		}
	case ev.Unavailable && ev.Kicked:
		events = r.OccupantKicked(ev.Nick, ev.Actor, ev.Reason)
	case ev.Unavailable && ev.Banned:
		events = r.OccupantBanned(ev.Nick, ev.Actor, ev.Reason)
	case ev.Unavailable:
		events = r.OccupantOffline(ev.Nick, ev.Status)
	default:
		events = r.OccupantPresence(occ)
	}
	c.renderRoom(ctx, r, events)
}

func (c *Client) joinError(ev network.JoinError) {
	r, ok := c.rooms.Get(ev.Room)
	if !ok {
		c.logger.Debug("join_error_ignored", zap.String("room", ev.Room), zap.String("condition", ev.Condition))
		return
	}
	cond := ev.Condition
	if ev.Text != "" {
		cond = ev.Text
	}
	c.renderRoom(c.ctx, r, r.JoinFailed(cond))
}

func (c *Client) roomMessage(ev network.RoomMessage) {
	r, ok := c.rooms.Get(ev.Room)
	if !ok {
		return
	}
	var events []room.Event
	switch {
	case ev.Subject != nil:
		events = r.SetSubject(ev.Nick, *ev.Subject)
	case ev.Nick == "":
		events = r.Broadcast(ev.Body)
	default:
		if !ev.History && c.store != nil {
			stamp := ev.Stamp
			if stamp.IsZero() {
				stamp = c.now()
			}
			if err := c.store.LogRoom(ev.Room, ev.Nick, ev.Body, stamp); err != nil {
				c.logger.Warn("log_failed", zap.String("room", ev.Room), zap.Error(err))
			}
		}
		events = r.Message(ev.Nick, ev.Body, ev.Stamp, ev.History)
	}
	c.renderRoom(c.ctx, r, events)
}

func (c *Client) invite(ev network.Invite) {
	if !c.rooms.AddInvite(ev.Room, ev.Password) {
		c.logger.Debug("invite_ignored", zap.String("room", ev.Room), zap.String("from", ev.From))
		return
	}
	c.inviters[ev.Room] = ev.From
	from := ev.From
	if bare, _ := split(ev.From); bare != "" {
		if contact, ok := c.roster.Get(bare); ok {
			from = contact.Display()
		}
	}
	text := from + " has invited you to join " + ev.Room
	if ev.Reason != "" {
		text += ", \"" + ev.Reason + "\""
	}
	c.cons("%s", text)
	c.cons("Use '/join %s' to accept the invitation", ev.Room)
	if c.cfg.Prefs.Beep {
		c.ui.Beep()
	}
	c.ui.Notify(c.reg.Console(), from, text)
}

func (c *Client) roomInfo(ev network.RoomInfo) {
	r, ok := c.rooms.Get(ev.Room)
	if !ok {
		return
	}
	if r.State() == room.RosterLoading {
		if ev.Err != nil {
			c.logger.Info("room_info_failed", zap.String("room", ev.Room), zap.Error(ev.Err))
		}
		c.renderRoom(c.ctx, r, r.RosterComplete())
		return
	}
	win, ok := c.reg.Room(ev.Room)
	if !ok {
		return
	}
	if ev.Err != nil {
		c.errorf(win, "Room info request failed: %v", ev.Err)
		return
	}
	if ev.Name != "" {
		c.infof(win, "Name: %s", ev.Name)
	}
	if len(ev.Features) > 0 {
		c.infof(win, "Features:")
		for _, f := range ev.Features {
			c.infof(win, "  %s", f)
		}
	}
}

func (c *Client) roomConfig(ev network.RoomConfig) {
	if ev.Err != nil {
		c.protocolError(ev.Room, "configuration of", ev.Err)
		return
	}
	cfg, _ := c.reg.OpenConfig(ev.Room, ev.Form)
	c.reg.FocusConversation(cfg)
	c.showForm(cfg)
}

func (c *Client) roomConfigResult(ev network.RoomConfigResult) {
	win := c.window(ev.Room)
	if ev.Err != nil {
		c.protocolError(ev.Room, "configuration of", ev.Err)
		return
	}
	if r, ok := c.rooms.Get(ev.Room); ok {
		r.Configured()
	}
	if ev.Cancel {
		c.infof(win, "Room configuration cancelled.")
		return
	}
	c.infof(win, "Room configuration successful.")
}

func (c *Client) affiliationList(ev network.AffiliationList) {
	win := c.window(ev.Room)
	if ev.Err != nil {
		c.errorf(win, "Error retrieving %s list: %v", ev.Affiliation, ev.Err)
		return
	}
	if len(ev.JIDs) == 0 {
		c.infof(win, "No users found with affiliation: %s", ev.Affiliation)
		return
	}
	c.infof(win, "Affiliation: %s", ev.Affiliation)
	for _, j := range ev.JIDs {
		c.infof(win, "  %s", j)
	}
}

func (c *Client) roleList(ev network.RoleList) {
	win := c.window(ev.Room)
	if ev.Err != nil {
		c.errorf(win, "Error retrieving %s list: %v", ev.Role, ev.Err)
		return
	}
	if len(ev.Nicks) == 0 {
		c.infof(win, "No occupants found with role: %s", ev.Role)
		return
	}
	c.infof(win, "Role: %s", ev.Role)
	r, _ := c.rooms.Get(ev.Room)
	for _, nick := range ev.Nicks {
		if r != nil {
			if o, ok := r.Occupant(nick); ok && o.JID != "" {
				c.infof(win, "  %s (%s)", nick, o.JID)
				continue
			}
		}
		c.infof(win, "  %s", nick)
	}
}

// renderRoom shows room events and carries out the actions they ask for.
func (c *Client) renderRoom(ctx context.Context, r *room.Room, events []room.Event) {
	filter := c.cfg.StatusFilter("muc")
	privileges := c.cfg.Prefs.Privileges
	for _, e := range events {
		if _, ok := e.(room.InfoRequested); ok {
			c.roomJoined(ctx, r)
			continue
		}
		win, ok := c.reg.Room(r.JID)
		if !ok {
			if closesRoom(e) {
				c.roomClosedEvent(r, e)
				c.rooms.Leave(r.JID)
			}
			continue
		}
		if room.Visible(e, filter, privileges) {
			c.showRoomEvent(win, r, e)
		}
		switch e.(type) {
		case room.RosterLoaded, room.OccupantJoined, room.OccupantLeft, room.OccupantNickChanged,
			room.OccupantKicked, room.OccupantBanned, room.OccupantPresenceChanged,
			room.PrivilegesChanged, room.NickChanged:
			c.ui.Occupants(win)
		case room.Kicked, room.Banned, room.Destroyed, room.JoinFailed:
			c.roomClosedEvent(r, e)
			if err := c.reg.Close(win.Num()); err != nil {
				c.logger.Warn("close_room_failed", zap.String("room", r.JID), zap.Error(err))
			}
			c.rooms.Leave(r.JID)
			if c.cfg.Prefs.AutoTidy {
				c.reg.Tidy()
			}
		}
	}
}

func closesRoom(e room.Event) bool {
	switch e.(type) {
	case room.Kicked, room.Banned, room.Destroyed, room.JoinFailed:
		return true
	}
	return false
}

// roomJoined opens the window of a room after our presence is accepted and
// asks for the room information that completes the join.
func (c *Client) roomJoined(ctx context.Context, r *room.Room) {
	win, created := c.reg.OpenRoom(r)
	if created {
		win.ShowOccupants = c.cfg.Prefs.Occupants
	}
	c.rooms.RemoveInvite(r.JID)
	delete(c.inviters, r.JID)
	if r.Autojoin {
		c.cons("-> Autojoined %s as %s (%s).", r.JID, r.Nick, session.DisplayNum(win.Num()))
	} else {
		c.reg.FocusConversation(win)
	}
	c.logger.Info("room_joined", zap.String("room", r.JID), zap.String("nick", r.Nick))
	if err := c.net.RequestRoomInfo(ctx, r.JID); err != nil {
		c.protocolError(r.JID, "info", err)
		c.renderRoom(ctx, r, r.RosterComplete())
	}
}

// roomClosedEvent reports the end of a room in the console.
func (c *Client) roomClosedEvent(r *room.Room, e room.Event) {
	switch e := e.(type) {
	case room.Kicked:
		c.cons("%s", withActor("<- Kicked from "+r.JID, e.Actor, e.Reason))
	case room.Banned:
		c.cons("%s", withActor("<- Banned from "+r.JID, e.Actor, e.Reason))
	case room.Destroyed:
		text := "<- Room destroyed: " + r.JID
		if e.Reason != "" {
			text += ", reason: " + e.Reason
		}
		c.cons("%s", text)
		if e.NewJID != "" {
			if e.Password != "" {
				c.cons("Replacement room: %s, password: %s", e.NewJID, e.Password)
			} else {
				c.cons("Replacement room: %s", e.NewJID)
			}
		}
	case room.JoinFailed:
		c.errorf(c.reg.Console(), "Error joining room %s, reason: %s", r.JID, e.Condition)
	}
}

func withActor(text, actor, reason string) string {
	if actor != "" {
		text += ", by: " + actor
	}
	if reason != "" {
		text += ", reason: " + reason
	}
	return text
}

func (c *Client) showRoomEvent(win *session.Room, r *room.Room, e room.Event) {
	privileges := c.cfg.Prefs.Privileges
	info := func(text string) {
		c.print(win, Line{Kind: LineRoom, Text: text})
	}
	switch e := e.(type) {
	case room.RosterLoaded:
		text := "-> You have joined the room as " + r.Nick
		if privileges {
			text += ", role: " + r.Role.String() + ", affiliation: " + r.Affiliation.String()
		}
		info(text)
		c.showOccupants(win, r, e.Occupants)
	case room.ConfigRequired:
		info("Room locked, requires configuration.")
		info("Use '/room accept' to accept the defaults")
		info("Use '/room destroy' to cancel and destroy the room")
		info("Use '/room config' to edit the room configuration")
	case room.NickChanged:
		info("** You are now known as " + e.New)
	case room.OccupantJoined:
		text := "-> " + e.Occupant.Nick + " has joined the room"
		if privileges {
			text += ", role: " + e.Occupant.Role.String() + ", affiliation: " + e.Occupant.Affiliation.String()
		}
		info(text)
	case room.OccupantPresenceChanged:
		text := "++ " + e.Occupant.Nick + " is " + e.Occupant.Presence.String()
		if e.Occupant.Status != "" {
			text += ", \"" + e.Occupant.Status + "\""
		}
		info(text)
	case room.OccupantLeft:
		text := "<- " + e.Nick + " has left the room"
		if e.Status != "" {
			text += ", \"" + e.Status + "\""
		}
		info(text + ".")
	case room.OccupantNickChanged:
		info("** " + e.Old + " is now known as " + e.New)
	case room.OccupantKicked:
		info(withActor("<- "+e.Nick+" has been kicked from the room", e.Actor, e.Reason))
	case room.OccupantBanned:
		info(withActor("<- "+e.Nick+" has been banned from the room", e.Actor, e.Reason))
	case room.PrivilegesChanged:
		info(withActor(privilegeText(e), e.Actor, e.Reason))
	case room.Message:
		kind := LineIncoming
		switch {
		case e.History:
			kind = LineHistory
		case e.Nick == r.Nick:
			kind = LineOutgoing
		}
		c.print(win, Line{Kind: kind, Stamp: e.Stamp, From: e.Nick, Text: e.Body})
		if kind == LineIncoming && c.reg.Incoming(win) && mentions(e.Body, r.Nick) {
			if c.cfg.Prefs.Beep {
				c.ui.Beep()
			}
			c.ui.Notify(win, e.Nick, e.Body)
		}
	case room.Subject:
		switch {
		case e.Nick == "" && e.Subject != "":
			info("Room subject: " + e.Subject)
		case e.Nick == "":
			info("Room subject cleared")
		case e.Subject == "":
			info("*" + e.Nick + " has cleared the room subject.")
		default:
			info("*" + e.Nick + " has set the room subject: " + e.Subject)
		}
	case room.Broadcast:
		info(e.Body)
	}
}

func privilegeText(e room.PrivilegesChanged) string {
	o := e.Occupant
	who := o.Nick + "'s"
	both := o.Nick + "'s role and affiliation have been changed"
	if e.Self {
		who = "Your"
		both = "Your role and affiliation have been changed"
	}
	switch {
	case e.RoleChanged && e.AffiliationChanged:
		return both + ", role: " + o.Role.String() + ", affiliation: " + o.Affiliation.String()
	case e.RoleChanged:
		return who + " role has been changed to: " + o.Role.String()
	}
	return who + " affiliation has been changed to: " + o.Affiliation.String()
}

func (c *Client) showOccupants(win *session.Room, r *room.Room, occupants []room.Occupant) {
	var nicks []string
	for _, o := range occupants {
		if o.Nick != r.Nick {
			nicks = append(nicks, o.Nick)
		}
	}
	c.ui.Occupants(win)
	if !room.ShowJoin(c.cfg.StatusFilter("muc")) {
		return
	}
	if len(nicks) == 0 {
		c.print(win, Line{Kind: LineRoom, Text: "Room is empty."})
		return
	}
	c.print(win, Line{Kind: LineRoom, Text: english.Plural(len(nicks), "occupant", "") + ": " + strings.Join(nicks, ", ")})
}

// showRoles lists the occupants of a room by role from the local roster.
func (c *Client) showRoles(win *session.Room, r *room.Room) {
	c.infof(win, "Room: %s", r.JID)
	c.infof(win, "Affiliation: %s", r.Affiliation)
	c.infof(win, "Role: %s", r.Role)
	for _, group := range []struct {
		role  muc.Role
		title string
	}{
		{muc.RoleModerator, "Moderators"},
		{muc.RoleParticipant, "Participants"},
		{muc.RoleVisitor, "Visitors"},
	} {
		nicks := r.ByRole(group.role)
		if len(nicks) == 0 {
			c.infof(win, "No %s found.", strings.ToLower(group.title))
			continue
		}
		c.infof(win, "%s:", group.title)
		for _, nick := range nicks {
			if o, ok := r.Occupant(nick); ok && o.JID != "" {
				c.infof(win, "  %s (%s)", nick, o.JID)
				continue
			}
			c.infof(win, "  %s", nick)
		}
	}
}

func (c *Client) autojoin(ctx context.Context) {
	if c.store == nil {
		return
	}
	bookmarks, err := c.store.Bookmarks()
	if err != nil {
		c.logger.Warn("bookmarks_failed", zap.Error(err))
		return
	}
	for _, b := range bookmarks {
		if !b.Autojoin {
			continue
		}
		nick := b.Nick
		if nick == "" {
			nick = c.defaultNick()
		}
		r, created := c.rooms.Join(b.JID, nick, b.Password)
		if !created {
			continue
		}
		r.Autojoin = true
		if err := c.net.JoinRoom(ctx, b.JID, nick, b.Password, c.presence, c.status); err != nil {
			c.protocolError(b.JID, "join", err)
		}
	}
}
