// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
)

// Handle applies an event from the network.
func (c *Client) Handle(ctx context.Context, ev network.Event) {
	switch ev := ev.(type) {
	case network.LoggedIn:
		c.loggedIn(ctx, ev)
	case network.LoginFailed:
		c.logger.Warn("login_failed", zap.String("account", c.account), zap.Error(ev.Err))
		c.errorf(c.reg.Console(), "Login failed.")
	case network.Lost:
		c.lostConnection(ev)
	case network.Roster:
		c.roster.Clear()
		for _, it := range ev.Items {
			c.roster.Update(it)
		}
		c.ui.Roster(c.roster.Contacts())
	case network.RosterPush:
		c.rosterPush(ev)
	case network.Presence:
		c.contactOnline(ev)
	case network.Unavailable:
		c.contactOffline(ev)
	case network.Subscription:
		c.subscription(ev)
	case network.Message:
		c.message(ctx, ev)
	case network.Receipt:
		bare, _ := split(ev.From)
		if ch, ok := c.reg.Chat(bare); ok {
			c.ui.Receipt(ch, ev.ID)
		}
	case network.MessageError:
		c.messageError(ev)
	case network.Private:
		c.private(ev)
	case network.RoomPresence:
		c.roomPresence(ctx, ev)
	case network.JoinError:
		c.joinError(ev)
	case network.RoomMessage:
		c.roomMessage(ev)
	case network.Invite:
		c.invite(ev)
	case network.RoomInfo:
		c.roomInfo(ev)
	case network.RoomConfig:
		c.roomConfig(ev)
	case network.RoomConfigResult:
		c.roomConfigResult(ev)
	case network.AffiliationList:
		c.affiliationList(ev)
	case network.RoleList:
		c.roleList(ev)
	case network.RoomAdmin:
		if ev.Err != nil {
			c.protocolError(ev.Room, ev.Op+" "+ev.Target+" in", ev.Err)
		}
	case network.Pong:
		c.pong(ev)
	case network.Version:
		c.version(ev)
	case network.XML:
		c.xml(ev)
	case nil:
	default:
		c.logger.Debug("event_ignored", zap.Any("event", ev))
	}
	c.ui.Windows(c.reg.All(), c.reg.Current())
}

func (c *Client) loggedIn(ctx context.Context, ev network.LoggedIn) {
	reconnected := c.reconnect != nil
	c.self = ev.JID
	c.reconnect = nil
	c.autoAway = false
	c.lastPing = c.now()
	c.lastActivity = c.now()

	// A reconnection keeps the presence that was set before the loss.
	if !reconnected {
		c.presence, c.status = c.loginPresence(), ""
	}
	p, status := c.presence, c.status
	pri := c.priority(p)
	c.logger.Info("logged_in", zap.String("jid", ev.JID), zap.Stringer("presence", p))
	c.cons("%s logged in successfully, %s (priority %d).", ev.JID, p, pri)
	if err := c.net.SendPresence(ctx, "", p, status, pri); err != nil {
		c.protocolError("", "presence", err)
	}
	if c.cfg.Prefs.Carbons {
		if err := c.net.Carbons(ctx, true); err != nil {
			c.protocolError("", "carbons", err)
		}
	}

	for _, r := range c.rooms.Rejoin() {
		c.logger.Info("room_rejoin", zap.String("room", r.JID))
		if err := c.net.JoinRoom(ctx, r.JID, r.Nick, r.Password, p, status); err != nil {
			c.protocolError(r.JID, "join", err)
		}
	}
	c.autojoin(ctx)
}

// loginPresence is the presence the account is configured to log in with.
func (c *Client) loginPresence() roster.Presence {
	if c.acct == nil {
		return roster.Online
	}
	login := c.acct.LoginStatus
	if login == "last" {
		login = c.acct.LastPresence
	}
	p, err := roster.ParsePresence(login)
	if err != nil {
		return roster.Online
	}
	return p
}

func (c *Client) lostConnection(ev network.Lost) {
	c.logger.Warn("connection_lost", zap.Error(ev.Err))
	c.errorf(c.reg.Console(), "Lost connection.")
	c.disconnected()
	c.lost(c.now())
	if c.reconnect != nil {
		c.cons("Attempting reconnect every %d seconds.", c.cfg.Prefs.Reconnect)
	}
}

// disconnected clears everything that only exists while connected.
// Rooms are kept so that they can be rejoined.
func (c *Client) disconnected() {
	c.roster.Clear()
	c.rooms.Disconnected()
	c.reg.LostConnection()
	for k := range c.inviters {
		delete(c.inviters, k)
	}
	c.self = ""
	c.autopinging = false
	c.ui.Roster(nil)
}

func (c *Client) rosterPush(ev network.RosterPush) {
	if ev.Item.Subscription == roster.SubRemove {
		c.roster.Remove(ev.Item.JID)
	} else {
		contact, _ := c.roster.Update(ev.Item)
		switch contact.Subscription {
		case roster.SubFrom, roster.SubBoth:
			c.roster.RemoveRequest(contact.JID)
		}
	}
	c.ui.Roster(c.roster.Contacts())
}

func (c *Client) contactOnline(ev network.Presence) {
	bare, resource := split(ev.From)
	if self, _ := split(c.self); strings.EqualFold(bare, self) {
		return
	}
	res := roster.Resource{
		Name:     resource,
		Presence: ev.Presence,
		Status:   ev.Status,
		Priority: ev.Priority,
		Caps:     ev.Caps,
	}
	if !c.roster.ApplyPresence(bare, res, ev.Idle) {
		c.logger.Debug("presence_ignored", zap.String("from", ev.From))
		return
	}
	contact, _ := c.roster.Get(bare)
	c.ui.Roster(c.roster.Contacts())
	if !contact.Notifies() {
		return
	}

	text := "++ " + contact.Display()
	if resource != "" {
		text += " (" + resource + ")"
	}
	text += " is " + ev.Presence.String()
	if ev.Status != "" {
		text += ", \"" + ev.Status + "\""
	}
	if roster.ShowOnline(c.cfg.StatusFilter("console"), ev.Presence) {
		c.print(c.reg.Console(), Line{Kind: LineInfo, Text: text})
	}
	if ch, ok := c.reg.Chat(bare); ok && c.cfg.Prefs.Presence && roster.ShowOnline(c.cfg.StatusFilter("chat"), ev.Presence) {
		c.print(ch, Line{Kind: LineInfo, Text: text})
	}
}

func (c *Client) contactOffline(ev network.Unavailable) {
	bare, resource := split(ev.From)
	removed, _ := c.roster.ApplyOffline(bare, resource, ev.Status)
	if !removed {
		return
	}
	contact, _ := c.roster.Get(bare)
	c.ui.Roster(c.roster.Contacts())

	text := "-- " + contact.Display()
	if resource != "" {
		text += " (" + resource + ")"
	}
	text += " is offline"
	if ev.Status != "" {
		text += ", \"" + ev.Status + "\""
	}
	if roster.ShowOffline(c.cfg.StatusFilter("console")) {
		c.print(c.reg.Console(), Line{Kind: LineInfo, Text: text})
	}
	if ch, ok := c.reg.Chat(bare); ok {
		if c.cfg.Prefs.Presence && roster.ShowOffline(c.cfg.StatusFilter("chat")) {
			c.print(ch, Line{Kind: LineInfo, Text: text})
		}
		if ch.Resource == resource && resource != "" {
			ch.ClearResource()
		}
	}
}

func (c *Client) subscription(ev network.Subscription) {
	chat, hasChat := c.reg.Chat(ev.From)
	switch ev.Type {
	case "subscribe":
		c.roster.AddRequest(ev.From)
		c.cons("Received authorization request from %s", ev.From)
		c.cons("Authorization request, type '/sub allow' to accept or '/sub deny' to reject")
		if c.cfg.Prefs.Beep {
			c.ui.Beep()
		}
		c.ui.Notify(c.reg.Console(), ev.From, "Authorization request")
	case "subscribed":
		c.cons("Subscription received from %s", ev.From)
		if hasChat {
			c.infof(chat, "Subscribed")
		}
	case "unsubscribed":
		c.cons("%s deleted subscription", ev.From)
		if hasChat {
			c.infof(chat, "Unsubscribed")
		}
	case "unsubscribe":
		c.logger.Debug("unsubscribe_received", zap.String("from", ev.From))
	}
}

func (c *Client) messageError(ev network.MessageError) {
	text := ev.Condition
	if ev.Text != "" {
		text = ev.Text
	}
	conv := c.window(ev.From)
	if r, ok := conv.(*session.Room); ok && ev.Condition == "item-not-found" {
		c.errorf(c.reg.Console(), "Room %s not found: %s", r.Key(), text)
		c.errorf(r, "Room %s not found: %s", r.Key(), text)
		return
	}
	c.errorf(c.reg.Console(), "Error from %s: %s", ev.From, text)
	if conv.Kind() != session.KindConsole {
		c.errorf(conv, "Error from %s: %s", ev.From, text)
	}
}

func (c *Client) pong(ev network.Pong) {
	if ev.JID == "" && c.autopinging {
		c.autopinging = false
		if ev.Err != nil {
			c.logger.Warn("autoping_failed", zap.Error(ev.Err))
		}
		return
	}
	target := ev.JID
	if target == "" {
		target = "server"
	}
	if ev.Err != nil {
		c.errorf(c.reg.Console(), "Ping to %s failed: %v", target, ev.Err)
		return
	}
	c.cons("Ping response from %s: %dms.", target, ev.RTT.Milliseconds())
}

func (c *Client) version(ev network.Version) {
	conv := c.window(ev.JID)
	if ev.Err != nil {
		c.errorf(conv, "Could not get software version from %s: %v", ev.JID, ev.Err)
		return
	}
	c.infof(conv, "%s:", ev.JID)
	c.infof(conv, "Name    : %s", ev.Name)
	c.infof(conv, "Version : %s", ev.Version)
	if ev.OS != "" {
		c.infof(conv, "OS      : %s", ev.OS)
	}
}

func (c *Client) xml(ev network.XML) {
	xc, ok := c.reg.XMLConsole()
	if !ok {
		return
	}
	label := "SENT:"
	if ev.Incoming {
		label = "RECV:"
	}
	c.print(xc, Line{Kind: LineInfo, Text: label})
	c.print(xc, Line{Kind: LineXML, Text: ev.Data})
}
