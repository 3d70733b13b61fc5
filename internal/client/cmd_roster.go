// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"strings"

	"mellium.im/communique/internal/command"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
)

func (c *Client) rosterCommands() []command.Command {
	return []command.Command{{
		Name: "roster",
		Max:  3,
		Synopsis: []string{
			"/roster [online|offline]",
			"/roster add <jid> [<nick>]",
			"/roster remove <jid>",
			"/roster remove_all contacts",
			"/roster nick <jid> <nick>",
			"/roster clearnick <jid>",
			"/roster size",
		},
		Description: "Manage your roster.",
		Args: [][2]string{
			{"online", "Show only contacts that are online."},
			{"offline", "Show only contacts that are offline."},
			{"add <jid> [<nick>]", "Add a contact, with an optional nickname."},
			{"remove <jid>", "Remove a contact."},
			{"remove_all contacts", "Remove all contacts."},
			{"nick <jid> <nick>", "Change the nickname of a contact."},
			{"clearnick <jid>", "Remove the nickname of a contact."},
			{"size", "Show the number of contacts."},
		},
		Handler: c.cmdRoster,
	}, {
		Name: "group",
		Max:  3,
		Synopsis: []string{
			"/group",
			"/group show <group>",
			"/group add <group> <contact>",
			"/group remove <group> <contact>",
		},
		Description: "View, add to, and remove from roster groups.",
		Handler:     c.cmdGroup,
	}, {
		Name: "sub",
		Min:  1,
		Max:  2,
		Synopsis: []string{
			"/sub request|allow|deny [<jid>]",
			"/sub show [<jid>]",
			"/sub sent",
			"/sub received",
		},
		Description: "Manage presence subscriptions. The JID defaults to the contact of the current chat.",
		Args: [][2]string{
			{"request", "Ask to see the presence of the contact."},
			{"allow", "Approve a request from the contact."},
			{"deny", "Remove the subscription of the contact, or reject a request."},
			{"show", "Show the subscription status of the contact."},
			{"sent", "Show requests you have sent that are pending."},
			{"received", "Show requests received that are pending."},
		},
		Handler: c.cmdSub,
	}}
}

func (c *Client) cmdRoster(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "online" || args[0] == "offline" {
		if !c.Connected() {
			return command.ErrNotConnected
		}
		var filter string
		if len(args) > 0 {
			filter = args[0]
		}
		c.showRoster(filter)
		return nil
	}
	if args[0] == "size" {
		if !c.Connected() {
			return command.ErrNotConnected
		}
		c.cons("Roster size: %d", c.roster.Len())
		return nil
	}
	if !c.Connected() {
		return command.ErrNotConnected
	}

	switch args[0] {
	case "add":
		if len(args) < 2 {
			return command.ErrBadUsage
		}
		var name string
		if len(args) == 3 {
			name = args[2]
		}
		if err := c.net.AddContact(ctx, args[1], name); err != nil {
			return ProtocolError{Target: args[1], Op: "add contact", Err: err}
		}
		if name != "" {
			c.cons("Roster item added: %s (%s)", args[1], name)
		} else {
			c.cons("Roster item added: %s", args[1])
		}
	case "remove":
		if len(args) != 2 {
			return command.ErrBadUsage
		}
		contact, ok := c.roster.Find(args[1])
		if !ok {
			return command.UserInputError{Msg: "Contact not found in roster: " + args[1]}
		}
		if err := c.net.RemoveContact(ctx, contact.JID); err != nil {
			return ProtocolError{Target: contact.JID, Op: "remove contact", Err: err}
		}
		c.cons("Roster item removed: %s", contact.JID)
	case "remove_all":
		if len(args) != 2 || args[1] != "contacts" {
			return command.ErrBadUsage
		}
		for _, contact := range c.roster.Contacts() {
			if err := c.net.RemoveContact(ctx, contact.JID); err != nil {
				return ProtocolError{Target: contact.JID, Op: "remove contact", Err: err}
			}
			c.cons("Roster item removed: %s", contact.JID)
		}
	case "nick":
		if len(args) != 3 {
			return command.ErrBadUsage
		}
		contact, ok := c.roster.Find(args[1])
		if !ok {
			return command.UserInputError{Msg: "Contact not found in roster: " + args[1]}
		}
		if err := c.renameContact(ctx, contact, args[2]); err != nil {
			return err
		}
		c.cons("Nickname for %s set to: %s.", contact.JID, args[2])
	case "clearnick":
		if len(args) != 2 {
			return command.ErrBadUsage
		}
		contact, ok := c.roster.Find(args[1])
		if !ok {
			return command.UserInputError{Msg: "Contact not found in roster: " + args[1]}
		}
		if err := c.renameContact(ctx, contact, ""); err != nil {
			return err
		}
		c.cons("Removed nickname for %s.", contact.JID)
	default:
		return command.ErrBadUsage
	}
	return nil
}

func (c *Client) renameContact(ctx context.Context, contact *roster.Contact, name string) error {
	if err := c.net.UpdateContact(ctx, contact.JID, name, contact.Groups()); err != nil {
		return ProtocolError{Target: contact.JID, Op: "rename contact", Err: err}
	}
	if err := c.roster.SetName(contact.JID, name); err != nil {
		return err
	}
	c.ui.Roster(c.roster.Contacts())
	return nil
}

func (c *Client) showRoster(filter string) {
	contacts := c.roster.Contacts()
	switch filter {
	case "online":
		c.cons("Contacts (online):")
	case "offline":
		c.cons("Contacts (offline):")
	default:
		c.cons("Roster: jid (nick) - subscription - status")
	}
	for _, contact := range contacts {
		if filter == "online" && !contact.Available() || filter == "offline" && contact.Available() {
			continue
		}
		c.cons("  %s", contactLine(contact))
	}
}

func contactLine(contact *roster.Contact) string {
	var b strings.Builder
	b.WriteString(contact.JID)
	if contact.Name != "" {
		b.WriteString(" (" + contact.Name + ")")
	}
	sub := contact.Subscription
	if sub == "" {
		sub = roster.SubNone
	}
	b.WriteString(" - " + sub)
	if contact.PendingOut {
		b.WriteString(", request sent")
	}
	if p, ok := contact.Presence(); ok {
		b.WriteString(" - " + p.String())
	} else {
		b.WriteString(" - offline")
	}
	if groups := contact.Groups(); len(groups) > 0 {
		b.WriteString(" - groups: " + strings.Join(groups, ", "))
	}
	return b.String()
}

func (c *Client) cmdGroup(ctx context.Context, args []string) error {
	if !c.Connected() {
		return command.ErrNotConnected
	}
	if len(args) == 0 {
		groups := c.roster.Groups()
		if len(groups) == 0 {
			c.cons("No groups.")
			return nil
		}
		c.cons("Groups:")
		for _, g := range groups {
			c.cons("  %s", g)
		}
		return nil
	}
	switch args[0] {
	case "show":
		if len(args) != 2 {
			return command.ErrBadUsage
		}
		members := c.roster.Group(args[1])
		if len(members) == 0 {
			c.cons("No group named %s exists.", args[1])
			return nil
		}
		c.cons("%s:", args[1])
		for _, m := range members {
			c.cons("  %s", contactLine(m))
		}
	case "add", "remove":
		if len(args) != 3 {
			return command.ErrBadUsage
		}
		group := args[1]
		contact, ok := c.roster.Find(args[2])
		if !ok {
			return command.UserInputError{Msg: "Contact not found in roster: " + args[2]}
		}
		var (
			res roster.Result
			err error
		)
		if args[0] == "add" {
			res, err = c.roster.AddToGroup(contact.JID, group)
		} else {
			res, err = c.roster.RemoveFromGroup(contact.JID, group)
		}
		if err != nil {
			return err
		}
		name := contact.Display()
		if res == roster.Noop {
			if args[0] == "add" {
				c.cons("%s already in group %s", name, group)
			} else {
				c.cons("%s is not currently in group %s", name, group)
			}
			return nil
		}
		if err := c.net.UpdateContact(ctx, contact.JID, contact.Name, contact.Groups()); err != nil {
			return ProtocolError{Target: contact.JID, Op: "update groups of", Err: err}
		}
		if args[0] == "add" {
			c.cons("%s added to group %s", name, group)
		} else {
			c.cons("%s removed from group %s", name, group)
		}
		c.ui.Roster(c.roster.Contacts())
	default:
		return command.ErrBadUsage
	}
	return nil
}

func (c *Client) cmdSub(ctx context.Context, args []string) error {
	if !c.Connected() {
		return command.ErrNotConnected
	}
	switch args[0] {
	case "sent":
		pending := c.roster.PendingOut()
		if len(pending) == 0 {
			c.cons("No pending requests sent.")
			return nil
		}
		c.cons("Awaiting subscription responses from:")
		for _, contact := range pending {
			c.cons("  %s", contact.JID)
		}
		return nil
	case "received":
		reqs := c.roster.Requests()
		if len(reqs) == 0 {
			c.cons("No outstanding subscription requests.")
			return nil
		}
		c.cons("Outstanding subscription requests from:")
		for _, r := range reqs {
			c.cons("  %s", r)
		}
		return nil
	}

	var to string
	if len(args) == 2 {
		to, _ = split(args[1])
	} else if ch, ok := c.reg.Current().(*session.Chat); ok {
		to = ch.Addr()
	} else {
		return command.UserInputError{Msg: "You must specify a contact."}
	}

	switch args[0] {
	case "request":
		if err := c.net.Subscription(ctx, to, "subscribe"); err != nil {
			return ProtocolError{Target: to, Op: "subscription request to", Err: err}
		}
		c.cons("Sent subscription request to %s.", to)
	case "allow":
		if err := c.net.Subscription(ctx, to, "subscribed"); err != nil {
			return ProtocolError{Target: to, Op: "subscription approval for", Err: err}
		}
		c.roster.RemoveRequest(to)
		c.cons("Accepted subscription for %s", to)
	case "deny":
		if err := c.net.Subscription(ctx, to, "unsubscribed"); err != nil {
			return ProtocolError{Target: to, Op: "subscription denial for", Err: err}
		}
		c.roster.RemoveRequest(to)
		c.cons("Deleted/denied subscription for %s", to)
	case "show":
		contact, ok := c.roster.Get(to)
		if !ok {
			c.cons("No subscription information for %s.", to)
			return nil
		}
		sub := contact.Subscription
		if sub == "" {
			sub = roster.SubNone
		}
		conv := c.window(to)
		c.infof(conv, "%s subscription status: %s", contact.JID, sub)
		if contact.PendingOut {
			c.infof(conv, "%s subscription request pending", contact.JID)
		}
	default:
		return command.ErrBadUsage
	}
	return nil
}
