// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"mellium.im/communique/internal/command"
	"mellium.im/communique/internal/room"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
)

// maxIdle bounds the auto away time, in minutes.
const maxIdle = 24 * 60

func (c *Client) presenceCommands() []command.Command {
	cmds := make([]command.Command, 0, 9)
	for _, p := range []roster.Presence{roster.Online, roster.Chat, roster.Away, roster.XA, roster.DND} {
		p := p
		cmds = append(cmds, command.Command{
			Name:            p.String(),
			Max:             1,
			FreeText:        true,
			NeedsConnection: true,
			Synopsis:        []string{"/" + p.String() + " [<message>]"},
			Description:     "Set your presence to " + p.String() + ", with an optional status message.",
			Handler: func(ctx context.Context, args []string) error {
				var msg string
				if len(args) == 1 {
					msg = args[0]
				}
				return c.setPresence(ctx, p, msg)
			},
		})
	}
	return append(cmds, command.Command{
		Name:            "status",
		Max:             1,
		NeedsConnection: true,
		Synopsis:        []string{"/status", "/status <contact>"},
		Description:     "Show the presence of a contact, or of the contact or occupant of the current window.",
		Handler:         c.cmdStatus,
	}, command.Command{
		Name:        "priority",
		Min:         1,
		Max:         1,
		Synopsis:    []string{"/priority <priority>"},
		Description: "Set the priority of the current presence, -128 to 127.",
		Handler:     c.cmdPriority,
	}, command.Command{
		Name: "autoaway",
		Min:  1,
		Max:  2,
		// The message may contain spaces.
		FreeText: true,
		Synopsis: []string{
			"/autoaway mode idle|away|off",
			"/autoaway time <minutes>",
			"/autoaway message <message>|off",
			"/autoaway check on|off",
		},
		Description: "Manage the presence sent when idle.",
		Args: [][2]string{
			{"mode idle", "Send idle time, the presence is unchanged."},
			{"mode away", "Set the presence to away."},
			{"mode off", "Disable auto away."},
			{"time <minutes>", "Number of minutes before the presence changes."},
			{"message <message>", "Optional status message, off to clear it."},
			{"check on|off", "Restore the presence when there is activity again."},
		},
		Handler: c.cmdAutoAway,
	})
}

// priority returns the priority of p for the current account.
func (c *Client) priority(p roster.Presence) int {
	if c.acct == nil {
		return 0
	}
	return c.acct.PriorityFor(p)
}

// broadcastPresence sends a presence to the server and to every joined room.
func (c *Client) broadcastPresence(ctx context.Context, p roster.Presence, status string, priority int) {
	if err := c.net.SendPresence(ctx, "", p, status, priority); err != nil {
		c.protocolError("", "presence", err)
		return
	}
	for _, r := range c.rooms.All() {
		if r.State() != room.Active {
			continue
		}
		to := r.JID + "/" + r.Nick
		if err := c.net.SendPresence(ctx, to, p, status, priority); err != nil {
			c.logger.Warn("room_presence_failed", zap.String("room", r.JID), zap.Error(err))
		}
	}
}

func (c *Client) setPresence(ctx context.Context, p roster.Presence, msg string) error {
	c.presence, c.status = p, msg
	c.autoAway = false
	pri := c.priority(p)
	c.broadcastPresence(ctx, p, msg, pri)
	if msg != "" {
		c.cons("Status set to %s (priority %d), \"%s\".", p, pri, msg)
	} else {
		c.cons("Status set to %s (priority %d).", p, pri)
	}
	if c.acct != nil {
		c.acct.LastPresence = p.String()
		c.save()
	}
	return nil
}

func (c *Client) cmdPriority(ctx context.Context, args []string) error {
	if c.acct == nil {
		return command.PreconditionError{Msg: "No account selected."}
	}
	pri, err := command.ParseRange(args[0], roster.MinPriority, roster.MaxPriority)
	if err != nil {
		return err
	}
	if c.acct.Priority == nil {
		c.acct.Priority = make(map[string]int)
	}
	c.acct.Priority[c.presence.String()] = pri
	c.save()
	if c.Connected() {
		c.broadcastPresence(ctx, c.presence, c.status, pri)
	}
	c.cons("Priority set to %d.", pri)
	return nil
}

func (c *Client) cmdStatus(_ context.Context, args []string) error {
	conv := c.reg.Current()
	if len(args) == 0 {
		switch w := conv.(type) {
		case *session.Chat:
			c.showContactStatus(conv, w.Addr())
		case *session.Private:
			r, ok := c.rooms.Get(w.Room())
			if !ok {
				return command.PreconditionError{Msg: "You are no longer in room " + w.Room() + "."}
			}
			c.showOccupantStatus(conv, r, w.Nick())
		default:
			return command.BadUsage("status")
		}
		return nil
	}
	if r, ok := conv.(*session.Room); ok {
		c.showOccupantStatus(conv, r.MUC, args[0])
		return nil
	}
	contact, ok := c.roster.Find(args[0])
	if !ok {
		return command.UserInputError{Msg: "No such contact \"" + args[0] + "\" in roster."}
	}
	c.showContactStatus(conv, contact.JID)
	return nil
}

func (c *Client) showContactStatus(conv session.Conversation, barejid string) {
	contact, ok := c.roster.Get(barejid)
	if !ok {
		c.infof(conv, "%s is not in your roster.", barejid)
		return
	}
	res := contact.Resources()
	if len(res) == 0 {
		text := contact.Display() + " is offline"
		if !contact.LastActivity.IsZero() {
			text += ", last seen " + humanize.Time(contact.LastActivity)
		}
		c.infof(conv, "%s", text)
		return
	}
	for _, r := range res {
		text := contact.Display() + " (" + r.Name + ") is " + r.Presence.String()
		if r.Status != "" {
			text += ", \"" + r.Status + "\""
		}
		c.infof(conv, "%s", text)
	}
}

func (c *Client) showOccupantStatus(conv session.Conversation, r *room.Room, nick string) {
	o, ok := r.Occupant(nick)
	if !ok {
		c.infof(conv, "No such participant \"%s\" in room.", nick)
		return
	}
	text := o.Nick + " is " + o.Presence.String()
	if o.Status != "" {
		text += ", \"" + o.Status + "\""
	}
	c.infof(conv, "%s", text)
}

func (c *Client) cmdAutoAway(_ context.Context, args []string) error {
	aa := &c.cfg.Prefs.AutoAway
	if len(args) != 2 {
		return command.ErrBadUsage
	}
	value := strings.TrimSpace(args[1])
	switch args[0] {
	case "mode":
		switch value {
		case autoAwayOff, autoAwayAway, autoAwayIdle:
		default:
			return command.UserInputError{Msg: "Mode must be one of 'idle', 'away' or 'off'"}
		}
		aa.Mode = value
		c.cons("Auto away mode set to: %s.", value)
	case "time":
		n, err := command.ParseRange(value, 1, maxIdle)
		if err != nil {
			return err
		}
		aa.Time = n
		c.cons("Auto away time set to: %d minutes.", n)
	case "message":
		if value == "off" {
			aa.Message = ""
			c.cons("Auto away message cleared.")
		} else {
			aa.Message = value
			c.cons("Auto away message set to: \"%s\".", value)
		}
	case "check":
		on, err := command.ParseBool(value)
		if err != nil {
			return err
		}
		aa.Check = on
		c.cons("%s", command.Toggle("Online check", on))
	default:
		return command.ErrBadUsage
	}
	c.save()
	return nil
}
