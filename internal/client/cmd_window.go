// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"mellium.im/communique/internal/command"
	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/session"
)

func (c *Client) windowCommands() []command.Command {
	return []command.Command{{
		Name:        "win",
		Min:         1,
		Max:         1,
		Synopsis:    []string{"/win <num>"},
		Description: "Focus a window. Window 0 is the tenth window.",
		Handler:     c.cmdWin,
	}, {
		Name: "wins",
		Max:  3,
		Synopsis: []string{
			"/wins",
			"/wins tidy",
			"/wins autotidy on|off",
			"/wins prune",
			"/wins swap <source> <target>",
		},
		Description: "Manage windows.",
		Args: [][2]string{
			{"tidy", "Move windows so there are no gaps."},
			{"autotidy on|off", "Tidy windows automatically when one is closed."},
			{"prune", "Close windows without unread messages, then tidy."},
			{"swap <source> <target>", "Swap the positions of two windows."},
		},
		Handler: c.cmdWins,
	}, {
		Name:        "close",
		Max:         1,
		Synopsis:    []string{"/close", "/close <num>", "/close all|read"},
		Description: "Close windows. Closing a room window leaves the room.",
		Handler:     c.cmdClose,
	}, {
		Name:            "msg",
		Min:             1,
		Max:             2,
		FreeText:        true,
		NeedsConnection: true,
		Synopsis:        []string{"/msg <contact> [<message>]", "/msg <nick> [<message>]"},
		Description:     "Open a chat with a contact, or a private chat with an occupant when in a room window.",
		Handler:         c.cmdMsg,
	}, {
		Name:            "resource",
		Min:             1,
		Max:             2,
		NeedsConnection: true,
		Kinds:           []session.Kind{session.KindChat},
		KindMessage:     "Resource can only be changed in chat windows.",
		Synopsis:        []string{"/resource set <resource>", "/resource off"},
		Description:     "Send the messages of the current chat to one resource of the contact.",
		Handler:         c.cmdResource,
	}, {
		Name:            "xmlconsole",
		NeedsConnection: true,
		Synopsis:        []string{"/xmlconsole"},
		Description:     "Open the XML console to show the stanzas sent and received.",
		Handler: func(context.Context, []string) error {
			xc, _ := c.reg.OpenXMLConsole()
			c.reg.FocusConversation(xc)
			c.net.Trace(true)
			return nil
		},
	}, {
		Name:        "clear",
		Synopsis:    []string{"/clear"},
		Description: "Clear the current window.",
		Handler: func(context.Context, []string) error {
			c.ui.Clear(c.reg.Current())
			return nil
		},
	}}
}

func (c *Client) cmdWin(_ context.Context, args []string) error {
	n, err := session.ParseNum(args[0])
	if err != nil {
		return command.ErrBadUsage
	}
	if _, err := c.reg.Focus(n); err != nil {
		return command.UserInputError{Msg: "Window " + args[0] + " does not exist."}
	}
	return nil
}

func (c *Client) cmdWins(_ context.Context, args []string) error {
	if len(args) == 0 {
		c.showWindows()
		return nil
	}
	switch args[0] {
	case "tidy":
		if c.reg.Tidy() {
			c.cons("Windows tidied.")
		} else {
			c.cons("No tidy needed.")
		}
	case "prune":
		if c.reg.Prune() {
			c.cons("Windows pruned.")
		} else {
			c.cons("No prune needed.")
		}
		c.windowsClosed()
	case "autotidy":
		if len(args) != 2 {
			return command.ErrBadUsage
		}
		on, err := command.ParseBool(args[1])
		if err != nil {
			return err
		}
		c.cfg.Prefs.AutoTidy = on
		c.save()
		c.cons("%s", command.Toggle("Window autotidy", on))
		if on {
			c.reg.Tidy()
		}
	case "swap":
		if len(args) != 3 {
			return command.ErrBadUsage
		}
		a, errA := session.ParseNum(args[1])
		b, errB := session.ParseNum(args[2])
		if errA != nil || errB != nil {
			return command.ErrBadUsage
		}
		if a == session.ConsoleNum || b == session.ConsoleNum {
			return command.UserInputError{Msg: "Cannot move console window."}
		}
		err := c.reg.Swap(a, b)
		var invalid session.InvalidSlotError
		switch {
		case errors.Is(err, session.ErrSameSlot):
			return command.UserInputError{Msg: "Same source and target window supplied."}
		case errors.As(err, &invalid):
			return command.UserInputError{Msg: "Window " + session.DisplayNum(invalid.Num) + " does not exist."}
		case err != nil:
			return err
		}
		c.cons("Swapped windows %s <-> %s", args[1], args[2])
	default:
		return command.ErrBadUsage
	}
	return nil
}

func (c *Client) showWindows() {
	c.cons("Active windows:")
	for _, conv := range c.reg.All() {
		text := session.DisplayNum(conv.Num()) + ": " + windowTitle(conv)
		if n := conv.Unread(); n > 0 {
			text += ", " + strconv.Itoa(n) + " unread"
		}
		c.cons("%s", text)
	}
}

func windowTitle(conv session.Conversation) string {
	switch w := conv.(type) {
	case *session.Console:
		return "Console"
	case *session.Chat:
		title := "Chat " + w.To()
		if m := w.Mode(); m != encryption.None {
			title += " (" + m.String() + ")"
		}
		return title
	case *session.Room:
		return "Room " + w.Key()
	case *session.Private:
		return "Private " + w.Key()
	case *session.Config:
		title := "Room configuration " + w.Room()
		if w.Modified() {
			title += " *"
		}
		return title
	case *session.XMLConsole:
		return "XML Console"
	}
	return conv.Key()
}

func (c *Client) cmdClose(_ context.Context, args []string) error {
	defer c.windowsClosed()
	if len(args) == 0 {
		return c.closeWindow(c.reg.Current().Num())
	}
	switch args[0] {
	case "all":
		n := c.reg.CloseAll()
		c.cons("Closed %d windows.", n)
		return nil
	case "read":
		n := c.reg.CloseRead()
		c.cons("Closed %d windows.", n)
		return nil
	}
	n, err := session.ParseNum(args[0])
	if err != nil {
		return command.ErrBadUsage
	}
	return c.closeWindow(n)
}

func (c *Client) closeWindow(n int) error {
	err := c.reg.Close(n)
	var missing session.NoSuchWindowError
	switch {
	case errors.Is(err, session.ErrConsole):
		return command.UserInputError{Msg: "Cannot close console window."}
	case errors.Is(err, session.ErrUnsavedForm):
		return command.UserInputError{Msg: "You have unsaved changes, use /form submit or /form cancel"}
	case errors.As(err, &missing):
		return command.UserInputError{Msg: "Window " + session.DisplayNum(missing.Num) + " does not exist."}
	case err != nil:
		return err
	}
	c.cons("Closed window %s", session.DisplayNum(n))
	return nil
}

// windowsClosed applies the side effects of closing windows that the
// registry cannot see.
func (c *Client) windowsClosed() {
	if _, ok := c.reg.XMLConsole(); !ok {
		c.net.Trace(false)
	}
	// Rooms are remembered across a lost connection so they can be rejoined,
	// unless their window was closed in the meantime.
	if !c.Connected() {
		for _, r := range c.rooms.All() {
			if _, ok := c.reg.Room(r.JID); !ok {
				c.rooms.Leave(r.JID)
			}
		}
	}
	if c.cfg.Prefs.AutoTidy {
		c.reg.Tidy()
	}
}

func (c *Client) cmdMsg(ctx context.Context, args []string) error {
	var text string
	if len(args) == 2 {
		text = args[1]
	}

	if r, ok := c.reg.Current().(*session.Room); ok {
		nick := args[0]
		if _, ok := r.MUC.Occupant(nick); !ok {
			return command.UserInputError{Msg: "Unknown occupant: " + nick}
		}
		p, _ := c.reg.OpenPrivate(r.Key() + "/" + nick)
		c.reg.FocusConversation(p)
		if text != "" {
			c.sendPrivate(ctx, p, text)
		}
		return nil
	}

	to := args[0]
	if contact, ok := c.roster.Find(to); ok {
		to = contact.JID
	}
	bare, resource := split(to)
	ch := c.openChat(strings.ToLower(bare))
	if resource != "" && ch.Mode() != encryption.OTR {
		ch.Resource = resource
	}
	c.reg.FocusConversation(ch)
	if c.Connected() && c.crypto.OTRAvailable() && ch.Mode() == encryption.None &&
		(policies{c}).OTRPolicy() == encryption.PolicyAlways {
		if err := c.crypto.StartOTR(ctx, ch); err != nil {
			return cryptoError(err, "OTR")
		}
		c.infof(ch, "Starting OTR session...")
	}
	if text != "" {
		c.sendChat(ctx, ch, text)
	}
	return nil
}

func (c *Client) cmdResource(_ context.Context, args []string) error {
	ch, err := session.AsChat(c.reg.Current())
	if err != nil {
		return err
	}
	switch args[0] {
	case "set":
		if len(args) != 2 {
			return command.ErrBadUsage
		}
		if ch.Mode() == encryption.OTR {
			return command.PreconditionError{Msg: "You are in an OTR session, cannot change the resource."}
		}
		contact, ok := c.roster.Get(ch.Addr())
		if !ok {
			return command.UserInputError{Msg: "Cannot choose resource for contact not in roster."}
		}
		if _, ok := contact.Resource(args[1]); !ok {
			return command.UserInputError{Msg: "No such resource " + args[1]}
		}
		ch.Resource = args[1]
		c.infof(ch, "Set resource to %s.", args[1])
	case "off":
		if len(args) != 1 {
			return command.ErrBadUsage
		}
		if ch.Mode() == encryption.OTR {
			return command.PreconditionError{Msg: "You are in an OTR session, cannot change the resource."}
		}
		ch.ClearResource()
		c.infof(ch, "Removed resource.")
	default:
		return command.ErrBadUsage
	}
	return nil
}
