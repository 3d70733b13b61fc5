// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"mellium.im/xmpp/muc"

	"mellium.im/communique/internal/command"
	"mellium.im/communique/internal/dataform"
	"mellium.im/communique/internal/room"
	"mellium.im/communique/internal/session"
	"mellium.im/communique/internal/store"
)

// privateRoomPrefix names the rooms created by /join without arguments.
const privateRoomPrefix = "private-chat-"

func (c *Client) roomCommands() []command.Command {
	inRoom := []session.Kind{session.KindRoom}
	const notInRoom = "Command only valid in chat rooms."
	return []command.Command{{
		Name:            "join",
		Max:             5,
		NeedsConnection: true,
		Synopsis: []string{
			"/join",
			"/join <room> [nick <nick>] [password <password>]",
		},
		Description: "Join a chat room. Without arguments a new private room is created on the account's chat service.",
		Args: [][2]string{
			{"<room>", "The room, the chat service of the account is used if no domain is given."},
			{"nick <nick>", "Nickname to use in the room."},
			{"password <password>", "Password if the room requires one."},
		},
		Handler: c.cmdJoin,
	}, {
		Name:            "leave",
		NeedsConnection: true,
		Kinds:           inRoom,
		KindMessage:     notInRoom,
		Synopsis:        []string{"/leave"},
		Description:     "Leave the current room.",
		Handler: func(context.Context, []string) error {
			defer c.windowsClosed()
			return c.closeWindow(c.reg.Current().Num())
		},
	}, {
		Name:            "invite",
		Min:             1,
		Max:             2,
		FreeText:        true,
		NeedsConnection: true,
		Kinds:           inRoom,
		KindMessage:     "You must be in a chat room to send an invite.",
		Synopsis:        []string{"/invite <contact> [<reason>]"},
		Description:     "Invite a contact to the current room.",
		Handler:         c.cmdInvite,
	}, {
		Name:            "invites",
		NeedsConnection: true,
		Synopsis:        []string{"/invites"},
		Description:     "Show outstanding room invitations.",
		Handler: func(context.Context, []string) error {
			invites := c.rooms.Invites()
			if len(invites) == 0 {
				c.cons("No outstanding chat room invites.")
				return nil
			}
			c.cons("Chat room invites, use /join or /decline commands:")
			for _, r := range invites {
				c.cons("  %s", r)
			}
			return nil
		},
	}, {
		Name:            "decline",
		Min:             1,
		Max:             1,
		NeedsConnection: true,
		Synopsis:        []string{"/decline <room>"},
		Description:     "Decline an invitation to a room.",
		Handler:         c.cmdDecline,
	}, {
		Name:            "nick",
		Min:             1,
		Max:             1,
		NeedsConnection: true,
		Kinds:           inRoom,
		KindMessage:     "You can only change your nickname in a chat room window.",
		Synopsis:        []string{"/nick <nickname>"},
		Description:     "Change your nickname in the current room.",
		Handler:         c.cmdNick,
	}, {
		Name:            "subject",
		Min:             1,
		Max:             2,
		FreeText:        true,
		NeedsConnection: true,
		Kinds:           inRoom,
		KindMessage:     notInRoom,
		Synopsis:        []string{"/subject set <subject>", "/subject clear", "/subject show"},
		Description:     "Set, clear, or show the subject of the current room.",
		Handler:         c.cmdSubject,
	}, {
		Name:            "kick",
		Min:             1,
		Max:             2,
		FreeText:        true,
		NeedsConnection: true,
		Kinds:           inRoom,
		KindMessage:     notInRoom,
		Synopsis:        []string{"/kick <nick> [<reason>]"},
		Description:     "Kick an occupant from the current room.",
		Handler:         c.cmdKick,
	}, {
		Name:            "ban",
		Min:             1,
		Max:             2,
		FreeText:        true,
		NeedsConnection: true,
		Kinds:           inRoom,
		KindMessage:     notInRoom,
		Synopsis:        []string{"/ban <jid> [<reason>]"},
		Description:     "Ban a user from the current room.",
		Handler:         c.cmdBan,
	}, {
		Name:            "affiliation",
		Min:             1,
		Max:             4,
		FreeText:        true,
		NeedsConnection: true,
		Kinds:           inRoom,
		KindMessage:     notInRoom,
		Synopsis: []string{
			"/affiliation set <affiliation> <jid> [<reason>]",
			"/affiliation list [<affiliation>]",
		},
		Description: "Manage room affiliations. The affiliation is one of owner, admin, member, outcast, or none.",
		Handler:     c.cmdAffiliation,
	}, {
		Name:            "role",
		Min:             1,
		Max:             4,
		FreeText:        true,
		NeedsConnection: true,
		Kinds:           inRoom,
		KindMessage:     notInRoom,
		Synopsis: []string{
			"/role set <role> <nick> [<reason>]",
			"/role list [<role>]",
		},
		Description: "Manage room roles. The role is one of moderator, participant, visitor, or none.",
		Handler:     c.cmdRole,
	}, {
		Name:            "room",
		Min:             1,
		Max:             1,
		NeedsConnection: true,
		Kinds:           inRoom,
		KindMessage:     notInRoom,
		Synopsis:        []string{"/room accept|destroy|config|info"},
		Description:     "Configure the current room.",
		Args: [][2]string{
			{"accept", "Accept the default configuration of a new room."},
			{"destroy", "Destroy the room."},
			{"config", "Edit the configuration of the room."},
			{"info", "Show information about the room."},
		},
		Handler: c.cmdRoom,
	}, {
		Name:        "occupants",
		Max:         1,
		Kinds:       inRoom,
		KindMessage: notInRoom,
		Synopsis:    []string{"/occupants", "/occupants show|hide"},
		Description: "List the occupants of the current room, or show or hide the occupant list.",
		Handler:     c.cmdOccupants,
	}, {
		Name: "bookmark",
		Max:  8,
		Synopsis: []string{
			"/bookmark",
			"/bookmark list",
			"/bookmark add [<room>] [nick <nick>] [password <password>] [autojoin on|off]",
			"/bookmark update <room> [nick <nick>] [password <password>] [autojoin on|off]",
			"/bookmark remove [<room>]",
			"/bookmark join <room>",
		},
		Description: "Manage bookmarked rooms. Without a room the current room is used.",
		Handler:     c.cmdBookmark,
	}, {
		Name:        "form",
		Min:         1,
		Max:         2,
		Kinds:       []session.Kind{session.KindConfig},
		KindMessage: "Command '/form' does not apply to this window.",
		Synopsis:    []string{"/form show", "/form submit", "/form cancel", "/form help [<tag>]"},
		Description: "Edit a room configuration form. Fields are edited with /<tag> <value>.",
		Handler:     c.cmdForm,
	}}
}

// roomJID completes a room name with the chat service of the account.
func (c *Client) roomJID(name string) (string, error) {
	if strings.Contains(name, "@") {
		return strings.ToLower(name), nil
	}
	if c.acct == nil || c.acct.MUCService == "" {
		return "", command.PreconditionError{Msg: "Account MUC service property not found."}
	}
	return strings.ToLower(name + "@" + c.acct.MUCService), nil
}

func (c *Client) defaultNick() string {
	if c.acct == nil {
		return ""
	}
	return nickOr(c.acct)
}

func (c *Client) currentRoom() (*session.Room, error) {
	return session.AsRoom(c.reg.Current())
}

func (c *Client) cmdJoin(ctx context.Context, args []string) error {
	name := privateRoomPrefix + uuid.New().String()
	opts := args
	if len(args)%2 == 1 {
		name, opts = args[0], args[1:]
	}
	o, err := command.ParseOptions(opts, "nick", "password")
	if err != nil {
		return err
	}
	jid, err := c.roomJID(name)
	if err != nil {
		return err
	}
	if r, ok := c.reg.Room(jid); ok {
		c.reg.FocusConversation(r)
		return nil
	}

	nick := o["nick"]
	if nick == "" {
		nick = c.defaultNick()
	}
	password, ok := o["password"]
	if !ok {
		password, _ = c.rooms.Invite(jid)
	}
	r, created := c.rooms.Join(jid, nick, password)
	if !created {
		// Joined from a bookmark but not finished yet.
		r.Autojoin = false
		return nil
	}
	if err := c.net.JoinRoom(ctx, jid, nick, password, c.presence, c.status); err != nil {
		c.rooms.Leave(jid)
		return ProtocolError{Target: jid, Op: "join", Err: err}
	}
	return nil
}

func (c *Client) cmdInvite(ctx context.Context, args []string) error {
	win, err := c.currentRoom()
	if err != nil {
		return err
	}
	to := args[0]
	if contact, ok := c.roster.Find(to); ok {
		to = contact.JID
	}
	var reason string
	if len(args) == 2 {
		reason = args[1]
	}
	if err := c.net.Invite(ctx, win.Key(), to, reason); err != nil {
		return ProtocolError{Target: to, Op: "invite", Err: err}
	}
	if reason != "" {
		c.cons("Room invite sent, contact: %s, room: %s, reason: \"%s\".", to, win.Key(), reason)
	} else {
		c.cons("Room invite sent, contact: %s, room: %s.", to, win.Key())
	}
	return nil
}

func (c *Client) cmdDecline(ctx context.Context, args []string) error {
	jid := strings.ToLower(args[0])
	if !c.rooms.Decline(jid) {
		return command.UserInputError{Msg: "No invite found for room " + args[0] + "."}
	}
	if inviter, ok := c.inviters[jid]; ok {
		delete(c.inviters, jid)
		if err := c.net.DeclineInvite(ctx, jid, inviter, ""); err != nil {
			return ProtocolError{Target: jid, Op: "decline invitation to", Err: err}
		}
	}
	c.cons("Declined invitation to %s.", jid)
	return nil
}

func (c *Client) cmdNick(ctx context.Context, args []string) error {
	win, err := c.currentRoom()
	if err != nil {
		return err
	}
	nick := args[0]
	win.MUC.RequestNickChange(nick)
	if err := c.net.ChangeNick(ctx, win.Key(), nick, c.presence, c.status); err != nil {
		return ProtocolError{Target: win.Key(), Op: "nickname change in", Err: err}
	}
	return nil
}

func (c *Client) cmdSubject(ctx context.Context, args []string) error {
	win, err := c.currentRoom()
	if err != nil {
		return err
	}
	switch args[0] {
	case "show":
		if win.MUC.Subject == "" {
			c.infof(win, "Room has no subject")
		} else {
			c.infof(win, "Room subject: %s", win.MUC.Subject)
		}
		return nil
	case "set":
		if len(args) != 2 {
			return command.ErrBadUsage
		}
		return c.setSubject(ctx, win, args[1])
	case "clear":
		if len(args) != 1 {
			return command.ErrBadUsage
		}
		return c.setSubject(ctx, win, "")
	}
	return command.ErrBadUsage
}

func (c *Client) setSubject(ctx context.Context, win *session.Room, subject string) error {
	if err := c.net.SetSubject(ctx, win.Key(), subject); err != nil {
		return ProtocolError{Target: win.Key(), Op: "subject of", Err: err}
	}
	return nil
}

func (c *Client) cmdKick(ctx context.Context, args []string) error {
	win, err := c.currentRoom()
	if err != nil {
		return err
	}
	if !win.MUC.CanKick() {
		return command.PreconditionError{Msg: "You do not have the privileges required to kick occupants."}
	}
	nick := args[0]
	if _, ok := win.MUC.Occupant(nick); !ok {
		return command.UserInputError{Msg: "Occupant does not exist: " + nick}
	}
	var reason string
	if len(args) == 2 {
		reason = args[1]
	}
	if err := c.net.Kick(ctx, win.Key(), nick, reason); err != nil {
		return ProtocolError{Target: win.Key(), Op: "kick " + nick + " from", Err: err}
	}
	return nil
}

func (c *Client) cmdBan(ctx context.Context, args []string) error {
	win, err := c.currentRoom()
	if err != nil {
		return err
	}
	var reason string
	if len(args) == 2 {
		reason = args[1]
	}
	if err := c.net.Ban(ctx, win.Key(), args[0], reason); err != nil {
		return ProtocolError{Target: win.Key(), Op: "ban " + args[0] + " from", Err: err}
	}
	return nil
}

// Affiliations and roles that can be listed.
var (
	listAffiliations = []muc.Affiliation{muc.AffiliationOwner, muc.AffiliationAdmin, muc.AffiliationMember, muc.AffiliationOutcast}
	listRoles        = []muc.Role{muc.RoleModerator, muc.RoleParticipant, muc.RoleVisitor}
)

func (c *Client) cmdAffiliation(ctx context.Context, args []string) error {
	win, err := c.currentRoom()
	if err != nil {
		return err
	}
	switch args[0] {
	case "list":
		affs := listAffiliations
		if len(args) == 2 {
			aff, err := room.ParseAffiliation(args[1])
			if err != nil || aff == muc.AffiliationNone {
				return command.UserInputError{Msg: "Invalid affiliation: " + args[1]}
			}
			affs = []muc.Affiliation{aff}
		} else if len(args) > 2 {
			return command.ErrBadUsage
		}
		for _, aff := range affs {
			if err := c.net.ListAffiliation(ctx, win.Key(), aff); err != nil {
				return ProtocolError{Target: win.Key(), Op: "list " + aff.String() + " in", Err: err}
			}
		}
		return nil
	case "set":
		if len(args) < 3 {
			return command.ErrBadUsage
		}
		aff, err := room.ParseAffiliation(args[1])
		if err != nil {
			return command.UserInputError{Msg: "Invalid affiliation: " + args[1]}
		}
		var reason string
		if len(args) == 4 {
			reason = args[3]
		}
		if err := c.net.SetAffiliation(ctx, win.Key(), args[2], aff, reason); err != nil {
			return ProtocolError{Target: win.Key(), Op: "set affiliation of " + args[2] + " in", Err: err}
		}
		return nil
	}
	return command.ErrBadUsage
}

func (c *Client) cmdRole(ctx context.Context, args []string) error {
	win, err := c.currentRoom()
	if err != nil {
		return err
	}
	switch args[0] {
	case "list":
		roles := listRoles
		if len(args) == 2 {
			role, err := room.ParseRole(args[1])
			if err != nil || role == muc.RoleNone {
				return command.UserInputError{Msg: "Invalid role: " + args[1]}
			}
			roles = []muc.Role{role}
		} else if len(args) > 2 {
			return command.ErrBadUsage
		}
		for _, role := range roles {
			if err := c.net.ListRole(ctx, win.Key(), role); err != nil {
				return ProtocolError{Target: win.Key(), Op: "list " + role.String() + " in", Err: err}
			}
		}
		return nil
	case "set":
		if len(args) < 3 {
			return command.ErrBadUsage
		}
		role, err := room.ParseRole(args[1])
		if err != nil {
			return command.UserInputError{Msg: "Invalid role: " + args[1]}
		}
		if _, ok := win.MUC.Occupant(args[2]); !ok {
			return command.UserInputError{Msg: "Occupant does not exist: " + args[2]}
		}
		var reason string
		if len(args) == 4 {
			reason = args[3]
		}
		if err := c.net.SetRole(ctx, win.Key(), args[2], role, reason); err != nil {
			return ProtocolError{Target: win.Key(), Op: "set role of " + args[2] + " in", Err: err}
		}
		return nil
	}
	return command.ErrBadUsage
}

func (c *Client) cmdRoom(ctx context.Context, args []string) error {
	win, err := c.currentRoom()
	if err != nil {
		return err
	}
	jid := win.Key()
	switch args[0] {
	case "accept":
		if !win.MUC.ConfigRequired() {
			c.infof(win, "Current room does not require configuration.")
			return nil
		}
		if err := c.net.SubmitRoomConfig(ctx, jid, nil); err != nil {
			return ProtocolError{Target: jid, Op: "configuration of", Err: err}
		}
	case "destroy":
		if err := c.net.DestroyRoom(ctx, jid, ""); err != nil {
			return ProtocolError{Target: jid, Op: "destroy", Err: err}
		}
	case "config":
		if cfg, ok := c.reg.Config(jid); ok {
			c.reg.FocusConversation(cfg)
			return nil
		}
		if err := c.net.RequestRoomConfig(ctx, jid); err != nil {
			return ProtocolError{Target: jid, Op: "configuration of", Err: err}
		}
	case "info":
		if err := c.net.RequestRoomInfo(ctx, jid); err != nil {
			return ProtocolError{Target: jid, Op: "information about", Err: err}
		}
	default:
		return command.ErrBadUsage
	}
	return nil
}

func (c *Client) cmdOccupants(_ context.Context, args []string) error {
	win, err := c.currentRoom()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		c.showRoles(win, win.MUC)
		return nil
	}
	switch args[0] {
	case "show":
		win.ShowOccupants = true
	case "hide":
		win.ShowOccupants = false
	default:
		return command.ErrBadUsage
	}
	c.ui.Occupants(win)
	return nil
}

func (c *Client) cmdBookmark(ctx context.Context, args []string) error {
	if c.store == nil {
		return command.PreconditionError{Msg: "No account selected, bookmarks are stored per account."}
	}
	if len(args) == 0 || args[0] == "list" {
		return c.listBookmarks()
	}
	op, rest := args[0], args[1:]

	var jid string
	if len(rest)%2 == 1 {
		var err error
		if jid, err = c.roomJID(rest[0]); err != nil {
			return err
		}
		rest = rest[1:]
	} else if win, err := c.currentRoom(); err == nil {
		jid = win.Key()
	} else {
		return command.UserInputError{Msg: "You are not currently in a chat room."}
	}

	switch op {
	case "add", "update":
		o, err := command.ParseOptions(rest, "nick", "password", "autojoin")
		if err != nil {
			return err
		}
		b, exists, err := c.store.Bookmark(jid)
		if err != nil {
			return err
		}
		if op == "update" && !exists {
			return command.UserInputError{Msg: "No bookmark exists for " + jid + "."}
		}
		b.JID = jid
		if nick, ok := o["nick"]; ok {
			b.Nick = nick
		}
		if pw, ok := o["password"]; ok {
			b.Password = pw
		}
		if aj, ok := o["autojoin"]; ok {
			on, err := command.ParseBool(aj)
			if err != nil {
				return err
			}
			b.Autojoin = on
		}
		if op == "add" {
			err = c.store.AddBookmark(b)
		} else {
			err = c.store.UpdateBookmark(b)
		}
		if errors.Is(err, store.ErrBookmarkExists) {
			return command.UserInputError{Msg: "Bookmark already exists, use /bookmark update to edit."}
		}
		if err != nil {
			return err
		}
		if op == "add" {
			c.cons("Bookmark added for %s.", jid)
		} else {
			c.cons("Bookmark updated.")
		}
	case "remove":
		if len(rest) != 0 {
			return command.ErrBadUsage
		}
		err := c.store.RemoveBookmark(jid)
		if errors.Is(err, store.ErrNoBookmark) {
			return command.UserInputError{Msg: "No bookmark exists for " + jid + "."}
		}
		if err != nil {
			return err
		}
		c.cons("Bookmark removed for %s.", jid)
	case "join":
		if len(rest) != 0 {
			return command.ErrBadUsage
		}
		b, ok, err := c.store.Bookmark(jid)
		if err != nil {
			return err
		}
		if !ok {
			return command.UserInputError{Msg: "No bookmark exists for " + jid + "."}
		}
		if !c.Connected() {
			return command.ErrNotConnected
		}
		joinArgs := []string{b.JID}
		if b.Nick != "" {
			joinArgs = append(joinArgs, "nick", b.Nick)
		}
		if b.Password != "" {
			joinArgs = append(joinArgs, "password", b.Password)
		}
		return c.cmdJoin(ctx, joinArgs)
	default:
		return command.ErrBadUsage
	}
	return nil
}

func (c *Client) listBookmarks() error {
	bookmarks, err := c.store.Bookmarks()
	if err != nil {
		return err
	}
	if len(bookmarks) == 0 {
		c.cons("No bookmarks found.")
		return nil
	}
	c.cons("Bookmarks:")
	for _, b := range bookmarks {
		text := "  " + b.JID
		if b.Nick != "" {
			text += "/" + b.Nick
		}
		if b.Autojoin {
			text += " (autojoin)"
		}
		if b.Password != "" {
			text += " (private)"
		}
		c.cons("%s", text)
	}
	return nil
}

func (c *Client) cmdForm(ctx context.Context, args []string) error {
	cfg, err := session.AsConfig(c.reg.Current())
	if err != nil {
		return err
	}
	switch args[0] {
	case "show":
		c.showForm(cfg)
	case "help":
		if len(args) == 2 {
			field, ok := cfg.Form.Field(args[1])
			if !ok {
				return command.UserInputError{Msg: dataform.NoFieldError{Tag: args[1]}.Error()}
			}
			c.formFieldHelp(cfg, field)
			return nil
		}
		if cfg.Form.Title != "" {
			c.infof(cfg, "%s", cfg.Form.Title)
		}
		for _, in := range cfg.Form.Instructions {
			c.infof(cfg, "%s", in)
		}
		c.infof(cfg, "Use '/form submit' to save changes.")
		c.infof(cfg, "Use '/form cancel' to cancel changes.")
		c.infof(cfg, "See '/form help <tag>' for more information about a field.")
		for _, tag := range cfg.Form.Tags() {
			c.infof(cfg, "  %s", cfg.Form.Usage(tag))
		}
	case "submit", "cancel":
		if len(args) != 1 {
			return command.ErrBadUsage
		}
		jid := cfg.Room()
		if args[0] == "submit" {
			err = c.net.SubmitRoomConfig(ctx, jid, cfg.Form)
		} else {
			err = c.net.CancelRoomConfig(ctx, jid)
		}
		if err != nil {
			return ProtocolError{Target: jid, Op: "configuration of", Err: err}
		}
		cfg.Form = nil
		if err := c.reg.Close(cfg.Num()); err != nil {
			return err
		}
		c.windowsClosed()
		if win, ok := c.reg.Room(jid); ok {
			c.reg.FocusConversation(win)
		}
	default:
		return command.ErrBadUsage
	}
	return nil
}

// formField edits the field with the tag name when a configuration form has
// focus.
func (c *Client) formField(_ context.Context, name string, args []string) (bool, error) {
	cfg, ok := c.reg.Current().(*session.Config)
	if !ok || cfg.Form == nil {
		return false, nil
	}
	field, ok := cfg.Form.Field(name)
	if !ok {
		return false, nil
	}
	err := cfg.Form.Apply(name, args)
	var (
		edit    dataform.EditError
		noField dataform.NoFieldError
	)
	switch {
	case errors.Is(err, dataform.ErrInvalidEdit):
		return true, command.UserInputError{Msg: "Invalid command, usage: " + cfg.Form.Usage(name)}
	case errors.As(err, &edit):
		return true, command.UserInputError{Msg: edit.Error()}
	case errors.As(err, &noField):
		return true, command.UserInputError{Msg: noField.Error()}
	case err != nil:
		return true, err
	}
	c.infof(cfg, "Field updated...")
	c.showField(cfg, field)
	return true, nil
}

func (c *Client) showForm(cfg *session.Config) {
	f := cfg.Form
	if f.Title != "" {
		c.infof(cfg, "Form title: %s", f.Title)
	}
	for _, in := range f.Instructions {
		c.infof(cfg, "%s", in)
	}
	for _, field := range f.Fields {
		c.showField(cfg, field)
	}
	c.infof(cfg, "Use '/form submit' to save changes, '/form cancel' to cancel, '/form help' for help.")
}

func (c *Client) showField(cfg *session.Config, field *dataform.Field) {
	switch field.Type {
	case dataform.Hidden:
		return
	case dataform.Fixed:
		for _, v := range field.Values {
			c.infof(cfg, "%s", v)
		}
		return
	}
	label := field.Label
	if label == "" {
		label = field.Var
	}
	text := "[" + field.Tag + "] " + label
	if field.Required {
		text += " (required)"
	}
	text += ":"

	switch field.Type {
	case dataform.Boolean:
		if field.Bool() {
			c.infof(cfg, "%s on", text)
		} else {
			c.infof(cfg, "%s off", text)
		}
	case dataform.TextPrivate:
		if len(field.Values) > 0 {
			c.infof(cfg, "%s [hidden]", text)
		} else {
			c.infof(cfg, "%s", text)
		}
	case dataform.TextSingle, dataform.JIDSingle:
		c.infof(cfg, "%s %s", text, strings.Join(field.Values, " "))
	case dataform.ListSingle:
		c.infof(cfg, "%s %s", text, strings.Join(field.Values, " "))
		for _, o := range field.Options {
			c.infof(cfg, "    [%s] %s", o.Value, o.Label)
		}
	case dataform.TextMulti:
		c.infof(cfg, "%s", text)
		for i, v := range field.Values {
			c.infof(cfg, "  [val%d] %s", i+1, v)
		}
	case dataform.ListMulti:
		c.infof(cfg, "%s", text)
		for _, o := range field.Options {
			mark := " "
			if containsString(field.Values, o.Value) {
				mark = "x"
			}
			c.infof(cfg, "  [%s] %s %s", mark, o.Value, o.Label)
		}
	case dataform.JIDMulti:
		c.infof(cfg, "%s", text)
		for _, v := range field.Values {
			c.infof(cfg, "  %s", v)
		}
	}
}

func (c *Client) formFieldHelp(cfg *session.Config, field *dataform.Field) {
	label := field.Label
	if label == "" {
		label = field.Var
	}
	c.infof(cfg, "%s", field.Tag)
	c.infof(cfg, "  Description : %s", label)
	if field.Description != "" {
		c.infof(cfg, "                %s", field.Description)
	}
	c.infof(cfg, "  Type        : %s", field.Type)
	c.infof(cfg, "  Required    : %t", field.Required)
	c.infof(cfg, "  Usage       : %s", cfg.Form.Usage(field.Tag))
	if len(field.Options) > 0 {
		c.infof(cfg, "  Options     :")
		for _, o := range field.Options {
			c.infof(cfg, "    %s", o.Value)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
