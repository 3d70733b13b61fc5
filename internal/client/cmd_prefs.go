// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"sort"
	"strings"

	"mellium.im/communique/internal/command"
	"mellium.im/communique/internal/roster"
)

// toggle returns a command that switches a boolean preference.
func (c *Client) toggle(name, display, description string, pref *bool, after func(ctx context.Context, on bool) error) command.Command {
	return command.Command{
		Name:        name,
		Min:         1,
		Max:         1,
		Synopsis:    []string{"/" + name + " on|off"},
		Description: description,
		Handler: func(ctx context.Context, args []string) error {
			on, err := command.ParseBool(args[0])
			if err != nil {
				return err
			}
			if after != nil {
				if err := after(ctx, on); err != nil {
					return err
				}
			}
			*pref = on
			c.save()
			c.cons("%s", command.Toggle(display, on))
			return nil
		},
	}
}

func (c *Client) prefCommands() []command.Command {
	p := &c.cfg.Prefs
	return []command.Command{{
		Name: "statuses",
		Min:  2,
		Max:  2,
		Synopsis: []string{
			"/statuses console|chat|muc all|online|none",
		},
		Description: "Choose which presence changes are shown in the console, chat, and room windows.",
		Args: [][2]string{
			{"all", "Show all presence changes."},
			{"online", "Show only contacts coming online and going offline."},
			{"none", "Show no presence changes."},
		},
		Handler: c.cmdStatuses,
	},
		c.toggle("privileges", "Room privileges", "Show changes of roles and affiliations in rooms.", &p.Privileges, nil),
		c.toggle("history", "Chat history", "Show the last messages of a chat when it is opened.", &p.History, nil),
		c.toggle("carbons", "Message carbons preference", "Receive copies of the messages sent and received by your other clients.", &p.Carbons,
			func(ctx context.Context, on bool) error {
				if !c.Connected() {
					return nil
				}
				if err := c.net.Carbons(ctx, on); err != nil {
					return ProtocolError{Op: "carbons", Err: err}
				}
				return nil
			}),
		command.Command{
			Name:        "receipts",
			Min:         2,
			Max:         2,
			Synopsis:    []string{"/receipts send|request on|off"},
			Description: "Manage message delivery receipts.",
			Args: [][2]string{
				{"send on|off", "Send receipts for messages that ask for them."},
				{"request on|off", "Ask for receipts for the messages you send."},
			},
			Handler: c.cmdReceipts,
		},
		c.toggle("states", "Sending chat states", "Send and show typing notifications.", &p.States, nil),
		c.toggle("presence", "Contact presence", "Show presence changes of a contact in the chat window.", &p.Presence, nil),
		c.toggle("beep", "Sound", "Beep on incoming messages and requests.", &p.Beep, nil),
		command.Command{
			Name: "alias",
			Min:  1,
			Max:  3,
			// The value of an alias may be a whole command line.
			FreeText: true,
			Synopsis: []string{
				"/alias list",
				"/alias add <name> <value>",
				"/alias remove <name>",
			},
			Description: "Add your own commands as shortcuts for others.",
			Handler:     c.cmdAlias,
		},
		command.Command{
			Name:        "help",
			Max:         1,
			Synopsis:    []string{"/help", "/help <command>"},
			Description: "Show help for a command, or list the commands.",
			Handler:     c.cmdHelp,
		},
		command.Command{
			Name:        "prefs",
			Synopsis:    []string{"/prefs"},
			Description: "Show the current preferences.",
			Handler: func(context.Context, []string) error {
				c.showPrefs()
				return nil
			},
		},
	}
}

func (c *Client) cmdStatuses(_ context.Context, args []string) error {
	f, err := roster.ParseFilter(args[1])
	if err != nil {
		return command.ErrBadUsage
	}
	s := &c.cfg.Prefs.Statuses
	switch args[0] {
	case "console":
		s.Console = f.String()
	case "chat":
		s.Chat = f.String()
	case "muc":
		s.MUC = f.String()
	default:
		return command.ErrBadUsage
	}
	c.save()
	c.cons("Presence updates in %s windows set to: %s.", args[0], f)
	return nil
}

func (c *Client) cmdReceipts(_ context.Context, args []string) error {
	on, err := command.ParseBool(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "send":
		c.cfg.Prefs.Receipts.Send = on
		c.cons("%s", command.Toggle("Sending delivery receipts", on))
	case "request":
		c.cfg.Prefs.Receipts.Request = on
		c.cons("%s", command.Toggle("Requesting delivery receipts", on))
	default:
		return command.ErrBadUsage
	}
	c.save()
	return nil
}

func (c *Client) cmdAlias(_ context.Context, args []string) error {
	switch args[0] {
	case "list":
		aliases := c.cmds.Aliases()
		if len(aliases) == 0 {
			c.cons("No aliases defined.")
			return nil
		}
		names := make([]string, 0, len(aliases))
		for name := range aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		c.cons("Command aliases:")
		for _, name := range names {
			c.cons("  /%s -> %s", name, aliases[name])
		}
		return nil
	case "add":
		if len(args) != 3 {
			return command.ErrBadUsage
		}
		name := strings.TrimPrefix(args[1], "/")
		value := args[2]
		if !command.IsCommand(value) {
			value = "/" + value
		}
		if err := c.cmds.AddAlias(name, value); err != nil {
			if errors.Is(err, command.ErrAliasExists) {
				return command.UserInputError{Msg: "Command or alias '/" + name + "' already exists."}
			}
			return err
		}
		if c.cfg.Prefs.Aliases == nil {
			c.cfg.Prefs.Aliases = make(map[string]string)
		}
		c.cfg.Prefs.Aliases[name] = value
		c.save()
		c.cons("Command alias added /%s -> %s", name, value)
		return nil
	case "remove":
		if len(args) != 2 {
			return command.ErrBadUsage
		}
		name := strings.TrimPrefix(args[1], "/")
		if err := c.cmds.RemoveAlias(name); err != nil {
			return command.UserInputError{Msg: "No such command alias /" + name}
		}
		delete(c.cfg.Prefs.Aliases, name)
		c.save()
		c.cons("Command alias removed -> /%s", name)
		return nil
	}
	return command.ErrBadUsage
}

func (c *Client) cmdHelp(_ context.Context, args []string) error {
	if len(args) == 1 {
		name := strings.TrimPrefix(args[0], "/")
		lines, ok := c.cmds.Help(name)
		if !ok {
			return command.UserInputError{Msg: "No such command: /" + name}
		}
		conv := c.reg.Current()
		c.infof(conv, "/%s", name)
		for _, l := range lines {
			c.infof(conv, "%s", l)
		}
		return nil
	}
	cmds := c.cmds.Commands()
	names := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		names = append(names, "/"+cmd.Name)
	}
	sort.Strings(names)
	c.cons("Commands:")
	const perLine = 8
	for i := 0; i < len(names); i += perLine {
		end := i + perLine
		if end > len(names) {
			end = len(names)
		}
		c.cons("  %s", strings.Join(names[i:end], " "))
	}
	c.cons("Use /help <command> for more information about a command.")
	return nil
}

func (c *Client) showPrefs() {
	p := c.cfg.Prefs
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	c.cons("Preferences:")
	c.cons("  Console statuses (/statuses)  : %s", p.Statuses.Console)
	c.cons("  Chat statuses (/statuses)     : %s", p.Statuses.Chat)
	c.cons("  Room statuses (/statuses)     : %s", p.Statuses.MUC)
	c.cons("  Room privileges (/privileges) : %s", onOff(p.Privileges))
	c.cons("  Chat history (/history)       : %s", onOff(p.History))
	c.cons("  Message carbons (/carbons)    : %s", onOff(p.Carbons))
	c.cons("  Send receipts (/receipts)     : %s", onOff(p.Receipts.Send))
	c.cons("  Request receipts (/receipts)  : %s", onOff(p.Receipts.Request))
	c.cons("  Chat states (/states)         : %s", onOff(p.States))
	c.cons("  Contact presence (/presence)  : %s", onOff(p.Presence))
	c.cons("  Beep (/beep)                  : %s", onOff(p.Beep))
	c.cons("  Encryption warning (/encwarn) : %s", onOff(p.EncWarn))
	c.cons("  Window autotidy (/wins)       : %s", onOff(p.AutoTidy))
	c.cons("  Reconnect (/reconnect)        : %d seconds", p.Reconnect)
	c.cons("  Autoping (/autoping)          : %d seconds", p.Autoping)
	c.cons("  Auto away mode (/autoaway)    : %s", p.AutoAway.Mode)
	c.cons("  Auto away time (/autoaway)    : %d minutes", p.AutoAway.Time)
	c.cons("  PGP logging (/pgp log)        : %s", p.PGPLog)
	c.cons("  OTR logging (/otr log)        : %s", p.OTRLog)
	c.cons("  OTR policy (/otr policy)      : %s", p.OTRPolicy)
}
