// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"mellium.im/communique/internal/command"
	"mellium.im/communique/internal/config"
	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
)

// Port bounds shared by /connect and /account set.
const (
	minPort = 1
	maxPort = 65535
)

func (c *Client) connectionCommands() []command.Command {
	return []command.Command{{
		Name: "connect",
		Max:  5,
		Synopsis: []string{
			"/connect [<account>]",
			"/connect <account> [server <server>] [port <port>]",
		},
		Description: "Login to a chat service. If no account is given the default account is used. " +
			"An account that is not configured is treated as a JID.",
		Args: [][2]string{
			{"<account>", "An existing account, or a JID."},
			{"server <server>", "Use the given server instead of the one found with DNS."},
			{"port <port>", "The port to connect to."},
		},
		Handler: c.cmdConnect,
	}, {
		Name:            "disconnect",
		NeedsConnection: true,
		Synopsis:        []string{"/disconnect"},
		Description:     "Disconnect from the current chat service.",
		Handler:         c.cmdDisconnect,
	}, {
		Name: "account",
		Max:  4,
		Synopsis: []string{
			"/account list",
			"/account show <account>",
			"/account add <account>",
			"/account remove <account>",
			"/account default set|off [<account>]",
			"/account set <account> <property> <value>",
		},
		Description: "Commands for creating and managing accounts.",
		Args: [][2]string{
			{"set <account> jid <jid>", "Set the JID of the account."},
			{"set <account> password <password>", "Store the password of the account."},
			{"set <account> resource <resource>", "Set the resource."},
			{"set <account> server <server>", "Set the server, if it differs from the domain of the JID."},
			{"set <account> port <port>", "Set the port, 1 to 65535."},
			{"set <account> muc <service>", "Set the default chat room service."},
			{"set <account> nick <nick>", "Set the default chat room nickname."},
			{"set <account> status <presence>", "The presence to log in with, or 'last'."},
			{"set <account> online|chat|away|xa|dnd <priority>", "Set the priority of a presence, -128 to 127."},
			{"set <account> otr <policy>", "Set the OTR policy of the account."},
			{"set <account> pgpkeyid <keyid>", "Set the PGP key of the account."},
		},
		Handler: c.cmdAccount,
	}, {
		Name:        "reconnect",
		Min:         1,
		Max:         1,
		Synopsis:    []string{"/reconnect <seconds>"},
		Description: "Set the reconnect attempt interval when the connection is lost, 0 to disable.",
		Handler:     c.cmdReconnect,
	}, {
		Name:        "autoping",
		Min:         1,
		Max:         1,
		Synopsis:    []string{"/autoping <seconds>"},
		Description: "Set the interval of pings to the server, 0 to disable.",
		Handler:     c.cmdAutoping,
	}, {
		Name:            "ping",
		Max:             1,
		NeedsConnection: true,
		Synopsis:        []string{"/ping [<jid>]"},
		Description:     "Ping the server, or the given JID.",
		Handler:         c.cmdPing,
	}, {
		Name:            "software",
		Max:             1,
		NeedsConnection: true,
		Synopsis:        []string{"/software [<jid>]"},
		Description:     "Ask for the software version of a full JID, or of the occupant or contact of the current window.",
		Handler:         c.cmdSoftware,
	}, {
		Name:        "quit",
		Synopsis:    []string{"/quit"},
		Description: "Logout of any current session and quit.",
		Handler: func(context.Context, []string) error {
			c.quit = true
			if c.net.Status() != network.Disconnected {
				return c.net.Disconnect()
			}
			return nil
		},
	}}
}

func (c *Client) cmdConnect(ctx context.Context, args []string) error {
	if c.net.Status() != network.Disconnected {
		return command.PreconditionError{Msg: "You are either connected already, or a login is in process."}
	}
	name := c.account
	opts := args
	if len(args)%2 == 1 {
		name, opts = args[0], args[1:]
	}
	if name == "" {
		return command.ErrBadUsage
	}
	o, err := command.ParseOptions(opts, "server", "port")
	if err != nil {
		return err
	}

	acct, ok := c.cfg.Account(name)
	if !ok {
		acct = &config.Account{JID: strings.ToLower(name)}
	}
	login := network.Login{
		JID:      acct.JID,
		Password: acct.Password,
		Resource: acct.Resource,
		Server:   acct.Server,
		Port:     acct.Port,
	}
	if s, ok := o["server"]; ok {
		login.Server = s
	}
	if p, ok := o["port"]; ok {
		port, err := command.ParseRange(p, minPort, maxPort)
		if err != nil {
			return err
		}
		login.Port = port
	}
	if login.Password == "" {
		if c.prompt == nil {
			return command.PreconditionError{Msg: "No password set for account " + name + "."}
		}
		pass, err := c.prompt.Password("Enter password:")
		if err != nil {
			return err
		}
		login.Password = pass
	}

	c.selectAccount(name, acct)
	c.login = login
	c.reconnect = nil
	c.presence, c.status = roster.Online, ""
	if ok {
		c.cons("Connecting with account %s", name)
	} else {
		c.cons("Connecting as %s", acct.JID)
	}
	c.logger.Info("connecting", zap.String("account", name), zap.String("jid", login.JID))
	if err := c.net.Connect(ctx, login); err != nil {
		return ProtocolError{Target: login.JID, Op: "connect", Err: err}
	}
	return nil
}

func (c *Client) cmdDisconnect(ctx context.Context, _ []string) error {
	for _, conv := range c.reg.All() {
		if r, ok := conv.(*session.Room); ok {
			if err := c.reg.Close(r.Num()); err != nil {
				c.logger.Warn("close_room_failed", zap.String("room", r.Key()), zap.Error(err))
			}
		}
	}
	for _, r := range c.rooms.All() {
		c.rooms.Leave(r.JID)
	}
	for _, ch := range c.reg.Chats() {
		c.crypto.Reset(ctx, ch)
	}
	jid := c.self
	err := c.net.Disconnect()
	c.disconnected()
	c.reconnect = nil
	if c.cfg.Prefs.AutoTidy {
		c.reg.Tidy()
	}
	c.cons("%s logged out successfully.", jid)
	return err
}

func (c *Client) cmdAccount(_ context.Context, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		names := c.cfg.AccountNames()
		if len(names) == 0 {
			c.cons("No accounts created yet.")
			return nil
		}
		c.cons("Accounts:")
		for _, n := range names {
			c.cons("  %s", n)
		}
		return nil
	}
	if len(args) < 2 {
		return command.ErrBadUsage
	}
	name := args[1]
	switch args[0] {
	case "show":
		a, ok := c.cfg.Account(name)
		if !ok {
			return command.UserInputError{Msg: "No such account."}
		}
		c.showAccount(name, a)
	case "add":
		if _, err := c.cfg.AddAccount(name); err != nil {
			if errors.Is(err, config.ErrAccountExists) {
				return command.UserInputError{Msg: "Account " + name + " already exists."}
			}
			return err
		}
		c.save()
		c.cons("Account created.")
	case "remove":
		if err := c.cfg.RemoveAccount(name); err != nil {
			return command.UserInputError{Msg: "Account " + name + " does not exist."}
		}
		c.save()
		c.cons("Account %s removed.", name)
	case "default":
		switch {
		case name == "off":
			c.cfg.Prefs.DefaultAccount = ""
			c.cons("Removed default account.")
		case name == "set" && len(args) == 3:
			if _, ok := c.cfg.Account(args[2]); !ok {
				return command.UserInputError{Msg: "Account " + args[2] + " does not exist."}
			}
			c.cfg.Prefs.DefaultAccount = strings.ToLower(args[2])
			c.cons("Default account set to %s.", args[2])
		default:
			return command.ErrBadUsage
		}
		c.save()
	case "set":
		if len(args) != 4 {
			return command.ErrBadUsage
		}
		a, ok := c.cfg.Account(name)
		if !ok {
			return command.UserInputError{Msg: "Account " + name + " doesn't exist"}
		}
		if err := c.setAccount(name, a, args[2], args[3]); err != nil {
			return err
		}
		c.save()
	default:
		return command.ErrBadUsage
	}
	return nil
}

func (c *Client) setAccount(name string, a *config.Account, prop, value string) error {
	switch prop {
	case "jid":
		a.JID = value
		c.cons("Updated jid for account %s: %s", name, value)
	case "password":
		a.Password = value
		c.cons("Updated password for account %s", name)
	case "resource":
		a.Resource = value
		c.cons("Updated resource for account %s: %s", name, value)
	case "server":
		a.Server = value
		c.cons("Updated server for account %s: %s", name, value)
	case "port":
		port, err := command.ParseRange(value, minPort, maxPort)
		if err != nil {
			return err
		}
		a.Port = port
		c.cons("Updated port for account %s: %d", name, port)
	case "muc":
		a.MUCService = value
		c.cons("Updated muc service for account %s: %s", name, value)
	case "nick":
		a.MUCNick = value
		c.cons("Updated muc nick for account %s: %s", name, value)
	case "status":
		if value != "last" {
			if _, err := roster.ParsePresence(value); err != nil {
				return command.UserInputError{Msg: "Invalid status: " + value}
			}
		}
		a.LoginStatus = value
		c.cons("Updated login status for account %s: %s", name, value)
	case "otr":
		if _, err := encryption.ParseOTRPolicy(value); err != nil {
			return command.UserInputError{Msg: "OTR policy must be one of: manual, opportunistic or always."}
		}
		a.OTRPolicy = value
		c.cons("Updated OTR policy for account %s: %s", name, value)
	case "pgpkeyid":
		if c.keyring != nil && !c.keyring.Valid(value) {
			return command.UserInputError{Msg: "Invalid PGP key ID specified, see /pgp keys"}
		}
		a.PGPKeyID = value
		c.cons("Updated PGP key ID for account %s: %s", name, value)
	default:
		p, err := roster.ParsePresence(prop)
		if err != nil {
			return command.UserInputError{Msg: "Invalid property: " + prop}
		}
		pri, err := command.ParseRange(value, roster.MinPriority, roster.MaxPriority)
		if err != nil {
			return err
		}
		if a.Priority == nil {
			a.Priority = make(map[string]int)
		}
		a.Priority[p.String()] = pri
		c.cons("Updated %s priority for account %s: %d", p, name, pri)
	}
	return nil
}

func (c *Client) showAccount(name string, a *config.Account) {
	c.cons("Account %s:", name)
	c.cons("jid           : %s", a.JID)
	if a.Resource != "" {
		c.cons("resource      : %s", a.Resource)
	}
	if a.Server != "" {
		c.cons("server        : %s", a.Server)
	}
	if a.Port != 0 {
		c.cons("port          : %d", a.Port)
	}
	if a.MUCService != "" {
		c.cons("muc service   : %s", a.MUCService)
	}
	c.cons("muc nick      : %s", nickOr(a))
	if a.LoginStatus != "" {
		c.cons("login presence: %s", a.LoginStatus)
	}
	if a.OTRPolicy != "" {
		c.cons("OTR policy    : %s", a.OTRPolicy)
	}
	if a.PGPKeyID != "" {
		c.cons("PGP key ID    : %s", a.PGPKeyID)
	}
	presences := make([]string, 0, len(a.Priority))
	for p := range a.Priority {
		presences = append(presences, p)
	}
	sort.Strings(presences)
	for _, p := range presences {
		c.cons("priority %-5s: %d", p, a.Priority[p])
	}
}

func nickOr(a *config.Account) string {
	if a.MUCNick != "" {
		return a.MUCNick
	}
	return a.Local()
}

func (c *Client) cmdReconnect(_ context.Context, args []string) error {
	n, err := command.ParseRange(args[0], 0, maxInterval)
	if err != nil {
		return err
	}
	c.cfg.Prefs.Reconnect = n
	c.save()
	if n == 0 {
		c.cons("Reconnect disabled.")
		return nil
	}
	c.cons("Reconnect interval set to %d seconds.", n)
	return nil
}

func (c *Client) cmdAutoping(_ context.Context, args []string) error {
	n, err := command.ParseRange(args[0], 0, maxInterval)
	if err != nil {
		return err
	}
	c.cfg.Prefs.Autoping = n
	c.save()
	if n == 0 {
		c.cons("Autoping disabled.")
		return nil
	}
	c.cons("Autoping interval set to %d seconds.", n)
	return nil
}

// maxInterval bounds the timer preferences, in seconds.
const maxInterval = 24 * 60 * 60

func (c *Client) cmdPing(ctx context.Context, args []string) error {
	var to string
	if len(args) == 1 {
		to = args[0]
	}
	c.autopinging = false
	if err := c.net.Ping(ctx, to); err != nil {
		return ProtocolError{Target: to, Op: "ping", Err: err}
	}
	return nil
}

func (c *Client) cmdSoftware(ctx context.Context, args []string) error {
	var to string
	switch {
	case len(args) == 1:
		to = args[0]
		if r, ok := c.reg.Current().(*session.Room); ok && !strings.Contains(to, "/") {
			to = r.Key() + "/" + to
		}
	default:
		switch conv := c.reg.Current().(type) {
		case *session.Private:
			to = conv.Key()
		case *session.Chat:
			to = conv.To()
			if conv.Resource == "" {
				if contact, ok := c.roster.Get(conv.Addr()); ok {
					if res := contact.Resources(); len(res) > 0 {
						to = conv.Addr() + "/" + res[0].Name
					}
				}
			}
		default:
			return command.ErrBadUsage
		}
	}
	if _, resource := split(to); resource == "" {
		return command.UserInputError{Msg: "You must provide a full JID to the /software command."}
	}
	if err := c.net.SoftwareVersion(ctx, to); err != nil {
		return ProtocolError{Target: to, Op: "software version of", Err: err}
	}
	return nil
}
