// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"mellium.im/communique/internal/command"
	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/session"
)

func (c *Client) cryptoCommands() []command.Command {
	return []command.Command{{
		Name: "pgp",
		Min:  1,
		Max:  3,
		Synopsis: []string{
			"/pgp keys",
			"/pgp contacts",
			"/pgp setkey <contact> <keyid>",
			"/pgp start [<contact>]",
			"/pgp end",
			"/pgp log on|off|redact",
		},
		Description: "Open PGP commands to manage keys and encrypt messages.",
		Args: [][2]string{
			{"keys", "List the keys of the keyring."},
			{"contacts", "Show contacts with assigned public keys."},
			{"setkey <contact> <keyid>", "Assign a public key to a contact."},
			{"start [<contact>]", "Start PGP encryption with the current chat or the given contact."},
			{"end", "End PGP encryption in the current chat."},
			{"log on|off|redact", "How PGP messages are logged."},
		},
		Handler: c.cmdPGP,
	}, {
		Name:     "otr",
		Min:      1,
		Max:      3,
		FreeText: true,
		Synopsis: []string{
			"/otr start [<contact>]",
			"/otr end",
			"/otr trust|untrust",
			"/otr secret <secret>",
			"/otr question <question> <answer>",
			"/otr answer <answer>",
			"/otr policy manual|opportunistic|always",
			"/otr log on|off|redact",
		},
		Description: "Off the Record encryption commands.",
		Args: [][2]string{
			{"start [<contact>]", "Start an OTR session with the current chat or the given contact."},
			{"end", "End the OTR session in the current chat."},
			{"trust|untrust", "Mark the fingerprint of the contact as trusted or untrusted."},
			{"secret <secret>", "Verify the contact with a shared secret."},
			{"question <question> <answer>", "Verify the contact with a question and answer."},
			{"answer <answer>", "Answer the question of the contact."},
			{"policy manual|opportunistic|always", "Set the default OTR policy."},
			{"log on|off|redact", "How OTR messages are logged."},
		},
		Handler: c.cmdOTR,
	}, {
		Name:        "encwarn",
		Min:         1,
		Max:         1,
		Synopsis:    []string{"/encwarn on|off"},
		Description: "Show warnings about messages received with unexpected encryption.",
		Handler: func(_ context.Context, args []string) error {
			on, err := command.ParseBool(args[0])
			if err != nil {
				return err
			}
			c.cfg.Prefs.EncWarn = on
			c.save()
			c.cons("%s", command.Toggle("Encryption warning message", on))
			return nil
		},
	}}
}

// cryptoError turns the errors of the arbiter into messages for the user.
func cryptoError(err error, proto string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, encryption.ErrUnavailable):
		return command.PreconditionError{Msg: proto + " support is not available."}
	case errors.Is(err, encryption.ErrEndOtherSession):
		if proto == "PGP" {
			return command.PreconditionError{Msg: "You must end the OTR session to start PGP encryption."}
		}
		return command.PreconditionError{Msg: "You must disable PGP encryption before starting an OTR session."}
	case errors.Is(err, encryption.ErrAlreadyActive):
		if proto == "PGP" {
			return command.PreconditionError{Msg: "You have already started PGP encryption."}
		}
		return command.PreconditionError{Msg: "You are already in an OTR session."}
	case errors.Is(err, encryption.ErrNotActive):
		if proto == "PGP" {
			return command.PreconditionError{Msg: "PGP encryption is not currently enabled."}
		}
		return command.PreconditionError{Msg: "You are not currently in an OTR session."}
	case errors.Is(err, encryption.ErrNoOwnKey):
		return command.PreconditionError{Msg: "You must specify a PGP key ID for this account in order to start PGP encryption."}
	case errors.Is(err, encryption.ErrNoContactKey):
		return command.PreconditionError{Msg: "No PGP key found for contact."}
	}
	return err
}

// encryptedChat returns the chat to start encryption in: the chat with the
// given contact, opened and focused, or the current chat.
func (c *Client) encryptedChat(args []string) (*session.Chat, error) {
	if len(args) > 1 {
		addr := args[1]
		if contact, ok := c.roster.Find(addr); ok {
			addr = contact.JID
		}
		bare, _ := split(addr)
		ch := c.openChat(bare)
		c.reg.FocusConversation(ch)
		return ch, nil
	}
	ch, err := session.AsChat(c.reg.Current())
	if err != nil {
		return nil, command.UserInputError{Msg: "You must be in a regular chat window to start encryption."}
	}
	return ch, nil
}

func (c *Client) currentChat() (*session.Chat, error) {
	ch, err := session.AsChat(c.reg.Current())
	if err != nil {
		return nil, command.UserInputError{Msg: "You must be in a regular chat window to use this command."}
	}
	return ch, nil
}

func (c *Client) cmdPGP(ctx context.Context, args []string) error {
	switch args[0] {
	case "keys":
		if c.keyring == nil {
			return command.PreconditionError{Msg: "PGP support is not available."}
		}
		keys := c.keyring.Keys()
		if len(keys) == 0 {
			c.cons("No keys found")
			return nil
		}
		c.cons("PGP keys:")
		for _, k := range keys {
			c.cons("  %s", k.Name)
			c.cons("    ID          : %s", k.ID)
			if k.Private {
				c.cons("    Type        : PUBLIC, PRIVATE")
			} else {
				c.cons("    Type        : PUBLIC")
			}
		}
		return nil
	case "contacts":
		if c.store == nil {
			return command.PreconditionError{Msg: "No account selected."}
		}
		keys, err := c.store.ContactKeys()
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			c.cons("No contacts found with PGP public keys assigned.")
			return nil
		}
		contacts := make([]string, 0, len(keys))
		for jid := range keys {
			contacts = append(contacts, jid)
		}
		sort.Strings(contacts)
		c.cons("Assigned PGP public keys:")
		for _, jid := range contacts {
			c.cons("  %s: %s", jid, keys[jid])
		}
		return nil
	case "setkey":
		if len(args) != 3 {
			return command.ErrBadUsage
		}
		if c.keyring == nil {
			return command.PreconditionError{Msg: "PGP support is not available."}
		}
		if c.store == nil {
			return command.PreconditionError{Msg: "No account selected."}
		}
		bare, _ := split(args[1])
		if !c.keyring.Valid(args[2]) {
			return command.UserInputError{Msg: "Invalid key ID."}
		}
		if err := c.store.SetContactKey(bare, args[2]); err != nil {
			return err
		}
		c.cons("Key set for %s.", bare)
		return nil
	case "start":
		if !c.Connected() {
			return command.ErrNotConnected
		}
		ch, err := c.encryptedChat(args)
		if err != nil {
			return err
		}
		if err := c.crypto.StartPGP(ch); err != nil {
			if errors.Is(err, encryption.ErrNoContactKey) {
				return command.PreconditionError{Msg: "No PGP key found for " + ch.Addr() + "."}
			}
			return cryptoError(err, "PGP")
		}
		c.infof(ch, noticePGPEnabled)
		return nil
	case "end":
		ch, err := c.currentChat()
		if err != nil {
			return err
		}
		if err := c.crypto.EndPGP(ch); err != nil {
			return cryptoError(err, "PGP")
		}
		c.infof(ch, encryption.NoticePGPDisabled)
		return nil
	case "log":
		if len(args) != 2 {
			return command.ErrBadUsage
		}
		p, err := encryption.ParseLogPolicy(args[1])
		if err != nil {
			return command.ErrBadUsage
		}
		c.cfg.Prefs.PGPLog = p.String()
		c.save()
		c.cons("PGP messages will be logged as: %s.", logPolicyText(p))
		return nil
	}
	return command.ErrBadUsage
}

func logPolicyText(p encryption.LogPolicy) string {
	switch p {
	case encryption.LogOff:
		return "not logged"
	case encryption.LogRedact:
		return "redacted"
	}
	return "plaintext"
}

func (c *Client) cmdOTR(ctx context.Context, args []string) error {
	switch args[0] {
	case "policy":
		if len(args) != 2 {
			return command.ErrBadUsage
		}
		p, err := encryption.ParseOTRPolicy(args[1])
		if err != nil {
			return command.UserInputError{Msg: "OTR policy must be one of: manual, opportunistic or always."}
		}
		c.cfg.Prefs.OTRPolicy = p.String()
		c.save()
		c.cons("OTR policy is now set to: %s", p)
		return nil
	case "log":
		if len(args) != 2 {
			return command.ErrBadUsage
		}
		p, err := encryption.ParseLogPolicy(args[1])
		if err != nil {
			return command.ErrBadUsage
		}
		c.cfg.Prefs.OTRLog = p.String()
		c.save()
		c.cons("OTR messages will be logged as: %s.", logPolicyText(p))
		return nil
	}

	if !c.Connected() {
		return command.ErrNotConnected
	}
	if args[0] == "start" {
		ch, err := c.encryptedChat(args)
		if err != nil {
			return err
		}
		if err := c.crypto.StartOTR(ctx, ch); err != nil {
			return cryptoError(err, "OTR")
		}
		c.infof(ch, "Starting OTR session...")
		return nil
	}

	ch, err := c.currentChat()
	if err != nil {
		return err
	}
	switch args[0] {
	case "end":
		if err := c.crypto.EndOTR(ctx, ch); err != nil {
			return cryptoError(err, "OTR")
		}
		ch.Trusted = false
		c.infof(ch, "OTR session ended.")
	case "trust":
		if err := c.crypto.Trust(ch); err != nil {
			return cryptoError(err, "OTR")
		}
		ch.Trusted = true
		c.infof(ch, "OTR session trusted.")
	case "untrust":
		if err := c.crypto.Untrust(ch); err != nil {
			return cryptoError(err, "OTR")
		}
		ch.Trusted = false
		c.infof(ch, "OTR session untrusted.")
	case "secret":
		if len(args) < 2 {
			return command.ErrBadUsage
		}
		if err := c.crypto.Secret(ctx, ch, args[1]); err != nil {
			return cryptoError(err, "OTR")
		}
		c.infof(ch, "Awaiting authentication from %s...", ch.Addr())
	case "question":
		if len(args) != 3 {
			return command.ErrBadUsage
		}
		if err := c.crypto.Question(ctx, ch, args[1], args[2]); err != nil {
			return cryptoError(err, "OTR")
		}
		c.infof(ch, "Awaiting answer from %s...", ch.Addr())
	case "answer":
		if len(args) < 2 {
			return command.ErrBadUsage
		}
		if err := c.crypto.Answer(ctx, ch, args[1]); err != nil {
			return cryptoError(err, "OTR")
		}
	default:
		return command.ErrBadUsage
	}
	return nil
}

// OTRSecure is called by the OTR implementation when a session with barejid
// is established.
// Like Handle, it must be called from the goroutine running the client.
func (c *Client) OTRSecure(ctx context.Context, barejid string, trusted bool) {
	ch := c.openChat(barejid)
	if err := c.crypto.Secure(ctx, ch); err != nil {
		c.logger.Warn("otr_secure_failed", zap.String("contact", barejid), zap.Error(err))
		c.errorf(ch, "%s", command.Message(cryptoError(err, "OTR")))
		return
	}
	ch.Trusted = trusted
	if trusted {
		c.infof(ch, "OTR session started (trusted).")
	} else {
		c.infof(ch, "OTR session started (untrusted).")
	}
}

// OTRInsecure is called by the OTR implementation when the session with
// barejid ends.
func (c *Client) OTRInsecure(barejid string) {
	ch, ok := c.reg.Chat(barejid)
	if !ok || ch.Mode() != encryption.OTR {
		return
	}
	c.crypto.Insecure(ch)
	ch.Trusted = false
	c.infof(ch, "%s has ended the OTR session.", barejid)
}

// SendOTR sends a message produced by the OTR implementation.
func (c *Client) SendOTR(ctx context.Context, to, body string) error {
	_, err := c.net.SendChat(ctx, to, body, network.Outgoing{})
	return err
}

// OTRQuestion is called when barejid starts authenticating the session.
// An empty question means a shared secret is expected.
func (c *Client) OTRQuestion(barejid, question string) {
	ch := c.openChat(barejid)
	if question == "" {
		c.infof(ch, "%s wants to authenticate your identity, use '/otr secret <secret>'.", barejid)
		return
	}
	c.infof(ch, "%s wants to authenticate your identity with the following question:", barejid)
	c.infof(ch, "  %s", question)
	c.infof(ch, "use '/otr answer <answer>'.")
}

// OTRAuthenticated reports the result of authenticating barejid.
func (c *Client) OTRAuthenticated(barejid string, ok bool) {
	ch, open := c.reg.Chat(barejid)
	if !open {
		return
	}
	if !ok {
		c.errorf(ch, "Authentication failed.")
		return
	}
	ch.Trusted = true
	c.infof(ch, "Authentication successful.")
}
