// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/session"
)

// historyLines is the number of logged lines shown when a chat opens.
const historyLines = 10

// Messages about encryption modes.
const (
	noticePGPEnabled = "PGP encryption enabled."
	msgPolicyAlways  = "Failed to send message. OTR policy set to: always"
)

// openChat returns the chat with barejid, creating it and showing its
// history if needed.
func (c *Client) openChat(barejid string) *session.Chat {
	ch, created := c.reg.OpenChat(barejid)
	if created {
		c.showHistory(ch)
	}
	return ch
}

func (c *Client) showHistory(ch *session.Chat) {
	if !c.cfg.Prefs.History || ch.HistoryShown || c.store == nil {
		return
	}
	ch.HistoryShown = true
	entries, err := c.store.ChatHistory(ch.Addr(), historyLines)
	if err != nil {
		c.logger.Warn("history_failed", zap.String("contact", ch.Addr()), zap.Error(err))
		return
	}
	for _, e := range entries {
		from := e.Contact
		if e.Outgoing {
			from = "me"
		}
		c.print(ch, Line{Kind: LineHistory, Stamp: e.Stamp, From: from, Text: e.Body})
	}
}

func (c *Client) sendChat(ctx context.Context, ch *session.Chat, text string) {
	if !c.Connected() {
		c.errorf(ch, "You are not currently connected.")
		return
	}
	sent, err := c.crypto.Send(ctx, ch, ch.To(), text)
	switch {
	case errors.Is(err, encryption.ErrPolicyAlways):
		c.errorf(ch, msgPolicyAlways)
		return
	case errors.Is(err, encryption.ErrNoContactKey):
		c.errorf(ch, "No PGP key found for %s.", ch.Addr())
		return
	case err != nil:
		c.protocolError(ch.Addr(), "message to", err)
		return
	}
	c.print(ch, Line{Kind: LineOutgoing, From: "me", Text: text, Mode: sent.Mode, ID: sent.ID})
}

func (c *Client) sendRoom(ctx context.Context, r *session.Room, text string) {
	if !c.Connected() {
		c.errorf(r, "You are not currently connected.")
		return
	}
	// Our own messages are shown when the room echoes them.
	if _, err := c.net.SendGroupChat(ctx, r.Key(), text); err != nil {
		c.protocolError(r.Key(), "message to", err)
	}
}

func (c *Client) sendPrivate(ctx context.Context, p *session.Private, text string) {
	if !c.Connected() {
		c.errorf(p, "You are not currently connected.")
		return
	}
	if _, ok := c.rooms.Get(p.Room()); !ok {
		c.errorf(p, "You are no longer in room %s.", p.Room())
		return
	}
	id, err := c.net.SendPrivate(ctx, p.Key(), text)
	if err != nil {
		c.protocolError(p.Key(), "message to", err)
		return
	}
	c.print(p, Line{Kind: LineOutgoing, From: "me", Text: text, ID: id})
}

func (c *Client) message(ctx context.Context, ev network.Message) {
	bare, resource := split(ev.From)

	// Rooms send private messages from occupants without the muc#user
	// payload as well.
	if _, ok := c.rooms.Get(bare); ok && resource != "" && !ev.Carbon {
		if ev.Body != "" {
			c.private(network.Private{From: ev.From, Body: ev.Body, Stamp: ev.Stamp})
		}
		return
	}

	if ev.Carbon && ev.Sent {
		c.sentCarbon(ev)
		return
	}

	if ev.Body == "" && ev.Envelope == "" {
		if ch, ok := c.reg.Chat(bare); ok && ev.HasState {
			ch.SupportsStates = true
			c.ui.Typing(ch, ev.State)
		}
		return
	}

	ch := c.openChat(bare)
	if ev.HasState {
		ch.SupportsStates = true
	}
	before := ch.Mode()
	d, err := c.crypto.Receive(ctx, ch, resource, ev.Body, ev.Envelope)
	if err != nil {
		c.logger.Warn("receive_failed", zap.String("from", ev.From), zap.Error(err))
		c.errorf(ch, "Could not process message from %s: %v", ev.From, err)
		return
	}
	if d.Warning != "" && c.cfg.Prefs.EncWarn {
		c.errorf(ch, "%s", d.Warning)
	}
	if d.Notice != "" {
		c.infof(ch, "%s", d.Notice)
	}
	if d.Decrypted && before == encryption.None && ch.Mode() == encryption.PGP {
		c.infof(ch, noticePGPEnabled)
	}
	if d.Show {
		from := bare
		if contact, ok := c.roster.Get(bare); ok {
			from = contact.Display()
		}
		c.print(ch, Line{Kind: LineIncoming, Stamp: ev.Stamp, From: from, Text: d.Text, Mode: ch.Mode()})
		c.alert(ch, from, d.Text)
	}
	if ev.HasState {
		c.ui.Typing(ch, ev.State)
	}

	if ev.ReceiptRequested && c.cfg.Prefs.Receipts.Send {
		if err := c.net.SendReceipt(ctx, ev.From, ev.ID); err != nil {
			c.logger.Debug("receipt_failed", zap.String("to", ev.From), zap.Error(err))
		}
	}
}

// sentCarbon shows a message that another of our resources sent.
func (c *Client) sentCarbon(ev network.Message) {
	bare, _ := split(ev.To)
	ch := c.openChat(bare)
	text := ev.Body
	if text == "" {
		text = ev.Envelope
	}
	c.print(ch, Line{Kind: LineOutgoing, Stamp: ev.Stamp, From: "me", Text: text})
	if c.store != nil {
		err := c.store.LogChat(encryption.Record{Contact: bare, Outgoing: true, Body: text})
		if err != nil {
			c.logger.Warn("log_failed", zap.Error(err))
		}
	}
}

func (c *Client) private(ev network.Private) {
	p, _ := c.reg.OpenPrivate(ev.From)
	c.print(p, Line{Kind: LineIncoming, Stamp: ev.Stamp, From: p.Nick(), Text: ev.Body})
	c.alert(p, p.Nick(), ev.Body)
}

// alert counts an incoming message and notifies the user if the window does
// not have focus.
func (c *Client) alert(conv session.Conversation, from, text string) {
	if !c.reg.Incoming(conv) {
		return
	}
	if c.cfg.Prefs.Beep {
		c.ui.Beep()
	}
	c.ui.Notify(conv, from, text)
}

// mentions reports whether body mentions nick.
func mentions(body, nick string) bool {
	return nick != "" && strings.Contains(strings.ToLower(body), strings.ToLower(nick))
}
