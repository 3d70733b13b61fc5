// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppnet

import (
	"strings"
	"time"

	"mellium.im/xmpp/jid"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/roster"
)

// split returns the bare JID and resource of addr.
// Addresses that do not parse are returned unchanged with no resource.
func split(addr string) (bare, resource string) {
	j, err := jid.Parse(addr)
	if err != nil {
		return addr, ""
	}
	return j.Bare().String(), j.Resourcepart()
}

func (m *inMessage) state() (chatstate.State, bool) {
	switch {
	case m.Active != nil:
		return chatstate.Active, true
	case m.Composing != nil:
		return chatstate.Composing, true
	case m.Paused != nil:
		return chatstate.Paused, true
	case m.Inactive != nil:
		return chatstate.Inactive, true
	case m.Gone != nil:
		return chatstate.Gone, true
	}
	return chatstate.Active, false
}

func (m *inMessage) chat() network.Message {
	st, ok := m.state()
	return network.Message{
		ID:               m.ID,
		From:             m.From,
		To:               m.To,
		Body:             m.Body,
		Envelope:         strings.TrimSpace(m.Encrypted),
		Stamp:            m.Delay.time(),
		State:            st,
		HasState:         ok,
		ReceiptRequested: m.Request != nil && m.ID != "",
	}
}

// messageEvent converts a message stanza into an event.
// Self is the bare JID of the account and is used to reject forged carbons.
// A nil event means the message carried nothing of interest.
func messageEvent(m inMessage, self string) network.Event {
	bare, resource := split(m.From)

	if m.Type == "error" {
		return network.MessageError{
			From:      m.From,
			ID:        m.ID,
			Condition: m.Error.condition(),
			Text:      m.errorText(),
		}
	}

	if fwd, sent := m.carbon(); fwd != nil {
		if m.From != "" && !strings.EqualFold(bare, self) {
			return nil
		}
		inner := fwd.Forwarded.Message
		ev := inner.chat()
		if ev.Stamp.IsZero() {
			ev.Stamp = fwd.Forwarded.Delay.time()
		}
		ev.Carbon = true
		ev.Sent = sent
		ev.ReceiptRequested = false
		if ev.Body == "" && ev.Envelope == "" {
			return nil
		}
		return ev
	}

	if u := m.MUCUser; u != nil && u.Invite != nil {
		return network.Invite{
			Room:     bare,
			From:     u.Invite.From,
			Reason:   u.Invite.Reason,
			Password: u.Password,
		}
	}
	if c := m.Conference; c != nil && c.JID != "" {
		return network.Invite{
			Room:     c.JID,
			From:     bare,
			Reason:   c.Reason,
			Password: c.Password,
		}
	}

	if m.Type == "groupchat" {
		if m.Body == "" && m.Subject == nil {
			return nil
		}
		return network.RoomMessage{
			Room:    bare,
			Nick:    resource,
			Body:    m.Body,
			Subject: m.Subject,
			Stamp:   m.Delay.time(),
			History: m.Delay != nil,
		}
	}

	if m.Received != nil {
		return network.Receipt{From: m.From, ID: m.Received.ID}
	}

	if m.MUCUser != nil && resource != "" {
		if m.Body == "" {
			return nil
		}
		return network.Private{From: m.From, Body: m.Body, Stamp: m.Delay.time()}
	}

	ev := m.chat()
	if ev.Body == "" && ev.Envelope == "" && !ev.HasState {
		return nil
	}
	return ev
}

func (m *inMessage) carbon() (*forwarded, bool) {
	switch {
	case m.CarbonReceived != nil:
		return m.CarbonReceived, false
	case m.CarbonSent != nil:
		return m.CarbonSent, true
	}
	return nil, false
}

func (m *inMessage) errorText() string {
	if m.Error == nil {
		return ""
	}
	return m.Error.Text
}

// presenceEvent converts a presence stanza into an event.
func presenceEvent(p inPresence) network.Event {
	bare, resource := split(p.From)

	if p.Type == "error" {
		ev := network.JoinError{Room: bare, Condition: p.Error.condition()}
		if p.Error != nil {
			ev.Text = p.Error.Text
		}
		return ev
	}

	show, _ := roster.ParsePresence(p.Show)

	if u := p.MUCUser; u != nil {
		ev := network.RoomPresence{
			Room:        bare,
			Nick:        resource,
			Presence:    show,
			Status:      p.Status,
			Self:        u.has(110),
			Unavailable: p.Type == "unavailable",
			Created:     u.has(201),
			Kicked:      u.has(307),
			Banned:      u.has(301),
		}
		if len(u.Items) > 0 {
			item := u.Items[0]
			ev.JID = item.JID
			ev.Role = item.Role
			ev.Affiliation = item.Affiliation
			ev.Reason = item.Reason
			if item.Actor != nil {
				ev.Actor = item.Actor.Nick
				if ev.Actor == "" {
					ev.Actor = item.Actor.JID
				}
			}
			if u.has(303) {
				ev.NewNick = item.Nick
			}
		}
		if d := u.Destroy; d != nil {
			ev.Destroy = &network.Destroy{
				NewJID:   d.JID,
				Password: d.Password,
				Reason:   d.Reason,
			}
		}
		return ev
	}

	switch p.Type {
	case "subscribe", "subscribed", "unsubscribe", "unsubscribed":
		return network.Subscription{From: bare, Type: p.Type}
	case "unavailable":
		return network.Unavailable{From: p.From, Status: p.Status}
	case "":
	default:
		return nil
	}

	ev := network.Presence{
		From:     p.From,
		Presence: show,
		Status:   p.Status,
		Priority: p.Priority,
		Signed:   strings.TrimSpace(p.Signed),
	}
	if p.Caps != nil {
		ev.Caps = p.Caps.Node + "#" + p.Caps.Ver
	}
	if p.Idle != nil {
		if t, err := time.Parse(time.RFC3339, p.Idle.Since); err == nil {
			ev.Idle = t
		}
	}
	return ev
}

func rosterItems(q rosterQuery) []roster.Item {
	items := make([]roster.Item, 0, len(q.Items))
	for _, it := range q.Items {
		items = append(items, roster.Item{
			JID:          it.JID,
			Name:         it.Name,
			Subscription: it.Subscription,
			Ask:          it.Ask == "subscribe",
			Groups:       it.Groups,
		})
	}
	return items
}
