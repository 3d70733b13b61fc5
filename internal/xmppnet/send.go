// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppnet

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"mellium.im/xmpp"
	"mellium.im/xmpp/carbons"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/ping"
	"mellium.im/xmpp/stanza"
	"mellium.im/xmpp/version"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/dataform"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/roster"
)

// PGPFallback is the body sent alongside an encrypted message.
const PGPFallback = "This message is encrypted (XEP-0027)."

func parse(addr string) (jid.JID, error) {
	j, err := jid.Parse(addr)
	if err != nil {
		return j, fmt.Errorf("invalid JID %q: %w", addr, err)
	}
	return j, nil
}

func newID() string {
	return uuid.New().String()
}

func (c *Conn) message(ctx context.Context, m outMessage) (string, error) {
	m.ID = newID()
	return m.ID, c.encode(ctx, m)
}

func outgoing(m *outMessage, o network.Outgoing) {
	if o.Active {
		m.State = &elem{XMLName: chatstate.Active.Name()}
	}
	if o.Receipt {
		m.Request = &elem{XMLName: xml.Name{Space: nsReceipts, Local: "request"}}
	}
}

// SendChat sends a chat message and returns its ID.
func (c *Conn) SendChat(ctx context.Context, to, body string, o network.Outgoing) (string, error) {
	j, err := parse(to)
	if err != nil {
		return "", err
	}
	m := outMessage{
		Message: stanza.Message{To: j, Type: stanza.ChatMessage},
		Body:    body,
	}
	outgoing(&m, o)
	return c.message(ctx, m)
}

// SendPGP sends a XEP-0027 encrypted message and returns its ID.
func (c *Conn) SendPGP(ctx context.Context, to, envelope string, o network.Outgoing) (string, error) {
	j, err := parse(to)
	if err != nil {
		return "", err
	}
	m := outMessage{
		Message:   stanza.Message{To: j, Type: stanza.ChatMessage},
		Body:      PGPFallback,
		Encrypted: &cdata{Data: envelope},
	}
	outgoing(&m, o)
	return c.message(ctx, m)
}

// SendGroupChat sends a message to a room.
func (c *Conn) SendGroupChat(ctx context.Context, room, body string) (string, error) {
	j, err := parse(room)
	if err != nil {
		return "", err
	}
	return c.message(ctx, outMessage{
		Message: stanza.Message{To: j, Type: stanza.GroupChatMessage},
		Body:    body,
	})
}

// SendPrivate sends a private message to a room occupant.
func (c *Conn) SendPrivate(ctx context.Context, to, body string) (string, error) {
	j, err := parse(to)
	if err != nil {
		return "", err
	}
	return c.message(ctx, outMessage{
		Message: stanza.Message{To: j, Type: stanza.ChatMessage},
		Body:    body,
		MUCUser: &outMUCUser{},
	})
}

// SendChatState sends a standalone chat state notification.
// Composing notifications over the rate limit are dropped.
func (c *Conn) SendChatState(ctx context.Context, to string, st chatstate.State) error {
	if st == chatstate.Composing && !c.states.Allow() {
		return nil
	}
	j, err := parse(to)
	if err != nil {
		return err
	}
	return c.encode(ctx, outMessage{
		Message: stanza.Message{To: j, Type: stanza.ChatMessage},
		State:   &elem{XMLName: st.Name()},
	})
}

// SendReceipt acknowledges a message that requested a receipt.
func (c *Conn) SendReceipt(ctx context.Context, to, id string) error {
	j, err := parse(to)
	if err != nil {
		return err
	}
	return c.encode(ctx, outMessage{
		Message:  stanza.Message{ID: newID(), To: j, Type: stanza.ChatMessage},
		Received: &received{ID: id},
	})
}

// SendPresence sends our presence.
// An empty to broadcasts it to the server.
func (c *Conn) SendPresence(ctx context.Context, to string, p roster.Presence, status string, priority int) error {
	var j jid.JID
	if to != "" {
		var err error
		if j, err = parse(to); err != nil {
			return err
		}
	}
	return c.encode(ctx, outPresence{
		Presence: stanza.Presence{To: j},
		Show:     p.Show(),
		Status:   status,
		Priority: priority,
	})
}

// Subscription sends a subscription request or answer.
// Typ is one of subscribe, subscribed, unsubscribe, or unsubscribed.
func (c *Conn) Subscription(ctx context.Context, to, typ string) error {
	j, err := parse(to)
	if err != nil {
		return err
	}
	var t stanza.PresenceType
	switch typ {
	case "subscribe":
		t = stanza.SubscribePresence
	case "subscribed":
		t = stanza.SubscribedPresence
	case "unsubscribe":
		t = stanza.UnsubscribePresence
	case "unsubscribed":
		t = stanza.UnsubscribedPresence
	default:
		return fmt.Errorf("xmppnet: unknown subscription type %q", typ)
	}
	return c.encode(ctx, stanza.Presence{To: j.Bare(), Type: t})
}

func rosterPayload(item rosterItem) xml.TokenReader {
	attrs := []xml.Attr{attr("jid", item.JID)}
	if item.Name != "" {
		attrs = append(attrs, attr("name", item.Name))
	}
	if item.Subscription != "" {
		attrs = append(attrs, attr("subscription", item.Subscription))
	}
	var groups []xml.TokenReader
	for _, g := range item.Groups {
		groups = append(groups, text("group", g))
	}
	return element(nsRoster, "query", nil, element("", "item", attrs, groups...))
}

// rosterSet sends a roster change in the background.
// The result arrives as a roster push.
func (c *Conn) rosterSet(item rosterItem) error {
	s, sctx, err := c.current()
	if err != nil {
		return err
	}
	payload := rosterPayload(item)
	go func() {
		ctx, cancel := context.WithTimeout(sctx, c.timeout)
		defer cancel()
		err := s.UnmarshalIQElement(ctx, payload, stanza.IQ{Type: stanza.SetIQ}, nil)
		if err != nil {
			c.logger.Warn("roster update failed", zap.String("jid", item.JID), zap.Error(err))
		}
	}()
	return nil
}

// AddContact adds a contact to the roster.
func (c *Conn) AddContact(ctx context.Context, addr, name string) error {
	return c.UpdateContact(ctx, addr, name, nil)
}

// UpdateContact sets the name and groups of a roster item.
func (c *Conn) UpdateContact(_ context.Context, addr, name string, groups []string) error {
	j, err := parse(addr)
	if err != nil {
		return err
	}
	return c.rosterSet(rosterItem{JID: j.Bare().String(), Name: name, Groups: groups})
}

// RemoveContact removes a contact from the roster.
func (c *Conn) RemoveContact(_ context.Context, addr string) error {
	j, err := parse(addr)
	if err != nil {
		return err
	}
	return c.rosterSet(rosterItem{JID: j.Bare().String(), Subscription: roster.SubRemove})
}

// Ping sends a ping and reports the round trip time with a Pong event.
// An empty to pings the server.
func (c *Conn) Ping(_ context.Context, to string) error {
	var j jid.JID
	if to != "" {
		var err error
		if j, err = parse(to); err != nil {
			return err
		}
	}
	return c.async(func(ctx context.Context, s *xmpp.Session) network.Event {
		start := time.Now()
		r := ping.IQ{IQ: stanza.IQ{To: j, Type: stanza.GetIQ}}.TokenReader()
		err := s.UnmarshalIQ(ctx, r, nil)
		return network.Pong{JID: to, RTT: time.Since(start), Err: err}
	})
}

// SoftwareVersion requests the software version of an entity.
func (c *Conn) SoftwareVersion(_ context.Context, to string) error {
	j, err := parse(to)
	if err != nil {
		return err
	}
	return c.async(func(ctx context.Context, s *xmpp.Session) network.Event {
		q, err := version.Get(ctx, s, j)
		return network.Version{JID: to, Name: q.Name, Version: q.Version, OS: q.OS, Err: err}
	})
}

// Carbons enables or disables message carbons.
func (c *Conn) Carbons(_ context.Context, enable bool) error {
	s, sctx, err := c.current()
	if err != nil {
		return err
	}
	go func() {
		ctx, cancel := context.WithTimeout(sctx, c.timeout)
		defer cancel()
		var err error
		if enable {
			err = carbons.Enable(ctx, s)
		} else {
			err = carbons.Disable(ctx, s)
		}
		if err != nil {
			c.logger.Warn("error changing carbons", zap.Bool("enable", enable), zap.Error(err))
		}
	}()
	return nil
}

func joinPresence(room, nick, password string, p roster.Presence, status string) (outPresence, error) {
	j, err := parse(room + "/" + nick)
	if err != nil {
		return outPresence{}, err
	}
	return outPresence{
		Presence: stanza.Presence{To: j},
		Show:     p.Show(),
		Status:   status,
		MUC:      &mucJoin{Password: password},
	}, nil
}

// JoinRoom sends presence to a room.
func (c *Conn) JoinRoom(ctx context.Context, room, nick, password string, p roster.Presence, status string) error {
	v, err := joinPresence(room, nick, password, p, status)
	if err != nil {
		return err
	}
	return c.encode(ctx, v)
}

// ChangeNick asks a room to change our nickname.
func (c *Conn) ChangeNick(ctx context.Context, room, nick string, p roster.Presence, status string) error {
	j, err := parse(room + "/" + nick)
	if err != nil {
		return err
	}
	return c.encode(ctx, outPresence{
		Presence: stanza.Presence{To: j},
		Show:     p.Show(),
		Status:   status,
	})
}

// LeaveRoom sends unavailable presence to a room.
func (c *Conn) LeaveRoom(ctx context.Context, room, nick, status string) error {
	j, err := parse(room + "/" + nick)
	if err != nil {
		return err
	}
	return c.encode(ctx, outPresence{
		Presence: stanza.Presence{To: j, Type: stanza.UnavailablePresence},
		Status:   status,
	})
}

// SetSubject changes the subject of a room.
// An empty subject clears it.
func (c *Conn) SetSubject(ctx context.Context, room, subject string) error {
	m, err := subjectMessage(room, subject)
	if err != nil {
		return err
	}
	_, err = c.message(ctx, m)
	return err
}

func subjectMessage(room, subject string) (outMessage, error) {
	j, err := parse(room)
	if err != nil {
		return outMessage{}, err
	}
	return outMessage{
		Message: stanza.Message{To: j, Type: stanza.GroupChatMessage},
		Subject: &subject,
	}, nil
}

// Invite invites a contact to a room through the room.
func (c *Conn) Invite(ctx context.Context, room, to, reason string) error {
	j, err := parse(room)
	if err != nil {
		return err
	}
	_, err = c.message(ctx, outMessage{
		Message: stanza.Message{To: j},
		MUCUser: &outMUCUser{Invite: &target{To: to, Reason: reason}},
	})
	return err
}

// DeclineInvite tells the inviter that we will not join.
func (c *Conn) DeclineInvite(ctx context.Context, room, to, reason string) error {
	j, err := parse(room)
	if err != nil {
		return err
	}
	_, err = c.message(ctx, outMessage{
		Message: stanza.Message{To: j},
		MUCUser: &outMUCUser{Decline: &target{To: to, Reason: reason}},
	})
	return err
}

// RequestRoomInfo requests the disco#info of a room.
func (c *Conn) RequestRoomInfo(_ context.Context, room string) error {
	j, err := parse(room)
	if err != nil {
		return err
	}
	return c.async(func(ctx context.Context, s *xmpp.Session) network.Event {
		var q discoInfo
		err := s.UnmarshalIQElement(ctx, element(nsDiscoInfo, "query", nil), stanza.IQ{To: j, Type: stanza.GetIQ}, &q)
		ev := network.RoomInfo{Room: room, Err: err}
		for _, id := range q.Identities {
			if id.Category == "conference" && ev.Name == "" {
				ev.Name = id.Name
			}
		}
		for _, f := range q.Features {
			ev.Features = append(ev.Features, f.Var)
		}
		return ev
	})
}

// RequestRoomConfig requests the configuration form of a room.
func (c *Conn) RequestRoomConfig(_ context.Context, room string) error {
	j, err := parse(room)
	if err != nil {
		return err
	}
	return c.async(func(ctx context.Context, s *xmpp.Session) network.Event {
		var q ownerQuery
		err := s.UnmarshalIQElement(ctx, element(nsMUCOwner, "query", nil), stanza.IQ{To: j, Type: stanza.GetIQ}, &q)
		if err == nil && q.Form == nil {
			err = fmt.Errorf("xmppnet: no configuration form from %s", room)
		}
		return network.RoomConfig{Room: room, Form: q.Form, Err: err}
	})
}

// SubmitRoomConfig submits a room configuration.
// A nil form accepts the default configuration of a new room.
func (c *Conn) SubmitRoomConfig(_ context.Context, room string, form *dataform.Form) error {
	j, err := parse(room)
	if err != nil {
		return err
	}
	var inner xml.TokenReader
	if form != nil {
		inner = form.Submit()
	} else {
		inner = element(dataform.NS, "x", []xml.Attr{attr("type", "submit")})
	}
	payload := element(nsMUCOwner, "query", nil, inner)
	return c.async(func(ctx context.Context, s *xmpp.Session) network.Event {
		err := s.UnmarshalIQElement(ctx, payload, stanza.IQ{To: j, Type: stanza.SetIQ}, nil)
		return network.RoomConfigResult{Room: room, Err: err}
	})
}

// CancelRoomConfig cancels a room configuration.
func (c *Conn) CancelRoomConfig(_ context.Context, room string) error {
	j, err := parse(room)
	if err != nil {
		return err
	}
	payload := element(nsMUCOwner, "query", nil, dataform.Cancel())
	return c.async(func(ctx context.Context, s *xmpp.Session) network.Event {
		err := s.UnmarshalIQElement(ctx, payload, stanza.IQ{To: j, Type: stanza.SetIQ}, nil)
		return network.RoomConfigResult{Room: room, Cancel: true, Err: err}
	})
}

// DestroyRoom destroys a room we own.
func (c *Conn) DestroyRoom(_ context.Context, room, reason string) error {
	j, err := parse(room)
	if err != nil {
		return err
	}
	var inner []xml.TokenReader
	if reason != "" {
		inner = append(inner, text("reason", reason))
	}
	payload := element(nsMUCOwner, "query", nil, element("", "destroy", nil, inner...))
	return c.async(func(ctx context.Context, s *xmpp.Session) network.Event {
		err := s.UnmarshalIQElement(ctx, payload, stanza.IQ{To: j, Type: stanza.SetIQ}, nil)
		return network.RoomAdmin{Room: room, Op: "destroy", Err: err}
	})
}

func adminPayload(attrs []xml.Attr, reason string) xml.TokenReader {
	var inner []xml.TokenReader
	if reason != "" {
		inner = append(inner, text("reason", reason))
	}
	return element(nsMUCAdmin, "query", nil, element("", "item", attrs, inner...))
}

func kickItem(nick string) []xml.Attr {
	return []xml.Attr{attr("nick", nick), attr("role", muc.RoleNone.String())}
}

func roleItem(nick string, role muc.Role) []xml.Attr {
	return []xml.Attr{attr("nick", nick), attr("role", role.String())}
}

func affiliationItem(addr string, aff muc.Affiliation) []xml.Attr {
	return []xml.Attr{attr("jid", addr), attr("affiliation", aff.String())}
}

func (c *Conn) admin(room, op, targetName string, attrs []xml.Attr, reason string) error {
	j, err := parse(room)
	if err != nil {
		return err
	}
	payload := adminPayload(attrs, reason)
	return c.async(func(ctx context.Context, s *xmpp.Session) network.Event {
		err := s.UnmarshalIQElement(ctx, payload, stanza.IQ{To: j, Type: stanza.SetIQ}, nil)
		return network.RoomAdmin{Room: room, Op: op, Target: targetName, Err: err}
	})
}

// Kick removes an occupant from a room.
func (c *Conn) Kick(_ context.Context, room, nick, reason string) error {
	return c.admin(room, "kick", nick, kickItem(nick), reason)
}

// SetRole changes the role of an occupant.
func (c *Conn) SetRole(_ context.Context, room, nick string, role muc.Role, reason string) error {
	return c.admin(room, "role", nick, roleItem(nick, role), reason)
}

// Ban bans a user from a room.
func (c *Conn) Ban(_ context.Context, room, addr, reason string) error {
	return c.admin(room, "ban", addr, affiliationItem(addr, muc.AffiliationOutcast), reason)
}

// SetAffiliation changes the affiliation of a user.
func (c *Conn) SetAffiliation(_ context.Context, room, addr string, aff muc.Affiliation, reason string) error {
	return c.admin(room, "affiliation", addr, affiliationItem(addr, aff), reason)
}

// ListAffiliation requests the users with an affiliation.
func (c *Conn) ListAffiliation(_ context.Context, room string, aff muc.Affiliation) error {
	j, err := parse(room)
	if err != nil {
		return err
	}
	payload := element(nsMUCAdmin, "query", nil, element("", "item", []xml.Attr{attr("affiliation", aff.String())}))
	return c.async(func(ctx context.Context, s *xmpp.Session) network.Event {
		var q adminQuery
		err := s.UnmarshalIQElement(ctx, payload, stanza.IQ{To: j, Type: stanza.GetIQ}, &q)
		ev := network.AffiliationList{Room: room, Affiliation: aff, Err: err}
		for _, item := range q.Items {
			ev.JIDs = append(ev.JIDs, item.JID)
		}
		return ev
	})
}

// ListRole requests the occupants with a role.
func (c *Conn) ListRole(_ context.Context, room string, role muc.Role) error {
	j, err := parse(room)
	if err != nil {
		return err
	}
	payload := element(nsMUCAdmin, "query", nil, element("", "item", []xml.Attr{attr("role", role.String())}))
	return c.async(func(ctx context.Context, s *xmpp.Session) network.Event {
		var q adminQuery
		err := s.UnmarshalIQElement(ctx, payload, stanza.IQ{To: j, Type: stanza.GetIQ}, &q)
		ev := network.RoleList{Room: room, Role: role, Err: err}
		for _, item := range q.Items {
			ev.Nicks = append(ev.Nicks, item.Nick)
		}
		return ev
	})
}
