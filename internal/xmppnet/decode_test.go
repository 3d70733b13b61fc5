// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppnet

import (
	"bytes"
	"encoding/xml"
	"reflect"
	"strconv"
	"testing"
	"time"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/muc"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/roster"
)

const self = "romeo@example.net"

func strptr(s string) *string { return &s }

var stamp = time.Date(2002, 9, 10, 23, 8, 25, 0, time.UTC)

var messageTestCases = [...]struct {
	in  string
	out network.Event
}{
	0: {
		in: `<message xmlns="jabber:client" id="1" from="juliet@example.com/balcony" to="romeo@example.net" type="chat"><body>hi</body><active xmlns="http://jabber.org/protocol/chatstates"/><request xmlns="urn:xmpp:receipts"/></message>`,
		out: network.Message{
			ID:               "1",
			From:             "juliet@example.com/balcony",
			To:               "romeo@example.net",
			Body:             "hi",
			State:            chatstate.Active,
			HasState:         true,
			ReceiptRequested: true,
		},
	},
	1: {
		in:  `<message xmlns="jabber:client" from="juliet@example.com/balcony" type="chat"><composing xmlns="http://jabber.org/protocol/chatstates"/></message>`,
		out: network.Message{From: "juliet@example.com/balcony", State: chatstate.Composing, HasState: true},
	},
	2: {
		in: `<message xmlns="jabber:client" from="juliet@example.com/balcony" type="chat"></message>`,
	},
	3: {
		in: `<message xmlns="jabber:client" from="coven@chat.shakespeare.lit/firstwitch" type="groupchat"><body>Thrice</body><delay xmlns="urn:xmpp:delay" stamp="2002-09-10T23:08:25Z"/></message>`,
		out: network.RoomMessage{
			Room:    "coven@chat.shakespeare.lit",
			Nick:    "firstwitch",
			Body:    "Thrice",
			Stamp:   stamp,
			History: true,
		},
	},
	4: {
		in:  `<message xmlns="jabber:client" from="coven@chat.shakespeare.lit/wiccarocks" type="groupchat"><subject></subject></message>`,
		out: network.RoomMessage{Room: "coven@chat.shakespeare.lit", Nick: "wiccarocks", Subject: strptr("")},
	},
	5: {
		in: `<message xmlns="jabber:client" from="coven@chat.shakespeare.lit"><x xmlns="http://jabber.org/protocol/muc#user"><invite from="crone1@shakespeare.lit/desktop"><reason>Hey</reason></invite><password>cauldronburn</password></x></message>`,
		out: network.Invite{
			Room:     "coven@chat.shakespeare.lit",
			From:     "crone1@shakespeare.lit/desktop",
			Reason:   "Hey",
			Password: "cauldronburn",
		},
	},
	6: {
		in: `<message xmlns="jabber:client" from="crone1@shakespeare.lit/desktop"><x xmlns="jabber:x:conference" jid="darkcave@macbeth.shakespeare.lit" password="cauldronburn" reason="Hey"/></message>`,
		out: network.Invite{
			Room:     "darkcave@macbeth.shakespeare.lit",
			From:     "crone1@shakespeare.lit",
			Reason:   "Hey",
			Password: "cauldronburn",
		},
	},
	7: {
		in: `<message xmlns="jabber:client" from="romeo@example.net" to="romeo@example.net/garden" type="chat"><sent xmlns="urn:xmpp:carbons:2"><forwarded xmlns="urn:xmpp:forward:0"><message xmlns="jabber:client" id="2" to="juliet@example.com/balcony" from="romeo@example.net/home" type="chat"><body>Neither</body></message></forwarded></sent></message>`,
		out: network.Message{
			ID:     "2",
			From:   "romeo@example.net/home",
			To:     "juliet@example.com/balcony",
			Body:   "Neither",
			Carbon: true,
			Sent:   true,
		},
	},
	8: {
		in: `<message xmlns="jabber:client" from="tybalt@example.net" type="chat"><received xmlns="urn:xmpp:carbons:2"><forwarded xmlns="urn:xmpp:forward:0"><message xmlns="jabber:client" from="juliet@example.com/balcony" type="chat"><body>forged</body></message></forwarded></received></message>`,
	},
	9: {
		in:  `<message xmlns="jabber:client" from="juliet@example.com/balcony" type="chat"><received xmlns="urn:xmpp:receipts" id="3"/></message>`,
		out: network.Receipt{From: "juliet@example.com/balcony", ID: "3"},
	},
	10: {
		in: `<message xmlns="jabber:client" id="4" from="juliet@example.com" type="error"><error type="cancel"><item-not-found xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/><text xmlns="urn:ietf:params:xml:ns:xmpp-stanzas">gone</text></error></message>`,
		out: network.MessageError{
			From:      "juliet@example.com",
			ID:        "4",
			Condition: "item-not-found",
			Text:      "gone",
		},
	},
	11: {
		in:  `<message xmlns="jabber:client" from="coven@chat.shakespeare.lit/firstwitch" type="chat"><body>psst</body><x xmlns="http://jabber.org/protocol/muc#user"/></message>`,
		out: network.Private{From: "coven@chat.shakespeare.lit/firstwitch", Body: "psst"},
	},
	12: {
		in: `<message xmlns="jabber:client" from="juliet@example.com/balcony" type="chat"><body>This message is encrypted (XEP-0027).</body><x xmlns="jabber:x:encrypted">
qANQR1DBwU4DX7jmYZnncm
</x></message>`,
		out: network.Message{
			From:     "juliet@example.com/balcony",
			Body:     PGPFallback,
			Envelope: "qANQR1DBwU4DX7jmYZnncm",
		},
	},
}

func TestMessageEvent(t *testing.T) {
	for i, tc := range messageTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			var m inMessage
			if err := xml.Unmarshal([]byte(tc.in), &m); err != nil {
				t.Fatalf("error decoding message: %v", err)
			}
			got := messageEvent(m, self)
			if !reflect.DeepEqual(got, tc.out) {
				t.Errorf("wrong event:\nwant=%#v,\n got=%#v", tc.out, got)
			}
		})
	}
}

var presenceTestCases = [...]struct {
	in  string
	out network.Event
}{
	0: {
		in: `<presence xmlns="jabber:client" from="juliet@example.com/balcony"><show>away</show><status>brb</status><priority>5</priority><c xmlns="http://jabber.org/protocol/caps" node="http://code.google.com/p/exodus" ver="QgayPKawpkPSDYmwT/WM94uAlu0="/></presence>`,
		out: network.Presence{
			From:     "juliet@example.com/balcony",
			Presence: roster.Away,
			Status:   "brb",
			Priority: 5,
			Caps:     "http://code.google.com/p/exodus#QgayPKawpkPSDYmwT/WM94uAlu0=",
		},
	},
	1: {
		in:  `<presence xmlns="jabber:client" from="juliet@example.com/balcony" type="unavailable"><status>bye</status></presence>`,
		out: network.Unavailable{From: "juliet@example.com/balcony", Status: "bye"},
	},
	2: {
		in:  `<presence xmlns="jabber:client" from="juliet@example.com/balcony" type="subscribe"/>`,
		out: network.Subscription{From: "juliet@example.com", Type: "subscribe"},
	},
	3: {
		in: `<presence xmlns="jabber:client" from="coven@chat.shakespeare.lit/thirdwitch"><x xmlns="http://jabber.org/protocol/muc#user"><item affiliation="owner" role="moderator" jid="hag66@shakespeare.lit/pda"/><status code="110"/><status code="201"/></x></presence>`,
		out: network.RoomPresence{
			Room:        "coven@chat.shakespeare.lit",
			Nick:        "thirdwitch",
			JID:         "hag66@shakespeare.lit/pda",
			Presence:    roster.Online,
			Role:        muc.RoleModerator,
			Affiliation: muc.AffiliationOwner,
			Self:        true,
			Created:     true,
		},
	},
	4: {
		in: `<presence xmlns="jabber:client" from="harfleur@chat.shakespeare.lit/pistol" type="unavailable"><x xmlns="http://jabber.org/protocol/muc#user"><item affiliation="none" role="none"><actor nick="Fluellen"/><reason>Avaunt</reason></item><status code="307"/></x></presence>`,
		out: network.RoomPresence{
			Room:        "harfleur@chat.shakespeare.lit",
			Nick:        "pistol",
			Presence:    roster.Online,
			Role:        muc.RoleNone,
			Affiliation: muc.AffiliationNone,
			Unavailable: true,
			Kicked:      true,
			Actor:       "Fluellen",
			Reason:      "Avaunt",
		},
	},
	5: {
		in: `<presence xmlns="jabber:client" from="coven@chat.shakespeare.lit/thirdwitch" type="unavailable"><x xmlns="http://jabber.org/protocol/muc#user"><item affiliation="member" role="participant" nick="oldhag"/><status code="303"/></x></presence>`,
		out: network.RoomPresence{
			Room:        "coven@chat.shakespeare.lit",
			Nick:        "thirdwitch",
			Presence:    roster.Online,
			Role:        muc.RoleParticipant,
			Affiliation: muc.AffiliationMember,
			Unavailable: true,
			NewNick:     "oldhag",
		},
	},
	6: {
		in:  `<presence xmlns="jabber:client" from="coven@chat.shakespeare.lit/thirdwitch" type="error"><error type="cancel"><conflict xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></presence>`,
		out: network.JoinError{Room: "coven@chat.shakespeare.lit", Condition: "conflict"},
	},
	7: {
		in: `<presence xmlns="jabber:client" from="heath@chat.shakespeare.lit/firstwitch" type="unavailable"><x xmlns="http://jabber.org/protocol/muc#user"><item affiliation="none" role="none"/><destroy jid="coven@chat.shakespeare.lit"><reason>Macbeth doth come.</reason></destroy></x></presence>`,
		out: network.RoomPresence{
			Room:        "heath@chat.shakespeare.lit",
			Nick:        "firstwitch",
			Presence:    roster.Online,
			Unavailable: true,
			Destroy: &network.Destroy{
				NewJID: "coven@chat.shakespeare.lit",
				Reason: "Macbeth doth come.",
			},
		},
	},
	8: {
		in: `<presence xmlns="jabber:client" from="juliet@example.com" type="probe"/>`,
	},
	9: {
		in: `<presence xmlns="jabber:client" from="juliet@example.com/balcony"><idle xmlns="urn:xmpp:idle:1" since="2002-09-10T23:08:25Z"/></presence>`,
		out: network.Presence{
			From:     "juliet@example.com/balcony",
			Presence: roster.Online,
			Idle:     stamp,
		},
	},
}

func TestPresenceEvent(t *testing.T) {
	for i, tc := range presenceTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			var p inPresence
			if err := xml.Unmarshal([]byte(tc.in), &p); err != nil {
				t.Fatalf("error decoding presence: %v", err)
			}
			got := presenceEvent(p)
			if !reflect.DeepEqual(got, tc.out) {
				t.Errorf("wrong event:\nwant=%#v,\n got=%#v", tc.out, got)
			}
		})
	}
}

func TestRosterItems(t *testing.T) {
	const in = `<query xmlns="jabber:iq:roster"><item jid="juliet@example.com" name="Juliet" subscription="both"><group>Friends</group></item><item jid="tybalt@example.net" subscription="none" ask="subscribe"/></query>`
	var q rosterQuery
	if err := xml.Unmarshal([]byte(in), &q); err != nil {
		t.Fatalf("error decoding roster: %v", err)
	}
	want := []roster.Item{
		{JID: "juliet@example.com", Name: "Juliet", Subscription: "both", Groups: []string{"Friends"}},
		{JID: "tybalt@example.net", Subscription: "none", Ask: true},
	}
	if got := rosterItems(q); !reflect.DeepEqual(got, want) {
		t.Errorf("wrong items:\nwant=%+v,\n got=%+v", want, got)
	}
}

func TestElement(t *testing.T) {
	r := element(nsRoster, "query", nil,
		element("", "item", []xml.Attr{attr("jid", "juliet@example.com")}, text("group", "Friends")),
	)
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	if _, err := xmlstream.Copy(e, r); err != nil {
		t.Fatalf("error encoding: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("error flushing: %v", err)
	}
	const want = `<query xmlns="jabber:iq:roster"><item jid="juliet@example.com"><group>Friends</group></item></query>`
	if got := buf.String(); got != want {
		t.Errorf("wrong XML:\nwant=%s,\n got=%s", want, got)
	}
}
