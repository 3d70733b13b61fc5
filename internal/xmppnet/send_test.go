// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppnet

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"testing"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/muc"

	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/roster"
)

// node is a generic element used to compare XML without regard to attribute
// order, empty attributes, or namespace declarations.
type node struct {
	XMLName xml.Name
	Attr    []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []node     `xml:",any"`
}

func (n *node) normalize() {
	var attrs []xml.Attr
	for _, a := range n.Attr {
		if a.Value == "" || a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
			continue
		}
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].Name.Local < attrs[j].Name.Local
	})
	n.Attr = attrs
	n.Text = strings.TrimSpace(n.Text)
	for i := range n.Nodes {
		n.Nodes[i].normalize()
	}
}

func parseNode(t *testing.T, s string) node {
	t.Helper()
	var n node
	if err := xml.Unmarshal([]byte(s), &n); err != nil {
		t.Fatalf("error parsing %q: %v", s, err)
	}
	n.normalize()
	return n
}

// marshal encodes v, which may be a token stream or a value.
func marshal(t *testing.T, v interface{}) string {
	t.Helper()
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	var err error
	if r, ok := v.(xml.TokenReader); ok {
		_, err = xmlstream.Copy(e, r)
	} else {
		err = e.Encode(v)
	}
	if err != nil {
		t.Fatalf("error encoding: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("error flushing: %v", err)
	}
	return buf.String()
}

func assertXML(t *testing.T, want, got string) {
	t.Helper()
	if w, g := parseNode(t, want), parseNode(t, got); !reflect.DeepEqual(w, g) {
		t.Errorf("wrong XML:\nwant=%s,\n got=%s", want, got)
	}
}

func mustValue(v interface{}, err error) interface{} {
	if err != nil {
		panic(err)
	}
	return v
}

var encodeTestCases = [...]struct {
	v   interface{}
	out string
}{
	0: {
		v:   mustValue(joinPresence("coven@chat.shakespeare.lit", "thirdwitch", "cauldronburn", roster.Online, "")),
		out: `<presence to="coven@chat.shakespeare.lit/thirdwitch"><x xmlns="http://jabber.org/protocol/muc"><password>cauldronburn</password></x></presence>`,
	},
	1: {
		v:   mustValue(joinPresence("coven@chat.shakespeare.lit", "thirdwitch", "", roster.Away, "brewing")),
		out: `<presence to="coven@chat.shakespeare.lit/thirdwitch"><show>away</show><status>brewing</status><x xmlns="http://jabber.org/protocol/muc"></x></presence>`,
	},
	2: {
		v:   mustValue(subjectMessage("coven@chat.shakespeare.lit", "Fire burn")),
		out: `<message to="coven@chat.shakespeare.lit" type="groupchat"><subject>Fire burn</subject></message>`,
	},
	3: {
		v:   mustValue(subjectMessage("coven@chat.shakespeare.lit", "")),
		out: `<message to="coven@chat.shakespeare.lit" type="groupchat"><subject></subject></message>`,
	},
	4: {
		v:   adminPayload(kickItem("pistol"), "Avaunt"),
		out: `<query xmlns="http://jabber.org/protocol/muc#admin"><item nick="pistol" role="none"><reason>Avaunt</reason></item></query>`,
	},
	5: {
		v:   adminPayload(roleItem("hecate", muc.RoleModerator), ""),
		out: `<query xmlns="http://jabber.org/protocol/muc#admin"><item nick="hecate" role="moderator"/></query>`,
	},
	6: {
		v:   adminPayload(affiliationItem("earlofcambridge@shakespeare.lit", muc.AffiliationOutcast), "Treason"),
		out: `<query xmlns="http://jabber.org/protocol/muc#admin"><item affiliation="outcast" jid="earlofcambridge@shakespeare.lit"><reason>Treason</reason></item></query>`,
	},
	7: {
		v:   adminPayload(affiliationItem("hag66@shakespeare.lit", muc.AffiliationAdmin), ""),
		out: `<query xmlns="http://jabber.org/protocol/muc#admin"><item affiliation="admin" jid="hag66@shakespeare.lit"/></query>`,
	},
	8: {
		v:   rosterPayload(rosterItem{JID: "nurse@example.com", Name: "Nurse", Groups: []string{"Servants", "Capulets"}}),
		out: `<query xmlns="jabber:iq:roster"><item jid="nurse@example.com" name="Nurse"><group>Servants</group><group>Capulets</group></item></query>`,
	},
	9: {
		v:   rosterPayload(rosterItem{JID: "nurse@example.com", Subscription: roster.SubRemove}),
		out: `<query xmlns="jabber:iq:roster"><item jid="nurse@example.com" subscription="remove"/></query>`,
	},
}

func TestEncode(t *testing.T) {
	for i, tc := range encodeTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			assertXML(t, tc.out, marshal(t, tc.v))
		})
	}
}

func TestBadRoomJID(t *testing.T) {
	if _, err := joinPresence("coven@chat.shakespeare.lit", "", "", roster.Online, ""); err == nil {
		t.Errorf("expected an error joining without a nickname")
	}
	if _, err := subjectMessage("@", "Fire burn"); err == nil {
		t.Errorf("expected an error for an invalid room")
	}
}

// streamRecorder reads a stanza and records everything written in reply.
type streamRecorder struct {
	xml.TokenReader
	*xml.Encoder
}

var iqTestCases = [...]struct {
	in     string
	out    string
	events []network.Event
}{
	0: {
		in:  `<iq xmlns="jabber:client" type="set" id="push1"><query xmlns="jabber:iq:roster"><item jid="nurse@example.com" subscription="both"><group>Servants</group></item></query></iq>`,
		out: `<iq type="result" id="push1"/>`,
		events: []network.Event{network.RosterPush{Item: roster.Item{
			JID:          "nurse@example.com",
			Subscription: roster.SubBoth,
			Groups:       []string{"Servants"},
		}}},
	},
	1: {
		in:     `<iq xmlns="jabber:client" type="set" id="push2" from="romeo@example.net"><query xmlns="jabber:iq:roster"><item jid="nurse@example.com" subscription="remove"/></query></iq>`,
		out:    `<iq type="result" id="push2" to="romeo@example.net"/>`,
		events: []network.Event{network.RosterPush{Item: roster.Item{JID: "nurse@example.com", Subscription: roster.SubRemove}}},
	},
	2: {
		in:  `<iq xmlns="jabber:client" type="set" id="push3" from="tybalt@example.net/sword"><query xmlns="jabber:iq:roster"><item jid="tybalt@example.net" subscription="both"/></query></iq>`,
		out: `<iq type="error" id="push3" to="tybalt@example.net/sword"><error type="cancel"><service-unavailable xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></iq>`,
	},
	3: {
		in:  `<iq xmlns="jabber:client" type="get" id="ping1" from="example.net"><ping xmlns="urn:xmpp:ping"/></iq>`,
		out: `<iq type="result" id="ping1" to="example.net"/>`,
	},
	4: {
		in:  `<iq xmlns="jabber:client" type="get" id="v1" from="juliet@example.com/balcony"><query xmlns="jabber:iq:version"/></iq>`,
		out: `<iq type="result" id="v1" to="juliet@example.com/balcony"><query xmlns="jabber:iq:version"><name>communique</name><version>test</version><os>plan9</os></query></iq>`,
	},
	5: {
		in: `<iq xmlns="jabber:client" type="result" id="r1" from="example.net"/>`,
	},
}

func TestHandleIQ(t *testing.T) {
	for i, tc := range iqTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			c := New(nil)
			c.self = self
			c.software.Version = "test"
			c.software.OS = "plan9"

			d := xml.NewDecoder(strings.NewReader(tc.in))
			tok, err := d.Token()
			if err != nil {
				t.Fatalf("error reading start: %v", err)
			}
			start := tok.(xml.StartElement)
			var buf bytes.Buffer
			e := xml.NewEncoder(&buf)
			if err := c.handle(streamRecorder{TokenReader: d, Encoder: e}, &start); err != nil {
				t.Fatalf("error handling iq: %v", err)
			}
			if err := e.Flush(); err != nil {
				t.Fatalf("error flushing: %v", err)
			}
			switch {
			case tc.out == "" && buf.Len() != 0:
				t.Errorf("unexpected reply: %s", buf.String())
			case tc.out != "":
				assertXML(t, tc.out, buf.String())
			}

			var events []network.Event
			for len(c.events) > 0 {
				events = append(events, <-c.events)
			}
			if !reflect.DeepEqual(events, tc.events) {
				t.Errorf("wrong events:\nwant=%#v,\n got=%#v", tc.events, events)
			}
		})
	}
}

func TestNotConnected(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	for i, f := range []func() error{
		func() error { return c.JoinRoom(ctx, "coven@chat.shakespeare.lit", "thirdwitch", "", roster.Online, "") },
		func() error { return c.SetSubject(ctx, "coven@chat.shakespeare.lit", "Fire burn") },
		func() error { return c.Kick(ctx, "coven@chat.shakespeare.lit", "pistol", "") },
		func() error { return c.SetAffiliation(ctx, "coven@chat.shakespeare.lit", "hag66@shakespeare.lit", muc.AffiliationAdmin, "") },
		func() error { return c.UpdateContact(ctx, "nurse@example.com", "Nurse", nil) },
		func() error { return c.Carbons(ctx, true) },
		func() error { return c.Ping(ctx, "") },
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if err := f(); !errors.Is(err, ErrNotConnected) {
				t.Errorf("wrong error: want=%v, got=%v", ErrNotConnected, err)
			}
		})
	}
}
