// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppnet

import (
	"encoding/xml"
	"time"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/stanza"
	"mellium.im/xmpp/version"

	"mellium.im/communique/internal/dataform"
)

// Namespaces that are not provided by a package.
const (
	nsStanza     = "urn:ietf:params:xml:ns:xmpp-stanzas"
	nsRoster     = "jabber:iq:roster"
	nsMUC        = "http://jabber.org/protocol/muc"
	nsMUCUser    = "http://jabber.org/protocol/muc#user"
	nsMUCAdmin   = "http://jabber.org/protocol/muc#admin"
	nsMUCOwner   = "http://jabber.org/protocol/muc#owner"
	nsDiscoInfo  = "http://jabber.org/protocol/disco#info"
	nsConference = "jabber:x:conference"
	nsReceipts   = "urn:xmpp:receipts"
	nsDelay      = "urn:xmpp:delay"
	nsIdle       = "urn:xmpp:idle:1"
	nsCaps       = "http://jabber.org/protocol/caps"
	nsCarbons    = "urn:xmpp:carbons:2"
	nsForward    = "urn:xmpp:forward:0"
	nsPing       = "urn:xmpp:ping"
)

// elem is an empty element with a name chosen at runtime.
type elem struct {
	XMLName xml.Name
}

type stanzaError struct {
	Type       string `xml:"type,attr"`
	Conditions []elem `xml:",any"`
	Text       string `xml:"urn:ietf:params:xml:ns:xmpp-stanzas text"`
}

func (e *stanzaError) condition() string {
	if e == nil {
		return ""
	}
	for _, c := range e.Conditions {
		if c.XMLName.Space == nsStanza {
			return c.XMLName.Local
		}
	}
	return "undefined-condition"
}

type delay struct {
	Stamp string `xml:"stamp,attr"`
}

func (d *delay) time() time.Time {
	if d == nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, d.Stamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

type mucItem struct {
	Affiliation muc.Affiliation `xml:"affiliation,attr"`
	Role        muc.Role        `xml:"role,attr"`
	JID         string          `xml:"jid,attr"`
	Nick        string          `xml:"nick,attr"`
	Actor       *struct {
		Nick string `xml:"nick,attr"`
		JID  string `xml:"jid,attr"`
	} `xml:"actor"`
	Reason string `xml:"reason"`
}

type mucStatus struct {
	Code int `xml:"code,attr"`
}

type mucUser struct {
	Items    []mucItem   `xml:"item"`
	Statuses []mucStatus `xml:"status"`
	Invite   *struct {
		From   string `xml:"from,attr"`
		Reason string `xml:"reason"`
	} `xml:"invite"`
	Destroy *struct {
		JID      string `xml:"jid,attr"`
		Password string `xml:"password"`
		Reason   string `xml:"reason"`
	} `xml:"destroy"`
	Password string `xml:"password"`
}

func (u *mucUser) has(code int) bool {
	for _, s := range u.Statuses {
		if s.Code == code {
			return true
		}
	}
	return false
}

type forwarded struct {
	Forwarded struct {
		Delay   *delay    `xml:"urn:xmpp:delay delay"`
		Message inMessage `xml:"jabber:client message"`
	} `xml:"urn:xmpp:forward:0 forwarded"`
}

type inMessage struct {
	XMLName xml.Name
	ID      string `xml:"id,attr"`
	From    string `xml:"from,attr"`
	To      string `xml:"to,attr"`
	Type    string `xml:"type,attr"`

	Body    string       `xml:"body"`
	Subject *string      `xml:"subject"`
	Error   *stanzaError `xml:"error"`
	Delay   *delay       `xml:"urn:xmpp:delay delay"`

	Encrypted string `xml:"jabber:x:encrypted x"`

	Active    *struct{} `xml:"http://jabber.org/protocol/chatstates active"`
	Composing *struct{} `xml:"http://jabber.org/protocol/chatstates composing"`
	Paused    *struct{} `xml:"http://jabber.org/protocol/chatstates paused"`
	Inactive  *struct{} `xml:"http://jabber.org/protocol/chatstates inactive"`
	Gone      *struct{} `xml:"http://jabber.org/protocol/chatstates gone"`

	Request  *struct{} `xml:"urn:xmpp:receipts request"`
	Received *struct {
		ID string `xml:"id,attr"`
	} `xml:"urn:xmpp:receipts received"`

	MUCUser    *mucUser `xml:"http://jabber.org/protocol/muc#user x"`
	Conference *struct {
		JID      string `xml:"jid,attr"`
		Password string `xml:"password,attr"`
		Reason   string `xml:"reason,attr"`
	} `xml:"jabber:x:conference x"`

	CarbonReceived *forwarded `xml:"urn:xmpp:carbons:2 received"`
	CarbonSent     *forwarded `xml:"urn:xmpp:carbons:2 sent"`
}

type inPresence struct {
	XMLName  xml.Name
	ID       string       `xml:"id,attr"`
	From     string       `xml:"from,attr"`
	Type     string       `xml:"type,attr"`
	Show     string       `xml:"show"`
	Status   string       `xml:"status"`
	Priority int          `xml:"priority"`
	Error    *stanzaError `xml:"error"`
	MUCUser  *mucUser     `xml:"http://jabber.org/protocol/muc#user x"`
	Caps     *struct {
		Node string `xml:"node,attr"`
		Ver  string `xml:"ver,attr"`
	} `xml:"http://jabber.org/protocol/caps c"`
	Idle *struct {
		Since string `xml:"since,attr"`
	} `xml:"urn:xmpp:idle:1 idle"`
	Delay  *delay `xml:"urn:xmpp:delay delay"`
	Signed string `xml:"jabber:x:signed x"`
}

type rosterItem struct {
	JID          string   `xml:"jid,attr"`
	Name         string   `xml:"name,attr,omitempty"`
	Subscription string   `xml:"subscription,attr,omitempty"`
	Ask          string   `xml:"ask,attr,omitempty"`
	Groups       []string `xml:"group"`
}

type rosterQuery struct {
	XMLName xml.Name     `xml:"jabber:iq:roster query"`
	Items   []rosterItem `xml:"item"`
}

type inIQ struct {
	XMLName xml.Name
	ID      string `xml:"id,attr"`
	From    string `xml:"from,attr"`
	Type    string `xml:"type,attr"`
	Payload elem   `xml:",any"`
	Roster  *rosterQuery
}

type discoInfo struct {
	XMLName    xml.Name `xml:"http://jabber.org/protocol/disco#info query"`
	Identities []struct {
		Category string `xml:"category,attr"`
		Name     string `xml:"name,attr"`
	} `xml:"identity"`
	Features []struct {
		Var string `xml:"var,attr"`
	} `xml:"feature"`
}

type ownerQuery struct {
	XMLName xml.Name       `xml:"http://jabber.org/protocol/muc#owner query"`
	Form    *dataform.Form `xml:"jabber:x:data x"`
}

type adminQuery struct {
	XMLName xml.Name  `xml:"http://jabber.org/protocol/muc#admin query"`
	Items   []mucItem `xml:"item"`
}

// Outgoing stanzas.

type outMessage struct {
	stanza.Message
	Body      string    `xml:"body,omitempty"`
	Subject   *string   `xml:"subject"`
	Encrypted *cdata    `xml:"jabber:x:encrypted x"`
	State     *elem     `xml:",omitempty"`
	Request   *elem     `xml:",omitempty"`
	Received  *received `xml:"urn:xmpp:receipts received"`
	MUCUser   *outMUCUser
}

type cdata struct {
	Data string `xml:",chardata"`
}

type received struct {
	ID string `xml:"id,attr"`
}

type outMUCUser struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/muc#user x"`
	Invite  *target  `xml:"invite"`
	Decline *target  `xml:"decline"`
}

type target struct {
	To     string `xml:"to,attr"`
	Reason string `xml:"reason,omitempty"`
}

type outPresence struct {
	stanza.Presence
	Show     string   `xml:"show,omitempty"`
	Status   string   `xml:"status,omitempty"`
	Priority int      `xml:"priority,omitempty"`
	MUC      *mucJoin `xml:"http://jabber.org/protocol/muc x"`
}

type mucJoin struct {
	Password string `xml:"password,omitempty"`
}

type iqError struct {
	stanza.IQ
	Error struct {
		Type      string `xml:"type,attr"`
		Condition elem
	} `xml:"error"`
}

type versionReply struct {
	stanza.IQ
	Query version.Query
}

// element returns a reader for an element with attributes and children.
func element(space, local string, attrs []xml.Attr, inner ...xml.TokenReader) xml.TokenReader {
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{Name: xml.Name{Space: space, Local: local}, Attr: attrs},
	)
}

func text(local, s string) xml.TokenReader {
	return xmlstream.Wrap(
		xmlstream.Token(xml.CharData(s)),
		xml.StartElement{Name: xml.Name{Local: local}},
	)
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}
