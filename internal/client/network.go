// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"

	"mellium.im/xmpp/muc"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/dataform"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/roster"
)

// Network is the XMPP connection.
// Sends return as soon as the stanza is written; requests that expect an
// answer deliver it later on the Events channel.
type Network interface {
	Events() <-chan network.Event
	Status() network.Status
	Connect(ctx context.Context, l network.Login) error
	Disconnect() error

	// Trace turns delivery of raw XML events on or off.
	Trace(on bool)

	SendChat(ctx context.Context, to, body string, o network.Outgoing) (id string, err error)
	SendPGP(ctx context.Context, to, envelope string, o network.Outgoing) (id string, err error)
	SendGroupChat(ctx context.Context, room, body string) (id string, err error)
	SendPrivate(ctx context.Context, to, body string) (id string, err error)
	SendChatState(ctx context.Context, to string, st chatstate.State) error
	SendReceipt(ctx context.Context, to, id string) error
	SendPresence(ctx context.Context, to string, p roster.Presence, status string, priority int) error

	Subscription(ctx context.Context, to, typ string) error
	AddContact(ctx context.Context, addr, name string) error
	UpdateContact(ctx context.Context, addr, name string, groups []string) error
	RemoveContact(ctx context.Context, addr string) error

	Ping(ctx context.Context, to string) error
	SoftwareVersion(ctx context.Context, to string) error
	Carbons(ctx context.Context, enable bool) error

	JoinRoom(ctx context.Context, room, nick, password string, p roster.Presence, status string) error
	ChangeNick(ctx context.Context, room, nick string, p roster.Presence, status string) error
	LeaveRoom(ctx context.Context, room, nick, status string) error
	SetSubject(ctx context.Context, room, subject string) error
	Invite(ctx context.Context, room, to, reason string) error
	DeclineInvite(ctx context.Context, room, to, reason string) error
	RequestRoomInfo(ctx context.Context, room string) error
	RequestRoomConfig(ctx context.Context, room string) error
	SubmitRoomConfig(ctx context.Context, room string, form *dataform.Form) error
	CancelRoomConfig(ctx context.Context, room string) error
	DestroyRoom(ctx context.Context, room, reason string) error
	Kick(ctx context.Context, room, nick, reason string) error
	SetRole(ctx context.Context, room, nick string, role muc.Role, reason string) error
	Ban(ctx context.Context, room, addr, reason string) error
	SetAffiliation(ctx context.Context, room, addr string, aff muc.Affiliation, reason string) error
	ListAffiliation(ctx context.Context, room string, aff muc.Affiliation) error
	ListRole(ctx context.Context, room string, role muc.Role) error
}
