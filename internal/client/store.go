// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"time"

	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/encryption/pgp"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/store"
)

// Store is the persistent data of one account.
// It is implemented by *store.Account.
type Store interface {
	encryption.Log

	ChatHistory(barejid string, limit int) ([]store.Entry, error)
	LogRoom(room, nick, body string, stamp time.Time) error

	Bookmark(jid string) (store.Bookmark, bool, error)
	AddBookmark(b store.Bookmark) error
	UpdateBookmark(b store.Bookmark) error
	RemoveBookmark(jid string) error
	Bookmarks() ([]store.Bookmark, error)

	SetContactKey(barejid, keyID string) error
	ContactKey(barejid string) (string, bool)
	ContactKeys() (map[string]string, error)
}

// Keyring is a PGP implementation that can list its keys.
// It is implemented by *pgp.Keyring.
type Keyring interface {
	encryption.PGPSession
	Keys() []pgp.Key
}

// The arbiter is created once but the account, and so the store and the
// account key, change on each /connect.
// These adapters read the current values.

type chatLog struct{ c *Client }

func (l chatLog) LogChat(r encryption.Record) error {
	if l.c.store == nil {
		return nil
	}
	return l.c.store.LogChat(r)
}

type keys struct{ c *Client }

func (k keys) AccountKey() string {
	if k.c.acct == nil {
		return ""
	}
	return k.c.acct.PGPKeyID
}

func (k keys) ContactKey(barejid string) (string, bool) {
	if k.c.store == nil {
		return "", false
	}
	return k.c.store.ContactKey(barejid)
}

type sender struct{ c *Client }

func (s sender) outgoing(to string) network.Outgoing {
	o := network.Outgoing{Receipt: s.c.cfg.Prefs.Receipts.Request}
	if s.c.cfg.Prefs.States {
		bare, _ := split(to)
		if ch, ok := s.c.reg.Chat(bare); ok && ch.SupportsStates {
			o.Active = true
		}
	}
	return o
}

func (s sender) SendChat(ctx context.Context, to, body string) (string, error) {
	return s.c.net.SendChat(ctx, to, body, s.outgoing(to))
}

func (s sender) SendPGP(ctx context.Context, to, envelope string) (string, error) {
	return s.c.net.SendPGP(ctx, to, envelope, s.outgoing(to))
}

// policies lets the account's OTR policy override the global one.
type policies struct{ c *Client }

func (p policies) PGPLog() encryption.LogPolicy { return p.c.cfg.PGPLog() }
func (p policies) OTRLog() encryption.LogPolicy { return p.c.cfg.OTRLog() }

func (p policies) OTRPolicy() encryption.OTRPolicy {
	if p.c.acct != nil && p.c.acct.OTRPolicy != "" {
		if pol, err := encryption.ParseOTRPolicy(p.c.acct.OTRPolicy); err == nil {
			return pol
		}
	}
	return p.c.cfg.OTRPolicy()
}
