// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package store keeps chat logs, bookmarks, and PGP key assignments in a
// pebble database.
//
// All data is scoped to an account.
// Values are JSON encoded and log entries are keyed so that iterating over a
// conversation returns them in the order they were written.
package store // import "mellium.im/communique/internal/store"

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"mellium.im/communique/internal/encryption"
)

// Errors returned by bookmark operations.
var (
	ErrBookmarkExists = errors.New("store: bookmark already exists")
	ErrNoBookmark     = errors.New("store: no such bookmark")
)

// Option configures a DB.
type Option func(*DB)

// Clock sets the function used to timestamp log entries.
func Clock(now func() time.Time) Option {
	return func(d *DB) {
		d.now = now
	}
}

// Logger sets the logger used by the DB.
func Logger(l *zap.Logger) Option {
	return func(d *DB) {
		d.logger = l
	}
}

// DB is an open database.
type DB struct {
	db     *pebble.DB
	seq    uint64
	now    func() time.Time
	logger *zap.Logger
}

// Open opens or creates the database in the directory at path.
func Open(path string, opts ...Option) (*DB, error) {
	d := &DB{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.Named("store")

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		d.logger.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	d.db = db
	d.logger.Debug("pebble_opened", zap.String("path", path))
	return d, nil
}

// Close flushes and closes the database.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// Account returns a view of the data belonging to one account.
func (d *DB) Account(name string) *Account {
	return &Account{db: d, prefix: "acct:" + strings.ToLower(name) + ":"}
}

func (d *DB) seqKey(prefix string) []byte {
	s := atomic.AddUint64(&d.seq, 1)
	return []byte(fmt.Sprintf("%s%020d-%06d", prefix, d.now().UTC().UnixNano(), s%1000000))
}

func (d *DB) put(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encoding value: %w", err)
	}
	if err = d.db.Set(key, data, pebble.Sync); err != nil {
		d.logger.Error("set_failed", zap.ByteString("key", key), zap.Error(err))
		return err
	}
	return nil
}

// get reports false if the key does not exist.
func (d *DB) get(key []byte, v interface{}) (bool, error) {
	data, closer, err := d.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err = json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("store: decoding %s: %w", key, err)
	}
	return true, nil
}

func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

// tail calls f with the values of the last limit keys under prefix, oldest
// first.
// A limit less than one returns every value.
func (d *DB) tail(prefix []byte, limit int, f func([]byte) error) error {
	iter, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	var vals [][]byte
	for iter.Last(); iter.Valid(); iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		vals = append(vals, append([]byte(nil), iter.Value()...))
		if limit > 0 && len(vals) == limit {
			break
		}
	}
	if err = iter.Error(); err != nil {
		return err
	}
	for i := len(vals) - 1; i >= 0; i-- {
		if err = f(vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// Entry is a line in a one to one chat log.
type Entry struct {
	Contact  string    `json:"contact"`
	Resource string    `json:"resource,omitempty"`
	Outgoing bool      `json:"outgoing,omitempty"`
	Body     string    `json:"body"`
	Mode     string    `json:"mode,omitempty"`
	Stamp    time.Time `json:"stamp"`
}

// RoomEntry is a line in a groupchat log.
type RoomEntry struct {
	Room  string    `json:"room"`
	Nick  string    `json:"nick"`
	Body  string    `json:"body"`
	Stamp time.Time `json:"stamp"`
}

// Bookmark is a saved chat room.
type Bookmark struct {
	JID      string `json:"jid"`
	Nick     string `json:"nick,omitempty"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
	Autojoin bool   `json:"autojoin,omitempty"`
}

// Account is the data of a single account.
type Account struct {
	db     *DB
	prefix string
}

func (a *Account) key(parts ...string) []byte {
	return []byte(a.prefix + strings.Join(parts, ":") + ":")
}

// LogChat appends a line to the log of a one to one chat.
// It satisfies encryption.Log.
func (a *Account) LogChat(r encryption.Record) error {
	contact := strings.ToLower(r.Contact)
	e := Entry{
		Contact:  contact,
		Resource: r.Resource,
		Outgoing: r.Outgoing,
		Body:     r.Body,
		Stamp:    a.db.now(),
	}
	if r.Mode != encryption.None {
		e.Mode = r.Mode.String()
	}
	return a.db.put(a.db.seqKey(string(a.key("chat", contact, "msg"))), e)
}

// ChatHistory returns the last limit lines logged with a contact, oldest
// first.
func (a *Account) ChatHistory(barejid string, limit int) ([]Entry, error) {
	var out []Entry
	err := a.db.tail(a.key("chat", strings.ToLower(barejid), "msg"), limit, func(v []byte) error {
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// LogRoom appends a line to the log of a chat room.
func (a *Account) LogRoom(room, nick, body string, stamp time.Time) error {
	room = strings.ToLower(room)
	if stamp.IsZero() {
		stamp = a.db.now()
	}
	e := RoomEntry{Room: room, Nick: nick, Body: body, Stamp: stamp}
	return a.db.put(a.db.seqKey(string(a.key("room", room, "msg"))), e)
}

// RoomHistory returns the last limit lines logged in a room, oldest first.
func (a *Account) RoomHistory(room string, limit int) ([]RoomEntry, error) {
	var out []RoomEntry
	err := a.db.tail(a.key("room", strings.ToLower(room), "msg"), limit, func(v []byte) error {
		var e RoomEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func (a *Account) bookmarkKey(jid string) []byte {
	return []byte(a.prefix + "bookmark:" + strings.ToLower(jid))
}

// Bookmark returns the bookmark for a room.
func (a *Account) Bookmark(jid string) (Bookmark, bool, error) {
	var b Bookmark
	ok, err := a.db.get(a.bookmarkKey(jid), &b)
	return b, ok, err
}

// AddBookmark saves a new bookmark.
func (a *Account) AddBookmark(b Bookmark) error {
	b.JID = strings.ToLower(b.JID)
	_, ok, err := a.Bookmark(b.JID)
	if err != nil {
		return err
	}
	if ok {
		return ErrBookmarkExists
	}
	return a.db.put(a.bookmarkKey(b.JID), b)
}

// UpdateBookmark replaces an existing bookmark.
func (a *Account) UpdateBookmark(b Bookmark) error {
	b.JID = strings.ToLower(b.JID)
	_, ok, err := a.Bookmark(b.JID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoBookmark
	}
	return a.db.put(a.bookmarkKey(b.JID), b)
}

// RemoveBookmark deletes a bookmark.
func (a *Account) RemoveBookmark(jid string) error {
	_, ok, err := a.Bookmark(jid)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoBookmark
	}
	return a.db.db.Delete(a.bookmarkKey(jid), pebble.Sync)
}

// Bookmarks returns every bookmark sorted by JID.
func (a *Account) Bookmarks() ([]Bookmark, error) {
	var out []Bookmark
	err := a.db.tail([]byte(a.prefix+"bookmark:"), 0, func(v []byte) error {
		var b Bookmark
		if err := json.Unmarshal(v, &b); err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].JID < out[j].JID
	})
	return out, err
}

func (a *Account) pgpKey(barejid string) []byte {
	return []byte(a.prefix + "pgpkey:" + strings.ToLower(barejid))
}

// SetContactKey assigns a PGP key to a contact.
func (a *Account) SetContactKey(barejid, keyID string) error {
	return a.db.put(a.pgpKey(barejid), keyID)
}

// ContactKey returns the PGP key assigned to a contact.
func (a *Account) ContactKey(barejid string) (string, bool) {
	var keyID string
	ok, err := a.db.get(a.pgpKey(barejid), &keyID)
	if err != nil {
		a.db.logger.Warn("contact_key_failed", zap.String("contact", barejid), zap.Error(err))
		return "", false
	}
	return keyID, ok
}

// ContactKeys returns every PGP key assignment keyed by bare JID.
func (a *Account) ContactKeys() (map[string]string, error) {
	prefix := []byte(a.prefix + "pgpkey:")
	iter, err := a.db.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	out := make(map[string]string)
	for iter.First(); iter.Valid(); iter.Next() {
		var keyID string
		if err := json.Unmarshal(iter.Value(), &keyID); err != nil {
			return nil, err
		}
		out[string(bytes.TrimPrefix(iter.Key(), prefix))] = keyID
	}
	return out, iter.Error()
}
