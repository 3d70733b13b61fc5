// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package session manages the numbered windows of the client and the
// conversation shown in each.
//
// Window 1 is always the console.
// Other windows get the lowest free number from 2 up; window 10 is shown as
// "0" so that the first ten windows map to the number keys.
package session // import "mellium.im/communique/internal/session"

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/dataform"
	"mellium.im/communique/internal/room"
)

// ConsoleNum is the number of the console window.
const ConsoleNum = 1

// Errors returned by the registry.
var (
	ErrConsole     = errors.New("session: the console cannot be closed")
	ErrUnsavedForm = errors.New("session: form has unsaved changes")
	ErrSameSlot    = errors.New("session: same source and target window")
)

// NoSuchWindowError is returned when a window number is not in use.
type NoSuchWindowError struct {
	Num int
}

func (e NoSuchWindowError) Error() string {
	return "session: window " + DisplayNum(e.Num) + " does not exist"
}

// InvalidSlotError is returned when a window number cannot be used for an
// operation.
type InvalidSlotError struct {
	Num int
}

func (e InvalidSlotError) Error() string {
	return "session: invalid window " + DisplayNum(e.Num)
}

// DisplayNum returns the label of window number n.
func DisplayNum(n int) string {
	if n == 10 {
		return "0"
	}
	return strconv.Itoa(n)
}

// ParseNum converts a window label back to a window number.
// "0" is window 10.
func ParseNum(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 10, nil
	}
	return n, nil
}

// Teardown is called when a window is closed while connected.
type Teardown interface {
	Connected() bool

	// LeaveRoom sends the presence leaving the room.
	LeaveRoom(r *Room)

	// EndChat ends any encryption session and sends the "gone" chat state.
	EndChat(c *Chat)

	// ResetChat ends any encryption session of a chat that stays open.
	ResetChat(c *Chat)
}

// Option configures a Registry.
type Option func(*Registry)

// Clock sets the function used to read the current time.
func Clock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Logger sets the logger of the registry.
func Logger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// Registry is the set of open windows.
type Registry struct {
	wins     map[int]Conversation
	current  int
	teardown Teardown
	now      func() time.Time
	logger   *zap.Logger
}

// New returns a registry containing only the console, which has focus.
func New(t Teardown, opts ...Option) *Registry {
	r := &Registry{
		wins:     make(map[int]Conversation),
		current:  ConsoleNum,
		teardown: t,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.wins[ConsoleNum] = &Console{window: window{
		kind:    KindConsole,
		key:     KindConsole.String(),
		num:     ConsoleNum,
		created: r.now(),
	}}
	return r
}

// Console returns the console.
func (r *Registry) Console() *Console {
	return r.wins[ConsoleNum].(*Console)
}

// Current returns the focused window.
func (r *Registry) Current() Conversation {
	return r.wins[r.current]
}

// ByNum returns the window with number n.
func (r *Registry) ByNum(n int) (Conversation, error) {
	c, ok := r.wins[n]
	if !ok {
		return nil, NoSuchWindowError{Num: n}
	}
	return c, nil
}

// Nums returns the numbers in use in ascending order.
func (r *Registry) Nums() []int {
	nums := make([]int, 0, len(r.wins))
	for n := range r.wins {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// All returns every window in window number order.
func (r *Registry) All() []Conversation {
	nums := r.Nums()
	out := make([]Conversation, 0, len(nums))
	for _, n := range nums {
		out = append(out, r.wins[n])
	}
	return out
}

// Len returns the number of windows, including the console.
func (r *Registry) Len() int {
	return len(r.wins)
}

// Find returns the window of the given kind and key.
func (r *Registry) Find(kind Kind, key string) (Conversation, bool) {
	for _, c := range r.wins {
		if c.Kind() == kind && c.Key() == key {
			return c, true
		}
	}
	return nil, false
}

// Chat returns the chat with a contact.
func (r *Registry) Chat(barejid string) (*Chat, bool) {
	c, ok := r.Find(KindChat, barejid)
	if !ok {
		return nil, false
	}
	return c.(*Chat), true
}

// Room returns the window of a room.
func (r *Registry) Room(roomjid string) (*Room, bool) {
	c, ok := r.Find(KindRoom, roomjid)
	if !ok {
		return nil, false
	}
	return c.(*Room), true
}

// Private returns a private chat with a room occupant.
func (r *Registry) Private(fulljid string) (*Private, bool) {
	c, ok := r.Find(KindPrivate, fulljid)
	if !ok {
		return nil, false
	}
	return c.(*Private), true
}

// Config returns the configuration form of a room.
func (r *Registry) Config(roomjid string) (*Config, bool) {
	c, ok := r.Find(KindConfig, roomjid)
	if !ok {
		return nil, false
	}
	return c.(*Config), true
}

// XMLConsole returns the XML console if it is open.
func (r *Registry) XMLConsole() (*XMLConsole, bool) {
	c, ok := r.Find(KindXMLConsole, KindXMLConsole.String())
	if !ok {
		return nil, false
	}
	return c.(*XMLConsole), true
}

// Chats returns every chat window in window number order.
func (r *Registry) Chats() []*Chat {
	var out []*Chat
	for _, c := range r.All() {
		if ch, ok := c.(*Chat); ok {
			out = append(out, ch)
		}
	}
	return out
}

// Privates returns the private chats with occupants of roomjid.
func (r *Registry) Privates(roomjid string) []*Private {
	var out []*Private
	for _, c := range r.All() {
		if p, ok := c.(*Private); ok && p.Room() == roomjid {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) freeNum() int {
	n := ConsoleNum + 1
	for {
		if _, ok := r.wins[n]; !ok {
			return n
		}
		n++
	}
}

// Open returns the window of the given kind and key, creating it in the
// lowest free slot if it does not exist.
// The console cannot be opened.
func (r *Registry) Open(kind Kind, key string) (c Conversation, created bool) {
	if kind == KindConsole {
		return r.Console(), false
	}
	if c, ok := r.Find(kind, key); ok {
		return c, false
	}
	w := window{
		kind:    kind,
		key:     key,
		num:     r.freeNum(),
		created: r.now(),
	}
	switch kind {
	case KindChat:
		c = &Chat{window: w, State: chatstate.New(w.created), now: r.now}
	case KindRoom:
		c = &Room{window: w, ShowOccupants: true}
	case KindPrivate:
		c = &Private{window: w}
	case KindConfig:
		c = &Config{window: w}
	default:
		c = &XMLConsole{window: w}
	}
	r.wins[w.num] = c
	r.logger.Debug("window_opened",
		zap.Stringer("kind", kind),
		zap.String("key", key),
		zap.Int("num", w.num))
	return c, true
}

// OpenChat returns the chat with a contact, creating it if necessary.
func (r *Registry) OpenChat(barejid string) (*Chat, bool) {
	c, created := r.Open(KindChat, barejid)
	return c.(*Chat), created
}

// OpenRoom returns the window of a room, creating it if necessary.
func (r *Registry) OpenRoom(muc *room.Room) (*Room, bool) {
	c, created := r.Open(KindRoom, muc.JID)
	rw := c.(*Room)
	rw.MUC = muc
	return rw, created
}

// OpenPrivate returns a private chat with a room occupant, creating it if
// necessary.
func (r *Registry) OpenPrivate(fulljid string) (*Private, bool) {
	c, created := r.Open(KindPrivate, fulljid)
	return c.(*Private), created
}

// OpenConfig returns the configuration window of a room, creating it if
// necessary.
// The form of an existing window is only replaced if it has no unsaved
// changes.
func (r *Registry) OpenConfig(roomjid string, form *dataform.Form) (*Config, bool) {
	c, created := r.Open(KindConfig, roomjid)
	cfg := c.(*Config)
	if created || !cfg.Modified() {
		cfg.Form = form
	}
	return cfg, created
}

// OpenXMLConsole returns the XML console, creating it if necessary.
func (r *Registry) OpenXMLConsole() (*XMLConsole, bool) {
	c, created := r.Open(KindXMLConsole, KindXMLConsole.String())
	return c.(*XMLConsole), created
}

// Focus gives window n focus and marks it read.
func (r *Registry) Focus(n int) (Conversation, error) {
	c, ok := r.wins[n]
	if !ok {
		return nil, NoSuchWindowError{Num: n}
	}
	r.current = n
	c.win().unread = 0
	return c, nil
}

// FocusConversation gives c focus.
func (r *Registry) FocusConversation(c Conversation) {
	r.current = c.Num()
	c.win().unread = 0
}

// Incoming records an unread message in c unless it has focus.
// It reports whether the message was counted.
func (r *Registry) Incoming(c Conversation) bool {
	if c.Num() == r.current {
		return false
	}
	c.win().unread++
	return true
}

// Unread returns the total number of unread messages.
func (r *Registry) Unread() int {
	var n int
	for _, c := range r.wins {
		n += c.Unread()
	}
	return n
}

// ClearUnread marks every window read.
func (r *Registry) ClearUnread() {
	for _, c := range r.wins {
		c.win().unread = 0
	}
}

func (r *Registry) close(c Conversation) {
	if r.teardown != nil && r.teardown.Connected() {
		switch v := c.(type) {
		case *Room:
			r.teardown.LeaveRoom(v)
		case *Chat:
			r.teardown.EndChat(v)
		}
	}
	delete(r.wins, c.Num())
	if r.current == c.Num() {
		r.current = ConsoleNum
	}
	r.logger.Debug("window_closed",
		zap.Stringer("kind", c.Kind()),
		zap.String("key", c.Key()),
		zap.Int("num", c.Num()))
}

// Close closes window n.
// The console cannot be closed and neither can a configuration form with
// unsaved changes.
// If the closed window had focus the console gets focus.
func (r *Registry) Close(n int) error {
	if n == ConsoleNum {
		return ErrConsole
	}
	c, ok := r.wins[n]
	if !ok {
		return NoSuchWindowError{Num: n}
	}
	if cfg, ok := c.(*Config); ok && cfg.Modified() {
		return ErrUnsavedForm
	}
	r.close(c)
	return nil
}

func (r *Registry) closeWhere(f func(Conversation) bool) int {
	var count int
	for _, c := range r.All() {
		if c.Num() == ConsoleNum {
			continue
		}
		if cfg, ok := c.(*Config); ok && cfg.Modified() {
			continue
		}
		if !f(c) {
			continue
		}
		r.close(c)
		count++
	}
	return count
}

// CloseAll closes every window except the console and configuration forms
// with unsaved changes, and returns the number closed.
func (r *Registry) CloseAll() int {
	return r.closeWhere(func(Conversation) bool { return true })
}

// CloseRead closes every window with no unread messages except the console
// and configuration forms with unsaved changes, and returns the number
// closed.
func (r *Registry) CloseRead() int {
	return r.closeWhere(func(c Conversation) bool { return c.Unread() == 0 })
}

// Prune closes every window with no unread messages, as CloseRead, then
// tidies the window numbers.
// It reports whether any window was closed.
func (r *Registry) Prune() bool {
	closed := r.CloseRead()
	if closed == 0 {
		return false
	}
	r.Tidy()
	return true
}

// Swap exchanges the numbers of windows a and b.
// Both windows must exist and neither may be the console.
func (r *Registry) Swap(a, b int) error {
	for _, n := range [...]int{a, b} {
		if n == ConsoleNum {
			return InvalidSlotError{Num: n}
		}
		if _, ok := r.wins[n]; !ok {
			return InvalidSlotError{Num: n}
		}
	}
	if a == b {
		return ErrSameSlot
	}
	wa, wb := r.wins[a], r.wins[b]
	wa.win().num, wb.win().num = b, a
	r.wins[a], r.wins[b] = wb, wa
	switch r.current {
	case a:
		r.current = b
	case b:
		r.current = a
	}
	return nil
}

// Tidy renumbers windows to remove gaps, keeping their order.
// It reports whether any window moved.
func (r *Registry) Tidy() bool {
	var changed bool
	next := ConsoleNum + 1
	for _, n := range r.Nums() {
		if n == ConsoleNum {
			continue
		}
		if n != next {
			c := r.wins[n]
			delete(r.wins, n)
			c.win().num = next
			r.wins[next] = c
			if r.current == n {
				r.current = next
			}
			changed = true
		}
		next++
	}
	return changed
}

// LostConnection resets the connection specific state of every chat.
// Encryption sessions are ended through the Teardown.
func (r *Registry) LostConnection() {
	now := r.now()
	for _, c := range r.Chats() {
		if r.teardown != nil {
			r.teardown.ResetChat(c)
		}
		c.Resource = ""
		c.SupportsStates = false
		c.Trusted = false
		c.State.Reset(now)
	}
}
