// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -output=string.go -type=Presence,Filter,Result -linecomment

// Package roster tracks the contact list and the presence of each contact's
// resources.
package roster // import "mellium.im/communique/internal/roster"

import (
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Bounds of a presence priority.
const (
	MinPriority = -128
	MaxPriority = 127
)

// Presence is the availability advertised by a resource.
type Presence uint8

// A list of presence values, in order of preference when choosing between
// resources with the same priority.
const (
	Chat   Presence = iota // chat
	Online                 // online
	Away                   // away
	XA                     // xa
	DND                    // dnd
)

// ParsePresence converts the value of a presence "show" element.
// The empty string is Online.
func ParsePresence(show string) (Presence, error) {
	switch show {
	case "", Online.String():
		return Online, nil
	case Chat.String():
		return Chat, nil
	case Away.String():
		return Away, nil
	case XA.String():
		return XA, nil
	case DND.String():
		return DND, nil
	}
	return Online, errors.New("roster: unknown presence " + show)
}

// Show returns the value of the presence "show" element, or the empty string
// for Online.
func (p Presence) Show() string {
	if p == Online {
		return ""
	}
	return p.String()
}

// Subscription states.
const (
	SubNone   = "none"
	SubTo     = "to"
	SubFrom   = "from"
	SubBoth   = "both"
	SubRemove = "remove"
)

// Resource is one connected client of a contact.
type Resource struct {
	Name     string
	Presence Presence
	Status   string
	Priority int
	Caps     string
}

// Item is a roster entry as pushed by the server.
type Item struct {
	JID          string
	Name         string
	Subscription string
	Ask          bool
	Groups       []string
}

// Contact is a roster entry and the presence of its resources.
type Contact struct {
	JID          string
	Name         string
	Subscription string
	PendingOut   bool
	LastActivity time.Time

	groups    []string
	resources map[string]Resource
}

// Display returns the contact's name or, if it has none, its JID.
func (c *Contact) Display() string {
	if c.Name != "" {
		return c.Name
	}
	return c.JID
}

// Groups returns the sorted groups the contact belongs to.
func (c *Contact) Groups() []string {
	g := make([]string, len(c.groups))
	copy(g, c.groups)
	return g
}

// InGroup reports whether the contact belongs to group.
func (c *Contact) InGroup(group string) bool {
	i := sort.SearchStrings(c.groups, group)
	return i < len(c.groups) && c.groups[i] == group
}

// Available reports whether any resource of the contact is online.
func (c *Contact) Available() bool {
	return len(c.resources) > 0
}

// Resource returns the named resource.
func (c *Contact) Resource(name string) (Resource, bool) {
	r, ok := c.resources[name]
	return r, ok
}

// Resources returns the contact's resources, highest priority first.
func (c *Contact) Resources() []Resource {
	res := make([]Resource, 0, len(c.resources))
	for _, r := range c.resources {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Priority != res[j].Priority {
			return res[i].Priority > res[j].Priority
		}
		if res[i].Presence != res[j].Presence {
			return res[i].Presence < res[j].Presence
		}
		return res[i].Name < res[j].Name
	})
	return res
}

// Presence returns the presence of the contact's highest priority resource.
// If the contact is offline ok is false.
func (c *Contact) Presence() (p Presence, ok bool) {
	res := c.Resources()
	if len(res) == 0 {
		return Online, false
	}
	return res[0].Presence, true
}

// Notifies reports whether presence changes of the contact are displayed at
// all.
// Contacts without a subscription never are.
func (c *Contact) Notifies() bool {
	return c.Subscription != "" && c.Subscription != SubNone
}

// Result is the outcome of an idempotent roster edit.
type Result uint8

// A list of edit results.
const (
	Done Result = iota // done
	Noop               // noop
)

// ErrNoContact is returned when an operation names a JID that is not in the
// roster.
var ErrNoContact = errors.New("roster: contact not found")

// Roster is the contact list of the logged in account.
type Roster struct {
	contacts map[string]*Contact
	requests map[string]struct{}
	logger   *zap.Logger
}

// New returns an empty roster.
func New(logger *zap.Logger) *Roster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roster{
		contacts: make(map[string]*Contact),
		requests: make(map[string]struct{}),
		logger:   logger,
	}
}

func normalizeGroups(groups []string) []string {
	set := make(map[string]struct{}, len(groups))
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if _, ok := set[g]; ok || g == "" {
			continue
		}
		set[g] = struct{}{}
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Update applies a roster push.
// An item with subscription "remove" deletes the contact.
// It reports whether the contact was not in the roster before.
func (r *Roster) Update(item Item) (c *Contact, added bool) {
	if item.Subscription == SubRemove {
		r.Remove(item.JID)
		return nil, false
	}
	c, ok := r.contacts[item.JID]
	if !ok {
		c = &Contact{
			JID:       item.JID,
			resources: make(map[string]Resource),
		}
		r.contacts[item.JID] = c
		r.logger.Debug("roster_contact_added", zap.String("jid", item.JID))
	}
	c.Name = item.Name
	c.Subscription = item.Subscription
	if c.Subscription == "" {
		c.Subscription = SubNone
	}
	c.PendingOut = item.Ask
	c.groups = normalizeGroups(item.Groups)
	return c, !ok
}

// Remove deletes a contact and reports whether it existed.
func (r *Roster) Remove(barejid string) bool {
	_, ok := r.contacts[barejid]
	delete(r.contacts, barejid)
	if ok {
		r.logger.Debug("roster_contact_removed", zap.String("jid", barejid))
	}
	return ok
}

// Clear empties the roster and the list of subscription requests.
func (r *Roster) Clear() {
	r.contacts = make(map[string]*Contact)
	r.requests = make(map[string]struct{})
}

// Len returns the number of contacts.
func (r *Roster) Len() int {
	return len(r.contacts)
}

// Get returns the contact with the given bare JID.
func (r *Roster) Get(barejid string) (*Contact, bool) {
	c, ok := r.contacts[barejid]
	return c, ok
}

// Find looks up a contact by bare JID or, failing that, by name.
func (r *Roster) Find(s string) (*Contact, bool) {
	if c, ok := r.contacts[s]; ok {
		return c, true
	}
	for _, c := range r.contacts {
		if c.Name == s {
			return c, true
		}
	}
	return nil, false
}

// Contacts returns every contact sorted by display name and then by JID.
func (r *Roster) Contacts() []*Contact {
	out := make([]*Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := strings.ToLower(out[i].Display()), strings.ToLower(out[j].Display())
		if di != dj {
			return di < dj
		}
		return out[i].JID < out[j].JID
	})
	return out
}

// Groups returns the sorted names of all groups in use.
func (r *Roster) Groups() []string {
	var all []string
	for _, c := range r.contacts {
		all = append(all, c.groups...)
	}
	return normalizeGroups(all)
}

// Group returns the contacts in group.
func (r *Roster) Group(group string) []*Contact {
	var out []*Contact
	for _, c := range r.Contacts() {
		if c.InGroup(group) {
			out = append(out, c)
		}
	}
	return out
}

// ApplyPresence records that resource of barejid is available.
// It reports whether anything changed; presence from contacts that are not in
// the roster and exact duplicates are ignored.
func (r *Roster) ApplyPresence(barejid string, res Resource, lastActivity time.Time) bool {
	c, ok := r.contacts[barejid]
	if !ok {
		return false
	}
	if !lastActivity.IsZero() {
		c.LastActivity = lastActivity
	}
	old, ok := c.resources[res.Name]
	if ok && old == res {
		return false
	}
	c.resources[res.Name] = res
	r.logger.Debug("roster_presence",
		zap.String("jid", barejid),
		zap.String("resource", res.Name),
		zap.Stringer("presence", res.Presence))
	return true
}

// ApplyOffline removes resource from barejid.
// Removed reports whether the resource was known; last reports whether the
// contact has no resources left.
func (r *Roster) ApplyOffline(barejid, resource, status string) (removed, last bool) {
	c, ok := r.contacts[barejid]
	if !ok {
		return false, false
	}
	if _, ok = c.resources[resource]; !ok {
		return false, !c.Available()
	}
	delete(c.resources, resource)
	r.logger.Debug("roster_offline",
		zap.String("jid", barejid),
		zap.String("resource", resource),
		zap.String("status", status))
	return true, !c.Available()
}

// SetName sets the local name of a contact.
func (r *Roster) SetName(barejid, name string) error {
	c, ok := r.contacts[barejid]
	if !ok {
		return ErrNoContact
	}
	c.Name = name
	return nil
}

// AddToGroup adds barejid to group.
// If the contact is already in the group the result is Noop.
func (r *Roster) AddToGroup(barejid, group string) (Result, error) {
	c, ok := r.contacts[barejid]
	if !ok {
		return Noop, ErrNoContact
	}
	if c.InGroup(group) {
		return Noop, nil
	}
	c.groups = normalizeGroups(append(c.groups, group))
	return Done, nil
}

// RemoveFromGroup removes barejid from group.
// If the contact is not in the group the result is Noop.
func (r *Roster) RemoveFromGroup(barejid, group string) (Result, error) {
	c, ok := r.contacts[barejid]
	if !ok {
		return Noop, ErrNoContact
	}
	if !c.InGroup(group) {
		return Noop, nil
	}
	groups := make([]string, 0, len(c.groups)-1)
	for _, g := range c.groups {
		if g != group {
			groups = append(groups, g)
		}
	}
	c.groups = groups
	return Done, nil
}

// RenameGroup moves every member of from into to and returns the contacts
// that changed.
// Renaming an empty group, or a group to itself, is a Noop.
func (r *Roster) RenameGroup(from, to string) (Result, []*Contact) {
	if from == to {
		return Noop, nil
	}
	var changed []*Contact
	for _, c := range r.Contacts() {
		if !c.InGroup(from) {
			continue
		}
		groups := make([]string, 0, len(c.groups))
		for _, g := range c.groups {
			if g != from {
				groups = append(groups, g)
			}
		}
		c.groups = normalizeGroups(append(groups, to))
		changed = append(changed, c)
	}
	if len(changed) == 0 {
		return Noop, nil
	}
	return Done, changed
}

// AddRequest records an incoming subscription request.
func (r *Roster) AddRequest(barejid string) {
	r.requests[barejid] = struct{}{}
}

// RemoveRequest forgets an incoming subscription request and reports whether
// it existed.
func (r *Roster) RemoveRequest(barejid string) bool {
	_, ok := r.requests[barejid]
	delete(r.requests, barejid)
	return ok
}

// Requests returns the pending incoming subscription requests.
func (r *Roster) Requests() []string {
	out := make([]string, 0, len(r.requests))
	for j := range r.requests {
		out = append(out, j)
	}
	sort.Strings(out)
	return out
}

// PendingOut returns the contacts we have asked to subscribe to.
func (r *Roster) PendingOut() []*Contact {
	var out []*Contact
	for _, c := range r.Contacts() {
		if c.PendingOut {
			out = append(out, c)
		}
	}
	return out
}
