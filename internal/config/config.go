// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package config loads and saves preferences and accounts.
//
// Preferences and accounts live in a single YAML file.
// Values missing from the file keep their defaults.
package config // import "mellium.im/communique/internal/config"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mellium.im/communique/internal/encryption"
	"mellium.im/communique/internal/roster"
)

// Errors returned when editing accounts.
var (
	ErrAccountExists = errors.New("config: account already exists")
	ErrNoAccount     = errors.New("config: no such account")
)

// Statuses are the presence filters of each kind of window.
type Statuses struct {
	Console string `yaml:"console"`
	Chat    string `yaml:"chat"`
	MUC     string `yaml:"muc"`
}

// AutoAway configures the idle detection.
type AutoAway struct {
	// Mode is one of "off", "away" or "idle".
	Mode    string `yaml:"mode"`
	Time    int    `yaml:"time"`
	Message string `yaml:"message,omitempty"`
	Check   bool   `yaml:"check"`
}

// Receipts configures XEP-0184 delivery receipts.
type Receipts struct {
	Send    bool `yaml:"send"`
	Request bool `yaml:"request"`
}

// Prefs are the user's preferences.
type Prefs struct {
	Statuses       Statuses          `yaml:"statuses"`
	Privileges     bool              `yaml:"privileges"`
	Occupants      bool              `yaml:"occupants"`
	Presence       bool              `yaml:"presence"`
	History        bool              `yaml:"history"`
	Carbons        bool              `yaml:"carbons"`
	Receipts       Receipts          `yaml:"receipts"`
	States         bool              `yaml:"states"`
	Beep           bool              `yaml:"beep"`
	EncWarn        bool              `yaml:"encwarn"`
	AutoTidy       bool              `yaml:"autotidy"`
	Reconnect      int               `yaml:"reconnect"`
	Autoping       int               `yaml:"autoping"`
	AutoAway       AutoAway          `yaml:"autoaway"`
	PGPLog         string            `yaml:"pgp_log"`
	OTRLog         string            `yaml:"otr_log"`
	OTRPolicy      string            `yaml:"otr_policy"`
	DefaultAccount string            `yaml:"default_account,omitempty"`
	Aliases        map[string]string `yaml:"aliases,omitempty"`
}

// Defaults returns the preferences used when there is no configuration.
func Defaults() Prefs {
	return Prefs{
		Statuses: Statuses{
			Console: roster.FilterAll.String(),
			Chat:    roster.FilterAll.String(),
			MUC:     roster.FilterAll.String(),
		},
		Privileges: true,
		Occupants:  true,
		Presence:   true,
		States:     true,
		EncWarn:    true,
		AutoTidy:   true,
		Reconnect:  30,
		Autoping:   60,
		AutoAway: AutoAway{
			Mode:  "off",
			Time:  15,
			Check: true,
		},
		PGPLog:    encryption.LogRedact.String(),
		OTRLog:    encryption.LogRedact.String(),
		OTRPolicy: encryption.PolicyManual.String(),
	}
}

// Account is a set of connection settings.
type Account struct {
	JID         string         `yaml:"jid"`
	Password    string         `yaml:"password,omitempty"`
	Resource    string         `yaml:"resource,omitempty"`
	Server      string         `yaml:"server,omitempty"`
	Port        int            `yaml:"port,omitempty"`
	MUCService  string         `yaml:"muc,omitempty"`
	MUCNick     string         `yaml:"nick,omitempty"`
	OTRPolicy   string         `yaml:"otr,omitempty"`
	PGPKeyID    string         `yaml:"pgpkeyid,omitempty"`
	LoginStatus string         `yaml:"status,omitempty"`
	Priority    map[string]int `yaml:"priority,omitempty"`

	// LastPresence is the presence set when the account was last used.
	LastPresence string `yaml:"last_presence,omitempty"`
}

// PriorityFor returns the priority configured for a presence.
func (a *Account) PriorityFor(p roster.Presence) int {
	return a.Priority[p.String()]
}

// Local returns the localpart of the account JID, used as the default room
// nickname.
func (a *Account) Local() string {
	if i := strings.IndexByte(a.JID, '@'); i >= 0 {
		return a.JID[:i]
	}
	return a.JID
}

type file struct {
	Prefs    Prefs               `yaml:"prefs"`
	Accounts map[string]*Account `yaml:"accounts,omitempty"`
}

// Config is the preferences and accounts file.
type Config struct {
	Prefs    Prefs
	Accounts map[string]*Account

	path string
}

// DefaultPath returns the path of the configuration file under the user's
// configuration directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "communique", "config.yml"), nil
}

// New returns a configuration with default preferences that will be saved to
// path.
func New(path string) *Config {
	return &Config{
		Prefs:    Defaults(),
		Accounts: make(map[string]*Account),
		path:     path,
	}
}

// Load reads the configuration at path.
// A missing file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	c := New(path)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	f := file{Prefs: c.Prefs}
	if err = yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	c.Prefs = f.Prefs
	if f.Accounts != nil {
		c.Accounts = f.Accounts
	}
	return c, nil
}

// Path returns the file the configuration is saved to.
func (c *Config) Path() string {
	return c.path
}

// Save writes the configuration back to its file.
// The file holds passwords so it is only readable by the user.
func (c *Config) Save() error {
	b, err := yaml.Marshal(file{Prefs: c.Prefs, Accounts: c.Accounts})
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.path, b, 0o600)
}

// WorldReadable reports whether the configuration file can be read by other
// users.
func (c *Config) WorldReadable() bool {
	info, err := os.Stat(c.path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0o004 != 0
}

// Account returns the named account.
func (c *Config) Account(name string) (*Account, bool) {
	a, ok := c.Accounts[strings.ToLower(name)]
	return a, ok
}

// AccountNames returns the names of every account, sorted.
func (c *Config) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for n := range c.Accounts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AddAccount creates an account whose JID is the account name.
func (c *Config) AddAccount(name string) (*Account, error) {
	name = strings.ToLower(name)
	if _, ok := c.Accounts[name]; ok {
		return nil, ErrAccountExists
	}
	a := &Account{JID: name, LoginStatus: roster.Online.String()}
	c.Accounts[name] = a
	return a, nil
}

// RemoveAccount deletes an account.
func (c *Config) RemoveAccount(name string) error {
	name = strings.ToLower(name)
	if _, ok := c.Accounts[name]; !ok {
		return ErrNoAccount
	}
	delete(c.Accounts, name)
	if c.Prefs.DefaultAccount == name {
		c.Prefs.DefaultAccount = ""
	}
	return nil
}

// StatusFilter returns the presence filter for the given kind of window: one
// of "console", "chat" or "muc".
func (c *Config) StatusFilter(kind string) roster.Filter {
	var s string
	switch kind {
	case "console":
		s = c.Prefs.Statuses.Console
	case "chat":
		s = c.Prefs.Statuses.Chat
	case "muc":
		s = c.Prefs.Statuses.MUC
	}
	f, err := roster.ParseFilter(s)
	if err != nil {
		return roster.FilterAll
	}
	return f
}

// PGPLog satisfies encryption.Policies.
func (c *Config) PGPLog() encryption.LogPolicy {
	p, err := encryption.ParseLogPolicy(c.Prefs.PGPLog)
	if err != nil {
		return encryption.LogRedact
	}
	return p
}

// OTRLog satisfies encryption.Policies.
func (c *Config) OTRLog() encryption.LogPolicy {
	p, err := encryption.ParseLogPolicy(c.Prefs.OTRLog)
	if err != nil {
		return encryption.LogRedact
	}
	return p
}

// OTRPolicy satisfies encryption.Policies.
func (c *Config) OTRPolicy() encryption.OTRPolicy {
	p, err := encryption.ParseOTRPolicy(c.Prefs.OTRPolicy)
	if err != nil {
		return encryption.PolicyManual
	}
	return p
}
