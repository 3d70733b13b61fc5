// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package command

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"mellium.im/communique/internal/session"
)

// Env reports the state that command preconditions depend on.
type Env interface {
	Connected() bool
	Current() session.Conversation
}

// Fallback is tried for lines that do not name a registered command or
// alias, such as edits of form fields.
// It reports whether it handled the line.
type Fallback func(ctx context.Context, name string, args []string) (bool, error)

// Errors returned when managing aliases.
var (
	ErrAliasExists = errors.New("command: alias or command already exists")
	ErrNoAlias     = errors.New("command: no such alias")
)

// Dispatcher runs command lines.
type Dispatcher struct {
	cmds     map[string]*Command
	aliases  map[string]string
	env      Env
	fallback Fallback
	logger   *zap.Logger
}

// NewDispatcher returns a dispatcher with no commands.
func NewDispatcher(env Env, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cmds:    make(map[string]*Command),
		aliases: make(map[string]string),
		env:     env,
		logger:  logger,
	}
}

// Register adds commands, replacing any with the same name.
func (d *Dispatcher) Register(cmds ...Command) {
	for _, c := range cmds {
		c := c
		d.cmds[c.Name] = &c
	}
}

// SetFallback sets the handler for unknown commands.
func (d *Dispatcher) SetFallback(f Fallback) {
	d.fallback = f
}

// Lookup returns the named command.
// The leading slash is optional.
func (d *Dispatcher) Lookup(name string) (*Command, bool) {
	c, ok := d.cmds[strings.TrimPrefix(name, "/")]
	return c, ok
}

// Commands returns every command sorted by name.
func (d *Dispatcher) Commands() []*Command {
	out := make([]*Command, 0, len(d.cmds))
	for _, c := range d.cmds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// AddAlias makes /name expand to value.
// Value is a command line and may include arguments; arguments given to the
// alias are appended to it.
func (d *Dispatcher) AddAlias(name, value string) error {
	name = strings.TrimPrefix(name, "/")
	if _, ok := d.cmds[name]; ok {
		return ErrAliasExists
	}
	if _, ok := d.aliases[name]; ok {
		return ErrAliasExists
	}
	d.aliases[name] = value
	return nil
}

// RemoveAlias deletes an alias.
func (d *Dispatcher) RemoveAlias(name string) error {
	name = strings.TrimPrefix(name, "/")
	if _, ok := d.aliases[name]; !ok {
		return ErrNoAlias
	}
	delete(d.aliases, name)
	return nil
}

// Aliases returns a copy of the alias table.
func (d *Dispatcher) Aliases() map[string]string {
	m := make(map[string]string, len(d.aliases))
	for k, v := range d.aliases {
		m[k] = v
	}
	return m
}

// IsCommand reports whether line is a command rather than a message.
func IsCommand(line string) bool {
	return strings.HasPrefix(line, "/")
}

func splitName(line string) (name, rest string) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "/")
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx:])
}

// Execute runs a command line.
// The returned error, if any, should be shown with Message.
func (d *Dispatcher) Execute(ctx context.Context, line string) error {
	name, rest := splitName(line)
	if value, ok := d.aliases[name]; ok {
		if !IsCommand(value) {
			value = "/" + value
		}
		if rest != "" {
			value += " " + rest
		}
		name, rest = splitName(value)
	}

	cmd, ok := d.cmds[name]
	if !ok {
		if d.fallback != nil {
			handled, err := d.fallback(ctx, name, Split(rest, -1, false))
			if handled {
				return d.result(name, err)
			}
		}
		return UserInputError{Msg: "Unknown command: /" + name}
	}

	args := Split(rest, cmd.Max, cmd.FreeText)
	if len(args) < cmd.Min || (cmd.Max >= 0 && len(args) > cmd.Max) {
		return BadUsage(name)
	}
	if cmd.NeedsConnection && !d.env.Connected() {
		return ErrNotConnected
	}
	if cur := d.env.Current(); cur != nil && !cmd.allows(cur.Kind()) {
		msg := cmd.KindMessage
		if msg == "" {
			msg = "Command '/" + name + "' does not apply to this window."
		}
		return PreconditionError{Msg: msg}
	}
	return d.result(name, cmd.Handler(ctx, args))
}

func (d *Dispatcher) result(name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBadUsage):
		return BadUsage(name)
	case errors.As(err, new(UserInputError)), errors.As(err, new(PreconditionError)):
		return err
	}
	d.logger.Warn("command_failed", zap.String("command", name), zap.Error(err))
	return err
}

// Help returns the help text of a command.
func (d *Dispatcher) Help(name string) ([]string, bool) {
	c, ok := d.Lookup(name)
	if !ok {
		return nil, false
	}
	lines := []string{"Synopsis:"}
	for _, s := range c.Synopsis {
		lines = append(lines, "  "+s)
	}
	if c.Description != "" {
		lines = append(lines, "", "Description:", "  "+c.Description)
	}
	if len(c.Args) > 0 {
		width := 0
		for _, a := range c.Args {
			if len(a[0]) > width {
				width = len(a[0])
			}
		}
		lines = append(lines, "", "Arguments:")
		for _, a := range c.Args {
			lines = append(lines, "  "+a[0]+strings.Repeat(" ", width-len(a[0]))+" : "+a[1])
		}
	}
	return lines, true
}
