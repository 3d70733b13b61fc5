// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mellium.im/communique/internal/chatstate"
	"mellium.im/communique/internal/network"
	"mellium.im/communique/internal/roster"
	"mellium.im/communique/internal/session"
)

// Auto away modes.
const (
	autoAwayOff  = "off"
	autoAwayAway = "away"
	autoAwayIdle = "idle"
)

// Tick advances the soft timers: chat states, auto away, autoping, and
// reconnection.
// A late tick only delays the transitions that were due.
func (c *Client) Tick(ctx context.Context, now time.Time) {
	c.tickReconnect(ctx, now)
	if !c.Connected() {
		return
	}
	c.tickStates(ctx, now)
	c.tickAutoAway(ctx, now)
	c.tickAutoping(ctx, now)
}

func (c *Client) tickStates(ctx context.Context, now time.Time) {
	if !c.cfg.Prefs.States {
		return
	}
	for _, ch := range c.reg.Chats() {
		if !ch.SupportsStates {
			continue
		}
		if st, changed := ch.State.Idle(now); changed {
			c.sendState(ctx, ch, st)
		}
	}
}

func (c *Client) sendState(ctx context.Context, ch *session.Chat, st chatstate.State) {
	if err := c.net.SendChatState(ctx, ch.To(), st); err != nil {
		c.logger.Debug("chat_state_failed", zap.String("to", ch.To()), zap.Stringer("state", st), zap.Error(err))
	}
}

func (c *Client) tickAutoAway(ctx context.Context, now time.Time) {
	aa := c.cfg.Prefs.AutoAway
	if aa.Mode == autoAwayOff || aa.Time <= 0 || c.autoAway {
		return
	}
	if c.presence != roster.Online && c.presence != roster.Chat {
		return
	}
	idle := now.Sub(c.lastActivity)
	if idle < time.Duration(aa.Time)*time.Minute {
		return
	}
	c.autoAway = true
	mins := int(idle / time.Minute)
	switch aa.Mode {
	case autoAwayAway:
		pri := c.priority(roster.Away)
		c.broadcastPresence(ctx, roster.Away, aa.Message, pri)
		if aa.Message != "" {
			c.cons("Idle for %d minutes, status set to away (priority %d), \"%s\".", mins, pri, aa.Message)
		} else {
			c.cons("Idle for %d minutes, status set to away (priority %d).", mins, pri)
		}
	case autoAwayIdle:
		status := aa.Message
		if status == "" {
			status = c.status
		}
		c.broadcastPresence(ctx, c.presence, status, c.priority(c.presence))
		c.cons("Idle for %d minutes, status remains %s.", mins, c.presence)
	}
}

// activity records user input and ends auto away.
func (c *Client) activity(ctx context.Context) {
	c.lastActivity = c.now()
	if !c.autoAway {
		return
	}
	c.autoAway = false
	if !c.cfg.Prefs.AutoAway.Check || !c.Connected() {
		return
	}
	pri := c.priority(c.presence)
	c.broadcastPresence(ctx, c.presence, c.status, pri)
	c.cons("No longer idle, status set to %s (priority %d).", c.presence, pri)
}

func (c *Client) tickAutoping(ctx context.Context, now time.Time) {
	n := c.cfg.Prefs.Autoping
	if n <= 0 || now.Sub(c.lastPing) < time.Duration(n)*time.Second {
		return
	}
	c.lastPing = now
	c.autopinging = true
	if err := c.net.Ping(ctx, ""); err != nil {
		c.logger.Warn("autoping_failed", zap.Error(err))
	}
}

// lost starts the reconnection timer if reconnecting is enabled.
func (c *Client) lost(now time.Time) {
	n := c.cfg.Prefs.Reconnect
	if n <= 0 || c.acct == nil {
		c.reconnect = nil
		return
	}
	c.reconnect = rate.NewLimiter(rate.Every(time.Duration(n)*time.Second), 1)
	// The first attempt waits for a full interval.
	c.reconnect.AllowN(now, 1)
}

func (c *Client) tickReconnect(ctx context.Context, now time.Time) {
	if c.reconnect == nil || c.net.Status() != network.Disconnected {
		return
	}
	if !c.reconnect.AllowN(now, 1) {
		return
	}
	c.cons("Attempting reconnect with account %s...", c.account)
	c.logger.Info("reconnecting", zap.String("account", c.account))
	if err := c.net.Connect(ctx, c.login); err != nil {
		c.protocolError("", "reconnect", err)
	}
}
