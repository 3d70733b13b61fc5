// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"mellium.im/communique/internal/client"
	"mellium.im/communique/internal/config"
	"mellium.im/communique/internal/encryption/otr"
	"mellium.im/communique/internal/encryption/pgp"
	"mellium.im/communique/internal/store"
	"mellium.im/communique/internal/termui"
	"mellium.im/communique/internal/xmppnet"
)

type flags struct {
	config  string
	data    string
	account string
	debug   bool
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:   "communique",
		Short: "A terminal XMPP client",
		Long: `Communiqué is an XMPP client for the terminal with one to one chats,
multi-user chat rooms, and OTR or OpenPGP encrypted conversations.

Type /help once it is running for a list of commands.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "", "config file path (default is $XDG_CONFIG_HOME/communique/config.yml)")
	pf.StringVarP(&f.data, "data", "d", "", "directory for chat logs and keys")
	pf.StringVarP(&f.account, "account", "a", "", "account to connect with on start")
	pf.BoolVar(&f.debug, "debug", false, "log debug messages")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "communique %s %s/%s\n", version, runtime.GOOS, runtime.GOARCH)
		},
	})
	return root
}

func newLogger(path string, debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

func run(ctx context.Context, f flags) error {
	env, err := config.LoadEnv(".env")
	if err != nil {
		return err
	}
	if f.config == "" {
		f.config, err = env.ConfigPath()
		if err != nil {
			return fmt.Errorf("unable to find the config file: %w", err)
		}
	}
	if f.data == "" {
		f.data, err = env.DataDir()
		if err != nil {
			return fmt.Errorf("unable to find the data directory: %w", err)
		}
	}
	if f.account == "" {
		f.account = env.Addr
	}
	if err := os.MkdirAll(f.data, 0o700); err != nil {
		return err
	}

	logger, err := newLogger(filepath.Join(f.data, "communique.log"), f.debug || env.Debug)
	if err != nil {
		return fmt.Errorf("unable to create logger: %w", err)
	}
	/* #nosec */
	defer logger.Sync()

	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	if cfg.WorldReadable() {
		logger.Warn("config_world_readable", zap.String("path", cfg.Path()))
		fmt.Fprintf(os.Stderr, "Warning: %s is readable by other users and may contain passwords.\n", cfg.Path())
	}

	db, err := store.Open(filepath.Join(f.data, "db"), store.Logger(logger.Named("store")))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("store_close_failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	width := 0
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}
	ui := termui.New(os.Stdout, termui.Width(width))
	lines := termui.Lines(ctx, os.Stdin)

	conn := xmppnet.New(logger, xmppnet.Software("communique", version))
	defer conn.Close()

	opts := []client.Option{
		client.WithConfig(cfg),
		client.WithUI(ui),
		client.WithLogger(logger),
		client.WithPrompter(newPrompter(os.Stdout, int(os.Stdin.Fd()), lines, env.Pass)),
		client.WithStore(func(account string) client.Store { return db.Account(account) }),
	}
	keyring, err := pgp.Load(filepath.Join(f.data, "keyring.asc"), nil)
	switch {
	case err == nil:
		opts = append(opts, client.WithPGP(keyring))
	case errors.Is(err, os.ErrNotExist):
		logger.Info("pgp_keyring_missing")
	default:
		logger.Warn("pgp_keyring_failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Warning: PGP disabled: %v\n", err)
	}
	var engine *otr.Engine
	otrKey, err := otr.LoadKey(filepath.Join(f.data, "otr.key"))
	if err == nil {
		engine = otr.New(otrKey,
			otr.Logger(logger.Named("otr")),
			otr.TrustFile(filepath.Join(f.data, "otr_trust.yml")),
		)
		opts = append(opts, client.WithOTR(engine))
	} else {
		logger.Warn("otr_key_failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Warning: OTR disabled: %v\n", err)
	}
	if f.account != "" {
		opts = append(opts, client.WithAccount(f.account))
	}

	c := client.New(conn, opts...)
	if engine != nil {
		engine.Attach(c)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Debug("close_failed", zap.Error(err))
		}
	}()
	if f.account != "" {
		c.Input(ctx, "/connect "+f.account)
	}
	err = c.Run(ctx, lines)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
