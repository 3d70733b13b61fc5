// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env is the configuration taken from the environment.
// Flags override it.
type Env struct {
	Addr   string `envconfig:"XMPP_ADDR"`
	Pass   string `envconfig:"XMPP_PASS"`
	Config string `envconfig:"COMMUNIQUE_CONFIG"`
	Data   string `envconfig:"COMMUNIQUE_DATA"`
	Debug  bool   `envconfig:"COMMUNIQUE_DEBUG" default:"false"`
}

// LoadEnv reads the environment after loading any of the given dotenv files
// that exist.
// Variables already set in the environment are not overridden by the files.
func LoadEnv(dotenv ...string) (Env, error) {
	for _, f := range dotenv {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Env{}, fmt.Errorf("unable to load %s: %w", f, err)
		}
	}

	var e Env
	err := envconfig.Process("", &e)
	if err != nil {
		return Env{}, fmt.Errorf("unable to get envconfig: %w", err)
	}
	return e, nil
}

// ConfigPath returns the configuration file to use.
func (e Env) ConfigPath() (string, error) {
	if e.Config != "" {
		return e.Config, nil
	}
	return DefaultPath()
}

// DataDir returns the directory chat logs and other state are kept in.
func (e Env) DataDir() (string, error) {
	if e.Data != "" {
		return e.Data, nil
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "communique"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "communique"), nil
}
