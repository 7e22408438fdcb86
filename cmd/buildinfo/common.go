package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ipxe/people-mareo-ipxe/pkg/config"
	"github.com/ipxe/people-mareo-ipxe/pkg/settings"
	"github.com/ipxe/people-mareo-ipxe/pkg/store"
)

// globals holds the persistent flags and what is derived from them.
type globals struct {
	configPath string
	dbPath     string
	envFiles   []string
	verbose    bool

	logger *slog.Logger
}

func (g *globals) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	g.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.logger)
	return config.LoadDotEnv(g.envFiles...)
}

func (g *globals) loadConfig() (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if g.dbPath != "" {
		cfg.Store.Path = g.dbPath
	}
	return cfg, nil
}

func (g *globals) openStore() (*store.Store, *config.Config, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

// buildOutput returns where external tool output goes: the command's
// stderr in verbose mode, nowhere otherwise.
func (g *globals) buildOutput(cmd *cobra.Command) io.Writer {
	if g.verbose {
		return cmd.ErrOrStderr()
	}
	return io.Discard
}

// resolveCommit finds a stored commit by hash prefix, or the latest one
// when rev is empty.
func resolveCommit(ctx context.Context, st *store.Store, rev string) (store.Commit, error) {
	if rev == "" {
		c, err := st.LatestCommit(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return store.Commit{}, fmt.Errorf("no commits analysed yet; run buildinfo analyse")
		}
		return c, err
	}
	return st.CommitByHash(ctx, rev)
}

// applyEdits stages NAME=VALUE sets and NAME unsets on doc. A bare NAME in
// sets defines the setting without a value.
func applyEdits(doc *settings.Document, sets, unsets []string) error {
	for _, kv := range sets {
		name, value, _ := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		s := doc.Lookup(name)
		if s == nil {
			return fmt.Errorf("%s: no setting named %q", doc.Filename, name)
		}
		doc.StageSet(s, strings.TrimSpace(value))
	}
	for _, name := range unsets {
		name = strings.TrimSpace(name)
		s := doc.Lookup(name)
		if s == nil {
			return fmt.Errorf("%s: no setting named %q", doc.Filename, name)
		}
		doc.StageUnset(s)
	}
	return nil
}
