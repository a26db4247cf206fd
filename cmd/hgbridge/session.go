package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odvcencio/hgbridge/pkg/bridge"
	"github.com/odvcencio/hgbridge/pkg/config"
	"github.com/odvcencio/hgbridge/pkg/graft"
	"github.com/odvcencio/hgbridge/pkg/logging"
	"github.com/odvcencio/hgbridge/pkg/notes"
	"github.com/odvcencio/hgbridge/pkg/object"
	"github.com/odvcencio/hgbridge/pkg/repo"
)

// workspace bundles what most commands need: the repository, its
// configuration, a logger and an open bridge session.
type workspace struct {
	repo    *repo.Repo
	cfg     *config.Config
	log     *zap.SugaredLogger
	notes   *notes.Store
	session *bridge.Session
}

func (w *workspace) Close() error {
	err := w.notes.Close()
	_ = w.log.Sync()
	return err
}

// openWorkspace opens the repository containing the working directory.
func openWorkspace(cmd *cobra.Command) (*workspace, error) {
	r, err := repo.Open(".")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(r.ConfigPath())
	if err != nil {
		return nil, err
	}
	if f := cmd.Flag("log-level"); f != nil && f.Value.String() != "" {
		cfg.Log.Level = f.Value.String()
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	n, err := notes.Open(r.NotesDir())
	if err != nil {
		return nil, err
	}
	grafter, err := newGrafter(r, cfg, n)
	if err != nil {
		n.Close()
		return nil, err
	}
	s := bridge.New(r, n, bridge.Options{Logger: log, Config: cfg, Grafter: grafter})
	return &workspace{repo: r, cfg: cfg, log: log, notes: n, session: s}, nil
}

// newGrafter indexes the commits reachable from graft.refs when grafting
// is enabled. Commits that already stand for a changeset are skipped.
func newGrafter(r *repo.Repo, cfg *config.Config, n *notes.Store) (graft.Decider, error) {
	if !cfg.Graft.Enabled {
		return graft.None{}, nil
	}
	if len(cfg.Graft.Refs) == 0 {
		return nil, fmt.Errorf("graft.enabled is set but graft.refs is empty")
	}
	roots := make([]object.CommitID, 0, len(cfg.Graft.Refs))
	for _, name := range cfg.Graft.Refs {
		h, err := r.ResolveRef(name)
		if err != nil {
			return nil, fmt.Errorf("graft ref %s: %w", name, err)
		}
		roots = append(roots, object.CommitID(h))
	}
	taken := func(c object.CommitID) bool {
		_, ok, err := n.Get(notes.Git2Hg, c.String())
		return err == nil && ok
	}
	idx, err := graft.NewIndex(r.Store, roots, graft.IndexOptions{Explicit: true, Taken: taken})
	if err != nil {
		return nil, err
	}
	return idx, nil
}
