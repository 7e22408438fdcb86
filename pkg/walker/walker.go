// Package walker analyses every upstream commit not yet seen locally.
//
// For each commit, oldest first, the walker checks out the revision, runs a
// clean full build, analyses the build outputs under the configured target
// directories and persists them. The local branch is then fast-forwarded
// to the commit, so an interrupted run resumes where it stopped.
package walker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ipxe/people-mareo-ipxe/pkg/elfinfo"
	"github.com/ipxe/people-mareo-ipxe/pkg/store"
	"github.com/ipxe/people-mareo-ipxe/pkg/vcs"
)

// State is the walker's position in its per-commit cycle.
type State int

const (
	StateIdle State = iota
	StateFetchingRemote
	StateIterating
	StateBuilding
	StateCollecting
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingRemote:
		return "fetching remote"
	case StateIterating:
		return "checking out"
	case StateBuilding:
		return "building"
	case StateCollecting:
		return "collecting"
	case StatePersisting:
		return "persisting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RunError is a fatal failure that aborts the walk.
type RunError struct {
	Step   State
	Commit string // empty for failures outside a commit
	Err    error
}

func (e *RunError) Error() string {
	if e.Commit == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Step, shortHash(e.Commit), e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// SourceControl is the version control collaborator.
type SourceControl interface {
	Fetch(ctx context.Context) error
	LocalRef() string
	RemoteRef() string
	RevList(ctx context.Context, from, to string) ([]string, error)
	Checkout(ctx context.Context, rev string) error
	FastForward(ctx context.Context, rev string) error
	CommitInfo(ctx context.Context, rev string) (vcs.Commit, error)
}

// Builder is the opaque build step run over the checked-out tree.
type Builder interface {
	Clean(ctx context.Context) error
	BuildAll(ctx context.Context, jobs int) error
}

// Store persists one commit's artifacts, replacing any earlier result.
type Store interface {
	SaveCommit(ctx context.Context, c store.Commit, arts []*elfinfo.Artifact) (store.Commit, bool, error)
}

// Summary describes one processed commit.
type Summary struct {
	Commit    store.Commit
	Created   bool // false when an earlier result was replaced
	Artifacts int
	Skipped   int // files or targets that could not be analysed
}

// Options configures a Walker.
type Options struct {
	Root     string   // working tree holding the target directories
	Targets  []string // build output directories relative to Root
	Jobs     int      // parallel build jobs, 0 lets make decide
	Logger   *slog.Logger
	OnCommit func(Summary)
	DryRun   bool // list pending commits without building
}

// Walker drives the fetch, build, analyse and persist cycle.
type Walker struct {
	scm   SourceControl
	build Builder
	store Store
	opts  Options

	mu    sync.Mutex
	state State
}

// New returns a Walker. It does not touch the repository until Run.
func New(scm SourceControl, build Builder, st Store, opts Options) *Walker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Walker{scm: scm, build: build, store: st, opts: opts}
}

// State reports the current state. It is safe to call from another
// goroutine while Run is in progress.
func (w *Walker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Walker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Pending lists the commits reachable from the remote tip but not from the
// local tip, oldest first. It does not fetch.
func (w *Walker) Pending(ctx context.Context) ([]string, error) {
	revs, err := w.scm.RevList(ctx, w.scm.LocalRef(), w.scm.RemoteRef())
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(revs)-1; i < j; i, j = i+1, j-1 {
		revs[i], revs[j] = revs[j], revs[i]
	}
	return revs, nil
}

// Run fetches the remote and processes every pending commit in order. It
// stops at the first fatal error, which is always a *RunError; commits
// processed before it remain persisted and merged.
func (w *Walker) Run(ctx context.Context) ([]Summary, error) {
	defer w.setState(StateIdle)
	log := w.opts.Logger

	w.setState(StateFetchingRemote)
	if err := w.scm.Fetch(ctx); err != nil {
		return nil, &RunError{Step: StateFetchingRemote, Err: err}
	}
	revs, err := w.Pending(ctx)
	if err != nil {
		return nil, &RunError{Step: StateFetchingRemote, Err: err}
	}
	log.Info("commits to analyse", "count", len(revs), "local", w.scm.LocalRef(), "remote", w.scm.RemoteRef())

	summaries := make([]Summary, 0, len(revs))
	for _, rev := range revs {
		if err := ctx.Err(); err != nil {
			return summaries, &RunError{Step: StateIterating, Commit: rev, Err: err}
		}
		if w.opts.DryRun {
			info, err := w.scm.CommitInfo(ctx, rev)
			if err != nil {
				return summaries, &RunError{Step: StateIterating, Commit: rev, Err: err}
			}
			sum := Summary{Commit: store.Commit{Hash: info.Hash, Title: info.Title, Time: info.Time}}
			summaries = append(summaries, sum)
			w.notify(sum)
			continue
		}
		sum, err := w.ProcessCommit(ctx, rev)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// ProcessCommit runs the full cycle for a single revision and advances the
// local branch to it.
func (w *Walker) ProcessCommit(ctx context.Context, rev string) (Summary, error) {
	log := w.opts.Logger.With("commit", shortHash(rev))

	w.setState(StateIterating)
	if err := w.scm.Checkout(ctx, rev); err != nil {
		return Summary{}, &RunError{Step: StateIterating, Commit: rev, Err: err}
	}
	info, err := w.scm.CommitInfo(ctx, rev)
	if err != nil {
		return Summary{}, &RunError{Step: StateIterating, Commit: rev, Err: err}
	}
	log.Info("analysing commit", "title", info.Title)

	w.setState(StateBuilding)
	if err := w.build.Clean(ctx); err != nil {
		return Summary{}, &RunError{Step: StateBuilding, Commit: rev, Err: err}
	}
	if err := w.build.BuildAll(ctx, w.opts.Jobs); err != nil {
		return Summary{}, &RunError{Step: StateBuilding, Commit: rev, Err: err}
	}

	w.setState(StateCollecting)
	arts, skipped := Collect(w.opts.Root, w.opts.Targets, log)

	w.setState(StatePersisting)
	saved, created, err := w.store.SaveCommit(ctx, store.Commit{Hash: info.Hash, Title: info.Title, Time: info.Time}, arts)
	if err != nil {
		return Summary{}, &RunError{Step: StatePersisting, Commit: rev, Err: err}
	}
	if err := w.scm.FastForward(ctx, rev); err != nil {
		return Summary{}, &RunError{Step: StatePersisting, Commit: rev, Err: fmt.Errorf("fast-forward: %w", err)}
	}

	sum := Summary{Commit: saved, Created: created, Artifacts: len(arts), Skipped: skipped}
	log.Info("commit analysed", "artifacts", sum.Artifacts, "skipped", sum.Skipped, "new", created)
	w.notify(sum)
	return sum, nil
}

func (w *Walker) notify(sum Summary) {
	if w.opts.OnCommit != nil {
		w.opts.OnCommit(sum)
	}
}

// IsFatal reports whether err aborted a walk.
func IsFatal(err error) bool {
	var re *RunError
	return errors.As(err, &re)
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
