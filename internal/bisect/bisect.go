// Package bisect locates the commit that introduced or fixed a compiler
// behavior, given a test that can judge individual commits.
//
// The engine is strictly sequential: every step depends on the previous
// build and test outcome. It narrows a (good, bad) interval on the
// first-parent chain, first against already-built commits from the artifact
// cache, then with history-weighted midpoints from the repository, and
// finally re-verifies the boundary before reporting it.
package bisect

import (
	"context"
	"log/slog"

	"ccbisect/internal/builder"
	"ccbisect/internal/errors"
	"ccbisect/internal/project"
	"ccbisect/internal/repository"
)

// Repository is the subset of git history queries the engine depends on.
// *repository.Repo implements it; tests substitute an in-memory history.
type Repository interface {
	Resolve(ctx context.Context, rev repository.Revision) (repository.Commit, error)
	IsAncestor(ctx context.Context, older, younger repository.Commit) (bool, error)
	BestCommonAncestor(ctx context.Context, a, b repository.Commit) (repository.Commit, error)
	FirstParentPath(ctx context.Context, older, younger repository.Commit) ([]repository.Commit, error)
	NextBisectionCommit(ctx context.Context, good, bad repository.Commit) (repository.Commit, error)
	NthParent(ctx context.Context, commit repository.Commit, n int) (repository.Commit, error)
}

// CacheIndex enumerates commits that already have a usable build, so the
// cache-first phase can narrow the interval without building anything.
type CacheIndex interface {
	CachedCommits(proj project.Project) ([]repository.Commit, error)
}

const (
	// defaultMaxBuildFailures bounds consecutive unusable midpoints near
	// the same spot before the bisection gives up.
	defaultMaxBuildFailures = 3
	// defaultMaxTotalFailures is the hard backstop against pathological
	// failure patterns that defeat the local recovery heuristic.
	defaultMaxTotalFailures = 20
)

// Bisector orchestrates repository queries, builds and test runs to locate
// a boundary commit. The zero failure bounds select the defaults.
type Bisector struct {
	Repo    Repository
	Builder builder.Builder
	Cache   CacheIndex
	Log     *slog.Logger

	MaxBuildFailures int
	MaxTotalFailures int
}

// Request describes one bisection: the project, the endpoint revisions and
// the search polarity. The caller promises that the test reads interesting
// at Bad and not-interesting at Good (swapped for a fix search); the engine
// re-verifies this at the boundary rather than trusting it.
type Request struct {
	Project project.Project
	Good    repository.Revision
	Bad     repository.Revision
	Mode    Mode
}

// Stats counts the work one bisection performed.
type Stats struct {
	Steps         int // midpoints considered, both phases
	Builds        int // successful builds (including cache hits)
	BuildFailures int
	TestRuns      int
	CacheTests    int // test runs served entirely from cached builds
}

// Result is a verified bisection outcome.
type Result struct {
	Culprit repository.Commit
	Stats   Stats
}

// state carries the per-run mutable pieces so the phase methods stay free
// of long parameter lists.
type state struct {
	proj  project.Project
	mode  Mode
	test  Test
	stats Stats
}

// Run locates the boundary commit for req. It returns a non-nil result only
// when verification at the boundary passed; every give-up path returns a
// typed error (BISECTION_ABORTED, BRANCH_POINT_INTERESTING,
// VERIFICATION_FAILED) instead of an unverified answer.
func (b *Bisector) Run(ctx context.Context, test Test, req Request) (*Result, error) {
	log := b.Log.With("project", req.Project.String(), "mode", req.Mode.String())

	good, err := b.Repo.Resolve(ctx, req.Good)
	if err != nil {
		return nil, err
	}
	bad, err := b.Repo.Resolve(ctx, req.Bad)
	if err != nil {
		return nil, err
	}
	log.Info("bisection started", "good", string(good), "bad", string(bad))

	st := &state{proj: req.Project, mode: req.Mode, test: test}

	good, err = b.handleBranchPoint(ctx, st, log, good, bad)
	if err != nil {
		log.Warn("bisection aborted at branch point", "error", err)
		return nil, err
	}

	good, bad, err = b.cacheBisect(ctx, st, log, good, bad)
	if err != nil {
		return nil, err
	}

	culprit, err := b.search(ctx, st, log, good, bad)
	if err != nil {
		log.Warn("bisection aborted", "error", err)
		return nil, err
	}

	if err := b.verify(ctx, st, log, culprit); err != nil {
		log.Warn("verification failed, discarding result", "culprit", string(culprit), "error", err)
		return nil, err
	}

	log.Info("bisection finished", "culprit", string(culprit),
		"steps", st.stats.Steps, "builds", st.stats.Builds)
	return &Result{Culprit: culprit, Stats: st.stats}, nil
}

// handleBranchPoint deals with good and bad living on divergent branches.
// When good is not an ancestor of bad, the best common ancestor is tested:
// if the behavior is absent there the boundary must lie between the branch
// point and bad, so the branch point becomes the new good endpoint. If the
// behavior is already present at the branch point no narrower answer
// exists on this chain.
func (b *Bisector) handleBranchPoint(ctx context.Context, st *state, log *slog.Logger, good, bad repository.Commit) (repository.Commit, error) {
	anc, err := b.Repo.IsAncestor(ctx, good, bad)
	if err != nil {
		return "", err
	}
	if anc {
		return good, nil
	}

	bca, err := b.Repo.BestCommonAncestor(ctx, good, bad)
	if err != nil {
		return "", err
	}
	log.Info("endpoints diverge, testing branch point", "branch_point", string(bca))

	v, err := st.evaluate(ctx, b.Builder, bca)
	if err != nil {
		return "", errors.New(errors.BisectionAborted, "cannot judge branch point "+string(bca), err)
	}
	switch {
	case st.mode.movesGood(v):
		return bca, nil
	case st.mode.movesBad(v):
		return "", errors.Newf(errors.BranchPointInteresting,
			"behavior already present at branch point %s", bca)
	default:
		return "", errors.Newf(errors.BisectionAborted,
			"branch point %s is indeterminate", bca)
	}
}

// verify re-tests the candidate boundary and its first parent. For a
// regression the boundary must read interesting and its parent
// not-interesting; for a fix search the polarities are swapped. A result
// failing this check is never surfaced.
func (b *Bisector) verify(ctx context.Context, st *state, log *slog.Logger, culprit repository.Commit) error {
	parent, err := b.Repo.NthParent(ctx, culprit, 1)
	if err != nil {
		return errors.New(errors.VerificationFailed, "cannot resolve parent of "+string(culprit), err)
	}

	v, err := st.evaluate(ctx, b.Builder, culprit)
	if err != nil || !st.mode.movesBad(v) {
		return errors.New(errors.VerificationFailed,
			"boundary "+string(culprit)+" re-tested as "+v.String(), err)
	}

	pv, err := st.evaluate(ctx, b.Builder, parent)
	if err != nil || !st.mode.movesGood(pv) {
		return errors.New(errors.VerificationFailed,
			"parent "+string(parent)+" re-tested as "+pv.String(), err)
	}

	log.Debug("verification passed", "culprit", string(culprit), "parent", string(parent))
	return nil
}

// evaluate builds commit and runs the test against the artifact. Build
// failures and test errors both come back as Indeterminate with the cause.
func (st *state) evaluate(ctx context.Context, bld builder.Builder, commit repository.Commit) (Verdict, error) {
	art, err := bld.Build(ctx, st.proj, commit)
	if err != nil {
		st.stats.BuildFailures++
		return Indeterminate, err
	}
	st.stats.Builds++

	st.stats.TestRuns++
	v, err := st.test.Check(ctx, commit, art)
	if err != nil {
		return Indeterminate, err
	}
	return v, nil
}

func (b *Bisector) maxBuildFailures() int {
	if b.MaxBuildFailures > 0 {
		return b.MaxBuildFailures
	}
	return defaultMaxBuildFailures
}

func (b *Bisector) maxTotalFailures() int {
	if b.MaxTotalFailures > 0 {
		return b.MaxTotalFailures
	}
	return defaultMaxTotalFailures
}
