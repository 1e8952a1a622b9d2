package bisect

import (
	"context"
	"fmt"
	"testing"

	"ccbisect/internal/builder"
	"ccbisect/internal/errors"
	"ccbisect/internal/project"
	"ccbisect/internal/repository"
	"ccbisect/internal/slogutil"
)

// fakeRepo is an in-memory linear first-parent history, oldest commit
// first, with optional side-branch commits that share a merge-base with the
// chain.
type fakeRepo struct {
	chain []repository.Commit
	side  map[repository.Commit]repository.Commit // side commit -> branch point on chain
}

func newFakeRepo(n int) *fakeRepo {
	r := &fakeRepo{side: map[repository.Commit]repository.Commit{}}
	for i := 0; i < n; i++ {
		r.chain = append(r.chain, repository.Commit(fmt.Sprintf("c%03d", i)))
	}
	return r
}

func (r *fakeRepo) index(c repository.Commit) (int, bool) {
	for i, x := range r.chain {
		if x == c {
			return i, true
		}
	}
	return 0, false
}

func (r *fakeRepo) Resolve(_ context.Context, rev repository.Revision) (repository.Commit, error) {
	c := repository.Commit(rev)
	if _, ok := r.index(c); ok {
		return c, nil
	}
	if _, ok := r.side[c]; ok {
		return c, nil
	}
	return "", errors.Newf(errors.RevisionUnresolvable, "unknown revision %s", rev)
}

func (r *fakeRepo) IsAncestor(_ context.Context, older, younger repository.Commit) (bool, error) {
	if _, ok := r.side[older]; ok {
		return false, nil
	}
	oi, ok1 := r.index(older)
	yi, ok2 := r.index(younger)
	if !ok1 || !ok2 {
		return false, errors.Newf(errors.RepoQueryFailed, "commit off history")
	}
	return oi <= yi, nil
}

func (r *fakeRepo) BestCommonAncestor(_ context.Context, a, b repository.Commit) (repository.Commit, error) {
	if bp, ok := r.side[a]; ok {
		return bp, nil
	}
	if bp, ok := r.side[b]; ok {
		return bp, nil
	}
	return "", errors.Newf(errors.RepoQueryFailed, "no common ancestor")
}

func (r *fakeRepo) FirstParentPath(_ context.Context, older, younger repository.Commit) ([]repository.Commit, error) {
	oi, ok1 := r.index(older)
	yi, ok2 := r.index(younger)
	if !ok1 || !ok2 || oi > yi {
		return nil, errors.Newf(errors.RepoQueryFailed, "bad path endpoints %s..%s", older, younger)
	}
	var path []repository.Commit
	for i := yi; i >= oi; i-- {
		path = append(path, r.chain[i])
	}
	return path, nil
}

func (r *fakeRepo) NextBisectionCommit(_ context.Context, good, bad repository.Commit) (repository.Commit, error) {
	gi, ok1 := r.index(good)
	bi, ok2 := r.index(bad)
	if !ok1 || !ok2 {
		return "", errors.Newf(errors.RepoQueryFailed, "commit off history")
	}
	if gi >= bi {
		return "", nil
	}
	return r.chain[(gi+bi+1)/2], nil
}

func (r *fakeRepo) NthParent(_ context.Context, commit repository.Commit, n int) (repository.Commit, error) {
	ci, ok := r.index(commit)
	if !ok || ci-n < 0 {
		return "", errors.Newf(errors.RevisionUnresolvable, "no parent %s~%d", commit, n)
	}
	return r.chain[ci-n], nil
}

// fakeBuilder pretends to build commits, failing the ones listed in broken.
type fakeBuilder struct {
	broken   map[repository.Commit]bool
	attempts map[repository.Commit]int
}

func newFakeBuilder(broken ...repository.Commit) *fakeBuilder {
	b := &fakeBuilder{broken: map[repository.Commit]bool{}, attempts: map[repository.Commit]int{}}
	for _, c := range broken {
		b.broken[c] = true
	}
	return b
}

func (b *fakeBuilder) Build(_ context.Context, proj project.Project, commit repository.Commit) (builder.Artifact, error) {
	b.attempts[commit]++
	if b.broken[commit] {
		return builder.Artifact{}, errors.Newf(errors.BuildFailed, "synthetic build failure at %s", commit)
	}
	return builder.Artifact{Project: proj, Commit: commit, Dir: "/fake/" + string(commit)}, nil
}

func (b *fakeBuilder) totalAttempts() int {
	n := 0
	for _, v := range b.attempts {
		n += v
	}
	return n
}

// fakeCache serves a fixed cached-commit set.
type fakeCache struct {
	commits []repository.Commit
}

func (c *fakeCache) CachedCommits(project.Project) ([]repository.Commit, error) {
	return c.commits, nil
}

// thresholdTest reads interesting from firstBad onward, with optional
// per-commit overrides.
func thresholdTest(repo *fakeRepo, firstBad int, overrides map[repository.Commit]Verdict) Test {
	return TestFunc(func(_ context.Context, commit repository.Commit, _ builder.Artifact) (Verdict, error) {
		if v, ok := overrides[commit]; ok {
			return v, nil
		}
		i, ok := repo.index(commit)
		if !ok {
			return Indeterminate, nil
		}
		if i >= firstBad {
			return Interesting, nil
		}
		return NotInteresting, nil
	})
}

func newBisector(repo *fakeRepo, bld builder.Builder, cache CacheIndex) *Bisector {
	if cache == nil {
		cache = &fakeCache{}
	}
	return &Bisector{
		Repo:    repo,
		Builder: bld,
		Cache:   cache,
		Log:     slogutil.NewDiscardLogger(),
	}
}

func TestRunFindsFirstInterestingCommit(t *testing.T) {
	// G1 - G2 - B1 - B2 - BAD, boundary at index 2.
	repo := newFakeRepo(5)
	bld := newFakeBuilder()
	b := newBisector(repo, bld, nil)

	res, err := b.Run(context.Background(), thresholdTest(repo, 2, nil), Request{
		Project: project.GCC,
		Good:    repository.Revision(repo.chain[0]),
		Bad:     repository.Revision(repo.chain[4]),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Culprit != repo.chain[2] {
		t.Errorf("culprit = %s, want %s", res.Culprit, repo.chain[2])
	}
	if res.Stats.Steps == 0 || res.Stats.TestRuns == 0 {
		t.Errorf("stats not recorded: %+v", res.Stats)
	}
}

func TestRunBoundaryAtBadEndpoint(t *testing.T) {
	// Only the bad endpoint itself is interesting.
	repo := newFakeRepo(6)
	b := newBisector(repo, newFakeBuilder(), nil)

	res, err := b.Run(context.Background(), thresholdTest(repo, 5, nil), Request{
		Project: project.GCC,
		Good:    repository.Revision(repo.chain[0]),
		Bad:     repository.Revision(repo.chain[5]),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Culprit != repo.chain[5] {
		t.Errorf("culprit = %s, want %s", res.Culprit, repo.chain[5])
	}
}

func TestRunRecoveredBuildFailure(t *testing.T) {
	// A commit near the boundary never builds; the substitute-midpoint
	// recovery must route around it and still find the boundary.
	repo := newFakeRepo(12)
	bld := newFakeBuilder(repo.chain[3])
	b := newBisector(repo, bld, nil)

	res, err := b.Run(context.Background(), thresholdTest(repo, 2, nil), Request{
		Project: project.GCC,
		Good:    repository.Revision(repo.chain[0]),
		Bad:     repository.Revision(repo.chain[11]),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Culprit != repo.chain[2] {
		t.Errorf("culprit = %s, want %s", res.Culprit, repo.chain[2])
	}
	if res.Stats.BuildFailures == 0 {
		t.Error("expected at least one recorded build failure")
	}
}

func TestRunAbortsOnPersistentFailures(t *testing.T) {
	// Every commit in the search region is unbuildable: the engine must
	// abort within its failure bounds instead of hanging.
	repo := newFakeRepo(40)
	broken := make([]repository.Commit, 0, 38)
	for _, c := range repo.chain[1 : len(repo.chain)-1] {
		broken = append(broken, c)
	}
	bld := newFakeBuilder(broken...)
	b := newBisector(repo, bld, nil)

	_, err := b.Run(context.Background(), thresholdTest(repo, 20, nil), Request{
		Project: project.GCC,
		Good:    repository.Revision(repo.chain[0]),
		Bad:     repository.Revision(repo.chain[39]),
	})
	if err == nil {
		t.Fatal("expected an abort error")
	}
	if !errors.HasCode(err, errors.BisectionAborted) {
		t.Errorf("error code = %v, want BISECTION_ABORTED", errors.CodeOf(err))
	}
	if n := bld.totalAttempts(); n > defaultMaxTotalFailures+2 {
		t.Errorf("build attempts = %d, exceeds the failure bound", n)
	}
}

func TestRunAlwaysIndeterminateTerminates(t *testing.T) {
	repo := newFakeRepo(30)
	bld := newFakeBuilder()
	b := newBisector(repo, bld, nil)

	test := TestFunc(func(context.Context, repository.Commit, builder.Artifact) (Verdict, error) {
		return Indeterminate, nil
	})
	_, err := b.Run(context.Background(), test, Request{
		Project: project.GCC,
		Good:    repository.Revision(repo.chain[0]),
		Bad:     repository.Revision(repo.chain[29]),
	})
	if err == nil {
		t.Fatal("expected an abort error")
	}
	if !errors.HasCode(err, errors.BisectionAborted) {
		t.Errorf("error code = %v, want BISECTION_ABORTED", errors.CodeOf(err))
	}
}

func TestRunBranchPointNotInteresting(t *testing.T) {
	// good sits on a side branch; the branch point tests clean, so the
	// boundary must lie between the branch point and bad.
	repo := newFakeRepo(8)
	good := repository.Commit("side-good")
	repo.side[good] = repo.chain[1]

	b := newBisector(repo, newFakeBuilder(), nil)
	res, err := b.Run(context.Background(), thresholdTest(repo, 5, nil), Request{
		Project: project.GCC,
		Good:    repository.Revision(good),
		Bad:     repository.Revision(repo.chain[7]),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Culprit != repo.chain[5] {
		t.Errorf("culprit = %s, want %s", res.Culprit, repo.chain[5])
	}
}

func TestRunBranchPointInterestingAborts(t *testing.T) {
	repo := newFakeRepo(8)
	good := repository.Commit("side-good")
	repo.side[good] = repo.chain[1]
	bld := newFakeBuilder()

	b := newBisector(repo, bld, nil)
	// Behavior present from the very start of the chain, so the branch
	// point itself is interesting.
	_, err := b.Run(context.Background(), thresholdTest(repo, 0, nil), Request{
		Project: project.GCC,
		Good:    repository.Revision(good),
		Bad:     repository.Revision(repo.chain[7]),
	})
	if err == nil {
		t.Fatal("expected an abort error")
	}
	if !errors.HasCode(err, errors.BranchPointInteresting) {
		t.Errorf("error code = %v, want BRANCH_POINT_INTERESTING", errors.CodeOf(err))
	}
	// Only the branch point may have been built before aborting.
	if n := bld.totalAttempts(); n != 1 {
		t.Errorf("build attempts = %d, want 1 (the branch point only)", n)
	}
}

func TestRunCacheOnlyConvergence(t *testing.T) {
	// Every commit on the path has a cached build: the cache phase must
	// shrink the interval to adjacent commits before the normal phase runs.
	repo := newFakeRepo(16)
	cache := &fakeCache{commits: append([]repository.Commit{}, repo.chain...)}
	bld := newFakeBuilder()
	b := newBisector(repo, bld, cache)

	res, err := b.Run(context.Background(), thresholdTest(repo, 9, nil), Request{
		Project: project.LLVM,
		Good:    repository.Revision(repo.chain[0]),
		Bad:     repository.Revision(repo.chain[15]),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Culprit != repo.chain[9] {
		t.Errorf("culprit = %s, want %s", res.Culprit, repo.chain[9])
	}
	if res.Stats.CacheTests == 0 {
		t.Error("cache phase did not run")
	}
}

func TestRunCacheIndeterminateDropped(t *testing.T) {
	// One cached commit is unjudgeable; it must be excluded without
	// corrupting the interval.
	repo := newFakeRepo(10)
	cache := &fakeCache{commits: []repository.Commit{repo.chain[2], repo.chain[4], repo.chain[7]}}
	overrides := map[repository.Commit]Verdict{repo.chain[4]: Indeterminate}
	b := newBisector(repo, newFakeBuilder(), cache)

	res, err := b.Run(context.Background(), thresholdTest(repo, 6, overrides), Request{
		Project: project.GCC,
		Good:    repository.Revision(repo.chain[0]),
		Bad:     repository.Revision(repo.chain[9]),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Culprit != repo.chain[6] {
		t.Errorf("culprit = %s, want %s", res.Culprit, repo.chain[6])
	}
}

func TestRunFixSearch(t *testing.T) {
	// The behavior disappears at index 6: a fix search must report the
	// first commit where the test reads not-interesting.
	repo := newFakeRepo(10)
	test := TestFunc(func(_ context.Context, commit repository.Commit, _ builder.Artifact) (Verdict, error) {
		i, _ := repo.index(commit)
		if i >= 6 {
			return NotInteresting, nil
		}
		return Interesting, nil
	})
	b := newBisector(repo, newFakeBuilder(), nil)

	res, err := b.Run(context.Background(), test, Request{
		Project: project.GCC,
		Good:    repository.Revision(repo.chain[0]),
		Bad:     repository.Revision(repo.chain[9]),
		Mode:    ModeFix,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Culprit != repo.chain[6] {
		t.Errorf("culprit = %s, want %s", res.Culprit, repo.chain[6])
	}
}

func TestRunVerificationFailureDiscardsResult(t *testing.T) {
	// A flaky test that stops reproducing once the search is done: the
	// boundary must be discarded, not reported.
	repo := newFakeRepo(8)
	calls := 0
	test := TestFunc(func(_ context.Context, commit repository.Commit, _ builder.Artifact) (Verdict, error) {
		calls++
		if calls > 4 {
			// Everything reads clean from here on, so verification of
			// the boundary cannot succeed.
			return NotInteresting, nil
		}
		i, _ := repo.index(commit)
		if i >= 4 {
			return Interesting, nil
		}
		return NotInteresting, nil
	})
	b := newBisector(repo, newFakeBuilder(), nil)

	res, err := b.Run(context.Background(), test, Request{
		Project: project.GCC,
		Good:    repository.Revision(repo.chain[0]),
		Bad:     repository.Revision(repo.chain[7]),
	})
	if err == nil {
		t.Fatalf("expected verification failure, got culprit %s", res.Culprit)
	}
	if !errors.HasCode(err, errors.VerificationFailed) {
		t.Errorf("error code = %v, want VERIFICATION_FAILED", errors.CodeOf(err))
	}
}

func TestRunUnresolvableRevision(t *testing.T) {
	repo := newFakeRepo(4)
	b := newBisector(repo, newFakeBuilder(), nil)

	_, err := b.Run(context.Background(), thresholdTest(repo, 2, nil), Request{
		Project: project.GCC,
		Good:    "nonsense",
		Bad:     repository.Revision(repo.chain[3]),
	})
	if err == nil {
		t.Fatal("expected resolve error")
	}
	if !errors.HasCode(err, errors.RevisionUnresolvable) {
		t.Errorf("error code = %v, want REVISION_UNRESOLVABLE", errors.CodeOf(err))
	}
}

func TestSubstituteMidpointMovesAndNeverReusesMidpoint(t *testing.T) {
	repo := newFakeRepo(21)
	b := newBisector(repo, newFakeBuilder(), nil)
	ctx := context.Background()
	good, bad, midpoint := repo.chain[0], repo.chain[20], repo.chain[10]

	// Even-numbered failure: jump most of the way toward bad.
	sub, err := b.substituteMidpoint(ctx, good, bad, midpoint, 0)
	if err != nil {
		t.Fatal(err)
	}
	si, _ := repo.index(sub)
	if si <= 10 || si >= 20 {
		t.Errorf("even substitute at index %d, want strictly between midpoint and bad", si)
	}

	// Odd-numbered failure: retreat close to good.
	sub, err = b.substituteMidpoint(ctx, good, bad, midpoint, 1)
	if err != nil {
		t.Fatal(err)
	}
	si, _ = repo.index(sub)
	if si <= 0 || si >= 10 {
		t.Errorf("odd substitute at index %d, want strictly between good and midpoint", si)
	}

	// Adjacent interval still moves at least one commit.
	sub, err = b.substituteMidpoint(ctx, repo.chain[8], bad, repo.chain[19], 0)
	if err != nil {
		t.Fatal(err)
	}
	if sub == bad {
		t.Error("substitute must not land on the bad endpoint")
	}
}
