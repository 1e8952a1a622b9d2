package bisect

import (
	"context"
	"log/slog"
	"sort"

	"ccbisect/internal/repository"
)

// cacheBisect narrows (good, bad) using only commits that already have a
// cached build, since a fresh build is the single most expensive operation.
// It runs a plain binary search over the cached commits on the first-parent
// path, ordered bad-end first, and never produces a final answer itself,
// only a smaller interval for the normal phase.
func (b *Bisector) cacheBisect(ctx context.Context, st *state, log *slog.Logger, good, bad repository.Commit) (repository.Commit, repository.Commit, error) {
	path, err := b.Repo.FirstParentPath(ctx, good, bad)
	if err != nil {
		return good, bad, err
	}
	before := len(path)

	cached, err := b.Cache.CachedCommits(st.proj)
	if err != nil {
		// A missing or unreadable cache only costs builds, never
		// correctness.
		log.Warn("cache enumeration failed, skipping cache phase", "error", err)
		return good, bad, nil
	}

	pos := make(map[repository.Commit]int, len(path))
	for i, c := range path {
		pos[c] = i
	}
	var candidates []repository.Commit
	for _, c := range cached {
		if _, onPath := pos[c]; onPath {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return pos[candidates[i]] < pos[candidates[j]]
	})
	log.Info("bisecting in cache", "cached_on_path", len(candidates), "path_length", before)

	var prev repository.Commit
	for len(candidates) > 0 {
		idx := len(candidates) / 2
		midpoint := candidates[idx]
		if midpoint == prev {
			// The remaining set cannot shrink the interval further.
			break
		}
		prev = midpoint

		st.stats.Steps++
		st.stats.CacheTests++
		v, err := st.evaluate(ctx, b.Builder, midpoint)
		if err != nil || v == Indeterminate {
			// Unjudgeable cached commit: exclude it and retry without
			// narrowing the interval.
			log.Debug("cached midpoint indeterminate, dropping", "commit", string(midpoint), "error", err)
			candidates = append(candidates[:idx], candidates[idx+1:]...)
			continue
		}

		log.Debug("cached midpoint tested", "commit", string(midpoint), "verdict", v.String())
		if st.mode.movesBad(v) {
			// Everything at or below the midpoint index is closer to bad
			// than the new bad endpoint.
			bad = midpoint
			candidates = candidates[idx+1:]
		} else {
			good = midpoint
			candidates = candidates[:idx]
		}
	}

	after, err := b.Repo.FirstParentPath(ctx, good, bad)
	if err != nil {
		return good, bad, err
	}
	log.Info("cache bisection done", "range_before", before, "range_after", len(after))
	return good, bad, nil
}
