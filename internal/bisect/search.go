package bisect

import (
	"context"
	"log/slog"

	"ccbisect/internal/errors"
	"ccbisect/internal/repository"
)

// search runs the normal bisection over (good, bad) using the repository's
// history-weighted midpoint proposals. Two counters bound failure recovery:
// consecutive unusable midpoints near the same spot (reset by any
// successful evaluation) and a global counter that only resets when the
// interval actually narrows.
func (b *Bisector) search(ctx context.Context, st *state, log *slog.Logger, good, bad repository.Commit) (repository.Commit, error) {
	var midpoint, prevMidpoint repository.Commit
	failed := false
	spotFailures := 0
	totalFailures := 0

	for {
		if !failed {
			prevMidpoint = midpoint
			next, err := b.Repo.NextBisectionCommit(ctx, good, bad)
			if err != nil {
				return "", err
			}
			if next == "" || next == prevMidpoint {
				// Interval exhausted: bad is the first commit on the
				// boundary's far side.
				return bad, nil
			}
			midpoint = next
		} else {
			if spotFailures >= b.maxBuildFailures() {
				return "", errors.Newf(errors.BisectionAborted,
					"%d consecutive unusable midpoints near %s", spotFailures, midpoint)
			}
			sub, err := b.substituteMidpoint(ctx, good, bad, midpoint, spotFailures)
			if err != nil {
				return "", err
			}
			log.Info("midpoint unusable, substituting", "old", string(midpoint), "new", string(sub))
			midpoint = sub
			spotFailures++
			failed = false
		}

		st.stats.Steps++
		log.Info("testing midpoint", "commit", string(midpoint))

		v, err := st.evaluate(ctx, b.Builder, midpoint)
		if err != nil || v == Indeterminate {
			logUnusable(log, midpoint, v, err)
			failed = true
			totalFailures++
			if totalFailures >= b.maxTotalFailures() {
				return "", errors.Newf(errors.BisectionAborted,
					"hit the global failure bound (%d)", totalFailures)
			}
			continue
		}
		spotFailures = 0

		if st.mode.movesBad(v) {
			if midpoint != bad {
				totalFailures = 0
			}
			bad = midpoint
		} else {
			if midpoint != good {
				totalFailures = 0
			}
			good = midpoint
		}
		log.Debug("interval narrowed", "good", string(good), "bad", string(bad), "verdict", v.String())
	}
}

// substituteMidpoint picks a replacement after an unusable midpoint,
// avoiding asking the repository again (it would re-propose the same
// commit). Even-numbered consecutive failures jump 90% of the way from the
// midpoint toward bad; odd-numbered ones retreat to 20% of the way from
// good toward the midpoint. At least one commit of movement is always
// taken.
func (b *Bisector) substituteMidpoint(ctx context.Context, good, bad, midpoint repository.Commit, failures int) (repository.Commit, error) {
	if failures%2 == 0 {
		path, err := b.Repo.FirstParentPath(ctx, midpoint, bad)
		if err != nil {
			return "", err
		}
		dist := len(path) - 1
		step := dist - int(0.9*float64(dist))
		if step < 1 {
			step = 1
		}
		return b.Repo.NthParent(ctx, bad, step)
	}

	path, err := b.Repo.FirstParentPath(ctx, good, midpoint)
	if err != nil {
		return "", err
	}
	dist := len(path) - 1
	step := dist - int(0.2*float64(dist))
	if step < 1 {
		step = 1
	}
	return b.Repo.NthParent(ctx, midpoint, step)
}

func logUnusable(log *slog.Logger, midpoint repository.Commit, v Verdict, err error) {
	if err != nil {
		log.Warn("midpoint unusable", "commit", string(midpoint), "error", err)
		return
	}
	log.Warn("midpoint unusable", "commit", string(midpoint), "verdict", v.String())
}
