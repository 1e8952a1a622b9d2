package bisect

import (
	"context"

	"ccbisect/internal/builder"
	"ccbisect/internal/repository"
)

// Verdict is the tri-state answer of an interestingness test.
type Verdict int

const (
	// Indeterminate means the commit cannot be judged (unbuildable, test
	// crashed, ambiguous). The engine skips such commits.
	Indeterminate Verdict = iota
	// Interesting means the behavior under investigation is present.
	Interesting
	// NotInteresting means the behavior is absent.
	NotInteresting
)

func (v Verdict) String() string {
	switch v {
	case Interesting:
		return "interesting"
	case NotInteresting:
		return "not-interesting"
	default:
		return "indeterminate"
	}
}

// Test judges a single commit given its build artifact. Implementations
// must be safe to call repeatedly for the same commit. A returned error is
// treated like an Indeterminate verdict.
type Test interface {
	Check(ctx context.Context, commit repository.Commit, art builder.Artifact) (Verdict, error)
}

// TestFunc adapts a function to the Test interface.
type TestFunc func(ctx context.Context, commit repository.Commit, art builder.Artifact) (Verdict, error)

// Check implements Test.
func (f TestFunc) Check(ctx context.Context, commit repository.Commit, art builder.Artifact) (Verdict, error) {
	return f(ctx, commit, art)
}

// Mode selects what the bisection is looking for: the commit that
// introduced the behavior, or the commit that fixed it.
type Mode int

const (
	// ModeRegression searches for the first commit where the test reads
	// interesting.
	ModeRegression Mode = iota
	// ModeFix searches for the first commit where it no longer does.
	ModeFix
)

func (m Mode) String() string {
	if m == ModeFix {
		return "fix"
	}
	return "regression"
}

// movesBad reports whether a verdict moves the bad endpoint of the
// interval: behavior present for a regression search, absent for a fix
// search. Indeterminate moves neither endpoint.
func (m Mode) movesBad(v Verdict) bool {
	if m == ModeFix {
		return v == NotInteresting
	}
	return v == Interesting
}

// movesGood is the counterpart for the good endpoint.
func (m Mode) movesGood(v Verdict) bool {
	if m == ModeFix {
		return v == Interesting
	}
	return v == NotInteresting
}
