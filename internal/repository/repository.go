// Package repository answers git history queries for a compiler checkout.
//
// Every query shells out to the git binary with the working directory set to
// the checkout root. Nothing here mutates the repository.
package repository

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"ccbisect/internal/errors"
)

// Revision is any string git can resolve to a commit: a hash, tag, branch
// name or relative expression. It is never assumed to be unique.
type Revision string

// Commit is the canonical resolved identifier (full SHA-1) for a Revision.
type Commit string

// Repo is a handle on a local git checkout of the compiler under bisection.
type Repo struct {
	path       string
	mainBranch Revision
}

// Open validates that path is a git repository and returns a handle.
// mainBranch names the project's development branch; the symbolic revisions
// "trunk", "master" and "main" all resolve through it.
func Open(path string, mainBranch Revision) (*Repo, error) {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = path
	if err := cmd.Run(); err != nil {
		return nil, errors.New(errors.RepoQueryFailed, "not a git repository: "+path, err)
	}
	return &Repo{path: path, mainBranch: mainBranch}, nil
}

// Path returns the checkout root.
func (r *Repo) Path() string {
	return r.path
}

// Resolve converts any revision (commit, tag, relative expression) into its
// full hash via git rev-parse.
func (r *Repo) Resolve(ctx context.Context, rev Revision) (Commit, error) {
	switch rev {
	case "trunk", "master", "main":
		rev = r.mainBranch
	}
	out, err := r.git(ctx, "rev-parse", string(rev))
	if err != nil {
		return "", errors.New(errors.RevisionUnresolvable, "cannot resolve revision "+string(rev), err)
	}
	return Commit(out), nil
}

// IsAncestor reports whether older is an ancestor of younger.
func (r *Repo) IsAncestor(ctx context.Context, older, younger Commit) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "merge-base", "--is-ancestor", string(older), string(younger))
	cmd.Dir = r.path
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, errors.New(errors.RepoQueryFailed, "merge-base --is-ancestor failed", err)
}

// BestCommonAncestor returns the most recent commit reachable from both a
// and b (git merge-base).
func (r *Repo) BestCommonAncestor(ctx context.Context, a, b Commit) (Commit, error) {
	out, err := r.git(ctx, "merge-base", string(a), string(b))
	if err != nil {
		return "", errors.New(errors.RepoQueryFailed, "merge-base failed", err)
	}
	return Commit(out), nil
}

// FirstParentPath returns the commits from younger down to older following
// only first-parent links, inclusive of both endpoints, ordered younger
// first. This is the chain a bisection linearizes merge history onto.
func (r *Repo) FirstParentPath(ctx context.Context, older, younger Commit) ([]Commit, error) {
	out, err := r.git(ctx, "rev-list", "--first-parent", string(younger), "^"+string(older))
	if err != nil {
		return nil, errors.New(errors.RepoQueryFailed, "rev-list --first-parent failed", err)
	}
	var path []Commit
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		path = append(path, Commit(line))
	}
	return append(path, older), nil
}

// NextBisectionCommit proposes the commit on the first-parent chain between
// good and bad that approximately halves the remaining reachable history
// (git rev-list --bisect). Returns "" when the interval is exhausted.
func (r *Repo) NextBisectionCommit(ctx context.Context, good, bad Commit) (Commit, error) {
	out, err := r.git(ctx, "rev-list", "--bisect", "--first-parent", string(bad), "^"+string(good))
	if err != nil {
		return "", errors.New(errors.RepoQueryFailed, "rev-list --bisect failed", err)
	}
	return Commit(out), nil
}

// NthParent resolves commit~n.
func (r *Repo) NthParent(ctx context.Context, commit Commit, n int) (Commit, error) {
	out, err := r.git(ctx, "rev-parse", string(commit)+"~"+strconv.Itoa(n))
	if err != nil {
		return "", errors.New(errors.RevisionUnresolvable,
			"cannot resolve "+string(commit)+"~"+strconv.Itoa(n), err)
	}
	return Commit(out), nil
}

// AddWorktree checks out commit into dir as a linked worktree. Builds run
// against worktrees so the main checkout never moves.
func (r *Repo) AddWorktree(ctx context.Context, dir string, commit Commit) error {
	if _, err := r.git(ctx, "worktree", "add", "--force", "--detach", dir, string(commit)); err != nil {
		return errors.New(errors.RepoQueryFailed, "worktree add failed for "+string(commit), err)
	}
	return nil
}

// RemoveWorktree detaches and prunes the worktree at dir.
func (r *Repo) RemoveWorktree(ctx context.Context, dir string) error {
	if _, err := r.git(ctx, "worktree", "remove", "--force", dir); err != nil {
		return errors.New(errors.RepoQueryFailed, "worktree remove failed", err)
	}
	return nil
}

// git runs a git subcommand in the checkout and returns its trimmed stdout.
func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
