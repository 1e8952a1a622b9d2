// Package builder turns compiler commits into usable build artifacts.
package builder

import (
	"context"
	"path/filepath"

	"ccbisect/internal/project"
	"ccbisect/internal/repository"
)

// Artifact is a finished compiler build: an install prefix containing
// bin/<shortname>.
type Artifact struct {
	Project project.Project
	Commit  repository.Commit
	Dir     string
}

// CompilerPath returns the path of the compiler driver inside the artifact.
func (a Artifact) CompilerPath() string {
	return filepath.Join(a.Dir, "bin", a.Project.ShortName())
}

// Builder produces an artifact for a commit, serving previously built
// commits from the artifact cache transparently. A failed build returns an
// error carrying the BUILD_FAILED code.
type Builder interface {
	Build(ctx context.Context, proj project.Project, commit repository.Commit) (Artifact, error)
}
