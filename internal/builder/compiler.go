package builder

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"ccbisect/internal/buildcache"
	"ccbisect/internal/errors"
	"ccbisect/internal/project"
	"ccbisect/internal/repository"
)

// CompilerBuilder builds GCC and LLVM revisions from a git checkout and
// installs them into the artifact cache. GCC uses configure/make, LLVM uses
// cmake/ninja. Build output goes to a per-build log file inside the cache
// root rather than the tool's own log stream.
type CompilerBuilder struct {
	repos     map[project.Project]*repository.Repo
	cacheRoot string
	jobs      int
	log       *slog.Logger
}

// NewCompilerBuilder creates a builder installing into cacheRoot. jobs <= 0
// means one job per CPU.
func NewCompilerBuilder(repos map[project.Project]*repository.Repo, cacheRoot string, jobs int, log *slog.Logger) *CompilerBuilder {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	return &CompilerBuilder{repos: repos, cacheRoot: cacheRoot, jobs: jobs, log: log}
}

// Build returns the artifact for commit, serving cache hits without running
// any build. A failed compile removes the partial install directory and
// returns a BUILD_FAILED error.
func (b *CompilerBuilder) Build(ctx context.Context, proj project.Project, commit repository.Commit) (Artifact, error) {
	art := Artifact{Project: proj, Commit: commit, Dir: buildcache.ArtifactDir(proj, b.cacheRoot, commit)}
	if _, err := os.Stat(art.CompilerPath()); err == nil {
		b.log.Debug("build cache hit", "project", proj.String(), "commit", string(commit))
		return art, nil
	}

	repo, ok := b.repos[proj]
	if !ok {
		return Artifact{}, errors.Newf(errors.InternalError, "no repository configured for %s", proj)
	}

	worktree, err := os.MkdirTemp("", "ccbisect-build-")
	if err != nil {
		return Artifact{}, errors.New(errors.BuildFailed, "cannot create build worktree", err)
	}
	defer os.RemoveAll(worktree)

	if err := repo.AddWorktree(ctx, worktree, commit); err != nil {
		return Artifact{}, errors.New(errors.BuildFailed, "checkout of "+string(commit)+" failed", err)
	}
	defer repo.RemoveWorktree(context.WithoutCancel(ctx), worktree)

	b.log.Info("building compiler", "project", proj.String(), "commit", string(commit), "jobs", b.jobs)

	logPath := art.Dir + ".build.log"
	if err := os.MkdirAll(b.cacheRoot, 0755); err != nil {
		return Artifact{}, errors.New(errors.BuildFailed, "cannot create cache root", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return Artifact{}, errors.New(errors.BuildFailed, "cannot open build log", err)
	}
	defer logFile.Close()

	switch proj {
	case project.GCC:
		err = b.buildGCC(ctx, worktree, art.Dir, logFile)
	case project.LLVM:
		err = b.buildLLVM(ctx, worktree, art.Dir, logFile)
	default:
		err = errors.Newf(errors.InternalError, "unknown project %s", proj)
	}
	if err != nil {
		os.RemoveAll(art.Dir)
		return Artifact{}, errors.New(errors.BuildFailed,
			"build of "+proj.String()+" at "+string(commit)+" failed (see "+logPath+")", err)
	}

	if _, err := os.Stat(art.CompilerPath()); err != nil {
		os.RemoveAll(art.Dir)
		return Artifact{}, errors.New(errors.BuildFailed,
			"build finished but "+art.CompilerPath()+" is missing", err)
	}
	return art, nil
}

func (b *CompilerBuilder) buildGCC(ctx context.Context, worktree, prefix string, logFile *os.File) error {
	buildDir := filepath.Join(worktree, "build")
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		return err
	}

	steps := [][]string{
		{"../configure",
			"--prefix=" + prefix,
			"--disable-bootstrap",
			"--disable-multilib",
			"--enable-languages=c,c++",
			"--disable-libsanitizer",
			"--without-isl",
			"--disable-cet",
			"--disable-libstdcxx-pch",
			"--disable-static"},
		{"make", "-j" + strconv.Itoa(b.jobs)},
		{"make", "install-strip"},
	}
	return b.runSteps(ctx, buildDir, steps, logFile)
}

func (b *CompilerBuilder) buildLLVM(ctx context.Context, worktree, prefix string, logFile *os.File) error {
	buildDir := filepath.Join(worktree, "build")
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		return err
	}

	steps := [][]string{
		{"cmake", "-G", "Ninja",
			"-DCMAKE_BUILD_TYPE=Release",
			"-DCMAKE_INSTALL_PREFIX=" + prefix,
			"-DLLVM_ENABLE_PROJECTS=clang",
			"-DLLVM_TARGETS_TO_BUILD=X86",
			"-DLLVM_INCLUDE_TESTS=OFF",
			"-DLLVM_INCLUDE_BENCHMARKS=OFF",
			"-DLLVM_INCLUDE_EXAMPLES=OFF",
			"-DLLVM_INCLUDE_DOCS=OFF",
			filepath.Join(worktree, "llvm")},
		{"ninja", "-j", strconv.Itoa(b.jobs)},
		{"ninja", "install"},
	}
	return b.runSteps(ctx, buildDir, steps, logFile)
}

func (b *CompilerBuilder) runSteps(ctx context.Context, dir string, steps [][]string, logFile *os.File) error {
	for _, step := range steps {
		cmd := exec.CommandContext(ctx, step[0], step[1:]...)
		cmd.Dir = dir
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		if err := cmd.Run(); err != nil {
			return err
		}
	}
	return nil
}
