package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ccbisect/internal/builder"
	"ccbisect/internal/project"
	"ccbisect/internal/repository"
)

var (
	buildProject  string
	buildRepo     string
	buildCacheDir string
	buildJobs     int
)

var buildCmd = &cobra.Command{
	Use:   "build <revision>...",
	Short: "Build compiler revisions into the artifact cache",
	Long: `Build one or more revisions of the compiler and install them into the
artifact cache, where later bisections will find them.

Examples:
  ccbisect build --project=gcc releases/gcc-13.1.0
  ccbisect build --project=llvm llvmorg-16.0.0 llvmorg-17.0.1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildProject, "project", "gcc", "Compiler project: gcc or llvm")
	buildCmd.Flags().StringVar(&buildRepo, "repo", "", "Compiler repository checkout (overrides config)")
	buildCmd.Flags().StringVar(&buildCacheDir, "cache-dir", "", "Artifact cache directory (overrides config)")
	buildCmd.Flags().IntVar(&buildJobs, "jobs", 0, "Build parallelism (overrides config)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	proj, err := project.Parse(buildProject)
	if err != nil {
		return err
	}

	repoCfg := cfg.RepoFor(proj.String())
	repoPath := buildRepo
	if repoPath == "" {
		repoPath = repoCfg.Repo
	}
	branch := repoCfg.MainBranch
	if branch == "" {
		branch = proj.MainBranch()
	}
	repo, err := repository.Open(repoPath, repository.Revision(branch))
	if err != nil {
		return err
	}

	cacheDir := buildCacheDir
	if cacheDir == "" {
		cacheDir = cfg.CacheDir
	}
	jobs := buildJobs
	if jobs == 0 {
		jobs = cfg.Jobs
	}

	bld := builder.NewCompilerBuilder(
		map[project.Project]*repository.Repo{proj: repo},
		cacheDir, jobs, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, rev := range args {
		commit, err := repo.Resolve(ctx, repository.Revision(rev))
		if err != nil {
			return err
		}
		art, err := bld.Build(ctx, proj, commit)
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", rev, art.Dir)
	}
	return nil
}
