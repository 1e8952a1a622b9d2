package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ccbisect/internal/bisect"
	"ccbisect/internal/buildcache"
	"ccbisect/internal/builder"
	"ccbisect/internal/casefile"
	"ccbisect/internal/check"
	"ccbisect/internal/config"
	"ccbisect/internal/errors"
	"ccbisect/internal/project"
	"ccbisect/internal/repository"
	"ccbisect/internal/storage"
)

var (
	runProject  string
	runGood     string
	runBad      string
	runFix      bool
	runScript   string
	runCase     string
	runRepo     string
	runCacheDir string
	runJobs     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bisect a compiler behavior between two revisions",
	Long: `Bisect the first-parent history between a good and a bad revision.

The behavior under investigation is judged either by a test script
(--test, run once per candidate with CCBISECT_COMPILER pointing at the
candidate's compiler; exit 0 = absent, 125 = skip, anything else =
present) or by a case archive (--case) whose dead-code marker must
survive compilation to count as present.

Examples:
  ccbisect run --project=gcc --good=releases/gcc-12.1.0 --bad=trunk --test='./check.sh'
  ccbisect run --project=llvm --case=crash-12345.tar.zst
  ccbisect run --project=gcc --good=trunk --bad=releases/gcc-13.1.0 --fix --test='./check.sh'`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runProject, "project", "", "Compiler project: gcc or llvm")
	runCmd.Flags().StringVar(&runGood, "good", "", "Revision where the behavior is absent")
	runCmd.Flags().StringVar(&runBad, "bad", "", "Revision where the behavior is present")
	runCmd.Flags().BoolVar(&runFix, "fix", false, "Search for the commit that fixed the behavior")
	runCmd.Flags().StringVar(&runScript, "test", "", "Test script judging a single candidate")
	runCmd.Flags().StringVar(&runCase, "case", "", "Case archive to bisect")
	runCmd.Flags().StringVar(&runRepo, "repo", "", "Compiler repository checkout (overrides config)")
	runCmd.Flags().StringVar(&runCacheDir, "cache-dir", "", "Artifact cache directory (overrides config)")
	runCmd.Flags().IntVar(&runJobs, "jobs", 0, "Build parallelism (overrides config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	req, test, err := buildRequest(logger)
	if err != nil {
		return err
	}

	repoCfg := cfg.RepoFor(req.Project.String())
	repoPath := runRepo
	if repoPath == "" {
		repoPath = repoCfg.Repo
	}
	branch := repoCfg.MainBranch
	if branch == "" {
		branch = req.Project.MainBranch()
	}
	repo, err := repository.Open(repoPath, repository.Revision(branch))
	if err != nil {
		return err
	}

	cacheDir := runCacheDir
	if cacheDir == "" {
		cacheDir = cfg.CacheDir
	}
	jobs := runJobs
	if jobs == 0 {
		jobs = cfg.Jobs
	}

	bld := builder.NewCompilerBuilder(
		map[project.Project]*repository.Repo{req.Project: repo},
		cacheDir, jobs, logger)

	bisector := &bisect.Bisector{
		Repo:             repo,
		Builder:          bld,
		Cache:            buildcache.DirIndex{Root: cacheDir},
		Log:              logger,
		MaxBuildFailures: cfg.Bisect.MaxBuildFailures,
		MaxTotalFailures: cfg.Bisect.MaxTotalFailures,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	result, runErr := bisector.Run(ctx, test, req)
	finished := time.Now()

	recordRun(cfg, logger, req, result, runErr, started, finished)

	if runErr != nil {
		return runErr
	}

	if runCase != "" {
		if err := writeBackResult(runCase, string(result.Culprit)); err != nil {
			logger.Warn("cannot record result in case archive", "error", err)
		}
	}

	fmt.Printf("culprit: %s\n", result.Culprit)
	fmt.Printf("steps: %d, builds: %d (%d failed), tests: %d (%d from cache)\n",
		result.Stats.Steps, result.Stats.Builds, result.Stats.BuildFailures,
		result.Stats.TestRuns, result.Stats.CacheTests)
	return nil
}

// buildRequest assembles the bisection request and test from the flags,
// filling endpoints in from the case archive when one is given.
func buildRequest(logger *slog.Logger) (bisect.Request, bisect.Test, error) {
	var req bisect.Request

	good, bad := runGood, runBad
	var test bisect.Test

	switch {
	case runCase != "" && runScript != "":
		return req, nil, fmt.Errorf("--case and --test are mutually exclusive")

	case runCase != "":
		c, err := casefile.Load(runCase)
		if err != nil {
			return req, nil, err
		}
		if runProject == "" {
			runProject = c.Project
		}
		if good == "" {
			good = c.Good
		}
		if bad == "" {
			bad = c.Bad
		}
		if c.Marker == "" {
			return req, nil, errors.Newf(errors.CaseInvalid,
				"case %s has no marker; use --test instead", c.ID)
		}
		test = &check.MarkerTest{
			Code:     c.Code,
			Marker:   c.Marker,
			OptLevel: c.OptLevel,
			Flags:    c.Flags,
			Log:      logger,
		}

	case runScript != "":
		test = &check.ScriptTest{
			Command: []string{"/bin/sh", "-c", runScript},
			Log:     logger,
		}

	default:
		return req, nil, fmt.Errorf("one of --test or --case is required")
	}

	if runProject == "" || good == "" || bad == "" {
		return req, nil, fmt.Errorf("--project, --good and --bad are required")
	}
	proj, err := project.Parse(runProject)
	if err != nil {
		return req, nil, err
	}

	req = bisect.Request{
		Project: proj,
		Good:    repository.Revision(good),
		Bad:     repository.Revision(bad),
	}
	if runFix {
		req.Mode = bisect.ModeFix
	}
	return req, test, nil
}

// writeBackResult stores the verified boundary in the case archive so the
// case carries its own answer from then on.
func writeBackResult(path, culprit string) error {
	c, err := casefile.Load(path)
	if err != nil {
		return err
	}
	c.Result = culprit
	return casefile.Save(path, c)
}

// recordRun persists the outcome; persistence failure only logs, the
// bisection result is already in hand.
func recordRun(cfg *config.Config, logger *slog.Logger, req bisect.Request, result *bisect.Result, runErr error, started, finished time.Time) {
	store, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Warn("cannot open run database", "error", err)
		return
	}
	defer func() { _ = store.Close() }()

	run := &storage.Run{
		Project:    req.Project.String(),
		Good:       string(req.Good),
		Bad:        string(req.Bad),
		Mode:       req.Mode.String(),
		Status:     "found",
		StartedAt:  started,
		FinishedAt: finished,
	}
	if runErr != nil {
		run.Status = "aborted"
		run.Error = runErr.Error()
	}
	if result != nil {
		run.Culprit = string(result.Culprit)
		run.Stats = result.Stats
	}
	if err := store.SaveRun(run); err != nil {
		logger.Warn("cannot record run", "error", err)
	}
}
