package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ccbisect/internal/buildcache"
	"ccbisect/internal/project"
)

var (
	cachedProject  string
	cachedCacheDir string
)

var cachedCmd = &cobra.Command{
	Use:   "cached",
	Short: "List commits with a cached compiler build",
	Long: `List the commits in the artifact cache that have a usable compiler build.

These are the commits the in-cache bisection phase can test without
building anything.

Examples:
  ccbisect cached --project=gcc
  ccbisect cached --project=llvm --cache-dir=/scratch/artifacts`,
	RunE: runCached,
}

func init() {
	cachedCmd.Flags().StringVar(&cachedProject, "project", "gcc", "Compiler project: gcc or llvm")
	cachedCmd.Flags().StringVar(&cachedCacheDir, "cache-dir", "", "Artifact cache directory (overrides config)")
	rootCmd.AddCommand(cachedCmd)
}

func runCached(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	proj, err := project.Parse(cachedProject)
	if err != nil {
		return err
	}

	cacheDir := cachedCacheDir
	if cacheDir == "" {
		cacheDir = cfg.CacheDir
	}

	commits, err := buildcache.CachedCommits(proj, cacheDir)
	if err != nil {
		return err
	}

	for _, c := range commits {
		fmt.Println(c)
	}
	fmt.Printf("%d cached %s builds in %s\n", len(commits), proj.ShortName(), cacheDir)
	return nil
}
