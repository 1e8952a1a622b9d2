package buildcache

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"ccbisect/internal/project"
	"ccbisect/internal/repository"
)

// addBuild creates a cache entry; withBinary controls whether the compiler
// binary is present inside.
func addBuild(t *testing.T, root, name, binary string, withBinary bool) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Join(dir, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	if withBinary {
		if err := os.WriteFile(filepath.Join(dir, "bin", binary), []byte("#!/bin/sh\n"), 0755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCachedCommits(t *testing.T) {
	root := t.TempDir()

	addBuild(t, root, "gcc-trunk-aaa111", "gcc", true)
	addBuild(t, root, "gcc-releases-bbb222", "gcc", true)
	addBuild(t, root, "gcc-broken-ccc333", "gcc", false) // no binary, skipped
	addBuild(t, root, "clang-main-ddd444", "clang", true)

	got, err := CachedCommits(project.GCC, root)
	if err != nil {
		t.Fatal(err)
	}

	want := map[repository.Commit]bool{"aaa111": true, "bbb222": true}
	if len(got) != len(want) {
		t.Fatalf("CachedCommits = %v, want commits %v", got, want)
	}
	for _, c := range got {
		if !want[c] {
			t.Errorf("unexpected commit %s", c)
		}
	}
}

func TestCachedCommitsLLVMUsesClang(t *testing.T) {
	root := t.TempDir()

	addBuild(t, root, "clang-main-ddd444", "clang", true)
	addBuild(t, root, "gcc-trunk-aaa111", "gcc", true)

	got, err := CachedCommits(project.LLVM, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "ddd444" {
		t.Errorf("CachedCommits(LLVM) = %v, want [ddd444]", got)
	}
}

func TestCachedCommitsSkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()

	addBuild(t, root, "gcc-trunk-aaa111", "gcc", true)
	if err := os.Symlink(filepath.Join(root, "gcc-trunk-aaa111"), filepath.Join(root, "gcc-latest-eee555")); err != nil {
		t.Fatal(err)
	}

	got, err := CachedCommits(project.GCC, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "aaa111" {
		t.Errorf("CachedCommits = %v, want [aaa111]", got)
	}
}

func TestCachedCommitsMissingRoot(t *testing.T) {
	if _, err := CachedCommits(project.GCC, filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("missing cache root should be an error")
	}
}

func TestArtifactDir(t *testing.T) {
	got := ArtifactDir(project.LLVM, "/cache", "abc123")
	want := filepath.Join("/cache", "clang-abc123")
	if got != want {
		t.Errorf("ArtifactDir = %q, want %q", got, want)
	}
}
