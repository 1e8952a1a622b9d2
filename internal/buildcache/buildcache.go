// Package buildcache enumerates compiler builds already present in the
// artifact cache.
//
// The cache is a flat directory of builds named <shortname>-...-<commit>,
// e.g. gcc-trunk-a1b2c3 or clang-15.0.0-d4e5f6. Enumeration is a pure
// filesystem scan; it never triggers a build.
package buildcache

import (
	"os"
	"path/filepath"
	"strings"

	"ccbisect/internal/project"
	"ccbisect/internal/repository"
)

// CachedCommits returns the commits under cacheRoot that already have a
// usable build of proj. An entry is usable when it is a real directory (not
// a symlink), its name carries the project's short-name prefix, and it
// contains the expected compiler binary. The commit identifier is the
// suffix of the directory name after the final '-'.
func CachedCommits(proj project.Project, cacheRoot string) ([]repository.Commit, error) {
	entries, err := os.ReadDir(cacheRoot)
	if err != nil {
		return nil, err
	}

	short := proj.ShortName()
	var commits []repository.Commit
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		if !strings.HasPrefix(entry.Name(), short) {
			continue
		}
		if _, err := os.Stat(filepath.Join(cacheRoot, entry.Name(), "bin", short)); err != nil {
			continue
		}
		idx := strings.LastIndex(entry.Name(), "-")
		if idx < 0 || idx == len(entry.Name())-1 {
			continue
		}
		commits = append(commits, repository.Commit(entry.Name()[idx+1:]))
	}
	return commits, nil
}

// DirIndex adapts a cache root directory to a per-project commit
// enumerator, so the scan stays swappable for a proper index.
type DirIndex struct {
	Root string
}

// CachedCommits lists the usable builds for proj under the index root.
func (d DirIndex) CachedCommits(proj project.Project) ([]repository.Commit, error) {
	return CachedCommits(proj, d.Root)
}

// ArtifactDir returns the cache directory a build of commit would occupy.
func ArtifactDir(proj project.Project, cacheRoot string, commit repository.Commit) string {
	return filepath.Join(cacheRoot, proj.ShortName()+"-"+string(commit))
}
