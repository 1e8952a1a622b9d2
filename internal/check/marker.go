package check

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ccbisect/internal/bisect"
	"ccbisect/internal/builder"
	"ccbisect/internal/repository"
)

// MarkerTest judges a commit by dead-code elimination: the case source
// calls a marker function that is dead under correct optimization. The
// commit is interesting when the compiler built from it fails to eliminate
// the marker call, i.e. the marker still appears in the emitted assembly.
type MarkerTest struct {
	Code     string // C source of the case
	Marker   string // marker function name, e.g. DCEMarker0_
	OptLevel string // optimization level without the -O prefix
	Flags    []string
	Log      *slog.Logger
}

// Check implements bisect.Test. A compiler that crashes or rejects the case
// at this commit yields Indeterminate, not a verdict.
func (m *MarkerTest) Check(ctx context.Context, commit repository.Commit, art builder.Artifact) (bisect.Verdict, error) {
	dir, err := os.MkdirTemp("", "ccbisect-case-")
	if err != nil {
		return bisect.Indeterminate, err
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "case.c")
	if err := os.WriteFile(src, []byte(m.Code), 0644); err != nil {
		return bisect.Indeterminate, err
	}

	asm, err := compileToAssembly(ctx, art.CompilerPath(), src, "-O"+m.OptLevel, m.Flags)
	if err != nil {
		m.Log.Debug("compiler unusable at commit", "commit", string(commit), "error", err)
		return bisect.Indeterminate, nil
	}

	if markerAlive(asm, m.Marker) {
		return bisect.Interesting, nil
	}
	return bisect.NotInteresting, nil
}

// markerAlive reports whether the marker function is still referenced in
// the assembly. Marker functions are declared but never defined, so any
// reference outside a comment means the call survived.
func markerAlive(asm, marker string) bool {
	for _, line := range strings.Split(asm, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
