// Package check provides interestingness-test implementations for the
// bisection engine. Anything satisfying bisect.Test can drive a bisection;
// these are the two the CLI wires up.
package check

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/exec"

	"ccbisect/internal/bisect"
	"ccbisect/internal/builder"
	"ccbisect/internal/repository"
)

// ScriptTest runs a user-supplied command once per candidate commit and
// maps its exit status git-bisect-run style: 0 means not interesting, 125
// means the commit cannot be judged, anything else means interesting. The
// commit and artifact are exposed through the environment:
//
//	CCBISECT_COMMIT    the commit under test
//	CCBISECT_ARTIFACT  the artifact install prefix
//	CCBISECT_COMPILER  the compiler driver inside the artifact
type ScriptTest struct {
	Command []string
	Dir     string
	Log     *slog.Logger
}

// Check implements bisect.Test.
func (s *ScriptTest) Check(ctx context.Context, commit repository.Commit, art builder.Artifact) (bisect.Verdict, error) {
	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(),
		"CCBISECT_COMMIT="+string(commit),
		"CCBISECT_ARTIFACT="+art.Dir,
		"CCBISECT_COMPILER="+art.CompilerPath(),
	)

	err := cmd.Run()
	if err == nil {
		return bisect.NotInteresting, nil
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		if exitErr.ExitCode() == 125 {
			s.Log.Debug("test script skipped commit", "commit", string(commit))
			return bisect.Indeterminate, nil
		}
		return bisect.Interesting, nil
	}
	// The script itself could not be run at all.
	return bisect.Indeterminate, err
}
