package check

import (
	"context"
	"os/exec"
)

// compileToAssembly runs the compiler with -S and returns the assembly
// text. Any non-zero exit is the caller's signal to skip the commit.
func compileToAssembly(ctx context.Context, compiler, src, optFlag string, extraFlags []string) (string, error) {
	args := []string{optFlag, "-S", "-o", "-", src}
	args = append(args, extraFlags...)
	cmd := exec.CommandContext(ctx, compiler, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
