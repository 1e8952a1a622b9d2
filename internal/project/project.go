// Package project enumerates the compiler projects ccbisect can bisect.
package project

import (
	"fmt"
	"strings"
)

// Project identifies which compiler toolchain is being bisected. It
// determines the artifact-cache naming convention and the build procedure.
type Project int

const (
	// GCC is the GNU Compiler Collection.
	GCC Project = iota
	// LLVM is the LLVM project; its cached artifacts are named after clang.
	LLVM
)

// String returns the project name as used in configuration and CLI flags.
func (p Project) String() string {
	switch p {
	case GCC:
		return "gcc"
	case LLVM:
		return "llvm"
	default:
		return fmt.Sprintf("project(%d)", int(p))
	}
}

// ShortName returns the canonical short name used to prefix cached build
// directories and to name the compiler binary inside an artifact. LLVM
// artifacts are keyed by clang, the driver actually invoked.
func (p Project) ShortName() string {
	if p == LLVM {
		return "clang"
	}
	return "gcc"
}

// MainBranch returns the conventional name of the project's development branch.
func (p Project) MainBranch() string {
	if p == LLVM {
		return "main"
	}
	return "master"
}

// Parse converts a CLI or config string into a Project.
func Parse(s string) (Project, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gcc":
		return GCC, nil
	case "llvm", "clang":
		return LLVM, nil
	default:
		return GCC, fmt.Errorf("unknown project %q (expected gcc or llvm)", s)
	}
}
