package main

import (
	"path/filepath"
	"testing"

	"ccbisect/internal/bisect"
	"ccbisect/internal/casefile"
	"ccbisect/internal/slogutil"
)

func resetRunFlags(t *testing.T) {
	t.Helper()
	runProject, runGood, runBad = "", "", ""
	runFix = false
	runScript, runCase = "", ""
	t.Cleanup(func() {
		runProject, runGood, runBad = "", "", ""
		runFix = false
		runScript, runCase = "", ""
	})
}

func TestBuildRequestRequiresATest(t *testing.T) {
	resetRunFlags(t)
	runProject, runGood, runBad = "gcc", "g", "b"

	if _, _, err := buildRequest(slogutil.NewDiscardLogger()); err == nil {
		t.Error("expected an error without --test or --case")
	}
}

func TestBuildRequestScript(t *testing.T) {
	resetRunFlags(t)
	runProject, runGood, runBad = "llvm", "llvmorg-15.0.0", "main"
	runScript = "./check.sh"
	runFix = true

	req, test, err := buildRequest(slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if test == nil {
		t.Fatal("no test constructed")
	}
	if req.Mode != bisect.ModeFix {
		t.Errorf("mode = %v, want fix", req.Mode)
	}
	if string(req.Good) != "llvmorg-15.0.0" || string(req.Bad) != "main" {
		t.Errorf("endpoints = %s..%s", req.Good, req.Bad)
	}
}

func TestBuildRequestCaseFillsEndpoints(t *testing.T) {
	resetRunFlags(t)

	c := casefile.New("gcc", "releases/gcc-12.1.0", "trunk",
		"void DCEMarker0_(void);\nint main(void) { return 0; }\n")
	c.Marker = "DCEMarker0_"
	c.OptLevel = "2"
	path := filepath.Join(t.TempDir(), "case.tar.zst")
	if err := casefile.Save(path, c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	runCase = path

	req, test, err := buildRequest(slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if test == nil {
		t.Fatal("no test constructed")
	}
	if string(req.Good) != "releases/gcc-12.1.0" || string(req.Bad) != "trunk" {
		t.Errorf("endpoints = %s..%s", req.Good, req.Bad)
	}
}

func TestBuildRequestRejectsScriptAndCase(t *testing.T) {
	resetRunFlags(t)
	runScript = "./check.sh"
	runCase = "case.tar.zst"

	if _, _, err := buildRequest(slogutil.NewDiscardLogger()); err == nil {
		t.Error("expected an error for --test together with --case")
	}
}
