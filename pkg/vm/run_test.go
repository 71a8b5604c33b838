package vm_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hmny-tetris/toolchain/pkg/vm"
)

func TestRunSingleFileNoBootstrap(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "SimpleAdd.vm")
	content := "push constant 7\npush constant 8\nadd\n"
	if err := os.WriteFile(source, []byte(content), 0644); err != nil {
		t.Fatalf("unable to seed fixture: %v", err)
	}

	if err := vm.Run(source); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(dir, "SimpleAdd.asm"))
	if err != nil {
		t.Fatalf("expected a sibling '.asm' file, got: %v", err)
	}
	if strings.Contains(string(out), "Sys.init") {
		t.Errorf("expected no bootstrap sequence without a 'Sys.init' declaration, got:\n%s", out)
	}
}

func TestRunDirectoryBootstrapsWhenSysInitDeclared(t *testing.T) {
	dir := t.TempDir()
	dirname := filepath.Base(dir)

	mainSrc := "function Sys.init 0\ncall Main.run 0\nreturn\n"
	if err := os.WriteFile(filepath.Join(dir, "Sys.vm"), []byte(mainSrc), 0644); err != nil {
		t.Fatalf("unable to seed fixture: %v", err)
	}
	runSrc := "function Main.run 0\npush constant 0\nreturn\n"
	if err := os.WriteFile(filepath.Join(dir, "Main.vm"), []byte(runSrc), 0644); err != nil {
		t.Fatalf("unable to seed fixture: %v", err)
	}

	if err := vm.Run(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(dir, dirname+".asm"))
	if err != nil {
		t.Fatalf("expected '<dirname>/<dirname>.asm' to be produced, got: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if lines[0] != "@256" || lines[1] != "D=A" {
		t.Fatalf("expected the bootstrap prelude to come first, got: %v", lines[:2])
	}
}

func TestRunRejectsMissingPath(t *testing.T) {
	if err := vm.Run(filepath.Join(t.TempDir(), "missing.vm")); err == nil {
		t.Fatal("expected an error for a nonexistent input path")
	}
}
