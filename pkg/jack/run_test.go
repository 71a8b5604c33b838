package jack_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hmny-tetris/toolchain/pkg/jack"
)

func TestRunCompilesSingleClassToVm(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "Main.jack")
	content := `
		class Main {
			function void main() {
				do Output.printString("hi");
				return;
			}
		}
	`
	if err := os.WriteFile(source, []byte(content), 0644); err != nil {
		t.Fatalf("unable to seed fixture: %v", err)
	}

	if err := jack.Run(source, true, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(dir, "Main.vm"))
	if err != nil {
		t.Fatalf("expected a sibling '.vm' file, got: %v", err)
	}
	if !strings.Contains(string(out), "function Main.main") {
		t.Errorf("expected the compiled output to declare 'Main.main', got:\n%s", out)
	}
	if !strings.Contains(string(out), "call Output.printString") {
		t.Errorf("expected the compiled output to call 'Output.printString', got:\n%s", out)
	}
}

func TestRunCompilesDirectoryOfClasses(t *testing.T) {
	dir := t.TempDir()

	mainSrc := `
		class Main {
			function void main() {
				do Helper.run();
				return;
			}
		}
	`
	helperSrc := `
		class Helper {
			function void run() {
				return;
			}
		}
	`
	if err := os.WriteFile(filepath.Join(dir, "Main.jack"), []byte(mainSrc), 0644); err != nil {
		t.Fatalf("unable to seed fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Helper.jack"), []byte(helperSrc), 0644); err != nil {
		t.Fatalf("unable to seed fixture: %v", err)
	}

	if err := jack.Run(dir, false, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "Main.vm")); err != nil {
		t.Errorf("expected 'Main.vm' to be produced, got: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Helper.vm")); err != nil {
		t.Errorf("expected 'Helper.vm' to be produced, got: %v", err)
	}
}

func TestRunTypecheckRejectsIllTypedProgram(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "Main.jack")
	content := `
		class Main {
			function void main() {
				var boolean flag;
				let flag = 1 + true;
				return;
			}
		}
	`
	if err := os.WriteFile(source, []byte(content), 0644); err != nil {
		t.Fatalf("unable to seed fixture: %v", err)
	}

	if err := jack.Run(source, false, true); err == nil {
		t.Fatalf("expected a type error to abort compilation")
	}
}

func TestRunRejectsMissingPath(t *testing.T) {
	if err := jack.Run(filepath.Join(t.TempDir(), "missing.jack"), false, false); err == nil {
		t.Fatalf("expected an error for a missing input path")
	}
}
