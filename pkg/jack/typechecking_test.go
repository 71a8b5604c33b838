package jack_test

import (
	"strings"
	"testing"

	"github.com/hmny-tetris/toolchain/pkg/jack"
)

func buildProgram(t *testing.T, sources map[string]string) jack.Program {
	t.Helper()
	program := jack.Program{}
	for name, source := range sources {
		parser, err := jack.NewParser(strings.NewReader(source))
		if err != nil {
			t.Fatalf("unexpected error building parser for %s: %v", name, err)
		}
		class, err := parser.Parse()
		if err != nil {
			t.Fatalf("unexpected error parsing %s: %v", name, err)
		}
		program[name] = class
	}
	return program
}

func TestTypeCheckAcceptsWellTypedProgram(t *testing.T) {
	program := buildProgram(t, map[string]string{
		"Main": `
			class Main {
				function void main() {
					var int x;
					var boolean flag;
					let x = 1 + 2;
					let flag = (x < 10) & true;
					if (flag) {
						let x = x - 1;
					}
					while (flag) {
						let x = x + 1;
					}
					return;
				}
			}
		`,
	})

	checker := jack.NewTypeChecker(program)
	if ok, err := checker.Check(); !ok || err != nil {
		t.Fatalf("expected a well-typed program to pass, got ok=%v err=%v", ok, err)
	}
}

func TestTypeCheckRejectsBooleanArithmetic(t *testing.T) {
	program := buildProgram(t, map[string]string{
		"Main": `
			class Main {
				function void main() {
					var boolean flag;
					let flag = true + false;
					return;
				}
			}
		`,
	})

	checker := jack.NewTypeChecker(program)
	if ok, err := checker.Check(); ok || err == nil {
		t.Fatalf("expected an arithmetic-on-booleans program to fail type check")
	}
}

func TestTypeCheckRejectsNonBooleanCondition(t *testing.T) {
	program := buildProgram(t, map[string]string{
		"Main": `
			class Main {
				function void main() {
					if (1) {
						return;
					}
					return;
				}
			}
		`,
	})

	checker := jack.NewTypeChecker(program)
	if ok, err := checker.Check(); ok || err == nil {
		t.Fatalf("expected a non-boolean 'if' condition to fail type check")
	}
}

func TestTypeCheckRejectsMismatchedReturnType(t *testing.T) {
	program := buildProgram(t, map[string]string{
		"Main": `
			class Main {
				function boolean main() {
					return 1;
				}
			}
		`,
	})

	checker := jack.NewTypeChecker(program)
	if ok, err := checker.Check(); ok || err == nil {
		t.Fatalf("expected returning an 'int' from a 'boolean' function to fail type check")
	}
}

func TestTypeCheckResolvesCallsAcrossClasses(t *testing.T) {
	program := buildProgram(t, map[string]string{
		"Helper": `
			class Helper {
				function int compute(int x) {
					return x + 1;
				}
			}
		`,
		"Main": `
			class Main {
				function void main() {
					var int result;
					let result = Helper.compute(41);
					return;
				}
			}
		`,
	})

	checker := jack.NewTypeChecker(program)
	if ok, err := checker.Check(); !ok || err != nil {
		t.Fatalf("expected a cross-class call to type-check, got ok=%v err=%v", ok, err)
	}
}

func TestTypeCheckResolvesStandardLibraryCalls(t *testing.T) {
	program := buildProgram(t, map[string]string{
		"Main": `
			class Main {
				function void main() {
					do Output.printInt(Math.abs(-5));
					return;
				}
			}
		`,
	})

	checker := jack.NewTypeChecker(program)
	if ok, err := checker.Check(); !ok || err != nil {
		t.Fatalf("expected calls into the stdlib ABI to type-check, got ok=%v err=%v", ok, err)
	}
}

func TestTypeCheckAllowsNullAssignedToObject(t *testing.T) {
	program := buildProgram(t, map[string]string{
		"Main": `
			class Main {
				function void main() {
					var Array a;
					let a = null;
					return;
				}
			}
		`,
	})

	checker := jack.NewTypeChecker(program)
	if ok, err := checker.Check(); !ok || err != nil {
		t.Fatalf("expected 'null' to be assignable to an object-typed variable, got ok=%v err=%v", ok, err)
	}
}
