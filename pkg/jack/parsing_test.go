package jack_test

import (
	"strings"
	"testing"

	"github.com/hmny-tetris/toolchain/pkg/jack"
)

func parseClass(t *testing.T, source string) jack.Class {
	t.Helper()
	parser, err := jack.NewParser(strings.NewReader(source))
	if err != nil {
		t.Fatalf("unexpected error building parser: %v", err)
	}
	class, err := parser.Parse()
	if err != nil {
		t.Fatalf("unexpected error parsing class: %v", err)
	}
	return class
}

func TestParseClassFieldsAndSubroutineShape(t *testing.T) {
	source := `
		class Point {
			field int x, y;
			static int count;

			constructor Point new(int ax, int ay) {
				let x = ax;
				let y = ay;
				return this;
			}

			method int getX() {
				return x;
			}
		}
	`

	class := parseClass(t, source)
	if class.Name != "Point" {
		t.Fatalf("expected class name 'Point', got %q", class.Name)
	}
	if class.Fields.Size() != 3 {
		t.Fatalf("expected 3 fields, got %d", class.Fields.Size())
	}

	xField, ok := class.Fields.Get("x")
	if !ok || xField.VarType != jack.Field || xField.DataType.Main != jack.Int {
		t.Fatalf("expected field 'x' to be an int field, got %+v (ok=%v)", xField, ok)
	}
	countField, ok := class.Fields.Get("count")
	if !ok || countField.VarType != jack.Static {
		t.Fatalf("expected 'count' to be a static field, got %+v (ok=%v)", countField, ok)
	}

	if class.Subroutines.Size() != 2 {
		t.Fatalf("expected 2 subroutines, got %d", class.Subroutines.Size())
	}

	ctor, ok := class.Subroutines.Get("new")
	if !ok || ctor.Type != jack.Constructor {
		t.Fatalf("expected a 'new' constructor, got %+v (ok=%v)", ctor, ok)
	}
	if ctor.Arguments.Size() != 2 {
		t.Fatalf("expected the constructor to take 2 arguments, got %d", ctor.Arguments.Size())
	}
	if len(ctor.Statements) != 3 {
		t.Fatalf("expected 3 statements in the constructor body, got %d", len(ctor.Statements))
	}
}

func TestParseLetWithArrayTarget(t *testing.T) {
	source := `
		class Main {
			function void main() {
				var Array a;
				let a[0] = 1;
				return;
			}
		}
	`
	class := parseClass(t, source)
	main, _ := class.Subroutines.Get("main")

	var letStmt jack.LetStmt
	for _, stmt := range main.Statements {
		if ls, ok := stmt.(jack.LetStmt); ok {
			letStmt = ls
		}
	}

	arrayExpr, ok := letStmt.Lhs.(jack.ArrayExpr)
	if !ok || arrayExpr.Var != "a" {
		t.Fatalf("expected an ArrayExpr on the LHS targeting 'a', got %+v (ok=%v)", letStmt.Lhs, ok)
	}
	literal, ok := arrayExpr.Index.(jack.LiteralExpr)
	if !ok || literal.Value != "0" {
		t.Fatalf("expected the array index to be the literal '0', got %+v (ok=%v)", arrayExpr.Index, ok)
	}
}

func TestParseExpressionLeftAssociativeChain(t *testing.T) {
	source := `
		class Main {
			function int main() {
				return 1 + 2 + 3;
			}
		}
	`
	class := parseClass(t, source)
	main, _ := class.Subroutines.Get("main")
	ret := main.Statements[0].(jack.ReturnStmt)

	outer, ok := ret.Expr.(jack.BinaryExpr)
	if !ok || outer.Type != jack.Plus {
		t.Fatalf("expected the outer expression to be a Plus, got %+v (ok=%v)", ret.Expr, ok)
	}
	inner, ok := outer.Lhs.(jack.BinaryExpr)
	if !ok || inner.Type != jack.Plus {
		t.Fatalf("expected left-associative nesting '(1+2)+3', got %+v (ok=%v)", outer.Lhs, ok)
	}
}

func TestParseExternalAndLocalCalls(t *testing.T) {
	source := `
		class Main {
			function void main() {
				do Output.printString("hi");
				do helper();
				return;
			}

			function void helper() {
				return;
			}
		}
	`
	class := parseClass(t, source)
	main, _ := class.Subroutines.Get("main")

	extCall := main.Statements[0].(jack.DoStmt).FuncCall
	if !extCall.IsExtCall || extCall.Var != "Output" || extCall.FuncName != "printString" {
		t.Fatalf("expected an external call to Output.printString, got %+v", extCall)
	}

	localCall := main.Statements[1].(jack.DoStmt).FuncCall
	if localCall.IsExtCall || localCall.FuncName != "helper" {
		t.Fatalf("expected a local call to 'helper', got %+v", localCall)
	}
}

func TestParseIfElseAndWhile(t *testing.T) {
	source := `
		class Main {
			function void main() {
				if (true) {
					let x = 1;
				} else {
					let x = 2;
				}
				while (~false) {
					let x = x + 1;
				}
				return;
			}
		}
	`
	class := parseClass(t, source)
	main, _ := class.Subroutines.Get("main")

	ifStmt, ok := main.Statements[0].(jack.IfStmt)
	if !ok || len(ifStmt.ThenBlock) != 1 || len(ifStmt.ElseBlock) != 1 {
		t.Fatalf("expected an if/else with one statement per branch, got %+v (ok=%v)", ifStmt, ok)
	}

	whileStmt, ok := main.Statements[1].(jack.WhileStmt)
	if !ok || len(whileStmt.Block) != 1 {
		t.Fatalf("expected a while loop with one statement, got %+v (ok=%v)", whileStmt, ok)
	}
	unary, ok := whileStmt.Condition.(jack.UnaryExpr)
	if !ok || unary.Type != jack.BoolNot {
		t.Fatalf("expected the while condition to be a BoolNot, got %+v (ok=%v)", whileStmt.Condition, ok)
	}
}

func TestParseRejectsMalformedClass(t *testing.T) {
	parser, err := jack.NewParser(strings.NewReader("class Main { function void main("))
	if err != nil {
		t.Fatalf("unexpected error building parser: %v", err)
	}
	if _, err := parser.Parse(); err == nil {
		t.Fatalf("expected a parse error for truncated input")
	}
}
