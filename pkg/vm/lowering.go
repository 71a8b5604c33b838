package vm

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hmny-tetris/toolchain/pkg/asm"
)

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' (one Module per translation unit/file) and produces
// its 'asm.Program' counterpart, ready for the Assembler's own Lowerer + CodeGenerator.
//
// Modules are lowered in name-sorted order purely for build determinism (two lowering
// runs on the same input always produce byte-identical assembly); the VM spec itself
// does not care about module ordering since cross-module calls are resolved by the
// Assembler's label table, not by position.
type Lowerer struct {
	program Program // Every translation unit (.vm file), keyed by file name

	className string // Class/file name of the module currently being lowered, used for 'static' symbols
	current   string // Fully qualified name of the function currently being lowered, used for label scoping
	nUnique   uint   // Counter to mint globally unique labels for comparisons and call return-addresses
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
func NewLowerer(p Program) Lowerer { return Lowerer{program: p} }

// Triggers the lowering process on every module of the program, in a deterministic order.
func (l *Lowerer) Lower() (asm.Program, error) {
	names := make([]string, 0, len(l.program))
	for name := range l.program {
		names = append(names, name)
	}
	sort.Strings(names)

	out := asm.Program{}
	for _, name := range names {
		l.className = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		for _, op := range l.program[name] {
			insts, err := l.handleOperation(op)
			if err != nil {
				return nil, fmt.Errorf("module '%s': %w", name, err)
			}
			out = append(out, insts...)
		}
	}

	return out, nil
}

// Bootstrap produces the standard nand2tetris bootstrap sequence: initializes SP to 256
// (the first usable RAM cell above the reserved segments) and calls 'Sys.init' with no
// arguments. Callers prepend it to the lowered program iff any module declares Sys.init
// (see cmd/vm_translator, spec.md §4.2 and §6).
func Bootstrap() (asm.Program, error) {
	l := Lowerer{}
	call, err := l.handleFuncCallOp(FuncCallOp{Name: "Sys.init", NArgs: 0})
	if err != nil {
		return nil, err
	}

	init := asm.Program{
		asm.AInstruction{Location: "256"}, asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "D"},
	}
	return append(init, call...), nil
}

// Dispatches a single 'vm.Operation' to its specialized handler.
func (l *Lowerer) handleOperation(op Operation) ([]asm.Statement, error) {
	switch top := op.(type) {
	case MemoryOp:
		return l.handleMemoryOp(top)
	case ArithmeticOp:
		return l.handleArithmeticOp(top)
	case LabelDecl:
		return l.handleLabelDecl(top)
	case GotoOp:
		return l.handleGotoOp(top)
	case FuncDecl:
		return l.handleFuncDecl(top)
	case FuncCallOp:
		return l.handleFuncCallOp(top)
	case ReturnOp:
		return l.handleReturnOp(top)
	default:
		return nil, fmt.Errorf("unrecognized operation '%T'", op)
	}
}

// ----------------------------------------------------------------------------
// Shared stack primitives

// Pushes the value currently held in the D register onto the stack and advances SP.
func pushD() []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M+1"},
	}
}

// Retreats SP and loads the popped value into the D register.
func popD() []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M-1"},
		asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "D", Comp: "M"},
	}
}

// Pushes a literal numeric constant by first materializing it in the D register.
func pushConstant(value string) []asm.Statement {
	insts := []asm.Statement{asm.AInstruction{Location: value}, asm.CInstruction{Dest: "D", Comp: "A"}}
	return append(insts, pushD()...)
}

// Mints a fresh, program-wide unique label built around 'prefix'.
func (l *Lowerer) nextLabel(prefix string) string {
	l.nUnique++
	return fmt.Sprintf("%s_%d", prefix, l.nUnique)
}

// Namespaces a user-declared label to the function it was declared in, so that the
// same label text reused across two functions never collides (spec.md §4.2, "f$Label").
func (l *Lowerer) qualify(label string) string {
	if l.current == "" {
		return label
	}
	return fmt.Sprintf("%s$%s", l.current, label)
}

// ----------------------------------------------------------------------------
// Memory Op

var segmentPointer = map[SegmentType]string{
	Local: "LCL", Argument: "ARG", This: "THIS", That: "THAT",
}

// Specialized function to lower a 'MemoryOp' operation to its 'asm.Statement' sequence.
func (l *Lowerer) handleMemoryOp(op MemoryOp) ([]asm.Statement, error) {
	switch op.Segment {
	case Constant:
		if op.Operation != Push {
			return nil, fmt.Errorf("cannot 'pop' to the virtual 'constant' segment")
		}
		return pushConstant(fmt.Sprint(op.Offset)), nil

	case Local, Argument, This, That:
		base := segmentPointer[op.Segment]
		if op.Operation == Push {
			insts := []asm.Statement{
				asm.AInstruction{Location: base}, asm.CInstruction{Dest: "D", Comp: "M"},
				asm.AInstruction{Location: fmt.Sprint(op.Offset)}, asm.CInstruction{Dest: "A", Comp: "D+A"},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}
			return append(insts, pushD()...), nil
		}

		insts := []asm.Statement{
			asm.AInstruction{Location: base}, asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(op.Offset)}, asm.CInstruction{Dest: "D", Comp: "D+A"},
			asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "M", Comp: "D"},
		}
		insts = append(insts, popD()...)
		insts = append(insts, asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "D"})
		return insts, nil

	case Temp:
		if op.Offset > 7 {
			return nil, fmt.Errorf("invalid 'temp' offset, got %d", op.Offset)
		}
		addr := fmt.Sprint(5 + op.Offset)
		if op.Operation == Push {
			insts := []asm.Statement{asm.AInstruction{Location: addr}, asm.CInstruction{Dest: "D", Comp: "M"}}
			return append(insts, pushD()...), nil
		}
		insts := popD()
		return append(insts, asm.AInstruction{Location: addr}, asm.CInstruction{Dest: "M", Comp: "D"}), nil

	case Pointer:
		if op.Offset > 1 {
			return nil, fmt.Errorf("invalid 'pointer' offset, got %d", op.Offset)
		}
		target := "THIS"
		if op.Offset == 1 {
			target = "THAT"
		}
		if op.Operation == Push {
			insts := []asm.Statement{asm.AInstruction{Location: target}, asm.CInstruction{Dest: "D", Comp: "M"}}
			return append(insts, pushD()...), nil
		}
		insts := popD()
		return append(insts, asm.AInstruction{Location: target}, asm.CInstruction{Dest: "M", Comp: "D"}), nil

	case Static:
		symbol := fmt.Sprintf("%s.%d", l.className, op.Offset)
		if op.Operation == Push {
			insts := []asm.Statement{asm.AInstruction{Location: symbol}, asm.CInstruction{Dest: "D", Comp: "M"}}
			return append(insts, pushD()...), nil
		}
		insts := popD()
		return append(insts, asm.AInstruction{Location: symbol}, asm.CInstruction{Dest: "M", Comp: "D"}), nil

	default:
		return nil, fmt.Errorf("unrecognized segment '%s'", op.Segment)
	}
}

// ----------------------------------------------------------------------------
// Arithmetic Op

// Specialized function to lower a binary operator acting on the stack's top two cells,
// combining D (the popped operand) and M (the operand left in place) via 'comp'.
func binaryOp(comp string) []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"}, asm.CInstruction{Dest: "M", Comp: comp},
	}
}

// Specialized function to lower a unary operator acting in place on the stack's top cell.
func unaryOp(comp string) []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: comp},
	}
}

// Specialized function to lower a 'ArithmeticOp' operation to its 'asm.Statement' sequence.
func (l *Lowerer) handleArithmeticOp(op ArithmeticOp) ([]asm.Statement, error) {
	switch op.Operation {
	case Add:
		return binaryOp("D+M"), nil
	case Sub:
		return binaryOp("M-D"), nil
	case And:
		return binaryOp("D&M"), nil
	case Or:
		return binaryOp("D|M"), nil
	case Neg:
		return unaryOp("-M"), nil
	case Not:
		return unaryOp("!M"), nil
	case ShiftLeft:
		return unaryOp("M<<"), nil
	case ShiftRight:
		return unaryOp("M>>"), nil
	case Eq, Gt, Lt:
		return l.handleComparison(op.Operation)
	default:
		return nil, fmt.Errorf("unrecognized arithmetic operator '%s'", op.Operation)
	}
}

// Specialized function to lower a comparison operator ('eq', 'gt', 'lt') without relying on a
// direct subtraction of the two operands: subtracting two 16-bit two's complement numbers at
// opposite ends of the representable range (e.g. 32767 and -32768) overflows, which would flip
// the sign of the result and silently produce the wrong answer. Whenever the operands' signs
// differ, the comparison is instead decided directly from those signs (no overflow is possible
// since a non-negative number is always greater than a negative one); the subtraction is only
// performed once both operands are known to share a sign, where it cannot overflow.
func (l *Lowerer) handleComparison(op ArithOpType) ([]asm.Statement, error) {
	var crossXNonNegYNeg, crossXNegYNonNeg bool // which cross-sign case (if any) decides 'true'
	var mnemonic string

	switch op {
	case Eq:
		crossXNonNegYNeg, crossXNegYNonNeg, mnemonic = false, false, "JEQ"
	case Gt:
		crossXNonNegYNeg, crossXNegYNonNeg, mnemonic = true, false, "JGT"
	case Lt:
		crossXNonNegYNeg, crossXNegYNonNeg, mnemonic = false, true, "JLT"
	default:
		return nil, fmt.Errorf("unrecognized comparison operator '%s'", op)
	}

	id := l.nextLabel("COMPARE")
	trueLabel, falseLabel := "TRUE_"+id, "FALSE_"+id
	xNonNegLabel, sameSignLabel, writeLabel := "XNONNEG_"+id, "SAMESIGN_"+id, "WRITE_"+id

	target := func(crossIsTrue bool) string {
		if crossIsTrue {
			return trueLabel
		}
		return falseLabel
	}

	insts := []asm.Statement{
		// Pop y into D, leave A pointing at x; stash both in scratch registers for the sign tests.
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "M", Comp: "D"}, // R14 = y
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "M", Comp: "D"}, // R13 = x

		// if x >= 0, sign of y alone decides whether this is a cross-sign case
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: xNonNegLabel}, asm.CInstruction{Comp: "D", Jump: "JGE"},

		// x < 0: cross-sign iff y >= 0
		asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: target(crossXNegYNonNeg)}, asm.CInstruction{Comp: "D", Jump: "JGE"},
		asm.AInstruction{Location: sameSignLabel}, asm.CInstruction{Comp: "0", Jump: "JMP"},

		asm.LabelDecl{Name: xNonNegLabel},
		// x >= 0: cross-sign iff y < 0
		asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: target(crossXNonNegYNeg)}, asm.CInstruction{Comp: "D", Jump: "JLT"},
		asm.AInstruction{Location: sameSignLabel}, asm.CInstruction{Comp: "0", Jump: "JMP"},

		// Same sign: the subtraction cannot overflow, decide the comparison directly.
		asm.LabelDecl{Name: sameSignLabel},
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "D", Comp: "D-M"},
		asm.AInstruction{Location: trueLabel}, asm.CInstruction{Comp: "D", Jump: mnemonic},

		asm.LabelDecl{Name: falseLabel},
		asm.CInstruction{Dest: "D", Comp: "0"},
		asm.AInstruction{Location: writeLabel}, asm.CInstruction{Comp: "0", Jump: "JMP"},

		asm.LabelDecl{Name: trueLabel},
		asm.CInstruction{Dest: "D", Comp: "-1"},

		asm.LabelDecl{Name: writeLabel},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}

	return insts, nil
}

// ----------------------------------------------------------------------------
// Control flow

// Specialized function to lower a 'LabelDecl' operation to its 'asm.Statement' sequence.
func (l *Lowerer) handleLabelDecl(op LabelDecl) ([]asm.Statement, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to declare an empty label")
	}
	return []asm.Statement{asm.LabelDecl{Name: l.qualify(op.Name)}}, nil
}

// Specialized function to lower a 'GotoOp' operation to its 'asm.Statement' sequence.
func (l *Lowerer) handleGotoOp(op GotoOp) ([]asm.Statement, error) {
	if op.Label == "" {
		return nil, fmt.Errorf("unable to jump to an empty label")
	}
	label := l.qualify(op.Label)

	switch op.Jump {
	case Unconditional:
		return []asm.Statement{asm.AInstruction{Location: label}, asm.CInstruction{Comp: "0", Jump: "JMP"}}, nil
	case Conditional:
		insts := popD()
		return append(insts, asm.AInstruction{Location: label}, asm.CInstruction{Comp: "D", Jump: "JNE"}), nil
	default:
		return nil, fmt.Errorf("unrecognized jump type '%s'", op.Jump)
	}
}

// ----------------------------------------------------------------------------
// Function declaration, call and return

// Specialized function to lower a 'FuncDecl' operation to its 'asm.Statement' sequence.
// Every subsequent label and jump is scoped under this function until the next 'FuncDecl'.
func (l *Lowerer) handleFuncDecl(op FuncDecl) ([]asm.Statement, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to declare a function with an empty name")
	}
	l.current = op.Name

	insts := []asm.Statement{asm.LabelDecl{Name: op.Name}}
	for i := 0; i < int(op.NLocal); i++ {
		insts = append(insts, pushConstant("0")...)
	}
	return insts, nil
}

// Specialized function to lower a 'FuncCallOp' operation to its 'asm.Statement' sequence,
// implementing the nand2tetris calling convention (spec.md §4.2): the caller pushes a return
// address and its own LCL/ARG/THIS/THAT, repositions ARG/LCL for the callee, then jumps in.
func (l *Lowerer) handleFuncCallOp(op FuncCallOp) ([]asm.Statement, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to call a function with an empty name")
	}
	returnLabel := l.nextLabel(fmt.Sprintf("%s$RETURN", op.Name))

	insts := []asm.Statement{asm.AInstruction{Location: returnLabel}, asm.CInstruction{Dest: "D", Comp: "A"}}
	insts = append(insts, pushD()...)

	for _, segment := range []string{"LCL", "ARG", "THIS", "THAT"} {
		insts = append(insts, asm.AInstruction{Location: segment}, asm.CInstruction{Dest: "D", Comp: "M"})
		insts = append(insts, pushD()...)
	}

	insts = append(insts,
		// ARG = SP - nArgs - 5
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: fmt.Sprint(op.NArgs)}, asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "5"}, asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// LCL = SP
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// goto f
		asm.AInstruction{Location: op.Name}, asm.CInstruction{Comp: "0", Jump: "JMP"},
		// (return address)
		asm.LabelDecl{Name: returnLabel},
	)

	return insts, nil
}

// Specialized function to lower a 'ReturnOp' operation to its 'asm.Statement' sequence.
// The return address is saved (into R14) before the argument slot is overwritten, since a
// zero-argument callee's return address lives at *ARG, the very cell the return value lands in.
func (l *Lowerer) handleReturnOp(op ReturnOp) ([]asm.Statement, error) {
	insts := []asm.Statement{
		// FRAME (R13) = LCL
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// RET (R14) = *(FRAME - 5)
		asm.AInstruction{Location: "5"}, asm.CInstruction{Dest: "A", Comp: "D-A"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "M", Comp: "D"},
	}
	// *ARG = pop()
	insts = append(insts, popD()...)
	insts = append(insts, asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "D"})
	insts = append(insts,
		// SP = ARG + 1
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// THAT = *(FRAME - 1)
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "THAT"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// THIS = *(FRAME - 2)
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "2"}, asm.CInstruction{Dest: "A", Comp: "D-A"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "THIS"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// ARG = *(FRAME - 3)
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "3"}, asm.CInstruction{Dest: "A", Comp: "D-A"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// LCL = *(FRAME - 4)
		asm.AInstruction{Location: "R13"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "4"}, asm.CInstruction{Dest: "A", Comp: "D-A"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// goto RET
		asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Comp: "0", Jump: "JMP"},
	)

	return insts, nil
}
