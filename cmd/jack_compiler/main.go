package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hmny-tetris/toolchain/pkg/jack"

	"github.com/teris-io/cli"
)

var Description = strings.ReplaceAll(`
The Jack Compiler compiles programs (composed of multiple classes/files) written in
the Jack language into VM modules that can be further elaborated. The Jack language
is a higher-level OOP language tailored for use with the Hack computer architecture.
`, "\n", " ")

var JackCompiler = cli.New(Description).
	WithArg(cli.NewArg("input", "The source (.jack) file, or a directory of translation units, to compile")).
	WithOption(cli.NewOption("stdlib", "Uses the built-in ABI of the standard library for lowering").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("typecheck", "Does a full type check of source code before emitting any output").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "ERROR: Expected exactly one path argument, use --help\n")
		return -1
	}

	_, useStdlib := options["stdlib"]
	_, typecheck := options["typecheck"]

	// File/directory walk, ABI merging, typecheck and the parse-then-lower-then-codegen
	// pipeline all live in pkg/jack.Run so they stay unit testable without the CLI parser.
	if err := jack.Run(args[0], useStdlib, typecheck); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		return -1
	}
	return 0
}

func main() { os.Exit(JackCompiler.Run(os.Args, os.Stdout)) }
