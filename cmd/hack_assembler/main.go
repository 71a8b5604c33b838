package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/teris-io/cli"
	"github.com/hmny-tetris/toolchain/pkg/asm"
)

var Description = strings.ReplaceAll(`
The Hack Assembler takes assembly language code written in the Hack assembly language
and translates it into machine code that can be executed by the Hack computer. The process
involves parsing the assembly code, resolving symbols, and generating machine code.
`, "\n", " ")

var HackAssembler = cli.New(Description).
	WithArg(cli.NewArg("input", "The assembler (.asm) file, or a directory containing them")).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "ERROR: Expected exactly one path argument, use --help\n")
		return -1
	}

	// The file/directory walk, extension filtering and the parse-lower-codegen pipeline
	// itself all live in pkg/asm.Run so they stay unit testable without the CLI parser.
	if err := asm.Run(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		return -1
	}
	return 0
}

func main() { os.Exit(HackAssembler.Run(os.Args, os.Stdout)) }
