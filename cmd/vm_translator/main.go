package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/teris-io/cli"
	"github.com/hmny-tetris/toolchain/pkg/vm"
)

var Description = strings.ReplaceAll(`
The VM Translator translates programs (composed of multiple modules/files) written in
the VM language into Hack assembly code that can be further elaborated. The VM language
is a higher-level (bytecode'like) language tailored for use with the Hack computer arch.
`, "\n", " ")

var VmTranslator = cli.New(Description).
	WithArg(cli.NewArg("input", "The bytecode (.vm) file, or a directory of translation units")).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "ERROR: Expected exactly one path argument, use --help\n")
		return -1
	}

	// File/directory walk, module merging, bootstrap detection and the lower-codegen
	// pipeline all live in pkg/vm.Run so they stay unit testable without the CLI parser.
	if err := vm.Run(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		return -1
	}
	return 0
}

func main() { os.Exit(VmTranslator.Run(os.Args, os.Stdout)) }
