package jack

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hmny-tetris/toolchain/pkg/vm"
)

// ----------------------------------------------------------------------------
// Driver

// Run compiles the '.jack' file(s) found at 'input' (a single file, or a
// directory of translation units) into one sibling '.vm' file per source
// class (spec.md §6). Kept separate from cmd/jack_compiler so the
// file/directory handling stays unit testable without going through the CLI
// parser, the same split used by pkg/vm.Run and pkg/asm.Run.
//
// 'useStdlib' merges the built-in Jack OS ABI (see stdlib.go) into the program
// before lowering, so calls into Math/String/Output/... resolve without the
// caller having to supply those classes' source. 'typecheck' runs a full type
// check pass before lowering and aborts on the first error found.
func Run(input string, useStdlib, typecheck bool) error {
	sources, err := discover(input, ".jack")
	if err != nil {
		return fmt.Errorf("unable to discover input files: %w", err)
	}

	program := Program{}
	for _, source := range sources {
		content, err := os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("%s: unable to open input file: %w", source, err)
		}

		parser, err := NewParser(bytes.NewReader(content))
		if err != nil {
			return fmt.Errorf("%s: unable to initialize parser: %w", source, err)
		}
		class, err := parser.Parse()
		if err != nil {
			return fmt.Errorf("%s: unable to complete 'parsing' pass: %w", source, err)
		}
		program[moduleName(source)] = class
	}

	if useStdlib {
		for name, class := range StandardLibraryABI {
			program[name] = class
		}
	}

	if typecheck {
		checker := NewTypeChecker(program)
		if _, err := checker.Check(); err != nil {
			return fmt.Errorf("unable to complete 'typecheck' pass: %w", err)
		}
	}

	lowerer := NewLowerer(program)
	vmProgram, err := lowerer.Lower()
	if err != nil {
		return fmt.Errorf("unable to complete 'lowering' pass: %w", err)
	}

	codegen := vm.NewCodeGenerator(vmProgram)
	compiled, err := codegen.Generate()
	if err != nil {
		return fmt.Errorf("unable to complete 'codegen' pass: %w", err)
	}

	for _, source := range sources {
		name := moduleName(source)
		lines, ok := compiled[name]
		if !ok {
			return fmt.Errorf("missing compiled module for class '%s'", name)
		}

		outPath := strings.TrimSuffix(source, filepath.Ext(source)) + ".vm"
		output, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("unable to open output file: %w", err)
		}

		for _, line := range lines {
			fmt.Fprintf(output, "%s\n", line)
		}
		output.Close()
	}
	return nil
}

func moduleName(source string) string {
	return strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
}

// discover walks 'root' (a file or directory) and collects every path
// matching 'ext', silently skipping files with the wrong extension per
// spec.md §6.
func discover(root, ext string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var found []string
	err = filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ext {
			return nil
		}
		found = append(found, path)
		return nil
	})
	return found, err
}
