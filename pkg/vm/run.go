package vm

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hmny-tetris/toolchain/pkg/asm"
)

// ----------------------------------------------------------------------------
// Driver

// Run translates the '.vm' file(s) found at 'input' (a single file, or a directory
// of translation units) into a single '.asm' file. A single file input 'P.vm' produces
// a sibling 'P.asm'; a directory input produces '<dir>/<dirname>.asm' (spec.md §6). The
// bootstrap sequence (SP=256; call Sys.init) is prepended automatically iff some module
// in the input declares 'function Sys.init', matching the nand2tetris convention that
// only multi-file programs with an entry point need bootstrapping.
func Run(input string) error {
	info, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("unable to stat input: %w", err)
	}

	sources, err := discover(input, ".vm")
	if err != nil {
		return fmt.Errorf("unable to discover input files: %w", err)
	}

	program := Program{}
	for _, source := range sources {
		content, err := os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("%s: unable to open input file: %w", source, err)
		}

		parser := NewParser(bytes.NewReader(content))
		module, err := parser.Parse()
		if err != nil {
			return fmt.Errorf("%s: unable to complete 'parsing' pass: %w", source, err)
		}
		program[filepath.Base(source)] = module
	}

	lowerer := NewLowerer(program)
	asmProgram, err := lowerer.Lower()
	if err != nil {
		return fmt.Errorf("unable to complete 'lowering' pass: %w", err)
	}

	if declaresSysInit(program) {
		boot, err := Bootstrap()
		if err != nil {
			return fmt.Errorf("unable to generate bootstrap sequence: %w", err)
		}
		asmProgram = append(boot, asmProgram...)
	}

	codegen := asm.NewCodeGenerator(asmProgram)
	compiled, err := codegen.Generate()
	if err != nil {
		return fmt.Errorf("unable to complete 'codegen' pass: %w", err)
	}

	outPath := outputPath(input, info.IsDir())
	output, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("unable to open output file: %w", err)
	}
	defer output.Close()

	for _, line := range compiled {
		fmt.Fprintf(output, "%s\n", line)
	}
	return nil
}

func outputPath(input string, isDir bool) string {
	if !isDir {
		return strings.TrimSuffix(input, filepath.Ext(input)) + ".asm"
	}
	dirname := filepath.Base(filepath.Clean(input))
	return filepath.Join(input, dirname+".asm")
}

func declaresSysInit(program Program) bool {
	for _, module := range program {
		for _, op := range module {
			if decl, ok := op.(FuncDecl); ok && decl.Name == "Sys.init" {
				return true
			}
		}
	}
	return false
}

// Walks 'root' (a file or directory) and collects every path matching 'ext', silently
// skipping files with the wrong extension per spec.md §6.
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
