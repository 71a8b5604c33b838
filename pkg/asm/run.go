package asm

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hmny-tetris/toolchain/pkg/hack"
)

// ----------------------------------------------------------------------------
// Driver

// Run assembles the '.asm' file(s) found at 'input' (a single file or a directory,
// walked recursively) and writes a sibling '.hack' file for each one. Kept separate
// from cmd/hack_assembler so the file/directory handling stays unit testable without
// going through the CLI parser.
func Run(input string) error {
	sources, err := discover(input, ".asm")
	if err != nil {
		return fmt.Errorf("unable to discover input files: %w", err)
	}

	for _, source := range sources {
		if err := assembleOne(source); err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}
	}
	return nil
}

func assembleOne(source string) error {
	content, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("unable to open input file: %w", err)
	}

	parser := NewParser(bytes.NewReader(content))
	program, err := parser.Parse()
	if err != nil {
		return fmt.Errorf("unable to complete 'parsing' pass: %w", err)
	}

	lowerer := NewLowerer(program)
	hackProgram, table, err := lowerer.Lower()
	if err != nil {
		return fmt.Errorf("unable to complete 'lowering' pass: %w", err)
	}

	codegen := hack.NewCodeGenerator(hackProgram, table)
	compiled, err := codegen.Generate()
	if err != nil {
		return fmt.Errorf("unable to complete 'codegen' pass: %w", err)
	}

	outPath := strings.TrimSuffix(source, filepath.Ext(source)) + ".hack"
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

// Walks 'root' (a file or directory) and collects every path matching 'ext', silently
// skipping files with the wrong extension per spec.md §6. A single file path is returned
// as-is, without checking its extension, mirroring the CLI's "exactly one path argument"
// contract.
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
