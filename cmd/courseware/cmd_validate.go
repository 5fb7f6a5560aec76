package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/courseware/internal/editor"
)

// cmdValidate checks a file without executing it. The language defaults to
// the file extension.
func cmdValidate(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: courseware validate <file> [language]")
	}
	path := args[0]

	language := strings.TrimPrefix(filepath.Ext(path), ".")
	if len(args) > 1 {
		language = args[1]
	}
	if !editor.SupportsLanguage(language) {
		return fmt.Errorf("unsupported language %q (valid: javascript, jsx, typescript, tsx, css, json)", language)
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	result := editor.Validate(string(code), language)
	if result.IsValid {
		fmt.Printf("✓ %s: no problems found\n", path)
		return nil
	}

	fmt.Printf("✗ %s: %d problem(s)\n", path, len(result.Errors))
	for _, msg := range result.Errors {
		fmt.Printf("  - %s\n", msg)
	}
	return fmt.Errorf("validation failed")
}
