package rewrite

import (
	"strings"

	"mvdan.cc/gofumpt/format"
)

// Format normalizes rewritten Go source with gofumpt so vendored files
// match the formatting of the surrounding tree. Non-Go files and
// unformattable content pass through unchanged.
func Format(content []byte, file string) []byte {
	if !strings.HasSuffix(file, ".go") {
		return content
	}
	formatted, err := format.Source(content, format.Options{})
	if err != nil {
		return content
	}
	return formatted
}
