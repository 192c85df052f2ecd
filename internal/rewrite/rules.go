// Package rewrite applies import rewrite rules to vendored files.
//
// Rules are ordered (pattern, replacement) pairs. The default engine is
// plain text substitution over the whole file; the syntax-aware engine
// restricts substitution to import statements of the parsed source so
// patterns cannot match inside strings or comments.
package rewrite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stitch-tool/stitch/api"
)

// RuleError reports a rule that could not be applied to a file.
type RuleError struct {
	File    string
	Pattern string
	Err     error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rewrite %s: rule %q: %v", e.File, e.Pattern, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Apply runs every rule over content, in order. Later rules see the
// output of earlier ones. Plain rules are substring replacements;
// regex rules use Go regexp syntax.
func Apply(content []byte, file string, rules []api.Rule) ([]byte, error) {
	text := string(content)
	for _, r := range rules {
		var err error
		text, err = applyOne(text, r)
		if err != nil {
			return nil, &RuleError{File: file, Pattern: r.Pattern, Err: err}
		}
	}
	return []byte(text), nil
}

func applyOne(text string, r api.Rule) (string, error) {
	if !r.Regex {
		return strings.ReplaceAll(text, r.Pattern, r.Replace), nil
	}
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return "", fmt.Errorf("compile: %w", err)
	}
	return re.ReplaceAllString(text, r.Replace), nil
}
