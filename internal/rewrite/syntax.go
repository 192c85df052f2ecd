package rewrite

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stitch-tool/stitch/api"
)

// ApplyImports applies the rules only within import statements of the
// parsed source. Files with no known grammar fall back to whole-file
// text substitution. The rewritten output is re-parsed afterwards; a
// rule that breaks the syntax surfaces as a RuleError instead of being
// written out.
func ApplyImports(content []byte, file string, rules []api.Rule) ([]byte, error) {
	lang := languageForPath(file)
	if lang == nil {
		return Apply(content, file, rules)
	}

	spans, err := importSpans(content, lang)
	if err != nil {
		return nil, &RuleError{File: file, Pattern: "", Err: err}
	}

	// Splice back to front so earlier offsets stay valid.
	out := append([]byte(nil), content...)
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		segment, err := Apply(out[s.start:s.end], file, rules)
		if err != nil {
			return nil, err
		}
		out = append(out[:s.start], append(segment, out[s.end:]...)...)
	}

	if err := checkParses(out, lang); err != nil {
		return nil, &RuleError{File: file, Pattern: "", Err: err}
	}
	return out, nil
}

type span struct {
	start, end uint32
}

// importSpans parses content and collects the byte ranges of every
// import statement, in document order.
func importSpans(content []byte, lang *language) ([]span, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang.lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("parser returned no tree")
	}

	var spans []span
	collectImports(root, lang.importNodes, &spans)
	return spans, nil
}

func collectImports(node *sitter.Node, kinds map[string]bool, spans *[]span) {
	if kinds[node.Type()] {
		*spans = append(*spans, span{start: node.StartByte(), end: node.EndByte()})
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectImports(node.Child(i), kinds, spans)
	}
}

// checkParses re-parses rewritten content and reports the first syntax
// error the grammar finds.
func checkParses(content []byte, lang *language) error {
	parser := sitter.NewParser()
	parser.SetLanguage(lang.lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return fmt.Errorf("parse rewritten output: %w", err)
	}
	root := tree.RootNode()
	if root == nil || !root.HasError() {
		return nil
	}
	if n := firstError(root); n != nil {
		return fmt.Errorf("rewritten output has a syntax error at line %d", n.StartPoint().Row+1)
	}
	return fmt.Errorf("rewritten output no longer parses")
}

// firstError does a depth-first search for the first ERROR or MISSING node.
func firstError(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsError() || child.IsMissing() {
			if found := firstError(child); found != nil {
				return found
			}
		}
	}
	return nil
}
