package rewrite

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// language bundles a tree-sitter grammar with the node types that
// carry import statements in that grammar.
type language struct {
	lang        *sitter.Language
	importNodes map[string]bool
}

// languageForPath maps file extensions to the grammars the syntax-aware
// rewriter understands. Unknown extensions return nil and fall back to
// whole-file text substitution.
func languageForPath(filePath string) *language {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".py":
		return &language{
			lang: python.GetLanguage(),
			importNodes: map[string]bool{
				"import_statement":        true,
				"import_from_statement":   true,
				"future_import_statement": true,
			},
		}
	case ".go":
		return &language{
			lang: golang.GetLanguage(),
			importNodes: map[string]bool{
				"import_declaration": true,
			},
		}
	case ".js":
		return &language{
			lang:        javascript.GetLanguage(),
			importNodes: map[string]bool{"import_statement": true},
		}
	case ".ts", ".tsx":
		return &language{
			lang:        typescript.GetLanguage(),
			importNodes: map[string]bool{"import_statement": true},
		}
	default:
		return nil
	}
}
