package rewrite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitch-tool/stitch/api"
)

// relativeImportRules is the canonical rule set for collapsing absolute
// imports of a vendored package into relative ones.
func relativeImportRules() []api.Rule {
	return []api.Rule{
		{Pattern: "from pyatmo ", Replace: "from . "},
		{Pattern: "from pyatmo", Replace: "from ."},
		{Pattern: "from ..", Replace: "from ."},
	}
}

func TestApply_BareImport(t *testing.T) {
	out, err := Apply([]byte("from pyatmo import helpers\n"), "x.py", relativeImportRules())
	require.NoError(t, err)
	assert.Equal(t, "from . import helpers\n", string(out))
}

func TestApply_DottedImport(t *testing.T) {
	out, err := Apply([]byte("from pyatmo.const import X\n"), "x.py", relativeImportRules())
	require.NoError(t, err)
	assert.Equal(t, "from .const import X\n", string(out))
}

// Rules must be idempotent on their own output: running the set a
// second time over already-rewritten text must change nothing.
func TestApply_IdempotentOnOwnOutput(t *testing.T) {
	inputs := []string{
		"from pyatmo import helpers\n",
		"from pyatmo.const import X\n",
		"from pyatmo.modules.somfy import Somfy\nimport logging\n",
		"already = 'rewritten'\nfrom . import helpers\n",
	}
	for _, in := range inputs {
		once, err := Apply([]byte(in), "x.py", relativeImportRules())
		require.NoError(t, err)
		twice, err := Apply(once, "x.py", relativeImportRules())
		require.NoError(t, err)
		assert.Equal(t, string(once), string(twice), "input %q", in)
	}
}

func TestApply_OrderMatters(t *testing.T) {
	// The collapse of "from .." only fires on output of the second rule.
	reversed := []api.Rule{
		{Pattern: "from ..", Replace: "from ."},
		{Pattern: "from pyatmo", Replace: "from ."},
	}
	out, err := Apply([]byte("from pyatmo.const import X\n"), "x.py", reversed)
	require.NoError(t, err)
	assert.Equal(t, "from ..const import X\n", string(out))
}

func TestApply_RegexRule(t *testing.T) {
	rules := []api.Rule{
		{Pattern: `(?m)^import pyatmo$`, Replace: "from . import pyatmo", Regex: true},
	}
	out, err := Apply([]byte("import pyatmo\n"), "x.py", rules)
	require.NoError(t, err)
	assert.Equal(t, "from . import pyatmo\n", string(out))
}

func TestApply_BadRegex(t *testing.T) {
	rules := []api.Rule{{Pattern: "([", Replace: "", Regex: true}}
	_, err := Apply([]byte("anything"), "x.py", rules)
	require.Error(t, err)

	var re *RuleError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "x.py", re.File)
	assert.Equal(t, "([", re.Pattern)
}

func TestApply_NoRules(t *testing.T) {
	out, err := Apply([]byte("untouched\n"), "x.py", nil)
	require.NoError(t, err)
	assert.Equal(t, "untouched\n", string(out))
}
