package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitch-tool/stitch/api"
	"github.com/stitch-tool/stitch/internal/engine"
	"github.com/stitch-tool/stitch/internal/fetch"
	"github.com/stitch-tool/stitch/internal/lockfile"
	"github.com/stitch-tool/stitch/internal/manifest"
)

// upstreamFiles mimics two source trees on a raw-content host: an
// integration component and a client library whose nested modules
// subdirectory is vendored as its own group.
var upstreamFiles = map[string]string{
	"/acme/hub/dev/components/netatmo/__init__.py": "from pyatmo.const import X\n",
	"/acme/hub/dev/components/netatmo/sensor.py":   "from pyatmo import helpers\n",
	"/acme/pyatmo/v8/src/pyatmo/__init__.py":       "from pyatmo.modules import somfy\n",
	"/acme/pyatmo/v8/src/pyatmo/helpers.py":        "import json\n",
	"/acme/pyatmo/v8/src/pyatmo/modules/somfy.py":  "from pyatmo.const import Y\n",
	"/acme/pyatmo/v8/src/pyatmo/modules/legacy.py": "from pyatmo import helpers\n",
}

const manifestSource = `
group "component" {
  owner = "acme"
  repo  = "hub"
  ref   = "dev"
  path  = "components/netatmo"
  dir   = "custom_components/netatmo"
  files = ["__init__.py", "sensor.py"]

  rule {
    pattern = "from pyatmo "
    replace = "from . "
  }
  rule {
    pattern = "from pyatmo"
    replace = "from ."
  }
  rule {
    pattern = "from .."
    replace = "from ."
  }
}

group "library" {
  owner = "acme"
  repo  = "pyatmo"
  ref   = "v8"
  path  = "src/pyatmo"
  dir   = "custom_components/netatmo/pyatmo"
  files = ["__init__.py", "helpers.py"]

  rule {
    pattern = "from pyatmo "
    replace = "from . "
  }
  rule {
    pattern = "from pyatmo"
    replace = "from ."
  }
  rule {
    pattern = "from .."
    replace = "from ."
  }
}

group "library-modules" {
  owner = "acme"
  repo  = "pyatmo"
  ref   = "v8"
  path  = "src/pyatmo/modules"
  dir   = "custom_components/netatmo/pyatmo/modules"
  files = ["somfy.py", "legacy.py"]

  rule {
    pattern = "from pyatmo."
    replace = "from .."
  }
  rule {
    pattern = "from pyatmo"
    replace = "from .."
  }
}
`

// fixture bundles one end-to-end run: a fake raw host serving a
// per-test copy of the upstream files, a real temp project tree, and
// an engine wired without a persistent cache.
type fixture struct {
	fsys  billy.Filesystem
	m     *api.Manifest
	eng   *engine.Engine
	files map[string]string
}

func setup(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{files: make(map[string]string, len(upstreamFiles))}
	for k, v := range upstreamFiles {
		f.files[k] = v
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := f.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(content))
	}))
	t.Cleanup(srv.Close)

	m, err := manifest.Parse("stitch.hcl", []byte(manifestSource))
	require.NoError(t, err)
	m.Host = srv.URL

	f.fsys = osfs.New(t.TempDir())
	f.m = m
	f.eng = engine.New(f.fsys, fetch.NewClient("", nil), m.Host)
	return f
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	data, err := util.ReadFile(f.fsys, path)
	require.NoError(t, err)
	return string(data)
}

func TestSyncVerifyRoundtrip(t *testing.T) {
	f := setup(t)

	rep, err := f.eng.Run(context.Background(), f.m)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Failed())

	// Rewrites landed per directory depth.
	assert.Equal(t, "from .const import X\n", f.read(t, "custom_components/netatmo/__init__.py"))
	assert.Equal(t, "from . import helpers\n", f.read(t, "custom_components/netatmo/sensor.py"))
	assert.Equal(t, "from .modules import somfy\n", f.read(t, "custom_components/netatmo/pyatmo/__init__.py"))
	assert.Equal(t, "from ..const import Y\n", f.read(t, "custom_components/netatmo/pyatmo/modules/somfy.py"))
	assert.Equal(t, "from .. import helpers\n", f.read(t, "custom_components/netatmo/pyatmo/modules/legacy.py"))

	// Lock + verify: the fresh tree is clean.
	lock := lockfile.FromReport(rep)
	require.NoError(t, lock.Write(f.fsys, "stitch.lock"))

	loaded, err := lockfile.Load(f.fsys, "stitch.lock")
	require.NoError(t, err)
	drifts, err := lockfile.Verify(f.fsys, f.m, loaded)
	require.NoError(t, err)
	assert.True(t, lockfile.Clean(drifts))
	assert.Len(t, drifts, 6)
}

func TestVerifyDetectsTampering(t *testing.T) {
	f := setup(t)

	rep, err := f.eng.Run(context.Background(), f.m)
	require.NoError(t, err)
	lock := lockfile.FromReport(rep)

	require.NoError(t, util.WriteFile(f.fsys,
		"custom_components/netatmo/sensor.py", []byte("hacked\n"), 0o644))

	drifts, err := lockfile.Verify(f.fsys, f.m, lock)
	require.NoError(t, err)
	assert.False(t, lockfile.Clean(drifts))

	var state string
	for _, d := range drifts {
		if d.Path == "custom_components/netatmo/sensor.py" {
			state = d.State
		}
	}
	assert.Equal(t, lockfile.StateDrifted, state)
}

func TestVerifyAfterPartialFailure(t *testing.T) {
	f := setup(t)

	// First sync succeeds completely and is locked.
	rep, err := f.eng.Run(context.Background(), f.m)
	require.NoError(t, err)
	require.NoError(t, lockfile.FromReport(rep).Write(f.fsys, "stitch.lock"))

	// The library's upstream breaks; a keep-going rerun leaves the
	// library directory on its previous, still-valid files.
	delete(f.files, "/acme/pyatmo/v8/src/pyatmo/helpers.py")
	f.eng.KeepGoing = true
	rep2, err := f.eng.Run(context.Background(), f.m)
	require.Error(t, err)

	prev, err := lockfile.Load(f.fsys, "stitch.lock")
	require.NoError(t, err)
	merged := lockfile.Merge(prev, lockfile.FromReport(rep2), f.m, rep2)
	require.NoError(t, merged.Write(f.fsys, "stitch.lock"))

	loaded, err := lockfile.Load(f.fsys, "stitch.lock")
	require.NoError(t, err)
	drifts, err := lockfile.Verify(f.fsys, f.m, loaded)
	require.NoError(t, err)

	// The untouched library files still hash-check against the merged
	// lock instead of degrading to untracked.
	byPath := make(map[string]string, len(drifts))
	for _, d := range drifts {
		byPath[d.Path] = d.State
	}
	assert.Equal(t, lockfile.StateOK, byPath["custom_components/netatmo/pyatmo/helpers.py"])
	assert.Equal(t, lockfile.StateOK, byPath["custom_components/netatmo/pyatmo/__init__.py"])
	assert.True(t, lockfile.Clean(drifts))
	assert.Len(t, drifts, 6)
}

func TestRerunIsIdempotent(t *testing.T) {
	f := setup(t)

	rep1, err := f.eng.Run(context.Background(), f.m)
	require.NoError(t, err)
	rep2, err := f.eng.Run(context.Background(), f.m)
	require.NoError(t, err)

	lock1 := lockfile.FromReport(rep1)
	lock2 := lockfile.FromReport(rep2)
	require.Len(t, lock2.Files, len(lock1.Files))
	for i := range lock1.Files {
		assert.Equal(t, lock1.Files[i].Path, lock2.Files[i].Path)
		assert.Equal(t, lock1.Files[i].SHA256, lock2.Files[i].SHA256)
	}
}
