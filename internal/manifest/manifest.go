// Package manifest loads and validates stitch manifests.
package manifest

import (
	"fmt"
	"path"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/stitch-tool/stitch/api"
)

// Load reads an HCL manifest from path and validates it.
func Load(file string) (*api.Manifest, error) {
	var m api.Manifest
	if err := hclsimple.DecodeFile(file, nil, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", file, err)
	}
	if err := Validate(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", file, err)
	}
	return &m, nil
}

// Parse decodes an in-memory manifest. The filename is only used for
// diagnostics and must carry an .hcl extension.
func Parse(filename string, src []byte) (*api.Manifest, error) {
	var m api.Manifest
	if err := hclsimple.Decode(filename, src, nil, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the structural invariants of a manifest: every group
// names a complete upstream tuple, target directories stay inside the
// project tree, and no file is listed twice within a group.
func Validate(m *api.Manifest) error {
	if len(m.Groups) == 0 {
		return fmt.Errorf("manifest declares no groups")
	}
	names := make(map[string]bool, len(m.Groups))
	for _, g := range m.Groups {
		if g.Name == "" {
			return fmt.Errorf("group without a label")
		}
		if names[g.Name] {
			return fmt.Errorf("group %q: duplicate group name", g.Name)
		}
		names[g.Name] = true

		switch {
		case g.Owner == "":
			return fmt.Errorf("group %q: owner is required", g.Name)
		case g.Repo == "":
			return fmt.Errorf("group %q: repo is required", g.Name)
		case g.Ref == "":
			return fmt.Errorf("group %q: ref is required", g.Name)
		case g.Dir == "":
			return fmt.Errorf("group %q: dir is required", g.Name)
		case len(g.Files) == 0:
			return fmt.Errorf("group %q: files is empty", g.Name)
		}

		if err := checkRelative(g.Dir); err != nil {
			return fmt.Errorf("group %q: dir %q: %w", g.Name, g.Dir, err)
		}

		seen := make(map[string]bool, len(g.Files))
		for _, f := range g.Files {
			if err := checkRelative(f); err != nil {
				return fmt.Errorf("group %q: file %q: %w", g.Name, f, err)
			}
			if seen[f] {
				return fmt.Errorf("group %q: file %q listed twice", g.Name, f)
			}
			seen[f] = true
		}
	}
	return nil
}

// checkRelative rejects absolute paths and paths escaping the project root.
func checkRelative(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("must be relative")
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("escapes the project root")
	}
	return nil
}
