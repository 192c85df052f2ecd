// Package lockfile records what a sync produced, so a later verify can
// detect drift in the vendored tree without refetching anything.
package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/ohler55/ojg/oj"

	"github.com/stitch-tool/stitch/api"
	"github.com/stitch-tool/stitch/internal/engine"
)

// Version of the lock file format.
const Version = 1

// File is one vendored file as recorded at sync time.
type File struct {
	Path   string `json:"path"`
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
	ETag   string `json:"etag,omitempty"`
	Size   int64  `json:"size"`
}

// Lock is the full lock file.
type Lock struct {
	Version     int    `json:"version"`
	GeneratedAt string `json:"generated_at"`
	Files       []File `json:"files"`
}

// FromReport builds a lock from a run report. Groups that failed are
// skipped: their directories were not replaced, and Merge carries the
// previous entries forward for them.
func FromReport(rep *engine.Report) *Lock {
	l := &Lock{
		Version:     Version,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, g := range rep.Groups {
		if g.Error != "" {
			continue
		}
		for _, f := range g.Files {
			l.Files = append(l.Files, File{
				Path:   path.Join(g.Dir, f.File),
				URL:    f.URL,
				SHA256: f.SHA256,
				ETag:   f.ETag,
				Size:   f.Size,
			})
		}
	}
	sort.Slice(l.Files, func(i, j int) bool { return l.Files[i].Path < l.Files[j].Path })
	return l
}

// Merge combines the previous lock with the outcome of the latest run.
// Directories that swapped this run are owned by next; directories of
// groups that did not swap (failed, or never attempted under
// fail-fast) keep their entries from prev, since their files on disk
// are still the previous sync's. Entries under no manifest directory
// are dropped.
func Merge(prev, next *Lock, m *api.Manifest, rep *engine.Report) *Lock {
	swapped := make(map[string]bool)
	for _, g := range rep.Groups {
		if g.Error == "" {
			swapped[g.Dir] = true
		}
	}
	dirs := make([]string, 0, len(m.Groups))
	for _, g := range m.Groups {
		dirs = append(dirs, g.Dir)
	}

	merged := &Lock{Version: Version, GeneratedAt: next.GeneratedAt}
	seen := make(map[string]bool, len(next.Files))
	for _, f := range next.Files {
		merged.Files = append(merged.Files, f)
		seen[f.Path] = true
	}
	for _, f := range prev.Files {
		if seen[f.Path] {
			continue
		}
		owner := owningDir(f.Path, dirs)
		if owner == "" || swapped[owner] {
			continue
		}
		merged.Files = append(merged.Files, f)
	}
	sort.Slice(merged.Files, func(i, j int) bool { return merged.Files[i].Path < merged.Files[j].Path })
	return merged
}

// owningDir finds the deepest manifest directory containing p. Groups
// may nest (a library vendored inside a component), so the longest
// match wins.
func owningDir(p string, dirs []string) string {
	owner := ""
	for _, d := range dirs {
		if p != d && !strings.HasPrefix(p, d+"/") {
			continue
		}
		if len(d) > len(owner) {
			owner = d
		}
	}
	return owner
}

// Write renders the lock as indented JSON at lockPath.
func (l *Lock) Write(fsys billy.Filesystem, lockPath string) error {
	data, err := oj.Marshal(l, 2)
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	if err := util.WriteFile(fsys, lockPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", lockPath, err)
	}
	return nil
}

// Load reads a lock file. A missing file returns os.ErrNotExist.
func Load(fsys billy.Filesystem, lockPath string) (*Lock, error) {
	data, err := util.ReadFile(fsys, lockPath)
	if err != nil {
		return nil, err
	}
	var l Lock
	if err := oj.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse %s: %w", lockPath, err)
	}
	if l.Version != Version {
		return nil, fmt.Errorf("%s: unsupported lock version %d", lockPath, l.Version)
	}
	return &l, nil
}

// Drift states reported by Verify.
const (
	StateOK        = "ok"
	StateDrifted   = "drifted"
	StateMissing   = "missing"
	StateUntracked = "untracked"
)

// Drift is the verify outcome for one path.
type Drift struct {
	Path  string `json:"path"`
	State string `json:"state"`
}

// Verify recomputes the checksum of every locked file and, for each
// manifest group, flags files in the target directory that match the
// group's clear patterns but are not in the lock.
func Verify(fsys billy.Filesystem, m *api.Manifest, l *Lock) ([]Drift, error) {
	locked := make(map[string]File, len(l.Files))
	for _, f := range l.Files {
		locked[f.Path] = f
	}

	var drifts []Drift
	for _, f := range l.Files {
		data, err := util.ReadFile(fsys, f.Path)
		if err != nil {
			if os.IsNotExist(err) {
				drifts = append(drifts, Drift{Path: f.Path, State: StateMissing})
				continue
			}
			return nil, fmt.Errorf("read %s: %w", f.Path, err)
		}
		sum := sha256.Sum256(data)
		state := StateOK
		if hex.EncodeToString(sum[:]) != f.SHA256 {
			state = StateDrifted
		}
		drifts = append(drifts, Drift{Path: f.Path, State: state})
	}

	for _, g := range m.Groups {
		entries, err := fsys.ReadDir(g.Dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read dir %s: %w", g.Dir, err)
		}
		patterns := engine.CleanPatterns(g)
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			p := path.Join(g.Dir, entry.Name())
			if _, ok := locked[p]; ok {
				continue
			}
			if matchAny(patterns, entry.Name()) {
				drifts = append(drifts, Drift{Path: p, State: StateUntracked})
			}
		}
	}

	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Path < drifts[j].Path })
	return drifts, nil
}

// Clean reports whether no drift entry is in a non-ok state.
func Clean(drifts []Drift) bool {
	for _, d := range drifts {
		if d.State != StateOK {
			return false
		}
	}
	return true
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
