// Package engine orchestrates a vendoring run: fetch every file of a
// manifest group, rewrite it, and swap the results into the target
// directory. All filesystem access goes through billy.Filesystem so the
// engine runs unchanged against osfs in production and memfs in tests.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/sync/errgroup"

	"github.com/stitch-tool/stitch/api"
	"github.com/stitch-tool/stitch/internal/fetch"
	"github.com/stitch-tool/stitch/internal/rewrite"
)

// CleanupError reports a file that could not be removed from a target
// directory.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup %s: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// Engine runs manifest groups against a filesystem.
type Engine struct {
	fs     billy.Filesystem
	client *fetch.Client
	host   string

	// Jobs bounds parallel fetches within a group.
	Jobs int
	// KeepGoing reports per-file failures and continues with the
	// remaining groups instead of aborting the run.
	KeepGoing bool
	// Printf receives progress lines. Nil means silent.
	Printf func(format string, args ...any)
}

// New returns an Engine rooted at fs, fetching through client.
func New(fs billy.Filesystem, client *fetch.Client, host string) *Engine {
	return &Engine{fs: fs, client: client, host: host, Jobs: 4}
}

func (e *Engine) logf(format string, args ...any) {
	if e.Printf != nil {
		e.Printf(format, args...)
	}
}

// Run syncs every group of the manifest. The returned report always
// covers the groups that were attempted, even on error. A group whose
// files did not all stage successfully keeps its previous contents.
func (e *Engine) Run(ctx context.Context, m *api.Manifest) (*Report, error) {
	host := m.Host
	if host == "" {
		host = e.host
	}

	rep := &Report{StartedAt: time.Now()}
	for _, g := range m.Groups {
		e.logf("syncing group %s (%s/%s@%s)\n", g.Name, g.Owner, g.Repo, g.Ref)
		results, err := e.syncGroup(ctx, host, g)
		gr := GroupReport{Name: g.Name, Dir: g.Dir, Files: results}
		if err != nil {
			gr.Error = err.Error()
		}
		rep.Groups = append(rep.Groups, gr)
		if err != nil && !e.KeepGoing {
			rep.FinishedAt = time.Now()
			return rep, err
		}
	}
	rep.FinishedAt = time.Now()
	if n := rep.Failed(); n > 0 {
		return rep, fmt.Errorf("%d file(s) failed", n)
	}
	return rep, nil
}

// syncGroup fetches and rewrites every file of g into a staging
// directory, then clears the target and moves the staged files in.
// Any failure before the swap leaves the target untouched.
func (e *Engine) syncGroup(ctx context.Context, host string, g api.Group) ([]FileResult, error) {
	results := make([]FileResult, len(g.Files))
	contents := make([][]byte, len(g.Files))

	jobs := e.Jobs
	if jobs < 1 {
		jobs = 1
	}
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(jobs)

	for i, file := range g.Files {
		i, file := i, file
		eg.Go(func() error {
			url := g.RawURL(host, file)
			results[i] = FileResult{File: file, URL: url}

			res, err := e.client.Fetch(gctx, url)
			if err != nil {
				results[i].Status = StatusFailed
				results[i].Error = err.Error()
				if e.KeepGoing {
					return nil
				}
				return err
			}

			body, err := e.rewriteFile(res.Body, file, g)
			if err != nil {
				results[i].Status = StatusFailed
				results[i].Error = err.Error()
				if e.KeepGoing {
					return nil
				}
				return err
			}

			sum := sha256.Sum256(body)
			contents[i] = body
			results[i].Status = StatusFetched
			if res.FromCache {
				results[i].Status = StatusCached
			}
			results[i].ETag = res.ETag
			results[i].SHA256 = hex.EncodeToString(sum[:])
			results[i].Size = int64(len(body))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		markUnswapped(results)
		return results, fmt.Errorf("group %s: %w", g.Name, err)
	}
	for _, r := range results {
		if r.Status == StatusFailed {
			markUnswapped(results)
			return results, fmt.Errorf("group %s: not swapped, some files failed", g.Name)
		}
	}

	if err := e.swap(g, contents); err != nil {
		markUnswapped(results)
		return results, fmt.Errorf("group %s: %w", g.Name, err)
	}
	e.logf("  %d file(s) vendored into %s\n", len(g.Files), g.Dir)
	return results, nil
}

// markUnswapped downgrades fetched and cached results when their group
// did not swap: the files never reached the target directory.
func markUnswapped(results []FileResult) {
	for i := range results {
		if results[i].Status == StatusFetched || results[i].Status == StatusCached {
			results[i].Status = StatusStaged
		}
	}
}

// rewriteFile applies the group's rules and formats the result.
func (e *Engine) rewriteFile(body []byte, file string, g api.Group) ([]byte, error) {
	var err error
	if g.Syntax {
		body, err = rewrite.ApplyImports(body, file, g.Rules)
	} else {
		body, err = rewrite.Apply(body, file, g.Rules)
	}
	if err != nil {
		return nil, err
	}
	return rewrite.Format(body, file), nil
}

// swap writes the staged contents next to the target, clears the
// target, and renames the staged files into place.
func (e *Engine) swap(g api.Group, contents [][]byte) error {
	stage := e.fs.Join(".stitch", fmt.Sprintf("stage-%s-%d", g.Name, time.Now().UnixNano()))
	if err := e.fs.MkdirAll(stage, 0o755); err != nil {
		return fmt.Errorf("mkdir stage: %w", err)
	}
	defer func() { _ = util.RemoveAll(e.fs, stage) }()

	for i, file := range g.Files {
		if err := util.WriteFile(e.fs, e.fs.Join(stage, file), contents[i], 0o644); err != nil {
			return fmt.Errorf("stage %s: %w", file, err)
		}
	}

	if err := e.fs.MkdirAll(g.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", g.Dir, err)
	}
	if err := e.Clear(g.Dir, CleanPatterns(g)); err != nil {
		return err
	}
	for _, file := range g.Files {
		if err := e.fs.Rename(e.fs.Join(stage, file), e.fs.Join(g.Dir, file)); err != nil {
			return fmt.Errorf("install %s: %w", file, err)
		}
	}
	return nil
}

// Clear removes the files in dir whose names match any of the glob
// patterns. Subdirectories and non-matching files stay. A missing dir
// is not an error.
func (e *Engine) Clear(dir string, patterns []string) error {
	entries, err := e.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &CleanupError{Path: dir, Err: err}
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !matchAny(patterns, entry.Name()) {
			continue
		}
		p := e.fs.Join(dir, entry.Name())
		if err := e.fs.Remove(p); err != nil {
			return &CleanupError{Path: p, Err: err}
		}
	}
	return nil
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// CleanPatterns returns the group's clear patterns, defaulting to one
// "*.<ext>" pattern per distinct extension of the listed files so a
// rerun drops files removed from the manifest.
func CleanPatterns(g api.Group) []string {
	if len(g.Clean) > 0 {
		return g.Clean
	}
	seen := make(map[string]bool)
	var patterns []string
	for _, f := range g.Files {
		ext := extOf(f)
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		patterns = append(patterns, "*"+ext)
	}
	return patterns
}

func extOf(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i:]
		}
		if name[i] == '/' {
			break
		}
	}
	return ""
}
