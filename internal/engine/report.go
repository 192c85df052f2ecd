package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/ohler55/ojg/oj"
)

// File statuses in a run report. Fetched and cached files are
// installed; staged ones were retrieved and rewritten but their group
// did not swap, so they never reached the target directory.
const (
	StatusFetched = "fetched"
	StatusCached  = "cached"
	StatusStaged  = "staged"
	StatusFailed  = "failed"
)

// FileResult is the outcome of one file of a group.
type FileResult struct {
	File   string `json:"file"`
	URL    string `json:"url"`
	Status string `json:"status"`
	SHA256 string `json:"sha256,omitempty"`
	ETag   string `json:"etag,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Error  string `json:"error,omitempty"`
}

// GroupReport is the outcome of one manifest group.
type GroupReport struct {
	Name  string       `json:"name"`
	Dir   string       `json:"dir"`
	Files []FileResult `json:"files"`
	Error string       `json:"error,omitempty"`
}

// Report is the aggregated outcome of a run.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Groups     []GroupReport `json:"groups"`
}

// Failed counts files that did not vendor.
func (r *Report) Failed() int {
	n := 0
	for _, g := range r.Groups {
		for _, f := range g.Files {
			if f.Status == StatusFailed {
				n++
			}
		}
	}
	return n
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return oj.Marshal(r, 2)
}

// Summary renders a short human-readable account of the run.
func (r *Report) Summary() string {
	var b strings.Builder
	for _, g := range r.Groups {
		fmt.Fprintf(&b, "%s -> %s\n", g.Name, g.Dir)
		for _, f := range g.Files {
			if f.Error != "" {
				fmt.Fprintf(&b, "  %-30s %s (%s)\n", f.File, f.Status, f.Error)
			} else {
				fmt.Fprintf(&b, "  %-30s %s\n", f.File, f.Status)
			}
		}
		if g.Error != "" {
			fmt.Fprintf(&b, "  group error: %s\n", g.Error)
		}
	}
	fmt.Fprintf(&b, "%d failed, took %v\n", r.Failed(), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	return b.String()
}
