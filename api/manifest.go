package api

// Manifest is the root of a stitch configuration file.
// It declares which upstream files are vendored where.
type Manifest struct {
	// Host is the raw-content base URL. Defaults to GitHub's raw host.
	Host string `hcl:"host,optional"`
	// Groups of files, each fetched from one (owner, repo, ref, path) tuple.
	Groups []Group `hcl:"group,block"`
}

// Group describes one upstream source tree and its local vendored directory.
type Group struct {
	// Name labels the group in reports and lock entries.
	Name string `hcl:"name,label"`
	// Owner is the remote account.
	Owner string `hcl:"owner"`
	// Repo is the repository name.
	Repo string `hcl:"repo"`
	// Ref is the branch, tag, or commit to fetch from.
	Ref string `hcl:"ref"`
	// Path is the directory inside the repository holding the files.
	Path string `hcl:"path,optional"`
	// Dir is the local target directory, relative to the manifest.
	Dir string `hcl:"dir"`
	// Files is the ordered list of file names to vendor.
	Files []string `hcl:"files"`
	// Clean is the set of glob patterns cleared from Dir before repopulation.
	Clean []string `hcl:"clean,optional"`
	// Syntax restricts rewrite rules to import statements of parsed source.
	Syntax bool `hcl:"syntax,optional"`
	// Rules are applied to each fetched file, in order.
	Rules []Rule `hcl:"rule,block"`
}

// Rule is a single import rewrite: a pattern and its replacement.
// Rules are plain substring substitutions unless Regex is set.
type Rule struct {
	Pattern string `hcl:"pattern"`
	Replace string `hcl:"replace"`
	Regex   bool   `hcl:"regex,optional"`
}

// DefaultHost is the raw-content host used when the manifest omits one.
const DefaultHost = "https://raw.githubusercontent.com"

// RawURL composes the raw-content URL for one file of a group:
// <host>/<owner>/<repo>/<ref>/<path>/<file>.
func (g Group) RawURL(host, file string) string {
	if host == "" {
		host = DefaultHost
	}
	url := host + "/" + g.Owner + "/" + g.Repo + "/" + g.Ref
	if g.Path != "" {
		url += "/" + g.Path
	}
	return url + "/" + file
}
