package backend

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// ignoreMatcher loads .gitignore files from the working tree (and
// .git/info/exclude) into a matcher. Rules are read fresh on every call so
// edits to ignore files are picked up by the next scan.
func (g *GoGit) ignoreMatcher() gitignore.Matcher {
	patterns, err := gitignore.ReadPatterns(osfs.New(g.workdir), nil)
	if err != nil {
		g.logger.Debug().Err(err).Msg("reading ignore patterns")
	}
	return gitignore.NewMatcher(patterns)
}

// IsIgnored reports whether path matches the repository's ignore rules.
func (g *GoGit) IsIgnored(path string) bool {
	p := cleanPath(path)
	info, err := os.Lstat(filepath.Join(g.workdir, filepath.FromSlash(p)))
	isDir := err == nil && info.IsDir()
	return g.ignoreMatcher().Match(splitPath(p), isDir)
}
