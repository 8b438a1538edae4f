// Package gittest builds throwaway repositories for tests using go-git,
// so no git binary is required.
package gittest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a repository rooted in a test temp dir.
type Repo struct {
	t    testing.TB
	Dir  string
	Repo *gogit.Repository
}

// Init creates an empty repository in a fresh temp dir.
func Init(t testing.TB) *Repo {
	t.Helper()

	dir := t.TempDir()
	// Resolve symlinks so paths compare equal to what the backend reports.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	r, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	return &Repo{t: t, Dir: dir, Repo: r}
}

// Path returns the absolute path of a repository relative name.
func (r *Repo) Path(name string) string {
	return filepath.Join(r.Dir, filepath.FromSlash(name))
}

// WriteFile writes content to name, creating parent directories.
func (r *Repo) WriteFile(name, content string) {
	r.t.Helper()

	p := r.Path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		r.t.Fatalf("mkdir %s: %v", name, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		r.t.Fatalf("write %s: %v", name, err)
	}
}

// ReadFile returns the working tree content of name.
func (r *Repo) ReadFile(name string) string {
	r.t.Helper()

	data, err := os.ReadFile(r.Path(name))
	if err != nil {
		r.t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

// Exists reports whether name exists in the working tree.
func (r *Repo) Exists(name string) bool {
	_, err := os.Lstat(r.Path(name))
	return err == nil
}

// Remove deletes name from the working tree only.
func (r *Repo) Remove(name string) {
	r.t.Helper()

	if err := os.RemoveAll(r.Path(name)); err != nil {
		r.t.Fatalf("remove %s: %v", name, err)
	}
}

// Add stages names with go-git's worktree.
func (r *Repo) Add(names ...string) {
	r.t.Helper()

	wt, err := r.Repo.Worktree()
	if err != nil {
		r.t.Fatalf("worktree: %v", err)
	}
	for _, name := range names {
		if _, err := wt.Add(name); err != nil {
			r.t.Fatalf("add %s: %v", name, err)
		}
	}
}

// Commit writes files, stages them and commits. It returns the commit id.
func (r *Repo) Commit(message string, files map[string]string) string {
	r.t.Helper()

	names := make([]string, 0, len(files))
	for name, content := range files {
		r.WriteFile(name, content)
		names = append(names, name)
	}
	r.Add(names...)
	return r.CommitStaged(message)
}

// CommitStaged commits whatever is currently in the index.
func (r *Repo) CommitStaged(message string) string {
	r.t.Helper()

	wt, err := r.Repo.Worktree()
	if err != nil {
		r.t.Fatalf("worktree: %v", err)
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
		AllowEmptyCommits: true,
	})
	if err != nil {
		r.t.Fatalf("commit: %v", err)
	}
	return hash.String()
}

// DeleteAndCommit removes names from the index and working tree and commits.
func (r *Repo) DeleteAndCommit(message string, names ...string) string {
	r.t.Helper()

	wt, err := r.Repo.Worktree()
	if err != nil {
		r.t.Fatalf("worktree: %v", err)
	}
	for _, name := range names {
		if _, err := wt.Remove(name); err != nil {
			r.t.Fatalf("rm %s: %v", name, err)
		}
	}
	return r.CommitStaged(message)
}
