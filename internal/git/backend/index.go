package backend

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/dshills/stagehand/internal/git"
)

// stageMerged is the stage of an entry outside a merge conflict. go-git's
// index.Merged constant is 1 and names the conflict ancestor stage, not this.
const stageMerged index.Stage = 0

// goGitIndex is the Index implementation for GoGit.
type goGitIndex struct {
	g   *GoGit
	idx *index.Index
}

// OpenIndex reads the index from disk. A repository without an index file
// yields an empty one.
func (g *GoGit) OpenIndex() (Index, error) {
	idx, err := g.readIndex()
	if err != nil {
		return nil, err
	}
	return &goGitIndex{g: g, idx: idx}, nil
}

func (g *GoGit) readIndex() (*index.Index, error) {
	idx, err := g.repo.Storer.Index()
	if err != nil {
		return nil, git.WrapBackend("read index", git.CodeIndexRead, err)
	}
	return idx, nil
}

func (ix *goGitIndex) Entry(p string) (*git.IndexEntry, error) {
	for _, e := range ix.idx.Entries {
		if e.Name == p && e.Stage == stageMerged {
			ie := convertEntry(e)
			return &ie, nil
		}
	}
	return nil, &git.FileNotFoundError{Path: p}
}

func (ix *goGitIndex) Entries() []git.IndexEntry {
	out := make([]git.IndexEntry, 0, len(ix.idx.Entries))
	for _, e := range ix.idx.Entries {
		if e.Stage == stageMerged {
			out = append(out, convertEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func convertEntry(e *index.Entry) git.IndexEntry {
	return git.IndexEntry{
		Path:  e.Name,
		ID:    e.Hash.String(),
		Kind:  kindOf(e.Mode),
		Size:  e.Size,
		Stage: int(e.Stage),
	}
}

func (ix *goGitIndex) AddPath(p string) error {
	p = cleanPath(p)
	abs := filepath.Join(ix.g.workdir, filepath.FromSlash(p))
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &git.FileNotFoundError{Path: p}
		}
		return git.WrapBackend("stat "+p, git.CodeWorktree, err)
	}
	if !info.IsDir() {
		return ix.addFile(p, abs, info)
	}

	matcher := ix.g.ignoreMatcher()
	return filepath.WalkDir(abs, func(full string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(ix.g.workdir, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !ix.tracked(rel) && matcher.Match(splitPath(rel), false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return ix.addFile(rel, full, info)
	})
}

func (ix *goGitIndex) addFile(rel, abs string, info os.FileInfo) error {
	data, err := readWorktreeFile(abs, info)
	if err != nil {
		return git.WrapBackend("read "+rel, git.CodeWorktree, err)
	}
	mode, err := filemode.NewFromOSFileMode(info.Mode())
	if err != nil {
		return git.WrapBackend("mode "+rel, git.CodeWorktree, err)
	}
	h, err := ix.g.writeBlob(data)
	if err != nil {
		return err
	}
	ix.upsert(&index.Entry{
		Hash:       h,
		Name:       rel,
		Mode:       mode,
		Size:       uint32(len(data)),
		ModifiedAt: info.ModTime(),
		CreatedAt:  info.ModTime(),
	})
	return nil
}

// readWorktreeFile returns what git would hash for a working tree path:
// the link target for symlinks and the file bytes otherwise.
func readWorktreeFile(abs string, info os.FileInfo) ([]byte, error) {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(abs)
		if err != nil {
			return nil, err
		}
		return []byte(filepath.ToSlash(target)), nil
	}
	return os.ReadFile(abs)
}

func (ix *goGitIndex) AddData(p string, data []byte) error {
	p = cleanPath(p)
	h, err := ix.g.writeBlob(data)
	if err != nil {
		return err
	}
	mode := filemode.Regular
	if existing, err := ix.Entry(p); err == nil {
		mode = fileModeOf(existing.Kind)
	}
	ix.upsert(&index.Entry{
		Hash:       h,
		Name:       p,
		Mode:       mode,
		Size:       uint32(len(data)),
		ModifiedAt: time.Now(),
		CreatedAt:  time.Now(),
	})
	return nil
}

func (ix *goGitIndex) AddFromTree(commitID, p string) error {
	p = cleanPath(p)
	t, err := ix.g.tree(commitID)
	if err != nil {
		return err
	}
	if t == nil {
		return &git.FileNotFoundError{Path: p}
	}
	f, err := t.File(p)
	if err == nil {
		ix.upsertFile(p, f)
		return nil
	}
	if !errors.Is(err, object.ErrFileNotFound) {
		return git.WrapBackend("read tree entry "+p, git.CodeObjectRead, err)
	}

	sub, err := t.Tree(p)
	if err != nil {
		return &git.FileNotFoundError{Path: p}
	}
	err = sub.Files().ForEach(func(f *object.File) error {
		ix.upsertFile(p+"/"+f.Name, f)
		return nil
	})
	if err != nil {
		return git.WrapBackend("read tree "+p, git.CodeObjectRead, err)
	}
	return nil
}

func (ix *goGitIndex) upsertFile(name string, f *object.File) {
	ix.upsert(&index.Entry{
		Hash: f.Hash,
		Name: name,
		Mode: f.Mode,
		Size: uint32(f.Size),
	})
}

func (ix *goGitIndex) Remove(p string) error {
	p = cleanPath(p)
	prefix := p + "/"
	kept := ix.idx.Entries[:0]
	for _, e := range ix.idx.Entries {
		if e.Name == p || strings.HasPrefix(e.Name, prefix) {
			continue
		}
		kept = append(kept, e)
	}
	ix.idx.Entries = kept
	return nil
}

func (ix *goGitIndex) ReadTree(commitID string) error {
	t, err := ix.g.tree(commitID)
	if err != nil {
		return err
	}
	ix.idx.Entries = nil
	if t == nil {
		return nil
	}
	err = t.Files().ForEach(func(f *object.File) error {
		ix.idx.Entries = append(ix.idx.Entries, &index.Entry{
			Hash: f.Hash,
			Name: f.Name,
			Mode: f.Mode,
			Size: uint32(f.Size),
		})
		return nil
	})
	if err != nil {
		return git.WrapBackend("read tree", git.CodeObjectRead, err)
	}
	return nil
}

func (ix *goGitIndex) Clear() {
	ix.idx.Entries = nil
}

// Save writes the index. The cached tree extension is dropped because the
// entries no longer match it; git rebuilds it on the next write-tree.
func (ix *goGitIndex) Save() error {
	sort.SliceStable(ix.idx.Entries, func(i, j int) bool {
		a, b := ix.idx.Entries[i], ix.idx.Entries[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Stage < b.Stage
	})
	ix.idx.Cache = nil
	if ix.idx.Version == 0 {
		ix.idx.Version = 2
	}
	if err := ix.g.repo.Storer.SetIndex(ix.idx); err != nil {
		return git.WrapBackend("write index", git.CodeIndexWrite, err)
	}
	return nil
}

// upsert replaces every stage of e.Name with e at stage 0.
func (ix *goGitIndex) upsert(e *index.Entry) {
	kept := ix.idx.Entries[:0]
	for _, old := range ix.idx.Entries {
		if old.Name != e.Name {
			kept = append(kept, old)
		}
	}
	ix.idx.Entries = append(kept, e)
}

func (ix *goGitIndex) tracked(p string) bool {
	for _, e := range ix.idx.Entries {
		if e.Name == p {
			return true
		}
	}
	return false
}

func fileModeOf(k git.ObjectKind) filemode.FileMode {
	switch k {
	case git.KindExecutable:
		return filemode.Executable
	case git.KindSymlink:
		return filemode.Symlink
	case git.KindSubmodule:
		return filemode.Submodule
	default:
		return filemode.Regular
	}
}

// cleanPath normalizes a repository relative path to slash form.
func cleanPath(p string) string {
	p = path.Clean(filepath.ToSlash(p))
	return strings.TrimPrefix(p, "./")
}

func splitPath(p string) []string {
	return strings.Split(strings.TrimSuffix(p, "/"), "/")
}

// hashData computes the blob id git would assign to data.
func hashData(data []byte) plumbing.Hash {
	return plumbing.ComputeHash(plumbing.BlobObject, data)
}
