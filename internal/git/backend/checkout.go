package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/dshills/stagehand/internal/git"
)

// CheckoutPaths restores HEAD's version of each path (file or directory)
// into the working tree and the index. Paths HEAD does not contain are
// removed from both. Without CheckoutForce, files whose working tree content
// differs from the index are left alone and reported in the returned error.
func (g *GoGit) CheckoutPaths(paths []string, strategy CheckoutStrategy) error {
	head, err := g.HeadCommit()
	if err != nil {
		return err
	}
	t, err := g.tree(head.ID)
	if err != nil {
		return err
	}
	ix, err := g.OpenIndex()
	if err != nil {
		return err
	}
	gix := ix.(*goGitIndex)

	var skipped []string
	for _, p := range paths {
		p = cleanPath(p)
		files, err := headFiles(t, p)
		if err != nil {
			return err
		}

		if len(files) == 0 {
			if !strategy.Has(CheckoutForce) && g.dirty(gix, p) {
				skipped = append(skipped, p)
				continue
			}
			if err := os.RemoveAll(g.abs(p)); err != nil {
				return git.WrapBackend("remove "+p, git.CodeWorktree, err)
			}
			_ = gix.Remove(p)
			continue
		}

		for _, f := range files {
			_, statErr := os.Lstat(g.abs(f.Name))
			missing := errors.Is(statErr, fs.ErrNotExist)
			if missing && !strategy.Has(CheckoutRecreateMissing) {
				continue
			}
			if !missing && !strategy.Has(CheckoutForce) && g.dirty(gix, f.Name) {
				skipped = append(skipped, f.Name)
				continue
			}
			if err := g.writeWorktreeFile(f); err != nil {
				return err
			}
			info, err := os.Lstat(g.abs(f.Name))
			if err != nil {
				return git.WrapBackend("stat "+f.Name, git.CodeWorktree, err)
			}
			gix.upsert(&index.Entry{
				Hash:       f.Hash,
				Name:       f.Name,
				Mode:       f.Mode,
				Size:       uint32(f.Size),
				ModifiedAt: info.ModTime(),
				CreatedAt:  info.ModTime(),
			})
		}
	}

	if err := gix.Save(); err != nil {
		return err
	}
	if len(skipped) > 0 {
		return fmt.Errorf("checkout: local changes would be overwritten: %s: %w",
			strings.Join(skipped, ", "), git.ErrUnexpected)
	}
	return nil
}

// headFiles returns the files of t at p, or under p when it is a directory.
func headFiles(t *object.Tree, p string) ([]*object.File, error) {
	if t == nil {
		return nil, nil
	}
	e, err := t.FindEntry(p)
	if err != nil {
		return nil, nil
	}
	if e.Mode != filemode.Dir {
		f, err := t.File(p)
		if err != nil {
			return nil, git.WrapBackend("read "+p, git.CodeObjectRead, err)
		}
		return []*object.File{f}, nil
	}

	sub, err := t.Tree(p)
	if err != nil {
		return nil, git.WrapBackend("read tree "+p, git.CodeObjectRead, err)
	}
	var files []*object.File
	err = sub.Files().ForEach(func(f *object.File) error {
		f.Name = p + "/" + f.Name
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, git.WrapBackend("walk tree "+p, git.CodeObjectRead, err)
	}
	return files, nil
}

// dirty reports whether the working tree copy of p differs from the index.
func (g *GoGit) dirty(ix *goGitIndex, p string) bool {
	for _, e := range ix.idx.Entries {
		if e.Name != p || e.Stage != stageMerged {
			continue
		}
		info, err := os.Lstat(g.abs(p))
		if err != nil {
			return false
		}
		return compareEntry(g.abs(p), info, e) != git.Current
	}
	// Untracked content would be lost.
	_, err := os.Lstat(g.abs(p))
	return err == nil
}

func (g *GoGit) writeWorktreeFile(f *object.File) error {
	full := g.abs(f.Name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return git.WrapBackend("mkdir "+f.Name, git.CodeWorktree, err)
	}
	data, err := g.BlobData(f.Hash.String())
	if err != nil {
		return err
	}

	_ = os.Remove(full)
	switch f.Mode {
	case filemode.Symlink:
		err = os.Symlink(string(data), full)
	case filemode.Executable:
		err = os.WriteFile(full, data, 0o755)
	default:
		err = os.WriteFile(full, data, 0o644)
	}
	if err != nil {
		return git.WrapBackend("write "+f.Name, git.CodeWorktree, err)
	}
	return nil
}

func (g *GoGit) abs(p string) string {
	return filepath.Join(g.workdir, filepath.FromSlash(p))
}
