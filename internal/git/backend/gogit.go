package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/rs/zerolog"

	"github.com/dshills/stagehand/internal/git"
)

// GoGit is a Backend over a go-git repository opened from disk.
type GoGit struct {
	repo    *gogit.Repository
	workdir string
	gitDir  string
	logger  zerolog.Logger
}

// Option configures a GoGit backend.
type Option func(*GoGit)

// WithLogger sets the logger used for debug tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(g *GoGit) {
		g.logger = l.With().Str("component", "backend").Logger()
	}
}

// Open opens the repository containing path, searching parent directories
// for the repository root.
func Open(path string, opts ...Option) (*GoGit, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", absPath, git.ErrNotRepository)
		}
		return nil, git.WrapBackend("open repository", git.CodeWorktree, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		// Bare repositories have no working tree to track.
		return nil, fmt.Errorf("%s: %w", absPath, git.ErrNotRepository)
	}

	g := &GoGit{
		repo:    repo,
		workdir: wt.Filesystem.Root(),
		logger:  zerolog.Nop(),
	}
	if fs, ok := repo.Storer.(*filesystem.Storage); ok {
		g.gitDir = fs.Filesystem().Root()
	} else {
		g.gitDir = filepath.Join(g.workdir, gogit.GitDirName)
	}

	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Repository exposes the underlying go-git repository.
func (g *GoGit) Repository() *gogit.Repository {
	return g.repo
}

// Workdir returns the working tree root.
func (g *GoGit) Workdir() string {
	return g.workdir
}

// GitDir returns the repository metadata directory.
func (g *GoGit) GitDir() string {
	return g.gitDir
}

// ConfigPath returns the repository config file path.
func (g *GoGit) ConfigPath() string {
	return filepath.Join(g.gitDir, "config")
}

// ResolveCommit resolves id to a commit.
func (g *GoGit) ResolveCommit(id string) (*git.Commit, error) {
	if id == git.EmptyTreeID {
		return &git.Commit{ID: git.EmptyTreeID, TreeID: git.EmptyTreeID}, nil
	}

	hash, err := g.repo.ResolveRevision(plumbing.Revision(id))
	if err != nil {
		return nil, &git.CommitNotFoundError{ID: id}
	}
	c, err := g.repo.CommitObject(*hash)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, &git.CommitNotFoundError{ID: id}
		}
		return nil, git.WrapBackend("read commit", git.CodeObjectRead, err)
	}
	return convertCommit(c), nil
}

// HeadCommit returns the commit HEAD resolves to.
func (g *GoGit) HeadCommit() (*git.Commit, error) {
	ref, err := g.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, git.ErrNoHead
		}
		return nil, git.WrapBackend("resolve HEAD", git.CodeRefRead, err)
	}
	c, err := g.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, git.WrapBackend("read HEAD commit", git.CodeObjectRead, err)
	}
	return convertCommit(c), nil
}

func convertCommit(c *object.Commit) *git.Commit {
	parents := make([]string, len(c.ParentHashes))
	for i, p := range c.ParentHashes {
		parents[i] = p.String()
	}
	return &git.Commit{
		ID:        c.Hash.String(),
		TreeID:    c.TreeHash.String(),
		ParentIDs: parents,
		Message:   c.Message,
		Author:    c.Author.Name,
		When:      c.Author.When,
	}
}

// tree returns the root tree of commitID. The empty tree id yields nil,
// which go-git's tree walkers and differ accept as "no files".
func (g *GoGit) tree(commitID string) (*object.Tree, error) {
	if commitID == git.EmptyTreeID {
		return nil, nil
	}
	c, err := g.ResolveCommit(commitID)
	if err != nil {
		return nil, err
	}
	t, err := g.repo.TreeObject(plumbing.NewHash(c.TreeID))
	if err != nil {
		return nil, git.WrapBackend("read tree", git.CodeObjectRead, err)
	}
	return t, nil
}

// TreeEntry looks up path in the tree of commitID.
func (g *GoGit) TreeEntry(commitID, path string) (*git.TreeEntry, error) {
	t, err := g.tree(commitID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, &git.FileNotFoundError{Path: path}
	}
	e, err := t.FindEntry(path)
	if err != nil {
		return nil, &git.FileNotFoundError{Path: path}
	}
	return &git.TreeEntry{Path: path, ID: e.Hash.String(), Kind: kindOf(e.Mode)}, nil
}

// BlobData returns a blob's content.
func (g *GoGit) BlobData(blobID string) ([]byte, error) {
	blob, err := g.repo.BlobObject(plumbing.NewHash(blobID))
	if err != nil {
		return nil, git.WrapBackend("read blob "+blobID, git.CodeObjectRead, err)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, git.WrapBackend("open blob "+blobID, git.CodeObjectRead, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, git.WrapBackend("read blob "+blobID, git.CodeObjectRead, err)
	}
	return data, nil
}

// writeBlob stores data as a loose blob and returns its hash.
func (g *GoGit) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := g.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, git.WrapBackend("write blob", git.CodeObjectWrite, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return plumbing.ZeroHash, git.WrapBackend("write blob", git.CodeObjectWrite, err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, git.WrapBackend("write blob", git.CodeObjectWrite, err)
	}

	h, err := g.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, git.WrapBackend("store blob", git.CodeObjectWrite, err)
	}
	return h, nil
}

// DiffTrees compares the trees of two commits with rename detection.
func (g *GoGit) DiffTrees(oldCommitID, newCommitID string) (*git.Diff, error) {
	oldTree, err := g.tree(oldCommitID)
	if err != nil {
		return nil, err
	}
	newTree, err := g.tree(newCommitID)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(context.Background(), oldTree, newTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, git.WrapBackend("diff trees", git.CodeDiff, err)
	}

	diff := &git.Diff{OldID: oldCommitID, NewID: newCommitID}
	for _, ch := range changes {
		fd, err := convertChange(ch)
		if err != nil {
			return nil, git.WrapBackend("diff trees", git.CodeDiff, err)
		}
		diff.Files = append(diff.Files, fd)
	}
	sort.Slice(diff.Files, func(i, j int) bool {
		return diff.Files[i].Path() < diff.Files[j].Path()
	})

	g.logger.Debug().
		Str("old", oldCommitID).
		Str("new", newCommitID).
		Int("files", len(diff.Files)).
		Msg("diffed trees")
	return diff, nil
}

func convertChange(ch *object.Change) (git.FileDiff, error) {
	action, err := ch.Action()
	if err != nil {
		return git.FileDiff{}, err
	}
	fd := git.FileDiff{
		OldPath: ch.From.Name,
		NewPath: ch.To.Name,
	}
	if !ch.From.TreeEntry.Hash.IsZero() {
		fd.OldID = ch.From.TreeEntry.Hash.String()
	}
	if !ch.To.TreeEntry.Hash.IsZero() {
		fd.NewID = ch.To.TreeEntry.Hash.String()
	}

	switch action {
	case merkletrie.Insert:
		fd.Status = git.Added
	case merkletrie.Delete:
		fd.Status = git.Deleted
	case merkletrie.Modify:
		switch {
		case fd.OldPath != fd.NewPath:
			fd.Status = git.Renamed
		case !kindOf(ch.From.TreeEntry.Mode).SameType(kindOf(ch.To.TreeEntry.Mode)):
			fd.Status = git.TypeChange
		default:
			fd.Status = git.Modified
		}
	}
	return fd, nil
}

// CurrentBranch returns the branch HEAD points at. An unborn branch still
// has a name; a detached HEAD returns "".
func (g *GoGit) CurrentBranch() (string, error) {
	ref, err := g.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", git.WrapBackend("read HEAD", git.CodeRefRead, err)
	}
	if ref.Type() != plumbing.SymbolicReference {
		return "", nil
	}
	return ref.Target().Short(), nil
}

// Branches lists local branches sorted by name.
func (g *GoGit) Branches() ([]git.Branch, error) {
	current, err := g.CurrentBranch()
	if err != nil {
		return nil, err
	}

	iter, err := g.repo.Branches()
	if err != nil {
		return nil, git.WrapBackend("list branches", git.CodeRefRead, err)
	}
	defer iter.Close()

	var branches []git.Branch
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		branches = append(branches, git.Branch{
			Name:     name,
			CommitID: ref.Hash().String(),
			IsHead:   name == current,
		})
		return nil
	})
	if err != nil {
		return nil, git.WrapBackend("list branches", git.CodeRefRead, err)
	}

	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

func kindOf(m filemode.FileMode) git.ObjectKind {
	switch m {
	case filemode.Executable:
		return git.KindExecutable
	case filemode.Symlink:
		return git.KindSymlink
	case filemode.Submodule:
		return git.KindSubmodule
	case filemode.Dir:
		return git.KindTree
	default:
		return git.KindFile
	}
}

var _ Backend = (*GoGit)(nil)
