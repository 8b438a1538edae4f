// Package git holds the domain model shared by the change tracking engine.
//
// # Overview
//
// The engine compares three reference points of a repository: the HEAD
// commit, the index (staging area), and the working tree. This package
// defines the vocabulary used by every layer:
//
//   - DeltaStatus, FileChange and FileStagingChange describe per-path results
//   - StatusFlags, StatusOptions and StatusEntry describe raw status scans
//   - Hunk, FileDiff and Diff describe textual differences
//   - Commit, TreeEntry, IndexEntry and Branch describe backend objects
//
// # Errors
//
// Failures are reported with the taxonomy in errors.go:
//
//	ErrUnexpected        invariant violated (unreadable index, impossible status)
//	ErrPatchMismatch     a hunk does not apply, or whole-file rules forbid it
//	CommitNotFoundError  matches ErrCommitNotFound
//	FileNotFoundError    matches ErrFileNotFound
//	BackendError         opaque passthrough from the object store
//
// Use errors.Is and errors.As to inspect them.
//
// # Sub-packages
//
//   - backend: object store adapter built on go-git
//   - changes: change set computation for staged, unstaged and amend modes
//   - diffcache: bounded commit diff cache
//   - patch: hunk application and per-file diffs
//   - staging: whole-file stage, unstage and revert operations
//   - gittest: repository fixtures for tests
package git
