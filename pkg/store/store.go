// Package store implements the on-disk byte store: one directory tree per
// repository under the data root, laid out as
// <data_root>/repos/<id>/files/<path>.
//
// The store owns bytes only; the catalog owns metadata. The filesystem's own
// atomicity for create/rename/unlink is the only per-file synchronization:
// concurrent writers to the same path serialize to last-write-wins, matching
// the WAL append order.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/stashfs/stashfs/pkg/pathsafe"
)

// Store resolves repository-relative paths and performs whole-file byte
// operations beneath the data root.
type Store struct {
	dataDir string
}

// New returns a store rooted at dataDir. Directories are created lazily by
// the operations that need them.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// ReposDir returns the directory holding all repository trees.
func (s *Store) ReposDir() string {
	return filepath.Join(s.dataDir, "repos")
}

// RepoDir returns the root directory of one repository.
func (s *Store) RepoDir(repoID uuid.UUID) string {
	return filepath.Join(s.ReposDir(), repoID.String())
}

// FilesRoot returns the directory holding a repository's file tree. This is
// also the working directory for sandboxed commands.
func (s *Store) FilesRoot(repoID uuid.UUID) string {
	return filepath.Join(s.RepoDir(repoID), "files")
}

// Resolve maps a canonical relative path to its absolute on-disk location
// and verifies it stays within the repository's files root.
func (s *Store) Resolve(repoID uuid.UUID, relPath string) (string, error) {
	root := s.FilesRoot(repoID)
	resolved := filepath.Join(root, filepath.FromSlash(relPath))
	if err := pathsafe.EnsureWithinRoot(root, resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// CreateRepo creates the directory tree for a new repository.
func (s *Store) CreateRepo(repoID uuid.UUID) error {
	if err := os.MkdirAll(s.FilesRoot(repoID), 0o755); err != nil {
		return fmt.Errorf("creating repo dir: %w", err)
	}
	return nil
}

// RemoveRepo deletes a repository's whole on-disk tree.
func (s *Store) RemoveRepo(repoID uuid.UUID) error {
	if err := os.RemoveAll(s.RepoDir(repoID)); err != nil {
		return fmt.Errorf("removing repo dir: %w", err)
	}
	return nil
}

// RepoExists reports whether a repository's files root is present on disk.
func (s *Store) RepoExists(repoID uuid.UUID) bool {
	info, err := os.Stat(s.FilesRoot(repoID))
	return err == nil && info.IsDir()
}

// WriteFile writes the payload to the resolved path, creating parent
// directories as needed. The write is flushed to the OS but not fsynced;
// recovery reconciliation covers the crash window.
func (s *Store) WriteFile(repoID uuid.UUID, relPath string, data []byte) error {
	target, err := s.Resolve(repoID, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent dirs: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	return nil
}

// Exists reports whether the resolved path is present on disk.
func (s *Store) Exists(repoID uuid.UUID, relPath string) bool {
	target, err := s.Resolve(repoID, relPath)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(target)
	return statErr == nil
}

// Remove unlinks the file if present, then walks parent directories upward,
// removing any left empty, stopping at the repository's files root.
func (s *Store) Remove(repoID uuid.UUID, relPath string) error {
	target, err := s.Resolve(repoID, relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing file: %w", err)
	}
	s.cleanupEmptyDirs(s.FilesRoot(repoID), target)
	return nil
}

// Rename moves bytes from source to destination, creating the destination's
// parents first, then cleans up emptied source parents.
func (s *Store) Rename(repoID uuid.UUID, source, destination string) error {
	src, err := s.Resolve(repoID, source)
	if err != nil {
		return err
	}
	dst, err := s.Resolve(repoID, destination)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating destination dirs: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("renaming file: %w", err)
	}
	s.cleanupEmptyDirs(s.FilesRoot(repoID), src)
	return nil
}

// Copy duplicates bytes from source to destination within one repository.
func (s *Store) Copy(repoID uuid.UUID, source, destination string) error {
	src, err := s.Resolve(repoID, source)
	if err != nil {
		return err
	}
	dst, err := s.Resolve(repoID, destination)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating destination dirs: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying bytes: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing destination: %w", err)
	}
	return nil
}

// cleanupEmptyDirs removes now-empty parents of removed, walking upward and
// stopping at root or at the first non-empty directory.
func (s *Store) cleanupEmptyDirs(root, removed string) {
	dir := filepath.Dir(removed)
	for dir != root && len(dir) > len(root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
