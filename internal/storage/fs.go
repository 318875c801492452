package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/perthro/internal/apperr"
	"github.com/starford/perthro/internal/deck"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the deck root
}

// NewFS creates a new FS provider rooted at the given deck directory.
// The path must exist, be a directory, and carry the deck-root suffix;
// anything else is the one failure that aborts a whole pass.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: %w: %s", apperr.ErrNotDeckRoot, abs)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: %w: not a directory: %s", apperr.ErrNotDeckRoot, abs)
	}
	if !strings.HasSuffix(filepath.Base(abs), deck.RootSuffix) {
		return nil, fmt.Errorf("storage: %w: missing %q suffix: %s", apperr.ErrNotDeckRoot, deck.RootSuffix, abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute deck root path.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the deck root and rejects any
// result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes deck root: %s", rel)
	}
	return abs, nil
}

// Scan walks the deck root once: immediate subdirectories become model
// candidates unless they are the reserved assets folder, and card files
// plus their change records are collected at any depth outside assets.
func (f *FS) Scan() (*Tree, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: scan root: %w", err)
	}

	tree := &Tree{}
	assets := make(map[string]struct{})
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.EqualFold(e.Name(), deck.AssetsFolder) {
			tree.AssetsDirs = append(tree.AssetsDirs, e.Name())
			assets[e.Name()] = struct{}{}
			continue
		}
		tree.ModelDirs = append(tree.ModelDirs, e.Name())
	}

	err = filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(f.root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			// Media storage is never parsed.
			if _, ok := assets[rel]; ok {
				return fs.SkipDir
			}
			return nil
		}
		switch {
		case strings.HasSuffix(d.Name(), deck.CardExt):
			tree.CardFiles = append(tree.CardFiles, rel)
		case strings.HasSuffix(d.Name(), deck.ChangeExt):
			tree.ChangeFiles = append(tree.ChangeFiles, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: walk deck: %w", err)
	}

	sort.Strings(tree.ModelDirs)
	sort.Strings(tree.AssetsDirs)
	sort.Strings(tree.CardFiles)
	sort.Strings(tree.ChangeFiles)
	return tree, nil
}

// List returns the regular file names directly inside dir, sorted.
func (f *FS) List(dir string) ([]string, error) {
	abs, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the raw bytes of a deck file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}
