// Package storage implements the deck tree loader: it walks a deck root,
// classifies model folders, and collects card and change-record files.
package storage

// Tree is the classified shape of one deck root.
type Tree struct {
	// ModelDirs holds the folder names of note-model candidates, in their
	// original case, sorted.
	ModelDirs []string
	// AssetsDirs holds every folder case-insensitively named "Assets".
	// A well-formed deck has at most one.
	AssetsDirs []string
	// CardFiles holds slash-separated paths of every card file under the
	// root, at any depth outside the assets folders, sorted.
	CardFiles []string
	// ChangeFiles holds the change-record files found next to card files,
	// sorted.
	ChangeFiles []string
}

// Provider is the read-only deck filesystem abstraction.
type Provider interface {
	// Scan classifies the immediate subfolders of the deck root and
	// collects card and change-record files recursively.
	Scan() (*Tree, error)
	// List returns the names of the regular files directly inside dir
	// (relative to the deck root), sorted.
	List(dir string) ([]string, error)
	// Read returns the raw bytes of the file at path (relative to the
	// deck root).
	Read(path string) ([]byte, error)
	// Root returns the absolute path of the deck root.
	Root() string
}
