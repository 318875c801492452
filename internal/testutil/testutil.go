// Package testutil provides shared test helpers for setting up decks and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/perthro/internal/history"
	"github.com/starford/perthro/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *history.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "perthro-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := history.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDeck creates a temporary deck-root directory with a storage.Provider.
func TestDeck(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := DeckRoot(t)
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// DeckRoot creates an empty temporary directory whose name carries the
// deck-root suffix.
func DeckRoot(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "cards.deck")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	return root
}

// WriteFile writes a file under root, creating parent directories as needed.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// WriteModel creates a model folder with a config and a minimal front/back
// template pair, so the resolver accepts it without findings.
func WriteModel(t *testing.T, root, name string, fields ...string) {
	t.Helper()
	folder := name + ".model"
	config := "name = \"" + name + "\"\n"
	for _, f := range fields {
		config += "\n[[fields]]\nname = \"" + f + "\"\n"
	}
	WriteFile(t, root, folder+"/config.toml", config)
	WriteFile(t, root, folder+"/"+name+"+Front.hbs", "{{"+first(fields)+"}}\n")
	WriteFile(t, root, folder+"/"+name+"+Back.hbs", "{{"+first(fields)+"}}\n")
	WriteFile(t, root, folder+"/style.css", ".card {}\n")
}

func first(fields []string) string {
	if len(fields) == 0 {
		return "Front"
	}
	return fields[0]
}
