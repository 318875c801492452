// Package deck defines the domain types for a parsed flashcard deck tree.
package deck

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

// AssetsFolder is the reserved media folder name, matched case-insensitively.
const AssetsFolder = "Assets"

// Reserved filename extensions and markers of the deck layout.
const (
	RootSuffix     = ".deck"
	ModelSuffix    = ".model"
	CardExt        = ".flash"
	ChangeExt      = ".changes"
	TemplateExt    = ".hbs"
	ConfigFile     = "config.toml"
	StylesheetFile = "style.css"
	PreambleFile   = "pre.tex"
	PostambleFile  = "post.tex"
)

// Side is the face of a card a template renders.
type Side string

// Template sides.
const (
	Front Side = "Front"
	Back  Side = "Back"
)

// Variant distinguishes the standard rendering of a template from the
// browser-specific one.
type Variant string

// Template variants.
const (
	Standard Variant = "Standard"
	Browser  Variant = "Browser"
)

// TemplateKey identifies one template within a model's template set.
type TemplateKey struct {
	Name    string
	Side    Side
	Variant Variant
}

// Template is one Front or Back rendering definition of a model.
type Template struct {
	Name    string
	Side    Side
	Variant Variant
	// Source is the raw template markup, passed through to the rendering
	// engine untouched.
	Source string
}

// FieldDef is one field declared by a model's configuration.
type FieldDef struct {
	Name   string `toml:"name"`
	Sticky bool   `toml:"sticky"`
}

// Option is one opaque configuration key/value preserved in declaration
// order for the rendering engine. The conformance engine never interprets
// these.
type Option struct {
	Key   string
	Value any
}

// ModelConfig is the parsed config.toml of one note model.
type ModelConfig struct {
	Name          string
	SchemaVersion *semver.Version
	SortField     string
	Tags          []string
	Fields        []FieldDef
	// Extra holds every key the engine does not interpret, in file order.
	Extra []Option
}

// FieldNames returns the declared field names in declaration order.
func (c *ModelConfig) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// HasField reports whether name is a declared field of the model.
func (c *ModelConfig) HasField(name string) bool {
	for _, f := range c.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// NoteModel is a fully resolved model folder: configuration, template set,
// stylesheet, and optional LaTeX preamble/postamble.
type NoteModel struct {
	// Name is the folder name with any ".model" suffix stripped.
	Name      string
	Folder    string
	Config    ModelConfig
	Templates map[TemplateKey]Template
	// Stylesheet is the raw CSS content. Required; resolution reports
	// MissingStylesheet when absent.
	Stylesheet string
	Preamble   string
	Postamble  string
}

// TemplateNames returns the distinct template names in the set, sorted.
func (m *NoteModel) TemplateNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for key := range m.Templates {
		if _, ok := seen[key.Name]; ok {
			continue
		}
		seen[key.Name] = struct{}{}
		names = append(names, key.Name)
	}
	sort.Strings(names)
	return names
}

// IdentityKind selects how a block is identified during a diff pass.
type IdentityKind int

// Identity kinds.
const (
	// ByPosition identifies a block by its ordinal alone.
	ByPosition IdentityKind = iota
	// ByStableID identifies a block by its UUID annotation.
	ByStableID
)

// Identity is the tagged identity of a NoteBlock, resolved once per diff
// pass: stable-ID identity when the block carries a UUID, positional
// identity otherwise.
type Identity struct {
	Kind    IdentityKind
	UUID    uuid.UUID
	Ordinal int
}

// String renders the identity for report messages.
func (id Identity) String() string {
	if id.Kind == ByStableID {
		return id.UUID.String()
	}
	return "ordinal " + strconv.Itoa(id.Ordinal)
}

// NoteBlock is a single card's content within a card file.
type NoteBlock struct {
	// Ordinal is the zero-based position within the owning file.
	Ordinal int
	// UUID is the optional stable identifier. Once assigned by the
	// authoring tool it must never change across revisions.
	UUID *uuid.UUID
	// Model is the name of the note model active when the block was
	// declared. Empty when no model selector preceded the block.
	Model string
	// Fields maps field names to verbatim content.
	Fields map[string]string
	// FieldOrder preserves the order fields appeared in the source.
	FieldOrder []string
	Tags       []string
}

// Identity resolves the block's diff identity.
func (b *NoteBlock) Identity() Identity {
	if b.UUID != nil {
		return Identity{Kind: ByStableID, UUID: *b.UUID, Ordinal: b.Ordinal}
	}
	return Identity{Kind: ByPosition, Ordinal: b.Ordinal}
}

// SameShape reports whether two blocks declare the same field set.
// Residual (positional) matching treats a shape mismatch as a
// deletion plus addition rather than a modification.
func (b *NoteBlock) SameShape(other *NoteBlock) bool {
	if len(b.Fields) != len(other.Fields) {
		return false
	}
	for name := range b.Fields {
		if _, ok := other.Fields[name]; !ok {
			return false
		}
	}
	return true
}

// FlashcardFile is one parsed card file.
type FlashcardFile struct {
	// Path is relative to the deck root, slash-separated.
	Path string
	// Checksum is the SHA-256 of the raw file bytes, used to short-circuit
	// diffs of unchanged files.
	Checksum string
	Blocks   []NoteBlock
}

// Move is one explicit old→new ordinal mapping from a change record.
type Move struct {
	Old int
	New int
}

// ChangeRecord is the parsed .changes file of one card-file revision.
type ChangeRecord struct {
	// Path is the card file the record is scoped to, relative to the root.
	Path  string
	Moves []Move
}

// MoveFor returns the documented move for the given old ordinal, if any.
func (r *ChangeRecord) MoveFor(old int) (Move, bool) {
	for _, m := range r.Moves {
		if m.Old == old {
			return m, true
		}
	}
	return Move{}, false
}

// Repository is the root entity of one parsed deck tree snapshot. It is
// constructed fresh on each parse pass and never mutated afterwards.
type Repository struct {
	// Root is the absolute path of the deck root folder.
	Root string
	// Models is keyed by the lowercased model folder name; folder-name
	// uniqueness is case-insensitive.
	Models map[string]*NoteModel
	// Files is keyed by slash-separated path relative to Root.
	Files map[string]*FlashcardFile
	// Changes is keyed like Files, by the card-file path the record
	// belongs to.
	Changes map[string]*ChangeRecord
	// AssetsDir is the reserved media folder, empty when absent.
	AssetsDir string
}

// ModelNamed looks a model up by display name, case-insensitively.
func (r *Repository) ModelNamed(name string) (*NoteModel, bool) {
	for _, m := range r.Models {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return nil, false
}

// FilePaths returns the card-file paths in sorted order.
func (r *Repository) FilePaths() []string {
	paths := make([]string, 0, len(r.Files))
	for p := range r.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ModelFolders returns the model folder keys in sorted order.
func (r *Repository) ModelFolders() []string {
	keys := make([]string, 0, len(r.Models))
	for k := range r.Models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
