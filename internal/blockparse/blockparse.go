// Package blockparse turns card-file bytes into ordered, identity-bearing
// note blocks.
//
// Boundary detection is a pluggable Grammar. Any implementation must be
// deterministic (same bytes, same sequence) and local (editing one block
// without touching boundary markers never shifts another block's ordinal).
// The default FlashGrammar implements the line grammar of .flash files.
package blockparse

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/perthro/internal/checksum"
	"github.com/starford/perthro/internal/deck"
	"github.com/starford/perthro/internal/report"
)

// Grammar parses one card file into an ordered block sequence.
type Grammar interface {
	Parse(path string, data []byte, models map[string]*deck.NoteModel) (*deck.FlashcardFile, []report.Violation)
}

// Parse runs the default grammar over a card file.
func Parse(path string, data []byte, models map[string]*deck.NoteModel) (*deck.FlashcardFile, []report.Violation) {
	return FlashGrammar{}.Parse(path, data, models)
}

var (
	modelLineRe = regexp.MustCompile(`^=\s*(.*?)\s*=$`)
	uuidLineRe  = regexp.MustCompile(`^\^\s*(\S+)$`)
	tagsLineRe  = regexp.MustCompile(`^\[(.*)\]$`)
	aliasLineRe = regexp.MustCompile(`^alias\s+(\S+)\s+to\s+(\S+)$`)
	fieldLineRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*):\s?(.*)$`)
)

// FlashGrammar is the default .flash line grammar:
//
//	= Model Name =      selects the model for the blocks that follow
//	^ <uuid>            stable-identifier annotation for the current block
//	Field: content      one field of the current block
//	[tag, tag]          tags of the current block
//	alias From to To    writes of "To:" resolve to field "From"
//	// comment          ignored
//	<blank line>        terminates the current block
type FlashGrammar struct{}

// builder accumulates one pending block while scanning lines.
type builder struct {
	path       string
	models     map[string]*deck.NoteModel
	model      *deck.NoteModel
	modelName  string
	aliases    map[string]string
	pendingID  *uuid.UUID
	fields     map[string]string
	fieldOrder []string
	tags       []string
	blocks     []deck.NoteBlock
	violations []report.Violation
}

// Parse implements Grammar.
func (FlashGrammar) Parse(path string, data []byte, models map[string]*deck.NoteModel) (*deck.FlashcardFile, []report.Violation) {
	b := &builder{
		path:    path,
		models:  models,
		aliases: make(map[string]string),
		fields:  make(map[string]string),
	}

	for _, line := range strings.Split(string(data), "\n") {
		b.line(strings.TrimRight(line, "\r"))
	}
	b.finalize()

	file := &deck.FlashcardFile{
		Path:     path,
		Checksum: checksum.Sum(data),
		Blocks:   b.blocks,
	}

	// A stable identifier names one block; sharing it breaks identity
	// resolution for the whole file.
	seen := make(map[uuid.UUID]int)
	for _, blk := range file.Blocks {
		if blk.UUID == nil {
			continue
		}
		if first, dup := seen[*blk.UUID]; dup {
			b.violations = append(b.violations, report.NewAt(report.CodeDuplicateUUID, path, blk.Ordinal,
				"identifier %s already used by block %d", blk.UUID, first))
			continue
		}
		seen[*blk.UUID] = blk.Ordinal
	}

	return file, b.violations
}

func (b *builder) line(line string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		b.finalize()

	case strings.HasPrefix(trimmed, "//"):
		// Comment.

	case modelLineRe.MatchString(trimmed):
		b.finalize()
		name := modelLineRe.FindStringSubmatch(trimmed)[1]
		b.switchModel(name)

	case uuidLineRe.MatchString(trimmed):
		raw := uuidLineRe.FindStringSubmatch(trimmed)[1]
		id, err := uuid.Parse(raw)
		if err != nil {
			b.fail("invalid identifier annotation %q", raw)
			return
		}
		if b.pendingID != nil {
			b.fail("block carries more than one identifier annotation")
			return
		}
		b.pendingID = &id

	case tagsLineRe.MatchString(trimmed):
		b.tags = splitTags(tagsLineRe.FindStringSubmatch(trimmed)[1])

	case aliasLineRe.MatchString(trimmed):
		m := aliasLineRe.FindStringSubmatch(trimmed)
		// Occurrences of the alias resolve back to the declared field.
		if b.model != nil {
			b.aliases[m[2]] = m[1]
		}

	case fieldLineRe.MatchString(trimmed):
		m := fieldLineRe.FindStringSubmatch(trimmed)
		b.field(m[1], m[2])

	default:
		b.fail("line cannot be resolved into a field mapping: %q", trimmed)
	}
}

func (b *builder) switchModel(name string) {
	b.aliases = make(map[string]string)
	b.modelName = name
	b.model = nil
	if m, ok := lookupModel(b.models, name); ok {
		b.model = m
		return
	}
	b.violations = append(b.violations, report.New(report.CodeUnknownModel, b.path,
		"unknown note model %q", name))
}

func (b *builder) field(name, content string) {
	resolved := name
	if canonical, ok := b.aliases[name]; ok {
		resolved = canonical
	}
	if b.model != nil && !b.model.Config.HasField(resolved) {
		b.violations = append(b.violations, report.NewAt(report.CodeUnknownField, b.path, len(b.blocks),
			"field %q is not declared by model %q (available: %s)",
			resolved, b.model.Name, strings.Join(b.model.Config.FieldNames(), ", ")))
		return
	}
	if _, dup := b.fields[resolved]; dup {
		b.fail("field %q appears twice in one block", resolved)
		return
	}
	b.fields[resolved] = content
	b.fieldOrder = append(b.fieldOrder, resolved)
}

// finalize closes the pending block, assigning it the next ordinal.
func (b *builder) finalize() {
	if len(b.fields) == 0 {
		if b.pendingID != nil {
			b.fail("identifier annotation attached to no block content")
			b.pendingID = nil
		}
		b.tags = nil
		return
	}
	b.blocks = append(b.blocks, deck.NoteBlock{
		Ordinal:    len(b.blocks),
		UUID:       b.pendingID,
		Model:      b.modelName,
		Fields:     b.fields,
		FieldOrder: b.fieldOrder,
		Tags:       b.tags,
	})
	b.pendingID = nil
	b.fields = make(map[string]string)
	b.fieldOrder = nil
	b.tags = nil
}

func (b *builder) fail(format string, args ...any) {
	b.violations = append(b.violations, report.NewAt(report.CodeUnparsableBlock, b.path, len(b.blocks), format, args...))
}

func lookupModel(models map[string]*deck.NoteModel, name string) (*deck.NoteModel, bool) {
	for _, m := range models {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return nil, false
}

func splitTags(inner string) []string {
	var tags []string
	for _, part := range strings.Split(inner, ",") {
		t := strings.TrimSpace(part)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
