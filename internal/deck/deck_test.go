package deck

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func TestIdentity(t *testing.T) {
	id := uuid.MustParse("7f9c24e5-2f31-4a3b-9d6e-1b8f0a2c3d4e")

	b := &NoteBlock{Ordinal: 3, UUID: &id}
	got := b.Identity()
	if got.Kind != ByStableID || got.UUID != id {
		t.Errorf("Identity() = %+v, want stable-ID identity", got)
	}
	if got.String() != id.String() {
		t.Errorf("String() = %q, want %q", got.String(), id.String())
	}

	b = &NoteBlock{Ordinal: 3}
	got = b.Identity()
	if got.Kind != ByPosition || got.Ordinal != 3 {
		t.Errorf("Identity() = %+v, want positional identity", got)
	}
	if got.String() != "ordinal 3" {
		t.Errorf("String() = %q, want %q", got.String(), "ordinal 3")
	}
}

func TestSameShape(t *testing.T) {
	a := &NoteBlock{Fields: map[string]string{"Front": "hola", "Back": "hello"}}
	b := &NoteBlock{Fields: map[string]string{"Front": "adios", "Back": "bye"}}
	c := &NoteBlock{Fields: map[string]string{"Front": "hola"}}
	d := &NoteBlock{Fields: map[string]string{"Front": "hola", "Extra": "x"}}

	if !a.SameShape(b) {
		t.Error("SameShape with equal field sets = false, want true")
	}
	if a.SameShape(c) {
		t.Error("SameShape with missing field = true, want false")
	}
	if a.SameShape(d) {
		t.Error("SameShape with different field = true, want false")
	}
}

func TestModelConfigFields(t *testing.T) {
	cfg := &ModelConfig{Fields: []FieldDef{{Name: "Front"}, {Name: "Back", Sticky: true}}}

	if got, want := cfg.FieldNames(), []string{"Front", "Back"}; !reflect.DeepEqual(got, want) {
		t.Errorf("FieldNames() = %v, want %v", got, want)
	}
	if !cfg.HasField("Back") {
		t.Error("HasField(Back) = false, want true")
	}
	if cfg.HasField("back") {
		t.Error("HasField(back) = true, want false (field names are case-sensitive)")
	}
}

func TestTemplateNames(t *testing.T) {
	m := &NoteModel{Templates: map[TemplateKey]Template{
		{Name: "Card", Side: Front, Variant: Standard}:    {},
		{Name: "Card", Side: Back, Variant: Standard}:     {},
		{Name: "Card", Side: Front, Variant: Browser}:     {},
		{Name: "Reverse", Side: Front, Variant: Standard}: {},
	}}

	if got, want := m.TemplateNames(), []string{"Card", "Reverse"}; !reflect.DeepEqual(got, want) {
		t.Errorf("TemplateNames() = %v, want %v", got, want)
	}
}

func TestChangeRecordMoveFor(t *testing.T) {
	rec := &ChangeRecord{Path: "vocab.flash", Moves: []Move{{Old: 2, New: 0}, {Old: 0, New: 2}}}

	m, ok := rec.MoveFor(2)
	if !ok || m.New != 0 {
		t.Errorf("MoveFor(2) = %+v, %v, want {2 0}, true", m, ok)
	}
	if _, ok := rec.MoveFor(5); ok {
		t.Error("MoveFor(5) = true, want false")
	}
}

func TestRepositoryAccessors(t *testing.T) {
	r := &Repository{
		Models: map[string]*NoteModel{
			"basic.model": {Name: "Basic", Folder: "Basic.model"},
			"cloze":       {Name: "Cloze", Folder: "cloze"},
		},
		Files: map[string]*FlashcardFile{
			"vocab.flash":         {Path: "vocab.flash"},
			"lessons/unit1.flash": {Path: "lessons/unit1.flash"},
		},
	}

	if m, ok := r.ModelNamed("basic"); !ok || m.Folder != "Basic.model" {
		t.Errorf("ModelNamed(basic) = %+v, %v, want Basic.model, true", m, ok)
	}
	if _, ok := r.ModelNamed("Missing"); ok {
		t.Error("ModelNamed(Missing) = true, want false")
	}
	if got, want := r.FilePaths(), []string{"lessons/unit1.flash", "vocab.flash"}; !reflect.DeepEqual(got, want) {
		t.Errorf("FilePaths() = %v, want %v", got, want)
	}
	if got, want := r.ModelFolders(), []string{"basic.model", "cloze"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ModelFolders() = %v, want %v", got, want)
	}
}
