package diff

import (
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/starford/perthro/internal/deck"
	"github.com/starford/perthro/internal/report"
)

var (
	u1 = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	u2 = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	u3 = uuid.MustParse("00000000-0000-0000-0000-000000000003")
)

// file builds a card file whose checksum reflects its block layout, so two
// distinct layouts never short-circuit the diff.
func file(checksum string, blocks ...deck.NoteBlock) *deck.FlashcardFile {
	for i := range blocks {
		blocks[i].Ordinal = i
	}
	return &deck.FlashcardFile{Path: "cards.flash", Checksum: checksum, Blocks: blocks}
}

func block(id *uuid.UUID, fields ...string) deck.NoteBlock {
	b := deck.NoteBlock{Model: "Basic", UUID: id, Fields: make(map[string]string)}
	for _, f := range fields {
		b.Fields[f] = "content of " + f
		b.FieldOrder = append(b.FieldOrder, f)
	}
	return b
}

func TestCompareFileNilSides(t *testing.T) {
	f := file("a", block(&u1, "Front"), block(nil, "Front"))

	d, vs := CompareFile(nil, f, nil)
	if len(vs) != 0 || len(d.Additions) != 2 || len(d.Deletions) != 0 {
		t.Errorf("new file: diff = %+v, violations = %v", d, vs)
	}

	d, vs = CompareFile(f, nil, nil)
	if len(vs) != 0 || len(d.Deletions) != 2 || len(d.Additions) != 0 {
		t.Errorf("deleted file: diff = %+v, violations = %v", d, vs)
	}
}

func TestCompareFileUnchangedShortCircuits(t *testing.T) {
	prev := file("same", block(&u1, "Front"), block(&u2, "Front"))
	curr := file("same", block(&u2, "Front"), block(&u1, "Front"))

	// Equal checksums mean equal bytes; the block slices are never compared.
	d, vs := CompareFile(prev, curr, nil)
	if !d.Empty() || len(vs) != 0 {
		t.Errorf("diff = %+v, violations = %v, want empty", d, vs)
	}
}

func TestCompareFileIdentifierMatchSurvivesReorder(t *testing.T) {
	prev := file("a", block(&u1, "Front"), block(&u2, "Front"), block(&u3, "Front"))
	curr := file("b", block(&u3, "Front"), block(&u1, "Front"), block(&u2, "Front"))

	d, vs := CompareFile(prev, curr, nil)
	if len(d.Additions) != 0 || len(d.Deletions) != 0 {
		t.Fatalf("additions = %v, deletions = %v, want none", d.Additions, d.Deletions)
	}
	// Exactly one block is displaced: u3 jumped over the stable u1,u2 run.
	if len(d.Moves) != 1 {
		t.Fatalf("moves = %+v, want exactly one", d.Moves)
	}
	mv := d.Moves[0]
	if mv.Identity.UUID != u3 || mv.Old != 2 || mv.New != 0 {
		t.Errorf("move = %+v, want u3 2->0", mv)
	}
	if len(vs) != 1 || vs[0].Code != report.CodeUndocumentedReorder {
		t.Fatalf("violations = %v, want one %s", vs, report.CodeUndocumentedReorder)
	}
	if !vs[0].Eased {
		t.Error("identifier-carried reorder should be eased")
	}
	if vs[0].Blocking() {
		t.Error("eased reorder must not block")
	}
}

func TestCompareFileDocumentedReorder(t *testing.T) {
	prev := file("a", block(&u1, "Front"), block(&u2, "Front"), block(&u3, "Front"))
	curr := file("b", block(&u3, "Front"), block(&u1, "Front"), block(&u2, "Front"))
	rec := &deck.ChangeRecord{Path: "cards.flash", Moves: []deck.Move{{Old: 2, New: 0}}}

	d, vs := CompareFile(prev, curr, rec)
	if len(vs) != 0 {
		t.Fatalf("violations = %v, want none", vs)
	}
	if len(d.Moves) != 1 || !d.Moves[0].Documented {
		t.Errorf("moves = %+v, want one documented move", d.Moves)
	}
}

func TestCompareFilePositionalEdit(t *testing.T) {
	// Same shape at the same position is the same block, whatever the
	// content; there is no modify category.
	prev := file("a", block(nil, "Front", "Back"))
	curr := file("b", block(nil, "Front", "Back"))
	curr.Blocks[0].Fields["Front"] = "reworded"

	d, vs := CompareFile(prev, curr, nil)
	if !d.Empty() || len(vs) != 0 {
		t.Errorf("diff = %+v, violations = %v, want empty", d, vs)
	}
}

func TestCompareFilePositionalShapeMismatch(t *testing.T) {
	prev := file("a", block(nil, "Front", "Back"))
	curr := file("b", block(nil, "Question"))

	d, vs := CompareFile(prev, curr, nil)
	if len(vs) != 0 {
		t.Fatalf("violations = %v, want none", vs)
	}
	if len(d.Deletions) != 1 || len(d.Additions) != 1 {
		t.Errorf("diff = %+v, want one deletion plus one addition", d)
	}
}

func TestCompareFileRecordRelocatesPositionalMatch(t *testing.T) {
	prev := file("a", block(nil, "Front"), block(nil, "Front", "Back"))
	curr := file("b", block(nil, "Front", "Back"), block(nil, "Front"))
	rec := &deck.ChangeRecord{Path: "cards.flash", Moves: []deck.Move{
		{Old: 0, New: 1},
		{Old: 1, New: 0},
	}}

	d, vs := CompareFile(prev, curr, rec)
	if len(vs) != 0 {
		t.Fatalf("violations = %v, want none", vs)
	}
	if len(d.Additions) != 0 || len(d.Deletions) != 0 {
		t.Fatalf("diff = %+v, want moves only", d)
	}
	if len(d.Moves) != 2 {
		t.Fatalf("moves = %+v, want two", d.Moves)
	}
	for _, mv := range d.Moves {
		if !mv.Documented {
			t.Errorf("move %+v should be documented", mv)
		}
	}
}

func TestCompareFileStaleRecordEntry(t *testing.T) {
	prev := file("a", block(nil, "Front"))
	curr := file("b", block(nil, "Front"), block(nil, "Back"))
	rec := &deck.ChangeRecord{Path: "cards.flash", Moves: []deck.Move{{Old: 5, New: 6}}}

	_, vs := CompareFile(prev, curr, rec)
	if len(vs) != 1 || vs[0].Code != report.CodeStaleChangeRecord {
		t.Errorf("violations = %v, want one %s", vs, report.CodeStaleChangeRecord)
	}
}

func TestCompareFileDeterministic(t *testing.T) {
	prev := file("a",
		block(&u1, "Front"), block(nil, "Front"), block(&u2, "Front"), block(&u3, "Front"))
	curr := file("b",
		block(&u2, "Front"), block(nil, "Front"), block(&u3, "Front"), block(&u1, "Front"), block(nil, "Back"))

	first, firstVs := CompareFile(prev, curr, nil)
	for i := 0; i < 10; i++ {
		d, vs := CompareFile(prev, curr, nil)
		if !reflect.DeepEqual(d, first) || !reflect.DeepEqual(vs, firstVs) {
			t.Fatalf("run %d differs:\n%+v\nvs\n%+v", i, d, first)
		}
	}
}

func TestDisplacedMinimal(t *testing.T) {
	cases := []struct {
		seq  []int
		want []int
	}{
		{nil, nil},
		{[]int{0, 1, 2}, nil},
		{[]int{2, 0, 1}, []int{0}},
		{[]int{1, 2, 0}, []int{2}},
		{[]int{3, 2, 1, 0}, []int{0, 1, 2}},
	}
	for _, tc := range cases {
		if got := displaced(tc.seq); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("displaced(%v) = %v, want %v", tc.seq, got, tc.want)
		}
	}
}

func model(name string, fields ...string) *deck.NoteModel {
	m := &deck.NoteModel{Name: name, Folder: name + ".model", Config: deck.ModelConfig{Name: name}}
	for _, f := range fields {
		m.Config.Fields = append(m.Config.Fields, deck.FieldDef{Name: f})
	}
	return m
}

func TestCompareFieldsAddRemove(t *testing.T) {
	prev := map[string]*deck.NoteModel{"basic.model": model("Basic", "Front", "Back")}
	curr := map[string]*deck.NoteModel{"basic.model": model("Basic", "Front", "Back", "Hint")}

	changes := CompareFields(prev, curr)
	if len(changes) != 1 {
		t.Fatalf("changes = %+v, want one", changes)
	}
	if c := changes[0]; c.Kind != FieldAdded || c.Name != "Hint" || c.Position != 2 {
		t.Errorf("change = %+v, want Hint added at 2", c)
	}

	changes = CompareFields(curr, prev)
	if len(changes) != 1 || changes[0].Kind != FieldRemoved {
		t.Errorf("changes = %+v, want one removal", changes)
	}
}

func TestCompareFieldsRenameCoalesces(t *testing.T) {
	prev := map[string]*deck.NoteModel{"basic.model": model("Basic", "Front", "Back")}
	curr := map[string]*deck.NoteModel{"basic.model": model("Basic", "Front", "Answer")}

	changes := CompareFields(prev, curr)
	if len(changes) != 1 {
		t.Fatalf("changes = %+v, want one", changes)
	}
	c := changes[0]
	if c.Kind != FieldRenamed || c.OldName != "Back" || c.Name != "Answer" || c.Position != 1 {
		t.Errorf("change = %+v, want Back renamed to Answer at 1", c)
	}
}

func TestCompareFieldsNoCoalesceAcrossPositions(t *testing.T) {
	prev := map[string]*deck.NoteModel{"basic.model": model("Basic", "Front", "Back")}
	curr := map[string]*deck.NoteModel{"basic.model": model("Basic", "Answer", "Back", "Front")}

	// "Front" still exists (at a new position), so only "Answer" is new;
	// the single add without a matching-position removal stays an add.
	changes := CompareFields(prev, curr)
	if len(changes) != 1 || changes[0].Kind != FieldAdded {
		t.Errorf("changes = %+v, want a plain addition", changes)
	}
}

func TestCompareFieldsSkipsModelsInOneSnapshot(t *testing.T) {
	prev := map[string]*deck.NoteModel{"basic.model": model("Basic", "Front")}
	curr := map[string]*deck.NoteModel{"cloze.model": model("Cloze", "Text")}

	if changes := CompareFields(prev, curr); len(changes) != 0 {
		t.Errorf("changes = %+v, want none", changes)
	}
}
