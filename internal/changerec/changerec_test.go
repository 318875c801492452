package changerec

import (
	"testing"

	"github.com/starford/perthro/internal/deck"
	"github.com/starford/perthro/internal/report"
)

func TestCardPath(t *testing.T) {
	if got := CardPath("vocab.flash.changes"); got != "vocab.flash" {
		t.Errorf("CardPath = %q, want %q", got, "vocab.flash")
	}
}

func TestParseMappings(t *testing.T) {
	rec, vs := Parse("vocab.flash.changes", []byte("0->2\n\n3 -> 1\n"))
	if len(vs) != 0 {
		t.Fatalf("violations = %v, want none", vs)
	}
	want := []deck.Move{{Old: 0, New: 2}, {Old: 3, New: 1}}
	if len(rec.Moves) != len(want) {
		t.Fatalf("len(Moves) = %d, want %d", len(rec.Moves), len(want))
	}
	for i, m := range want {
		if rec.Moves[i] != m {
			t.Errorf("Moves[%d] = %v, want %v", i, rec.Moves[i], m)
		}
	}
	if mv, ok := rec.MoveFor(3); !ok || mv.New != 1 {
		t.Errorf("MoveFor(3) = %v, %v", mv, ok)
	}
	if _, ok := rec.MoveFor(7); ok {
		t.Error("MoveFor(7) should not resolve")
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"junk line", "not a mapping\n"},
		{"missing arrow", "0 2\n"},
		{"negative ordinal", "-1->2\n"},
		{"non-numeric", "a->b\n"},
		{"duplicate old", "0->1\n0->2\n"},
		{"duplicate new", "0->1\n2->1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, vs := Parse("vocab.flash.changes", []byte(tc.input))
			if len(vs) == 0 {
				t.Fatalf("Parse(%q): want %s", tc.input, report.CodeMalformedChangeRecord)
			}
			for _, v := range vs {
				if v.Code != report.CodeMalformedChangeRecord {
					t.Errorf("code = %s, want %s", v.Code, report.CodeMalformedChangeRecord)
				}
			}
		})
	}
}

func TestParseKeepsValidLines(t *testing.T) {
	rec, vs := Parse("vocab.flash.changes", []byte("0->1\ngarbage\n2->3\n"))
	if len(vs) != 1 {
		t.Fatalf("violations = %v, want exactly one", vs)
	}
	if len(rec.Moves) != 2 {
		t.Errorf("len(Moves) = %d, want 2", len(rec.Moves))
	}
}
