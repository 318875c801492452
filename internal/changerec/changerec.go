// Package changerec parses .changes files: explicit old→new ordinal
// mappings documenting block moves within one card-file revision.
package changerec

import (
	"strconv"
	"strings"

	"github.com/starford/perthro/internal/deck"
	"github.com/starford/perthro/internal/report"
)

// CardPath returns the card file a change-record path is scoped to
// (basics.flash.changes → basics.flash).
func CardPath(recordPath string) string {
	return strings.TrimSuffix(recordPath, deck.ChangeExt)
}

// Parse reads a .changes file. One mapping per line, in the textual form
// OLD->NEW with non-negative integer ordinals. Blank lines are permitted.
func Parse(recordPath string, data []byte) (*deck.ChangeRecord, []report.Violation) {
	rec := &deck.ChangeRecord{Path: CardPath(recordPath)}
	var violations []report.Violation

	fail := func(format string, args ...any) {
		violations = append(violations, report.New(report.CodeMalformedChangeRecord, recordPath, format, args...))
	}

	oldSeen := make(map[int]struct{})
	newSeen := make(map[int]struct{})

	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(strings.TrimRight(line, "\r"))
		if trimmed == "" {
			continue
		}
		lineNo := i + 1

		parts := strings.Split(trimmed, "->")
		if len(parts) != 2 {
			fail("line %d: expected OLD->NEW, got %q", lineNo, trimmed)
			continue
		}
		old, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		next, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || old < 0 || next < 0 {
			fail("line %d: ordinals must be non-negative integers: %q", lineNo, trimmed)
			continue
		}

		if _, dup := oldSeen[old]; dup {
			fail("line %d: old ordinal %d mapped twice", lineNo, old)
			continue
		}
		if _, dup := newSeen[next]; dup {
			fail("line %d: new ordinal %d mapped twice", lineNo, next)
			continue
		}
		oldSeen[old] = struct{}{}
		newSeen[next] = struct{}{}

		rec.Moves = append(rec.Moves, deck.Move{Old: old, New: next})
	}

	return rec, violations
}
