// Package diff compares two parsed deck snapshots and classifies the
// differences: block additions, deletions, and position changes per card
// file, plus declared-field changes per model.
//
// Blocks are matched by stable identifier first. Residual blocks (no UUID
// in either snapshot) are matched positionally, with the file's change
// record consulted so a documented OLD->NEW move relocates the pairing.
// The format defines no block-modify category: a positional pair whose
// field sets differ entirely is a deletion plus an addition.
package diff

import (
	"sort"
	"strings"

	"github.com/starford/perthro/internal/deck"
	"github.com/starford/perthro/internal/report"
)

// BlockRef points at one block involved in a change.
type BlockRef struct {
	Identity deck.Identity `json:"identity"`
	Ordinal  int           `json:"ordinal"`
}

// MoveRef is one detected position change.
type MoveRef struct {
	Identity deck.Identity `json:"identity"`
	Old      int           `json:"old"`
	New      int           `json:"new"`
	// Documented reports whether the file's change record covers the move.
	Documented bool `json:"documented"`
}

// FileDiff is the classified change set of one card file.
type FileDiff struct {
	Path      string     `json:"path"`
	Additions []BlockRef `json:"additions,omitempty"`
	Deletions []BlockRef `json:"deletions,omitempty"`
	Moves     []MoveRef  `json:"moves,omitempty"`
}

// Empty reports whether the file saw no classified change.
func (d FileDiff) Empty() bool {
	return len(d.Additions) == 0 && len(d.Deletions) == 0 && len(d.Moves) == 0
}

// FieldChangeKind classifies one declared-field difference.
type FieldChangeKind string

// Field change kinds.
const (
	FieldAdded   FieldChangeKind = "FieldAdded"
	FieldRemoved FieldChangeKind = "FieldRemoved"
	FieldRenamed FieldChangeKind = "FieldRenamed"
)

// FieldChange is one difference between a model's previous and current
// declared field lists.
type FieldChange struct {
	Model    string          `json:"model"`
	Kind     FieldChangeKind `json:"kind"`
	Name     string          `json:"name"`
	OldName  string          `json:"old_name,omitempty"`
	Position int             `json:"position"`
}

// ChangeSet aggregates every classified difference between two snapshots.
type ChangeSet struct {
	Files        []FileDiff    `json:"files,omitempty"`
	FieldChanges []FieldChange `json:"field_changes,omitempty"`
}

// HasBlockChanges reports whether any block was added or deleted.
func (cs *ChangeSet) HasBlockChanges() bool {
	for _, f := range cs.Files {
		if len(f.Additions) > 0 || len(f.Deletions) > 0 {
			return true
		}
	}
	return false
}

// HasFieldChanges reports whether any model's declared fields changed.
func (cs *ChangeSet) HasFieldChanges() bool {
	return len(cs.FieldChanges) > 0
}

// CompareFile diffs one card file across two snapshots. Either side may be
// nil when the file only exists in one snapshot; rec may be nil when no
// change record accompanies the revision.
func CompareFile(prev, curr *deck.FlashcardFile, rec *deck.ChangeRecord) (FileDiff, []report.Violation) {
	path := filePath(prev, curr)
	d := FileDiff{Path: path}
	var violations []report.Violation

	switch {
	case prev == nil && curr == nil:
		return d, nil
	case prev == nil:
		for i := range curr.Blocks {
			d.Additions = append(d.Additions, BlockRef{Identity: curr.Blocks[i].Identity(), Ordinal: i})
		}
		return d, nil
	case curr == nil:
		for i := range prev.Blocks {
			d.Deletions = append(d.Deletions, BlockRef{Identity: prev.Blocks[i].Identity(), Ordinal: i})
		}
		return d, nil
	}

	// Unchanged bytes parse to an identical sequence, so only the change
	// record needs reconciling.
	if prev.Checksum == curr.Checksum {
		violations = append(violations, staleEntries(path, rec, nil)...)
		return d, violations
	}

	prevMatched := make([]bool, len(prev.Blocks))
	currMatched := make([]bool, len(curr.Blocks))

	// Stage 1: stable-identifier matching. UUID-matched blocks retain
	// identity regardless of ordinal change.
	currByID := make(map[string]int)
	for i := range curr.Blocks {
		if id := curr.Blocks[i].UUID; id != nil {
			currByID[id.String()] = i
		}
	}
	type pair struct{ old, new int }
	var idPairs []pair
	for i := range prev.Blocks {
		id := prev.Blocks[i].UUID
		if id == nil {
			continue
		}
		j, ok := currByID[id.String()]
		if !ok {
			continue
		}
		idPairs = append(idPairs, pair{old: i, new: j})
		prevMatched[i] = true
		currMatched[j] = true
	}

	// Stage 2: residual positional matching. A documented OLD->NEW entry
	// relocates the tentative pairing; shape mismatch rejects it.
	usedMoves := make(map[deck.Move]bool)
	for i := range prev.Blocks {
		if prevMatched[i] || prev.Blocks[i].UUID != nil {
			continue
		}
		target := i
		documented := false
		if rec != nil {
			if m, ok := rec.MoveFor(i); ok {
				target = m.New
				documented = true
			}
		}
		if target >= len(curr.Blocks) || currMatched[target] || curr.Blocks[target].UUID != nil {
			continue
		}
		if !prev.Blocks[i].SameShape(&curr.Blocks[target]) {
			// No modify category exists: replaced content at a position
			// is a deletion plus an addition.
			continue
		}
		prevMatched[i] = true
		currMatched[target] = true
		if documented {
			usedMoves[deck.Move{Old: i, New: target}] = true
			if target != i {
				d.Moves = append(d.Moves, MoveRef{
					Identity:   prev.Blocks[i].Identity(),
					Old:        i,
					New:        target,
					Documented: true,
				})
			}
		}
	}

	// Stage 3: unmatched blocks are additions and deletions.
	for i := range prev.Blocks {
		if !prevMatched[i] {
			d.Deletions = append(d.Deletions, BlockRef{Identity: prev.Blocks[i].Identity(), Ordinal: i})
		}
	}
	for j := range curr.Blocks {
		if !currMatched[j] {
			d.Additions = append(d.Additions, BlockRef{Identity: curr.Blocks[j].Identity(), Ordinal: j})
		}
	}

	// Stage 4: reorder detection among identifier-matched pairs. A pair
	// is moved when its new ordinal is inconsistent with the relative
	// order of the other matched pairs; the longest increasing
	// subsequence of new ordinals (by old order) is kept as unmoved, so
	// the displaced set is minimal and deterministic.
	sort.Slice(idPairs, func(a, b int) bool { return idPairs[a].old < idPairs[b].old })
	seq := make([]int, len(idPairs))
	for i, p := range idPairs {
		seq[i] = p.new
	}
	for _, idx := range displaced(seq) {
		p := idPairs[idx]
		mv := MoveRef{
			Identity: prev.Blocks[p.old].Identity(),
			Old:      p.old,
			New:      p.new,
		}
		if rec != nil {
			if m, ok := rec.MoveFor(p.old); ok && m.New == p.new {
				mv.Documented = true
				usedMoves[m] = true
			}
		}
		if !mv.Documented {
			v := report.NewAt(report.CodeUndocumentedReorder, path, p.new,
				"block %s moved from ordinal %d to %d without a change record entry",
				mv.Identity, p.old, p.new)
			// Identity survives through the unchanged identifier, so the
			// ease tier accepts the move without a record.
			v.Eased = true
			violations = append(violations, v)
		}
		d.Moves = append(d.Moves, mv)
	}

	violations = append(violations, staleEntries(path, rec, usedMoves)...)

	sort.Slice(d.Moves, func(a, b int) bool { return d.Moves[a].New < d.Moves[b].New })
	return d, violations
}

// staleEntries reports every change-record entry that matched no detected
// move.
func staleEntries(path string, rec *deck.ChangeRecord, used map[deck.Move]bool) []report.Violation {
	if rec == nil {
		return nil
	}
	var out []report.Violation
	for _, m := range rec.Moves {
		if used[m] {
			continue
		}
		out = append(out, report.New(report.CodeStaleChangeRecord, path,
			"change record documents %d->%d but no such move was detected", m.Old, m.New))
	}
	return out
}

// displaced returns the indexes of seq that fall outside a longest
// strictly-increasing subsequence. Patience algorithm; ties resolve toward
// keeping the smallest tail values, which makes the result deterministic.
func displaced(seq []int) []int {
	n := len(seq)
	if n == 0 {
		return nil
	}
	tails := make([]int, 0, n)   // index of smallest tail of each length
	prevIdx := make([]int, n)    // predecessor links for reconstruction
	for i, v := range seq {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prevIdx[i] = tails[lo-1]
		} else {
			prevIdx[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}

	inLIS := make([]bool, n)
	for idx := tails[len(tails)-1]; idx >= 0; idx = prevIdx[idx] {
		inLIS[idx] = true
	}

	var out []int
	for i := range seq {
		if !inLIS[i] {
			out = append(out, i)
		}
	}
	return out
}

// CompareFields diffs the declared field lists of every model present in
// both snapshots. A single removal and a single addition at the same list
// position coalesce into a rename.
func CompareFields(prev, curr map[string]*deck.NoteModel) []FieldChange {
	var changes []FieldChange

	keys := make([]string, 0, len(prev))
	for k := range prev {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		pm := prev[key]
		cm, ok := lookupFold(curr, key)
		if !ok {
			// Model added or removed wholesale; field-level classification
			// applies only to models present in both snapshots.
			continue
		}
		changes = append(changes, compareModelFields(pm, cm)...)
	}
	return changes
}

func compareModelFields(pm, cm *deck.NoteModel) []FieldChange {
	prevNames := pm.Config.FieldNames()
	currNames := cm.Config.FieldNames()

	prevSet := toSet(prevNames)
	currSet := toSet(currNames)

	type posName struct {
		pos  int
		name string
	}
	var removed, added []posName
	for i, n := range prevNames {
		if _, ok := currSet[n]; !ok {
			removed = append(removed, posName{pos: i, name: n})
		}
	}
	for i, n := range currNames {
		if _, ok := prevSet[n]; !ok {
			added = append(added, posName{pos: i, name: n})
		}
	}

	if len(removed) == 1 && len(added) == 1 && removed[0].pos == added[0].pos {
		return []FieldChange{{
			Model:    cm.Name,
			Kind:     FieldRenamed,
			Name:     added[0].name,
			OldName:  removed[0].name,
			Position: added[0].pos,
		}}
	}

	var changes []FieldChange
	for _, r := range removed {
		changes = append(changes, FieldChange{Model: cm.Name, Kind: FieldRemoved, Name: r.name, Position: r.pos})
	}
	for _, a := range added {
		changes = append(changes, FieldChange{Model: cm.Name, Kind: FieldAdded, Name: a.name, Position: a.pos})
	}
	return changes
}

func lookupFold(models map[string]*deck.NoteModel, key string) (*deck.NoteModel, bool) {
	if m, ok := models[key]; ok {
		return m, true
	}
	for k, m := range models {
		if strings.EqualFold(k, key) {
			return m, true
		}
	}
	return nil, false
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func filePath(prev, curr *deck.FlashcardFile) string {
	if curr != nil {
		return curr.Path
	}
	if prev != nil {
		return prev.Path
	}
	return ""
}
