// Package version implements the bump lattice and the rules mapping a
// classified change set to the minimum required version bump.
package version

import (
	"fmt"
	"path"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/starford/perthro/internal/deck"
	"github.com/starford/perthro/internal/diff"
	"github.com/starford/perthro/internal/report"
)

// Bump is a level in the bump lattice: None < Minor < Major.
type Bump int

// Bump levels.
const (
	None Bump = iota
	Minor
	Major
)

func (b Bump) String() string {
	switch b {
	case Major:
		return "major"
	case Minor:
		return "minor"
	default:
		return "none"
	}
}

// Satisfies reports whether declaring b covers a requirement of req.
// A major bump satisfies a minor requirement; the reverse does not hold.
func (b Bump) Satisfies(req Bump) bool {
	return b >= req
}

// State is a declared (major, minor) version pair.
type State struct {
	Major uint64 `json:"major"`
	Minor uint64 `json:"minor"`
}

func (s State) String() string {
	return fmt.Sprintf("%d.%d", s.Major, s.Minor)
}

// Parse reads a declared version. Both the two-part MAJOR.MINOR form and a
// full semver string are accepted; any patch component is outside the bump
// lattice and ignored.
func Parse(raw string) (State, error) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return State{}, fmt.Errorf("version: parse %q: %w", raw, err)
	}
	return State{Major: v.Major(), Minor: v.Minor()}, nil
}

// FromSemver projects a semver version onto the bump lattice.
func FromSemver(v *semver.Version) State {
	return State{Major: v.Major(), Minor: v.Minor()}
}

// DeclaredBump classifies the transition between two declared states.
// ok is false when the version regressed, which violates monotonicity.
func DeclaredBump(prev, curr State) (Bump, bool) {
	switch {
	case curr.Major > prev.Major:
		return Major, true
	case curr.Major < prev.Major:
		return None, false
	case curr.Minor > prev.Minor:
		return Minor, true
	case curr.Minor < prev.Minor:
		return None, false
	default:
		return None, true
	}
}

// Required maps a classified change set to the minimum bump: Major for any
// declared-field change, else Minor for any block addition or deletion,
// else None. Position changes alone never demand a bump.
func Required(cs *diff.ChangeSet) Bump {
	if cs.HasFieldChanges() {
		return Major
	}
	if cs.HasBlockChanges() {
		return Minor
	}
	return None
}

// Evaluate validates the declared deck-level bump against the change set.
func Evaluate(cs *diff.ChangeSet, prev, curr State) (required, declared Bump, violations []report.Violation) {
	required = Required(cs)
	declared, monotonic := DeclaredBump(prev, curr)

	if !monotonic {
		violations = append(violations, report.New(report.CodeInsufficientBump, "",
			"declared version regressed from %s to %s", prev, curr))
		return required, declared, violations
	}
	if !declared.Satisfies(required) {
		violations = append(violations, report.New(report.CodeInsufficientBump, "",
			"changes require a %s bump but %s -> %s declares %s", required, prev, curr, declared))
	}
	return required, declared, violations
}

// EvaluateModels validates each model's declared schema_version against its
// own field changes. Models without a schema_version on both sides are
// skipped; where the version lives is the authoring tool's concern.
func EvaluateModels(cs *diff.ChangeSet, prev, curr map[string]*deck.NoteModel) []report.Violation {
	changed := make(map[string]bool)
	for _, fc := range cs.FieldChanges {
		changed[fc.Model] = true
	}

	var violations []report.Violation
	for _, key := range sortedKeys(prev) {
		pm := prev[key]
		cm, ok := curr[key]
		if !ok {
			continue
		}
		if pm.Config.SchemaVersion == nil || cm.Config.SchemaVersion == nil {
			continue
		}
		required := None
		if changed[cm.Name] {
			required = Major
		}
		prevState := FromSemver(pm.Config.SchemaVersion)
		currState := FromSemver(cm.Config.SchemaVersion)
		declared, monotonic := DeclaredBump(prevState, currState)
		cfgPath := path.Join(cm.Folder, deck.ConfigFile)
		if !monotonic {
			violations = append(violations, report.New(report.CodeInsufficientBump, cfgPath,
				"schema_version regressed from %s to %s", prevState, currState))
			continue
		}
		if !declared.Satisfies(required) {
			violations = append(violations, report.New(report.CodeInsufficientBump, cfgPath,
				"field changes require a %s bump but schema_version %s -> %s declares %s",
				required, prevState, currState, declared))
		}
	}
	return violations
}

func sortedKeys(models map[string]*deck.NoteModel) []string {
	keys := make([]string, 0, len(models))
	for k := range models {
		keys = append(keys, k)
	}
	// Deterministic iteration keeps report ordering reproducible.
	sort.Strings(keys)
	return keys
}
