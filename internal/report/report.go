// Package report defines the conformance violation taxonomy and the
// deterministic report aggregation.
package report

import (
	"fmt"
	"sort"
)

// Class is the coarse error-handling category of a violation.
type Class string

// Violation classes.
const (
	// Structural covers malformed tree shape. Fatal for the offending
	// subtree only.
	Structural Class = "structural"
	// Parse covers unparsable configs, templates, blocks, and change
	// records. Fatal for the offending file only.
	Parse Class = "parse"
	// Convention covers deck-convention failures. Never fatal; always
	// recorded so one pass produces a complete report.
	Convention Class = "convention"
	// Advisory covers informational findings.
	Advisory Class = "advisory"
)

// Code identifies one kind of violation.
type Code string

// Violation codes.
const (
	CodeStructuralError       Code = "StructuralError"
	CodeEmptyDeck             Code = "EmptyDeck"
	CodeDuplicateModel        Code = "DuplicateModel"
	CodeUnparsableConfig      Code = "UnparsableConfig"
	CodeMissingStylesheet     Code = "MissingStylesheet"
	CodeMissingRequiredSide   Code = "MissingRequiredSide"
	CodeUnrecognizedArtifact  Code = "UnrecognizedArtifact"
	CodeUnparsableBlock       Code = "UnparsableBlock"
	CodeDuplicateUUID         Code = "DuplicateUUID"
	CodeUnknownModel          Code = "UnknownModel"
	CodeUnknownField          Code = "UnknownField"
	CodeMalformedChangeRecord Code = "MalformedChangeRecord"
	CodeUndocumentedReorder   Code = "UndocumentedReorder"
	CodeStaleChangeRecord     Code = "StaleChangeRecord"
	CodeInsufficientBump      Code = "InsufficientVersionBump"
	CodeMissingRegistryTopic  Code = "MissingRegistryTopic"
)

// classOf maps each code to its fixed class.
var classOf = map[Code]Class{
	CodeStructuralError:       Structural,
	CodeEmptyDeck:             Advisory,
	CodeDuplicateModel:        Structural,
	CodeUnparsableConfig:      Parse,
	CodeMissingStylesheet:     Parse,
	CodeMissingRequiredSide:   Parse,
	CodeUnrecognizedArtifact:  Advisory,
	CodeUnparsableBlock:       Parse,
	CodeDuplicateUUID:         Parse,
	CodeUnknownModel:          Convention,
	CodeUnknownField:          Convention,
	CodeMalformedChangeRecord: Parse,
	CodeUndocumentedReorder:   Convention,
	CodeStaleChangeRecord:     Advisory,
	CodeInsufficientBump:      Convention,
	CodeMissingRegistryTopic:  Advisory,
}

// NoOrdinal marks a violation that is not tied to a block position.
const NoOrdinal = -1

// Violation is one itemized conformance finding.
type Violation struct {
	Code Code `json:"code"`
	// Path is the offending file or folder, relative to the deck root.
	// Empty for deck-level findings.
	Path string `json:"path,omitempty"`
	// Ordinal is the block position the finding refers to, or NoOrdinal.
	// Ordinal zero is meaningful, so the field is never omitted.
	Ordinal int    `json:"ordinal"`
	Message string `json:"message"`
	// Eased marks a convention failure covered by a stable-identifier
	// exception: the ease tier downgrades it to advisory.
	Eased bool `json:"eased,omitempty"`
}

// Class returns the violation's error-handling class.
func (v Violation) Class() Class {
	if c, ok := classOf[v.Code]; ok {
		return c
	}
	return Convention
}

// Blocking reports whether the violation fails the conformance pass.
// Advisory findings and eased convention failures never block.
func (v Violation) Blocking() bool {
	return v.Class() != Advisory && !v.Eased
}

func (v Violation) String() string {
	loc := v.Path
	if loc == "" {
		loc = "<deck>"
	}
	if v.Ordinal != NoOrdinal {
		loc = fmt.Sprintf("%s#%d", loc, v.Ordinal)
	}
	return fmt.Sprintf("%s: %s: %s", loc, v.Code, v.Message)
}

// New constructs a violation with no ordinal.
func New(code Code, path, format string, args ...any) Violation {
	return Violation{
		Code:    code,
		Path:    path,
		Ordinal: NoOrdinal,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewAt constructs a violation tied to a block ordinal.
func NewAt(code Code, path string, ordinal int, format string, args ...any) Violation {
	v := New(code, path, format, args...)
	v.Ordinal = ordinal
	return v
}

// Report is the aggregated outcome of one conformance pass.
type Report struct {
	Root       string      `json:"root"`
	Violations []Violation `json:"violations"`
	// RequiredBump and DeclaredBump summarize the version evaluation.
	RequiredBump string `json:"required_bump"`
	DeclaredBump string `json:"declared_bump"`
	Pass         bool   `json:"pass"`
}

// Blocking returns only the blocking violations.
func (r *Report) Blocking() []Violation {
	return r.filter(true)
}

// Advisories returns only the advisory violations.
func (r *Report) Advisories() []Violation {
	return r.filter(false)
}

func (r *Report) filter(blocking bool) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Blocking() == blocking {
			out = append(out, v)
		}
	}
	return out
}

// Collector accumulates violations from the parallel parse and diff stages.
// It is not safe for concurrent use; each worker collects into its own
// Collector and the results are merged in the final reduction.
type Collector struct {
	violations []Violation
}

// Add appends violations to the collector.
func (c *Collector) Add(vs ...Violation) {
	c.violations = append(c.violations, vs...)
}

// Merge appends every violation from other.
func (c *Collector) Merge(other *Collector) {
	c.violations = append(c.violations, other.violations...)
}

// Violations returns the collected violations without sorting.
func (c *Collector) Violations() []Violation {
	return c.violations
}

// Build produces the final report: violations sorted by path, then ordinal,
// then code, so repeated passes over the same tree emit identical output.
func (c *Collector) Build(root, requiredBump, declaredBump string) *Report {
	sorted := make([]Violation, len(c.violations))
	copy(sorted, c.violations)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})

	pass := true
	for _, v := range sorted {
		if v.Blocking() {
			pass = false
			break
		}
	}

	return &Report{
		Root:         root,
		Violations:   sorted,
		RequiredBump: requiredBump,
		DeclaredBump: declaredBump,
		Pass:         pass,
	}
}
