package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/perthro/internal/apperr"
	"github.com/starford/perthro/internal/registry"
	"github.com/starford/perthro/internal/report"
	"github.com/starford/perthro/internal/testutil"
	"github.com/starford/perthro/internal/version"
)

func newDeck(t *testing.T) string {
	t.Helper()
	root := testutil.DeckRoot(t)
	testutil.WriteModel(t, root, "Basic", "Front", "Back")
	return root
}

func hasCode(vs []report.Violation, code report.Code) bool {
	for _, v := range vs {
		if v.Code == code {
			return true
		}
	}
	return false
}

func TestValidateCleanDeck(t *testing.T) {
	root := newDeck(t)
	testutil.WriteFile(t, root, "vocab.flash",
		"= Basic =\nFront: hello\nBack: world\n")

	res, err := New().Validate(context.Background(), Params{CurrentRoot: root})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Pass() {
		t.Errorf("Pass = false, violations = %v", res.Report.Violations)
	}
	if res.Report.RequiredBump != "none" {
		t.Errorf("RequiredBump = %q, want none", res.Report.RequiredBump)
	}
}

func TestValidateBadRoot(t *testing.T) {
	_, err := New().Validate(context.Background(), Params{CurrentRoot: t.TempDir()})
	if !errors.Is(err, apperr.ErrNotDeckRoot) {
		t.Fatalf("error = %v, want ErrNotDeckRoot", err)
	}
}

func TestValidateEmptyDeckIsAdvisory(t *testing.T) {
	root := testutil.DeckRoot(t)

	res, err := New().Validate(context.Background(), Params{CurrentRoot: root})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasCode(res.Report.Violations, report.CodeEmptyDeck) {
		t.Errorf("violations = %v, want %s", res.Report.Violations, report.CodeEmptyDeck)
	}
	if !res.Pass() {
		t.Error("an empty deck is valid; the finding is advisory only")
	}
}

func TestValidateReservedModelName(t *testing.T) {
	root := newDeck(t)
	testutil.WriteModel(t, root, "Assets", "Front")

	res, err := New().Validate(context.Background(), Params{CurrentRoot: root})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasCode(res.Report.Violations, report.CodeStructuralError) {
		t.Errorf("violations = %v, want %s", res.Report.Violations, report.CodeStructuralError)
	}
	if res.Pass() {
		t.Error("a model named like the assets folder must block")
	}
}

func TestValidateOrphanChangeRecord(t *testing.T) {
	root := newDeck(t)
	testutil.WriteFile(t, root, "gone.flash.changes", "0->1\n")

	res, err := New().Validate(context.Background(), Params{CurrentRoot: root})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasCode(res.Report.Violations, report.CodeStaleChangeRecord) {
		t.Errorf("violations = %v, want %s", res.Report.Violations, report.CodeStaleChangeRecord)
	}
}

func TestValidateRevisionRequiresBump(t *testing.T) {
	prev := newDeck(t)
	testutil.WriteFile(t, prev, "vocab.flash",
		"= Basic =\nFront: hello\nBack: world\n")

	curr := newDeck(t)
	testutil.WriteFile(t, curr, "vocab.flash",
		"= Basic =\nFront: hello\nBack: world\n\nFront: zwei\nBack: two\n")

	p := Params{
		PreviousRoot:    prev,
		CurrentRoot:     curr,
		PreviousVersion: version.State{Major: 1, Minor: 0},
		CurrentVersion:  version.State{Major: 1, Minor: 0},
	}
	res, err := New().Validate(context.Background(), p)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasCode(res.Report.Violations, report.CodeInsufficientBump) {
		t.Fatalf("violations = %v, want %s", res.Report.Violations, report.CodeInsufficientBump)
	}
	if res.Pass() {
		t.Error("an added block without a minor bump must fail")
	}

	// The same change with a minor bump passes.
	p.CurrentVersion = version.State{Major: 1, Minor: 1}
	res, err = New().Validate(context.Background(), p)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Pass() {
		t.Errorf("Pass = false, violations = %v", res.Report.Violations)
	}
	if res.Report.RequiredBump != "minor" {
		t.Errorf("RequiredBump = %q, want minor", res.Report.RequiredBump)
	}
	if !res.Changes.HasBlockChanges() {
		t.Error("change set should record the block addition")
	}
}

func TestValidateFieldChangeRequiresMajor(t *testing.T) {
	prev := testutil.DeckRoot(t)
	testutil.WriteModel(t, prev, "Basic", "Front", "Back")

	curr := testutil.DeckRoot(t)
	testutil.WriteModel(t, curr, "Basic", "Front", "Back", "Hint")

	p := Params{
		PreviousRoot:    prev,
		CurrentRoot:     curr,
		PreviousVersion: version.State{Major: 1, Minor: 0},
		CurrentVersion:  version.State{Major: 1, Minor: 1},
	}
	res, err := New().Validate(context.Background(), p)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Report.RequiredBump != "major" {
		t.Errorf("RequiredBump = %q, want major", res.Report.RequiredBump)
	}
	if res.Pass() {
		t.Error("a field change with only a minor bump must fail")
	}
}

func TestValidateUnparsableFileSkipsDiff(t *testing.T) {
	prev := newDeck(t)
	testutil.WriteFile(t, prev, "vocab.flash",
		"= Basic =\nFront: hello\nBack: world\n")

	curr := newDeck(t)
	testutil.WriteFile(t, curr, "vocab.flash",
		"= Basic =\n!!! junk line\n")

	res, err := New().Validate(context.Background(), Params{
		PreviousRoot: prev,
		CurrentRoot:  curr,
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasCode(res.Report.Violations, report.CodeUnparsableBlock) {
		t.Fatalf("violations = %v, want %s", res.Report.Violations, report.CodeUnparsableBlock)
	}
	// No diff is derived from a file without a reliable block sequence.
	for _, f := range res.Changes.Files {
		if f.Path == "vocab.flash" {
			t.Errorf("unparsable file was diffed: %+v", f)
		}
	}
}

func TestValidateRegistryCheck(t *testing.T) {
	root := newDeck(t)

	eng := New(WithTopicProvider(registry.Static{Topics: []string{"cooking"}}))
	res, err := eng.Validate(context.Background(), Params{CurrentRoot: root})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasCode(res.Report.Violations, report.CodeMissingRegistryTopic) {
		t.Errorf("violations = %v, want %s", res.Report.Violations, report.CodeMissingRegistryTopic)
	}

	eng = New(WithTopicProvider(registry.Static{Topics: []string{registry.ListingTopic}}))
	res, err = eng.Validate(context.Background(), Params{CurrentRoot: root})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if hasCode(res.Report.Violations, report.CodeMissingRegistryTopic) {
		t.Errorf("violations = %v, want no registry finding", res.Report.Violations)
	}
}

func TestValidateDeterministicOrdering(t *testing.T) {
	root := newDeck(t)
	testutil.WriteFile(t, root, "b.flash", "= Basic =\nFront: b\n!!!\n")
	testutil.WriteFile(t, root, "a.flash", "= Basic =\nFront: a\n!!!\n")

	first, err := New(WithWorkers(4)).Validate(context.Background(), Params{CurrentRoot: root})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for i := 0; i < 5; i++ {
		res, err := New(WithWorkers(4)).Validate(context.Background(), Params{CurrentRoot: root})
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if len(res.Report.Violations) != len(first.Report.Violations) {
			t.Fatalf("violation count differs across runs")
		}
		for j := range res.Report.Violations {
			if res.Report.Violations[j] != first.Report.Violations[j] {
				t.Fatalf("run %d: violation %d differs: %v vs %v",
					i, j, res.Report.Violations[j], first.Report.Violations[j])
			}
		}
	}
}
