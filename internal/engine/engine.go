// Package engine orchestrates a conformance pass: it loads deck snapshots
// through the tree loader, fans parsing out over a worker pool, diffs the
// snapshots, evaluates the version bump, and reduces everything into one
// deterministic report.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/perthro/internal/blockparse"
	"github.com/starford/perthro/internal/changerec"
	"github.com/starford/perthro/internal/deck"
	"github.com/starford/perthro/internal/diff"
	"github.com/starford/perthro/internal/modelres"
	"github.com/starford/perthro/internal/registry"
	"github.com/starford/perthro/internal/report"
	"github.com/starford/perthro/internal/storage"
	"github.com/starford/perthro/internal/version"
)

// Engine runs conformance passes. It holds no mutable state between runs;
// every pass constructs its snapshots fresh.
type Engine struct {
	grammar blockparse.Grammar
	workers int
	topics  registry.TopicProvider
	logger  *slog.Logger
}

// Option is a functional option for configuring the engine.
type Option func(*Engine)

// WithGrammar replaces the default block boundary grammar.
func WithGrammar(g blockparse.Grammar) Option {
	return func(e *Engine) { e.grammar = g }
}

// WithWorkers bounds the parse/diff worker pool.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithTopicProvider injects the registry topic collaborator. A nil
// provider skips the registry check entirely.
func WithTopicProvider(p registry.TopicProvider) Option {
	return func(e *Engine) { e.topics = p }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine with the default grammar and a worker pool sized
// to the machine.
func New(opts ...Option) *Engine {
	e := &Engine{
		grammar: blockparse.FlashGrammar{},
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Snapshot is one fully parsed deck revision.
type Snapshot struct {
	Repo       *deck.Repository
	Violations []report.Violation
	// unparsable marks card files whose parse failed; their diffs are
	// skipped because no reliable block sequence exists.
	unparsable map[string]bool
}

// Unparsable reports whether the card file at path failed to parse.
func (s *Snapshot) Unparsable(path string) bool {
	return s.unparsable[path]
}

// LoadSnapshot parses one deck root into an immutable snapshot. Only a
// missing or unreadable deck root returns an error; every other problem is
// recorded as a violation and parsing continues.
func (e *Engine) LoadSnapshot(ctx context.Context, root string) (*Snapshot, error) {
	store, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	return e.loadSnapshot(ctx, store)
}

func (e *Engine) loadSnapshot(ctx context.Context, store storage.Provider) (*Snapshot, error) {
	tree, err := store.Scan()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Repo: &deck.Repository{
			Root:    store.Root(),
			Models:  make(map[string]*deck.NoteModel),
			Files:   make(map[string]*deck.FlashcardFile),
			Changes: make(map[string]*deck.ChangeRecord),
		},
		unparsable: make(map[string]bool),
	}
	var col report.Collector

	if len(tree.AssetsDirs) > 0 {
		snap.Repo.AssetsDir = tree.AssetsDirs[0]
	}
	if len(tree.AssetsDirs) > 1 {
		col.Add(report.New(report.CodeStructuralError, "",
			"deck has %d assets folders (%s); at most one is allowed",
			len(tree.AssetsDirs), strings.Join(tree.AssetsDirs, ", ")))
	}
	if len(tree.ModelDirs) == 0 {
		col.Add(report.New(report.CodeEmptyDeck, "", "deck declares no note models"))
	}

	// Model resolution first: block parsing validates field names against
	// the resolved models. Each worker collects into its own slot; no
	// shared mutable state.
	type modelResult struct {
		model      *deck.NoteModel
		violations []report.Violation
	}
	modelResults := make([]modelResult, len(tree.ModelDirs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, dir := range tree.ModelDirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, vs, err := modelres.Resolve(store, dir)
			if err != nil {
				// Unreadable folder: record and keep going.
				vs = append(vs, report.New(report.CodeStructuralError, dir, "%v", err))
			}
			modelResults[i] = modelResult{model: m, violations: vs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, dir := range tree.ModelDirs {
		res := modelResults[i]
		col.Add(res.violations...)
		if res.model == nil {
			continue
		}
		if strings.EqualFold(res.model.Name, deck.AssetsFolder) {
			col.Add(report.New(report.CodeStructuralError, dir,
				"note model may not be named %q", res.model.Name))
			continue
		}
		key := strings.ToLower(dir)
		if prior, dup := snap.Repo.Models[key]; dup {
			col.Add(report.New(report.CodeDuplicateModel, dir,
				"model folder collides case-insensitively with %q", prior.Folder))
			continue
		}
		snap.Repo.Models[key] = res.model
	}

	// Card files and change records are mutually independent; parse them
	// on the same pool.
	type fileResult struct {
		file       *deck.FlashcardFile
		violations []report.Violation
	}
	type recResult struct {
		rec        *deck.ChangeRecord
		violations []report.Violation
	}
	fileResults := make([]fileResult, len(tree.CardFiles))
	recResults := make([]recResult, len(tree.ChangeFiles))

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, p := range tree.CardFiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := store.Read(p)
			if err != nil {
				fileResults[i] = fileResult{violations: []report.Violation{
					report.New(report.CodeStructuralError, p, "unreadable: %v", err),
				}}
				return nil
			}
			f, vs := e.grammar.Parse(p, data, snap.Repo.Models)
			fileResults[i] = fileResult{file: f, violations: vs}
			return nil
		})
	}
	for i, p := range tree.ChangeFiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := store.Read(p)
			if err != nil {
				recResults[i] = recResult{violations: []report.Violation{
					report.New(report.CodeStructuralError, p, "unreadable: %v", err),
				}}
				return nil
			}
			rec, vs := changerec.Parse(p, data)
			recResults[i] = recResult{rec: rec, violations: vs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, p := range tree.CardFiles {
		res := fileResults[i]
		col.Add(res.violations...)
		for _, v := range res.violations {
			if v.Class() == report.Parse || v.Class() == report.Structural {
				snap.unparsable[p] = true
			}
		}
		if res.file != nil {
			snap.Repo.Files[p] = res.file
		}
	}
	for i, p := range tree.ChangeFiles {
		res := recResults[i]
		col.Add(res.violations...)
		if res.rec == nil {
			continue
		}
		if _, ok := snap.Repo.Files[res.rec.Path]; !ok {
			col.Add(report.New(report.CodeStaleChangeRecord, p,
				"change record has no card file %q", res.rec.Path))
			continue
		}
		snap.Repo.Changes[res.rec.Path] = res.rec
	}

	snap.Violations = col.Violations()
	return snap, nil
}

// Params describes one validate/diff operation.
type Params struct {
	// PreviousRoot is empty for a first revision; no diff is run then.
	PreviousRoot string
	CurrentRoot  string
	// PreviousVersion and CurrentVersion are the declared deck versions.
	// Where a deck stores them is the surrounding tool's concern.
	PreviousVersion version.State
	CurrentVersion  version.State
}

// Result is the outcome of one conformance pass.
type Result struct {
	Report  *report.Report  `json:"report"`
	Changes *diff.ChangeSet `json:"changes,omitempty"`
}

// Pass reports whether the run found no blocking violation.
func (r *Result) Pass() bool {
	return r.Report != nil && r.Report.Pass
}

// Validate runs a full conformance pass. Only an unusable deck root
// returns an error; all other findings land in the report.
func (e *Engine) Validate(ctx context.Context, p Params) (*Result, error) {
	curr, err := e.LoadSnapshot(ctx, p.CurrentRoot)
	if err != nil {
		return nil, err
	}

	var col report.Collector
	col.Add(curr.Violations...)

	changes := &diff.ChangeSet{}
	if p.PreviousRoot != "" {
		prev, err := e.LoadSnapshot(ctx, p.PreviousRoot)
		if err != nil {
			return nil, fmt.Errorf("engine: previous snapshot: %w", err)
		}
		changes, err = e.compare(ctx, prev, curr, &col)
		if err != nil {
			return nil, err
		}

		required, declared, vs := version.Evaluate(changes, p.PreviousVersion, p.CurrentVersion)
		col.Add(vs...)
		col.Add(version.EvaluateModels(changes, prev.Repo.Models, curr.Repo.Models)...)

		col.Add(e.checkRegistry(ctx)...)
		rep := col.Build(p.CurrentRoot, required.String(), declared.String())
		return &Result{Report: rep, Changes: changes}, nil
	}

	// First revision: nothing to diff, no bump demanded.
	col.Add(e.checkRegistry(ctx)...)
	declared, _ := version.DeclaredBump(p.PreviousVersion, p.CurrentVersion)
	rep := col.Build(p.CurrentRoot, version.None.String(), declared.String())
	return &Result{Report: rep, Changes: changes}, nil
}

// compare diffs every card file across the two snapshots in parallel, then
// the model field lists. Sub-results are keyed by path and merged in
// sorted order, so the outcome is reproducible regardless of scheduling.
func (e *Engine) compare(ctx context.Context, prev, curr *Snapshot, col *report.Collector) (*diff.ChangeSet, error) {
	paths := unionPaths(prev.Repo, curr.Repo)

	type fileOutcome struct {
		diff       diff.FileDiff
		violations []report.Violation
		skipped    bool
	}
	outcomes := make([]fileOutcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, pth := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if prev.Unparsable(pth) || curr.Unparsable(pth) {
				outcomes[i] = fileOutcome{skipped: true}
				return nil
			}
			fd, vs := diff.CompareFile(prev.Repo.Files[pth], curr.Repo.Files[pth], curr.Repo.Changes[pth])
			outcomes[i] = fileOutcome{diff: fd, violations: vs}
			return nil
		})
	}
	// Workers never fail for individual files; only cancellation
	// surfaces here.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	changes := &diff.ChangeSet{}
	for i, pth := range paths {
		o := outcomes[i]
		if o.skipped {
			e.logger.Debug("diff skipped for unparsable file", slog.String("path", pth))
			continue
		}
		col.Add(o.violations...)
		if !o.diff.Empty() {
			changes.Files = append(changes.Files, o.diff)
		}
	}

	changes.FieldChanges = diff.CompareFields(prev.Repo.Models, curr.Repo.Models)
	return changes, nil
}

// checkRegistry queries the injected topic provider once per report.
func (e *Engine) checkRegistry(ctx context.Context) []report.Violation {
	if e.topics == nil {
		return nil
	}
	ok, err := e.topics.HasTopic(ctx, registry.ListingTopic)
	if err != nil {
		e.logger.Warn("registry topic query failed", slog.String("error", err.Error()))
		return nil
	}
	if ok {
		return nil
	}
	return []report.Violation{report.New(report.CodeMissingRegistryTopic, "",
		"hosting repository does not carry the %q topic", registry.ListingTopic)}
}

func unionPaths(prev, curr *deck.Repository) []string {
	seen := make(map[string]struct{})
	var paths []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	for _, p := range prev.FilePaths() {
		add(p)
	}
	for _, p := range curr.FilePaths() {
		add(p)
	}
	sort.Strings(paths)
	return paths
}
