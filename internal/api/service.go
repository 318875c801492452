package api

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/perthro/internal/apperr"
	"github.com/starford/perthro/internal/diff"
	"github.com/starford/perthro/internal/engine"
	"github.com/starford/perthro/internal/history"
	"github.com/starford/perthro/internal/report"
	"github.com/starford/perthro/internal/version"
)

// Service coordinates deck validation and run history for the API layer.
type Service struct {
	eng *engine.Engine
	db  history.RunStore
}

// NewService creates a new API service.
func NewService(eng *engine.Engine, db history.RunStore) *Service {
	return &Service{eng: eng, db: db}
}

// ValidateRequest describes a validation pass over one or two deck snapshots.
type ValidateRequest struct {
	Root            string `json:"root"`
	PreviousRoot    string `json:"previous_root,omitempty"`
	PreviousVersion string `json:"previous_version,omitempty"`
	CurrentVersion  string `json:"current_version,omitempty"`
}

// ViolationDetail is a single finding in a validation response.
type ViolationDetail struct {
	Code    string `json:"code"`
	Class   string `json:"class"`
	Path    string `json:"path,omitempty"`
	Ordinal int    `json:"ordinal"`
	Message string `json:"message"`
	Eased   bool   `json:"eased,omitempty"`
}

// MoveDetail is one block relocation in a file diff.
type MoveDetail struct {
	Identity   string `json:"identity"`
	Old        int    `json:"old"`
	New        int    `json:"new"`
	Documented bool   `json:"documented"`
}

// FileDiffDetail summarizes block-level changes to one card file.
type FileDiffDetail struct {
	Path      string       `json:"path"`
	Additions []string     `json:"additions,omitempty"`
	Deletions []string     `json:"deletions,omitempty"`
	Moves     []MoveDetail `json:"moves,omitempty"`
}

// ValidateResponse is the full result of a validation pass.
type ValidateResponse struct {
	RunID        int64             `json:"run_id,omitempty"`
	Root         string            `json:"root"`
	Pass         bool              `json:"pass"`
	RequiredBump string            `json:"required_bump"`
	DeclaredBump string            `json:"declared_bump,omitempty"`
	Violations   []ViolationDetail `json:"violations"`
	Files        []FileDiffDetail  `json:"files,omitempty"`
}

// RunSummary is a lightweight item in a run listing.
type RunSummary struct {
	ID           int64     `json:"id"`
	Root         string    `json:"root"`
	PreviousRoot string    `json:"previous_root,omitempty"`
	Pass         bool      `json:"pass"`
	RequiredBump string    `json:"required_bump"`
	DeclaredBump string    `json:"declared_bump,omitempty"`
	Blocking     int       `json:"blocking"`
	Advisory     int       `json:"advisory"`
	CreatedAt    time.Time `json:"created_at"`
}

// RunDetail is a stored run with its recorded violations.
type RunDetail struct {
	RunSummary
	Violations []ViolationDetail `json:"violations"`
}

// Validate runs a conformance pass and records it in the run history.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (*ValidateResponse, error) {
	if req.Root == "" {
		return nil, fmt.Errorf("%w: root is required", apperr.ErrInvalidInput)
	}
	p := engine.Params{
		CurrentRoot:  req.Root,
		PreviousRoot: req.PreviousRoot,
	}
	var err error
	if req.PreviousVersion != "" {
		if p.PreviousVersion, err = version.Parse(req.PreviousVersion); err != nil {
			return nil, fmt.Errorf("%w: previous_version: %v", apperr.ErrInvalidInput, err)
		}
	}
	if req.CurrentVersion != "" {
		if p.CurrentVersion, err = version.Parse(req.CurrentVersion); err != nil {
			return nil, fmt.Errorf("%w: current_version: %v", apperr.ErrInvalidInput, err)
		}
	}
	res, err := s.eng.Validate(ctx, p)
	if err != nil {
		return nil, err
	}

	resp := buildValidateResponse(req.Root, res)
	if s.db != nil {
		run := history.FromReport(res.Report, req.PreviousRoot)
		if id, err := s.db.Record(run); err == nil {
			resp.RunID = id
		} else {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}
	return resp, nil
}

// GetRun returns a stored run by id.
func (s *Service) GetRun(ctx context.Context, id int64) (*RunDetail, error) {
	run, err := s.db.GetRun(id)
	if err != nil {
		return nil, err
	}
	return runDetail(run), nil
}

// ListRuns returns paginated runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]RunSummary, int, error) {
	runs, total, err := s.db.ListRuns(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		items = append(items, runSummary(&run))
	}
	return items, total, nil
}

func buildValidateResponse(root string, res *engine.Result) *ValidateResponse {
	resp := &ValidateResponse{
		Root:         root,
		Pass:         res.Report.Pass,
		RequiredBump: res.Report.RequiredBump,
		DeclaredBump: res.Report.DeclaredBump,
		Violations:   violationDetails(res.Report.Violations),
	}
	if res.Changes != nil {
		for _, fd := range res.Changes.Files {
			resp.Files = append(resp.Files, fileDiffDetail(fd))
		}
	}
	return resp
}

func violationDetails(vs []report.Violation) []ViolationDetail {
	out := make([]ViolationDetail, 0, len(vs))
	for _, v := range vs {
		out = append(out, ViolationDetail{
			Code:    string(v.Code),
			Class:   string(v.Class()),
			Path:    v.Path,
			Ordinal: v.Ordinal,
			Message: v.Message,
			Eased:   v.Eased,
		})
	}
	return out
}

func fileDiffDetail(fd diff.FileDiff) FileDiffDetail {
	d := FileDiffDetail{Path: fd.Path}
	for _, a := range fd.Additions {
		d.Additions = append(d.Additions, a.Identity.String())
	}
	for _, del := range fd.Deletions {
		d.Deletions = append(d.Deletions, del.Identity.String())
	}
	for _, m := range fd.Moves {
		d.Moves = append(d.Moves, MoveDetail{
			Identity:   m.Identity.String(),
			Old:        m.Old,
			New:        m.New,
			Documented: m.Documented,
		})
	}
	return d
}

func runSummary(run *history.Run) RunSummary {
	return RunSummary{
		ID:           run.ID,
		Root:         run.Root,
		PreviousRoot: run.PreviousRoot,
		Pass:         run.Pass,
		RequiredBump: run.RequiredBump,
		DeclaredBump: run.DeclaredBump,
		Blocking:     run.Blocking,
		Advisory:     run.Advisory,
		CreatedAt:    run.CreatedAt,
	}
}

func runDetail(run *history.Run) *RunDetail {
	return &RunDetail{
		RunSummary: runSummary(run),
		Violations: violationDetails(run.Violations),
	}
}
