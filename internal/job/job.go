// Package job defines the record passed between diagnostic pipeline stages:
// the evolving Record, the Leads (diagnosed problems) and Remedies (proposed
// fixes) attached to it, and the JSON codec used across worker boundaries.
package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for record validation.
var (
	ErrEmptyMarkdown     = errors.New("job: markdown content cannot be empty")
	ErrMissingCaseID     = errors.New("job: case id is required")
	ErrInvalidConfidence = errors.New("job: confidence must be between 0 and 1")
	ErrEmptyDescription  = errors.New("job: lead description cannot be empty")
	ErrEmptySnippetText  = errors.New("job: snippet text cannot be empty")
	ErrInvalidSnippet    = errors.New("job: invalid snippet")
	ErrDanglingRemedy    = errors.New("job: remedy references unknown lead")
	ErrUnknownOutcome    = errors.New("job: unknown outcome code")
)

// Outcome is the overall result code of a diagnostic run.
type Outcome string

// Outcome codes, set by stages and read by the orchestrator and reporter.
const (
	OutcomeUnset               Outcome = ""
	OutcomeCompilationSuccess  Outcome = "compilation_success"
	OutcomeMarkdownProofing    Outcome = "markdown_proofing_failed"
	OutcomeConversionFailed    Outcome = "conversion_failed"
	OutcomeCompilationFailed   Outcome = "compilation_failed_pending_investigation"
	OutcomeTexErrorLeadsFound  Outcome = "tex_error_leads_found"
	OutcomeRemediesProvided    Outcome = "remedies_provided"
	OutcomeNoLeadsManualReview Outcome = "no_actionable_leads_manual_review"
	OutcomeInternalError       Outcome = "internal_error"
)

// knownOutcomes is the closed set accepted by Validate.
var knownOutcomes = map[Outcome]bool{
	OutcomeUnset:               true,
	OutcomeCompilationSuccess:  true,
	OutcomeMarkdownProofing:    true,
	OutcomeConversionFailed:    true,
	OutcomeCompilationFailed:   true,
	OutcomeTexErrorLeadsFound:  true,
	OutcomeRemediesProvided:    true,
	OutcomeNoLeadsManualReview: true,
	OutcomeInternalError:       true,
}

// Stage markers. Only the orchestrator writes the Stage field.
const (
	StageInitial     = "initial"
	StageMine        = "mine"
	StageInvestigate = "investigate"
	StageRemedy      = "remedy"
	StageReport      = "report"
	StageCompleted   = "completed"
)

// SnippetKind tags which document a snippet was taken from.
type SnippetKind string

const (
	SnippetDocument     SnippetKind = "document"     // original markdown
	SnippetIntermediate SnippetKind = "intermediate" // generated TeX
	SnippetLog          SnippetKind = "log"          // compiler/converter log
)

// Snippet is a located excerpt of source, intermediate, or log text.
// Line is 1-based and meaningful only relative to Kind; 0 means unknown.
type Snippet struct {
	Kind     SnippetKind `json:"kind"`
	Line     int         `json:"line,omitempty"`
	Text     string      `json:"text"`
	Location string      `json:"location,omitempty"`
	Notes    string      `json:"notes,omitempty"`
}

// Detail keys shared between the investigation stage and the remedy mapper.
const (
	DetailSignature  = "signature"
	DetailLogExcerpt = "log_excerpt"
	DetailErrorLine  = "error_line"
	DetailRawMessage = "raw_message"
)

// Lead is one diagnosed problem. Leads are append-only: created by exactly
// one analyzer call and never mutated or removed afterwards.
type Lead struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Description string            `json:"description"`
	Snippets    []Snippet         `json:"snippets,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Confidence  float64           `json:"confidence"`
}

// Remedy is one proposed fix, always expressed against the original
// markdown document, never the intermediate TeX.
type Remedy struct {
	ID          string   `json:"id"`
	LeadID      string   `json:"applies_to_lead_id"`
	Source      string   `json:"source"`
	Explanation string   `json:"explanation"`
	Fix         string   `json:"fix"`
	Snippet     *Snippet `json:"snippet,omitempty"`
	AfterFix    string   `json:"after_fix,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// Record is the single mutable-by-replacement document that flows through
// every pipeline stage. Each stage receives its own deserialized copy and
// returns a new one; stages never share memory.
type Record struct {
	CaseID    string    `json:"case_id"`
	CreatedAt time.Time `json:"created_at"`
	Markdown  string    `json:"markdown"`

	TexContent      string `json:"tex_content,omitempty"`
	ConverterLog    string `json:"converter_log,omitempty"`
	CompilerLog     string `json:"compiler_log,omitempty"`
	CompilerLogPath string `json:"compiler_log_path,omitempty"`

	ConversionAttempted  bool `json:"conversion_attempted"`
	ConversionSucceeded  bool `json:"conversion_succeeded"`
	CompilationAttempted bool `json:"compilation_attempted"`
	CompilationSucceeded bool `json:"compilation_succeeded"`

	Leads    []Lead   `json:"leads,omitempty"`
	Remedies []Remedy `json:"remedies,omitempty"`

	Stage   string  `json:"stage"`
	Outcome Outcome `json:"outcome,omitempty"`
	Summary string  `json:"summary,omitempty"`
	Report  string  `json:"report,omitempty"`

	ScratchDir  string            `json:"scratch_dir,omitempty"`
	ToolOutputs map[string]string `json:"tool_outputs,omitempty"`
}

// NewRecord creates a record for one diagnostic run with only the input
// populated. The case id is a fresh UUID.
func NewRecord(markdown string) (*Record, error) {
	if markdown == "" {
		return nil, ErrEmptyMarkdown
	}
	return &Record{
		CaseID:    uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Markdown:  markdown,
		Stage:     StageInitial,
	}, nil
}

// NewLead creates a lead with a fresh id.
func NewLead(source, description string, confidence float64) Lead {
	return Lead{
		ID:          uuid.NewString(),
		Source:      source,
		Description: description,
		Confidence:  confidence,
	}
}

// NewRemedy creates a remedy with a fresh id, addressing the given lead.
func NewRemedy(leadID, source, explanation, fix string, confidence float64) Remedy {
	return Remedy{
		ID:          uuid.NewString(),
		LeadID:      leadID,
		Source:      source,
		Explanation: explanation,
		Fix:         fix,
		Confidence:  confidence,
	}
}

// AddLead appends a lead to the record.
func (r *Record) AddLead(l Lead) {
	r.Leads = append(r.Leads, l)
}

// AddRemedy appends a remedy to the record.
func (r *Record) AddRemedy(rem Remedy) {
	r.Remedies = append(r.Remedies, rem)
}

// RecordToolOutput stashes a tool's raw output stream verbatim, keyed by
// tool and stream name, for the report's diagnostic appendix.
func (r *Record) RecordToolOutput(key, output string) {
	if r.ToolOutputs == nil {
		r.ToolOutputs = make(map[string]string)
	}
	r.ToolOutputs[key] = output
}

// Validate checks structural well-formedness: required fields present,
// enumerated fields within their domain, and every remedy referencing an
// existing lead. Called on both sides of the worker boundary.
func (r *Record) Validate() error {
	if r.CaseID == "" {
		return ErrMissingCaseID
	}
	if r.Markdown == "" {
		return ErrEmptyMarkdown
	}
	if !knownOutcomes[r.Outcome] {
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, r.Outcome)
	}

	leadIDs := make(map[string]bool, len(r.Leads))
	for i, l := range r.Leads {
		if err := l.validate(); err != nil {
			return fmt.Errorf("lead %d: %w", i, err)
		}
		leadIDs[l.ID] = true
	}

	for i, rem := range r.Remedies {
		if err := rem.validate(); err != nil {
			return fmt.Errorf("remedy %d: %w", i, err)
		}
		if !leadIDs[rem.LeadID] {
			return fmt.Errorf("remedy %d: %w: %q", i, ErrDanglingRemedy, rem.LeadID)
		}
	}

	return nil
}

func (l Lead) validate() error {
	if l.Description == "" {
		return ErrEmptyDescription
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		return fmt.Errorf("%w: %.2f", ErrInvalidConfidence, l.Confidence)
	}
	for i, s := range l.Snippets {
		if err := s.validate(); err != nil {
			return fmt.Errorf("snippet %d: %w", i, err)
		}
	}
	return nil
}

func (rem Remedy) validate() error {
	if rem.Explanation == "" && rem.Fix == "" {
		return fmt.Errorf("%w: remedy needs an explanation or a fix", ErrInvalidSnippet)
	}
	if rem.Confidence < 0 || rem.Confidence > 1 {
		return fmt.Errorf("%w: %.2f", ErrInvalidConfidence, rem.Confidence)
	}
	if rem.Snippet != nil {
		if err := rem.Snippet.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s Snippet) validate() error {
	if s.Text == "" {
		return ErrEmptySnippetText
	}
	switch s.Kind {
	case SnippetDocument, SnippetIntermediate, SnippetLog:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSnippet, s.Kind)
	}
	if s.Line < 0 {
		return fmt.Errorf("%w: negative line %d", ErrInvalidSnippet, s.Line)
	}
	return nil
}
