// Package remedy implements the third pipeline stage: it maps every lead to
// at least one concrete fix. An ordered rule table handles the recognized
// error signatures, a YAML-driven heuristic suggester covers logs the table
// does not know, and a low-confidence interpretation backstops both.
package remedy

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"texdoctor/internal/job"
)

// Sentinel errors for mapper construction and stage preconditions.
var (
	ErrNoLeads          = errors.New("remedy: record has no leads to map")
	ErrInvalidRule      = errors.New("remedy: invalid rule")
	ErrDuplicateRule    = errors.New("remedy: duplicate rule name")
	ErrEmptyRuleName    = errors.New("remedy: rule name cannot be empty")
	ErrEmptyRuleFix     = errors.New("remedy: rule needs an explanation or a fix")
	ErrMissingSignature = errors.New("remedy: rule signature cannot be empty")
)

// Remedy sources, recorded on each remedy for the report.
const (
	sourceMapper   = "remedy_mapper"
	sourceSeer     = "log_heuristics"
	sourceFallback = "interpretation"
)

// fallbackConfidence marks a remedy produced without any recognized
// signature or heuristic match.
const fallbackConfidence = 0.2

// Rule maps one error signature to a fix. Secondary, when set, must also
// match the lead's description; its capture groups are available to
// FixTemplate through regexp expansion ($1, $2, ...). A rule whose
// secondary pattern misses is skipped and evaluation continues, so a
// specific rule can sit above a general one for the same signature.
type Rule struct {
	Name        string
	Signature   string
	Secondary   *regexp.Regexp
	Explanation string
	FixTemplate string
	Confidence  float64
}

// Validate checks the rule's structural invariants.
func (r Rule) Validate() error {
	if r.Name == "" {
		return ErrEmptyRuleName
	}
	if r.Signature == "" {
		return fmt.Errorf("%w: rule %s", ErrMissingSignature, r.Name)
	}
	if r.Explanation == "" && r.FixTemplate == "" {
		return fmt.Errorf("%w: rule %s", ErrEmptyRuleFix, r.Name)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: rule %s: confidence %.2f", ErrInvalidRule, r.Name, r.Confidence)
	}
	return nil
}

// defaultRules is evaluated in order; the first rule whose signature and
// secondary pattern both match wins. More specific rules precede general
// ones for the same signature.
var defaultRules = []Rule{
	{
		Name:      "undefined_command_named",
		Signature: "latex_undefined_control_sequence",
		Secondary: regexp.MustCompile(`(\\[a-zA-Z@]+)`),
		Explanation: "The compiler does not know this command. It is usually a typo " +
			"or a command from a package that was never loaded.",
		FixTemplate: "Check the spelling of $1, or remove it if it is not a real command. " +
			"If it comes from a package, the converted document does not load that package.",
		Confidence: 0.9,
	},
	{
		Name:        "undefined_command_generic",
		Signature:   "latex_undefined_control_sequence",
		Explanation: "The compiler hit a command it does not know.",
		FixTemplate: "Find the backslash command on the reported line and fix its spelling " +
			"or remove it.",
		Confidence: 0.7,
	},
	{
		Name:      "mismatched_delimiters",
		Signature: "latex_mismatched_delimiters",
		Explanation: "A \\left delimiter is paired with a \\right delimiter of a different " +
			"shape, or one side is missing.",
		FixTemplate: "Make every \\left( match a \\right), every \\left[ a \\right], and so on. " +
			"Use \\right. for a deliberately empty right side.",
		Confidence: 0.85,
	},
	{
		Name:      "runaway_argument",
		Signature: "latex_runaway_argument",
		Explanation: "An argument opened with { was never closed, so the compiler read to " +
			"the end of the file looking for the closing brace.",
		FixTemplate: "Add the missing } to the command argument on or near the reported line.",
		Confidence:  0.85,
	},
	{
		Name:        "too_many_closing_braces",
		Signature:   "latex_too_many_closing_braces",
		Explanation: "There are more closing braces than opening ones.",
		FixTemplate: "Remove the extra } on the reported line, or add the missing { before it.",
		Confidence:  0.8,
	},
	{
		Name:        "unbalanced_braces",
		Signature:   "latex_unbalanced_braces",
		Explanation: "Braces on this line do not pair up, or a math formula is missing its $.",
		FixTemplate: "Balance the { and } on the reported line. If the line contains math, " +
			"make sure the formula is wrapped in $...$.",
		Confidence: 0.8,
	},
	{
		Name:      "missing_math_delimiters",
		Signature: "latex_missing_math_delimiters",
		Explanation: "Math content appears outside math mode. Underscores, carets, and " +
			"similar characters only work between $ signs.",
		FixTemplate: "Wrap the math expression on the reported line in $...$, or escape the " +
			"special character (\\_, \\^) if it is plain text.",
		Confidence: 0.85,
	},
	{
		Name:        "missing_end",
		Signature:   "latex_missing_end",
		Explanation: "The document ended while an environment was still open.",
		FixTemplate: "Add the missing \\end{...} for the last environment opened before the " +
			"end of the document.",
		Confidence: 0.85,
	},
	{
		Name:        "environment_not_closed",
		Signature:   "latex_environment_not_closed",
		Explanation: "An environment was still open when \\end{document} was reached.",
		FixTemplate: "Close the environment named in the log before the end of the document.",
		Confidence:  0.85,
	},
	{
		Name:        "environment_mismatch",
		Signature:   "latex_environment_mismatch",
		Explanation: "An environment is closed by an \\end with a different name.",
		FixTemplate: "Make the \\end{...} name match the \\begin{...} it closes.",
		Confidence:  0.85,
	},
	{
		Name:      "undefined_environment_named",
		Signature: "latex_undefined_environment",
		Secondary: regexp.MustCompile(`[Ee]nvironment (\w+)`),
		Explanation: "The document uses an environment the compiler does not know, " +
			"usually one provided by a package that is not loaded.",
		FixTemplate: "Replace the $1 environment with a standard one, or avoid markdown " +
			"constructs that convert into it.",
		Confidence: 0.85,
	},
	{
		Name:        "undefined_environment_generic",
		Signature:   "latex_undefined_environment",
		Explanation: "The document uses an environment the compiler does not know.",
		FixTemplate: "Replace the environment named in the log with a standard one.",
		Confidence:  0.7,
	},
	{
		Name:        "file_not_found",
		Signature:   "latex_file_not_found",
		Explanation: "The compiler cannot find a file the document refers to.",
		FixTemplate: "Check the path of the included image or file; paths resolve relative " +
			"to the document being compiled.",
		Confidence: 0.8,
	},
	{
		Name:      "undefined_citation_named",
		Signature: "latex_undefined_citation",
		Secondary: regexp.MustCompile(`Citation "([^"]+)"`),
		Explanation: "A citation refers to a key that has no matching bibliography " +
			"entry, so the compiler cannot resolve it.",
		FixTemplate: "Add a bibliography entry with the key $1, or correct the key in " +
			"the citation to match an existing entry.",
		Confidence: 0.8,
	},
	{
		Name:        "undefined_citation_generic",
		Signature:   "latex_undefined_citation",
		Explanation: "A citation key has no matching bibliography entry.",
		FixTemplate: "Match every citation key against the bibliography and fix the " +
			"one named in the log.",
		Confidence: 0.7,
	},
	{
		Name:        "missing_documentclass",
		Signature:   "latex_missing_documentclass",
		Explanation: "The generated document has no \\documentclass declaration.",
		FixTemplate: "Run the converter in standalone mode so it emits a complete document.",
		Confidence:  0.8,
	},
	{
		Name:        "misplaced_alignment_tab",
		Signature:   "latex_misplaced_alignment_tab",
		Explanation: "A bare & appears outside a table. In text it must be escaped.",
		FixTemplate: "Write \\& for a literal ampersand on the reported line.",
		Confidence:  0.85,
	},
}

// Mapper is the remedy mapping stage.
type Mapper struct {
	rules []Rule
	seer  *Seer
	log   *slog.Logger
}

// NewMapper builds a mapper over an ordered rule table. Every rule is
// validated up front; a broken table is a programming error surfaced at
// construction, not at mapping time.
func NewMapper(rules []Rule, seer *Seer, log *slog.Logger) (*Mapper, error) {
	if log == nil {
		log = slog.Default()
	}
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.Name)
		}
		seen[r.Name] = true
	}
	return &Mapper{rules: rules, seer: seer, log: log}, nil
}

// NewDefaultMapper builds a mapper with the built-in rule table and the
// embedded heuristic rules.
func NewDefaultMapper(log *slog.Logger) (*Mapper, error) {
	seer, err := LoadEmbeddedSeer()
	if err != nil {
		return nil, err
	}
	return NewMapper(defaultRules, seer, log)
}

// Process maps every lead on the record to at least one remedy and sets
// the remedies-provided outcome.
func (m *Mapper) Process(rec *job.Record) (*job.Record, error) {
	if len(rec.Leads) == 0 {
		return nil, fmt.Errorf("%w: case %s", ErrNoLeads, rec.CaseID)
	}

	for _, lead := range rec.Leads {
		for _, rem := range m.mapLead(lead) {
			rec.AddRemedy(rem)
		}
	}

	rec.Outcome = job.OutcomeRemediesProvided
	m.log.Info("remedies mapped",
		slog.String("case_id", rec.CaseID),
		slog.Int("leads", len(rec.Leads)),
		slog.Int("remedies", len(rec.Remedies)),
	)
	return rec, nil
}

// mapLead resolves one lead through the rule table, then the heuristic
// suggester, then the interpretation fallback. It always returns at least
// one remedy; every matching heuristic rule contributes its own.
func (m *Mapper) mapLead(lead job.Lead) []job.Remedy {
	sig := lead.Details[job.DetailSignature]

	if sig != "" {
		for _, r := range m.rules {
			if r.Signature != sig {
				continue
			}
			if r.Secondary == nil {
				return []job.Remedy{ruleRemedy(lead, r, r.FixTemplate)}
			}
			match := r.Secondary.FindStringSubmatchIndex(lead.Description)
			if match == nil {
				continue
			}
			fix := string(r.Secondary.ExpandString(nil, r.FixTemplate, lead.Description, match))
			return []job.Remedy{ruleRemedy(lead, r, fix)}
		}
	}

	if m.seer != nil {
		suggestions := m.seer.SuggestAll(seerInput(lead), lead.Details[job.DetailErrorLine])
		if len(suggestions) > 0 {
			rems := make([]job.Remedy, 0, len(suggestions))
			for _, s := range suggestions {
				rems = append(rems, job.NewRemedy(lead.ID, sourceSeer, s.Message, "", s.Confidence))
			}
			return rems
		}
	}

	m.log.Debug("no rule or heuristic matched lead",
		slog.String("lead_id", lead.ID),
		slog.String("signature", sig),
	)
	return []job.Remedy{job.NewRemedy(lead.ID, sourceFallback,
		"No known fix matches this problem. Read the quoted log lines and inspect "+
			"the markdown around the reported location.",
		"", fallbackConfidence)}
}

func ruleRemedy(lead job.Lead, r Rule, fix string) job.Remedy {
	rem := job.NewRemedy(lead.ID, sourceMapper, r.Explanation, fix, r.Confidence)
	for i := range lead.Snippets {
		if lead.Snippets[i].Kind == job.SnippetDocument {
			s := lead.Snippets[i]
			rem.Snippet = &s
			break
		}
	}
	return rem
}

// seerInput picks the richest text the lead carries for heuristic matching.
func seerInput(lead job.Lead) string {
	if e := lead.Details[job.DetailLogExcerpt]; e != "" {
		return e
	}
	if r := lead.Details[job.DetailRawMessage]; r != "" {
		return r
	}
	return lead.Description
}
