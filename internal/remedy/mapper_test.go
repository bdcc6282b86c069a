package remedy_test

import (
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"texdoctor/internal/job"
	"texdoctor/internal/remedy"
)

func quietMapper(t *testing.T) *remedy.Mapper {
	t.Helper()
	m, err := remedy.NewDefaultMapper(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func recordWithLeads(t *testing.T, leads ...job.Lead) *job.Record {
	t.Helper()
	rec, err := job.NewRecord("# Doc\n\nbody\n")
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range leads {
		rec.AddLead(l)
	}
	return rec
}

func sigLead(description, signature string) job.Lead {
	l := job.NewLead("test_probe", description, 0.9)
	l.Details = map[string]string{job.DetailSignature: signature}
	return l
}

func TestNewMapper_ValidatesRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rules []remedy.Rule
		want  error
	}{
		{
			name:  "missing name",
			rules: []remedy.Rule{{Signature: "latex_generic_error", Explanation: "x", Confidence: 0.5}},
			want:  remedy.ErrEmptyRuleName,
		},
		{
			name:  "missing signature",
			rules: []remedy.Rule{{Name: "r", Explanation: "x", Confidence: 0.5}},
			want:  remedy.ErrMissingSignature,
		},
		{
			name:  "no explanation or fix",
			rules: []remedy.Rule{{Name: "r", Signature: "latex_generic_error", Confidence: 0.5}},
			want:  remedy.ErrEmptyRuleFix,
		},
		{
			name:  "confidence out of range",
			rules: []remedy.Rule{{Name: "r", Signature: "latex_generic_error", Explanation: "x", Confidence: 1.5}},
			want:  remedy.ErrInvalidRule,
		},
		{
			name: "duplicate names",
			rules: []remedy.Rule{
				{Name: "r", Signature: "latex_generic_error", Explanation: "x", Confidence: 0.5},
				{Name: "r", Signature: "latex_missing_end", Explanation: "y", Confidence: 0.5},
			},
			want: remedy.ErrDuplicateRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := remedy.NewMapper(tt.rules, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProcess_RequiresLeads(t *testing.T) {
	t.Parallel()

	rec := recordWithLeads(t)
	_, err := quietMapper(t).Process(rec)
	if !errors.Is(err, remedy.ErrNoLeads) {
		t.Errorf("error = %v, want ErrNoLeads", err)
	}
}

func TestProcess_EveryLeadGetsARemedy(t *testing.T) {
	t.Parallel()

	rec := recordWithLeads(t,
		sigLead(`Undefined control sequence \badcmd near line 42`, "latex_undefined_control_sequence"),
		job.NewLead("citation_check", "Citation smith2020 is undefined", 0.7),
		sigLead("Runaway argument detected", "latex_runaway_argument"),
	)

	got, err := quietMapper(t).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got.Outcome != job.OutcomeRemediesProvided {
		t.Errorf("Outcome = %q, want %q", got.Outcome, job.OutcomeRemediesProvided)
	}
	if len(got.Remedies) < len(got.Leads) {
		t.Fatalf("len(remedies) = %d, want at least one per lead (%d)", len(got.Remedies), len(got.Leads))
	}

	covered := map[string]bool{}
	for _, r := range got.Remedies {
		covered[r.LeadID] = true
	}
	for _, l := range got.Leads {
		if !covered[l.ID] {
			t.Errorf("lead %s has no remedy", l.ID)
		}
	}
	if err := got.Validate(); err != nil {
		t.Errorf("mapped record fails validation: %v", err)
	}
}

func TestMapping_NamedCommandRuleExpandsCapture(t *testing.T) {
	t.Parallel()

	rec := recordWithLeads(t,
		sigLead(`Undefined control sequence \badcmd near line 42`, "latex_undefined_control_sequence"))

	got, err := quietMapper(t).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	rem := got.Remedies[0]
	if rem.Source != "remedy_mapper" {
		t.Errorf("source = %q, want remedy_mapper", rem.Source)
	}
	if !strings.Contains(rem.Fix, `\badcmd`) {
		t.Errorf("fix = %q, want the command substituted in", rem.Fix)
	}
}

func TestMapping_UndefinedCitationNamesTheKey(t *testing.T) {
	t.Parallel()

	rec := recordWithLeads(t,
		sigLead(`Citation "smith2020" is undefined; no bibliography entry matches it`,
			"latex_undefined_citation"))

	got, err := quietMapper(t).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	rem := got.Remedies[0]
	if rem.Source != "remedy_mapper" {
		t.Errorf("source = %q, want remedy_mapper", rem.Source)
	}
	if !strings.Contains(rem.Fix, "smith2020") {
		t.Errorf("fix = %q, want the citation key substituted in", rem.Fix)
	}
}

func TestMapping_SecondaryMissContinuesToNextRule(t *testing.T) {
	t.Parallel()

	// No backslash command in the description, so the named rule's
	// secondary pattern misses and the generic rule for the same
	// signature must take over.
	rec := recordWithLeads(t,
		sigLead("Undefined control sequence reported by the compiler", "latex_undefined_control_sequence"))

	got, err := quietMapper(t).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	rem := got.Remedies[0]
	if rem.Source != "remedy_mapper" {
		t.Errorf("source = %q, want remedy_mapper", rem.Source)
	}
	if !strings.Contains(rem.Fix, "Find the backslash command") {
		t.Errorf("fix = %q, want the generic rule's fix", rem.Fix)
	}
}

func TestMapping_RuleOrderIsRespected(t *testing.T) {
	t.Parallel()

	rules := []remedy.Rule{
		{
			Name:        "specific",
			Signature:   "latex_generic_error",
			Secondary:   regexp.MustCompile(`special`),
			Explanation: "specific explanation",
			Confidence:  0.9,
		},
		{
			Name:        "general",
			Signature:   "latex_generic_error",
			Explanation: "general explanation",
			Confidence:  0.5,
		},
	}
	m, err := remedy.NewMapper(rules, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}

	rec := recordWithLeads(t, sigLead("a special failure", "latex_generic_error"))
	got, err := m.Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got.Remedies[0].Explanation != "specific explanation" {
		t.Errorf("explanation = %q, want the earlier matching rule", got.Remedies[0].Explanation)
	}
}

func TestMapping_HeuristicsCoverUnknownSignatures(t *testing.T) {
	t.Parallel()

	lead := job.NewLead("log_classifier", "Compiler stopped abnormally", 0.6)
	lead.Details = map[string]string{
		job.DetailLogExcerpt: "! Emergency stop.\n<*> doc.tex\n",
	}
	rec := recordWithLeads(t, lead)

	got, err := quietMapper(t).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	rem := got.Remedies[0]
	if rem.Source != "log_heuristics" {
		t.Errorf("source = %q, want log_heuristics", rem.Source)
	}
	if !strings.Contains(rem.Explanation, "first error") {
		t.Errorf("explanation = %q, want the emergency stop hint", rem.Explanation)
	}
}

func TestMapping_EveryMatchingHeuristicContributes(t *testing.T) {
	t.Parallel()

	lead := job.NewLead("log_classifier", "Compiler stopped abnormally", 0.6)
	lead.Details = map[string]string{
		job.DetailLogExcerpt: "! LaTeX Error: File `fancy.sty' not found.\n! Emergency stop.\n",
	}
	rec := recordWithLeads(t, lead)

	got, err := quietMapper(t).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(got.Remedies) < 2 {
		t.Fatalf("len(remedies) = %d, want one per matching heuristic", len(got.Remedies))
	}
	for i, rem := range got.Remedies {
		if rem.LeadID != lead.ID {
			t.Errorf("remedy %d applies to %q, want %q", i, rem.LeadID, lead.ID)
		}
		if rem.Source != "log_heuristics" {
			t.Errorf("remedy %d source = %q, want log_heuristics", i, rem.Source)
		}
	}
	if got.Remedies[0].Confidence < got.Remedies[1].Confidence {
		t.Errorf("remedies out of order: %v before %v, want strongest first",
			got.Remedies[0].Confidence, got.Remedies[1].Confidence)
	}
}

func TestMapping_ErrorLinePlaceholderExpansion(t *testing.T) {
	t.Parallel()

	lead := job.NewLead("log_classifier", "Unsupported character", 0.6)
	lead.Details = map[string]string{
		job.DetailLogExcerpt: "! Package inputenc Error: Unicode character (U+2603)\n",
		job.DetailErrorLine:  "17",
	}
	rec := recordWithLeads(t, lead)

	got, err := quietMapper(t).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !strings.Contains(got.Remedies[0].Explanation, "line 17") {
		t.Errorf("explanation = %q, want expanded line number", got.Remedies[0].Explanation)
	}
}

func TestMapping_FallbackWhenNothingMatches(t *testing.T) {
	t.Parallel()

	rec := recordWithLeads(t, job.NewLead("unknown_probe", "something nobody recognizes", 0.5))

	got, err := quietMapper(t).Process(rec)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	rem := got.Remedies[0]
	if rem.Source != "interpretation" {
		t.Errorf("source = %q, want interpretation", rem.Source)
	}
	if rem.Confidence != 0.2 {
		t.Errorf("confidence = %v, want 0.2", rem.Confidence)
	}
}
