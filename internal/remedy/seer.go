package remedy

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"texdoctor/internal/yamlutil"
)

// Sentinel errors for heuristic rule loading.
var (
	ErrSeerRuleInvalid = errors.New("remedy: invalid heuristic rule")
	ErrSeerNoRules     = errors.New("remedy: heuristic rule file contains no rules")
)

// errorLinePlaceholder in a rule message is replaced with the lead's
// reported source line, or a neutral phrase when no line is known.
const errorLinePlaceholder = "%%ERROR_LINE%%"

// Heuristic match types.
const (
	matchString = "string"
	matchRegex  = "regex"
)

//go:embed rules.yaml
var embeddedRules []byte

// seerRule is one heuristic record as written in the rule file.
type seerRule struct {
	Name       string  `yaml:"name"`
	Pattern    string  `yaml:"pattern"`
	MatchType  string  `yaml:"match_type"`
	Message    string  `yaml:"message"`
	Confidence float64 `yaml:"confidence"`
	OriginTag  string  `yaml:"origin_tag"`

	re *regexp.Regexp
}

type seerRuleFile struct {
	Rules []seerRule `yaml:"rules"`
}

// Suggestion is one weighted heuristic hit.
type Suggestion struct {
	Rule       string
	Message    string
	Confidence float64
	OriginTag  string
}

// Seer matches free-form log text against an ordered list of heuristic
// rules loaded from YAML. Unlike the signature table it has no fixed
// vocabulary; its rules are meant to be extended without code changes.
type Seer struct {
	rules []seerRule
}

// LoadSeer parses and validates heuristic rules from YAML data. Every rule
// is checked at load time so a broken rule file fails the run up front.
func LoadSeer(data []byte) (*Seer, error) {
	var file seerRuleFile
	if err := yamlutil.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("parsing heuristic rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, ErrSeerNoRules
	}

	for i := range file.Rules {
		r := &file.Rules[i]
		if err := validateSeerRule(r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if r.MatchType == matchRegex {
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w: %v", r.Name, ErrSeerRuleInvalid, err)
			}
			r.re = re
		}
	}

	return &Seer{rules: file.Rules}, nil
}

// LoadEmbeddedSeer loads the rules shipped with the binary.
func LoadEmbeddedSeer() (*Seer, error) {
	return LoadSeer(embeddedRules)
}

func validateSeerRule(r *seerRule) error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: missing name", ErrSeerRuleInvalid)
	case r.Pattern == "":
		return fmt.Errorf("%w: rule %s has no pattern", ErrSeerRuleInvalid, r.Name)
	case r.Message == "":
		return fmt.Errorf("%w: rule %s has no message", ErrSeerRuleInvalid, r.Name)
	case r.MatchType != matchString && r.MatchType != matchRegex:
		return fmt.Errorf("%w: rule %s has match_type %q", ErrSeerRuleInvalid, r.Name, r.MatchType)
	case r.Confidence < 0 || r.Confidence > 1:
		return fmt.Errorf("%w: rule %s has confidence %.2f", ErrSeerRuleInvalid, r.Name, r.Confidence)
	}
	return nil
}

// SuggestAll returns every suggestion whose rule matches text, strongest
// first. Rules are evaluated in file order, which also breaks confidence
// ties, so the result is deterministic for a given rule file.
func (s *Seer) SuggestAll(text, errorLine string) []Suggestion {
	var matches []Suggestion
	for _, r := range s.rules {
		if !ruleMatches(r, text) {
			continue
		}
		matches = append(matches, Suggestion{
			Rule:       r.Name,
			Message:    expandMessage(r.Message, errorLine),
			Confidence: r.Confidence,
			OriginTag:  r.OriginTag,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

// Suggest returns the strongest suggestion whose rule matches text.
func (s *Seer) Suggest(text, errorLine string) (Suggestion, bool) {
	all := s.SuggestAll(text, errorLine)
	if len(all) == 0 {
		return Suggestion{}, false
	}
	return all[0], true
}

func ruleMatches(r seerRule, text string) bool {
	if r.MatchType == matchRegex {
		return r.re.MatchString(text)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(r.Pattern))
}

func expandMessage(msg, errorLine string) string {
	if errorLine == "" {
		errorLine = "the reported location"
	} else {
		errorLine = "line " + errorLine
	}
	return strings.ReplaceAll(msg, errorLinePlaceholder, errorLine)
}
