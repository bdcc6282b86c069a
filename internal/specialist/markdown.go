package specialist

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"texdoctor/internal/job"
)

// Markdown proofer specialists. They run over the original document before
// any conversion is attempted, each probing a disjoint authoring mistake, so
// callers dispatch them in RunAll mode.

var (
	fenceLineRe   = regexp.MustCompile("^\\s{0,3}```")
	rawTexCmdRe   = regexp.MustCompile(`\\[a-zA-Z]+\{[^}]*\}`)
	citationKeyRe = regexp.MustCompile(`\[@[A-Za-z0-9_:.-]+\]`)
)

// codeRanges returns the byte ranges of code blocks and code spans in the
// document, so prose-only checks can skip literal code.
func codeRanges(source []byte) [][2]int {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var ranges [][2]int
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				ranges = append(ranges, [2]int{seg.Start, seg.Stop})
			}
		case ast.KindCodeSpan:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					seg := t.Segment
					ranges = append(ranges, [2]int{seg.Start, seg.Stop})
				}
			}
		}
		return ast.WalkContinue, nil
	})

	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })
	return ranges
}

func inRanges(ranges [][2]int, offset int) bool {
	for _, r := range ranges {
		if offset >= r[0] && offset < r[1] {
			return true
		}
		if r[0] > offset {
			break
		}
	}
	return false
}

// offsetLine converts a byte offset into a 1-based line number.
func offsetLine(source string, offset int) int {
	if offset > len(source) {
		offset = len(source)
	}
	return 1 + strings.Count(source[:offset], "\n")
}

// lineAt returns the full text of the 1-based line.
func lineAt(source string, line int) string {
	lines := strings.Split(source, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	return lines[line-1]
}

// UnclosedFenceProofer reports a fenced code block that is never closed.
type UnclosedFenceProofer struct{}

func (UnclosedFenceProofer) Name() string { return "unclosed_fence_proofer" }

func (UnclosedFenceProofer) Examine(a Artifacts) Outcome {
	var fences []int
	for i, line := range strings.Split(a.Markdown, "\n") {
		if fenceLineRe.MatchString(line) {
			fences = append(fences, i+1)
		}
	}
	if len(fences) == 0 || len(fences)%2 == 0 {
		return Miss()
	}
	last := fences[len(fences)-1]
	return Hit(Finding{
		Description: "Unclosed code fence: a ``` block is never terminated",
		Snippet: &job.Snippet{
			Kind: job.SnippetDocument,
			Line: last,
			Text: lineAt(a.Markdown, last),
		},
		Confidence: 0.9,
	})
}

// UnbalancedDollarProofer reports an odd number of inline math delimiters
// outside code, which makes the rest of the document parse as math.
type UnbalancedDollarProofer struct{}

func (UnbalancedDollarProofer) Name() string { return "unbalanced_dollar_proofer" }

func (UnbalancedDollarProofer) Examine(a Artifacts) Outcome {
	source := a.Markdown
	ranges := codeRanges([]byte(source))

	count := 0
	firstOffset := -1
	for i := 0; i < len(source); i++ {
		if source[i] != '$' {
			continue
		}
		if i > 0 && source[i-1] == '\\' {
			continue // escaped \$
		}
		if inRanges(ranges, i) {
			continue
		}
		count++
		if firstOffset < 0 {
			firstOffset = i
		}
	}
	if count == 0 || count%2 == 0 {
		return Miss()
	}

	line := offsetLine(source, firstOffset)
	return Hit(Finding{
		Description: "Unbalanced $ math delimiter: dollars outside code do not pair up",
		Snippet: &job.Snippet{
			Kind: job.SnippetDocument,
			Line: line,
			Text: lineAt(source, line),
		},
		Confidence: 0.85,
	})
}

// RawTexCommandProofer reports raw TeX commands in prose. Advisory only:
// converters pass many of these through, but typos in them surface later as
// opaque compiler errors.
type RawTexCommandProofer struct{}

func (RawTexCommandProofer) Name() string { return "raw_tex_command_proofer" }

func (RawTexCommandProofer) Examine(a Artifacts) Outcome {
	source := a.Markdown
	ranges := codeRanges([]byte(source))

	for _, loc := range rawTexCmdRe.FindAllStringIndex(source, -1) {
		if inRanges(ranges, loc[0]) {
			continue
		}
		line := offsetLine(source, loc[0])
		cmd := source[loc[0]:loc[1]]
		return Hit(Finding{
			Description: fmt.Sprintf("Raw TeX command %s in prose; it may not survive conversion", cmd),
			Snippet: &job.Snippet{
				Kind: job.SnippetDocument,
				Line: line,
				Text: lineAt(source, line),
			},
			Confidence: 0.5,
		})
	}
	return Miss()
}

// CitationSyntaxProofer reports pandoc-style citation keys, which need a
// bibliography configured to resolve. Advisory only.
type CitationSyntaxProofer struct{}

func (CitationSyntaxProofer) Name() string { return "citation_syntax_proofer" }

func (CitationSyntaxProofer) Examine(a Artifacts) Outcome {
	source := a.Markdown
	ranges := codeRanges([]byte(source))

	for _, loc := range citationKeyRe.FindAllStringIndex(source, -1) {
		if inRanges(ranges, loc[0]) {
			continue
		}
		line := offsetLine(source, loc[0])
		key := source[loc[0]:loc[1]]
		return Hit(Finding{
			Description: fmt.Sprintf("Citation key %s requires a bibliography to resolve", key),
			Snippet: &job.Snippet{
				Kind: job.SnippetDocument,
				Line: line,
				Text: lineAt(source, line),
			},
			Confidence: 0.4,
		})
	}
	return Miss()
}
