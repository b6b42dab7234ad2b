package review

import (
	"regexp"
	"strconv"
	"strings"
)

// Interpreter extracts a structured Verdict from free-form review output.
// The parse is heuristic by nature, so it sits behind this interface where
// it can be swapped or tested in isolation.
type Interpreter interface {
	Interpret(output string) Verdict
}

// defaultScore is assumed when review output carries no parseable score.
const defaultScore = 0.8

var (
	scoreRe = regexp.MustCompile(`[Qq]uality [Ss]core:?\s*([\d.]+)`)
	todoRe  = regexp.MustCompile(`(?i)(?:TODO|FIXME|XXX)(?:\([^)]*\))?:?\s*(.+)`)
	gateRe  = regexp.MustCompile(`(?:FAILED|FAIL|❌)(?:\s*:)?\s*(.+)`)
	recRe   = regexp.MustCompile(`(?:RECOMMENDATION|RECOMMEND|➤)(?:\s*:)?\s*(.+)`)

	// recHeadingRe locates a recommendations section for the bullet-list
	// fallback when no explicit RECOMMENDATION lines exist.
	recHeadingRe = regexp.MustCompile(`[Rr]ecommendations?:?`)
	bulletRe     = regexp.MustCompile(`^[-*•]\s*(.+)`)
)

// patternInterpreter derives verdicts from marker lines in review output:
// a "Quality Score:" value, TODO/FIXME/XXX items, FAILED/FAIL gate lines,
// and RECOMMENDATION lines.
type patternInterpreter struct{}

// NewInterpreter returns the default pattern-based Interpreter.
func NewInterpreter() Interpreter {
	return patternInterpreter{}
}

func (patternInterpreter) Interpret(output string) Verdict {
	verdict := Verdict{QualityScore: defaultScore}

	if m := scoreRe.FindStringSubmatch(output); m != nil {
		if score, err := strconv.ParseFloat(m[1], 64); err == nil {
			verdict.QualityScore = score
		}
	}

	verdict.Todos = captures(todoRe, output)
	verdict.FailedGates = captures(gateRe, output)

	verdict.Recommendations = captures(recRe, output)
	if len(verdict.Recommendations) == 0 {
		verdict.Recommendations = bulletRecommendations(output)
	}

	return verdict
}

// captures returns the trimmed first capture group of every match.
func captures(re *regexp.Regexp, output string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(output, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// bulletRecommendations collects the bullet list directly under a
// recommendations heading. The list ends at the first blank line after a
// bullet or at the first non-bullet line.
func bulletRecommendations(output string) []string {
	loc := recHeadingRe.FindStringIndex(output)
	if loc == nil {
		return nil
	}

	var recs []string
	for _, line := range strings.Split(output[loc[1]:], "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(recs) > 0 {
				break
			}
			continue
		}
		m := bulletRe.FindStringSubmatch(trimmed)
		if m == nil {
			break
		}
		recs = append(recs, strings.TrimSpace(m[1]))
	}
	return recs
}
