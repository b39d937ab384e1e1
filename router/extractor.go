package router

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// codePattern and numericPattern are deliberately simple surface
// heuristics, not a parser — the symbolic stage is the layer that
// actually gates precision on content class, this just has to be a
// reasonable detector.
var (
	codePattern    = regexp2.MustCompile(`(?i)\b(select\s+\*\s+from|function\s+\w+\s*\(|def\s+\w+\s*\(|\{[^{}]*;\s*\})`, 0)
	numericPattern = regexp2.MustCompile(`\d+(\.\d+)?\s*(e[+-]?\d+)?`, 0)
)

// FeatureExtractor implements the neural stage's request-feature
// extraction.
type FeatureExtractor struct{}

// Extract computes a Features vector for req. salience is the mean
// salience score of the prompt's tokens, sourced from C1.
func (FeatureExtractor) Extract(req Request, salience float32) Features {
	return Features{
		Length:       len(req.Prompt),
		Language:     detectLanguage(req),
		ContentClass: detectContentClass(req.Prompt),
		LatencyClass: req.LatencyBudget,
		Salience:     salience,
	}
}

func detectLanguage(req Request) string {
	if req.Language != "" {
		return req.Language
	}
	return "en"
}

func detectContentClass(prompt string) ContentClass {
	if matched(codePattern, prompt) {
		return ContentClassCode
	}
	if numericDensity(prompt) > 0.3 {
		return ContentClassNumeric
	}
	return ContentClassText
}

func matched(pattern *regexp2.Regexp, s string) bool {
	ok, err := pattern.MatchString(s)
	return err == nil && ok
}

func numericDensity(prompt string) float64 {
	if prompt == "" {
		return 0
	}
	matches := 0
	m, _ := numericPattern.FindStringMatch(prompt)
	for m != nil {
		matches++
		m, _ = numericPattern.FindNextMatch(m)
	}
	words := len(strings.Fields(prompt))
	if words == 0 {
		return 0
	}
	return float64(matches) / float64(words)
}
