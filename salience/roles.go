package salience

import "strings"

// rolePrior is a small static rule table: a fixed prior per role,
// independent of any particular model or corpus.
var rolePrior = map[RoleTag]float64{
	RoleContent:   0.8,
	RoleSyntactic: 0.3,
	RolePosition:  0.1,
	RoleFiller:    0.05,
}

var syntacticRunes = ".,;:!?()[]{}\"'`-"

// classifyRole assigns a RoleTag to a token's surface text when the
// caller hasn't already supplied one. The heuristic is intentionally
// crude: C1's contract is to weight a role prior, not to parse grammar.
func classifyRole(text string) RoleTag {
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		return RoleFiller
	case strings.Trim(trimmed, syntacticRunes) == "":
		return RoleSyntactic
	case isStopword(trimmed):
		return RoleFiller
	default:
		return RoleContent
	}
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "to": {}, "in": {}, "is": {},
	"and": {}, "or": {}, "it": {}, "on": {}, "for": {}, "with": {}, "as": {},
}

func isStopword(text string) bool {
	_, ok := stopwords[strings.ToLower(text)]
	return ok
}

func resolveRole(t Token) RoleTag {
	if t.Role != nil {
		return *t.Role
	}
	return classifyRole(t.Text)
}
