package router

import "sort"

// RuleAction is what a Rule does to a surviving candidate.
type RuleAction uint8

const (
	ActionForbid RuleAction = iota
	ActionPreferWeight
	ActionRequireMinBits
)

// Rule is one entry in an ordered, declarative rule set. Condition is
// evaluated against the request, its extracted features, and a
// candidate; when true, Action fires.
type Rule struct {
	Name      string
	Condition func(Request, Features, Candidate) bool
	Action    RuleAction
	Weight    float64 // ActionPreferWeight
	MinBits   int     // ActionRequireMinBits
}

// MinBitsForContentClass builds a rule requiring that content matching
// class use at least minBits.
func MinBitsForContentClass(class ContentClass, minBits int) Rule {
	return Rule{
		Name: "min_bits_for_" + string(class),
		Condition: func(_ Request, f Features, _ Candidate) bool {
			return f.ContentClass == class
		},
		Action:  ActionRequireMinBits,
		MinBits: minBits,
	}
}

// RuleSet is the ordered rule list applied by the symbolic stage.
type RuleSet struct {
	Rules         []Rule
	MaxIterations int
}

// DefaultRuleSet carries the spec's worked example as a built-in.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Rules:         []Rule{MinBitsForContentClass(ContentClassCode, 8)},
		MaxIterations: 8,
	}
}

// Apply runs rules to a fixed point against candidates, in two passes,
// with a fixed iteration bound and rule order so results stay
// deterministic across runs:
//
//  1. ActionRequireMinBits rules are applied repeatedly, in order, until
//     no candidate's bit width changes or MaxIterations is reached — a
//     bit-width bump from one rule can make a later rule's condition
//     newly true, so this pass alone needs the fixed-point loop.
//  2. ActionForbid and ActionPreferWeight are applied once, in order,
//     against the now-stable bit widths: Forbid drops a candidate
//     entirely, PreferWeight adds to its utility.
//
// Returns the surviving candidates and the sorted, deduplicated names of
// every rule that fired.
func (rs RuleSet) Apply(req Request, feats Features, candidates []Candidate) ([]Candidate, []string) {
	fired := make(map[string]bool)

	widened := append([]Candidate(nil), candidates...)
	for iter := 0; iter < rs.MaxIterations; iter++ {
		changed := false
		for i := range widened {
			for _, r := range rs.Rules {
				if r.Action != ActionRequireMinBits {
					continue
				}
				if !r.Condition(req, feats, widened[i]) {
					continue
				}
				if widened[i].Bits < r.MinBits {
					widened[i].Bits = r.MinBits
					changed = true
				}
				fired[r.Name] = true
			}
		}
		if !changed {
			break
		}
	}

	var survivors []Candidate
	for _, c := range widened {
		forbidden := false
		for _, r := range rs.Rules {
			if !r.Condition(req, feats, c) {
				continue
			}
			switch r.Action {
			case ActionForbid:
				forbidden = true
				fired[r.Name] = true
			case ActionPreferWeight:
				c.Utility += r.Weight
				fired[r.Name] = true
			}
		}
		if !forbidden {
			survivors = append(survivors, c)
		}
	}

	names := make([]string, 0, len(fired))
	for name := range fired {
		names = append(names, name)
	}
	sort.Strings(names)

	return survivors, names
}
