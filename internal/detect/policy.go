// Package detect decides when live speech should interrupt audio playback
// (barge-in). A Policy describes which entities, intents or utterance length
// should trip; the evaluator runs against the accumulating recognition state
// on every update.
package detect

// Operator combines the configured sub-conditions of a Policy.
type Operator int

const (
	// And trips only when every configured sub-condition holds.
	And Operator = iota
	// Or trips when any configured sub-condition holds.
	Or
)

func (o Operator) String() string {
	switch o {
	case And:
		return "AND"
	case Or:
		return "OR"
	default:
		return "unknown"
	}
}

// Policy configures barge-in detection. A sub-condition left at its zero
// value is unconfigured and excluded from the combinator; a policy with no
// configured sub-condition never trips. CharCount must be positive to count
// as configured.
type Policy struct {
	Entities  []string
	Intents   []string
	CharCount int
	Operator  Operator
}

// ByEntities is the shorthand for a policy tripping on entity presence.
func ByEntities(names ...string) Policy {
	return Policy{Entities: names, Operator: And}
}

// ByIntents is the shorthand for a policy tripping on intent presence.
func ByIntents(names ...string) Policy {
	return Policy{Intents: names, Operator: And}
}

// ByCharCount is the shorthand for a policy tripping once the recognized
// utterance reaches n characters.
func ByCharCount(n int) Policy {
	return Policy{CharCount: n, Operator: And}
}

// Configured reports whether at least one sub-condition is set. An
// unconfigured policy acts as "no barge-in".
func (p Policy) Configured() bool {
	return len(p.Entities) > 0 || len(p.Intents) > 0 || p.CharCount > 0
}

// Evaluate runs the policy against the current recognition state. Entity and
// intent sub-conditions are satisfied by presence alone, whatever the value;
// the routing layer is where values matter.
func (p Policy) Evaluate(utterance string, entities, intents map[string]string) bool {
	if !p.Configured() {
		return false
	}

	checks := make([]bool, 0, 3)
	if len(p.Entities) > 0 {
		checks = append(checks, anyPresent(p.Entities, entities))
	}
	if len(p.Intents) > 0 {
		checks = append(checks, anyPresent(p.Intents, intents))
	}
	if p.CharCount > 0 {
		checks = append(checks, len([]rune(utterance)) >= p.CharCount)
	}

	if p.Operator == Or {
		for _, ok := range checks {
			if ok {
				return true
			}
		}
		return false
	}
	for _, ok := range checks {
		if !ok {
			return false
		}
	}
	return true
}

// Detector is a pluggable barge-in predicate. The default is Policy.Evaluate;
// callers may install their own with the same signature.
type Detector func(utterance string, entities, intents map[string]string) bool

// Detector returns the policy's own evaluator in Detector form.
func (p Policy) Detector() Detector {
	return p.Evaluate
}

func anyPresent(names []string, found map[string]string) bool {
	for _, name := range names {
		if _, ok := found[name]; ok {
			return true
		}
	}
	return false
}
