package nlu

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RuleKind says whether a pattern rule produces an entity or an intent.
type RuleKind int

const (
	RuleEntity RuleKind = iota
	RuleIntent
)

// Rule binds a set of trigger phrases to one entity or intent value. Phrases
// are matched case-insensitively and only on word boundaries, so "no" does
// not fire inside "now" or "know".
type Rule struct {
	Kind    RuleKind
	Name    string
	Value   string
	Phrases []string
}

// PatternExtractor is the in-process reference Extractor. It drives the
// simulator and the test suite; production deployments use the platform NLU
// service instead.
type PatternExtractor struct {
	rules []Rule
}

func NewPatternExtractor(rules []Rule) *PatternExtractor {
	return &PatternExtractor{rules: rules}
}

func (p *PatternExtractor) Extract(ctx context.Context, text string, opts ExtractOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := NewResult()
	out.SetUtterance(text)
	lower := strings.ToLower(text)
	for _, rule := range p.rules {
		switch rule.Kind {
		case RuleEntity:
			if !opts.Entities.Allows(rule.Name) {
				continue
			}
		case RuleIntent:
			if !opts.Intents.Allows(rule.Name) {
				continue
			}
		}
		if !matchesAny(lower, rule.Phrases) {
			continue
		}
		switch rule.Kind {
		case RuleEntity:
			out.MergeEntities(map[string]string{rule.Name: rule.Value})
		case RuleIntent:
			out.MergeIntents(map[string]string{rule.Name: rule.Value})
		}
	}
	return out, nil
}

func (p *PatternExtractor) ExtractAddress(ctx context.Context, text string) (Address, error) {
	if err := ctx.Err(); err != nil {
		return Address{}, err
	}
	addr := Address{}
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch {
		case addr.City == nil:
			addr.City = []string{part}
		case addr.Street == nil:
			addr.Street = []string{part}
		case addr.Building == nil:
			addr.Building = []string{part}
		case addr.Apartment == "":
			addr.Apartment = part
		}
	}
	return addr, nil
}

func (p *PatternExtractor) ExtractPerson(ctx context.Context, text string) (Person, error) {
	if err := ctx.Err(); err != nil {
		return Person{}, err
	}
	fields := strings.Fields(text)
	person := Person{}
	if len(fields) > 0 {
		person.First = fields[0]
	}
	if len(fields) > 1 {
		person.Last = fields[1]
	}
	if len(fields) > 2 {
		person.Middle = fields[2]
	}
	return person, nil
}

func matchesAny(lower string, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if containsPhrase(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// containsPhrase reports a substring match whose ends both fall on word
// boundaries.
func containsPhrase(text, phrase string) bool {
	for from := 0; ; {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return false
		}
		i += from
		if boundaryBefore(text, i) && boundaryAfter(text, i+len(phrase)) {
			return true
		}
		from = i + 1
	}
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
