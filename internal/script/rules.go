package script

import "callscript/internal/nlu"

// DefaultRules maps common caller phrases onto the entities the support-line
// units route on. The simulator's pattern extractor runs on these; a platform
// NLU deployment replaces them with trained models.
func DefaultRules() []nlu.Rule {
	return []nlu.Rule{
		{Kind: nlu.RuleEntity, Name: "payment_problem", Value: "true", Phrases: []string{"payment", "pay my bill", "charged", "balance"}},
		{Kind: nlu.RuleEntity, Name: "internet_problem", Value: "true", Phrases: []string{"internet", "wifi", "connection is down", "no network"}},
		{Kind: nlu.RuleEntity, Name: "tv_problem", Value: "true", Phrases: []string{"tv", "television", "channels", "set-top box"}},
		{Kind: nlu.RuleEntity, Name: "repeat", Value: "true", Phrases: []string{"repeat", "say that again", "once more"}},
		{Kind: nlu.RuleEntity, Name: "robot", Value: "true", Phrases: []string{"are you a robot", "is this a machine", "real person"}},
		{Kind: nlu.RuleEntity, Name: "operator", Value: "true", Phrases: []string{"operator", "agent", "human please"}},
		{Kind: nlu.RuleEntity, Name: "pay_site", Value: "true", Phrases: []string{"website", "pay online", "site"}},
		{Kind: nlu.RuleEntity, Name: "offices", Value: "true", Phrases: []string{"office", "in person", "branch"}},
		{Kind: nlu.RuleEntity, Name: "promise_pay", Value: "true", Phrases: []string{"promise", "pay later", "defer"}},
		{Kind: nlu.RuleEntity, Name: "no_question", Value: "true", Phrases: []string{"no more questions", "nothing else", "that is all"}},
		{Kind: nlu.RuleEntity, Name: "confirm", Value: "false", Phrases: []string{"no", "did not", "didn't help", "still broken"}},
		{Kind: nlu.RuleEntity, Name: "confirm", Value: "true", Phrases: []string{"yes", "yeah", "it helped", "works now"}},
	}
}
