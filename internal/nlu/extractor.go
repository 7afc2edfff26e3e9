package nlu

import "context"

// ExtractOptions narrows an extraction run. Context and UseRemoteAPI are
// passed through to the remote NLU API when it is in play; entities found by
// the remote API are not re-matched against local patterns.
type ExtractOptions struct {
	Entities     Filter
	Intents      Filter
	Context      string
	UseRemoteAPI bool
}

// Address is a structured postal address. City, street and building may each
// resolve to several candidates.
type Address struct {
	City      []string
	Street    []string
	Building  []string
	Apartment string
}

// Person is a structured person name.
type Person struct {
	First  string
	Last   string
	Middle string
}

// Extractor is the natural-language-understanding collaborator. The platform
// provides the production implementation; this repository ships a
// pattern-based one for the simulator and tests.
type Extractor interface {
	// Extract pulls entities and intents out of recognized text.
	Extract(ctx context.Context, text string, opts ExtractOptions) (*Result, error)

	// ExtractAddress parses a spoken address.
	ExtractAddress(ctx context.Context, text string) (Address, error)

	// ExtractPerson parses a spoken person name.
	ExtractPerson(ctx context.Context, text string) (Person, error)
}
