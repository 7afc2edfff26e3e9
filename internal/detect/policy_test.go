package detect

import "testing"

func TestUnconfiguredPolicyNeverTrips(t *testing.T) {
	p := Policy{}
	if p.Configured() {
		t.Fatalf("zero policy reports configured")
	}
	if p.Evaluate("a very long utterance indeed", map[string]string{"confirm": "true"}, map[string]string{"stop": "1"}) {
		t.Fatalf("zero policy tripped")
	}
}

func TestByEntitiesTripsOnPresence(t *testing.T) {
	p := ByEntities("confirm", "operator")
	if p.Evaluate("", nil, nil) {
		t.Fatalf("tripped with no entities")
	}
	if !p.Evaluate("", map[string]string{"operator": "true"}, nil) {
		t.Fatalf("did not trip on operator")
	}
	// Presence alone counts; the value is routing's business.
	if !p.Evaluate("", map[string]string{"confirm": "false"}, nil) {
		t.Fatalf("did not trip on confirm=false")
	}
}

func TestByIntents(t *testing.T) {
	p := ByIntents("interrupt")
	if p.Evaluate("", map[string]string{"interrupt": "true"}, nil) {
		t.Fatalf("entity matched an intent condition")
	}
	if !p.Evaluate("", nil, map[string]string{"interrupt": "true"}) {
		t.Fatalf("did not trip on intent")
	}
}

func TestByCharCountUsesRunes(t *testing.T) {
	p := ByCharCount(5)
	if p.Evaluate("abcd", nil, nil) {
		t.Fatalf("tripped below the threshold")
	}
	if !p.Evaluate("abcde", nil, nil) {
		t.Fatalf("did not trip at the threshold")
	}
	// Six runes, ten bytes.
	if !p.Evaluate("да-да!", nil, nil) {
		t.Fatalf("byte length leaked into the char count")
	}
}

func TestAndRequiresEveryConfiguredCondition(t *testing.T) {
	p := Policy{Entities: []string{"confirm"}, CharCount: 3, Operator: And}
	if p.Evaluate("hello there", nil, nil) {
		t.Fatalf("tripped with entity condition unmet")
	}
	if p.Evaluate("hi", map[string]string{"confirm": "true"}, nil) {
		t.Fatalf("tripped with char condition unmet")
	}
	if !p.Evaluate("yes", map[string]string{"confirm": "true"}, nil) {
		t.Fatalf("did not trip with both conditions met")
	}
}

func TestOrTripsOnAnyConfiguredCondition(t *testing.T) {
	p := Policy{Entities: []string{"confirm"}, CharCount: 100, Operator: Or}
	if !p.Evaluate("no", map[string]string{"confirm": "false"}, nil) {
		t.Fatalf("did not trip on the entity leg")
	}
	if p.Evaluate("no", nil, nil) {
		t.Fatalf("tripped with no condition met")
	}
}

func TestUnconfiguredConditionsExcludedFromAnd(t *testing.T) {
	// Intents unset: AND runs over entities only.
	p := Policy{Entities: []string{"confirm"}, Operator: And}
	if !p.Evaluate("", map[string]string{"confirm": "true"}, nil) {
		t.Fatalf("unset intent condition vetoed the trip")
	}
}

func TestDetectorForm(t *testing.T) {
	d := ByCharCount(2).Detector()
	if !d("ok!", nil, nil) {
		t.Fatalf("detector disagrees with policy")
	}
}
