package pipeline

import "strings"

// passiveToActive maps a passive-voice relationship type emitted by the LLM
// to its canonical active form plus a flag indicating source/target must be
// swapped, e.g. "Buyer SUPPLIED_BY Supplier" becomes "Supplier SUPPLIES
// Buyer" (spec §4.4 step 10).
var passiveToActive = map[string]string{
	"SUPPLIED_BY": "SUPPLIES",
	"OWNED_BY":    "OWNS",
	"ACQUIRED_BY": "ACQUIRES",
	"LED_BY":      "LEADS",
	"BACKED_BY":   "BACKS",
}

// canonicalize normalizes a relationship triple to its canonical direction:
// Supplier → Buyer style, active voice. Unrecognized types pass through
// unchanged.
func canonicalize(source, target, relType string) (string, string, string) {
	relType = strings.ToUpper(strings.TrimSpace(relType))
	if active, ok := passiveToActive[relType]; ok {
		return target, source, active
	}
	return source, target, relType
}

// relationshipConfidence returns the initial confidence for a newly detected
// relationship based on the article's logic_check verdict (spec §4.4 step 10).
func relationshipConfidence(logicCheckDataBacked bool) float64 {
	if logicCheckDataBacked {
		return 0.8
	}
	return 0.4
}
