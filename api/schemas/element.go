package schemas

import (
	"bytes"
	"fmt"
	"maps"
	"time"
)

// SentinelXPath never matches any node. It marks "no reliable locator could be
// produced".
const SentinelXPath = "//*[99=0]"

// Element is a named UI element identified on a page state.
type Element struct {
	ID             string `json:"id,omitempty"`
	DevName        string `json:"devName"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Value          string `json:"value"`
	IsDynamicValue bool   `json:"isDynamicValue"`
	StateID        string `json:"stateId"`
	Platform       string `json:"platform,omitempty"`

	// StateIDs maps platform to the state id the element lives on for that
	// platform. LegacyStateIDs is the same mapping under a key spelling that
	// older producers emit; both are consulted by ResolveStateID.
	StateIDs       map[string]string `json:"state_ids,omitempty"`
	LegacyStateIDs map[string]string `json:"state_Ids,omitempty"`
}

// ResolveStateID returns the element's target state for a platform. The lookup
// order is StateIDs, then LegacyStateIDs, then the flat StateID.
func (e Element) ResolveStateID(platform string) string {
	if id, ok := LookupPlatform(e.StateIDs, platform); ok && id != "" {
		return id
	}
	if id, ok := LookupPlatform(e.LegacyStateIDs, platform); ok && id != "" {
		return id
	}
	return e.StateID
}

// WithPlatformState returns a copy of e with the platform→state mapping set.
// The receiver's map is never mutated.
func (e Element) WithPlatformState(platform, stateID string) Element {
	out := e
	out.StateIDs = maps.Clone(e.StateIDs)
	if out.StateIDs == nil {
		out.StateIDs = make(map[string]string, 1)
	}
	out.StateIDs[platform] = stateID
	return out
}

// Tristate is a boolean that also records "never evaluated".
type Tristate int

const (
	Unknown Tristate = iota
	True
	False
)

// TristateOf converts a bool.
func TristateOf(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// IsTrue reports whether t is True. Unknown is not true.
func (t Tristate) IsTrue() bool { return t == True }

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes Unknown as null.
func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false and null.
func (t *Tristate) UnmarshalJSON(data []byte) error {
	switch s := string(bytes.TrimSpace(data)); s {
	case "true", "false":
		*t = TristateOf(s == "true")
	case "null", "":
		*t = Unknown
	default:
		return fmt.Errorf("invalid tristate value: %s", data)
	}
	return nil
}

// XPathEvaluationResult is the outcome of evaluating one expression against
// one XML document.
type XPathEvaluationResult struct {
	XPathExpression string   `json:"xpathExpression"`
	NumberOfMatches int      `json:"numberOfMatches"`
	MatchingNodes   []string `json:"matchingNodes,omitempty"`
	IsValid         bool     `json:"isValid"`
	Success         Tristate `json:"success"`
	Error           string   `json:"error,omitempty"`
}

// IsUnique reports whether the expression was evaluated and matched exactly
// one node.
func (r XPathEvaluationResult) IsUnique() bool {
	return r.Success.IsTrue() && r.NumberOfMatches == 1
}

// NeedsRepair reports whether a locator fails to match exactly one node or is
// the sentinel.
func (r XPathEvaluationResult) NeedsRepair() bool {
	return !r.Success.IsTrue() ||
		r.NumberOfMatches == 0 ||
		r.NumberOfMatches > 1 ||
		r.XPathExpression == SentinelXPath
}

// Confidence ranks a repair candidate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// RepairCandidate is one ranked proposal for a failing locator. Priority 0 is
// the primary, 1 and 2 are alternatives.
type RepairCandidate struct {
	Priority    int        `json:"priority"`
	XPath       string     `json:"xpath"`
	Confidence  Confidence `json:"confidence"`
	Description string     `json:"description"`
	Rationale   string     `json:"rationale,omitempty"`

	// Valid and Evaluation are filled in by validation, never by the model.
	Valid      bool                   `json:"valid"`
	Evaluation *XPathEvaluationResult `json:"evaluation,omitempty"`
}

// ElementWithLocator is an element plus its evaluated primary locator.
type ElementWithLocator struct {
	Element
	XPath                   XPathEvaluationResult `json:"xpath"`
	OriginalXPathExpression string                `json:"originalXpathExpression,omitempty"`
	AlternativeXPaths       []RepairCandidate     `json:"alternativeXpaths,omitempty"`
}

// ValidationResult is produced once per (element set, platform) check against
// a page.
type ValidationResult struct {
	Valid             bool      `json:"valid"`
	Platform          string    `json:"platform"`
	MissingElements   []Element `json:"missingElements"`
	DuplicateDevNames []string  `json:"duplicateDevNames"`
	Timestamp         time.Time `json:"timestamp"`
}
