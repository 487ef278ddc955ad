package orchestrator

import (
	"cmp"
	"slices"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/xpatheval"
)

// maxCandidates is the number of ranked candidates a repaired element carries.
const maxCandidates = 3

// Placeholder reasons.
const (
	reasonAPIError        = "API error"
	reasonParseError      = "parse error"
	reasonProcessingError = "processing error"
	reasonMissing         = "missing from response"
	reasonNoCandidates    = "no candidates returned"
)

// placeholderCandidates builds the sentinel triple used when no usable answer
// exists for an element.
func placeholderCandidates(reason string) []schemas.RepairCandidate {
	out := make([]schemas.RepairCandidate, maxCandidates)
	for i := range out {
		out[i] = schemas.RepairCandidate{
			Priority:    i,
			XPath:       schemas.SentinelXPath,
			Confidence:  schemas.ConfidenceLow,
			Description: "Repair failed: " + reason,
		}
	}
	return out
}

// normalizeCandidates returns a new slice of one to three candidates, stably
// sorted by priority. Priorities are renumbered 0..n-1 only when they collide,
// fall outside 0..2 or leave no primary. Validation state is cleared.
func normalizeCandidates(in []schemas.RepairCandidate) []schemas.RepairCandidate {
	if len(in) == 0 {
		return placeholderCandidates(reasonNoCandidates)
	}

	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b schemas.RepairCandidate) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	renumber := needsRenumbering(out)
	for i := range out {
		if renumber {
			out[i].Priority = i
		}
		out[i].Valid = false
		out[i].Evaluation = nil
		if out[i].Confidence == "" {
			out[i].Confidence = schemas.ConfidenceLow
		}
	}
	return out
}

// needsRenumbering expects candidates sorted by priority.
func needsRenumbering(sorted []schemas.RepairCandidate) bool {
	if sorted[0].Priority != 0 {
		return true
	}
	for i, c := range sorted {
		if c.Priority < 0 || c.Priority >= maxCandidates {
			return true
		}
		if i > 0 && c.Priority == sorted[i-1].Priority {
			return true
		}
	}
	return false
}

// validateFixedXPaths evaluates normalized candidates against xml and returns
// a new slice in priority order. A uniquely matching primary is kept. Otherwise
// the first uniquely matching alternative swaps places with the primary. When
// nothing matches uniquely the primary becomes the sentinel.
func validateFixedXPaths(in []schemas.RepairCandidate, xml string, e *xpatheval.Evaluator) []schemas.RepairCandidate {
	out := normalizeCandidates(in)
	for i := range out {
		res := e.Evaluate(xml, out[i].XPath)
		out[i].Evaluation = &res
		out[i].Valid = res.IsUnique() && out[i].XPath != schemas.SentinelXPath
	}

	if out[0].Valid {
		return out
	}

	for i := 1; i < len(out); i++ {
		if out[i].Valid {
			return swapPrimary(out, i)
		}
	}

	return withSentinelPrimary(out, e, xml)
}

// swapPrimary promotes candidate i to priority 0 and demotes the former
// primary into the vacated priority slot.
func swapPrimary(in []schemas.RepairCandidate, i int) []schemas.RepairCandidate {
	out := slices.Clone(in)
	promoted, demoted := in[i], in[0]
	promoted.Priority, demoted.Priority = 0, in[i].Priority
	promoted.Valid = true
	out[0], out[i] = promoted, demoted
	return out
}

func withSentinelPrimary(in []schemas.RepairCandidate, e *xpatheval.Evaluator, xml string) []schemas.RepairCandidate {
	out := slices.Clone(in)
	res := e.Evaluate(xml, schemas.SentinelXPath)
	out[0] = schemas.RepairCandidate{
		Priority:    0,
		XPath:       schemas.SentinelXPath,
		Confidence:  schemas.ConfidenceLow,
		Description: "No candidate matched exactly one node",
		Rationale:   in[0].Rationale,
		Valid:       false,
		Evaluation:  &res,
	}
	return out
}

// acceptedPrimary reports whether candidates carry a usable priority-0 locator.
func acceptedPrimary(cands []schemas.RepairCandidate) (schemas.RepairCandidate, bool) {
	if len(cands) == 0 {
		return schemas.RepairCandidate{}, false
	}
	p := cands[0]
	return p, p.Priority == 0 && p.Valid && p.XPath != schemas.SentinelXPath && p.Evaluation != nil
}

// alternatives returns the valid non-primary candidates.
func alternatives(cands []schemas.RepairCandidate) []schemas.RepairCandidate {
	var out []schemas.RepairCandidate
	for _, c := range cands {
		if c.Priority != 0 && c.Valid {
			out = append(out, c)
		}
	}
	return out
}
