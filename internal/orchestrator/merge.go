package orchestrator

import (
	"slices"

	"github.com/xkilldash9x/locsmith/api/schemas"
)

// mergeKey identifies an element across repair groups: id (or devName when
// the id is empty), state and platform.
func mergeKey(el schemas.Element, stateID, platform string) string {
	identity := el.ID
	if identity == "" {
		identity = el.DevName
	}
	return identity + "_" + stateID + "_" + platform
}

// mergeFixes returns a new collection where every failing element with an
// accepted fix carries the repaired locator. Uniquely matching elements and
// elements without an accepted fix are copied unchanged.
func mergeFixes(elements []schemas.ElementWithLocator, fixes map[string][]schemas.RepairCandidate) ([]schemas.ElementWithLocator, int) {
	out := make([]schemas.ElementWithLocator, len(elements))
	applied := 0
	for i, el := range elements {
		out[i] = el
		if !el.XPath.NeedsRepair() {
			continue
		}
		stateID, platform := elementScope(el.Element)
		cands, ok := fixes[mergeKey(el.Element, stateID, platform)]
		if !ok {
			continue
		}
		primary, ok := acceptedPrimary(cands)
		if !ok {
			continue
		}
		out[i] = applyFix(el, primary, alternatives(cands))
		applied++
	}
	return out, applied
}

// applyFix builds the repaired element. The first original expression is
// preserved across repeated repairs.
func applyFix(el schemas.ElementWithLocator, primary schemas.RepairCandidate, alts []schemas.RepairCandidate) schemas.ElementWithLocator {
	fixed := el
	if fixed.OriginalXPathExpression == "" {
		fixed.OriginalXPathExpression = el.XPath.XPathExpression
	}
	fixed.XPath = *primary.Evaluation
	fixed.AlternativeXPaths = slices.Clone(alts)
	return fixed
}
