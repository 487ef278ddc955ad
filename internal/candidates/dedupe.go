// Package candidates holds the deterministic pieces that reconcile stochastic
// generation runs: duplicate removal, run scoring, best-of-N selection and
// validation of elements against a page.
package candidates

import "github.com/xkilldash9x/locsmith/api/schemas"

// DedupeReport describes what RemoveDuplicates dropped.
type DedupeReport struct {
	// DuplicatedKeys lists each devName that occurred more than once, in order
	// of its first duplicate.
	DuplicatedKeys []string
	Removed        int
}

// RemoveDuplicates keeps the first element for each devName, preserving input
// order, and drops every later occurrence. The input is not modified.
func RemoveDuplicates(elements []schemas.Element) ([]schemas.Element, DedupeReport) {
	var report DedupeReport
	seen := make(map[string]bool, len(elements))
	out := make([]schemas.Element, 0, len(elements))

	for _, el := range elements {
		reported, dup := seen[el.DevName]
		if !dup {
			seen[el.DevName] = false
			out = append(out, el)
			continue
		}
		report.Removed++
		if !reported {
			seen[el.DevName] = true
			report.DuplicatedKeys = append(report.DuplicatedKeys, el.DevName)
		}
	}
	return out, report
}
