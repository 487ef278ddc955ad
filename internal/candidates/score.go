package candidates

import "github.com/xkilldash9x/locsmith/api/schemas"

const (
	missingPenalty   = 2
	duplicatePenalty = 3
)

// Score rates one identification run. Duplicates weigh more than missing
// elements because they corrupt every later devName-keyed step.
func Score(elements []schemas.Element, v schemas.ValidationResult) int {
	return len(elements) -
		missingPenalty*len(v.MissingElements) -
		duplicatePenalty*len(v.DuplicateDevNames)
}

// Best returns the index of the highest score. Equal scores never displace the
// current best, so the earliest of tied runs wins. It returns -1 for an empty
// slice.
func Best[S int | float64](scores []S) int {
	best := -1
	for i, s := range scores {
		if best == -1 || s > scores[best] {
			best = i
		}
	}
	return best
}
