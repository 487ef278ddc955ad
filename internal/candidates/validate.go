package candidates

import (
	"time"

	"github.com/xkilldash9x/locsmith/api/schemas"
)

// now is swapped in tests.
var now = time.Now

// ValidateAgainstPage checks an element set for one target platform: every
// devName must be unique and every resolved state id must exist on the page.
// An element whose state id resolves to "" is not reported as missing.
func ValidateAgainstPage(elements []schemas.Element, page schemas.Page, platform string) schemas.ValidationResult {
	stateIDs := page.StateIDs()
	seen := make(map[string]bool, len(elements))
	result := schemas.ValidationResult{
		Platform:          platform,
		MissingElements:   []schemas.Element{},
		DuplicateDevNames: []string{},
		Timestamp:         now(),
	}

	for _, el := range elements {
		if reported, dup := seen[el.DevName]; dup {
			if !reported {
				seen[el.DevName] = true
				result.DuplicateDevNames = append(result.DuplicateDevNames, el.DevName)
			}
		} else {
			seen[el.DevName] = false
		}

		target := el.ResolveStateID(platform)
		if target == "" {
			continue
		}
		if _, ok := stateIDs[target]; !ok {
			result.MissingElements = append(result.MissingElements, el)
		}
	}

	result.Valid = len(result.MissingElements) == 0 && len(result.DuplicateDevNames) == 0
	return result
}
