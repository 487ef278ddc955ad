package llmclient

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/locsmith/api/schemas"
)

// promptJSON leaves markup unescaped so page sources stay readable to the model.
var promptJSON = jsoniter.Config{EscapeHTML: false, SortMapKeys: true}.Froze()

// PromptBuilder turns a task and its payload into system and user prompts.
type PromptBuilder interface {
	Build(task schemas.Task, gc schemas.GenerationContext) (system, user string, err error)
}

// DefaultPromptBuilder states the task and the expected JSON shape, then
// appends the payload as JSON.
type DefaultPromptBuilder struct{}

const basePersona = "You are a mobile test automation engineer working with Appium page sources. " +
	"Answer with JSON only."

var taskInstructions = map[schemas.Task]string{
	schemas.TaskIdentifyElements: "Identify every interactive or asserted UI element visible in the screenshots. " +
		"Return a JSON array of objects with fields devName (unique camelCase identifier), name, description, " +
		"value, isDynamicValue and stateId. stateId must be one of the provided state ids.",
	schemas.TaskMapStateID: "For the target platform, map each element devName to the id of the state in which it appears. " +
		"Return a JSON object whose keys are devNames and whose values are state ids from the provided list.",
	schemas.TaskGenerateXPaths: "Write an XPath 1.0 locator for each element against the page source. Each locator must match exactly one node. " +
		"Return a JSON array of objects with fields devName and xpathLocator.",
	schemas.TaskRepairXPaths: "Each locator below no longer matches exactly one node in the page source. For every element propose " +
		"up to three ranked replacement XPath 1.0 locators. Return a JSON array of objects with fields id, devName, stateId, " +
		"platform and candidates, where candidates is an array of {priority (0, 1 or 2; 0 is preferred), xpath, " +
		"confidence (High, Medium or Low), description, rationale}.",
}

// Build implements PromptBuilder.
func (DefaultPromptBuilder) Build(task schemas.Task, gc schemas.GenerationContext) (string, string, error) {
	instruction, ok := taskInstructions[task]
	if !ok {
		return "", "", fmt.Errorf("no prompt defined for task %q", task)
	}

	payload, err := promptJSON.MarshalIndent(gc, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal generation context: %w", err)
	}

	var user strings.Builder
	user.WriteString(instruction)
	fmt.Fprintf(&user, "\n\nPlatform: %s\n", gc.Platform)
	if gc.Attempt > 0 {
		fmt.Fprintf(&user, "Attempt: %d\n", gc.Attempt+1)
	}
	user.WriteString("\nInput:\n")
	user.Write(payload)

	return basePersona, user.String(), nil
}
