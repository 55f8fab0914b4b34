package llm

import "fmt"

// EntityExtractionPrompt generates a strict JSON-only prompt for entity
// extraction. The response contract is a bare JSON array of objects with
// name (required), type (required), and description (optional) fields;
// ParseEntityResponse tolerates surrounding prose and markdown fences.
func EntityExtractionPrompt(content string) string {
	return fmt.Sprintf(`TASK: Extract named entities from the text below.
OUTPUT: ONLY a valid JSON array. NO markdown. NO code blocks. NO commentary.

Each element MUST be an object with these fields:
- "name": the entity's name (required)
- "type": a short category such as person, organization, place, concept, tool (required)
- "description": one sentence of context from the text (optional)

Your response MUST start with [ and end with ]. Return [] when the text
mentions no entities.

TEXT:
%s`, content)
}

// StepPrompt composes a derivation step's configured instruction with the
// input text. Steps receive the original input, never another step's output.
func StepPrompt(instruction, input string) string {
	return fmt.Sprintf("%s\n\nTEXT:\n%s", instruction, input)
}
