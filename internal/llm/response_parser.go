package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityCandidate is a single entity parsed from an extraction response,
// before batch deduplication and identity assignment.
type EntityCandidate struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// extractJSONArray extracts the first balanced JSON array from a string that
// may contain extra text. LLMs add explanations and markdown fences around
// the JSON despite instructions, so the parser cannot assume a clean body.
func extractJSONArray(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "[")
	if start == -1 {
		return text // no array found, let the parser fail
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text // unbalanced, let the parser fail
}

// ParseEntityResponse parses an entity-extraction response into candidates.
// Elements without a name or type are dropped rather than failing the batch.
// It returns an error only when no parseable JSON array is present; callers
// treat that as zero entities extracted, never as a fatal failure.
func ParseEntityResponse(raw string) ([]EntityCandidate, error) {
	clean := extractJSONArray(raw)

	var parsed []EntityCandidate
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		// Some models wrap the array in an object despite instructions.
		var wrapped struct {
			Entities []EntityCandidate `json:"entities"`
		}
		if err2 := json.Unmarshal([]byte(clean), &wrapped); err2 != nil || wrapped.Entities == nil {
			return nil, fmt.Errorf("failed to parse entity JSON: %w", err)
		}
		parsed = wrapped.Entities
	}

	valid := make([]EntityCandidate, 0, len(parsed))
	for _, cand := range parsed {
		cand.Name = strings.TrimSpace(cand.Name)
		cand.Type = strings.TrimSpace(cand.Type)
		if cand.Name == "" || cand.Type == "" {
			continue
		}
		valid = append(valid, cand)
	}

	return valid, nil
}
