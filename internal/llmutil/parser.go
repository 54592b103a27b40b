// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

var (
	// Regex definitions use \x60 for backticks because Go raw strings cannot contain them.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array if the response is wrapped in markdown.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")

	// listMarkerRegex matches "1.", "2)", "-", "*" and "Step 3:" prefixes.
	listMarkerRegex = regexp.MustCompile(`(?i)^\s*(?:step\s+\d+\s*[:.)-]|\d+\s*[.)]|[-*•])\s*`)
)

// ParseJSONResponse parses a model response into T. It tolerates the usual
// formatting noise: markdown fences and conversational text around the JSON.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	jsonStringToParse := ExtractJSON(response)

	var result T
	if err := json.Unmarshal([]byte(jsonStringToParse), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, Truncate(jsonStringToParse, 500))
	}
	return &result, nil
}

// ExtractJSON returns the most likely JSON object or array in response, or
// the trimmed response itself when no structure can be located.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	if strings.HasPrefix(response, "```") {
		var matches []string
		// An array whose elements contain braces must not be cut down to
		// the first object, so prefer whichever bracket opens first.
		arrayFirst := isArray && (!isObject || strings.Index(response, "[") < strings.Index(response, "{"))
		if arrayFirst {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return matches[1]
		}
		return response
	}

	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	// Find the structure within conversational text.
	first, last := -1, -1
	objStart := strings.Index(response, "{")
	arrStart := strings.Index(response, "[")
	tryObject := func() {
		lb := strings.LastIndex(response, "}")
		if objStart != -1 && lb > objStart {
			first, last = objStart, lb+1
		}
	}
	tryArray := func() {
		lb := strings.LastIndex(response, "]")
		if arrStart != -1 && lb > arrStart {
			first, last = arrStart, lb+1
		}
	}
	if arrStart != -1 && (objStart == -1 || arrStart < objStart) {
		tryArray()
		if first == -1 {
			tryObject()
		}
	} else {
		tryObject()
		if first == -1 {
			tryArray()
		}
	}
	if first != -1 {
		return response[first:last]
	}
	return response
}

// ListLines splits free text into items, one per non-empty line, with list
// numbering and bullets removed. Markdown fence lines are skipped.
func ListLines(text string) []string {
	var items []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.TrimSpace(listMarkerRegex.ReplaceAllString(line, ""))
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

// Truncate shortens s to at most maxLen bytes, appending an ellipsis when cut.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
