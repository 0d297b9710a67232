package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParse indicates the assistant reply contained no parsable JSON
var ErrParse = errors.New("can't parse assistant response")

var jsonFenceRe = regexp.MustCompile("(?s)```json\\s*\n(.*?)\n\\s*```")

// CleanAndParse extracts the JSON object from the assistant reply.
// The reply may be plain JSON, JSON wrapped in a markdown fence or
// JSON with surrounding prose
func CleanAndParse(text string) (map[string]any, error) {
	var res map[string]any
	if err := json.Unmarshal([]byte(text), &res); err == nil {
		return res, nil
	}
	if m := jsonFenceRe.FindStringSubmatch(text); len(m) > 1 {
		if err := json.Unmarshal([]byte(m[1]), &res); err == nil {
			return res, nil
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &res); err == nil {
			return res, nil
		}
	}
	return nil, fmt.Errorf("%w: no JSON object in %d chars", ErrParse, len(text))
}
