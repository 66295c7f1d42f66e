package repair

import (
	"regexp"
	"strings"
)

// extractFields recovers each expected field independently with a per-field
// pattern tolerant of escaped interior quotes. The result is accepted only
// when at least half the expected fields were recovered; otherwise the caller
// falls through to sentinel fill.
func extractFields(text string, expectedFields []string) (map[string]string, bool) {
	if len(expectedFields) == 0 {
		return nil, false
	}

	recovered := map[string]string{}
	for _, field := range expectedFields {
		pattern := regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(field) + `"\s*:\s*"((?:[^"\\]|\\.)*)`)
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		recovered[field] = strings.TrimSpace(unescape(match[1]))
	}

	if len(recovered)*2 < len(expectedFields) {
		return nil, false
	}

	return recovered, true
}

func unescape(s string) string {
	replacer := strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\\`, `\`)
	return replacer.Replace(s)
}
