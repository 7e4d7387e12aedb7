// Package extract pulls component source out of a model completion.
package extract

import (
	"regexp"
	"strings"
)

// fenceLine matches a fence delimiter on its own line, bare or language-tagged:
// ```jsx, ```tsx, ```javascript, ~~~, ...
var fenceLine = regexp.MustCompile("(?m)^[ \\t]*(?:```|~~~)[\\w+.-]*[ \\t]*\\r?$")

// proseLine matches explanatory sentences the model wraps around the code.
var proseLine = regexp.MustCompile(`^[A-Z][^;{}()=<>\[\]]*$`)

// Code returns the best-effort source contained in raw. It never fails: when
// nothing resembling code is found the result is empty.
//
// Fence delimiter lines are removed and everything else is kept in order,
// including text between blocks. Leading and trailing prose lines are then
// trimmed. Code(Code(x)) == Code(x).
func Code(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = fenceLine.ReplaceAllString(text, "")
	return trimProse(text)
}

func trimProse(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	first := 0
	for first < len(lines) && isProseOrBlank(lines[first]) {
		first++
	}
	last := len(lines) - 1
	for last >= first && isProseOrBlank(lines[last]) {
		last--
	}
	if first > last {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[first:last+1], "\n"))
}

func isProseOrBlank(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || proseLine.MatchString(trimmed)
}
