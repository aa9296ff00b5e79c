package sanitize

import (
	"regexp"
	"strings"
)

var newlinePattern = regexp.MustCompile(`[\r\n]+`)

// LogString flattens operator-supplied free text (case references, reasons)
// to a single line before it reaches structured logs
func LogString(s string) string {
	return newlinePattern.ReplaceAllString(strings.TrimSpace(s), " ")
}
