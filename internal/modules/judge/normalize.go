package judge

import "regexp"

var bracketed = regexp.MustCompile(`\[[^\[\]]*\]`)

var (
	afterOpen   = regexp.MustCompile(`\[\s+`)
	beforeClose = regexp.MustCompile(`\s+\]`)
	aroundComma = regexp.MustCompile(`\s*,\s*`)
)

// NormalizeOutput collapses whitespace inside bracketed, array-like output
// so textual renderings like "[1, 2,3]" and "[1,2,3]" compare equal.
// Whitespace outside brackets is left alone. Idempotent.
func NormalizeOutput(s string) string {
	return bracketed.ReplaceAllStringFunc(s, func(segment string) string {
		segment = afterOpen.ReplaceAllString(segment, "[")
		segment = beforeClose.ReplaceAllString(segment, "]")
		segment = aroundComma.ReplaceAllString(segment, ",")
		return segment
	})
}
