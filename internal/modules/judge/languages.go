package judge

import (
	"strconv"
	"strings"
)

// Sandbox language ids, keyed by the names clients submit with.
var languageIDs = map[string]int{
	"javascript": 102, // Node.js 22
	"js":         102,
	"typescript": 101,
	"python":     109, // Python 3.13
	"cpp":        105, // GCC 14
	"c++":        105,
	"go":         107, // Go 1.23
	"php":        98,
	"java":       91,
	"csharp":     51,
	"c#":         51,
	"rust":       108,
	"ruby":       72,
}

const defaultLanguageID = 102

// LanguageID maps a client-facing language name to the sandbox's language
// id. Unknown languages fall back to javascript.
func LanguageID(language string) int {
	if id, ok := languageIDs[strings.ToLower(language)]; ok {
		return id
	}
	return defaultLanguageID
}

// TemplateKey is the code-template map key for a language.
func TemplateKey(language string) string {
	return strconv.Itoa(LanguageID(language))
}
