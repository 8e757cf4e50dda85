package cache

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// SystemPromptPrefixLen is how many runes of the system prompt go into a signature.
const SystemPromptPrefixLen = 50

// BuildSignature identifies the generation configuration an answer was
// produced under. Answers are only reused between identical signatures.
func BuildSignature(model string, temperature float64, maxTokens int, systemPrompt string) string {
	var b strings.Builder
	b.WriteString(model)
	b.WriteString(":temp=")
	b.WriteString(strconv.FormatFloat(temperature, 'g', -1, 64))
	b.WriteString(":max=")
	b.WriteString(strconv.Itoa(maxTokens))
	b.WriteString(":system=")
	b.WriteString(prefix(systemPrompt, SystemPromptPrefixLen))
	return b.String()
}

// ScopeSignature narrows signature to answers generated with the same extra
// context, such as a conversation transcript. An empty scope leaves the
// signature unchanged.
func ScopeSignature(signature, scope string) string {
	if scope == "" {
		return signature
	}
	return signature + ":scope=" + strconv.FormatUint(xxhash.Sum64String(scope), 16)
}

func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
