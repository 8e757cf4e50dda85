package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSignature(t *testing.T) {
	got := BuildSignature("gpt-4o-mini", 0.7, 1024, "Answer casually.")
	assert.Equal(t, "gpt-4o-mini:temp=0.7:max=1024:system=Answer casually.", got)
}

func TestBuildSignatureDeterministic(t *testing.T) {
	a := BuildSignature("m", 0.70, 10, "sys")
	b := BuildSignature("m", 0.7, 10, "sys")
	assert.Equal(t, a, b)
}

func TestBuildSignatureChangesWithEveryInput(t *testing.T) {
	base := BuildSignature("m", 0.7, 10, "sys")
	variants := []string{
		BuildSignature("m2", 0.7, 10, "sys"),
		BuildSignature("m", 0.8, 10, "sys"),
		BuildSignature("m", 0.7, 11, "sys"),
		BuildSignature("m", 0.7, 10, "sys2"),
	}
	for _, v := range variants {
		assert.NotEqual(t, base, v)
	}
}

func TestBuildSignatureTruncatesSystemPrompt(t *testing.T) {
	long := strings.Repeat("é", 80)
	got := BuildSignature("m", 0, 0, long)
	assert.Equal(t, "m:temp=0:max=0:system="+strings.Repeat("é", SystemPromptPrefixLen), got)

	// Prompts differing only past the prefix share a signature.
	assert.Equal(t, got, BuildSignature("m", 0, 0, long+"tail"))
	assert.Equal(t, "m:temp=0:max=0:system=", BuildSignature("m", 0, 0, ""))
}

func TestScopeSignature(t *testing.T) {
	base := BuildSignature("m", 0.7, 10, "sys")
	assert.Equal(t, base, ScopeSignature(base, ""))

	alice := ScopeSignature(base, "User: my name is Alice")
	assert.True(t, strings.HasPrefix(alice, base+":scope="))
	assert.Equal(t, alice, ScopeSignature(base, "User: my name is Alice"))
	assert.NotEqual(t, alice, ScopeSignature(base, "User: my name is Bob"))
	assert.NotEqual(t, alice, base)
}
