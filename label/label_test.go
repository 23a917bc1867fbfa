package label

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSet(t *testing.T) {
	set := ParseSet("  linux docker\tlarge ")
	assert.True(t, set.Contains("linux"))
	assert.True(t, set.Contains("docker"))
	assert.True(t, set.Contains("large"))
	assert.False(t, set.Contains("arm"))
	assert.Equal(t, "docker large linux", set.String())
	assert.True(t, ParseSet("").IsEmpty())
}

func TestMatches(t *testing.T) {
	set := ParseSet("linux docker large")

	tests := []struct {
		expr    string
		matches bool
	}{
		{"linux", true},
		{"arm", false},
		{"linux && docker", true},
		{"linux && arm", false},
		{"arm || docker", true},
		{"!arm", true},
		{"!linux", false},
		{"linux && (podman || docker) && !arm", true},
		{"(arm || small) && linux", false},
		{"!!linux", true},
		{"a || b && linux", false},
		{"linux || b && c", true},
	}

	for _, tt := range tests {
		expr, err := Parse(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.matches, expr.Matches(set), tt.expr)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"":               "empty label expression",
		"   ":            "empty label expression",
		"linux docker":   "invalid label expression 'linux docker': unexpected 'docker'",
		"linux &":        "invalid operator '&' at offset 6",
		"linux &&":       "invalid label expression 'linux &&': unexpected end of expression",
		"(linux":         "invalid label expression '(linux': missing ')'",
		"linux)":         "invalid label expression 'linux)': unexpected ')'",
		"&& linux":       "invalid label expression '&& linux': unexpected '&&'",
		"linux | docker": "invalid operator '|' at offset 6",
	}

	for expr, expected := range tests {
		_, err := Parse(expr)
		assert.EqualError(t, err, expected, expr)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "linux", MustParse("linux").String())
	assert.Equal(t, "((a && b) || !c)", MustParse("a && b || !c").String())
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("&&") })
}
