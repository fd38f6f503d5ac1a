package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/persona-cli/internal/model"
)

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	in := "# Profile\r\n\r\n\r\n\r\nShe **leads** the [lab](https://example.com/lab).  ![logo](x.png)\n  Café talk"
	assert.Equal(t, "Profile\n\nShe leads the lab.\nCafé talk", normalizeText(in))
	assert.Equal(t, "old mac\nline endings", normalizeText("old mac\rline endings"))
	assert.NotContains(t, normalizeText("a\r\nb\rc"), "\r")
}

func TestLooksBlocked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"cloudflare challenge", "Just a moment... Checking your browser before accessing.", true},
		{"javascript wall", "Please enable JavaScript to continue.", true},
		{"normal page", "Ada Lovelace wrote the first published algorithm.", false},
		{"long page mentioning denial", "access denied " + strings.Repeat("x", 1000), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, looksBlocked(tt.content))
		})
	}
}

func TestTokenizeAndSentences(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"i'm", "a", "long", "term", "thinker", "2024"}, tokenize("I'm a long-term thinker (2024)."))

	got := sentences("Short one. This sentence has enough words! Another full sentence is here?\nTiny")
	assert.Equal(t, []string{"This sentence has enough words!", "Another full sentence is here?"}, got)
}

func TestFirstPersonShareAndNegation(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, firstPersonShare(tokenize("I think my team")), 1e-9)
	assert.Zero(t, firstPersonShare(nil))
	assert.True(t, negated(tokenize("I don't believe in shortcuts")))
	assert.False(t, negated(tokenize("I believe in shortcuts")))
}

func TestMatchesTerms(t *testing.T) {
	t.Parallel()

	tokens := tokenize("She serves as chief director of research.")
	assert.Equal(t, 3, matchesTerms(tokens, model.AttrRole))
	assert.Equal(t, 1, matchesTerms(tokens, model.AttrExpertise))
	assert.Zero(t, matchesTerms(tokens, model.AttrPersonality))
}

func TestEmbedAndCosine(t *testing.T) {
	t.Parallel()

	a := embed(tokenize("founder and chief executive of the company"))
	b := embed(tokenize("the founder and chief executive of the company"))
	c := embed(tokenize("quantum chromodynamics lattice gauge"))

	assert.InDelta(t, 1.0, cosine(a, a), 1e-9)
	assert.InDelta(t, 1.0, cosine(a, b), 1e-9, "stopwords do not contribute")
	assert.Less(t, cosine(a, c), 0.9)
	assert.Zero(t, cosine(embed(nil), a))
}

func TestContentHashIgnoresCaseAndSpacing(t *testing.T) {
	t.Parallel()

	assert.Equal(t, contentHash("Hello   World"), contentHash("hello world"))
	assert.NotEqual(t, contentHash("hello world"), contentHash("hello there"))
}

func TestMentions(t *testing.T) {
	t.Parallel()

	names := []string{"Ada Lovelace", " ", "Countess"}
	assert.True(t, mentions("The countess spoke first.", names))
	assert.True(t, mentions("ADA LOVELACE wrote notes.", names))
	assert.False(t, mentions("Charles Babbage designed it.", names))
}

func TestRound2(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.74, round2(0.7359))
	assert.Equal(t, 0.5, round2(0.499))
}
