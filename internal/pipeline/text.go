package pipeline

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/persona-cli/internal/model"
)

var (
	mdImage    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdHeading  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	mdEmphasis = regexp.MustCompile("[*_`]{1,3}")
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
	sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]*["”']?`)
)

// normalizeText composes to NFC, strips markdown markup and collapses whitespace.
func normalizeText(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = mdImage.ReplaceAllString(s, "")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdEmphasis.ReplaceAllString(s, "")
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// challengeSignatures mark bot walls and error pages that fetched as 200.
var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
	"page not found",
}

// looksBlocked reports whether short content is a challenge or error page.
func looksBlocked(content string) bool {
	if len(content) >= 1000 {
		return false
	}
	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// tokenize lower-cases s and splits it into letter/digit words.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func sentences(s string) []string {
	var out []string
	for _, m := range sentenceRe.FindAllString(s, -1) {
		if t := strings.TrimSpace(m); len(tokenize(t)) >= 4 {
			out = append(out, t)
		}
	}
	return out
}

var firstPersonWords = map[string]bool{"i": true, "i'm": true, "i've": true, "my": true, "me": true, "we": true, "our": true}

// firstPersonShare is the fraction of tokens that are first-person pronouns.
func firstPersonShare(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	n := 0
	for _, t := range tokens {
		if firstPersonWords[t] {
			n++
		}
	}
	return float64(n) / float64(len(tokens))
}

var negations = map[string]bool{"not": true, "never": true, "no": true, "don't": true, "doesn't": true, "isn't": true, "rarely": true}

func negated(tokens []string) bool {
	for _, t := range tokens {
		if negations[t] {
			return true
		}
	}
	return false
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true, "to": true, "in": true,
	"on": true, "for": true, "with": true, "as": true, "at": true, "by": true, "is": true, "was": true,
	"are": true, "be": true, "that": true, "this": true, "it": true, "from": true, "said": true,
	"he": true, "she": true, "they": true, "his": true, "her": true, "their": true,
}

// attributeTerms seed retrieval and extraction for each persona attribute.
var attributeTerms = map[model.AttributeKey][]string{
	model.AttrRole:        {"ceo", "founder", "director", "chief", "head", "lead", "president", "professor", "serves", "role", "position", "chair"},
	model.AttrExpertise:   {"expert", "expertise", "specializes", "research", "experience", "skills", "developed", "pioneered", "years", "engineering", "field"},
	model.AttrMindset:     {"believe", "believes", "think", "approach", "philosophy", "vision", "principle", "strategy", "priority", "risk", "values"},
	model.AttrPersonality: {"curious", "humble", "direct", "candid", "energetic", "calm", "friendly", "passionate", "patient", "collaborative", "describe"},
	model.AttrDescription: {"known", "career", "biography", "profile", "recognized", "widely", "story", "life", "journey", "best"},
}

// matchesTerms counts tokens that are attribute terms.
func matchesTerms(tokens []string, attr model.AttributeKey) int {
	n := 0
	for _, t := range tokens {
		for _, term := range attributeTerms[attr] {
			if t == term {
				n++
				break
			}
		}
	}
	return n
}

// vectorDims is the width of the hashed term vectors.
const vectorDims = 128

type vector [vectorDims]float64

// embed builds an L2-normalised hashed bag-of-words vector.
func embed(tokens []string) vector {
	var v vector
	for _, t := range tokens {
		if stopwords[t] {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(t))
		sum := h.Sum32()
		sign := 1.0
		if sum&1 == 1 {
			sign = -1
		}
		v[(sum>>1)%vectorDims] += sign
	}
	var norm2 float64
	for _, x := range v {
		norm2 += x * x
	}
	if norm2 == 0 {
		return v
	}
	inv := 1 / math.Sqrt(norm2)
	for i := range v {
		v[i] *= inv
	}
	return v
}

func cosine(a, b vector) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// contentHash fingerprints text for exact-duplicate detection, ignoring case
// and whitespace.
func contentHash(s string) uint64 {
	h := fnv.New64a()
	for _, t := range tokenize(s) {
		_, _ = h.Write([]byte(t))
		_, _ = h.Write([]byte{' '})
	}
	return h.Sum64()
}

// mentions reports whether text names the subject or any alias.
func mentions(text string, names []string) bool {
	lower := strings.ToLower(text)
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" && strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
