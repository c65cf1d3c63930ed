// internal/game/generator.go
//
// Puzzle generation: samples an age-appropriate sentence from the corpus
// and turns it into shuffled word pieces.
//
// Selection strategy:
//   - Pick the word-count band for the age (narrower for younger readers).
//   - Sample corpus entries for the age up to 100 times; split each entry
//     into sentences and take the first whose word count fits the band.
//   - Fallback tier 1: a random summary-tagged entry for the age
//     (summaries are shorter).
//   - Fallback tier 2: the shortest sentence available for the age.
//   - ErrNoCorpusForAge only when the age has no entries at all.

package game

import (
	"math/rand"
	"strings"
	"unicode"

	"github.com/danbi-edu/puzzle-go/internal/corpus"
)

// maxSampleAttempts bounds the random sampling loop before falling back.
const maxSampleAttempts = 100

// Content is a generated puzzle's sentence material before it is attached
// to a session.
type Content struct {
	Text   string
	Words  []string
	Pieces []Piece
	Age    int
	Title  string
}

// Generator samples puzzle sentences from a corpus index.
type Generator struct {
	corpus *corpus.Index
}

// NewGenerator constructs a Generator over a loaded corpus index.
func NewGenerator(idx *corpus.Index) *Generator {
	return &Generator{corpus: idx}
}

// wordBand returns the target word-count range for an age.
func wordBand(age int) (min, max int) {
	switch {
	case age <= 6:
		return 3, 6
	case age <= 10:
		return 6, 12
	default:
		return 10, 18
	}
}

// Generate produces puzzle content for the requested age.
func (g *Generator) Generate(age int) (Content, error) {
	entries := g.corpus.ByAge(age)
	if len(entries) == 0 {
		return Content{}, ErrNoCorpusForAge
	}

	min, max := wordBand(age)
	for i := 0; i < maxSampleAttempts; i++ {
		entry := entries[rand.Intn(len(entries))]
		for _, sent := range SplitSentences(entry.Text) {
			words := strings.Fields(sent)
			if len(words) >= min && len(words) <= max {
				return newContent(entry, sent, words), nil
			}
		}
	}

	// Band sampling exhausted; fall back to a shorter summary entry.
	if summaries := g.corpus.Summaries(age); len(summaries) > 0 {
		entry := summaries[rand.Intn(len(summaries))]
		sent := ensureTerminated(strings.TrimSpace(entry.Text))
		return newContent(entry, sent, strings.Fields(sent)), nil
	}

	// No summaries either; use the shortest sentence for the age.
	var bestEntry corpus.Entry
	var bestSent string
	bestLen := 0
	for _, entry := range entries {
		for _, sent := range SplitSentences(entry.Text) {
			n := len(strings.Fields(sent))
			if n > 0 && (bestLen == 0 || n < bestLen) {
				bestEntry, bestSent, bestLen = entry, sent, n
			}
		}
	}
	if bestLen == 0 {
		return Content{}, ErrNoCorpusForAge
	}
	return newContent(bestEntry, bestSent, strings.Fields(bestSent)), nil
}

// newContent assembles puzzle content with a shuffled piece list.
func newContent(entry corpus.Entry, sent string, words []string) Content {
	return Content{
		Text:   sent,
		Words:  words,
		Pieces: shuffledPieces(words),
		Age:    entry.Age,
		Title:  entry.Title,
	}
}

// shuffledPieces tags each word with its original index and shuffles.
func shuffledPieces(words []string) []Piece {
	pieces := make([]Piece, len(words))
	for i, w := range words {
		pieces[i] = Piece{ID: i, Word: w, Position: i}
	}
	rand.Shuffle(len(pieces), func(i, j int) {
		pieces[i], pieces[j] = pieces[j], pieces[i]
	})
	return pieces
}

// SplitSentences splits a corpus passage into individual sentences.
// A boundary is terminal punctuation (. ! ? ") followed by whitespace and
// a sentence opener (uppercase letter, Hangul, or a quote). Each sentence
// is trimmed and gets terminal punctuation appended if missing.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var parts []string
	start, i := 0, 0
	for i < len(runes) {
		if isSentenceEnd(runes[i]) {
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j > i+1 && j < len(runes) && startsSentence(runes[j]) {
				parts = append(parts, string(runes[start:i+1]))
				start, i = j, j
				continue
			}
		}
		i++
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, ensureTerminated(p))
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '"'
}

func startsSentence(r rune) bool {
	return unicode.IsUpper(r) || unicode.Is(unicode.Hangul, r) || r == '"' || r == '\''
}

// ensureTerminated appends a period when a sentence lacks terminal
// punctuation (summary entries often do).
func ensureTerminated(s string) string {
	if s == "" {
		return s
	}
	last := []rune(s)[len([]rune(s))-1]
	if isSentenceEnd(last) {
		return s
	}
	return s + "."
}
