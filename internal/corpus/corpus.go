// internal/corpus/corpus.go
//
// Sentence corpus for the puzzle generator.
//
// Responsibilities:
//   - Load age-tagged sentence entries from a YAML file (CORPUS_FILE env)
//     or fall back to a small embedded default corpus.
//   - Group entries by age for fast sampling.
//   - Supply read-only accessors: ByAge, Summaries, Ages, Stats.
//
// Corpus file format (YAML):
//
//	sentences:
//	  - text: "나는 학교에 간다."
//	    age: 7
//	    title: "우리들의 하루"
//	    type: "fairytale"
//
// Entries are loaded once at startup and never mutated afterwards, so the
// Index needs no locking.
package corpus

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TypeSummary tags shorter summary entries used as the generator's
// fallback tier when no sentence fits the requested word-count band.
const TypeSummary = "summary"

//go:embed default_corpus.yaml
var embeddedCorpus []byte

// Entry is one immutable corpus record: a sentence (or short passage)
// tagged with the reader age it targets and its source work.
type Entry struct {
	Text  string `yaml:"text" json:"text"`
	Age   int    `yaml:"age" json:"age"`
	Title string `yaml:"title" json:"title"`
	Type  string `yaml:"type" json:"type"`
	Form  string `yaml:"form,omitempty" json:"form,omitempty"`
}

// corpusFile is the top-level YAML document shape.
type corpusFile struct {
	Sentences []Entry `yaml:"sentences"`
}

// Index groups corpus entries by age label.
type Index struct {
	byAge map[int][]Entry
	total int
}

// Load builds an Index from the CORPUS_FILE env var if set,
// otherwise from the embedded default corpus.
func Load() (*Index, error) {
	if path := os.Getenv("CORPUS_FILE"); path != "" {
		return LoadFile(path)
	}
	return parse(embeddedCorpus)
}

// LoadFile builds an Index from a YAML corpus file on disk.
func LoadFile(path string) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return parse(b)
}

// FromEntries builds an Index directly from entries (used by tests).
func FromEntries(entries []Entry) *Index {
	idx := &Index{byAge: make(map[int][]Entry)}
	for _, e := range entries {
		e.Text = strings.TrimSpace(e.Text)
		if e.Text == "" || e.Age <= 0 {
			continue
		}
		idx.byAge[e.Age] = append(idx.byAge[e.Age], e)
		idx.total++
	}
	return idx
}

// parse unmarshals the YAML document and indexes valid entries.
func parse(b []byte) (*Index, error) {
	var doc corpusFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	idx := FromEntries(doc.Sentences)
	if idx.total == 0 {
		return nil, errors.New("corpus: no valid entries")
	}
	return idx, nil
}

// ByAge returns all entries for an age label (nil if none).
func (i *Index) ByAge(age int) []Entry { return i.byAge[age] }

// Summaries returns the summary-tagged entries for an age.
func (i *Index) Summaries(age int) []Entry {
	var out []Entry
	for _, e := range i.byAge[age] {
		if e.Type == TypeSummary {
			out = append(out, e)
		}
	}
	return out
}

// Ages returns the distinct age labels present, ascending.
func (i *Index) Ages() []int {
	ages := make([]int, 0, len(i.byAge))
	for a := range i.byAge {
		ages = append(ages, a)
	}
	sort.Ints(ages)
	return ages
}

// Stats returns counts of loaded entries: (total, distinct ages).
func (i *Index) Stats() (entries int, ages int) {
	return i.total, len(i.byAge)
}
