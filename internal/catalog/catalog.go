// Package catalog loads the intent catalog: known intents with example
// phrases, their precomputed embeddings and canned answers. A Catalog is
// read-only after Load and safe to share between goroutines.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"clinicvoice/internal/domain"
)

var (
	ErrEmptyCatalog      = errors.New("catalog has no intents")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

type IntentRecord struct {
	Name       string
	Examples   []string
	Embeddings [][]float32
	// Answer is the flat answer; Answers holds per-language ones. Either may be empty.
	Answer  string
	Answers map[domain.Language]string
}

type Catalog struct {
	dimension int
	records   []IntentRecord
	byName    map[string]int
}

type fileCatalog struct {
	Dimension int          `yaml:"dimension"`
	Intents   []fileIntent `yaml:"intents"`
}

type fileIntent struct {
	Name       string      `yaml:"name"`
	Examples   []string    `yaml:"examples"`
	Embeddings [][]float32 `yaml:"embeddings,omitempty"`
	Answer     yaml.Node   `yaml:"answer"`
}

func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalog YAML. The answer of an intent may be a plain string or
// a map of language to string.
func Parse(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	records := make([]IntentRecord, 0, len(fc.Intents))
	for i, fi := range fc.Intents {
		rec := IntentRecord{
			Name:       strings.TrimSpace(fi.Name),
			Examples:   fi.Examples,
			Embeddings: fi.Embeddings,
		}
		switch fi.Answer.Kind {
		case 0:
		case yaml.ScalarNode:
			rec.Answer = fi.Answer.Value
		case yaml.MappingNode:
			raw := map[string]string{}
			if err := fi.Answer.Decode(&raw); err != nil {
				return nil, fmt.Errorf("intents[%d] %s: answer: %w", i, rec.Name, err)
			}
			rec.Answers = make(map[domain.Language]string, len(raw))
			for k, v := range raw {
				lang := domain.ParseLanguage(k)
				if !lang.Known() {
					return nil, fmt.Errorf("intents[%d] %s: unknown answer language %q", i, rec.Name, k)
				}
				rec.Answers[lang] = v
			}
		default:
			return nil, fmt.Errorf("intents[%d] %s: answer must be a string or a language map", i, rec.Name)
		}
		records = append(records, rec)
	}
	return New(fc.Dimension, records)
}

// New validates records and builds a Catalog. dimension 0 means the catalog
// carries no embeddings yet.
func New(dimension int, records []IntentRecord) (*Catalog, error) {
	if len(records) == 0 {
		return nil, ErrEmptyCatalog
	}
	if dimension < 0 {
		return nil, fmt.Errorf("dimension must not be negative, got %d", dimension)
	}
	c := &Catalog{
		dimension: dimension,
		records:   records,
		byName:    make(map[string]int, len(records)),
	}
	for i, rec := range records {
		if rec.Name == "" {
			return nil, fmt.Errorf("intents[%d]: name is required", i)
		}
		if _, dup := c.byName[rec.Name]; dup {
			return nil, fmt.Errorf("intents[%d]: duplicate intent %q", i, rec.Name)
		}
		if len(rec.Examples) == 0 {
			return nil, fmt.Errorf("intent %s: at least one example is required", rec.Name)
		}
		if rec.Answer == "" && len(rec.Answers) == 0 {
			return nil, fmt.Errorf("intent %s: answer is required", rec.Name)
		}
		for j, vec := range rec.Embeddings {
			if len(vec) != dimension {
				return nil, fmt.Errorf("intent %s embedding %d: %w: got %d, want %d",
					rec.Name, j, ErrDimensionMismatch, len(vec), dimension)
			}
		}
		c.byName[rec.Name] = i
	}
	return c, nil
}

func (c *Catalog) Dimension() int {
	return c.dimension
}

// Records returns the intents in file order.
func (c *Catalog) Records() []IntentRecord {
	return c.records
}

func (c *Catalog) Get(name string) (IntentRecord, bool) {
	i, ok := c.byName[name]
	if !ok {
		return IntentRecord{}, false
	}
	return c.records[i], true
}

func (c *Catalog) Names() []string {
	out := make([]string, len(c.records))
	for i, rec := range c.records {
		out[i] = rec.Name
	}
	return out
}

// Embedded reports whether any intent carries embeddings.
func (c *Catalog) Embedded() bool {
	if c.dimension == 0 {
		return false
	}
	for _, rec := range c.records {
		if len(rec.Embeddings) > 0 {
			return true
		}
	}
	return false
}

// AnswerFor picks the answer in lang, then the flat answer, then English.
func AnswerFor(rec IntentRecord, lang domain.Language) string {
	if a := rec.Answers[lang]; a != "" {
		return a
	}
	if rec.Answer != "" {
		return rec.Answer
	}
	if a := rec.Answers[domain.LangEN]; a != "" {
		return a
	}
	return rec.Answers[domain.LangRU]
}

// Marshal encodes the catalog back to YAML, keeping each answer's shape.
func (c *Catalog) Marshal() ([]byte, error) {
	type outIntent struct {
		Name       string      `yaml:"name"`
		Examples   []string    `yaml:"examples"`
		Embeddings [][]float32 `yaml:"embeddings,omitempty,flow"`
		Answer     any         `yaml:"answer"`
	}
	out := struct {
		Dimension int         `yaml:"dimension"`
		Intents   []outIntent `yaml:"intents"`
	}{Dimension: c.dimension}
	for _, rec := range c.records {
		oi := outIntent{Name: rec.Name, Examples: rec.Examples, Embeddings: rec.Embeddings}
		if len(rec.Answers) > 0 {
			answers := make(map[string]string, len(rec.Answers))
			for lang, a := range rec.Answers {
				answers[string(lang)] = a
			}
			oi.Answer = answers
		} else {
			oi.Answer = rec.Answer
		}
		out.Intents = append(out.Intents, oi)
	}
	return yaml.Marshal(out)
}
