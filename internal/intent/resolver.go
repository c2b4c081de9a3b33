// Package intent matches a caller utterance against the intent catalog:
// embedding similarity first, token overlap second, an LLM classifier last.
package intent

import (
	"context"
	"log/slog"
	"time"

	"clinicvoice/internal/catalog"
	"clinicvoice/internal/domain"
	"clinicvoice/internal/embedding"
	"clinicvoice/internal/lexicon"
	"clinicvoice/internal/llm"
	"clinicvoice/internal/metrics"
)

// Thresholds gate each path. Semantic accepts at or above its value, lexical
// and classifier only strictly above.
type Thresholds struct {
	Semantic   float64
	Lexical    float64
	Classifier float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Semantic: 0.8, Lexical: 0.5, Classifier: 0.6}
}

type Resolver struct {
	catalog    *catalog.Catalog
	embedder   embedding.Embedder
	classifier llm.Provider
	model      string
	thresholds Thresholds
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// examples[i][j] is the token set of example j of record i.
	examples [][]tokenSet
}

type ResolverConfig struct {
	Thresholds Thresholds
	// ClassifierModel is passed to the LLM provider for the classification path.
	ClassifierModel string
}

// NewResolver builds a resolver over cat. embedder and classifier may be nil,
// which disables the semantic and classification paths.
func NewResolver(cat *catalog.Catalog, embedder embedding.Embedder, classifier llm.Provider, cfg ResolverConfig, m *metrics.Metrics, logger *slog.Logger) *Resolver {
	r := &Resolver{
		catalog:    cat,
		embedder:   embedder,
		classifier: classifier,
		model:      cfg.ClassifierModel,
		thresholds: cfg.Thresholds,
		metrics:    m,
		logger:     logger,
	}
	for _, rec := range cat.Records() {
		sets := make([]tokenSet, len(rec.Examples))
		for j, ex := range rec.Examples {
			sets[j] = newTokenSet(lexicon.Tokens(ex))
		}
		r.examples = append(r.examples, sets)
	}
	return r
}

// Resolve runs the paths in order and stops at the first confident match.
func (r *Resolver) Resolve(ctx context.Context, utterance string, lang domain.Language) domain.Resolution {
	if lexicon.Normalize(utterance) == "" {
		return domain.Unmatched()
	}

	res := r.resolve(ctx, utterance, lang)
	r.metrics.RecordResolution(string(res.Path), res.Matched)
	if res.Matched {
		r.logger.Debug("intent resolved",
			"intent", res.Intent,
			"path", res.Path,
			"confidence", res.Confidence,
		)
	}
	return res
}

func (r *Resolver) resolve(ctx context.Context, utterance string, lang domain.Language) domain.Resolution {
	if idx, score, ok := r.semantic(ctx, utterance); ok && score >= r.thresholds.Semantic {
		return r.matched(idx, score, domain.PathSemantic, lang)
	}
	if idx, score := r.lexical(utterance); idx >= 0 && score > r.thresholds.Lexical {
		return r.matched(idx, score, domain.PathLexical, lang)
	}
	if idx, conf, ok := r.classify(ctx, utterance, lang); ok && conf > r.thresholds.Classifier {
		return r.matched(idx, conf, domain.PathClassifier, lang)
	}
	return domain.Unmatched()
}

func (r *Resolver) matched(idx int, confidence float64, path domain.ResolutionPath, lang domain.Language) domain.Resolution {
	rec := r.catalog.Records()[idx]
	return domain.Resolution{
		Matched:    true,
		Intent:     rec.Name,
		Answer:     catalog.AnswerFor(rec, lang),
		Confidence: confidence,
		Path:       path,
	}
}

// semantic returns the best record by cosine similarity. ok is false when the
// path is unavailable.
func (r *Resolver) semantic(ctx context.Context, utterance string) (int, float64, bool) {
	if r.embedder == nil || !r.catalog.Embedded() {
		return -1, 0, false
	}
	started := time.Now()
	vec, err := r.embedder.Embed(ctx, utterance)
	r.metrics.ObserveCall("embedding", time.Since(started))
	if err != nil {
		r.logger.Warn("embedding failed, semantic path skipped", "error", err)
		return -1, 0, false
	}
	if len(vec) != r.catalog.Dimension() {
		r.logger.Warn("embedding dimension mismatch, semantic path skipped",
			"got", len(vec),
			"want", r.catalog.Dimension(),
		)
		return -1, 0, false
	}

	best, bestScore := -1, 0.0
	for i, rec := range r.catalog.Records() {
		for _, stored := range rec.Embeddings {
			score := catalog.CosineSimilarity(vec, stored)
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
	}
	return best, bestScore, best >= 0
}

// lexical returns the record whose example overlaps the utterance most, or -1.
func (r *Resolver) lexical(utterance string) (int, float64) {
	query := newTokenSet(lexicon.Tokens(utterance))
	if len(query) == 0 {
		return -1, 0
	}
	best, bestScore := -1, 0.0
	for i, sets := range r.examples {
		for _, ex := range sets {
			score := overlap(query, ex)
			if score > bestScore {
				best, bestScore = i, score
			}
		}
	}
	return best, bestScore
}

type tokenSet map[string]struct{}

func newTokenSet(tokens []string) tokenSet {
	s := make(tokenSet, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// overlap is |common| / max(|a|, |b|).
func overlap(a, b tokenSet) float64 {
	denom := max(len(a), len(b))
	if denom == 0 {
		return 0
	}
	common := 0
	for t := range a {
		if _, ok := b[t]; ok {
			common++
		}
	}
	return float64(common) / float64(denom)
}
