package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clinicvoice/internal/domain"
	"clinicvoice/internal/prompt"
)

type classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (r *Resolver) classify(ctx context.Context, utterance string, lang domain.Language) (int, float64, bool) {
	if r.classifier == nil {
		return -1, 0, false
	}
	hints := make([]prompt.IntentHint, 0, len(r.catalog.Records()))
	for _, rec := range r.catalog.Records() {
		hint := prompt.IntentHint{Name: rec.Name}
		if len(rec.Examples) > 0 {
			hint.Example = rec.Examples[0]
		}
		hints = append(hints, hint)
	}
	req := prompt.Build(prompt.StrategyClassify, prompt.Input{
		Utterance: utterance,
		Language:  lang,
		Intents:   hints,
		Model:     r.model,
	})

	started := time.Now()
	resp, err := r.classifier.Complete(ctx, req)
	r.metrics.ObserveCall("llm_classifier", time.Since(started))
	if err != nil {
		r.logger.Warn("intent classifier failed", "error", err)
		return -1, 0, false
	}

	c, err := parseClassification(resp.Content)
	if err != nil {
		r.logger.Warn("intent classifier reply unparseable", "error", err, "reply", resp.Content)
		return -1, 0, false
	}
	if c.Intent == "" || c.Intent == "none" {
		return -1, 0, false
	}
	for i, name := range r.catalog.Names() {
		if name == c.Intent {
			return i, c.Confidence, true
		}
	}
	r.logger.Warn("intent classifier returned unknown intent", "intent", c.Intent)
	return -1, 0, false
}

// parseClassification accepts bare JSON, fenced JSON or JSON embedded in prose.
func parseClassification(raw string) (classification, error) {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return classification{}, fmt.Errorf("no JSON object in classifier reply")
	}
	var c classification
	if err := json.Unmarshal([]byte(s[start:end+1]), &c); err != nil {
		return classification{}, fmt.Errorf("decode classifier reply: %w", err)
	}
	c.Intent = strings.TrimSpace(c.Intent)
	if c.Confidence < 0 || c.Confidence > 1 {
		return classification{}, fmt.Errorf("confidence %f out of range", c.Confidence)
	}
	return c, nil
}
