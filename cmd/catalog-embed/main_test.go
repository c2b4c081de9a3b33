package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"clinicvoice/internal/catalog"
	"clinicvoice/internal/domain"
)

type lenEmbedder struct {
	dim   int
	calls int
	fail  string
}

func (e *lenEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if text == e.fail {
		return nil, errors.New("boom")
	}
	vec := make([]float32, e.dim)
	vec[0] = float32(len(text))
	return vec, nil
}

func testCatalog(t *testing.T, dimension int, embedded bool) *catalog.Catalog {
	t.Helper()
	price := catalog.IntentRecord{
		Name:     "cleaning_price",
		Examples: []string{"how much is cleaning", "price of cleaning"},
		Answers:  map[domain.Language]string{domain.LangEN: "100 dollars."},
	}
	if embedded {
		price.Embeddings = [][]float32{make([]float32, dimension), make([]float32, dimension)}
	}
	hours := catalog.IntentRecord{
		Name:     "opening_hours",
		Examples: []string{"when are you open"},
		Answer:   "We are open Monday to Saturday from 9 am to 8 pm.",
	}
	cat, err := catalog.New(dimension, []catalog.IntentRecord{price, hours})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return cat
}

func TestEmbedCatalogFillsEveryExample(t *testing.T) {
	emb := &lenEmbedder{dim: 4}
	out, stats, err := embedCatalog(context.Background(), testCatalog(t, 0, false), emb, false)
	if err != nil {
		t.Fatalf("embedCatalog: %v", err)
	}
	if out.Dimension() != 4 || !out.Embedded() {
		t.Fatalf("dimension=%d embedded=%v", out.Dimension(), out.Embedded())
	}
	if stats.embedded != 3 || stats.kept != 0 || emb.calls != 3 {
		t.Fatalf("stats=%+v calls=%d", stats, emb.calls)
	}
	rec, _ := out.Get("cleaning_price")
	if len(rec.Embeddings) != 2 || rec.Embeddings[1][0] != float32(len("price of cleaning")) {
		t.Fatalf("embeddings=%v", rec.Embeddings)
	}

	data, err := out.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	reparsed, err := catalog.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, data)
	}
	if reparsed.Dimension() != 4 || !strings.Contains(string(data), "opening_hours") {
		t.Fatalf("round trip lost data:\n%s", data)
	}
}

func TestEmbedCatalogKeepsExistingUnlessForced(t *testing.T) {
	emb := &lenEmbedder{dim: 3}
	_, stats, err := embedCatalog(context.Background(), testCatalog(t, 3, true), emb, false)
	if err != nil {
		t.Fatalf("embedCatalog: %v", err)
	}
	if stats.kept != 2 || stats.embedded != 1 {
		t.Fatalf("stats=%+v", stats)
	}

	emb = &lenEmbedder{dim: 5}
	out, stats, err := embedCatalog(context.Background(), testCatalog(t, 3, true), emb, true)
	if err != nil {
		t.Fatalf("forced embedCatalog: %v", err)
	}
	if out.Dimension() != 5 || stats.embedded != 3 {
		t.Fatalf("dimension=%d stats=%+v", out.Dimension(), stats)
	}
}

func TestEmbedCatalogErrors(t *testing.T) {
	_, _, err := embedCatalog(context.Background(), testCatalog(t, 3, true), &lenEmbedder{dim: 8}, false)
	if !errors.Is(err, catalog.ErrDimensionMismatch) {
		t.Fatalf("err=%v, want dimension mismatch", err)
	}
	_, _, err = embedCatalog(context.Background(), testCatalog(t, 0, false), &lenEmbedder{dim: 2, fail: "when are you open"}, false)
	if err == nil || !strings.Contains(err.Error(), "opening_hours") {
		t.Fatalf("err=%v", err)
	}
}
