package asr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"clinicvoice/internal/domain"
)

type fakeEngine struct {
	name  string
	text  string
	err   error
	calls int
	langs []domain.Language
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Transcribe(_ context.Context, _ []byte, opts Options) (string, error) {
	f.calls++
	f.langs = append(f.langs, opts.Language)
	return f.text, f.err
}

func newTestCascade(primary, secondary *fakeEngine, redetect func(string) domain.Language) *Cascade {
	cfg := CascadeConfig{
		MinAudioBytes: 100,
		Suspicion: Suspicion{
			MinChars:  3,
			Denylist:  []string{"stop"},
			Allowlist: []string{"tooth", "price", "зуб"},
		},
	}
	return NewCascade(cfg, primary, secondary, redetect, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func audioOf(n int) []byte {
	return make([]byte, n)
}

func TestCascadeShortAudioSkipsPrimary(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "my tooth"}
	secondary := &fakeEngine{name: "secondary", text: "price please"}
	c := newTestCascade(primary, secondary, nil)

	res := c.Transcribe(context.Background(), audioOf(50), domain.LangEN)
	if primary.calls != 0 {
		t.Fatalf("primary called %d times, want 0", primary.calls)
	}
	if secondary.calls != 1 {
		t.Fatalf("secondary called %d times, want 1", secondary.calls)
	}
	if res.Text != "price please" || !res.Escalated || res.Reason != ReasonShortAudio || res.Engine != "secondary" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCascadeTrustsCleanPrimary(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "my tooth hurts"}
	secondary := &fakeEngine{name: "secondary", text: "unused"}
	c := newTestCascade(primary, secondary, nil)

	res := c.Transcribe(context.Background(), audioOf(500), domain.LangEN)
	if secondary.calls != 0 {
		t.Fatalf("secondary should not run")
	}
	if res.Text != "my tooth hurts" || res.Escalated || res.Engine != "primary" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCascadeEscalatesDenylistedTranscript(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "stop"}
	secondary := &fakeEngine{name: "secondary", text: "what is the price"}
	c := newTestCascade(primary, secondary, nil)

	res := c.Transcribe(context.Background(), audioOf(500), domain.LangEN)
	if res.Reason != ReasonDenylisted || res.Text != "what is the price" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCascadePrimaryErrorFallsThrough(t *testing.T) {
	primary := &fakeEngine{name: "primary", err: errors.New("dial failed")}
	secondary := &fakeEngine{name: "secondary", text: "tooth"}
	c := newTestCascade(primary, secondary, nil)

	res := c.Transcribe(context.Background(), audioOf(500), domain.LangEN)
	if res.Reason != ReasonPrimaryError || res.Text != "tooth" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCascadeSecondaryErrorIsEmpty(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "hm"}
	secondary := &fakeEngine{name: "secondary", err: errors.New("503")}
	c := newTestCascade(primary, secondary, nil)

	res := c.Transcribe(context.Background(), audioOf(500), domain.LangEN)
	if res.Text != "" || !res.Escalated {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCascadeRedetectsLanguageFromPartial(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "здравствуйте алло"}
	secondary := &fakeEngine{name: "secondary", text: "болит зуб"}
	redetect := func(string) domain.Language { return domain.LangRU }
	c := newTestCascade(primary, secondary, redetect)

	res := c.Transcribe(context.Background(), audioOf(500), domain.LangEN)
	if len(secondary.langs) != 1 || secondary.langs[0] != domain.LangRU {
		t.Fatalf("secondary languages=%v, want [ru]", secondary.langs)
	}
	if res.Language != domain.LangRU {
		t.Fatalf("result language=%s, want ru", res.Language)
	}
}
