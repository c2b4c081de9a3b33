package lexicon

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  Hello,   World! ", want: "hello world"},
		{in: "I'm scared.", want: "im scared"},
		{in: "Сколько СТОИТ?", want: "сколько стоит"},
		{in: "", want: ""},
		{in: "\t$100\n", want: "100"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContainsPhraseWordBoundaries(t *testing.T) {
	if !ContainsPhrase("Please, STOP!", "stop") {
		t.Fatal("expected stop to match")
	}
	if ContainsPhrase("we are stopping by", "stop") {
		t.Fatal("stop must not match inside stopping")
	}
	if !ContainsPhrase("ok how much is it", "how much") {
		t.Fatal("expected multi-word phrase to match")
	}
}

func TestFirstMatchKeepsListOrder(t *testing.T) {
	got, ok := FirstMatch("bye bye goodbye", []string{"goodbye", "bye"})
	if !ok || got != "goodbye" {
		t.Fatalf("FirstMatch=%q,%v want goodbye,true", got, ok)
	}
}
