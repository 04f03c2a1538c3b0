package transform

import (
	"regexp"
	"testing"

	"github.com/Sambruk/egilscim/internal/object"
)

func TestRegexTransformFirstMatchWins(t *testing.T) {
	tr := &RegexTransform{
		From: "raw",
		To:   "derived",
		Rules: []Rule{
			{Match: regexp.MustCompile(`\d+`), Replace: "first"},
			{Match: regexp.MustCompile(`\d`), Replace: "second"},
		},
	}
	obj := object.NewLoaded("Student")
	obj.Set("raw", []string{"123"})
	tr.Apply(obj)

	got := obj.Values("derived")
	if len(got) != 1 || got[0] != "first" {
		t.Fatalf("expected only the first matching rule to fire, got %v", got)
	}
}

func TestRegexTransformWritesToAttribute(t *testing.T) {
	tr := &RegexTransform{
		From: "raw",
		To:   "derived",
		Rules: []Rule{
			{Match: regexp.MustCompile(`^A(\d+)$`), Replace: "a-$1"},
		},
	}
	obj := object.NewLoaded("Student")
	obj.Set("raw", []string{"A123", "nomatch"})
	tr.Apply(obj)

	got := obj.Values("derived")
	want := []string{"a-123"}
	if len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRegexTransformNoMatchFallback(t *testing.T) {
	tr := &RegexTransform{
		From: "raw",
		To:   "derived",
		Rules: []Rule{
			{Match: regexp.MustCompile(`^A(\d+)$`), Replace: "a-$1"},
		},
		NoMatch: "unmatched",
	}
	obj := object.NewLoaded("Student")
	obj.Set("raw", []string{"A1", "plain"})
	tr.Apply(obj)

	if got := obj.Values("unmatched"); len(got) != 1 || got[0] != "plain" {
		t.Fatalf("expected unmatched value copied verbatim, got %v", got)
	}
}

func TestRegexTransformMatchAllAppliesEveryRule(t *testing.T) {
	tr := &RegexTransform{
		From: "raw",
		To:   "derived",
		Rules: []Rule{
			{Match: regexp.MustCompile(`a`), Replace: "A"},
			{Match: regexp.MustCompile(`b`), Replace: "B"},
		},
		MatchAll: true,
	}
	obj := object.NewLoaded("Student")
	obj.Set("raw", []string{"ab"})
	tr.Apply(obj)

	got := obj.Values("derived")
	if len(got) != 2 {
		t.Fatalf("expected both rules to fire with MatchAll, got %v", got)
	}
}

func TestURLDecodeTransform(t *testing.T) {
	tr := &URLDecodeTransform{From: "raw", To: "decoded"}
	obj := object.NewLoaded("Student")
	obj.Set("raw", []string{"a%20b", "%25"})
	tr.Apply(obj)

	got := obj.Values("decoded")
	want := []string{"a b", "%"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestURLDecodeTransformKeepsMalformedValueVerbatim(t *testing.T) {
	tr := &URLDecodeTransform{From: "raw", To: "decoded"}
	obj := object.NewLoaded("Student")
	obj.Set("raw", []string{"%zz"})
	tr.Apply(obj)

	if got := obj.Values("decoded"); len(got) != 1 || got[0] != "%zz" {
		t.Fatalf("expected malformed percent-encoding kept verbatim, got %v", got)
	}
}
