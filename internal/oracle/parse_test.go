package oracle

import (
	"testing"
)

type fixSuggestion struct {
	Fix        string  `json:"fix"`
	Confidence float64 `json:"confidence"`
}

func TestParseDirectJSON(t *testing.T) {
	v, ok := Parse[fixSuggestion](`{"fix": "debounce the save button", "confidence": 0.9}`)
	if !ok {
		t.Fatal("direct parse failed")
	}
	if v.Fix != "debounce the save button" || v.Confidence != 0.9 {
		t.Errorf("unexpected result: %+v", v)
	}
}

func TestParseCodeFenced(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"json fence", "```json\n{\"fix\": \"add loading state\"}\n```"},
		{"bare fence", "```\n{\"fix\": \"add loading state\"}\n```"},
		{"fence without newlines", "```json{\"fix\": \"add loading state\"}```"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := Parse[fixSuggestion](tc.input)
			if !ok {
				t.Fatalf("parse failed for %q", tc.input)
			}
			if v.Fix != "add loading state" {
				t.Errorf("unexpected result: %+v", v)
			}
		})
	}
}

func TestParseTrailingCommas(t *testing.T) {
	v, ok := Parse[fixSuggestion](`{"fix": "retry upload", "confidence": 0.5,}`)
	if !ok {
		t.Fatal("parse with trailing comma failed")
	}
	if v.Fix != "retry upload" {
		t.Errorf("unexpected result: %+v", v)
	}
}

func TestParseMixedContent(t *testing.T) {
	input := `Here is my suggestion:

{"fix": "show validation inline", "confidence": 0.8}

Let me know if you need more detail.`
	v, ok := Parse[fixSuggestion](input)
	if !ok {
		t.Fatal("parse from mixed content failed")
	}
	if v.Fix != "show validation inline" {
		t.Errorf("unexpected result: %+v", v)
	}
}

func TestParseArrayFromProse(t *testing.T) {
	input := "The proposals are: [{\"fix\": \"a\"}, {\"fix\": \"b\"}]"
	v, ok := Parse[[]fixSuggestion](input)
	if !ok {
		t.Fatal("array parse failed")
	}
	if len(v) != 2 || v[1].Fix != "b" {
		t.Errorf("unexpected result: %+v", v)
	}
}

func TestParseGarbageFails(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"I cannot produce JSON for this request.",
		"{broken",
	}
	for _, input := range cases {
		if _, ok := Parse[fixSuggestion](input); ok {
			t.Errorf("expected failure for %q", input)
		}
	}
}

func TestParseOrZero(t *testing.T) {
	v := ParseOrZero[[]fixSuggestion]("no json here at all")
	if v != nil {
		t.Errorf("expected zero value, got %+v", v)
	}

	got := ParseOrZero[fixSuggestion](`{"fix": "x"}`)
	if got.Fix != "x" {
		t.Errorf("expected parsed value, got %+v", got)
	}
}

func TestDisabledClient(t *testing.T) {
	c := Disabled()
	if c.Enabled() {
		t.Error("disabled client reports enabled")
	}
	if _, err := c.Complete(t.Context(), "", "prompt"); err == nil {
		t.Error("expected error from disabled client")
	}
}
