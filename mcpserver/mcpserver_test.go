package mcpserver

import (
	"testing"

	"github.com/use-agent/browser-stream/internal/orchestrator"
)

func TestParseScrollAmount_NamedKinds(t *testing.T) {
	cases := map[string]string{
		"to-top":    "to-top",
		"to-bottom": "to-bottom",
		"page":      "page",
	}
	for in, want := range cases {
		got := parseScrollAmount(in)
		if got.Kind != want {
			t.Errorf("parseScrollAmount(%q) = %+v, want kind %q", in, got, want)
		}
	}
}

func TestParseScrollAmount_NumberIsPixels(t *testing.T) {
	got := parseScrollAmount(250.0)
	want := orchestrator.ScrollAmount{Kind: "number", Number: 250}
	if got != want {
		t.Errorf("parseScrollAmount(250.0) = %+v, want %+v", got, want)
	}
}

func TestParseScrollAmount_MissingDefaultsToPage(t *testing.T) {
	got := parseScrollAmount(nil)
	if got.Kind != "page" {
		t.Errorf("expected default kind page, got %+v", got)
	}
}
