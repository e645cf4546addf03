package deck

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseAgentOutputFencedJSON(t *testing.T) {
	text := "Here is the deck.\n```json\n" +
		`{"title": "Q3 Review", "sections": ["<section><h2>One</h2></section>", "<section><h2>Two</h2></section>"]}` +
		"\n```\nDone."

	title, sections, degraded := ParseAgentOutput(text)
	if degraded {
		t.Fatal("fenced JSON was not parsed")
	}
	if title != "Q3 Review" {
		t.Errorf("title: got %q", title)
	}
	if len(sections) != 2 {
		t.Errorf("sections: got %d, want 2", len(sections))
	}
}

func TestParseAgentOutputBareObject(t *testing.T) {
	text := `The result: {"title": "Bare", "sections": ["<section><p>x</p></section>"]} as requested.`

	title, sections, degraded := ParseAgentOutput(text)
	if degraded {
		t.Fatal("bare object was not parsed")
	}
	if title != "Bare" || len(sections) != 1 {
		t.Errorf("got title %q, %d sections", title, len(sections))
	}
}

func TestParseAgentOutputLegacySlideObjects(t *testing.T) {
	text := "```json\n" +
		`{"title": "Legacy", "sections": [{"slide": "<section><p>a</p></section>"}, {"slide": "<section><p>b</p></section>"}]}` +
		"\n```"

	_, sections, degraded := ParseAgentOutput(text)
	if degraded {
		t.Fatal("legacy shape was not parsed")
	}
	if len(sections) != 2 {
		t.Errorf("sections: got %d, want 2", len(sections))
	}
}

func TestParseAgentOutputDegradesNeverFails(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"plain prose", "I could not produce the deck, sorry."},
		{"broken json", "```json\n{\"title\": \"x\", \"sections\": [\n```"},
		{"empty", ""},
		{"empty sections", `{"title": "x", "sections": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, sections, degraded := ParseAgentOutput(tt.text)
			if !degraded {
				t.Fatal("expected degraded result")
			}
			if title != DefaultTitle {
				t.Errorf("title: got %q", title)
			}
			if len(sections) != 1 {
				t.Fatalf("sections: got %d, want 1 diagnostic", len(sections))
			}
			if !strings.Contains(sections[0], "slide-diagnostic") {
				t.Errorf("missing diagnostic section: %q", sections[0])
			}
		})
	}
}

func TestDiagnosticSectionTruncatesOnRuneBoundary(t *testing.T) {
	// Multibyte runes straddling the truncation point must not be split
	// into invalid bytes.
	// Three-byte runes, so the 2000-byte cap lands mid-rune.
	raw := strings.Repeat("€", 1000)

	section := DiagnosticSection(raw)
	if !utf8.ValidString(section) {
		t.Error("truncation produced invalid UTF-8")
	}
	if !strings.Contains(section, "…") {
		t.Error("truncated output missing the ellipsis marker")
	}

	short := DiagnosticSection("short output")
	if strings.Contains(short, "…") {
		t.Error("untruncated output carries an ellipsis")
	}
}

func TestParseAgentOutputDefaultTitle(t *testing.T) {
	title, _, degraded := ParseAgentOutput(`{"sections": ["<section><p>x</p></section>"]}`)
	if degraded {
		t.Fatal("unexpected degraded result")
	}
	if title != DefaultTitle {
		t.Errorf("title: got %q, want default", title)
	}
}

func TestBuildDocumentStructure(t *testing.T) {
	doc := BuildDocument("Annual <Report>", []string{
		`<section class="slide"><h2>First</h2></section>`,
		`<h2>Bare markup</h2>`,
	})

	fragments, err := ExtractFragments(doc)
	if err != nil {
		t.Fatalf("ExtractFragments: %v", err)
	}

	wantIDs := []string{IDOpening, "slide-0", "slide-1", IDClosing}
	if len(fragments) != len(wantIDs) {
		t.Fatalf("got %d fragments, want %d", len(fragments), len(wantIDs))
	}
	for i, f := range fragments {
		if f.ID != wantIDs[i] {
			t.Errorf("fragment %d id: got %q, want %q", i, f.ID, wantIDs[i])
		}
	}

	if !strings.Contains(doc, "Annual &lt;Report&gt;") {
		t.Error("title was not HTML-escaped")
	}
	if strings.Contains(doc, "Annual <Report>") {
		t.Error("raw title leaked into the document")
	}
}

func TestBuildDocumentOverridesModelIDs(t *testing.T) {
	doc := BuildDocument("T", []string{
		`<section id="slide-7" class="slide"><p>misnumbered</p></section>`,
	})

	fragments, err := ExtractFragments(doc)
	if err != nil {
		t.Fatalf("ExtractFragments: %v", err)
	}
	if fragments[1].ID != "slide-0" {
		t.Errorf("model-supplied id survived: %q", fragments[1].ID)
	}
}
