package deck

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// BuildDocument assembles the complete presentation document: the opening
// fragment built from the title, each content section with a dense
// sequential id, and the closing fragment.
func BuildDocument(title string, sections []string) string {
	var b strings.Builder

	escaped := html.EscapeString(title)

	b.WriteString("<!DOCTYPE html>\n")
	b.WriteString("<html lang=\"en\">\n<head>\n")
	b.WriteString("  <meta charset=\"utf-8\">\n")
	b.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	fmt.Fprintf(&b, "  <title>%s</title>\n", escaped)
	b.WriteString("</head>\n<body>\n<div class=\"deck\">\n")

	fmt.Fprintf(&b, "<section id=%q class=\"slide slide-opening\">\n  <h1>%s</h1>\n</section>\n", IDOpening, escaped)

	for i, section := range sections {
		b.WriteString(normalizeSection(section, i))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "<section id=%q class=\"slide slide-closing\">\n  <h2>Thank you</h2>\n</section>\n", IDClosing)

	b.WriteString("</div>\n</body>\n</html>\n")
	return b.String()
}

// normalizeSection guarantees each content section is a <section> element
// carrying the dense sequential id, regardless of what the model produced.
func normalizeSection(section string, index int) string {
	id := fmt.Sprintf("%s%d", contentIDPrefix, index)
	trimmed := strings.TrimSpace(section)

	if !strings.HasPrefix(trimmed, "<section") || !isSectionTagStart(trimmed, 0) {
		return fmt.Sprintf("<section id=%q class=\"slide\">\n%s\n</section>", id, trimmed)
	}

	gt := strings.IndexByte(trimmed, '>')
	if gt < 0 {
		return fmt.Sprintf("<section id=%q class=\"slide\">\n%s\n</section>", id, trimmed)
	}

	openTag := trimmed[:gt+1]
	if idAttrPattern.MatchString(openTag) {
		openTag = idAttrPattern.ReplaceAllString(openTag, `id="`+id+`"`)
	} else {
		openTag = openTag[:len("<section")] + ` id="` + id + `"` + openTag[len("<section"):]
	}
	return openTag + trimmed[gt+1:]
}

// DiagnosticSection builds the degraded single-fragment fallback shown
// when the agent's final output could not be parsed. The user always gets
// a deck, never a hard failure.
func DiagnosticSection(raw string) string {
	const maxLen = 2000
	if len(raw) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut] + "…"
	}
	return fmt.Sprintf(
		"<section class=\"slide slide-diagnostic\">\n  <h2>Generated output</h2>\n  <pre>%s</pre>\n</section>",
		html.EscapeString(raw),
	)
}
