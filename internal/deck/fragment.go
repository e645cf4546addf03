// Package deck implements the slide-addressable presentation document
// model: extraction, whole-fragment replacement, deletion, and renumbering
// of identified slide units within one HTML document.
package deck

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// IDOpening and IDClosing are the reserved ids of the first and last
	// fragments of a deck. They never participate in renumbering.
	IDOpening = "slide-title"
	IDClosing = "slide-thankyou"

	contentIDPrefix = "slide-"
)

// ErrDuplicateID signals that two fragments share an id. A document in
// that state is invalid and must not be edited.
var ErrDuplicateID = errors.New("duplicate fragment id")

// Kind classifies a fragment.
type Kind string

const (
	KindOpening Kind = "opening"
	KindContent Kind = "content"
	KindClosing Kind = "closing"
)

// Fragment is one self-contained slide unit of the output document.
type Fragment struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Kind  Kind   `json:"kind"`
	HTML  string `json:"html"`
	Title string `json:"title,omitempty"`
}

// span is one top-level <section> occurrence with its byte range.
type span struct {
	id    string
	start int // offset of '<' of the opening tag
	end   int // offset just past "</section>"
}

var (
	idAttrPattern  = regexp.MustCompile(`\bid\s*=\s*"([^"]*)"`)
	headingPattern = regexp.MustCompile(`(?is)<h[1-3][^>]*>(.*?)</h[1-3]>`)
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
)

// scanSections walks the document and returns the top-level sections in
// order. Nested <section> tags are tracked with a depth counter so a slide
// containing its own sections is still one unit; id matching is on the
// parsed attribute value, so "slide-1" can never match "slide-10".
func scanSections(doc string) []span {
	var spans []span
	depth := 0
	topStart := -1
	i := 0

	for i < len(doc) {
		open := strings.Index(doc[i:], "<section")
		closeIdx := strings.Index(doc[i:], "</section>")

		if depth == 0 {
			if open < 0 {
				break
			}
			pos := i + open
			if !isSectionTagStart(doc, pos) {
				i = pos + len("<section")
				continue
			}
			topStart = pos
			depth = 1
			i = pos + len("<section")
			continue
		}

		// Inside a section: the next structural token decides.
		if closeIdx < 0 {
			break // unterminated section, ignore the tail
		}
		if open >= 0 && open < closeIdx && isSectionTagStart(doc, i+open) {
			depth++
			i += open + len("<section")
			continue
		}
		depth--
		i += closeIdx + len("</section>")
		if depth == 0 {
			spans = append(spans, span{
				id:    sectionID(doc[topStart:i]),
				start: topStart,
				end:   i,
			})
		}
	}

	return spans
}

// isSectionTagStart reports whether pos begins a real <section> opening
// tag rather than a longer element name.
func isSectionTagStart(doc string, pos int) bool {
	after := pos + len("<section")
	if after >= len(doc) {
		return false
	}
	switch doc[after] {
	case ' ', '\t', '\n', '\r', '>', '/':
		return true
	}
	return false
}

// sectionID reads the id attribute from a fragment's opening tag.
func sectionID(fragment string) string {
	gt := strings.IndexByte(fragment, '>')
	if gt < 0 {
		return ""
	}
	m := idAttrPattern.FindStringSubmatch(fragment[:gt+1])
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractFragments scans a document for slide units, classifies each as
// opening, closing, or content, and extracts a best-effort display title
// from the first heading. Duplicate ids make the whole document invalid.
func ExtractFragments(doc string) ([]Fragment, error) {
	spans := scanSections(doc)

	seen := make(map[string]bool, len(spans))
	fragments := make([]Fragment, 0, len(spans))
	for i, s := range spans {
		if s.id != "" {
			if seen[s.id] {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateID, s.id)
			}
			seen[s.id] = true
		}

		html := doc[s.start:s.end]
		fragments = append(fragments, Fragment{
			ID:    s.id,
			Index: i,
			Kind:  classify(s.id),
			HTML:  html,
			Title: extractTitle(html),
		})
	}

	return fragments, nil
}

func classify(id string) Kind {
	switch id {
	case IDOpening:
		return KindOpening
	case IDClosing:
		return KindClosing
	default:
		return KindContent
	}
}

// extractTitle returns the text of the first h1..h3 inside the fragment.
func extractTitle(html string) string {
	m := headingPattern.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	text := tagPattern.ReplaceAllString(m[1], "")
	return strings.TrimSpace(text)
}

// ReplaceFragments replaces each unit whose id matches an update,
// wholesale. Updates whose id matches nothing are no-ops: a fragment the
// model forgot about must not corrupt the rest of the document. The result
// does not depend on the order of the updates.
func ReplaceFragments(doc string, updates []Fragment) string {
	if len(updates) == 0 {
		return doc
	}

	byID := make(map[string]string, len(updates))
	for _, u := range updates {
		if u.ID != "" {
			byID[u.ID] = u.HTML
		}
	}

	var b strings.Builder
	last := 0
	for _, s := range scanSections(doc) {
		replacement, ok := byID[s.id]
		if !ok {
			continue
		}
		b.WriteString(doc[last:s.start])
		b.WriteString(replacement)
		last = s.end
	}
	b.WriteString(doc[last:])
	return b.String()
}

// DeleteFragments removes the units with the given ids entirely, including
// the surrounding line whitespace.
func DeleteFragments(doc string, ids []string) string {
	if len(ids) == 0 {
		return doc
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	var b strings.Builder
	last := 0
	for _, s := range scanSections(doc) {
		if !drop[s.id] {
			continue
		}

		start := s.start
		for start > last && (doc[start-1] == ' ' || doc[start-1] == '\t') {
			start--
		}
		end := s.end
		for end < len(doc) && (doc[end] == ' ' || doc[end] == '\t') {
			end++
		}
		if end < len(doc) && doc[end] == '\n' {
			end++
		}

		b.WriteString(doc[last:start])
		last = end
	}
	b.WriteString(doc[last:])
	return b.String()
}

// RenumberFragments reassigns dense sequential ids to content fragments,
// left to right. Reserved opening/closing fragments keep their ids.
func RenumberFragments(doc string) string {
	var b strings.Builder
	last := 0
	next := 0
	for _, s := range scanSections(doc) {
		if s.id == IDOpening || s.id == IDClosing {
			continue
		}

		newID := fmt.Sprintf("%s%d", contentIDPrefix, next)
		next++
		if s.id == newID {
			continue
		}

		b.WriteString(doc[last:s.start])
		b.WriteString(rewriteID(doc[s.start:s.end], newID))
		last = s.end
	}
	b.WriteString(doc[last:])
	return b.String()
}

// rewriteID replaces (or injects) the id attribute in the fragment's
// opening tag only.
func rewriteID(fragment, newID string) string {
	gt := strings.IndexByte(fragment, '>')
	if gt < 0 {
		return fragment
	}
	openTag := fragment[:gt+1]

	if idAttrPattern.MatchString(openTag) {
		openTag = idAttrPattern.ReplaceAllString(openTag, `id="`+newID+`"`)
	} else {
		openTag = openTag[:len("<section")] + ` id="` + newID + `"` + openTag[len("<section"):]
	}
	return openTag + fragment[gt+1:]
}
