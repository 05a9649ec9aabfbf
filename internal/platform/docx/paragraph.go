package docx

import (
	"bytes"
	"encoding/xml"
	"html"
	"regexp"
	"strings"
)

// textRun matches a <w:t> element. Self-closing runs match the first
// alternative and carry no text; otherwise group 2 holds the run's text.
var textRun = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?/>|<w:t(\s[^>/]*)?>(.*?)</w:t>`)

func emptyRun(m []byte) bool { return bytes.HasSuffix(m, []byte("/>")) }

// span is the byte range of one <w:p> element inside the body.
type span struct{ start, end int }

// paragraphSpans finds top-level <w:p> elements. Paragraphs nested in text
// boxes are part of their enclosing span. Self-closing <w:p/> holds no text
// and is skipped.
func paragraphSpans(body []byte) []span {
	var spans []span
	depth, start := 0, 0
	for i := 0; i < len(body); {
		switch {
		case bytes.HasPrefix(body[i:], []byte("</w:p>")):
			if depth > 0 {
				depth--
				if depth == 0 {
					spans = append(spans, span{start, i + len("</w:p>")})
				}
			}
			i += len("</w:p>")
		case isParagraphOpen(body, i):
			end := bytes.IndexByte(body[i:], '>')
			if end < 0 {
				return spans
			}
			if body[i+end-1] != '/' {
				if depth == 0 {
					start = i
				}
				depth++
			}
			i += end + 1
		default:
			i++
		}
	}
	return spans
}

func isParagraphOpen(body []byte, i int) bool {
	if !bytes.HasPrefix(body[i:], []byte("<w:p")) || i+4 >= len(body) {
		return false
	}
	switch body[i+4] {
	case '>', ' ', '/', '\t', '\n', '\r':
		return true
	}
	return false
}

// ParagraphText returns the concatenated, unescaped text of every run in a
// paragraph.
func ParagraphText(para []byte) string {
	var sb strings.Builder
	for _, m := range textRun.FindAllSubmatch(para, -1) {
		if emptyRun(m[0]) {
			continue
		}
		sb.WriteString(html.UnescapeString(string(m[2])))
	}
	return sb.String()
}

// Paragraphs returns the text of every paragraph in body, table cell
// paragraphs included, in document order.
func Paragraphs(body []byte) []string {
	spans := paragraphSpans(body)
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, ParagraphText(body[s.start:s.end]))
	}
	return out
}

// RewriteParagraphs calls fn with the text of each paragraph. When fn
// reports a change the paragraph's text is collapsed into its first run,
// which keeps that run's formatting, and the remaining runs are emptied.
func RewriteParagraphs(body []byte, fn func(text string) (string, bool)) []byte {
	spans := paragraphSpans(body)
	if len(spans) == 0 {
		return body
	}

	var out bytes.Buffer
	out.Grow(len(body))
	last := 0
	for _, s := range spans {
		para := body[s.start:s.end]
		updated, changed := fn(ParagraphText(para))
		out.Write(body[last:s.start])
		if changed {
			out.Write(setParagraphText(para, updated))
		} else {
			out.Write(para)
		}
		last = s.end
	}
	out.Write(body[last:])
	return out.Bytes()
}

func setParagraphText(para []byte, text string) []byte {
	first := true
	return textRun.ReplaceAllFunc(para, func(m []byte) []byte {
		if emptyRun(m) {
			return m
		}
		if !first {
			return []byte("<w:t></w:t>")
		}
		first = false
		return []byte(`<w:t xml:space="preserve">` + escape(text) + `</w:t>`)
	})
}

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
