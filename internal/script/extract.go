// Package script turns raw episode transcripts into per-character training
// text.
//
// A transcript is split into fragments (text nodes for HTML, speaker-labelled
// paragraphs for plain text). A fragment belongs to a character when it
// starts with the character's name, compared case-insensitively. The
// utterance is whatever follows the first colon; stage directions in
// parentheses or square brackets are removed and whitespace is collapsed.
//
// When a fragment starts with the name but has no colon at all, everything
// after the name is taken as the utterance. This over-matches fragments such
// as "PICARDS" and is kept on purpose so that corpora built from older
// transcripts stay identical.
package script

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Format selects how a [Document] is split into fragments.
type Format int

const (
	// FormatAuto sniffs the content type from the first bytes of the text.
	FormatAuto Format = iota
	// FormatHTML treats every text node as one fragment.
	FormatHTML
	// FormatText treats every speaker-labelled paragraph as one fragment.
	FormatText
)

// String implements [fmt.Stringer].
func (f Format) String() string {
	switch f {
	case FormatHTML:
		return "html"
	case FormatText:
		return "text"
	default:
		return "auto"
	}
}

// Document is one raw transcript.
type Document struct {
	// Name identifies the document in logs and errors, usually a file name.
	Name string
	Text string
	// Format defaults to FormatAuto.
	Format Format
}

func (d Document) format() Format {
	if d.Format != FormatAuto {
		return d.Format
	}
	head := d.Text
	if len(head) > 512 {
		head = head[:512]
	}
	if strings.HasPrefix(http.DetectContentType([]byte(head)), "text/html") {
		return FormatHTML
	}
	return FormatText
}

var (
	// bracketSpan matches a bracketed span that contains no other bracket,
	// so repeated application removes nested spans from the inside out.
	bracketSpan = regexp.MustCompile(`[(\[][^()\[\]]*[)\]]`)

	// speakerLabel matches the start of a plain-text dialogue line such as
	// "PICARD:" or "RIKER [OC]:".
	speakerLabel = regexp.MustCompile(`^[ \t]*\p{Lu}[\p{Lu}\p{N} .'\-]*(\[[^\]]*\])?[ \t]*:`)

	newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")
)

// ExtractLines returns the cleaned dialogue lines spoken by character in doc,
// in document order. Fragments that are not valid UTF-8 are skipped.
func ExtractLines(doc Document, character string) []string {
	if strings.TrimSpace(character) == "" {
		return nil
	}
	var lines []string
	for _, frag := range Fragments(doc) {
		if !utf8.ValidString(frag) {
			slog.Debug("script: skipping fragment with invalid utf-8",
				"document", doc.Name, "character", character)
			continue
		}
		if line, ok := extractFragment(frag, character); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// Fragments splits doc into the units that are matched against a speaker
// name.
func Fragments(doc Document) []string {
	if doc.format() == FormatHTML {
		return htmlFragments(doc.Text)
	}
	return textFragments(doc.Text)
}

func extractFragment(frag, character string) (string, bool) {
	frag = strings.TrimLeftFunc(newlines.Replace(frag), unicode.IsSpace)
	if len(frag) < len(character) || !strings.EqualFold(frag[:len(character)], character) {
		return "", false
	}

	var utterance string
	if i := strings.IndexByte(frag, ':'); i >= 0 {
		utterance = frag[i+1:]
	} else {
		utterance = frag[len(character):]
	}

	line := strings.Join(strings.Fields(StripDirections(utterance)), " ")
	return line, line != ""
}

// StripDirections removes every parenthesised or square-bracketed span,
// innermost first, and then drops any bracket left unmatched.
func StripDirections(s string) string {
	for {
		next := bracketSpan.ReplaceAllString(s, " ")
		if next == s {
			break
		}
		s = next
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', '[', ']':
			return -1
		}
		return r
	}, s)
}

// htmlFragments returns every text node outside script and style elements.
func htmlFragments(text string) []string {
	z := html.NewTokenizer(strings.NewReader(text))
	var (
		out  []string
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way the usable text is collected.
			return out
		case html.StartTagToken:
			if a := z.Token().DataAtom; a == atom.Script || a == atom.Style {
				skip++
			}
		case html.EndTagToken:
			if a := z.Token().DataAtom; (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if data := z.Token().Data; strings.TrimSpace(data) != "" {
				out = append(out, data)
			}
		}
	}
}

// textFragments groups plain-text lines into paragraphs. A paragraph ends at
// a blank line or where the next speaker label begins.
func textFragments(text string) []string {
	var (
		out []string
		cur []string
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, "\n"))
			cur = cur[:0]
		}
	}

	for line := range strings.Lines(text) {
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case speakerLabel.MatchString(line):
			flush()
			cur = append(cur, line)
		default:
			cur = append(cur, line)
		}
	}
	flush()
	return out
}
