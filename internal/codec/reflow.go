package codec

import "strings"

// reflow squashes all whitespace out of data and re-wraps the remainder
// into fixed-width lines joined by CRLF, each line (including the first)
// prefixed by indent. It mirrors the Python reference implementation's
// line-folding rule for the X-Mailfile header and the payload body: both
// carry opaque base64/token text with no meaningful embedded whitespace,
// so folding never needs to worry about word boundaries.
func reflow(data string, indent string, lineLen int) string {
	squashed := squashWhitespace(data)

	width := lineLen - len(indent)
	if width <= 0 {
		width = lineLen
	}

	var b strings.Builder
	b.WriteString(indent)
	for i := 0; i < len(squashed); i += width {
		if i > 0 {
			b.WriteString("\r\n")
			b.WriteString(indent)
		}
		end := min(i+width, len(squashed))
		b.WriteString(squashed[i:end])
	}
	return b.String()
}

// unfold reverses reflow: for our two fields (metadata token, payload
// token) the folded text carries no significant whitespace at all, so
// unfolding is just whitespace removal.
func unfold(folded string) string {
	return squashWhitespace(folded)
}

func squashWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
