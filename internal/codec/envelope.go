package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// envelope is the parsed shape of one stored RFC2822 message: enough to
// recover the X-Mailfile header (possibly folded across continuation
// lines) and the raw body that follows the blank-line separator.
type envelope struct {
	xMailfile string
	body      []byte
}

// splitEnvelope is a small hand-rolled RFC2822 header/body splitter, in
// the style of a streaming line-oriented mbox reader: it never needs a
// general multipart MIME parser because every object in this format has
// exactly the same fixed header set and a single non-multipart body.
func splitEnvelope(raw []byte) (envelope, error) {
	// Normalize line endings so the line scanner doesn't have to care
	// which one the backend handed back; the engine tolerates bare-LF
	// or CRLF transport (see mailbox contract).
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))

	scanner := bufio.NewScanner(bytes.NewReader(normalized))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var env envelope
	var curName string
	var curValue strings.Builder
	inHeaders := true
	bodyStart := -1
	consumed := 0

	flush := func() {
		if curName == "" {
			return
		}
		if strings.EqualFold(curName, "X-Mailfile") {
			env.xMailfile = curValue.String()
		}
		curName = ""
		curValue.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		consumed += len(line) + 1 // +1 for the newline split away by Scan

		if !inHeaders {
			continue
		}

		if line == "" {
			flush()
			inHeaders = false
			bodyStart = consumed
			continue
		}

		if (line[0] == ' ' || line[0] == '\t') && curName != "" {
			curValue.WriteString(line)
			continue
		}

		flush()

		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return envelope{}, fmt.Errorf("codec: malformed header line %q", line)
		}
		curName = strings.TrimSpace(line[:idx])
		curValue.WriteString(line[idx+1:])
	}
	if err := scanner.Err(); err != nil {
		return envelope{}, fmt.Errorf("codec: scan envelope: %w", err)
	}
	flush()

	if bodyStart < 0 || bodyStart > len(normalized) {
		return envelope{}, fmt.Errorf("codec: no header/body separator found")
	}
	env.body = normalized[bodyStart:]
	return env, nil
}
