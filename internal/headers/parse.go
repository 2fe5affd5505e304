package headers

import (
	"strings"
)

const (
	lineSep  = "\r\n"
	fieldSep = ": "
)

// Parse reads a raw header block, as returned by getAllResponseHeaders.
// Each CRLF delimited line is split at the first ": ". Lines without the
// separator, or with an empty name, are skipped.
func Parse(raw string) *Headers {
	h := &Headers{}
	if raw == "" {
		return h
	}
	for _, line := range strings.Split(raw, lineSep) {
		idx := strings.Index(line, fieldSep)
		if idx <= 0 {
			continue
		}
		h.Append(line[:idx], line[idx+len(fieldSep):])
	}
	return h
}

// Format serializes h into a header block that [Parse] reads back.
// Every line, including the last one, is terminated by CRLF.
func (h *Headers) Format() string {
	var sb strings.Builder
	h.Range(func(k, v string) bool {
		sb.WriteString(k)
		sb.WriteString(fieldSep)
		sb.WriteString(v)
		sb.WriteString(lineSep)
		return true
	})
	return sb.String()
}
