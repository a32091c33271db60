package email

import (
	"bytes"
	"strings"
)

// RemoveQuotedPrintableSoftBreaks drops every "=\r\n" soft line break
// from the body and zero-pads the result back to the original length, so
// indices computed against the cleaned body stay inside the same buffer
// the circuit sees.
func RemoveQuotedPrintableSoftBreaks(body []byte) []byte {
	result := make([]byte, 0, len(body))
	for i := 0; i < len(body); {
		if i+3 <= len(body) && body[i] == '=' && body[i+1] == '\r' && body[i+2] == '\n' {
			i += 3
			continue
		}
		result = append(result, body[i])
		i++
	}
	return append(result, make([]byte, len(body)-len(result))...)
}

// FindIndexInBody returns the byte offset of the first occurrence of
// pattern in body, or 0 when the pattern is empty or absent.
func FindIndexInBody(body []byte, pattern string) int {
	if len(pattern) == 0 {
		return 0
	}
	idx := bytes.Index(body, []byte(pattern))
	if idx < 0 {
		return 0
	}
	return idx
}

func stripSoftBreaks(s string) string {
	return strings.ReplaceAll(s, "=\r\n", "")
}
