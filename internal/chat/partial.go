package chat

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// GenerateRequest is the body posted to the generation endpoint.
type GenerateRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// GenerateResponse is the object the generation stream fills in.
type GenerateResponse struct {
	Message string `json:"message"`
}

// parsePartial interprets a truncated prefix of the stream. It returns
// false while the prefix does not yet describe an object whose fields
// have the expected types.
func parsePartial(prefix []byte) (GenerateResponse, bool) {
	repaired, ok := repairJSON(trimPartialRune(prefix))
	if !ok || !gjson.Valid(repaired) {
		return GenerateResponse{}, false
	}
	doc := gjson.Parse(repaired)
	if !doc.IsObject() {
		return GenerateResponse{}, false
	}
	msg := doc.Get("message")
	if msg.Exists() && msg.Type != gjson.String {
		return GenerateResponse{}, false
	}
	return GenerateResponse{Message: msg.String()}, true
}

// decodeFinal validates the complete body.
func decodeFinal(body []byte) (GenerateResponse, error) {
	if !gjson.ValidBytes(body) {
		return GenerateResponse{}, fmt.Errorf("%w: incomplete or invalid JSON", ErrMalformedResponse)
	}
	msg := gjson.GetBytes(body, "message")
	if !msg.Exists() || msg.Type != gjson.String {
		return GenerateResponse{}, fmt.Errorf("%w: message must be a string", ErrMalformedResponse)
	}
	var out GenerateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return GenerateResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// trimPartialRune drops a UTF-8 sequence cut off at the end of b.
func trimPartialRune(b []byte) string {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return string(b[:i])
		}
		break
	}
	return string(b)
}

// repairJSON closes what a truncated JSON document left open: the string
// value being written, then every enclosing array and object. Keys without
// a value, dangling commas and unfinished literals are cut back to the last
// complete value. It returns false when nothing decodable precedes the cut.
func repairJSON(s string) (string, bool) {
	type frame struct {
		closer byte
		key    bool // next string in this object is a key
	}
	var (
		stack    []frame
		cut      = -1
		cutClose string
	)
	closers := func() string {
		b := make([]byte, 0, len(stack))
		for j := len(stack) - 1; j >= 0; j-- {
			b = append(b, stack[j].closer)
		}
		return string(b)
	}
	mark := func(end int) {
		cut = end
		cutClose = closers()
	}
	inKey := func() bool {
		return len(stack) > 0 && stack[len(stack)-1].closer == '}' && stack[len(stack)-1].key
	}

	i := 0
scan:
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '{':
			stack = append(stack, frame{closer: '}', key: true})
			i++
			mark(i)
		case c == '[':
			stack = append(stack, frame{closer: ']'})
			i++
			mark(i)
		case c == '}' || c == ']':
			if len(stack) == 0 || stack[len(stack)-1].closer != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
			i++
			mark(i)
		case c == ',':
			if len(stack) > 0 && stack[len(stack)-1].closer == '}' {
				stack[len(stack)-1].key = true
			}
			i++
		case c == ':':
			if len(stack) > 0 {
				stack[len(stack)-1].key = false
			}
			i++
		case c == '"':
			key := inKey()
			end, safe, closed := scanString(s, i)
			if !closed {
				if key {
					break scan
				}
				return s[:safe] + `"` + closers(), true
			}
			i = end
			if !key {
				mark(i)
			}
		default:
			if inKey() {
				return "", false
			}
			end := i
			for end < len(s) && isLiteralByte(s[end]) {
				end++
			}
			if end == i {
				return "", false
			}
			if json.Valid([]byte(s[i:end])) {
				i = end
				mark(i)
				continue
			}
			if end == len(s) {
				// unfinished literal such as "tru" or "1e"
				break scan
			}
			return "", false
		}
	}

	if cut < 0 {
		return "", false
	}
	return s[:cut] + cutClose, true
}

// scanString scans the string literal starting at s[start]. It returns the
// index after the closing quote, the longest prefix that can be closed with
// a quote, and whether the literal was terminated.
func scanString(s string, start int) (end, safe int, closed bool) {
	i := start + 1
	safe = i
	for i < len(s) {
		switch s[i] {
		case '"':
			return i + 1, i, true
		case '\\':
			n := 2
			if i+1 < len(s) && s[i+1] == 'u' {
				n = 6
			}
			if i+n > len(s) {
				return len(s), safe, false
			}
			i += n
		default:
			i++
		}
		safe = i
	}
	return len(s), safe, false
}

func isLiteralByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '+' || c == '.':
		return true
	}
	return false
}
