package repair

import "strings"

// lexState tracks whether the scan position is inside a key string, inside a
// value string, immediately after a backslash, or between tokens.
type lexState int

const (
	stateOutside lexState = iota
	stateInKey
	stateInValue
	stateEscaped
)

// lexer is a minimal JSON string lexer. It exists for one purpose: knowing,
// at any byte offset, whether the scanner sits inside a key or a value string
// and which containers are still open. That is what lets normalization treat
// a quote followed by non-structural text as interior rather than
// terminating.
type lexer struct {
	state     lexState
	retState  lexState
	open      []byte // stack of '{' and '['
	expectKey bool
}

func (lx *lexer) step(s string, i int) {
	c := s[i]

	switch lx.state {
	case stateEscaped:
		lx.state = lx.retState

	case stateInKey:
		switch c {
		case '\\':
			lx.retState = stateInKey
			lx.state = stateEscaped
		case '"':
			if nextNonSpace(s, i+1) == ':' {
				lx.state = stateOutside
			}
		}

	case stateInValue:
		switch c {
		case '\\':
			lx.retState = stateInValue
			lx.state = stateEscaped
		case '"':
			if isValueTerminator(nextNonSpace(s, i+1)) {
				lx.state = stateOutside
			}
		}

	case stateOutside:
		switch c {
		case '"':
			if lx.expectKey {
				lx.state = stateInKey
			} else {
				lx.state = stateInValue
			}
		case '{':
			lx.open = append(lx.open, '{')
			lx.expectKey = true
		case '[':
			lx.open = append(lx.open, '[')
			lx.expectKey = false
		case '}', ']':
			if n := len(lx.open); n > 0 {
				lx.open = lx.open[:n-1]
			}
		case ':':
			lx.expectKey = false
		case ',':
			lx.expectKey = len(lx.open) > 0 && lx.open[len(lx.open)-1] == '{'
		}
	}
}

// Normalize rewrites near-JSON into parseable JSON: bare object keys at an
// entry position are quoted, and quote characters occurring inside an open
// string are escaped. A quote inside a value terminates the string only when
// the next non-space byte is structural (',', '}', ']' or end of input); a
// quote inside a key terminates it only when followed by ':'.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	var lx lexer
	i := 0
	for i < len(s) {
		c := s[i]

		if lx.state == stateOutside && lx.expectKey && isBareKeyStart(c) {
			j := i
			for j < len(s) && isBareKeyByte(s[j]) {
				j++
			}
			if nextNonSpace(s, j) == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
				i = j
				continue
			}
		}

		if lx.state == stateInKey || lx.state == stateInValue {
			switch c {
			case '\n':
				b.WriteString(`\n`)
				i++
				continue
			case '\r':
				b.WriteString(`\r`)
				i++
				continue
			case '\t':
				b.WriteString(`\t`)
				i++
				continue
			}
		}

		if c == '"' && (lx.state == stateInKey || lx.state == stateInValue) {
			terminating := false
			if lx.state == stateInKey {
				terminating = nextNonSpace(s, i+1) == ':'
			} else {
				terminating = isValueTerminator(nextNonSpace(s, i+1))
			}
			if !terminating {
				b.WriteString(`\"`)
				i++
				continue
			}
		}

		lx.step(s, i)
		b.WriteByte(c)
		i++
	}

	return b.String()
}

func nextNonSpace(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return s[i]
		}
	}
	return 0
}

func isValueTerminator(c byte) bool {
	return c == ',' || c == '}' || c == ']' || c == 0
}

func isBareKeyStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isBareKeyByte(c byte) bool {
	return isBareKeyStart(c) || (c >= '0' && c <= '9')
}
