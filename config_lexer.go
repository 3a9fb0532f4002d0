package secobj

import (
	"strings"
)

// maxTokenLen bounds strings and names in a component configuration.
const maxTokenLen = 512

type tokenKind int

const (
	tokString tokenKind = iota
	tokName
	tokEOF
	tokUnknown
	tokUnterminated
	tokTooLong
	tokSet
	tokSemi
	tokComponent
	tokVendor
	tokServer
	tokUser
	tokKey
	tokIV
	tokVerbose
)

func (k tokenKind) String() string {
	switch k {
	case tokString:
		return "String"
	case tokName:
		return "Name"
	case tokEOF:
		return "EOF"
	case tokUnknown:
		return "Unknown"
	case tokUnterminated:
		return "Unterm"
	case tokTooLong:
		return "TooLong"
	case tokSet:
		return "Set"
	case tokSemi:
		return "Semi"
	case tokComponent:
		return "Component"
	case tokVendor:
		return "Vendor"
	case tokServer:
		return "Server"
	case tokUser:
		return "User"
	case tokKey:
		return "Key"
	case tokIV:
		return "Iv"
	case tokVerbose:
		return "Verbose"
	default:
		return "?"
	}
}

// isRecordKeyword reports whether k may start a "keyword = string" entry.
func (k tokenKind) isRecordKeyword() bool {
	switch k {
	case tokComponent, tokVendor, tokServer, tokUser, tokKey, tokIV:
		return true
	}
	return false
}

type token struct {
	kind tokenKind
	text string
	line int
}

// image is the token text used in diagnostics.
func (t token) image() string {
	switch t.kind {
	case tokString, tokName, tokUnknown:
		if t.text == "" {
			return "<Empty>"
		}
		return t.text
	default:
		return t.kind.String()
	}
}

var keywords = map[string]tokenKind{
	"COMPONENT": tokComponent,
	"VENDOR":    tokVendor,
	"SERVER":    tokServer,
	"USER":      tokUser,
	"KEY":       tokKey,
	"IV":        tokIV,
	"VERBOSE":   tokVerbose,
}

// keyword maps a name token to its keyword kind. Keywords are case
// insensitive; any other name stays a tokName.
func keyword(t token) token {
	if t.kind != tokName {
		return t
	}
	if k, ok := keywords[strings.ToUpper(t.text)]; ok {
		t.kind = k
	}
	return t
}

// lexer splits a component configuration into tokens. Blanks, newlines,
// /* block */ and // line comments separate tokens; lines are counted
// everywhere, including inside comments and strings.
type lexer struct {
	src  []byte
	pos  int
	line int
}

func newLexer(src []byte) *lexer {
	return &lexer{src: src, line: 1}
}

func (l *lexer) peek(off int) (byte, bool) {
	if l.pos+off >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos+off], true
}

// skipBlank consumes blanks and comments. It returns false when a block
// comment runs into end of input.
func (l *lexer) skipBlank() bool {
	for {
		c, ok := l.peek(0)
		if !ok {
			return true
		}
		switch c {
		case ' ', '\t', '\r':
			l.pos++
		case '\n':
			l.line++
			l.pos++
		case '/':
			next, _ := l.peek(1)
			switch next {
			case '*':
				l.pos += 2
				if !l.skipBlockComment() {
					return false
				}
			case '/':
				l.pos += 2
				for l.pos < len(l.src) && l.src[l.pos] != '\n' {
					l.pos++
				}
			default:
				return true
			}
		default:
			return true
		}
	}
}

func (l *lexer) skipBlockComment() bool {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		if c == '\n' {
			l.line++
		}
		if c == '*' {
			if next, ok := l.peek(0); ok && next == '/' {
				l.pos++
				return true
			}
		}
	}
	return false
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// next returns the next raw token. Names are not yet mapped to keywords.
func (l *lexer) next() token {
	if !l.skipBlank() {
		return token{kind: tokUnterminated, line: l.line}
	}
	t := token{line: l.line}
	c, ok := l.peek(0)
	if !ok {
		t.kind = tokEOF
		return t
	}

	switch {
	case c == '"':
		l.pos++
		var sb strings.Builder
		for {
			c, ok := l.peek(0)
			if !ok {
				t.kind = tokUnterminated
				return t
			}
			l.pos++
			if c == '"' {
				break
			}
			if c == '\\' {
				esc, ok := l.peek(0)
				if !ok {
					t.kind = tokUnterminated
					return t
				}
				l.pos++
				c = esc
			}
			if c == '\n' {
				l.line++
			}
			if sb.Len() >= maxTokenLen {
				t.kind = tokTooLong
				return t
			}
			sb.WriteByte(c)
		}
		t.kind = tokString
		t.text = sb.String()
	case isAlnum(c):
		start := l.pos
		for l.pos < len(l.src) && isAlnum(l.src[l.pos]) {
			l.pos++
		}
		if l.pos-start > maxTokenLen {
			t.kind = tokTooLong
			return t
		}
		t.kind = tokName
		t.text = string(l.src[start:l.pos])
	case c == '=' || c == ':':
		l.pos++
		t.kind = tokSet
	case c == ';':
		l.pos++
		t.kind = tokSemi
	default:
		l.pos++
		t.kind = tokUnknown
		t.text = string(c)
	}
	return t
}
