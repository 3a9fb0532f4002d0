package secobj

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/golang/glog"
)

// Component configuration grammar:
//
//	config    := component*
//	component := "Component" "=" STRING
//	             "Vendor" "=" STRING
//	             "Server" "=" STRING
//	             "User"   "=" STRING
//	             "Key"    "=" HEXSTRING
//	             [ "Iv" "=" HEXSTRING ]
//
// ":" may replace "=". A "Verbose" keyword may appear before any entry and
// turns on tracing. End of input is accepted after a complete record only.

// configParser is a recursive descent parser over lexer tokens.
type configParser struct {
	lex     *lexer
	name    string
	keySize KeySize
	trace   bool

	tokLine int
	verbose bool
	comps   []*Component
}

// parseConfig reads a whole configuration. On error no component is
// returned.
func parseConfig(r io.Reader, name string, keySize KeySize, trace bool) ([]*Component, bool, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, false, NewIOError("read", name, err)
	}
	p := &configParser{
		lex:     newLexer(src),
		name:    name,
		keySize: keySize,
		trace:   trace,
		tokLine: 1,
	}
	if err := p.parse(); err != nil {
		return nil, p.verbose, err
	}
	return p.comps, p.verbose, nil
}

func (p *configParser) tracef(format string, args ...any) {
	if p.trace || p.verbose {
		glog.Infof(format, args...)
	}
}

func (p *configParser) next() token {
	t := keyword(p.lex.next())
	p.tokLine = t.line
	return t
}

func (p *configParser) errorf(code ParseErrorCode, t token) error {
	e := &ParseError{Name: p.name, Line: p.tokLine, Code: code}
	if t.kind == tokString || t.kind == tokName || t.kind == tokUnknown {
		e.Token = t.image()
	}
	return e
}

// lexical errors take precedence over grammar errors
func (p *configParser) lexical(t token) error {
	switch t.kind {
	case tokUnterminated:
		return p.errorf(ParseUnterminated, t)
	case tokTooLong:
		return p.errorf(ParseTokenTooLong, t)
	}
	return nil
}

// entry reads one `keyword = "value"` pair. eof is true when input ends
// before the keyword.
func (p *configParser) entry() (kw tokenKind, value string, eof bool, err error) {
	t := p.next()
	for t.kind == tokVerbose {
		p.verbose = true
		t = p.next()
	}
	if t.kind == tokEOF {
		return 0, "", true, nil
	}
	if err := p.lexical(t); err != nil {
		return 0, "", false, err
	}
	if !t.kind.isRecordKeyword() {
		return 0, "", false, p.errorf(ParseExpectSection, t)
	}
	kw = t.kind

	t = p.next()
	if t.kind == tokEOF {
		return 0, "", false, p.errorf(ParseUnexpectedEOF, t)
	}
	if err := p.lexical(t); err != nil {
		return 0, "", false, err
	}
	if t.kind != tokSet {
		return 0, "", false, p.errorf(ParseExpectSet, t)
	}

	t = p.next()
	if t.kind == tokEOF {
		return 0, "", false, p.errorf(ParseUnexpectedEOF, t)
	}
	if err := p.lexical(t); err != nil {
		return 0, "", false, err
	}
	if t.kind != tokString {
		return 0, "", false, p.errorf(ParseExpectString, t)
	}
	return kw, t.text, false, nil
}

// expect reads a mandatory entry of kind want.
func (p *configParser) expect(want tokenKind, code ParseErrorCode) (string, error) {
	kw, value, eof, err := p.entry()
	if err != nil {
		return "", err
	}
	if eof {
		return "", &ParseError{Name: p.name, Line: p.tokLine, Code: ParseUnexpectedEOF}
	}
	if kw != want {
		return "", &ParseError{Name: p.name, Line: p.tokLine, Code: code, Token: kw.String()}
	}
	return value, nil
}

// push appends a new component. The first declaration of a name wins.
func (p *configParser) push(name string) (*Component, error) {
	for _, c := range p.comps {
		if c.Name == name {
			return nil, &ParseError{Name: p.name, Line: p.tokLine, Code: ParseDuplicateComponent, Token: name}
		}
	}
	c := &Component{Name: name}
	p.comps = append(p.comps, c)
	p.tracef("Component : %s", name)
	return c, nil
}

// decodeHex decodes a key or IV string of exactly n bytes.
func (p *configParser) decodeHex(s string, n int) ([]byte, error) {
	if len(s) != 2*n {
		return nil, &ParseError{Name: p.name, Line: p.tokLine, Code: ParseBadKeyLength, Token: s}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &ParseError{Name: p.name, Line: p.tokLine, Code: ParseKeyNotHex, Token: s}
	}
	return b, nil
}

func (p *configParser) parse() error {
	kw, value, eof, err := p.entry()
	if err != nil {
		return err
	}
	if eof {
		return nil
	}
	if kw != tokComponent {
		return &ParseError{Name: p.name, Line: p.tokLine, Code: ParseExpectComponent, Token: kw.String()}
	}
	comp, err := p.push(value)
	if err != nil {
		return err
	}

	for {
		if comp.Vendor, err = p.expect(tokVendor, ParseExpectVendor); err != nil {
			return err
		}
		if comp.Server, err = p.expect(tokServer, ParseExpectServer); err != nil {
			return err
		}
		if comp.UserAuth, err = p.expect(tokUser, ParseExpectUser); err != nil {
			return err
		}
		keyHex, err := p.expect(tokKey, ParseExpectKey)
		if err != nil {
			return err
		}
		if comp.Key, err = p.decodeHex(keyHex, int(p.keySize)); err != nil {
			return err
		}
		p.tracef("Key       : %s", fingerprint(comp.Key))

		kw, value, eof, err := p.entry()
		if err != nil {
			return err
		}
		if eof {
			return nil
		}
		switch kw {
		case tokComponent:
		case tokIV:
			if comp.IV, err = p.decodeHex(value, BlockSize); err != nil {
				return err
			}
			p.tracef("Iv        : %s", fingerprint(comp.IV))

			kw, value, eof, err = p.entry()
			if err != nil {
				return err
			}
			if eof {
				return nil
			}
			if kw != tokComponent {
				return &ParseError{Name: p.name, Line: p.tokLine, Code: ParseExpectComponent, Token: kw.String()}
			}
		default:
			return &ParseError{Name: p.name, Line: p.tokLine, Code: ParseExpectComponentOrIV, Token: kw.String()}
		}
		if comp, err = p.push(value); err != nil {
			return err
		}
	}
}

// fingerprint renders key material for traces without revealing it.
func fingerprint(b []byte) string {
	if len(b) == 0 {
		return "None"
	}
	if len(b) <= 4 {
		return fmt.Sprintf("%x", b)
	}
	return fmt.Sprintf("%x..(%d bytes)", b[:2], len(b))
}
