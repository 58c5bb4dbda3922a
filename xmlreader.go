// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"bufio"
	"bytes"
	"io"
)

// eventKind identifies the shape of an xmlEvent.
type eventKind int

const (
	eventStart eventKind = iota
	eventEnd
	eventEmpty
	eventText
	eventEOF
)

// xmlEvent is one token produced by xmlReader.Next. Name and Text
// alias internal buffers and are only valid until the next call to
// Next.
type xmlEvent struct {
	Kind eventKind
	Name []byte
	Text []byte
}

// xmlReader is a forward-only pull tokenizer over the small subset of
// XML 1.0 that a Wikimedia export dump actually uses: elements, text
// content, and the five predefined entities plus numeric character
// references. It deliberately does not check that end tags match
// their start tags, since a worker that begins reading mid-stream (see
// partition.go) has no opening tag for whatever element it lands
// inside of, and the original tool disables exactly this check
// (quick_xml's check_end_names(false)) for the same reason.
//
// xmlReader never validates general well-formedness beyond what it
// needs to tokenize; it trusts the input to be a genuine Wikimedia
// dump.
type xmlReader struct {
	r   *bufio.Reader
	pos int64 // bytes consumed from r

	nameBuf bytes.Buffer
	textBuf bytes.Buffer
}

func newXMLReader(r io.Reader) *xmlReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 1<<20)
	}
	return &xmlReader{r: br}
}

// BufferPosition returns the number of bytes consumed from the
// underlying reader so far, the Go analogue of quick_xml's
// buffer_position(), used by the page extractor to compute absolute
// file offsets for range-ownership decisions (see partition.go).
func (x *xmlReader) BufferPosition() int64 { return x.pos }

func (x *xmlReader) readByte() (byte, error) {
	b, err := x.r.ReadByte()
	if err == nil {
		x.pos++
	}
	return b, err
}

func (x *xmlReader) unreadByte() {
	_ = x.r.UnreadByte()
	x.pos--
}

// Next returns the next event. On reaching end of input it returns an
// eventEOF event with a nil error, matching the original's
// Event::Eof.
func (x *xmlReader) Next() (xmlEvent, error) {
	for {
		b, err := x.readByte()
		if err == io.EOF {
			return xmlEvent{Kind: eventEOF}, nil
		}
		if err != nil {
			return xmlEvent{}, wrapErr(KindIO, err)
		}
		if b != '<' {
			x.unreadByte()
			text, err := x.readText()
			if err != nil {
				return xmlEvent{}, err
			}
			return xmlEvent{Kind: eventText, Text: text}, nil
		}

		peek, err := x.readByte()
		if err != nil {
			if err == io.EOF {
				return xmlEvent{}, wrapErr(KindXML, io.ErrUnexpectedEOF)
			}
			return xmlEvent{}, wrapErr(KindIO, err)
		}
		switch {
		case peek == '?':
			if err := x.skipUntil('>'); err != nil {
				return xmlEvent{}, err
			}
			continue
		case peek == '!':
			if err := x.skipMarkupDecl(); err != nil {
				return xmlEvent{}, err
			}
			continue
		case peek == '/':
			name, err := x.readName()
			if err != nil {
				return xmlEvent{}, err
			}
			if err := x.skipUntil('>'); err != nil {
				return xmlEvent{}, err
			}
			return xmlEvent{Kind: eventEnd, Name: name}, nil
		default:
			x.unreadByte()
			name, empty, err := x.readStartTag()
			if err != nil {
				return xmlEvent{}, err
			}
			if empty {
				return xmlEvent{Kind: eventEmpty, Name: name}, nil
			}
			return xmlEvent{Kind: eventStart, Name: name}, nil
		}
	}
}

func (x *xmlReader) skipUntil(delim byte) error {
	for {
		b, err := x.readByte()
		if err == io.EOF {
			return wrapErr(KindXML, io.ErrUnexpectedEOF)
		}
		if err != nil {
			return wrapErr(KindIO, err)
		}
		if b == delim {
			return nil
		}
	}
}

// skipMarkupDecl consumes a comment (<!-- ... -->), CDATA section
// (<![CDATA[ ... ]]>), or DOCTYPE/other declaration after the leading
// "<!" has already been consumed.
func (x *xmlReader) skipMarkupDecl() error {
	b1, err := x.readByte()
	if err != nil {
		return wrapErr(KindIO, err)
	}
	if b1 == '-' {
		b2, err := x.readByte()
		if err != nil {
			return wrapErr(KindIO, err)
		}
		if b2 == '-' {
			return x.skipComment()
		}
	}
	// DOCTYPE or other bang-declaration: skip to matching '>', not
	// attempting to track nested brackets since dump exports do not
	// carry an internal DTD subset with nested '>' inside it.
	return x.skipUntil('>')
}

func (x *xmlReader) skipComment() error {
	var last2 [2]byte
	for {
		b, err := x.readByte()
		if err == io.EOF {
			return wrapErr(KindXML, io.ErrUnexpectedEOF)
		}
		if err != nil {
			return wrapErr(KindIO, err)
		}
		if b == '>' && last2 == [2]byte{'-', '-'} {
			return nil
		}
		last2[0], last2[1] = last2[1], b
	}
}

func (x *xmlReader) readName() ([]byte, error) {
	x.nameBuf.Reset()
	for {
		b, err := x.readByte()
		if err == io.EOF {
			return nil, wrapErr(KindXML, io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, wrapErr(KindIO, err)
		}
		if isNameByte(b) {
			x.nameBuf.WriteByte(b)
			continue
		}
		x.unreadByte()
		return x.nameBuf.Bytes(), nil
	}
}

func isNameByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == ':' || b == '.':
		return true
	default:
		return false
	}
}

// readStartTag reads a tag name plus attributes (discarded) after the
// opening '<' has been consumed, returning whether it was self-closing
// ("/>").
func (x *xmlReader) readStartTag() ([]byte, bool, error) {
	name, err := x.readName()
	if err != nil {
		return nil, false, err
	}
	for {
		b, err := x.readByte()
		if err == io.EOF {
			return nil, false, wrapErr(KindXML, io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, false, wrapErr(KindIO, err)
		}
		switch b {
		case '>':
			return name, false, nil
		case '/':
			if err := x.skipUntil('>'); err != nil {
				return nil, false, err
			}
			return name, true, nil
		case '"', '\'':
			if err := x.skipUntil(b); err != nil {
				return nil, false, err
			}
		}
	}
}

// readText reads a run of character data up to (not including) the
// next '<', unescaping entities and numeric character references into
// raw UTF-8 bytes.
func (x *xmlReader) readText() ([]byte, error) {
	x.textBuf.Reset()
	for {
		b, err := x.readByte()
		if err == io.EOF {
			return x.textBuf.Bytes(), nil
		}
		if err != nil {
			return nil, wrapErr(KindIO, err)
		}
		if b == '<' {
			x.unreadByte()
			return x.textBuf.Bytes(), nil
		}
		if b == '&' {
			if err := x.readEntity(&x.textBuf); err != nil {
				return nil, err
			}
			continue
		}
		x.textBuf.WriteByte(b)
	}
}

func (x *xmlReader) readEntity(out *bytes.Buffer) error {
	var name bytes.Buffer
	for {
		b, err := x.readByte()
		if err == io.EOF {
			return wrapErr(KindXML, io.ErrUnexpectedEOF)
		}
		if err != nil {
			return wrapErr(KindIO, err)
		}
		if b == ';' {
			break
		}
		name.WriteByte(b)
	}
	ent := name.String()
	switch ent {
	case "amp":
		out.WriteByte('&')
	case "lt":
		out.WriteByte('<')
	case "gt":
		out.WriteByte('>')
	case "quot":
		out.WriteByte('"')
	case "apos":
		out.WriteByte('\'')
	default:
		if len(ent) > 1 && ent[0] == '#' {
			r, ok := decodeNumericRef(ent[1:])
			if ok {
				out.WriteRune(r)
				return nil
			}
		}
		// Unknown entity: emit verbatim, matching the tolerant
		// spirit of this reader (dumps do not define custom
		// entities, so this only matters for malformed input).
		out.WriteByte('&')
		out.WriteString(ent)
		out.WriteByte(';')
	}
	return nil
}

func decodeNumericRef(s string) (rune, bool) {
	var n int64
	if len(s) == 0 {
		return 0, false
	}
	if s[0] == 'x' || s[0] == 'X' {
		for _, c := range s[1:] {
			d, ok := hexDigit(byte(c))
			if !ok {
				return 0, false
			}
			n = n*16 + int64(d)
		}
	} else {
		for _, c := range s {
			if c < '0' || c > '9' {
				return 0, false
			}
			n = n*10 + int64(c-'0')
		}
	}
	return rune(n), true
}

func hexDigit(b byte) (int, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), true
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, true
	default:
		return 0, false
	}
}
