// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import "bytes"

// pageRecord is one revision's worth of searchable data, produced by
// pageExtractor.Next. Title, Namespace and RevisionID are plain UTF-8
// strings; Text is the raw unescaped wikitext octets the regex engine
// scans directly, matching the original tool's use of the text event's
// raw bytes rather than a validated string.
type pageRecord struct {
	Title      string
	Namespace  string
	RevisionID string
	Text       []byte
}

// pageTagLen is len("<page>"), used to translate a buffer position
// observed just after reading the <page> start tag back to the
// position of its opening '<', the same arithmetic the original tool
// performs with reader.buffer_position() - b"<page>".len().
const pageTagLen = int64(len("<page>"))

// pageExtractor walks the XML event stream produced by xmlReader and
// yields one pageRecord per <revision> with a non-empty <text>. It
// mirrors search_dump_reader's inner loop in the original tool: skip
// to the next <page>, read <title>/<ns>, then for each <revision> read
// the first <id> and the <text>. A page may hold several matching
// revisions; they are queued in pending and drained one at a time.
type pageExtractor struct {
	x *xmlReader

	restrictNamespaces map[string]bool // nil means no filter

	title     bytes.Buffer
	namespace bytes.Buffer

	pending []pageRecord
}

func newPageExtractor(x *xmlReader, restrictNamespaces map[string]bool) *pageExtractor {
	return &pageExtractor{x: x, restrictNamespaces: restrictNamespaces}
}

// NextPageOffset advances to the start of the next <page> element and
// returns the absolute offset of its opening '<' (relative to wherever
// the underlying stream began). It returns ok=false at EOF. Callers
// that partition a plain file (search.go) call this first to decide
// range ownership before committing to ReadPage.
func (p *pageExtractor) NextPageOffset() (offset int64, ok bool, err error) {
	for {
		ev, err := p.x.Next()
		if err != nil {
			return 0, false, err
		}
		switch ev.Kind {
		case eventEOF:
			return 0, false, nil
		case eventStart:
			if string(ev.Name) == "page" {
				return p.x.BufferPosition() - pageTagLen, true, nil
			}
		case eventEmpty:
			if string(ev.Name) == "page" {
				return 0, false, tagErr(KindUnexpectedEmptyTag, "page")
			}
		}
	}
}

// ReadPage consumes the <page> element most recently entered via
// NextPageOffset, queuing every matching revision it contains. Call
// Next afterwards (possibly several times) to drain them.
func (p *pageExtractor) ReadPage() error {
	p.title.Reset()
	p.namespace.Reset()
	namespaceOK := p.restrictNamespaces == nil

	for {
		ev, err := p.x.Next()
		if err != nil {
			return err
		}
		switch ev.Kind {
		case eventEOF:
			return wrapErr(KindXML, errUnexpectedEOF("page"))
		case eventEnd:
			if string(ev.Name) == "page" {
				return nil
			}
		case eventStart:
			switch string(ev.Name) {
			case "title":
				text, err := p.readTextOnly("title")
				if err != nil {
					return err
				}
				p.title.Reset()
				p.title.Write(text)
			case "ns":
				text, err := p.readTextOnly("ns")
				if err != nil {
					return err
				}
				p.namespace.Reset()
				p.namespace.Write(text)
				if p.restrictNamespaces != nil {
					namespaceOK = p.restrictNamespaces[p.namespace.String()]
					if !namespaceOK {
						return p.skipToPageEnd()
					}
				}
			case "revision":
				rec, has, err := p.readRevision(namespaceOK)
				if err != nil {
					return err
				}
				if has {
					p.pending = append(p.pending, rec)
				}
			}
		}
	}
}

// Next pops the next already-extracted revision record, if any.
func (p *pageExtractor) Next() (pageRecord, bool) {
	if len(p.pending) == 0 {
		return pageRecord{}, false
	}
	rec := p.pending[0]
	p.pending = p.pending[1:]
	return rec, true
}

// readTextOnly reads a single Text event and returns its bytes,
// failing if the tag instead contains child elements or no text at
// all (<tag></tag>) — the Go analogue of read_str_and_then's
// "OnlyTextExpectedInTag" branch.
func (p *pageExtractor) readTextOnly(tag string) ([]byte, error) {
	ev, err := p.x.Next()
	if err != nil {
		return nil, err
	}
	if ev.Kind != eventText {
		return nil, tagErr(KindOnlyTextExpectedInTag, tag)
	}
	text := append([]byte(nil), ev.Text...)
	// Consume the matching end tag.
	end, err := p.x.Next()
	if err != nil {
		return nil, err
	}
	if end.Kind != eventEnd {
		return nil, tagErr(KindOnlyTextExpectedInTag, tag)
	}
	return text, nil
}

// readRevision consumes one <revision> element, capturing only the
// first <id> child (not any nested <contributor><id>) and the <text>
// body, if present and non-empty. namespaceOK gates whether a match is
// even attempted; when false the revision is still walked structurally
// so the reader stays synchronized, but no record is produced.
func (p *pageExtractor) readRevision(namespaceOK bool) (pageRecord, bool, error) {
	var revID bytes.Buffer
	var text []byte
	haveText := false
	haveID := false

	for {
		ev, err := p.x.Next()
		if err != nil {
			return pageRecord{}, false, err
		}
		switch ev.Kind {
		case eventEOF:
			return pageRecord{}, false, wrapErr(KindXML, errUnexpectedEOF("revision"))
		case eventEnd:
			if string(ev.Name) == "revision" {
				if !namespaceOK || !haveText {
					return pageRecord{}, false, nil
				}
				_ = haveID
				return pageRecord{
					Title:      normalizeTitle(p.title.String()),
					Namespace:  p.namespace.String(),
					RevisionID: revID.String(),
					Text:       text,
				}, true, nil
			}
		case eventStart:
			switch string(ev.Name) {
			case "id":
				if !haveID {
					b, err := p.readTextOnly("id")
					if err != nil {
						return pageRecord{}, false, err
					}
					revID.Write(b)
					haveID = true
				} else {
					// A nested id (e.g. contributor/id): skip its
					// text/end without touching revID.
					if _, err := p.readTextOnly("id"); err != nil {
						return pageRecord{}, false, err
					}
				}
			case "text":
				b, err := p.readTextOnly("text")
				if err != nil {
					return pageRecord{}, false, err
				}
				text = b
				haveText = len(b) > 0
			}
		case eventEmpty:
			if string(ev.Name) == "text" {
				// Self-closing <text/>: no content, no match.
				haveText = false
			}
		}
	}
}

// skipToPageEnd discards events until the enclosing </page>, used when
// a page's namespace fails the filter and its revisions must not be
// parsed at all.
func (p *pageExtractor) skipToPageEnd() error {
	depth := 0
	for {
		ev, err := p.x.Next()
		if err != nil {
			return err
		}
		switch ev.Kind {
		case eventEOF:
			return wrapErr(KindXML, errUnexpectedEOF("page"))
		case eventStart:
			if string(ev.Name) == "page" {
				depth++
			}
		case eventEnd:
			if string(ev.Name) == "page" {
				if depth == 0 {
					return nil
				}
				depth--
			}
		}
	}
}

// errUnexpectedEOF signals the stream ended while still inside an open
// element, analogous to quick_xml::Error::UnexpectedEof(tag).
type eofError string

func errUnexpectedEOF(tag string) error { return eofError(tag) }
func (e eofError) Error() string        { return "unexpected eof inside <" + string(e) + ">" }
