// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"bytes"
	"regexp"
)

// ColorChoice controls whether matchFormatter emits ANSI escape
// sequences around titles, revision ids, and matched text.
type ColorChoice int

const (
	ColorNever ColorChoice = iota
	ColorAlways
	ColorAuto
)

const (
	ansiReset  = "\x1b[0m"
	ansiCyan   = "\x1b[36m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

// matchFormatter writes colorized, line-oriented match output for one
// revision into buf. Its algorithm is a direct port of find_in_text
// from the original wdgrep implementation: it walks matches in order,
// tracks the byte offset after the last one, and uses the nearest
// preceding/following newline to decide whether a match starts a new
// output line.
type matchFormatter struct {
	color ColorChoice
}

func newMatchFormatter(color ColorChoice) *matchFormatter {
	return &matchFormatter{color: color}
}

func (f *matchFormatter) setColor(buf *bytes.Buffer, code string) {
	if f.color == ColorNever {
		return
	}
	buf.WriteString(ansiReset)
	buf.WriteString(code)
}

func (f *matchFormatter) setPlain(buf *bytes.Buffer) {
	if f.color == ColorNever {
		return
	}
	buf.WriteString(ansiReset)
}

// WriteTitleOnly appends a single "title@revision\n" line if re
// matches anywhere in text, and nothing otherwise — the title-only
// mode used when SearchOptions.OnlyPrintTitleAndRevision is set.
func (f *matchFormatter) WriteTitleOnly(buf *bytes.Buffer, title, revisionID string, text []byte, re *regexp.Regexp) {
	if !re.Match(text) {
		return
	}
	f.setColor(buf, ansiCyan)
	buf.WriteString(title)
	f.setPlain(buf)
	buf.WriteByte('@')
	f.setColor(buf, ansiYellow)
	buf.WriteString(revisionID)
	f.setPlain(buf)
	buf.WriteByte('\n')
}

// WriteMatches appends the grep-style colored match block for one
// revision's text. It writes nothing if there are no matches.
func (f *matchFormatter) WriteMatches(buf *bytes.Buffer, title, revisionID string, text []byte, re *regexp.Regexp) {
	matches := re.FindAllIndex(text, -1)
	if len(matches) == 0 {
		return
	}

	lastMatchEnd := 0
	for i, m := range matches {
		start, end := m[0], m[1]
		if i == 0 {
			f.setColor(buf, ansiCyan)
			buf.WriteString(title)
			f.setPlain(buf)
			buf.WriteByte('@')
			f.setColor(buf, ansiYellow)
			buf.WriteString(revisionID)
			buf.WriteByte('\n')
			f.setPlain(buf)
		}

		between := text[lastMatchEnd:start]
		if nl := bytes.LastIndexByte(between, '\n'); nl < 0 {
			// Match starts on the same line the previous one ended.
			buf.Write(between)
		} else {
			// Match starts on a new line: finish the previous line
			// (unless this is the first match), then write the
			// portion of the current line preceding the match.
			if i != 0 {
				if fin := bytes.IndexByte(between, '\n'); fin >= 0 {
					buf.Write(between[:fin])
					buf.WriteByte('\n')
				}
			}
			buf.Write(between[nl+1:])
		}

		// A match ending exactly on a trailing newline does not
		// color (or consume) that newline, so the next line is
		// printed untouched.
		actualEnd := end
		if start < end && text[end-1] == '\n' {
			actualEnd = end - 1
		}
		f.setColor(buf, ansiRed)
		buf.Write(text[start:actualEnd])
		f.setPlain(buf)
		lastMatchEnd = actualEnd
	}

	// Print the remainder of the last matching line.
	rest := text[lastMatchEnd:]
	if nl := bytes.IndexByte(rest, '\n'); nl >= 0 {
		buf.Write(rest[:nl])
	} else {
		buf.Write(rest)
	}
	buf.WriteByte('\n')
	// Blank line separating this revision's block from the next.
	buf.WriteByte('\n')
}
