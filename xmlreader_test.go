// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"strings"
	"testing"
)

func readAllEvents(t *testing.T, in string) []xmlEvent {
	t.Helper()
	x := newXMLReader(strings.NewReader(in))
	var out []xmlEvent
	for {
		ev, err := x.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, xmlEvent{Kind: ev.Kind, Name: append([]byte(nil), ev.Name...), Text: append([]byte(nil), ev.Text...)})
		if ev.Kind == eventEOF {
			return out
		}
	}
}

func TestXMLReaderBasicEvents(t *testing.T) {
	events := readAllEvents(t, `<page><title>Foo</title><ns>0</ns></page>`)
	wantKinds := []eventKind{eventStart, eventStart, eventText, eventEnd, eventStart, eventText, eventEnd, eventEnd, eventEOF}
	if len(events) != len(wantKinds) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(wantKinds), events)
	}
	for i, k := range wantKinds {
		if events[i].Kind != k {
			t.Errorf("event %d: got kind %v, want %v", i, events[i].Kind, k)
		}
	}
	if string(events[2].Text) != "Foo" {
		t.Errorf("title text: got %q, want %q", events[2].Text, "Foo")
	}
}

func TestXMLReaderEmptyTag(t *testing.T) {
	events := readAllEvents(t, `<text xml:space="preserve" />`)
	if events[0].Kind != eventEmpty || string(events[0].Name) != "text" {
		t.Fatalf("got %+v, want empty <text>", events[0])
	}
}

func TestXMLReaderEntities(t *testing.T) {
	events := readAllEvents(t, `<a>&amp;&lt;&gt;&quot;&apos;&#65;&#x42;</a>`)
	if events[1].Kind != eventText {
		t.Fatalf("got %+v, want text event", events[1])
	}
	want := `&<>"'AB`
	if string(events[1].Text) != want {
		t.Errorf("got %q, want %q", events[1].Text, want)
	}
}

func TestXMLReaderUnknownEntityPassesThrough(t *testing.T) {
	events := readAllEvents(t, `<a>&foo;</a>`)
	if string(events[1].Text) != "&foo;" {
		t.Errorf("got %q, want %q", events[1].Text, "&foo;")
	}
}

func TestXMLReaderSkipsCommentsAndProlog(t *testing.T) {
	events := readAllEvents(t, `<?xml version="1.0"?><!-- a comment --><page></page>`)
	if events[0].Kind != eventStart || string(events[0].Name) != "page" {
		t.Fatalf("got %+v, want <page> start", events[0])
	}
}

func TestXMLReaderBufferPositionAdvances(t *testing.T) {
	x := newXMLReader(strings.NewReader(`<page><title>Foo</title></page>`))
	if _, err := x.Next(); err != nil {
		t.Fatal(err)
	}
	pos := x.BufferPosition()
	if pos != int64(len("<page>")) {
		t.Errorf("got position %d, want %d", pos, len("<page>"))
	}
}

func TestXMLReaderDoesNotRequireMatchingEndNames(t *testing.T) {
	// Mid-stream workers start without an opening tag for whatever
	// element they land inside; end-name checking must stay off.
	events := readAllEvents(t, `</revision></page>`)
	if events[0].Kind != eventEnd || string(events[0].Name) != "revision" {
		t.Fatalf("got %+v", events[0])
	}
	if events[1].Kind != eventEnd || string(events[1].Name) != "page" {
		t.Fatalf("got %+v", events[1])
	}
}
