// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"context"
	"testing"
)

// collectingSink records every WriteRevision call, in arrival order,
// for assertions in sortedOutputStage tests.
type collectingSink struct {
	blocks [][]byte
}

func (c *collectingSink) WriteRevision(_, _ string, block []byte) error {
	cp := append([]byte(nil), block...)
	c.blocks = append(c.blocks, cp)
	return nil
}

func TestSortedOutputStageOrdersByKey(t *testing.T) {
	stage := newSortedOutputStage(context.Background())

	if err := stage.WriteRevision("Banana", "2", []byte("banana-block")); err != nil {
		t.Fatal(err)
	}
	if err := stage.WriteRevision("Apple", "1", []byte("apple-block")); err != nil {
		t.Fatal(err)
	}
	if err := stage.WriteRevision("Cherry", "3", []byte("cherry-block")); err != nil {
		t.Fatal(err)
	}

	sink := &collectingSink{}
	if err := stage.Flush(context.Background(), sink); err != nil {
		t.Fatal(err)
	}

	if len(sink.blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(sink.blocks))
	}
	want := []string{"apple-block", "banana-block", "cherry-block"}
	for i, w := range want {
		if string(sink.blocks[i]) != w {
			t.Errorf("block %d: got %q, want %q", i, sink.blocks[i], w)
		}
	}
}

func TestSortedOutputStageEmpty(t *testing.T) {
	stage := newSortedOutputStage(context.Background())
	sink := &collectingSink{}
	if err := stage.Flush(context.Background(), sink); err != nil {
		t.Fatal(err)
	}
	if len(sink.blocks) != 0 {
		t.Errorf("got %d blocks, want 0", len(sink.blocks))
	}
}

func TestRevisionBlockRoundTrip(t *testing.T) {
	rb := revisionBlock{Key: "Foo@7", Block: []byte("line one\nline two\n")}
	got := revisionBlockFromBytes(rb.ToBytes()).(revisionBlock)
	if got.Key != rb.Key || string(got.Block) != string(rb.Block) {
		t.Errorf("got %+v, want %+v", got, rb)
	}
}
