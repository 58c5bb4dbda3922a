// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"context"
	"encoding/binary"
	"runtime"

	"github.com/lanrat/extsort"
)

// revisionBlock is the extsort.SortType the sorted-output stage (C10)
// sorts by: a NUL-delimited "title\x00revid" key plus the already-
// formatted output block for that revision. NUL, not "@", separates
// title from revision ID because XML forbids raw NUL bytes in element
// content (https://www.w3.org/TR/xml/#charsets) — a title can
// legitimately contain "@", which would make a "title@revid" compare
// diverge from a true (title, revid) field-by-field compare, but it
// can never contain "\x00". Encoding the block alongside the key (a
// varint-prefixed key followed by the raw block bytes) lets extsort's
// chunked on-disk merge handle arbitrary binary payloads, including
// the embedded newlines and ANSI escapes a multi-line match block
// carries, the same way cmd/qrank-builder/qrank.go's QRank ToBytes
// packs a fixed pair of varints for its own record shape.
type revisionBlock struct {
	Key   string
	Block []byte
}

func (r revisionBlock) ToBytes() []byte {
	hdr := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(hdr, uint64(len(r.Key)))
	out := make([]byte, 0, n+len(r.Key)+len(r.Block))
	out = append(out, hdr[:n]...)
	out = append(out, r.Key...)
	out = append(out, r.Block...)
	return out
}

func revisionBlockFromBytes(b []byte) extsort.SortType {
	keyLen, n := binary.Uvarint(b)
	key := string(b[n : n+int(keyLen)])
	block := append([]byte(nil), b[n+int(keyLen):]...)
	return revisionBlock{Key: key, Block: block}
}

func revisionBlockLess(a, b extsort.SortType) bool {
	x, y := a.(revisionBlock), b.(revisionBlock)
	return x.Key < y.Key
}

// sortedOutputStage is the revisionSink installed in place of the
// plain syncWriter when SearchOptions.WithSortOutput(true) is set. It
// trades the driver's default cross-revision nondeterminism (§5) for
// a deterministic, diffable title/revision-ordered stream, buffering
// every matching revision's block through an external sort before any
// of it reaches the real sink. Grounded directly on
// cmd/qrank-builder/qrank.go's extsort.New(...)/sorter.Sort(ctx)
// pairing, run in its own goroutine started at construction so
// producers (the search workers, via WriteRevision) and the external
// sort proceed concurrently rather than one after the other.
type sortedOutputStage struct {
	ch       chan extsort.SortType
	outChan  <-chan extsort.SortType
	errChan  <-chan error
	sortDone chan struct{}
}

func newSortedOutputStage(ctx context.Context) *sortedOutputStage {
	ch := make(chan extsort.SortType, 10000)
	config := extsort.DefaultConfig()
	config.NumWorkers = runtime.NumCPU()
	sorter, outChan, errChan := extsort.New(ch, revisionBlockFromBytes, revisionBlockLess, config)

	sortDone := make(chan struct{})
	go func() {
		defer close(sortDone)
		sorter.Sort(ctx)
	}()

	return &sortedOutputStage{ch: ch, outChan: outChan, errChan: errChan, sortDone: sortDone}
}

// WriteRevision implements revisionSink by enqueueing block for the
// external sort, keyed on title+"\x00"+revisionID. It copies block
// since the caller's bytes.Buffer is reused immediately after this
// call returns.
func (s *sortedOutputStage) WriteRevision(title, revisionID string, block []byte) error {
	cp := append([]byte(nil), block...)
	s.ch <- revisionBlock{Key: title + "\x00" + revisionID, Block: cp}
	return nil
}

// Flush closes the input channel, writes every sorted revision block
// to sink in ascending key order as the external sort emits it, and
// then waits for the sort to finish. Call exactly once, after every
// worker has finished calling WriteRevision.
func (s *sortedOutputStage) Flush(ctx context.Context, sink revisionSink) error {
	close(s.ch)

	for data := range s.outChan {
		rb := data.(revisionBlock)
		if err := sink.WriteRevision("", "", rb.Block); err != nil {
			return err
		}
	}
	<-s.sortDone
	if err := <-s.errChan; err != nil {
		return wrapErr(KindIO, err)
	}
	return nil
}
